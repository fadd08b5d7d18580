package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tribfs"
	"tribfs/internal/binstore"
	"tribfs/internal/storage/fsengine"
)

func fakeRing(t *testing.T, names ...string) (map[string]*fsengine.Engine, Dial) {
	t.Helper()
	stores := make(map[string]*fsengine.Engine, len(names))
	for _, n := range names {
		stores[n] = fsengine.New()
	}
	dial := func(_ context.Context, addr string) (tribfs.Replica, error) {
		s, ok := stores[addr]
		if !ok {
			return nil, tribfs.New(tribfs.ErrTransient, "no such backend %q", addr)
		}
		return s, nil
	}
	return stores, dial
}

func TestSetThenGetRoundTrip(t *testing.T) {
	_, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	rs := New(d.Bin("alice"), dial)

	require.NoError(t, rs.Set(context.Background(), "k", "x"))
	val, ok, err := rs.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", val)
}

func TestWriteReachesBothPrimaryAndBackup(t *testing.T) {
	stores, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	rs := New(h, dial)

	require.NoError(t, rs.Set(context.Background(), "k", "x"))

	composed := binstore.ComposeKey("alice", binstore.KeyStringTag, "k")
	primaryAddr := h.Ring[0]
	backupAddr := h.Ring[1]
	pv, ok, err := stores[primaryAddr].Get(context.Background(), composed)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", pv)

	bv, ok, err := stores[backupAddr].Get(context.Background(), composed)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", bv)
}

func TestReadSurvivesDeadPrimary(t *testing.T) {
	stores, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	rs := New(h, dial)
	require.NoError(t, rs.Set(context.Background(), "k", "x"))

	delete(stores, h.Ring[0]) // kill primary

	val, ok, err := rs.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", val)
}

func TestNoLiveStoreWhenRingFullyDead(t *testing.T) {
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	dial := func(context.Context, string) (tribfs.Replica, error) {
		return nil, tribfs.New(tribfs.ErrTransient, "down")
	}
	rs := New(h, dial)

	_, _, err := rs.Get(context.Background(), "k")
	require.Error(t, err)
}

func TestListAppendRemoveOrdering(t *testing.T) {
	_, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	rs := New(d.Bin("alice"), dial)
	ctx := context.Background()

	require.NoError(t, rs.ListAppend(ctx, "k", "1"))
	require.NoError(t, rs.ListAppend(ctx, "k", "2"))
	require.NoError(t, rs.ListRemove(ctx, "k", "1"))

	vals, err := rs.ListGet(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, tribfs.List{"2"}, vals)
}

func TestBinPrimaryStableWithoutMembershipChange(t *testing.T) {
	d := binstore.New([]string{"a", "b", "c", "d"})
	h1 := d.Bin("alice")
	h2 := d.Bin("alice")
	require.Equal(t, h1.Ring[0], h2.Ring[0])
}

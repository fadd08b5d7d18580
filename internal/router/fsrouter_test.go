package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tribfs"
	"tribfs/internal/binstore"
)

func TestFSRouterCreateReachesBothReplicas(t *testing.T) {
	stores, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	fs := NewFS(h, dial)
	ctx := context.Background()
	req := tribfs.FileRequest{}

	require.NoError(t, fs.Init(ctx, req))

	_, _, err := fs.Create(ctx, req, 1, "hello.txt", 0o644)
	require.NoError(t, err)

	primaryAddr := h.Ring[0]
	backupAddr := h.Ring[1]

	_, err = stores[primaryAddr].Lookup(ctx, req, 1, "hello.txt")
	require.NoError(t, err)
	_, err = stores[backupAddr].Lookup(ctx, req, 1, "hello.txt")
	require.NoError(t, err)
}

func TestFSRouterReadSurvivesDeadPrimary(t *testing.T) {
	stores, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	fs := NewFS(h, dial)
	ctx := context.Background()
	req := tribfs.FileRequest{}

	require.NoError(t, fs.Init(ctx, req))
	_, _, err := fs.Create(ctx, req, 1, "hello.txt", 0o644)
	require.NoError(t, err)

	delete(stores, h.Ring[0]) // kill primary

	attr, err := fs.Lookup(ctx, req, 1, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, tribfs.KindRegular, attr.Kind)
}

func TestFSRouterWriteRoundTripsThroughPrimary(t *testing.T) {
	_, dial := fakeRing(t, "a", "b", "c")
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	fs := NewFS(h, dial)
	ctx := context.Background()
	req := tribfs.FileRequest{}

	require.NoError(t, fs.Init(ctx, req))
	attr, _, err := fs.Create(ctx, req, 1, "hello.txt", 0o644)
	require.NoError(t, err)

	n, err := fs.Write(ctx, req, attr.Ino, 0, 0, []byte("hi"), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)

	data, err := fs.Read(ctx, req, attr.Ino, 0, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), data)
}

func TestFSRouterNoLiveStoreWhenRingFullyDead(t *testing.T) {
	d := binstore.New([]string{"a", "b", "c"})
	h := d.Bin("alice")
	dial := func(context.Context, string) (tribfs.Replica, error) {
		return nil, tribfs.New(tribfs.ErrTransient, "down")
	}
	fs := NewFS(h, dial)

	_, err := fs.Lookup(context.Background(), tribfs.FileRequest{}, 1, "hello.txt")
	require.Error(t, err)
}

package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tribfs"
	"tribfs/internal/binstore"
)

func TestBinDispatcherRoutesBothCapabilities(t *testing.T) {
	stores, dial := fakeRing(t, "a", "b", "c")
	d := NewBinDispatcher([]string{"a", "b", "c"}, dial)
	ctx := context.Background()
	req := tribfs.FileRequest{}

	kv, err := d.Bin("alice")
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "k", "v"))

	fs, err := d.FSBin("alice")
	require.NoError(t, err)
	require.NoError(t, fs.Init(ctx, req))

	composed := binstore.ComposeKey("alice", binstore.KeyStringTag, "k")
	found := false
	for _, s := range stores {
		if v, ok, _ := s.Get(ctx, composed); ok && v == "v" {
			found = true
		}
	}
	require.True(t, found)
}

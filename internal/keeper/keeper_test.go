package keeper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tribfs"
	"tribfs/internal/binstore"
	"tribfs/internal/keeperstore"
	"tribfs/internal/storage/fsengine"
	"tribfs/internal/storage/memstore"
)

func newTestKeeper(t *testing.T, index, ring int, backs []string, stores map[string]*fsengine.Engine) *Keeper {
	t.Helper()
	bk := memstore.New()
	bk.MarkSimple(keeperstore.LiveListKey)
	for i := 0; i < ring; i++ {
		bk.MarkSimple(keeperstore.HeartbeatKey(i))
	}
	dial := func(_ context.Context, addr string) (tribfs.Replica, error) {
		s, ok := stores[addr]
		if !ok {
			return nil, tribfs.New(tribfs.ErrTransient, "down: %s", addr)
		}
		return s, nil
	}
	return New(index, ring, backs, keeperstore.New(bk), dial)
}

func TestIsLiveWithinWindow(t *testing.T) {
	require.True(t, IsLive(10, 5))
	require.False(t, IsLive(10, 3))
	require.True(t, IsLive(10, 11))
}

func TestLeaderIsSmallestLiveIndex(t *testing.T) {
	heartbeats := []uint64{100, 1, 50}
	present := []bool{true, true, true}
	idx, ok := Leader(50, heartbeats, present)
	require.True(t, ok)
	require.Equal(t, 0, idx)

	// Index 1's heartbeat (1) is 49 behind own (50), outside the window,
	// so the smallest live index is 2.
	idx, ok = Leader(50, heartbeats, []bool{false, true, true})
	require.True(t, ok)
	require.Equal(t, 2, idx)
}

func TestSyncHeartbeatPublishesMaxPlusOne(t *testing.T) {
	stores := map[string]*fsengine.Engine{"b0": fsengine.New(), "b1": fsengine.New()}
	k := newTestKeeper(t, 0, 2, []string{"b0", "b1"}, stores)
	ctx := context.Background()

	require.NoError(t, k.Bookkeeping.PublishHeartbeat(ctx, 1, 5))
	require.NoError(t, k.syncHeartbeat(ctx))

	hb, ok, err := k.Bookkeeping.Heartbeat(ctx, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(6), hb)
}

func TestServeOneRoundNoopForFollower(t *testing.T) {
	stores := map[string]*fsengine.Engine{"b0": fsengine.New()}
	k := newTestKeeper(t, 1, 2, []string{"b0"}, stores)
	ctx := context.Background()
	require.NoError(t, k.Bookkeeping.PublishHeartbeat(ctx, 0, 100))
	require.NoError(t, k.syncHeartbeat(ctx))

	require.NoError(t, k.ServeOneRound(ctx))
	_, ok, err := k.Bookkeeping.LiveList(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReplicateCopiesMissingValuesForOwnedKeys(t *testing.T) {
	stores := map[string]*fsengine.Engine{"b0": fsengine.New(), "b1": fsengine.New()}
	live := []bool{true, true}
	primary := binstore.KeyPrimaryIdx("alice", 2, live)
	other := 1 - primary
	fromAddr, toAddr := []string{"b0", "b1"}[primary], []string{"b0", "b1"}[other]
	from, to := stores[fromAddr], stores[toAddr]
	ctx := context.Background()

	require.NoError(t, from.ListAppend(ctx, "alice:KeyList:files", "a"))
	require.NoError(t, from.ListAppend(ctx, "alice:KeyList:files", "b"))
	require.NoError(t, to.ListAppend(ctx, "alice:KeyList:files", "a"))

	k := newTestKeeper(t, 0, 2, []string{"b0", "b1"}, stores)
	require.NoError(t, k.Replicate(ctx, primary, other, primary, live))

	vals, err := to.ListGet(ctx, "alice:KeyList:files")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, vals)
}

func TestServeOneRoundJoinReplicatesOwnedKeys(t *testing.T) {
	addrs := []string{"b0", "b1", "b2"}
	stores := map[string]*fsengine.Engine{"b0": fsengine.New(), "b1": fsengine.New(), "b2": fsengine.New()}
	ctx := context.Background()

	allLive := []bool{true, true, true}
	// The joiner is whichever backend currently owns "alice" as primary;
	// its old backup B held the data while the joiner was dead.
	joiner := binstore.KeyPrimaryIdx("alice", 3, allLive)
	b := binstore.PrevLive(allLive, joiner)
	require.NoError(t, stores[addrs[b]].ListAppend(ctx, "alice:KeyList:files", "a"))

	k := newTestKeeper(t, 0, 1, addrs, stores)

	// Seed a prior round where the joiner backend was dead; the other two
	// were live, satisfying the >=3-live gate only once the joiner rejoins.
	seed := []bool{true, true, true}
	seed[joiner] = false
	require.NoError(t, k.Bookkeeping.PublishLiveList(ctx, seed))
	k.lastLive = seed
	k.haveLastPub = true

	// Publish this keeper's own heartbeat so it sees itself live and leads.
	require.NoError(t, k.syncHeartbeat(ctx))
	require.NoError(t, k.ServeOneRound(ctx))

	gotLive, ok, err := k.Bookkeeping.LiveList(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, allLive, gotLive)

	vals, err := stores[addrs[joiner]].ListGet(ctx, "alice:KeyList:files")
	require.NoError(t, err)
	require.Contains(t, vals, "a")
}

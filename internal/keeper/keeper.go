// Package keeper implements the keeper control plane: per-second
// heartbeat synchronization, leaderless election among keepers, and
// leader-driven re-replication when backend ring membership changes.
package keeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"tribfs"
	"tribfs/internal/binstore"
	"tribfs/internal/keeperstore"
)

const (
	// HeartbeatInterval is the cadence every keeper bumps its own
	// heartbeat entry in the bookkeeping bin.
	HeartbeatInterval = 1 * time.Second
	// RoundInterval is the cadence the leader runs serveOneRound.
	RoundInterval = 3 * time.Second
	// livenessWindow is the heartbeat skew tolerated before a keeper is
	// considered dead, per the liveness rule in §4.G.
	livenessWindow = 6
	// probeTimeout bounds a single backend's clock(0) broadcast probe.
	probeTimeout = 1 * time.Second
	// minLiveForReplication is the minimum live backend count required
	// before the ring can safely maintain two-replica guarantees.
	minLiveForReplication = 3
)

// Dial constructs the full replica capability for a single backend address, used
// both for liveness probes and for replication reads/appends.
type Dial func(ctx context.Context, addr string) (tribfs.Replica, error)

// Keeper is one member of the keeper ring.
type Keeper struct {
	Index int      // this keeper's index within the keeper ring
	Ring  int      // total number of keepers
	Backs []string // backend ring addresses, in bin-dispatcher order

	Bookkeeping *keeperstore.Store // bound to the well-known bookkeeping bin
	DialBackend Dial

	mu          sync.RWMutex
	ownClock    uint64
	heartbeat   uint64
	lastLive    []bool
	haveLastPub bool
}

// New builds a Keeper at the given index within a ring of size ringSize.
func New(index, ringSize int, backs []string, bookkeeping *keeperstore.Store, dial Dial) *Keeper {
	return &Keeper{
		Index:       index,
		Ring:        ringSize,
		Backs:       backs,
		Bookkeeping: bookkeeping,
		DialBackend: dial,
	}
}

// Run drives the keeper's two periodic loops until ctx is cancelled: a
// 1-second heartbeat sync and a 3-second round (serveOneRound is a no-op
// for followers).
func (k *Keeper) Run(ctx context.Context) error {
	heartbeatTicker := time.NewTicker(HeartbeatInterval)
	defer heartbeatTicker.Stop()
	roundTicker := time.NewTicker(RoundInterval)
	defer roundTicker.Stop()

	if err := k.syncHeartbeat(ctx); err != nil {
		slog.Warn("keeper: initial heartbeat sync failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-heartbeatTicker.C:
			if err := k.syncHeartbeat(ctx); err != nil {
				slog.Warn("keeper: heartbeat sync failed", "err", err)
			}
		case <-roundTicker.C:
			if err := k.ServeOneRound(ctx); err != nil {
				slog.Warn("keeper: round failed", "err", err)
			}
		}
	}
}

// syncHeartbeat reads all keepers' heartbeats and sets this keeper's own
// heartbeat to max(observed) + 1, then publishes it.
func (k *Keeper) syncHeartbeat(ctx context.Context) error {
	heartbeats, present, err := k.Bookkeeping.AllHeartbeats(ctx, k.Ring)
	if err != nil {
		return err
	}
	var max uint64
	for i, ok := range present {
		if ok && heartbeats[i] > max {
			max = heartbeats[i]
		}
	}
	next := max + 1

	k.mu.Lock()
	k.heartbeat = next
	if next > k.ownClock {
		k.ownClock = next
	}
	own := k.ownClock
	k.mu.Unlock()
	_ = own

	return k.Bookkeeping.PublishHeartbeat(ctx, k.Index, next)
}

// IsLive applies the liveness rule: keeper j is alive from i's point of
// view iff |own_clock - j.heartbeat| < 6, or j.heartbeat > own_clock.
func IsLive(ownClock, jHeartbeat uint64) bool {
	if jHeartbeat > ownClock {
		return true
	}
	diff := ownClock - jHeartbeat
	return diff < livenessWindow
}

// Leader returns the smallest live index among the given heartbeat table,
// deduced identically by every keeper without explicit election messages.
func Leader(ownClock uint64, heartbeats []uint64, present []bool) (int, bool) {
	for i := range heartbeats {
		if present[i] && IsLive(ownClock, heartbeats[i]) {
			return i, true
		}
	}
	return 0, false
}

// IsLeader reports whether this keeper currently deduces itself as
// leader from the shared heartbeat table.
func (k *Keeper) IsLeader(ctx context.Context) (bool, error) {
	heartbeats, present, err := k.Bookkeeping.AllHeartbeats(ctx, k.Ring)
	if err != nil {
		return false, err
	}
	k.mu.RLock()
	own := k.ownClock
	k.mu.RUnlock()
	leader, ok := Leader(own, heartbeats, present)
	return ok && leader == k.Index, nil
}

// ServeOneRound runs one leader round: broadcast liveness probes,
// diff against the last published live list, replicate data for every
// transitioned backend (if at least 3 are live), then persist the new
// live list.
func (k *Keeper) ServeOneRound(ctx context.Context) error {
	isLeader, err := k.IsLeader(ctx)
	if err != nil {
		return err
	}
	if !isLeader {
		return nil
	}

	newLive := k.broadcastProbe(ctx)

	oldLive, err := k.resolveLastLive(ctx)
	if err != nil {
		return err
	}

	if countLive(newLive) >= minLiveForReplication {
		if err := k.replicateTransitions(ctx, oldLive, newLive); err != nil {
			return err
		}
	}

	k.mu.Lock()
	k.lastLive = newLive
	k.haveLastPub = true
	k.mu.Unlock()

	return k.Bookkeeping.PublishLiveList(ctx, newLive)
}

// broadcastProbe issues a Clock(0) call to every backend in parallel with
// a one-second timeout each, setting live iff the reply arrived in time.
func (k *Keeper) broadcastProbe(ctx context.Context) []bool {
	live := make([]bool, len(k.Backs))
	var wg sync.WaitGroup
	for i, addr := range k.Backs {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			defer cancel()
			store, err := k.DialBackend(probeCtx, addr)
			if err != nil {
				return
			}
			if _, err := store.Clock(probeCtx, 0); err != nil {
				return
			}
			live[i] = true
		}(i, addr)
	}
	wg.Wait()
	return live
}

// resolveLastLive returns the live list to diff against: the leader's own
// in-memory copy from the previous round if present, otherwise the one
// recovered from the bookkeeping bin, otherwise "every backend dead".
func (k *Keeper) resolveLastLive(ctx context.Context) ([]bool, error) {
	k.mu.RLock()
	if k.haveLastPub {
		cp := append([]bool{}, k.lastLive...)
		k.mu.RUnlock()
		return cp, nil
	}
	k.mu.RUnlock()

	recovered, ok, err := k.Bookkeeping.LiveList(ctx)
	if err != nil {
		return nil, err
	}
	if ok && len(recovered) == len(k.Backs) {
		return recovered, nil
	}
	return make([]bool, len(k.Backs)), nil
}

func countLive(live []bool) int {
	n := 0
	for _, v := range live {
		if v {
			n++
		}
	}
	return n
}

// replicateTransitions walks every index whose liveness changed between
// oldLive and newLive and replicates accordingly (§4.G step 3).
func (k *Keeper) replicateTransitions(ctx context.Context, oldLive, newLive []bool) error {
	var errs error
	for i := range newLive {
		switch {
		case !oldLive[i] && newLive[i]: // join
			if err := k.handleJoin(ctx, i, newLive); err != nil {
				errs = multierror.Append(errs, err)
			}
		case oldLive[i] && !newLive[i]: // leave
			if err := k.handleLeave(ctx, i, oldLive, newLive); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs
}

// handleJoin implements §4.G step 3's Join case: B = next live before the
// joiner (in the post-join list, which equals the pre-join list with the
// joiner now live — the joiner itself is skipped by NextLive/PrevLive
// since they only return other live entries relative to a starting
// point), A = next live after. Replicate A's own keys from A to the
// joiner, and the joiner's own keys from B to the joiner.
func (k *Keeper) handleJoin(ctx context.Context, joiner int, live []bool) error {
	a := binstore.NextLive(live, joiner)
	b := binstore.PrevLive(live, joiner)

	var errs error
	if a >= 0 {
		if err := k.Replicate(ctx, a, joiner, a, live); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if b >= 0 {
		if err := k.Replicate(ctx, b, joiner, joiner, live); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// handleLeave implements §4.G step 3's Leave case: B = previous live (in
// the pre-leave list), A = next live (in the post-leave list), AA = next
// live after A. Replicate A's keys from A to AA, and B's keys from B to
// A (A inherits what the departed node would have backed up for B).
func (k *Keeper) handleLeave(ctx context.Context, leaver int, oldLive, newLive []bool) error {
	b := binstore.PrevLive(oldLive, leaver)
	a := binstore.NextLive(newLive, leaver)
	if a < 0 {
		return nil
	}
	aa := binstore.NextLive(newLive, a)

	var errs error
	if aa >= 0 {
		if err := k.Replicate(ctx, a, aa, a, newLive); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if b >= 0 {
		if err := k.Replicate(ctx, b, a, b, newLive); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}

// Replicate lists all keys at the backend indexed by from, and for each
// key whose hashed primary under liveList equals forPrimary, appends to
// the backend indexed by to any list value present at from but missing
// at to. Idempotent because the underlying operation log is append-only
// with total order by clock (union dedups on replay).
func (k *Keeper) Replicate(ctx context.Context, from, to, forPrimary int, liveList []bool) error {
	if from < 0 || to < 0 || from >= len(k.Backs) || to >= len(k.Backs) {
		return nil
	}
	fromStore, err := k.DialBackend(ctx, k.Backs[from])
	if err != nil {
		return err
	}
	toStore, err := k.DialBackend(ctx, k.Backs[to])
	if err != nil {
		return err
	}

	keys, err := fromStore.ListKeys(ctx, tribfs.Pattern{})
	if err != nil {
		return err
	}

	var errs error
	for _, key := range keys {
		bin, _, _, ok := binstore.ParseKey(key)
		if !ok {
			continue
		}
		if binstore.KeyPrimaryIdx(bin, len(liveList), liveList) != forPrimary {
			continue
		}

		fromVals, err := fromStore.ListGet(ctx, key)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		toVals, err := toStore.ListGet(ctx, key)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		present := make(map[string]struct{}, len(toVals))
		for _, v := range toVals {
			present[v] = struct{}{}
		}
		for _, v := range fromVals {
			if _, ok := present[v]; ok {
				continue
			}
			if err := toStore.ListAppend(ctx, key, v); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs
}

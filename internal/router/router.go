// Package router implements the replication router ("reliable bin"): it
// picks a primary and backup among live replicas for a bin, applies
// mutations to both, retries transient failures, and exposes the merged
// read path the rest of the system calls "reading a bin".
package router

import (
	"context"
	"fmt"
	"time"

	"tribfs"
	"tribfs/internal/binstore"
	"tribfs/internal/oplog"
)

// maxProbeMultiplier bounds get_store's probe budget at 2*|ring| attempts
// before it gives up with ErrNoLiveStore.
const maxProbeMultiplier = 2

// minAttemptsPerProbe is the per-ring-member multiplier for withRetries'
// attempt ceiling, and the ceiling's floor for an empty ring.
const minAttemptsPerProbe = 2

// Dial constructs the full replica capability for a single backend
// address. The router never holds these past a single call — it dials,
// uses, and drops, which is what keeps ownership a tree instead of a
// client graph.
type Dial func(ctx context.Context, addr string) (tribfs.Replica, error)

// ReliableStore is a Storage implementation that delegates to the live
// primary and backup replicas of a single bin handle, per §4.D.
type ReliableStore struct {
	handle binstore.Handle
	dial   Dial
}

// New builds a ReliableStore bound to handle, dialing replicas with dial.
func New(handle binstore.Handle, dial Dial) *ReliableStore {
	return &ReliableStore{handle: handle, dial: dial}
}

// getStore walks the rotated ring starting from the beginning, probing
// each candidate with a cheap Clock(0) call, and returns the count-th
// live one found. It gives up with ErrNoLiveStore after 2*|ring| probes.
func (r *ReliableStore) getStore(ctx context.Context, count int) (tribfs.Replica, string, error) {
	if len(r.handle.Ring) == 0 {
		return nil, "", tribfs.New(tribfs.ErrNoLiveStore, "empty ring for bin %q", r.handle.Name)
	}
	budget := maxProbeMultiplier * len(r.handle.Ring)
	found := 0
	for i := 0; i < budget; i++ {
		addr := r.handle.Ring[i%len(r.handle.Ring)]
		store, err := r.probe(ctx, addr)
		if err != nil {
			continue
		}
		found++
		if found == count {
			return store, addr, nil
		}
	}
	return nil, "", tribfs.New(tribfs.ErrNoLiveStore, "bin %q: no live store found for slot %d within %d probes", r.handle.Name, count, budget)
}

func (r *ReliableStore) probe(ctx context.Context, addr string) (tribfs.Replica, error) {
	store, err := r.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if _, err := store.Clock(ctx, 0); err != nil {
		return nil, err
	}
	return store, nil
}

// withRetries retries fn while it returns a transient error, up to an
// attempt ceiling of minAttemptsPerProbe times the ring size. Each fn
// re-probes its own stores, so every attempt starts from a fresh probe.
func withRetries[T any](ctx context.Context, ring int, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	maxAttempts := minAttemptsPerProbe * ring
	if maxAttempts < minAttemptsPerProbe {
		maxAttempts = minAttemptsPerProbe
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		v, err := fn(attempt)
		if err == nil {
			return v, nil
		}
		if !tribfs.Transient(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}

// Get performs a pure read: primary only, restarting (re-probing primary)
// on transient failure.
func (r *ReliableStore) Get(ctx context.Context, key string) (string, bool, error) {
	composed := binstore.ComposeKey(r.handle.Name, binstore.KeyStringTag, key)
	type result struct {
		val string
		ok  bool
	}
	res, err := withRetries(ctx, len(r.handle.Ring), func(int) (result, error) {
		primary, _, err := r.getStore(ctx, 1)
		if err != nil {
			return result{}, err
		}
		val, ok, err := primary.Get(ctx, composed)
		return result{val: val, ok: ok}, err
	})
	return res.val, res.ok, err
}

// Set is a mutating key-value op: write path against primary+backup.
func (r *ReliableStore) Set(ctx context.Context, key, value string) error {
	return r.write(ctx, key, value, oplog.StringSet)
}

// Keys fetches the backend's entire raw keyspace (shared across every bin
// dispatched to the same backend address) and keeps only the composed
// keys belonging to this bin's string namespace, matching p against the
// decomposed user key.
func (r *ReliableStore) Keys(ctx context.Context, p tribfs.Pattern) (tribfs.List, error) {
	return r.scopedKeys(ctx, binstore.KeyStringTag, p, tribfs.Replica.Keys)
}

func (r *ReliableStore) ListGet(ctx context.Context, key string) (tribfs.List, error) {
	composed := binstore.ComposeKey(r.handle.Name, binstore.KeyListTag, key)
	return withRetries(ctx, len(r.handle.Ring), func(int) (tribfs.List, error) {
		primary, _, err := r.getStore(ctx, 1)
		if err != nil {
			return nil, err
		}
		return primary.ListGet(ctx, composed)
	})
}

func (r *ReliableStore) ListAppend(ctx context.Context, key, value string) error {
	return r.write(ctx, key, value, oplog.ListAppend)
}

func (r *ReliableStore) ListRemove(ctx context.Context, key, value string) error {
	return r.write(ctx, key, value, oplog.ListRemove)
}

// ListKeys is Keys's list-namespace analog.
func (r *ReliableStore) ListKeys(ctx context.Context, p tribfs.Pattern) (tribfs.List, error) {
	return r.scopedKeys(ctx, binstore.KeyListTag, p, tribfs.Replica.ListKeys)
}

// scopedKeys fetches the primary's full unfiltered raw keyspace via fetch
// (a Pattern{} zero value matches every key), then keeps only the keys
// composed under this bin and tag, decomposing back to the user key and
// matching it against p.
func (r *ReliableStore) scopedKeys(ctx context.Context, tag string, p tribfs.Pattern, fetch func(tribfs.Replica, context.Context, tribfs.Pattern) (tribfs.List, error)) (tribfs.List, error) {
	raw, err := withRetries(ctx, len(r.handle.Ring), func(int) (tribfs.List, error) {
		primary, _, err := r.getStore(ctx, 1)
		if err != nil {
			return nil, err
		}
		return fetch(primary, ctx, tribfs.Pattern{})
	})
	if err != nil {
		return nil, err
	}
	var out tribfs.List
	for _, k := range raw {
		bin, kindTag, userKey, ok := binstore.ParseKey(k)
		if !ok || bin != r.handle.Name || kindTag != tag {
			continue
		}
		if p.Matches(userKey) {
			out = append(out, userKey)
		}
	}
	return out, nil
}

// Clock synchronizes and returns the router's view of the backend clock,
// bumped to at least atLeast at the primary.
func (r *ReliableStore) Clock(ctx context.Context, atLeast uint64) (uint64, error) {
	return withRetries(ctx, len(r.handle.Ring), func(int) (uint64, error) {
		primary, _, err := r.getStore(ctx, 1)
		if err != nil {
			return 0, err
		}
		return primary.Clock(ctx, atLeast)
	})
}

// write implements the write path from §4.D: synchronize a Lamport clock
// across primary and backup, then append the identical {clock, val, kind}
// record to both, restarting the whole operation (re-probe, re-sync
// clock) on any transient failure at either step.
func (r *ReliableStore) write(ctx context.Context, key, value string, kind oplog.Kind) error {
	composed := binstore.ComposeKey(r.handle.Name, kindTag(kind), key)
	_, err := withRetries(ctx, len(r.handle.Ring), func(int) (struct{}, error) {
		primary, _, err := r.getStore(ctx, 1)
		if err != nil {
			return struct{}{}, err
		}
		backup, _, err := r.getStore(ctx, 2)
		if err != nil {
			return struct{}{}, err
		}

		primaryClock, err := primary.Clock(ctx, 0)
		if err != nil {
			return struct{}{}, err
		}
		clock, err := backup.Clock(ctx, primaryClock)
		if err != nil {
			return struct{}{}, err
		}

		if err := appendRecord(ctx, primary, composed, value, kind, clock); err != nil {
			return struct{}{}, err
		}
		if err := appendRecord(ctx, backup, composed, value, kind, clock); err != nil {
			if !tribfs.Transient(err) {
				return struct{}{}, tribfs.New(tribfs.ErrReplicationStalled, "backup append failed permanently: %v", err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

// kindTag maps an oplog.Kind to the namespace it composes under: string
// mutations live in the string log, every list mutation (append, remove,
// clear) shares the list log.
func kindTag(kind oplog.Kind) string {
	if kind == oplog.StringSet {
		return binstore.KeyStringTag
	}
	return binstore.KeyListTag
}

// appendRecord stamps key with the synchronized clock via store's
// ClockedAppend capability, so primary and backup both persist the
// identical {clock, val, kind} record for one logical write.
func appendRecord(ctx context.Context, store tribfs.Replica, key, value string, kind oplog.Kind, clock uint64) error {
	switch kind {
	case oplog.StringSet:
		return store.SetAt(ctx, key, value, clock)
	case oplog.ListAppend:
		return store.ListAppendAt(ctx, key, value, clock)
	case oplog.ListRemove, oplog.ListClear:
		return store.ListRemoveAt(ctx, key, value, clock)
	default:
		return fmt.Errorf("router: unknown op kind %d", kind)
	}
}

// ReadUnion reads the list value of key from both the primary and the
// backup and returns their union, keeping the first occurrence of each
// value (primary's values first). If no backup is found, or the backup's
// read fails, it returns the primary's list alone. It makes a single
// attempt, without withRetries. Pure-read filesystem operations (read,
// lookup, getattr, readdir, getxattr, listxattr, access) use primary-only
// per §4.D; nothing in this module calls ReadUnion.
func (r *ReliableStore) ReadUnion(ctx context.Context, key string) (tribfs.List, error) {
	composed := binstore.ComposeKey(r.handle.Name, binstore.KeyListTag, key)
	primary, _, err := r.getStore(ctx, 1)
	if err != nil {
		return nil, err
	}
	backup, _, err := r.getStore(ctx, 2)
	if err != nil {
		// A single live replica still yields a valid, if unrepaired, view.
		return primary.ListGet(ctx, composed)
	}
	a, err := primary.ListGet(ctx, composed)
	if err != nil {
		return nil, err
	}
	b, err := backup.ListGet(ctx, composed)
	if err != nil {
		return a, nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	merged := make(tribfs.List, 0, len(a)+len(b))
	for _, v := range append(append(tribfs.List{}, a...), b...) {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	return merged, nil
}

// Deadline returns ctx unchanged (with a no-op cancel) when it already
// carries a deadline, and otherwise ctx bounded by fallback. The write
// path does not call it; nothing in this module does.
func Deadline(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, fallback)
}

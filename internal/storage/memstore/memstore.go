// Package memstore implements the per-backend auxiliary key-value store
// in memory, backed by an append-only operation log per key. It satisfies
// tribfs.Storage and is used as the fast path for unit tests (the keeper
// tests flag their liveness keys "simple mode") and as fsengine's
// key-value half.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"tribfs"
	"tribfs/internal/oplog"
)

// Store is a single replica's auxiliary key-value engine: a flat string
// log namespace, a flat list log namespace, and a Lamport clock.
type Store struct {
	mu       sync.RWMutex
	strings  map[string][]oplog.Record
	lists    map[string][]oplog.Record
	clock    atomic.Uint64
	simple   map[string]struct{} // keys written in "simple mode": set overrides instead of appending
	simpleMu sync.Mutex
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		strings: make(map[string][]oplog.Record),
		lists:   make(map[string][]oplog.Record),
		simple:  make(map[string]struct{}),
	}
}

// MarkSimple flags key as "simple mode": Set overwrites the prior record
// instead of appending, matching the keeper liveness store's
// TIMESTAMP_<idx>/LIVE_LIST_STATE keys (current-state, not history).
func (s *Store) MarkSimple(key string) {
	s.simpleMu.Lock()
	s.simple[key] = struct{}{}
	s.simpleMu.Unlock()
}

func (s *Store) isSimple(key string) bool {
	s.simpleMu.Lock()
	defer s.simpleMu.Unlock()
	_, ok := s.simple[key]
	return ok
}

// Clock bumps the store's Lamport clock to at least atLeast, then past it
// by one, and returns the pre-increment value. Every call advances the
// clock — there is no atLeast == 0 special case — which is what makes two
// successive Clock calls against the same store strictly increasing.
// Saturates at math.MaxUint64 rather than wrapping.
func (s *Store) Clock(_ context.Context, atLeast uint64) (uint64, error) {
	for {
		cur := s.clock.Load()
		ret := cur
		if atLeast > ret {
			ret = atLeast
		}
		next := ret
		if next < ^uint64(0) {
			next++
		}
		if s.clock.CompareAndSwap(cur, next) {
			return ret, nil
		}
	}
}

func (s *Store) nextClock(atLeast uint64) uint64 {
	v, _ := s.Clock(context.Background(), atLeast)
	return v
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	records := append([]oplog.Record{}, s.strings[key]...)
	s.mu.RUnlock()
	return oplog.ReplayString(records)
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.SetAt(ctx, key, value, s.nextClock(0))
}

// SetAt appends value as a StringSet record at an externally supplied
// clock instead of assigning one, so the replication router can give
// primary and backup the identical record for one logical write.
// Re-appending an identical (clock, value) pair is a no-op.
func (s *Store) SetAt(_ context.Context, key, value string, clock uint64) error {
	record := oplog.Record{Clock: clock, Val: value, Kind: oplog.StringSet}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSimple(key) {
		s.strings[key] = []oplog.Record{record}
		return nil
	}
	if hasRecord(s.strings[key], record) {
		return nil
	}
	s.strings[key] = append(s.strings[key], record)
	return nil
}

func (s *Store) Keys(_ context.Context, p tribfs.Pattern) (tribfs.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out tribfs.List
	for k, records := range s.strings {
		if len(records) == 0 {
			continue
		}
		if p.Matches(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ListGet(_ context.Context, key string) (tribfs.List, error) {
	s.mu.RLock()
	records := append([]oplog.Record{}, s.lists[key]...)
	s.mu.RUnlock()
	out, err := oplog.ReplayList(records)
	if err != nil {
		return nil, err
	}
	return tribfs.List(out), nil
}

func (s *Store) ListAppend(ctx context.Context, key, value string) error {
	return s.ListAppendAt(ctx, key, value, s.nextClock(0))
}

// ListAppendAt is ListAppend's externally-clocked form; see SetAt.
func (s *Store) ListAppendAt(_ context.Context, key, value string, clock uint64) error {
	record := oplog.Record{Clock: clock, Val: value, Kind: oplog.ListAppend}
	s.mu.Lock()
	defer s.mu.Unlock()
	if hasRecord(s.lists[key], record) {
		return nil
	}
	s.lists[key] = append(s.lists[key], record)
	return nil
}

func (s *Store) ListRemove(ctx context.Context, key, value string) error {
	return s.ListRemoveAt(ctx, key, value, s.nextClock(0))
}

// ListRemoveAt is ListRemove's externally-clocked form; see SetAt.
func (s *Store) ListRemoveAt(_ context.Context, key, value string, clock uint64) error {
	record := oplog.Record{Clock: clock, Val: value, Kind: oplog.ListRemove}
	s.mu.Lock()
	defer s.mu.Unlock()
	if hasRecord(s.lists[key], record) {
		return nil
	}
	s.lists[key] = append(s.lists[key], record)
	return nil
}

// hasRecord reports whether an identical record is already present,
// giving SetAt/ListAppendAt/ListRemoveAt idempotent replay.
func hasRecord(records []oplog.Record, rec oplog.Record) bool {
	for _, r := range records {
		if r == rec {
			return true
		}
	}
	return false
}

func (s *Store) ListKeys(_ context.Context, p tribfs.Pattern) (tribfs.List, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out tribfs.List
	for k, records := range s.lists {
		vals, err := oplog.ReplayList(records)
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			continue
		}
		if p.Matches(k) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// RawStringLog exposes a key's unreplayed string records. Nothing in this
// module calls it; keeper replication works through ListGet/ListAppend.
func (s *Store) RawStringLog(key string) []oplog.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]oplog.Record{}, s.strings[key]...)
}

// RawListLog exposes a key's unreplayed list records.
func (s *Store) RawListLog(key string) []oplog.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]oplog.Record{}, s.lists[key]...)
}

// MergeListLog unions externally-sourced records into key's list log
// without re-deriving clocks (idempotent: union dedups). keeper.Replicate
// does not call it.
func (s *Store) MergeListLog(key string, records []oplog.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = oplog.Union(s.lists[key], records)
}

// MergeStringLog is the string-log analog of MergeListLog.
func (s *Store) MergeStringLog(key string, records []oplog.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = oplog.Union(s.strings[key], records)
}

// String renders a clock value the way the keeper liveness store expects
// heartbeat entries to be persisted: a decimal string.
func String(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// Package keeperstore implements the keeper liveness store (component H):
// a designated bin, consulted through the ordinary Storage capability,
// that every keeper uses to publish heartbeats and share the last live
// list. Both keys live in the string sub-store and are read back as their
// latest value, because they represent current state, not history.
// Whether a Set replaces the prior record or appends a new one depends on
// the Storage behind the bin: memstore replaces for keys flagged with
// MarkSimple, while the replication router appends a clocked record that
// Get replays last-write-wins.
package keeperstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tribfs"
)

// BinName is the well-known bin name every keeper resolves through the
// bin dispatcher to reach the shared bookkeeping bin.
const BinName = "__keeper__"

// LiveListKey is the well-known key publishing the last live list the
// leader computed, serialized as comma-separated booleans ("1"/"0").
const LiveListKey = "LIVE_LIST_STATE"

// HeartbeatKey returns the key publishing keeper idx's last heartbeat.
func HeartbeatKey(idx int) string {
	return fmt.Sprintf("TIMESTAMP_%d", idx)
}

// Store wraps a Storage capability bound to the bookkeeping bin.
type Store struct {
	storage tribfs.Storage
}

// New wraps storage, which must be the Storage handle for the well-known
// bookkeeping bin all keepers share.
func New(storage tribfs.Storage) *Store {
	return &Store{storage: storage}
}

// PublishHeartbeat overwrites keeper idx's heartbeat entry.
func (s *Store) PublishHeartbeat(ctx context.Context, idx int, heartbeat uint64) error {
	return s.storage.Set(ctx, HeartbeatKey(idx), strconv.FormatUint(heartbeat, 10))
}

// Heartbeat reads keeper idx's last published heartbeat. ok is false if
// the keeper has never published one.
func (s *Store) Heartbeat(ctx context.Context, idx int) (uint64, bool, error) {
	val, ok, err := s.storage.Get(ctx, HeartbeatKey(idx))
	if err != nil || !ok {
		return 0, ok, err
	}
	v, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, tribfs.New(tribfs.ErrCorruptLog, "heartbeat key %d: %v", idx, err)
	}
	return v, true, nil
}

// AllHeartbeats reads every keeper's heartbeat in [0, count).
func (s *Store) AllHeartbeats(ctx context.Context, count int) ([]uint64, []bool, error) {
	heartbeats := make([]uint64, count)
	present := make([]bool, count)
	for i := 0; i < count; i++ {
		v, ok, err := s.Heartbeat(ctx, i)
		if err != nil {
			return nil, nil, err
		}
		heartbeats[i] = v
		present[i] = ok
	}
	return heartbeats, present, nil
}

// PublishLiveList overwrites the shared last-published live list.
func (s *Store) PublishLiveList(ctx context.Context, live []bool) error {
	return s.storage.Set(ctx, LiveListKey, encodeLiveList(live))
}

// LiveList reads the shared last-published live list. ok is false if no
// leader has ever published one, in which case callers should treat
// every backend as dead (per §4.G step 2).
func (s *Store) LiveList(ctx context.Context) ([]bool, bool, error) {
	val, ok, err := s.storage.Get(ctx, LiveListKey)
	if err != nil || !ok {
		return nil, ok, err
	}
	return decodeLiveList(val), true, nil
}

func encodeLiveList(live []bool) string {
	parts := make([]string, len(live))
	for i, v := range live {
		if v {
			parts[i] = "1"
		} else {
			parts[i] = "0"
		}
	}
	return strings.Join(parts, ",")
}

func decodeLiveList(s string) []bool {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]bool, len(parts))
	for i, p := range parts {
		out[i] = p == "1"
	}
	return out
}

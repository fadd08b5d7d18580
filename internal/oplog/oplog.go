// Package oplog implements the write-ahead operation log used to
// materialize string and list values from possibly reordered, possibly
// duplicated replica updates: a Lamport-clock total order plus a
// union-merge repair step.
package oplog

import (
	"bytes"
	"sort"

	"tribfs"
)

// Kind is the operation a single log record performs against the
// materialized value it belongs to.
type Kind uint8

const (
	StringSet Kind = iota
	ListAppend
	ListRemove
	ListClear
)

// Record is a single appended mutation: {clock, val, kind}.
type Record struct {
	Clock uint64
	Val   string
	Kind  Kind
}

// SortByClock returns a new slice ordered ascending by Clock, ties broken
// by byte-wise comparison of Val so the order is total (invariant O1).
func SortByClock(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Clock != out[j].Clock {
			return out[i].Clock < out[j].Clock
		}
		return bytes.Compare([]byte(out[i].Val), []byte(out[j].Val)) < 0
	})
	return out
}

// Union returns the deduplicated union of a and b: every distinct
// (Clock, Val, Kind) triple appears exactly once, sorted by clock. Union
// is idempotent (Union(a, a) == a after dedup) and commutative.
func Union(a, b []Record) []Record {
	seen := make(map[Record]struct{}, len(a)+len(b))
	merged := make([]Record, 0, len(a)+len(b))
	for _, r := range append(append([]Record{}, a...), b...) {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		merged = append(merged, r)
	}
	return SortByClock(merged)
}

// ReplayString materializes the last-write-wins value at the maximum
// clock among StringSet records. Returns ok=false if records is empty (no
// value has ever been set). Fails with tribfs.ErrCorruptLog if any record
// is not a StringSet.
func ReplayString(records []Record) (value string, ok bool, err error) {
	if len(records) == 0 {
		return "", false, nil
	}
	sorted := SortByClock(records)
	for _, r := range sorted {
		if r.Kind != StringSet {
			return "", false, tribfs.New(tribfs.ErrCorruptLog, "record with kind %d in string replay", r.Kind)
		}
	}
	last := sorted[len(sorted)-1]
	return last.Val, true, nil
}

// ReplayList materializes a list value by replaying append/remove/clear
// records in clock order: append pushes, remove drops all entries equal
// to Val, clear empties the sequence (invariant O2). Fails with
// tribfs.ErrCorruptLog if any record is not one of the three list kinds.
func ReplayList(records []Record) ([]string, error) {
	sorted := SortByClock(records)
	var out []string
	for _, r := range sorted {
		switch r.Kind {
		case ListAppend:
			out = append(out, r.Val)
		case ListRemove:
			filtered := out[:0]
			for _, v := range out {
				if v != r.Val {
					filtered = append(filtered, v)
				}
			}
			out = filtered
		case ListClear:
			out = nil
		default:
			return nil, tribfs.New(tribfs.ErrCorruptLog, "record with kind %d in list replay", r.Kind)
		}
	}
	return out, nil
}

package oplog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortByClockTiesBrokenByValue(t *testing.T) {
	in := []Record{
		{Clock: 1, Val: "b", Kind: StringSet},
		{Clock: 1, Val: "a", Kind: StringSet},
		{Clock: 0, Val: "z", Kind: StringSet},
	}
	out := SortByClock(in)
	require.Equal(t, []Record{
		{Clock: 0, Val: "z", Kind: StringSet},
		{Clock: 1, Val: "a", Kind: StringSet},
		{Clock: 1, Val: "b", Kind: StringSet},
	}, out)
}

func TestUnionIdempotentAndCommutative(t *testing.T) {
	a := []Record{{Clock: 1, Val: "x", Kind: ListAppend}, {Clock: 2, Val: "y", Kind: ListAppend}}
	b := []Record{{Clock: 2, Val: "y", Kind: ListAppend}, {Clock: 3, Val: "z", Kind: ListAppend}}

	require.Equal(t, Union(a, a), a)
	require.Equal(t, Union(a, b), Union(b, a))

	merged := Union(a, b)
	require.Len(t, merged, 3)
}

func TestReplayStringLastWriteWins(t *testing.T) {
	records := []Record{
		{Clock: 3, Val: "x", Kind: StringSet},
		{Clock: 1, Val: "a", Kind: StringSet},
		{Clock: 2, Val: "b", Kind: StringSet},
	}
	val, ok, err := ReplayString(records)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "x", val)
}

func TestReplayStringEmpty(t *testing.T) {
	val, ok, err := ReplayString(nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, val)
}

func TestReplayStringCorrupt(t *testing.T) {
	_, _, err := ReplayString([]Record{{Clock: 1, Val: "x", Kind: ListAppend}})
	require.Error(t, err)
}

func TestReplayListAppendRemoveClear(t *testing.T) {
	records := []Record{
		{Clock: 1, Val: "1", Kind: ListAppend},
		{Clock: 2, Val: "2", Kind: ListAppend},
		{Clock: 3, Val: "1", Kind: ListRemove},
	}
	out, err := ReplayList(records)
	require.NoError(t, err)
	require.Equal(t, []string{"2"}, out)

	cleared, err := ReplayList(append(records, Record{Clock: 4, Val: "", Kind: ListClear}))
	require.NoError(t, err)
	require.Empty(t, cleared)
}

func TestReplayListCorrupt(t *testing.T) {
	_, err := ReplayList([]Record{{Clock: 1, Val: "x", Kind: StringSet}})
	require.Error(t, err)
}

func TestReplayListOrderDeterministicAcrossUnionDirection(t *testing.T) {
	a := []Record{{Clock: 1, Val: "1", Kind: ListAppend}, {Clock: 3, Val: "1", Kind: ListRemove}}
	b := []Record{{Clock: 2, Val: "2", Kind: ListAppend}}

	ab, err := ReplayList(Union(a, b))
	require.NoError(t, err)
	ba, err := ReplayList(Union(b, a))
	require.NoError(t, err)
	require.Equal(t, ab, ba)
	require.Equal(t, []string{"2"}, ab)
}

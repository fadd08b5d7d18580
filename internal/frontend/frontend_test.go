package frontend

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"tribfs"
)

func TestAccessRootRequiresExecuteBit(t *testing.T) {
	req := tribfs.FileRequest{UID: 0}
	attr := tribfs.Attr{Mode: 0o644}
	require.NoError(t, Access(req, attr, 0b100))
	require.Error(t, Access(req, attr, 0b001))

	attr.Mode = 0o744
	require.NoError(t, Access(req, attr, 0b001))
}

func TestAccessOwnerGroupOther(t *testing.T) {
	attr := tribfs.Attr{Mode: 0o640, UID: 10, GID: 20}

	require.NoError(t, Access(tribfs.FileRequest{UID: 10, GID: 20}, attr, 0b110))
	require.Error(t, Access(tribfs.FileRequest{UID: 10, GID: 20}, attr, 0b001))

	require.NoError(t, Access(tribfs.FileRequest{UID: 99, GID: 20}, attr, 0b100))
	require.Error(t, Access(tribfs.FileRequest{UID: 99, GID: 20}, attr, 0b010))

	require.Error(t, Access(tribfs.FileRequest{UID: 99, GID: 99}, attr, 0b100))
}

func TestCheckStickyAllowsOwnerOfParentOrTarget(t *testing.T) {
	parent := tribfs.Attr{Ino: 1, Mode: 0o1777, UID: 5}
	target := tribfs.Attr{Ino: 2, UID: 7}

	require.NoError(t, CheckSticky(tribfs.FileRequest{UID: 0}, parent, target))
	require.NoError(t, CheckSticky(tribfs.FileRequest{UID: 5}, parent, target))
	require.NoError(t, CheckSticky(tribfs.FileRequest{UID: 7}, parent, target))
	require.Error(t, CheckSticky(tribfs.FileRequest{UID: 99}, parent, target))
}

func TestCheckStickyNoopWithoutBit(t *testing.T) {
	parent := tribfs.Attr{Mode: 0o777}
	target := tribfs.Attr{UID: 7}
	require.NoError(t, CheckSticky(tribfs.FileRequest{UID: 99}, parent, target))
}

func TestClockSaturates(t *testing.T) {
	f := &Frontend{}
	f.clock.Store(math.MaxUint64)
	_, err := f.Clock(0)
	require.Error(t, err)
}

func TestClockAdvancesMonotonically(t *testing.T) {
	f := New(nil)
	first, err := f.Clock(0)
	require.NoError(t, err)
	second, err := f.Clock(0)
	require.NoError(t, err)
	require.Greater(t, second, first)
}

type fakeBins struct {
	entries []tribfs.DirEntry
}

func (b *fakeBins) FSBin(string) (tribfs.ServerFileSystem, error) {
	return &fakeFS{entries: b.entries}, nil
}

type fakeFS struct {
	tribfs.ServerFileSystem
	entries []tribfs.DirEntry
}

func (f *fakeFS) ReadDir(_ context.Context, _ tribfs.FileRequest, _ uint64, _ uint64, offset int64) (tribfs.DirEntry, bool, error) {
	if offset < 0 || int(offset) >= len(f.entries) {
		return tribfs.DirEntry{}, false, nil
	}
	return f.entries[offset], true, nil
}

func TestReadDirPageCompleteness(t *testing.T) {
	entries := []tribfs.DirEntry{
		{Name: ".", Ino: 1, Kind: tribfs.KindDirectory},
		{Name: "..", Ino: 1, Kind: tribfs.KindDirectory},
		{Name: "a", Ino: 2, Kind: tribfs.KindRegular},
		{Name: "b", Ino: 3, Kind: tribfs.KindRegular},
	}
	f := New(&fakeBins{entries: entries})

	var got []tribfs.DirEntry
	offset := int64(0)
	for {
		page, err := f.ReadDirPage(context.Background(), tribfs.FileRequest{}, 1, 1, offset, func(tribfs.DirEntry) bool { return true })
		require.NoError(t, err)
		got = append(got, page...)
		offset += int64(len(page))
		if len(page) == 0 {
			break
		}
	}
	require.Equal(t, entries, got)
}

func TestLookupRejectsOverlongName(t *testing.T) {
	f := New(nil)
	longName := strings.Repeat("a", tribfs.MaxNameLength+1)
	_, err := f.Lookup(context.Background(), tribfs.FileRequest{}, 1, longName)
	require.Error(t, err)
	var e *tribfs.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, tribfs.ErrInvalidFilename, e.Kind)
}

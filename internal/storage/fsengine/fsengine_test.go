package fsengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"tribfs"
)

func TestInitCreatesRootOnce(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{UID: 42}))
	attr, err := e.GetAttr(ctx, tribfs.FileRequest{}, rootIno)
	require.NoError(t, err)
	require.Equal(t, uint32(42), attr.UID)
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{UID: 99}))
	attr, err = e.GetAttr(ctx, tribfs.FileRequest{}, rootIno)
	require.NoError(t, err)
	require.Equal(t, uint32(42), attr.UID, "second Init must not re-create the root")
}

func TestCreateWriteReadRoundTrip(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))

	attr, handle, err := e.Create(ctx, tribfs.FileRequest{UID: 1}, rootIno, "a.txt", 0o644)
	require.NoError(t, err)
	require.Equal(t, tribfs.KindRegular, attr.Kind)

	n, err := e.Write(ctx, tribfs.FileRequest{}, attr.Ino, handle, 0, []byte("hello"), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(5), n)

	data, err := e.Read(ctx, tribfs.FileRequest{}, attr.Ino, handle, 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	got, err := e.Lookup(ctx, tribfs.FileRequest{}, rootIno, "a.txt")
	require.NoError(t, err)
	require.Equal(t, attr.Ino, got.Ino)
}

func TestCreateDuplicateNameFails(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))
	_, _, err := e.Create(ctx, tribfs.FileRequest{}, rootIno, "dup", 0o644)
	require.NoError(t, err)
	_, _, err = e.Create(ctx, tribfs.FileRequest{}, rootIno, "dup", 0o644)
	require.Error(t, err)
	var fsErr *tribfs.Error
	require.ErrorAs(t, err, &fsErr)
	require.Equal(t, tribfs.ErrPathTaken, fsErr.Kind)
}

func TestMkdirAndReadDirPaging(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))

	_, err := e.Mkdir(ctx, tribfs.FileRequest{}, rootIno, "sub", 0o755)
	require.NoError(t, err)
	_, _, err = e.Create(ctx, tribfs.FileRequest{}, rootIno, "file", 0o644)
	require.NoError(t, err)

	handle, err := e.OpenDir(ctx, tribfs.FileRequest{}, rootIno)
	require.NoError(t, err)

	var names []string
	for offset := int64(0); ; offset++ {
		entry, ok, err := e.ReadDir(ctx, tribfs.FileRequest{}, rootIno, handle, offset)
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, entry.Name)
	}
	require.ElementsMatch(t, []string{"sub", "file"}, names)
	require.NoError(t, e.ReleaseDir(ctx, tribfs.FileRequest{}, rootIno, handle))
}

func TestUnlinkRemovesEntry(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))
	_, _, err := e.Create(ctx, tribfs.FileRequest{}, rootIno, "gone", 0o644)
	require.NoError(t, err)

	require.NoError(t, e.Unlink(ctx, tribfs.FileRequest{}, rootIno, "gone"))
	_, err = e.Lookup(ctx, tribfs.FileRequest{}, rootIno, "gone")
	require.Error(t, err)
}

func TestRenameOverwritesDestination(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))
	src, _, err := e.Create(ctx, tribfs.FileRequest{}, rootIno, "src", 0o644)
	require.NoError(t, err)
	_, _, err = e.Create(ctx, tribfs.FileRequest{}, rootIno, "dst", 0o644)
	require.NoError(t, err)

	require.NoError(t, e.Rename(ctx, tribfs.FileRequest{}, rootIno, "src", rootIno, "dst"))
	got, err := e.Lookup(ctx, tribfs.FileRequest{}, rootIno, "dst")
	require.NoError(t, err)
	require.Equal(t, src.Ino, got.Ino)
	_, err = e.Lookup(ctx, tribfs.FileRequest{}, rootIno, "src")
	require.Error(t, err)
}

func TestXattrRoundTrip(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))
	attr, _, err := e.Create(ctx, tribfs.FileRequest{}, rootIno, "f", 0o644)
	require.NoError(t, err)

	require.NoError(t, e.SetXattr(ctx, tribfs.FileRequest{}, attr.Ino, "user.tag", []byte("v1")))
	got, err := e.GetXattr(ctx, tribfs.FileRequest{}, attr.Ino, "user.tag")
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	names, err := e.ListXattr(ctx, tribfs.FileRequest{}, attr.Ino)
	require.NoError(t, err)
	require.Equal(t, []string{"user.tag"}, names)
}

func TestAccessDeniesWithoutModeBit(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Init(ctx, tribfs.FileRequest{}))
	attr, _, err := e.Create(ctx, tribfs.FileRequest{UID: 7}, rootIno, "f", 0o600)
	require.NoError(t, err)

	require.NoError(t, e.Access(ctx, tribfs.FileRequest{UID: 7}, attr.Ino, 0o4))
	require.Error(t, e.Access(ctx, tribfs.FileRequest{UID: 8}, attr.Ino, 0o4))
	require.NoError(t, e.Access(ctx, tribfs.FileRequest{UID: 0}, attr.Ino, 0o4))
}

func TestStorageCapabilityViaEmbeddedMemstore(t *testing.T) {
	e := New()
	ctx := context.Background()
	require.NoError(t, e.Set(ctx, "k", "v"))
	val, ok, err := e.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", val)
}

package frontend

import (
	"context"

	"tribfs"
)

// WireAdaptor exposes a Frontend as a plain tribfs.ServerFileSystem, for
// cmd/trib-front's "frontend" server type: the gRPC service only knows
// the kernel-adaptor-agnostic capability shape, while Frontend's own
// Unlink/Rename additionally want the parent directory's Attr (for the
// sticky-bit check) and ReadDirPage wants a page-fits predicate rather
// than a single-entry cursor. WireAdaptor resolves both gaps itself:
// fetching the parent Attr with an extra GetAttr call, and reading one
// directory entry per ReadDir call with a fits func that accepts only the
// first entry offered.
type WireAdaptor struct {
	fe *Frontend
}

// NewWireAdaptor wraps fe for RPC exposure.
func NewWireAdaptor(fe *Frontend) *WireAdaptor {
	return &WireAdaptor{fe: fe}
}

func (w *WireAdaptor) Lookup(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) (tribfs.Attr, error) {
	return w.fe.Lookup(ctx, req, parent, name)
}

func (w *WireAdaptor) GetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64) (tribfs.Attr, error) {
	return w.fe.GetAttr(ctx, req, ino)
}

func (w *WireAdaptor) SetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64, attr tribfs.Attr, valid tribfs.AttrValid) (tribfs.Attr, error) {
	return w.fe.SetAttr(ctx, req, ino, attr, valid)
}

func (w *WireAdaptor) Read(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, size uint32) ([]byte, error) {
	return w.fe.Read(ctx, req, ino, handle, offset, size)
}

func (w *WireAdaptor) Write(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, data []byte, lockOwner *uint64) (uint32, error) {
	return w.fe.Write(ctx, req, ino, handle, offset, data, lockOwner)
}

func (w *WireAdaptor) Create(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, uint64, error) {
	return w.fe.Create(ctx, req, parent, name, mode)
}

func (w *WireAdaptor) Unlink(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) error {
	parentAttr, err := w.fe.GetAttr(ctx, req, parent)
	if err != nil {
		return err
	}
	return w.fe.Unlink(ctx, req, parentAttr, parent, name)
}

func (w *WireAdaptor) Rename(ctx context.Context, req tribfs.FileRequest, oldParent uint64, oldName string, newParent uint64, newName string) error {
	oldParentAttr, err := w.fe.GetAttr(ctx, req, oldParent)
	if err != nil {
		return err
	}
	return w.fe.Rename(ctx, req, oldParentAttr, oldParent, oldName, newParent, newName)
}

func (w *WireAdaptor) Mkdir(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, error) {
	return w.fe.Mkdir(ctx, req, parent, name, mode)
}

func (w *WireAdaptor) Open(ctx context.Context, req tribfs.FileRequest, ino uint64, flags uint32) (uint64, error) {
	return w.fe.Open(ctx, req, ino, flags)
}

func (w *WireAdaptor) Release(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	return w.fe.Release(ctx, req, ino, handle)
}

func (w *WireAdaptor) OpenDir(ctx context.Context, req tribfs.FileRequest, ino uint64) (uint64, error) {
	return w.fe.OpenDir(ctx, req, ino)
}

func (w *WireAdaptor) ReadDir(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64) (tribfs.DirEntry, bool, error) {
	first := true
	page, err := w.fe.ReadDirPage(ctx, req, ino, handle, offset, func(tribfs.DirEntry) bool {
		if !first {
			return false
		}
		first = false
		return true
	})
	if err != nil {
		return tribfs.DirEntry{}, false, err
	}
	if len(page) == 0 {
		return tribfs.DirEntry{}, false, nil
	}
	return page[0], true, nil
}

func (w *WireAdaptor) ReleaseDir(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	return w.fe.ReleaseDir(ctx, req, ino, handle)
}

func (w *WireAdaptor) Access(ctx context.Context, req tribfs.FileRequest, ino uint64, mask uint32) error {
	return w.fe.Access(ctx, req, ino, mask)
}

func (w *WireAdaptor) SetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string, value []byte) error {
	return w.fe.SetXattr(ctx, req, ino, name, value)
}

func (w *WireAdaptor) GetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string) ([]byte, error) {
	return w.fe.GetXattr(ctx, req, ino, name)
}

func (w *WireAdaptor) ListXattr(ctx context.Context, req tribfs.FileRequest, ino uint64) ([]string, error) {
	return w.fe.ListXattr(ctx, req, ino)
}

func (w *WireAdaptor) Init(ctx context.Context, req tribfs.FileRequest) error {
	return w.fe.Init(ctx, req)
}

var _ tribfs.ServerFileSystem = (*WireAdaptor)(nil)

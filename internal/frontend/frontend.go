// Package frontend implements the frontend adaptor (component F): it
// translates kernel-filesystem-shaped calls into router calls against the
// mounting user's bin, performs the POSIX access check and sticky-bit
// enforcement, pages directory listings, and maintains the frontend's own
// monotonic clock.
package frontend

import (
	"context"
	"math"
	"sync/atomic"

	"tribfs"
)

// Frontend adapts kernel-level filesystem callbacks onto a
// FileSystemBinStorage, one bin per mounting user.
type Frontend struct {
	bins  tribfs.FileSystemBinStorage
	clock atomic.Uint64
}

// New builds a Frontend dispatching through bins. The frontend clock
// starts at 1, mirroring the reference driver's initial value.
func New(bins tribfs.FileSystemBinStorage) *Frontend {
	f := &Frontend{bins: bins}
	f.clock.Store(1)
	return f
}

// Clock synchronizes the frontend's own monotonic counter to at least
// atLeast and returns the new value. It saturates at math.MaxUint64 and
// returns ErrMaxedSeq rather than wrapping, after which no further
// mutation is accepted from this frontend. Its value is advisory: the
// authoritative write ordering is established by the router's Lamport
// clock sync against the backends, not by this counter.
func (f *Frontend) Clock(atLeast uint64) (uint64, error) {
	for {
		cur := f.clock.Load()
		if cur == math.MaxUint64 {
			return 0, tribfs.New(tribfs.ErrMaxedSeq, "frontend clock saturated")
		}
		next := cur
		if atLeast > next {
			next = atLeast
		} else {
			next = cur + 1
		}
		if next < cur { // overflow guard
			next = math.MaxUint64
		}
		if f.clock.CompareAndSwap(cur, next) {
			return next, nil
		}
	}
}

// fsFor resolves the ServerFileSystem capability for the calling user's
// bin, identified by uid — the bin dispatcher maps one bin per mounting
// user.
func (f *Frontend) fsFor(req tribfs.FileRequest) (tribfs.ServerFileSystem, error) {
	return f.bins.FSBin(uidBinName(req.UID))
}

func uidBinName(uid uint32) string {
	return uitoa(uid)
}

func uitoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// checkName enforces the MAX_NAME_LENGTH guard the router and backends
// never get a chance to reject on their own, since it's a pure syntactic
// check on the request.
func checkName(name string) error {
	if len(name) > tribfs.MaxNameLength {
		return tribfs.New(tribfs.ErrInvalidFilename, "name %q exceeds %d bytes", name, tribfs.MaxNameLength)
	}
	return nil
}

// Access implements the classical POSIX mode-bit check from §4.F: root
// (uid 0) passes unless execute is requested and no execute bit is set
// anywhere; otherwise the owner/group/other triads are consulted in
// order.
func Access(req tribfs.FileRequest, attr tribfs.Attr, mask uint32) error {
	const (
		maskRead    = 0b100
		maskWrite   = 0b010
		maskExecute = 0b001
	)
	if req.UID == 0 {
		if mask&maskExecute != 0 && attr.Mode&0o111 == 0 {
			return tribfs.New(tribfs.ErrPermission, "no execute bit set for root exec request on inode %d", attr.Ino)
		}
		return nil
	}

	var bits uint32
	switch {
	case req.UID == attr.UID:
		bits = (attr.Mode >> 6) & 0o7
	case req.GID == attr.GID:
		bits = (attr.Mode >> 3) & 0o7
	default:
		bits = attr.Mode & 0o7
	}

	want := uint32(0)
	if mask&maskRead != 0 {
		want |= maskRead
	}
	if mask&maskWrite != 0 {
		want |= maskWrite
	}
	if mask&maskExecute != 0 {
		want |= maskExecute
	}

	if bits&want != want {
		return tribfs.New(tribfs.ErrPermission, "mode %o does not grant mask %o to uid %d on inode %d", attr.Mode, mask, req.UID, attr.Ino)
	}
	return nil
}

// stickyBitSet is the standard S_ISVTX bit (01000, octal).
const stickyBitSet = 0o1000

// CheckSticky enforces the sticky-bit rule: on unlink and rename-into
// targets, when the parent directory has the sticky bit set, a non-root
// caller must own either the parent directory or the target entry.
func CheckSticky(req tribfs.FileRequest, parent, target tribfs.Attr) error {
	if parent.Mode&stickyBitSet == 0 {
		return nil
	}
	if req.UID == 0 {
		return nil
	}
	if req.UID == parent.UID || req.UID == target.UID {
		return nil
	}
	return tribfs.New(tribfs.ErrPermission, "sticky bit: uid %d owns neither parent %d nor target %d", req.UID, parent.Ino, target.Ino)
}

// Lookup translates a kernel lookup callback.
func (f *Frontend) Lookup(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) (tribfs.Attr, error) {
	if err := checkName(name); err != nil {
		return tribfs.Attr{}, err
	}
	fs, err := f.fsFor(req)
	if err != nil {
		return tribfs.Attr{}, err
	}
	return fs.Lookup(ctx, req, parent, name)
}

// GetAttr translates a kernel getattr callback.
func (f *Frontend) GetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64) (tribfs.Attr, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return tribfs.Attr{}, err
	}
	return fs.GetAttr(ctx, req, ino)
}

// SetAttr translates a kernel setattr callback.
func (f *Frontend) SetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64, attr tribfs.Attr, valid tribfs.AttrValid) (tribfs.Attr, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return tribfs.Attr{}, err
	}
	if _, err := f.Clock(0); err != nil {
		return tribfs.Attr{}, err
	}
	return fs.SetAttr(ctx, req, ino, attr, valid)
}

// Read translates a kernel read callback.
func (f *Frontend) Read(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, size uint32) ([]byte, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return nil, err
	}
	return fs.Read(ctx, req, ino, handle, offset, size)
}

// Write translates a kernel write callback, bumping the frontend clock
// before issuing the mutation.
func (f *Frontend) Write(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, data []byte, lockOwner *uint64) (uint32, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return 0, err
	}
	if _, err := f.Clock(0); err != nil {
		return 0, err
	}
	return fs.Write(ctx, req, ino, handle, offset, data, lockOwner)
}

// Create translates a kernel create callback.
func (f *Frontend) Create(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, uint64, error) {
	if err := checkName(name); err != nil {
		return tribfs.Attr{}, 0, err
	}
	fs, err := f.fsFor(req)
	if err != nil {
		return tribfs.Attr{}, 0, err
	}
	if _, err := f.Clock(0); err != nil {
		return tribfs.Attr{}, 0, err
	}
	return fs.Create(ctx, req, parent, name, mode)
}

// Unlink translates a kernel unlink callback, enforcing the sticky bit.
func (f *Frontend) Unlink(ctx context.Context, req tribfs.FileRequest, parentAttr tribfs.Attr, parent uint64, name string) error {
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	target, err := fs.Lookup(ctx, req, parent, name)
	if err != nil {
		return err
	}
	if err := CheckSticky(req, parentAttr, target); err != nil {
		return err
	}
	if _, err := f.Clock(0); err != nil {
		return err
	}
	return fs.Unlink(ctx, req, parent, name)
}

// Rename translates a kernel rename callback. The sticky-bit check uses
// the source directory's attributes (oldParentAttr) against the entry
// being moved; the destination directory's sticky bit is not checked.
func (f *Frontend) Rename(ctx context.Context, req tribfs.FileRequest, oldParentAttr tribfs.Attr, oldParent uint64, oldName string, newParent uint64, newName string) error {
	if err := checkName(newName); err != nil {
		return err
	}
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	target, err := fs.Lookup(ctx, req, oldParent, oldName)
	if err != nil {
		return err
	}
	if err := CheckSticky(req, oldParentAttr, target); err != nil {
		return err
	}
	if _, err := f.Clock(0); err != nil {
		return err
	}
	return fs.Rename(ctx, req, oldParent, oldName, newParent, newName)
}

// Mkdir translates a kernel mkdir callback.
func (f *Frontend) Mkdir(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, error) {
	if err := checkName(name); err != nil {
		return tribfs.Attr{}, err
	}
	fs, err := f.fsFor(req)
	if err != nil {
		return tribfs.Attr{}, err
	}
	if _, err := f.Clock(0); err != nil {
		return tribfs.Attr{}, err
	}
	return fs.Mkdir(ctx, req, parent, name, mode)
}

// Open translates a kernel open callback.
func (f *Frontend) Open(ctx context.Context, req tribfs.FileRequest, ino uint64, flags uint32) (uint64, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return 0, err
	}
	return fs.Open(ctx, req, ino, flags)
}

// Release translates a kernel release callback.
func (f *Frontend) Release(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	return fs.Release(ctx, req, ino, handle)
}

// OpenDir translates a kernel opendir callback.
func (f *Frontend) OpenDir(ctx context.Context, req tribfs.FileRequest, ino uint64) (uint64, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return 0, err
	}
	return fs.OpenDir(ctx, req, ino)
}

// ReleaseDir translates a kernel releasedir callback.
func (f *Frontend) ReleaseDir(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	return fs.ReleaseDir(ctx, req, ino, handle)
}

// ReadDirPage fills buffer with directory entries starting at offset
// until fits returns false or end-of-stream is reached, matching the
// single-entry-per-call readdir contract: each underlying call returns
// one (inode, next-offset, kind, name) tuple or end-of-stream.
func (f *Frontend) ReadDirPage(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, fits func(tribfs.DirEntry) bool) ([]tribfs.DirEntry, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return nil, err
	}
	var page []tribfs.DirEntry
	for {
		entry, ok, err := fs.ReadDir(ctx, req, ino, handle, offset)
		if err != nil {
			return page, err
		}
		if !ok {
			return page, nil
		}
		if !fits(entry) {
			return page, nil
		}
		page = append(page, entry)
		offset++
	}
}

// Access translates a kernel access callback.
func (f *Frontend) Access(ctx context.Context, req tribfs.FileRequest, ino uint64, mask uint32) error {
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	return fs.Access(ctx, req, ino, mask)
}

// SetXattr translates a kernel setxattr callback.
func (f *Frontend) SetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string, value []byte) error {
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	if _, err := f.Clock(0); err != nil {
		return err
	}
	return fs.SetXattr(ctx, req, ino, name, value)
}

// GetXattr translates a kernel getxattr callback.
func (f *Frontend) GetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string) ([]byte, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return nil, err
	}
	return fs.GetXattr(ctx, req, ino, name)
}

// ListXattr translates a kernel listxattr callback.
func (f *Frontend) ListXattr(ctx context.Context, req tribfs.FileRequest, ino uint64) ([]string, error) {
	fs, err := f.fsFor(req)
	if err != nil {
		return nil, err
	}
	return fs.ListXattr(ctx, req, ino)
}

// Init is issued once at mount time so both replicas for the mounting
// user's bin lazily initialize their root directory.
func (f *Frontend) Init(ctx context.Context, req tribfs.FileRequest) error {
	fs, err := f.fsFor(req)
	if err != nil {
		return err
	}
	return fs.Init(ctx, req)
}

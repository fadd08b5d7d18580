// Package fsengine is a reference implementation of the per-backend
// storage engine (component B, external per the operation-log/router/
// keeper core, but something has to answer a backend's RPCs): an
// in-memory inode table, directory blocks, file content, and extended
// attributes, plus the auxiliary key-value/key-list store borrowed from
// memstore so one Engine satisfies both capabilities a backend exposes.
package fsengine

import (
	"context"
	"sort"
	"sync"
	"time"

	"tribfs"
	"tribfs/internal/storage/memstore"
)

const rootIno uint64 = 1

type inode struct {
	attr    tribfs.Attr
	data    []byte
	entries map[string]tribfs.DirEntry // only populated for directories
}

// Engine is a single replica's full storage capability: ServerFileSystem
// over an in-memory inode table, and Storage via an embedded memstore.
type Engine struct {
	*memstore.Store

	mu         sync.Mutex
	inodes     map[uint64]*inode
	nextIno    uint64
	nextHandle uint64
	dirCursors map[uint64][]string // handle -> sorted entry names snapshot
}

// New returns an Engine with no root directory yet; Init creates it.
func New() *Engine {
	return &Engine{
		Store:      memstore.New(),
		inodes:     make(map[uint64]*inode),
		nextIno:    rootIno + 1,
		dirCursors: make(map[uint64][]string),
	}
}

// Init lazily creates the root directory, owned by the first caller to
// mount, matching the frontend's per-bin lazy-initialization contract.
func (e *Engine) Init(_ context.Context, req tribfs.FileRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inodes[rootIno]; ok {
		return nil
	}
	now := time.Now()
	e.inodes[rootIno] = &inode{
		attr: tribfs.Attr{
			Ino:   rootIno,
			Kind:  tribfs.KindDirectory,
			Mode:  0o755,
			UID:   req.UID,
			GID:   req.GID,
			Nlink: 2,
			Atime: now, Mtime: now, Ctime: now,
		},
		entries: make(map[string]tribfs.DirEntry),
	}
	return nil
}

func (e *Engine) allocIno() uint64 {
	ino := e.nextIno
	e.nextIno++
	return ino
}

func (e *Engine) allocHandle() uint64 {
	e.nextHandle++
	return e.nextHandle
}

func notFound(ino uint64) error {
	return tribfs.New(tribfs.ErrFileDoesNotExist, "no inode %d", ino)
}

func (e *Engine) dirAt(parent uint64) (*inode, error) {
	n, ok := e.inodes[parent]
	if !ok {
		return nil, notFound(parent)
	}
	if n.attr.Kind != tribfs.KindDirectory {
		return nil, tribfs.New(tribfs.ErrInvalidFilename, "inode %d is not a directory", parent)
	}
	return n, nil
}

func (e *Engine) Lookup(_ context.Context, _ tribfs.FileRequest, parent uint64, name string) (tribfs.Attr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dir, err := e.dirAt(parent)
	if err != nil {
		return tribfs.Attr{}, err
	}
	entry, ok := dir.entries[name]
	if !ok {
		return tribfs.Attr{}, tribfs.New(tribfs.ErrFileDoesNotExist, "no entry %q in directory %d", name, parent)
	}
	return e.inodes[entry.Ino].attr, nil
}

func (e *Engine) GetAttr(_ context.Context, _ tribfs.FileRequest, ino uint64) (tribfs.Attr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return tribfs.Attr{}, notFound(ino)
	}
	return n.attr, nil
}

func (e *Engine) SetAttr(_ context.Context, _ tribfs.FileRequest, ino uint64, attr tribfs.Attr, valid tribfs.AttrValid) (tribfs.Attr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return tribfs.Attr{}, notFound(ino)
	}
	if valid&tribfs.AttrMode != 0 {
		n.attr.Mode = attr.Mode
	}
	if valid&tribfs.AttrUID != 0 {
		n.attr.UID = attr.UID
	}
	if valid&tribfs.AttrGID != 0 {
		n.attr.GID = attr.GID
	}
	if valid&tribfs.AttrSize != 0 {
		n.attr.Size = attr.Size
		if uint64(len(n.data)) > attr.Size {
			n.data = n.data[:attr.Size]
		} else if uint64(len(n.data)) < attr.Size {
			grown := make([]byte, attr.Size)
			copy(grown, n.data)
			n.data = grown
		}
	}
	if valid&tribfs.AttrAtime != 0 {
		n.attr.Atime = attr.Atime
	}
	if valid&tribfs.AttrMtime != 0 {
		n.attr.Mtime = attr.Mtime
	}
	n.attr.Ctime = time.Now()
	return n.attr, nil
}

func (e *Engine) Read(_ context.Context, _ tribfs.FileRequest, ino, _ uint64, offset int64, size uint32) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return nil, notFound(ino)
	}
	if offset < 0 || uint64(offset) >= uint64(len(n.data)) {
		return nil, nil
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(len(n.data)) {
		end = uint64(len(n.data))
	}
	out := make([]byte, end-uint64(offset))
	copy(out, n.data[offset:end])
	return out, nil
}

func (e *Engine) Write(_ context.Context, _ tribfs.FileRequest, ino, _ uint64, offset int64, data []byte, _ *uint64) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return 0, notFound(ino)
	}
	end := uint64(offset) + uint64(len(data))
	if end > uint64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[offset:], data)
	if uint64(len(n.data)) > n.attr.Size {
		n.attr.Size = uint64(len(n.data))
	}
	n.attr.Mtime = time.Now()
	return uint32(len(data)), nil
}

func (e *Engine) Create(_ context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dir, err := e.dirAt(parent)
	if err != nil {
		return tribfs.Attr{}, 0, err
	}
	if _, exists := dir.entries[name]; exists {
		return tribfs.Attr{}, 0, tribfs.New(tribfs.ErrPathTaken, "entry %q already exists in directory %d", name, parent)
	}
	ino := e.allocIno()
	now := time.Now()
	n := &inode{attr: tribfs.Attr{
		Ino: ino, Kind: tribfs.KindRegular, Mode: mode, UID: req.UID, GID: req.GID,
		Nlink: 1, Atime: now, Mtime: now, Ctime: now,
	}}
	e.inodes[ino] = n
	dir.entries[name] = tribfs.DirEntry{Name: name, Ino: ino, Kind: tribfs.KindRegular}
	n.attr.OpenHandle++
	handle := e.allocHandle()
	return n.attr, handle, nil
}

func (e *Engine) Unlink(_ context.Context, _ tribfs.FileRequest, parent uint64, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	dir, err := e.dirAt(parent)
	if err != nil {
		return err
	}
	entry, ok := dir.entries[name]
	if !ok {
		return tribfs.New(tribfs.ErrFileDoesNotExist, "no entry %q in directory %d", name, parent)
	}
	delete(dir.entries, name)
	if n, ok := e.inodes[entry.Ino]; ok {
		n.attr.Nlink--
		if n.attr.Nlink == 0 && n.attr.OpenHandle == 0 {
			delete(e.inodes, entry.Ino)
		}
	}
	return nil
}

func (e *Engine) Rename(_ context.Context, _ tribfs.FileRequest, oldParent uint64, oldName string, newParent uint64, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	oldDir, err := e.dirAt(oldParent)
	if err != nil {
		return err
	}
	newDir, err := e.dirAt(newParent)
	if err != nil {
		return err
	}
	entry, ok := oldDir.entries[oldName]
	if !ok {
		return tribfs.New(tribfs.ErrFileDoesNotExist, "no entry %q in directory %d", oldName, oldParent)
	}
	if existing, exists := newDir.entries[newName]; exists {
		if n, ok := e.inodes[existing.Ino]; ok {
			n.attr.Nlink--
			if n.attr.Nlink == 0 && n.attr.OpenHandle == 0 {
				delete(e.inodes, existing.Ino)
			}
		}
	}
	delete(oldDir.entries, oldName)
	entry.Name = newName
	newDir.entries[newName] = entry
	return nil
}

func (e *Engine) Mkdir(_ context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dir, err := e.dirAt(parent)
	if err != nil {
		return tribfs.Attr{}, err
	}
	if _, exists := dir.entries[name]; exists {
		return tribfs.Attr{}, tribfs.New(tribfs.ErrPathTaken, "entry %q already exists in directory %d", name, parent)
	}
	ino := e.allocIno()
	now := time.Now()
	n := &inode{
		attr: tribfs.Attr{
			Ino: ino, Kind: tribfs.KindDirectory, Mode: mode, UID: req.UID, GID: req.GID,
			Nlink: 2, Atime: now, Mtime: now, Ctime: now,
		},
		entries: make(map[string]tribfs.DirEntry),
	}
	e.inodes[ino] = n
	dir.entries[name] = tribfs.DirEntry{Name: name, Ino: ino, Kind: tribfs.KindDirectory}
	return n.attr, nil
}

func (e *Engine) Open(_ context.Context, _ tribfs.FileRequest, ino uint64, _ uint32) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return 0, notFound(ino)
	}
	n.attr.OpenHandle++
	return e.allocHandle(), nil
}

func (e *Engine) Release(_ context.Context, _ tribfs.FileRequest, ino, _ uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return notFound(ino)
	}
	if n.attr.OpenHandle > 0 {
		n.attr.OpenHandle--
	}
	if n.attr.Nlink == 0 && n.attr.OpenHandle == 0 {
		delete(e.inodes, ino)
	}
	return nil
}

func (e *Engine) OpenDir(_ context.Context, _ tribfs.FileRequest, ino uint64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dir, err := e.dirAt(ino)
	if err != nil {
		return 0, err
	}
	names := make([]string, 0, len(dir.entries))
	for name := range dir.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	handle := e.allocHandle()
	e.dirCursors[handle] = names
	return handle, nil
}

func (e *Engine) ReadDir(_ context.Context, _ tribfs.FileRequest, ino, handle uint64, offset int64) (tribfs.DirEntry, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dir, err := e.dirAt(ino)
	if err != nil {
		return tribfs.DirEntry{}, false, err
	}
	names, ok := e.dirCursors[handle]
	if !ok {
		return tribfs.DirEntry{}, false, tribfs.New(tribfs.ErrInvalidFilename, "no open directory handle %d", handle)
	}
	if offset < 0 || int(offset) >= len(names) {
		return tribfs.DirEntry{}, false, nil
	}
	return dir.entries[names[offset]], true, nil
}

func (e *Engine) ReleaseDir(_ context.Context, _ tribfs.FileRequest, _, handle uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.dirCursors, handle)
	return nil
}

// Access checks mask against ino's POSIX owner/group/other mode bits;
// uid 0 always passes. Frontend.Access forwards here without a check of
// its own.
func (e *Engine) Access(_ context.Context, req tribfs.FileRequest, ino uint64, mask uint32) error {
	e.mu.Lock()
	n, ok := e.inodes[ino]
	e.mu.Unlock()
	if !ok {
		return notFound(ino)
	}
	if req.UID == 0 {
		return nil
	}
	var bits uint32
	switch {
	case req.UID == n.attr.UID:
		bits = (n.attr.Mode >> 6) & 0o7
	case req.GID == n.attr.GID:
		bits = (n.attr.Mode >> 3) & 0o7
	default:
		bits = n.attr.Mode & 0o7
	}
	if bits&mask != mask {
		return tribfs.New(tribfs.ErrPermission, "mode %o does not grant mask %o to uid %d on inode %d", n.attr.Mode, mask, req.UID, ino)
	}
	return nil
}

func (e *Engine) SetXattr(_ context.Context, _ tribfs.FileRequest, ino uint64, name string, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return notFound(ino)
	}
	if n.attr.Xattr == nil {
		n.attr.Xattr = make(map[string][]byte)
	}
	n.attr.Xattr[name] = append([]byte{}, value...)
	return nil
}

func (e *Engine) GetXattr(_ context.Context, _ tribfs.FileRequest, ino uint64, name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return nil, notFound(ino)
	}
	v, ok := n.attr.Xattr[name]
	if !ok {
		return nil, tribfs.New(tribfs.ErrFileDoesNotExist, "no xattr %q on inode %d", name, ino)
	}
	return v, nil
}

func (e *Engine) ListXattr(_ context.Context, _ tribfs.FileRequest, ino uint64) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.inodes[ino]
	if !ok {
		return nil, notFound(ino)
	}
	names := make([]string, 0, len(n.attr.Xattr))
	for name := range n.attr.Xattr {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

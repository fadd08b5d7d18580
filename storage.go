package tribfs

import (
	"context"
	"time"
)

// FileRequest piggybacks on every filesystem call, carrying the caller's
// identity for access checks at the frontend.
type FileRequest struct {
	UID uint32
	GID uint32
	PID uint32
}

// InodeKind distinguishes the two fully supported inode kinds. Symlinks
// are modeled in the type for completeness but no operation creates one.
type InodeKind uint8

const (
	KindRegular InodeKind = iota
	KindDirectory
	KindSymlink
)

// Attr is an inode's attributes, as described in the data model: kind,
// mode, ownership, size, link count, timestamps, open-handle count, and an
// extended-attribute map.
type Attr struct {
	Ino        uint64
	Kind       InodeKind
	Mode       uint32
	UID        uint32
	GID        uint32
	Size       uint64
	Nlink      uint32
	Atime      time.Time
	Mtime      time.Time
	Ctime      time.Time
	OpenHandle uint32
	Xattr      map[string][]byte
}

// DirEntry maps a byte-string name to (inode, kind) within a directory.
type DirEntry struct {
	Name string
	Ino  uint64
	Kind InodeKind
}

// KeyString is the string-valued half of the auxiliary key-value store:
// get/set/keys over a flat string namespace, materialized from an
// operation log under last-write-wins semantics.
type KeyString interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Keys(ctx context.Context, p Pattern) (List, error)
}

// KeyList is the list-valued half of the auxiliary key-value store:
// values under a key form an ordered sequence maintained by
// append/remove/clear log records.
type KeyList interface {
	ListGet(ctx context.Context, key string) (List, error)
	ListAppend(ctx context.Context, key, value string) error
	ListRemove(ctx context.Context, key, value string) error
	ListKeys(ctx context.Context, p Pattern) (List, error)
}

// Clock exposes a backend's Lamport clock: every call bumps the clock to
// at least atLeast, then past it by one, and returns the pre-increment
// value. There is no pure-read form — even atLeast == 0 advances the
// clock, which is what lets two independent Clock calls against the same
// backend always observe a strictly increasing sequence.
type Clock interface {
	Clock(ctx context.Context, atLeast uint64) (uint64, error)
}

// Storage is the full capability set a single replica (primary, backup, or
// a reliable-router composite of both) exposes: the auxiliary key-value
// store plus the clock used to sequence writes against it.
type Storage interface {
	KeyString
	KeyList
	Clock
}

// ClockedAppend lets a caller stamp a mutation with an externally
// synchronized clock value instead of letting the backend assign its own.
// The replication router uses this to give primary and backup the
// identical {clock, val} record for a single logical write; plain Storage
// callers never need it, which is why it lives on its own rather than
// folded into KeyString/KeyList. Implementations must dedup: replaying the
// identical (key, clock, value, kind) triple is a no-op, not a second
// record, so a retried write after a lost reply never double-applies.
type ClockedAppend interface {
	SetAt(ctx context.Context, key, value string, clock uint64) error
	ListAppendAt(ctx context.Context, key, value string, clock uint64) error
	ListRemoveAt(ctx context.Context, key, value string, clock uint64) error
}

// ServerFileSystem is the capability set a backend exposes for the
// filesystem operations proper — inode, directory, and content
// management. The router, the RPC client, and a local on-disk engine all
// implement this the same way: as a capability set, not a base class.
type ServerFileSystem interface {
	Lookup(ctx context.Context, req FileRequest, parent uint64, name string) (Attr, error)
	GetAttr(ctx context.Context, req FileRequest, ino uint64) (Attr, error)
	SetAttr(ctx context.Context, req FileRequest, ino uint64, attr Attr, valid AttrValid) (Attr, error)
	Read(ctx context.Context, req FileRequest, ino uint64, handle uint64, offset int64, size uint32) ([]byte, error)
	Write(ctx context.Context, req FileRequest, ino uint64, handle uint64, offset int64, data []byte, lockOwner *uint64) (uint32, error)
	Create(ctx context.Context, req FileRequest, parent uint64, name string, mode uint32) (Attr, uint64, error)
	Unlink(ctx context.Context, req FileRequest, parent uint64, name string) error
	Rename(ctx context.Context, req FileRequest, oldParent uint64, oldName string, newParent uint64, newName string) error
	Mkdir(ctx context.Context, req FileRequest, parent uint64, name string, mode uint32) (Attr, error)
	Open(ctx context.Context, req FileRequest, ino uint64, flags uint32) (uint64, error)
	Release(ctx context.Context, req FileRequest, ino uint64, handle uint64) error
	OpenDir(ctx context.Context, req FileRequest, ino uint64) (uint64, error)
	ReadDir(ctx context.Context, req FileRequest, ino uint64, handle uint64, offset int64) (DirEntry, bool, error)
	ReleaseDir(ctx context.Context, req FileRequest, ino uint64, handle uint64) error
	Access(ctx context.Context, req FileRequest, ino uint64, mask uint32) error
	SetXattr(ctx context.Context, req FileRequest, ino uint64, name string, value []byte) error
	GetXattr(ctx context.Context, req FileRequest, ino uint64, name string) ([]byte, error)
	ListXattr(ctx context.Context, req FileRequest, ino uint64) ([]string, error)
	Init(ctx context.Context, req FileRequest) error
}

// AttrValid is a bitmask selecting which Attr fields SetAttr should apply.
type AttrValid uint32

const (
	AttrMode AttrValid = 1 << iota
	AttrUID
	AttrGID
	AttrSize
	AttrAtime
	AttrMtime
)

// BinStorage hands out a Storage capability for a bin name. A bin is a
// logical namespace (typically the mounting user's identifier); bin()
// hashes the name to a rotated replica ring and returns a handle bound to
// it, per the bin-store dispatcher design.
type BinStorage interface {
	Bin(name string) (Storage, error)
}

// FileSystemBinStorage is the filesystem-operation analog of BinStorage:
// it hands out a ServerFileSystem capability scoped to a bin, used by the
// frontend adaptor for every kernel callback.
type FileSystemBinStorage interface {
	FSBin(name string) (ServerFileSystem, error)
}

// Replica is the full capability set a single backend connection exposes:
// both halves of component B (filesystem operations and the auxiliary
// key-value/key-list store) live behind one dial, since in this system a
// backend process answers both over the same wire connection. The
// replication router and the keeper both dial this once per candidate
// address and use whichever half the call in question needs.
type Replica interface {
	ServerFileSystem
	Storage
	ClockedAppend
}

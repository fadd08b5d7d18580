package router

import (
	"context"

	"tribfs"
	"tribfs/internal/binstore"
)

// FSRouter is the ServerFileSystem analog of ReliableStore: it applies
// filesystem mutations to a bin's live primary and backup and serves
// reads from the primary, restarting on transient failure exactly like
// the key-value write/read paths in §4.D. Unlike ReliableStore.write,
// there is no Lamport-clock synchronization step — filesystem operations
// are not oplog records, and reconciling concurrent mutations from two
// frontends racing on the same inode is out of scope; FSRouter only
// guarantees that a single caller's mutation lands at both replicas.
type FSRouter struct {
	handle binstore.Handle
	dial   Dial
}

// NewFS builds an FSRouter bound to handle, dialing replicas with dial.
func NewFS(handle binstore.Handle, dial Dial) *FSRouter {
	return &FSRouter{handle: handle, dial: dial}
}

func (r *FSRouter) getReplica(ctx context.Context, count int) (tribfs.Replica, string, error) {
	if len(r.handle.Ring) == 0 {
		return nil, "", tribfs.New(tribfs.ErrNoLiveStore, "empty ring for bin %q", r.handle.Name)
	}
	budget := maxProbeMultiplier * len(r.handle.Ring)
	found := 0
	for i := 0; i < budget; i++ {
		addr := r.handle.Ring[i%len(r.handle.Ring)]
		rep, err := r.probe(ctx, addr)
		if err != nil {
			continue
		}
		found++
		if found == count {
			return rep, addr, nil
		}
	}
	return nil, "", tribfs.New(tribfs.ErrNoLiveStore, "bin %q: no live store found for slot %d within %d probes", r.handle.Name, count, budget)
}

func (r *FSRouter) probe(ctx context.Context, addr string) (tribfs.Replica, error) {
	rep, err := r.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	if _, err := rep.Clock(ctx, 0); err != nil {
		return nil, err
	}
	return rep, nil
}

// read runs fn against the primary only, restarting on transient failure.
func (r *FSRouter) read(ctx context.Context, fn func(tribfs.Replica) error) error {
	_, err := withRetries(ctx, len(r.handle.Ring), func(int) (struct{}, error) {
		primary, _, err := r.getReplica(ctx, 1)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, fn(primary)
	})
	return err
}

// mutate applies fn to the primary, then the backup, restarting the whole
// operation on a transient failure at either step. A permanent backup
// failure is reported as ErrReplicationStalled, matching ReliableStore's
// write path. fn runs against both replicas, so any values it captures
// hold the result of the last apply (the backup's) on success.
func (r *FSRouter) mutate(ctx context.Context, fn func(tribfs.Replica) error) error {
	_, err := withRetries(ctx, len(r.handle.Ring), func(int) (struct{}, error) {
		primary, _, err := r.getReplica(ctx, 1)
		if err != nil {
			return struct{}{}, err
		}
		backup, _, err := r.getReplica(ctx, 2)
		if err != nil {
			return struct{}{}, err
		}
		if err := fn(primary); err != nil {
			return struct{}{}, err
		}
		if err := fn(backup); err != nil {
			if !tribfs.Transient(err) {
				return struct{}{}, tribfs.New(tribfs.ErrReplicationStalled, "backup apply failed permanently: %v", err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
	return err
}

func (r *FSRouter) Lookup(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) (attr tribfs.Attr, err error) {
	err = r.read(ctx, func(rep tribfs.Replica) error {
		attr, err = rep.Lookup(ctx, req, parent, name)
		return err
	})
	return
}

func (r *FSRouter) GetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64) (attr tribfs.Attr, err error) {
	err = r.read(ctx, func(rep tribfs.Replica) error {
		attr, err = rep.GetAttr(ctx, req, ino)
		return err
	})
	return
}

func (r *FSRouter) SetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64, attr tribfs.Attr, valid tribfs.AttrValid) (out tribfs.Attr, err error) {
	err = r.mutate(ctx, func(rep tribfs.Replica) error {
		var e error
		out, e = rep.SetAttr(ctx, req, ino, attr, valid)
		return e
	})
	return
}

func (r *FSRouter) Read(ctx context.Context, req tribfs.FileRequest, ino uint64, handle uint64, offset int64, size uint32) (data []byte, err error) {
	err = r.read(ctx, func(rep tribfs.Replica) error {
		data, err = rep.Read(ctx, req, ino, handle, offset, size)
		return err
	})
	return
}

func (r *FSRouter) Write(ctx context.Context, req tribfs.FileRequest, ino uint64, handle uint64, offset int64, data []byte, lockOwner *uint64) (n uint32, err error) {
	err = r.mutate(ctx, func(rep tribfs.Replica) error {
		written, e := rep.Write(ctx, req, ino, handle, offset, data, lockOwner)
		if e == nil {
			n = written
		}
		return e
	})
	return
}

func (r *FSRouter) Create(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (attr tribfs.Attr, handle uint64, err error) {
	err = r.mutate(ctx, func(rep tribfs.Replica) error {
		a, h, e := rep.Create(ctx, req, parent, name, mode)
		if e == nil {
			attr, handle = a, h
		}
		return e
	})
	return
}

func (r *FSRouter) Unlink(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) error {
	return r.mutate(ctx, func(rep tribfs.Replica) error {
		return rep.Unlink(ctx, req, parent, name)
	})
}

func (r *FSRouter) Rename(ctx context.Context, req tribfs.FileRequest, oldParent uint64, oldName string, newParent uint64, newName string) error {
	return r.mutate(ctx, func(rep tribfs.Replica) error {
		return rep.Rename(ctx, req, oldParent, oldName, newParent, newName)
	})
}

func (r *FSRouter) Mkdir(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (attr tribfs.Attr, err error) {
	err = r.mutate(ctx, func(rep tribfs.Replica) error {
		var e error
		attr, e = rep.Mkdir(ctx, req, parent, name, mode)
		return e
	})
	return
}

// Open, OpenDir, Release, and ReleaseDir mint or retire a handle at both
// replicas, like any other mutating call; ReadDir is the pure read among
// the five and stays primary-only.

func (r *FSRouter) Open(ctx context.Context, req tribfs.FileRequest, ino uint64, flags uint32) (handle uint64, err error) {
	err = r.mutate(ctx, func(rep tribfs.Replica) error {
		h, e := rep.Open(ctx, req, ino, flags)
		if e == nil {
			handle = h
		}
		return e
	})
	return
}

func (r *FSRouter) Release(ctx context.Context, req tribfs.FileRequest, ino uint64, handle uint64) error {
	return r.mutate(ctx, func(rep tribfs.Replica) error {
		return rep.Release(ctx, req, ino, handle)
	})
}

func (r *FSRouter) OpenDir(ctx context.Context, req tribfs.FileRequest, ino uint64) (handle uint64, err error) {
	err = r.mutate(ctx, func(rep tribfs.Replica) error {
		h, e := rep.OpenDir(ctx, req, ino)
		if e == nil {
			handle = h
		}
		return e
	})
	return
}

func (r *FSRouter) ReadDir(ctx context.Context, req tribfs.FileRequest, ino uint64, handle uint64, offset int64) (entry tribfs.DirEntry, ok bool, err error) {
	err = r.read(ctx, func(rep tribfs.Replica) error {
		var e error
		entry, ok, e = rep.ReadDir(ctx, req, ino, handle, offset)
		return e
	})
	return
}

func (r *FSRouter) ReleaseDir(ctx context.Context, req tribfs.FileRequest, ino uint64, handle uint64) error {
	return r.mutate(ctx, func(rep tribfs.Replica) error {
		return rep.ReleaseDir(ctx, req, ino, handle)
	})
}

func (r *FSRouter) Access(ctx context.Context, req tribfs.FileRequest, ino uint64, mask uint32) error {
	return r.read(ctx, func(rep tribfs.Replica) error {
		return rep.Access(ctx, req, ino, mask)
	})
}

func (r *FSRouter) SetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string, value []byte) error {
	return r.mutate(ctx, func(rep tribfs.Replica) error {
		return rep.SetXattr(ctx, req, ino, name, value)
	})
}

func (r *FSRouter) GetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string) (value []byte, err error) {
	err = r.read(ctx, func(rep tribfs.Replica) error {
		value, err = rep.GetXattr(ctx, req, ino, name)
		return err
	})
	return
}

func (r *FSRouter) ListXattr(ctx context.Context, req tribfs.FileRequest, ino uint64) (names []string, err error) {
	err = r.read(ctx, func(rep tribfs.Replica) error {
		names, err = rep.ListXattr(ctx, req, ino)
		return err
	})
	return
}

// Init is a mutation: both replicas must independently own the lazy root
// creation it triggers, so it dual-applies like any other write.
func (r *FSRouter) Init(ctx context.Context, req tribfs.FileRequest) error {
	return r.mutate(ctx, func(rep tribfs.Replica) error {
		return rep.Init(ctx, req)
	})
}

var _ tribfs.ServerFileSystem = (*FSRouter)(nil)

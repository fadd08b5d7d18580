// Package transport implements the wire protocol (component C): a gRPC
// server exposing ServerFileSystem and Storage over the Trib service, and
// a client satisfying both capability sets by calling back over the
// wire — the router and keeper dial this client and never know whether
// they are talking to an in-process fake or a real backend process.
package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"tribfs"
	"tribfs/api/pb"
)

// ChunkSize is the build-time constant fixing how many payload bytes
// travel per frame in Read/Write/Getxattr/Listxattr/Setxattr streams. It
// must agree between client and server.
const ChunkSize = 128

// Server exposes a ServerFileSystem and a Storage capability — normally
// the ones backed by a local on-disk engine — over the Trib gRPC
// service.
type Server struct {
	pb.UnimplementedTribServer
	fs      tribfs.ServerFileSystem
	storage tribfs.Storage
}

// NewServer builds a Server delegating filesystem calls to fs and
// auxiliary key-value calls to storage.
func NewServer(fs tribfs.ServerFileSystem, storage tribfs.Storage) *Server {
	return &Server{fs: fs, storage: storage}
}

// ListenAndServe starts the gRPC server on addr and blocks until ctx is
// cancelled, then gracefully stops. An addr starting with '/' is served
// as a unix socket path, removing any stale socket file first; a
// "unix://" prefix is not recognized, and such an addr goes to the TCP
// listener unchanged.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	network, target := "tcp", addr
	if isUnixPath(addr) {
		network = "unix"
		_ = os.Remove(addr)
	}

	ln, err := net.Listen(network, target)
	if err != nil {
		return fmt.Errorf("listen %s %s: %w", network, target, err)
	}

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	pb.RegisterTribServer(srv, s)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	if err := srv.Serve(ln); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	if network == "unix" {
		_ = os.Remove(target)
	}
	return nil
}

func isUnixPath(addr string) bool {
	return len(addr) > 0 && addr[0] == '/'
}

func frequest(r *pb.FRequest) tribfs.FileRequest {
	if r == nil {
		return tribfs.FileRequest{}
	}
	return tribfs.FileRequest{UID: r.GetUid(), GID: r.GetGid(), PID: r.GetPid()}
}

func (s *Server) Lookup(ctx context.Context, in *pb.LookupRequest) (*pb.AttrReply, error) {
	attr, err := s.fs.Lookup(ctx, frequest(in.GetReq()), in.GetParent(), in.GetName())
	return attrReply(attr, err)
}

func (s *Server) GetAttr(ctx context.Context, in *pb.InoRequest) (*pb.AttrReply, error) {
	attr, err := s.fs.GetAttr(ctx, frequest(in.GetReq()), in.GetIno())
	return attrReply(attr, err)
}

func (s *Server) SetAttr(ctx context.Context, in *pb.SetAttrRequest) (*pb.AttrReply, error) {
	attr, err := decodeAttr(in.GetMessage())
	if err != nil {
		return &pb.AttrReply{Errcode: tribfs.Errno(err)}, nil
	}
	updated, err := s.fs.SetAttr(ctx, frequest(in.GetReq()), in.GetIno(), attr, tribfs.AttrValid(in.GetValid()))
	return attrReply(updated, err)
}

func attrReply(attr tribfs.Attr, err error) (*pb.AttrReply, error) {
	if err != nil {
		return &pb.AttrReply{Errcode: tribfs.Errno(err)}, nil
	}
	encoded, encErr := encodeAttr(attr)
	if encErr != nil {
		return &pb.AttrReply{Errcode: tribfs.Errno(encErr)}, nil
	}
	return &pb.AttrReply{Message: encoded, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) Read(in *pb.ReadRequest, stream pb.Trib_ReadServer) error {
	data, err := s.fs.Read(stream.Context(), frequest(in.GetReq()), in.GetIno(), in.GetHandle(), in.GetOffset(), in.GetSize())
	if err != nil {
		return stream.Send(&pb.Chunk{Errcode: tribfs.Errno(err)})
	}
	for i := 0; i < len(data); i += ChunkSize {
		end := i + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := stream.Send(&pb.Chunk{Message: string(data[i:end]), Errcode: tribfs.CodeSuccess}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Write(stream pb.Trib_WriteServer) error {
	var (
		buf        []byte
		req        tribfs.FileRequest
		ino, hdl   uint64
		offset     int64
		haveOffset bool
		lockOwner  *uint64
	)
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		req = frequest(chunk.GetReq())
		ino, hdl = chunk.GetIno(), chunk.GetHandle()
		if !haveOffset {
			offset = chunk.GetOffset()
			haveOffset = true
		}
		if chunk.LockOwner != nil {
			v := chunk.GetLockOwner()
			lockOwner = &v
		}
		buf = append(buf, chunk.GetData()...)
	}
	n, err := s.fs.Write(stream.Context(), req, ino, hdl, offset, buf, lockOwner)
	if err != nil {
		return stream.SendAndClose(&pb.WriteReply{Errcode: tribfs.Errno(err)})
	}
	return stream.SendAndClose(&pb.WriteReply{Size: n, Errcode: tribfs.CodeSuccess})
}

func (s *Server) Create(ctx context.Context, in *pb.CreateRequest) (*pb.CreateReply, error) {
	attr, handle, err := s.fs.Create(ctx, frequest(in.GetReq()), in.GetParent(), in.GetName(), in.GetMode())
	if err != nil {
		return &pb.CreateReply{Errcode: tribfs.Errno(err)}, nil
	}
	encoded, err := encodeAttr(attr)
	if err != nil {
		return &pb.CreateReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.CreateReply{Message: encoded, Handle: handle, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) Unlink(ctx context.Context, in *pb.UnlinkRequest) (*pb.StatusReply, error) {
	err := s.fs.Unlink(ctx, frequest(in.GetReq()), in.GetParent(), in.GetName())
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) Rename(ctx context.Context, in *pb.RenameRequest) (*pb.StatusReply, error) {
	err := s.fs.Rename(ctx, frequest(in.GetReq()), in.GetOldParent(), in.GetOldName(), in.GetNewParent(), in.GetNewName())
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) Mkdir(ctx context.Context, in *pb.MkdirRequest) (*pb.AttrReply, error) {
	attr, err := s.fs.Mkdir(ctx, frequest(in.GetReq()), in.GetParent(), in.GetName(), in.GetMode())
	return attrReply(attr, err)
}

func (s *Server) Open(ctx context.Context, in *pb.OpenRequest) (*pb.HandleReply, error) {
	handle, err := s.fs.Open(ctx, frequest(in.GetReq()), in.GetIno(), in.GetFlags())
	if err != nil {
		return &pb.HandleReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.HandleReply{Handle: handle, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) Release(ctx context.Context, in *pb.HandleRequest) (*pb.StatusReply, error) {
	err := s.fs.Release(ctx, frequest(in.GetReq()), in.GetIno(), in.GetHandle())
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) OpenDir(ctx context.Context, in *pb.InoRequest) (*pb.HandleReply, error) {
	handle, err := s.fs.OpenDir(ctx, frequest(in.GetReq()), in.GetIno())
	if err != nil {
		return &pb.HandleReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.HandleReply{Handle: handle, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) ReadDir(ctx context.Context, in *pb.ReadDirRequest) (*pb.DirEntryReply, error) {
	entry, ok, err := s.fs.ReadDir(ctx, frequest(in.GetReq()), in.GetIno(), in.GetHandle(), in.GetOffset())
	if err != nil {
		return &pb.DirEntryReply{Errcode: tribfs.Errno(err)}, nil
	}
	if !ok {
		return &pb.DirEntryReply{End: true, Errcode: tribfs.CodeSuccess}, nil
	}
	return &pb.DirEntryReply{
		Ino:        entry.Ino,
		NextOffset: in.GetOffset() + 1,
		Kind:       uint32(entry.Kind),
		Name:       entry.Name,
		Errcode:    tribfs.CodeSuccess,
	}, nil
}

func (s *Server) ReleaseDir(ctx context.Context, in *pb.HandleRequest) (*pb.StatusReply, error) {
	err := s.fs.ReleaseDir(ctx, frequest(in.GetReq()), in.GetIno(), in.GetHandle())
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) Access(ctx context.Context, in *pb.AccessRequest) (*pb.StatusReply, error) {
	err := s.fs.Access(ctx, frequest(in.GetReq()), in.GetIno(), in.GetMask())
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) Setxattr(stream pb.Trib_SetxattrServer) error {
	var (
		req   tribfs.FileRequest
		ino   uint64
		name  string
		value []byte
	)
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		req = frequest(chunk.GetReq())
		ino = chunk.GetIno()
		name = chunk.GetName()
		value = append(value, chunk.GetValue()...)
	}
	err := s.fs.SetXattr(stream.Context(), req, ino, name, value)
	return stream.SendAndClose(&pb.StatusReply{Errcode: tribfs.Errno(err)})
}

func (s *Server) Getxattr(in *pb.XattrRequest, stream pb.Trib_GetxattrServer) error {
	value, err := s.fs.GetXattr(stream.Context(), frequest(in.GetReq()), in.GetIno(), in.GetName())
	if err != nil {
		return stream.Send(&pb.Chunk{Errcode: tribfs.Errno(err)})
	}
	for i := 0; i < len(value); i += ChunkSize {
		end := i + ChunkSize
		if end > len(value) {
			end = len(value)
		}
		if err := stream.Send(&pb.Chunk{Message: string(value[i:end]), Errcode: tribfs.CodeSuccess}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Listxattr(in *pb.InoRequest, stream pb.Trib_ListxattrServer) error {
	names, err := s.fs.ListXattr(stream.Context(), frequest(in.GetReq()), in.GetIno())
	if err != nil {
		return stream.Send(&pb.Chunk{Errcode: tribfs.Errno(err)})
	}
	joined := joinNul(names)
	for i := 0; i < len(joined); i += ChunkSize {
		end := i + ChunkSize
		if end > len(joined) {
			end = len(joined)
		}
		if err := stream.Send(&pb.Chunk{Message: joined[i:end], Errcode: tribfs.CodeSuccess}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Init(ctx context.Context, in *pb.FRequest) (*pb.StatusReply, error) {
	err := s.fs.Init(ctx, frequest(in))
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) Get(ctx context.Context, in *pb.GetRequest) (*pb.GetReply, error) {
	val, ok, err := s.storage.Get(ctx, in.GetKey())
	if err != nil {
		return &pb.GetReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.GetReply{Value: val, Found: ok, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) Set(ctx context.Context, in *pb.SetRequest) (*pb.StatusReply, error) {
	var err error
	if in.Clock != nil {
		ca, ok := s.storage.(tribfs.ClockedAppend)
		if !ok {
			return &pb.StatusReply{Errcode: tribfs.Errno(tribfs.New(tribfs.ErrUnknown, "backend does not support clocked append"))}, nil
		}
		err = ca.SetAt(ctx, in.GetKey(), in.GetValue(), in.GetClock())
	} else {
		err = s.storage.Set(ctx, in.GetKey(), in.GetValue())
	}
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) Keys(ctx context.Context, in *pb.KeysRequest) (*pb.KeysReply, error) {
	keys, err := s.storage.Keys(ctx, pattern(in.GetPattern()))
	if err != nil {
		return &pb.KeysReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.KeysReply{Values: keys, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) ListGet(ctx context.Context, in *pb.ListGetRequest) (*pb.KeysReply, error) {
	vals, err := s.storage.ListGet(ctx, in.GetKey())
	if err != nil {
		return &pb.KeysReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.KeysReply{Values: vals, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) ListAppend(ctx context.Context, in *pb.ListMutateRequest) (*pb.StatusReply, error) {
	var err error
	if in.Clock != nil {
		ca, ok := s.storage.(tribfs.ClockedAppend)
		if !ok {
			return &pb.StatusReply{Errcode: tribfs.Errno(tribfs.New(tribfs.ErrUnknown, "backend does not support clocked append"))}, nil
		}
		err = ca.ListAppendAt(ctx, in.GetKey(), in.GetValue(), in.GetClock())
	} else {
		err = s.storage.ListAppend(ctx, in.GetKey(), in.GetValue())
	}
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) ListRemove(ctx context.Context, in *pb.ListMutateRequest) (*pb.StatusReply, error) {
	var err error
	if in.Clock != nil {
		ca, ok := s.storage.(tribfs.ClockedAppend)
		if !ok {
			return &pb.StatusReply{Errcode: tribfs.Errno(tribfs.New(tribfs.ErrUnknown, "backend does not support clocked append"))}, nil
		}
		err = ca.ListRemoveAt(ctx, in.GetKey(), in.GetValue(), in.GetClock())
	} else {
		err = s.storage.ListRemove(ctx, in.GetKey(), in.GetValue())
	}
	return &pb.StatusReply{Errcode: tribfs.Errno(err)}, nil
}

func (s *Server) ListKeys(ctx context.Context, in *pb.KeysRequest) (*pb.KeysReply, error) {
	keys, err := s.storage.ListKeys(ctx, pattern(in.GetPattern()))
	if err != nil {
		return &pb.KeysReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.KeysReply{Values: keys, Errcode: tribfs.CodeSuccess}, nil
}

func (s *Server) Clock(ctx context.Context, in *pb.ClockRequest) (*pb.ClockReply, error) {
	v, err := s.storage.Clock(ctx, in.GetAtLeast())
	if err != nil {
		return &pb.ClockReply{Errcode: tribfs.Errno(err)}, nil
	}
	return &pb.ClockReply{Value: v, Errcode: tribfs.CodeSuccess}, nil
}

func pattern(p *pb.Pattern) tribfs.Pattern {
	if p == nil {
		return tribfs.Pattern{}
	}
	return tribfs.Pattern{Prefix: p.GetPrefix(), Suffix: p.GetSuffix()}
}

func joinNul(names []string) string {
	out := ""
	for _, n := range names {
		out += n + "\x00"
	}
	return out
}

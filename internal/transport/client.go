package transport

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"tribfs"
	"tribfs/api/pb"
)

// Client implements both tribfs.ServerFileSystem and tribfs.Storage by
// calling a backend over gRPC. router.Dial and keeper.Dial are both
// satisfied by DialReplica, so the router and the keeper's replication
// logic never need to know whether a handle is local or remote.
type Client struct {
	conn *grpc.ClientConn
	rpc  pb.TribClient
}

// Dial opens a gRPC connection to addr and wraps it as a Client. The
// connection is lazy: grpc.NewClient does not block on the first RPC,
// matching the router's own retry-driven connection model rather than
// failing Dial itself on a transient network blip.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, rpc: pb.NewTribClient(conn)}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// DialReplica satisfies router.Dial and keeper.Dial: it opens one
// connection per call, scoped to the caller's lifetime, matching the
// "dial, use, and drop" ownership the router and keeper both rely on. One
// Client answers both the ServerFileSystem and Storage halves of
// tribfs.Replica over the same connection.
func DialReplica(ctx context.Context, addr string) (tribfs.Replica, error) {
	return Dial(addr)
}

func toFRequest(req tribfs.FileRequest) *pb.FRequest {
	return &pb.FRequest{Uid: req.UID, Gid: req.GID, Pid: req.PID}
}

func fromAttrReply(reply *pb.AttrReply, err error) (tribfs.Attr, error) {
	if err != nil {
		return tribfs.Attr{}, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return tribfs.Attr{}, errFromCode(reply.GetErrcode())
	}
	return decodeAttr(reply.GetMessage())
}

// errFromCode reconstructs a classified error from a wire errcode when no
// gRPC status was raised (the call succeeded transport-wise but the
// operation itself failed, e.g. ENOENT). It walks the same mapping Errno
// uses, inverted.
func errFromCode(code int32) error {
	switch -code {
	case tribfs.ENOENT:
		return tribfs.New(tribfs.ErrFileDoesNotExist, "remote returned ENOENT")
	case tribfs.EEXIST:
		return tribfs.New(tribfs.ErrPathTaken, "remote returned EEXIST")
	case tribfs.ENAMETOOLONG:
		return tribfs.New(tribfs.ErrInvalidFilename, "remote returned ENAMETOOLONG")
	case tribfs.EACCES:
		return tribfs.New(tribfs.ErrPermission, "remote returned EACCES")
	case tribfs.ENETDOWN:
		return tribfs.New(tribfs.ErrNoLiveStore, "remote returned ENETDOWN")
	case tribfs.ETIMEDOUT:
		return tribfs.New(tribfs.ErrReplicationStalled, "remote returned ETIMEDOUT")
	default:
		return tribfs.New(tribfs.ErrUnknown, "remote returned errno %d", -code)
	}
}

func statusErr(code int32) error {
	if code == tribfs.CodeSuccess {
		return nil
	}
	return errFromCode(code)
}

func (c *Client) Lookup(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) (tribfs.Attr, error) {
	reply, err := c.rpc.Lookup(ctx, &pb.LookupRequest{Req: toFRequest(req), Parent: parent, Name: name})
	return fromAttrReply(reply, err)
}

func (c *Client) GetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64) (tribfs.Attr, error) {
	reply, err := c.rpc.GetAttr(ctx, &pb.InoRequest{Req: toFRequest(req), Ino: ino})
	return fromAttrReply(reply, err)
}

func (c *Client) SetAttr(ctx context.Context, req tribfs.FileRequest, ino uint64, attr tribfs.Attr, valid tribfs.AttrValid) (tribfs.Attr, error) {
	encoded, err := encodeAttr(attr)
	if err != nil {
		return tribfs.Attr{}, err
	}
	reply, err := c.rpc.SetAttr(ctx, &pb.SetAttrRequest{Req: toFRequest(req), Ino: ino, Message: encoded, Valid: uint32(valid)})
	return fromAttrReply(reply, err)
}

func (c *Client) Read(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, size uint32) ([]byte, error) {
	stream, err := c.rpc.Read(ctx, &pb.ReadRequest{Req: toFRequest(req), Ino: ino, Handle: handle, Offset: offset, Size: size})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	var out []byte
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fromGRPCError(err)
		}
		if chunk.GetErrcode() != tribfs.CodeSuccess {
			return nil, errFromCode(chunk.GetErrcode())
		}
		if chunk.GetMessage() == "" {
			break
		}
		out = append(out, chunk.GetMessage()...)
	}
	return out, nil
}

func (c *Client) Write(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64, data []byte, lockOwner *uint64) (uint32, error) {
	stream, err := c.rpc.Write(ctx)
	if err != nil {
		return 0, fromGRPCError(err)
	}
	for i := 0; i < len(data) || i == 0; i += ChunkSize {
		end := i + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := &pb.WriteChunk{
			Req:    toFRequest(req),
			Ino:    ino,
			Handle: handle,
			Offset: offset + int64(i),
			Data:   data[i:end],
		}
		if lockOwner != nil {
			chunk.LockOwner = lockOwner
		}
		if err := stream.Send(chunk); err != nil {
			return 0, fromGRPCError(err)
		}
		if len(data) == 0 {
			break
		}
	}
	reply, err := stream.CloseAndRecv()
	if err != nil {
		return 0, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return 0, errFromCode(reply.GetErrcode())
	}
	return reply.GetSize(), nil
}

func (c *Client) Create(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, uint64, error) {
	reply, err := c.rpc.Create(ctx, &pb.CreateRequest{Req: toFRequest(req), Parent: parent, Name: name, Mode: mode})
	if err != nil {
		return tribfs.Attr{}, 0, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return tribfs.Attr{}, 0, errFromCode(reply.GetErrcode())
	}
	attr, err := decodeAttr(reply.GetMessage())
	return attr, reply.GetHandle(), err
}

func (c *Client) Unlink(ctx context.Context, req tribfs.FileRequest, parent uint64, name string) error {
	reply, err := c.rpc.Unlink(ctx, &pb.UnlinkRequest{Req: toFRequest(req), Parent: parent, Name: name})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) Rename(ctx context.Context, req tribfs.FileRequest, oldParent uint64, oldName string, newParent uint64, newName string) error {
	reply, err := c.rpc.Rename(ctx, &pb.RenameRequest{
		Req: toFRequest(req), OldParent: oldParent, OldName: oldName, NewParent: newParent, NewName: newName,
	})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) Mkdir(ctx context.Context, req tribfs.FileRequest, parent uint64, name string, mode uint32) (tribfs.Attr, error) {
	reply, err := c.rpc.Mkdir(ctx, &pb.MkdirRequest{Req: toFRequest(req), Parent: parent, Name: name, Mode: mode})
	return fromAttrReply(reply, err)
}

func (c *Client) Open(ctx context.Context, req tribfs.FileRequest, ino uint64, flags uint32) (uint64, error) {
	reply, err := c.rpc.Open(ctx, &pb.OpenRequest{Req: toFRequest(req), Ino: ino, Flags: flags})
	if err != nil {
		return 0, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return 0, errFromCode(reply.GetErrcode())
	}
	return reply.GetHandle(), nil
}

func (c *Client) Release(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	reply, err := c.rpc.Release(ctx, &pb.HandleRequest{Req: toFRequest(req), Ino: ino, Handle: handle})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) OpenDir(ctx context.Context, req tribfs.FileRequest, ino uint64) (uint64, error) {
	reply, err := c.rpc.OpenDir(ctx, &pb.InoRequest{Req: toFRequest(req), Ino: ino})
	if err != nil {
		return 0, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return 0, errFromCode(reply.GetErrcode())
	}
	return reply.GetHandle(), nil
}

func (c *Client) ReadDir(ctx context.Context, req tribfs.FileRequest, ino, handle uint64, offset int64) (tribfs.DirEntry, bool, error) {
	reply, err := c.rpc.ReadDir(ctx, &pb.ReadDirRequest{Req: toFRequest(req), Ino: ino, Handle: handle, Offset: offset})
	if err != nil {
		return tribfs.DirEntry{}, false, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return tribfs.DirEntry{}, false, errFromCode(reply.GetErrcode())
	}
	if reply.GetEnd() {
		return tribfs.DirEntry{}, false, nil
	}
	return tribfs.DirEntry{
		Ino:  reply.GetIno(),
		Kind: tribfs.InodeKind(reply.GetKind()),
		Name: reply.GetName(),
	}, true, nil
}

func (c *Client) ReleaseDir(ctx context.Context, req tribfs.FileRequest, ino, handle uint64) error {
	reply, err := c.rpc.ReleaseDir(ctx, &pb.HandleRequest{Req: toFRequest(req), Ino: ino, Handle: handle})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) Access(ctx context.Context, req tribfs.FileRequest, ino uint64, mask uint32) error {
	reply, err := c.rpc.Access(ctx, &pb.AccessRequest{Req: toFRequest(req), Ino: ino, Mask: mask})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) SetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string, value []byte) error {
	stream, err := c.rpc.Setxattr(ctx)
	if err != nil {
		return fromGRPCError(err)
	}
	for i := 0; i < len(value) || i == 0; i += ChunkSize {
		end := i + ChunkSize
		if end > len(value) {
			end = len(value)
		}
		if err := stream.Send(&pb.XattrChunk{Req: toFRequest(req), Ino: ino, Name: name, Value: value[i:end]}); err != nil {
			return fromGRPCError(err)
		}
		if len(value) == 0 {
			break
		}
	}
	reply, err := stream.CloseAndRecv()
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) GetXattr(ctx context.Context, req tribfs.FileRequest, ino uint64, name string) ([]byte, error) {
	stream, err := c.rpc.Getxattr(ctx, &pb.XattrRequest{Req: toFRequest(req), Ino: ino, Name: name})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	var out []byte
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fromGRPCError(err)
		}
		if chunk.GetErrcode() != tribfs.CodeSuccess {
			return nil, errFromCode(chunk.GetErrcode())
		}
		if chunk.GetMessage() == "" {
			break
		}
		out = append(out, chunk.GetMessage()...)
	}
	return out, nil
}

func (c *Client) ListXattr(ctx context.Context, req tribfs.FileRequest, ino uint64) ([]string, error) {
	stream, err := c.rpc.Listxattr(ctx, &pb.InoRequest{Req: toFRequest(req), Ino: ino})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	var joined string
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if err.Error() == "EOF" {
				break
			}
			return nil, fromGRPCError(err)
		}
		if chunk.GetErrcode() != tribfs.CodeSuccess {
			return nil, errFromCode(chunk.GetErrcode())
		}
		if chunk.GetMessage() == "" {
			break
		}
		joined += chunk.GetMessage()
	}
	return splitNul(joined), nil
}

func splitNul(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func (c *Client) Init(ctx context.Context, req tribfs.FileRequest) error {
	reply, err := c.rpc.Init(ctx, toFRequest(req))
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	reply, err := c.rpc.Get(ctx, &pb.GetRequest{Key: key})
	if err != nil {
		return "", false, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return "", false, errFromCode(reply.GetErrcode())
	}
	return reply.GetValue(), reply.GetFound(), nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	reply, err := c.rpc.Set(ctx, &pb.SetRequest{Key: key, Value: value})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

// SetAt is Set's externally-clocked form, used by the replication router
// to stamp primary and backup with an identical record for one write.
func (c *Client) SetAt(ctx context.Context, key, value string, clock uint64) error {
	reply, err := c.rpc.Set(ctx, &pb.SetRequest{Key: key, Value: value, Clock: &clock})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func toPattern(p tribfs.Pattern) *pb.Pattern {
	return &pb.Pattern{Prefix: p.Prefix, Suffix: p.Suffix}
}

func (c *Client) Keys(ctx context.Context, p tribfs.Pattern) (tribfs.List, error) {
	reply, err := c.rpc.Keys(ctx, &pb.KeysRequest{Pattern: toPattern(p)})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return nil, errFromCode(reply.GetErrcode())
	}
	return reply.GetValues(), nil
}

func (c *Client) ListGet(ctx context.Context, key string) (tribfs.List, error) {
	reply, err := c.rpc.ListGet(ctx, &pb.ListGetRequest{Key: key})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return nil, errFromCode(reply.GetErrcode())
	}
	return reply.GetValues(), nil
}

func (c *Client) ListAppend(ctx context.Context, key, value string) error {
	reply, err := c.rpc.ListAppend(ctx, &pb.ListMutateRequest{Key: key, Value: value})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

// ListAppendAt is ListAppend's externally-clocked form; see SetAt.
func (c *Client) ListAppendAt(ctx context.Context, key, value string, clock uint64) error {
	reply, err := c.rpc.ListAppend(ctx, &pb.ListMutateRequest{Key: key, Value: value, Clock: &clock})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) ListRemove(ctx context.Context, key, value string) error {
	reply, err := c.rpc.ListRemove(ctx, &pb.ListMutateRequest{Key: key, Value: value})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

// ListRemoveAt is ListRemove's externally-clocked form; see SetAt.
func (c *Client) ListRemoveAt(ctx context.Context, key, value string, clock uint64) error {
	reply, err := c.rpc.ListRemove(ctx, &pb.ListMutateRequest{Key: key, Value: value, Clock: &clock})
	if err != nil {
		return fromGRPCError(err)
	}
	return statusErr(reply.GetErrcode())
}

func (c *Client) ListKeys(ctx context.Context, p tribfs.Pattern) (tribfs.List, error) {
	reply, err := c.rpc.ListKeys(ctx, &pb.KeysRequest{Pattern: toPattern(p)})
	if err != nil {
		return nil, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return nil, errFromCode(reply.GetErrcode())
	}
	return reply.GetValues(), nil
}

func (c *Client) Clock(ctx context.Context, atLeast uint64) (uint64, error) {
	reply, err := c.rpc.Clock(ctx, &pb.ClockRequest{AtLeast: atLeast})
	if err != nil {
		return 0, fromGRPCError(err)
	}
	if reply.GetErrcode() != tribfs.CodeSuccess {
		return 0, errFromCode(reply.GetErrcode())
	}
	return reply.GetValue(), nil
}

package transport

import (
	"errors"

	"github.com/containerd/errdefs"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tribfs"
)

// toGRPCError maps a tribfs error to a gRPC status, attaching structured
// failure details for the two conditions an operator needs to act on
// directly (stalled replication, no live store) rather than just reading
// a status code.
func toGRPCError(err error) error {
	if err == nil {
		return nil
	}
	var e *tribfs.Error
	if !errors.As(err, &e) {
		return status.Error(codes.Unknown, err.Error())
	}

	switch e.Kind {
	case tribfs.ErrTransient:
		return status.Error(codes.Unavailable, e.Error())
	case tribfs.ErrFileDoesNotExist:
		return status.Error(codes.NotFound, e.Error())
	case tribfs.ErrPathTaken:
		return status.Error(codes.AlreadyExists, e.Error())
	case tribfs.ErrInvalidFilename:
		return status.Error(codes.InvalidArgument, e.Error())
	case tribfs.ErrPermission:
		return status.Error(codes.PermissionDenied, e.Error())
	case tribfs.ErrMaxedSeq:
		return status.Error(codes.ResourceExhausted, e.Error())
	case tribfs.ErrCorruptLog:
		return status.Error(codes.DataLoss, e.Error())
	case tribfs.ErrNoLiveStore:
		return noLiveStoreStatus(e)
	case tribfs.ErrReplicationStalled:
		return replicationStalledStatus(e)
	default:
		return status.Error(codes.Unknown, e.Error())
	}
}

func noLiveStoreStatus(e *tribfs.Error) error {
	st := status.New(codes.Unavailable, e.Error())
	withDetails, err := st.WithDetails(&errdetails.PreconditionFailure{
		Violations: []*errdetails.PreconditionFailure_Violation{{
			Type:        "NO_LIVE_STORE",
			Subject:     "bin",
			Description: e.Message,
		}},
	})
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

func replicationStalledStatus(e *tribfs.Error) error {
	st := status.New(codes.FailedPrecondition, e.Error())
	withDetails, err := st.WithDetails(&errdetails.PreconditionFailure{
		Violations: []*errdetails.PreconditionFailure_Violation{{
			Type:        "REPLICATION_STALLED",
			Subject:     "backup",
			Description: e.Message,
		}},
	})
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// fromGRPCError maps a gRPC status received by a client back to a tribfs
// error, so router/keeper retry logic can classify it as transient or
// fatal regardless of which side of the wire it came from.
func fromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		// Not a gRPC status at all — a raw dial/transport failure from
		// below the status layer. Classify it the way errdefs
		// classifies container runtime errors, rather than assuming
		// every non-status error is transient.
		switch {
		case errdefs.IsUnavailable(err), errdefs.IsDeadlineExceeded(err), errdefs.IsAborted(err), errdefs.IsUnknown(err):
			return tribfs.New(tribfs.ErrTransient, "%v", err)
		case errdefs.IsNotFound(err):
			return tribfs.New(tribfs.ErrFileDoesNotExist, "%v", err)
		case errdefs.IsAlreadyExists(err):
			return tribfs.New(tribfs.ErrPathTaken, "%v", err)
		case errdefs.IsPermissionDenied(err):
			return tribfs.New(tribfs.ErrPermission, "%v", err)
		default:
			return tribfs.New(tribfs.ErrTransient, "%v", err)
		}
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted:
		return tribfs.New(tribfs.ErrTransient, "%s", st.Message())
	case codes.NotFound:
		return tribfs.New(tribfs.ErrFileDoesNotExist, "%s", st.Message())
	case codes.AlreadyExists:
		return tribfs.New(tribfs.ErrPathTaken, "%s", st.Message())
	case codes.InvalidArgument:
		return tribfs.New(tribfs.ErrInvalidFilename, "%s", st.Message())
	case codes.PermissionDenied:
		return tribfs.New(tribfs.ErrPermission, "%s", st.Message())
	case codes.ResourceExhausted:
		return tribfs.New(tribfs.ErrMaxedSeq, "%s", st.Message())
	case codes.DataLoss:
		return tribfs.New(tribfs.ErrCorruptLog, "%s", st.Message())
	case codes.FailedPrecondition:
		return tribfs.New(tribfs.ErrReplicationStalled, "%s", st.Message())
	default:
		return tribfs.New(tribfs.ErrUnknown, "%s", st.Message())
	}
}

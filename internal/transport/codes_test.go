package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tribfs"
)

func TestToGRPCErrorMapsKinds(t *testing.T) {
	cases := []struct {
		kind tribfs.ErrorKind
		code codes.Code
	}{
		{tribfs.ErrTransient, codes.Unavailable},
		{tribfs.ErrFileDoesNotExist, codes.NotFound},
		{tribfs.ErrPathTaken, codes.AlreadyExists},
		{tribfs.ErrInvalidFilename, codes.InvalidArgument},
		{tribfs.ErrPermission, codes.PermissionDenied},
		{tribfs.ErrMaxedSeq, codes.ResourceExhausted},
		{tribfs.ErrCorruptLog, codes.DataLoss},
		{tribfs.ErrNoLiveStore, codes.Unavailable},
		{tribfs.ErrReplicationStalled, codes.FailedPrecondition},
	}
	for _, c := range cases {
		err := toGRPCError(tribfs.New(c.kind, "boom"))
		st, ok := status.FromError(err)
		require.True(t, ok)
		require.Equal(t, c.code, st.Code(), "kind %v", c.kind)
	}
}

func TestFromGRPCErrorRoundTripsTransient(t *testing.T) {
	wire := toGRPCError(tribfs.New(tribfs.ErrTransient, "down"))
	back := fromGRPCError(wire)
	require.True(t, tribfs.Transient(back))
}

func TestNilErrorsPassThrough(t *testing.T) {
	require.NoError(t, toGRPCError(nil))
	require.NoError(t, fromGRPCError(nil))
}

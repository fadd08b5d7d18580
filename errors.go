package tribfs

import "fmt"

// Error is a typed, classifiable failure. Every fallible operation in the
// router, keeper, and frontend returns one of these (wrapped with
// fmt.Errorf %w where extra context is useful) rather than a bare string,
// so callers can dispatch with errors.As instead of string matching.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// ErrorKind enumerates the taxonomy from the error handling design: each
// kind maps to exactly one POSIX errno at the frontend and one gRPC status
// code at the wire layer.
type ErrorKind uint8

const (
	// ErrUnknown is the catch-all, carrying only a diagnostic string.
	ErrUnknown ErrorKind = iota
	// ErrTransient covers transport/timeout failures; the router retries
	// these internally and they should rarely escape to a caller.
	ErrTransient
	// ErrFileDoesNotExist surfaces as ENOENT.
	ErrFileDoesNotExist
	// ErrPathTaken surfaces as EEXIST.
	ErrPathTaken
	// ErrInvalidFilename surfaces as ENAMETOOLONG.
	ErrInvalidFilename
	// ErrPermission surfaces as EACCES.
	ErrPermission
	// ErrMaxedSeq means the frontend's Lamport clock saturated at
	// math.MaxUint64; no further mutations are accepted.
	ErrMaxedSeq
	// ErrCorruptLog means the engine observed a log record whose kind
	// contradicts the materializer it was replayed against.
	ErrCorruptLog
	// ErrNoLiveStore means get_store exhausted its probe budget without
	// finding a live primary.
	ErrNoLiveStore
	// ErrReplicationStalled means a write's backup apply failed with a
	// non-transient error after the primary succeeded. It is returned at
	// once; no deadline is waited on. A transient backup failure restarts
	// the write instead, and surfaces as that transient error if the
	// retries run out.
	ErrReplicationStalled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTransient:
		return "transient"
	case ErrFileDoesNotExist:
		return "file does not exist"
	case ErrPathTaken:
		return "path taken"
	case ErrInvalidFilename:
		return "invalid filename"
	case ErrPermission:
		return "permission denied"
	case ErrMaxedSeq:
		return "clock maxed out"
	case ErrCorruptLog:
		return "corrupt log"
	case ErrNoLiveStore:
		return "no live store"
	case ErrReplicationStalled:
		return "replication stalled"
	default:
		return "unknown"
	}
}

// New builds an *Error of the given kind with a formatted message.
func New(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Transient reports whether err (or a wrapped *Error) should be retried by
// the router rather than surfaced to the caller.
func Transient(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	return e.Kind == ErrTransient
}

// asError is a small errors.As shim kept local to avoid importing errors
// just for this one call site used by both Transient and Errno.
func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Errno maps a tribfs error to a negative POSIX errno, ready to hand to the
// kernel adaptor. Unknown/unmapped errors become -EIO.
func Errno(err error) int32 {
	if err == nil {
		return CodeSuccess
	}
	var e *Error
	if !asError(err, &e) {
		return -EIO
	}
	switch e.Kind {
	case ErrFileDoesNotExist:
		return -ENOENT
	case ErrPathTaken:
		return -EEXIST
	case ErrInvalidFilename:
		return -ENAMETOOLONG
	case ErrPermission:
		return -EACCES
	case ErrMaxedSeq:
		return -EIO
	case ErrCorruptLog:
		return -EIO
	case ErrNoLiveStore:
		return -ENETDOWN
	case ErrReplicationStalled:
		return -ETIMEDOUT
	default:
		return -EIO
	}
}

// CodeSuccess is the wire-level errcode sentinel for success, used
// consistently across client and server instead of 0 so a zero-value
// reply can never be mistaken for a successful one.
const CodeSuccess int32 = -1

// Minimal POSIX errno values needed by Errno, kept local so this package
// does not depend on a platform-specific syscall package (the frontend
// adaptor runs the same error mapping on every GOOS).
const (
	EIO          = 5
	EACCES       = 13
	EEXIST       = 17
	ENOENT       = 2
	ENOTDIR      = 20
	EISDIR       = 21
	EINVAL       = 22
	ENAMETOOLONG = 36
	ENETDOWN     = 100
	ETIMEDOUT    = 110
)

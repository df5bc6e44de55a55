package transport

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// ToStatus maps a ferror.Kind (or plain error) to a gRPC status, the
// way a server interceptor turns internal errors into wire errors.
func ToStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	kind, ok := ferror.KindOf(err)
	if !ok {
		return status.New(codes.Unknown, err.Error())
	}
	return status.New(codeFor(kind), err.Error())
}

func codeFor(k ferror.Kind) codes.Code {
	switch k {
	case ferror.Inval:
		return codes.InvalidArgument
	case ferror.Proto:
		return codes.DataLoss
	case ferror.Perm:
		return codes.PermissionDenied
	case ferror.NoSpace:
		return codes.ResourceExhausted
	case ferror.ReadOnly:
		return codes.FailedPrecondition
	case ferror.Exists:
		return codes.AlreadyExists
	case ferror.NotFound:
		return codes.NotFound
	case ferror.TimedOut:
		return codes.DeadlineExceeded
	case ferror.IsDir, ferror.IsSymlink:
		return codes.FailedPrecondition
	case ferror.Unsupported:
		return codes.Unimplemented
	case ferror.Fatal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

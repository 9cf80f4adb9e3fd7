package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"modelrunner/internal/backend"
)

var kindCodes = map[backend.Kind]codes.Code{
	backend.KindNotLoaded:      codes.FailedPrecondition,
	backend.KindAlreadyLoaded:  codes.AlreadyExists,
	backend.KindUnsupported:    codes.Unimplemented,
	backend.KindInvalidRequest: codes.InvalidArgument,
	backend.KindRuntime:        codes.Unknown,
	backend.KindCancelled:      codes.Canceled,
	backend.KindInternal:       codes.Internal,
	backend.KindBusy:           codes.ResourceExhausted,
}

// CodeOf maps a backend error kind to its gRPC status code.
func CodeOf(k backend.Kind) codes.Code {
	if c, ok := kindCodes[k]; ok {
		return c
	}
	return codes.Internal
}

// toStatus converts a service error into a gRPC status error. The message
// keeps the engine diagnostics; the code carries the kind.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok && !isBackendError(err) {
		return err
	}
	return status.Error(CodeOf(backend.KindOf(err)), err.Error())
}

func isBackendError(err error) bool {
	var e *backend.Error
	return errors.As(err, &e)
}

// KindOf recovers the backend error kind from an error returned by Client.
func KindOf(err error) backend.Kind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backend.KindCancelled
	}
	st, ok := status.FromError(err)
	if !ok {
		return backend.KindInternal
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return backend.KindCancelled
	case codes.Unavailable:
		return backend.KindInternal
	}
	for k, c := range kindCodes {
		if c == st.Code() {
			return k
		}
	}
	return backend.KindInternal
}

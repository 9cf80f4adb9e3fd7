package backend

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies every failure that crosses the service boundary.
type Kind string

const (
	KindNotLoaded      Kind = "NotLoaded"
	KindAlreadyLoaded  Kind = "AlreadyLoaded"
	KindUnsupported    Kind = "Unsupported"
	KindInvalidRequest Kind = "InvalidRequest"
	KindRuntime        Kind = "RuntimeError"
	KindCancelled      Kind = "Cancelled"
	KindInternal       Kind = "Internal"
	// KindBusy is returned when the engine slot could not be acquired
	// within the configured wait.
	KindBusy Kind = "Busy"
)

// Error is the typed failure returned by every Service operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Err != nil {
		if e.Msg != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func errNotLoaded(op string) error {
	return newError(KindNotLoaded, op, "model not loaded", nil)
}

func errUnsupported(op, capability string) error {
	return newError(KindUnsupported, op, "capability not supported by loaded model: "+capability, nil)
}

func errInvalid(op, msg string) error {
	return newError(KindInvalidRequest, op, msg, nil)
}

// KindOf returns the kind of err. Context errors map to Cancelled; any other
// unclassified error is Internal. KindOf(nil) is "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindInternal
}

// IsNotLoaded reports whether err indicates inference before a successful load.
func IsNotLoaded(err error) bool { return KindOf(err) == KindNotLoaded }

// IsAlreadyLoaded reports whether err indicates a rejected second load.
func IsAlreadyLoaded(err error) bool { return KindOf(err) == KindAlreadyLoaded }

// IsUnsupported reports whether err names a capability the model lacks.
func IsUnsupported(err error) bool { return KindOf(err) == KindUnsupported }

// IsInvalidRequest reports whether err indicates a malformed request.
func IsInvalidRequest(err error) bool { return KindOf(err) == KindInvalidRequest }

// IsBusy reports whether err indicates backpressure.
func IsBusy(err error) bool { return KindOf(err) == KindBusy }

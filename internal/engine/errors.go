package engine

import "errors"

// ErrFatal marks an engine error after which the loaded model can no longer
// serve requests (crashed runtime, lost GPU context). Wrap it with %w.
var ErrFatal = errors.New("engine failed")

// ErrUnknownBackend is returned by Registry.New for unregistered names.
var ErrUnknownBackend = errors.New("unknown backend")

// dependencyUnavailableError signals a missing external dependency (e.g.
// llama.cpp not compiled in, llama-server binary not found).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var d dependencyUnavailableError
	return errors.As(err, &d)
}

// IsFatal reports whether err leaves the engine unusable.
func IsFatal(err error) bool { return errors.Is(err, ErrFatal) }

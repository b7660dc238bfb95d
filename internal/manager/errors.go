package manager

import (
	"errors"
	"fmt"
)

// ErrNoModel is returned by Execute when nothing is loaded.
var ErrNoModel = errors.New("no model loaded")

// ErrModelNotFound returns an error when a requested model id is not present in local storage.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// dependencyUnavailableError signals a missing external dependency (e.g., llama.cpp
// or the llama-server binary).
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing/failed runtime dependency.
func IsDependencyUnavailable(err error) bool {
	var e dependencyUnavailableError
	return errors.As(err, &e)
}

// inferencePanicError wraps a panic recovered from the runtime.
type inferencePanicError struct{ v any }

func (e inferencePanicError) Error() string { return "inference panic: " + fmt.Sprint(e.v) }

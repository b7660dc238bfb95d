package worker

import (
	"errors"
	"fmt"

	"sdminer/internal/coordinator"
	"sdminer/internal/manager"
)

// panicError wraps a panic recovered from one iteration.
type panicError struct{ v any }

func (e panicError) Error() string { return fmt.Sprintf("iteration panic: %v", e.v) }

// errorKind labels an iteration error "terminal" when retrying the same work
// cannot help, "retryable" otherwise. The loop continues either way.
func errorKind(err error) string {
	var pe panicError
	switch {
	case errors.As(err, &pe),
		coordinator.IsTerminal(err),
		manager.IsModelNotFound(err),
		manager.IsDependencyUnavailable(err):
		return "terminal"
	}
	return "retryable"
}

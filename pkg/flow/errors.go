package flow

import (
	"errors"
	"fmt"

	"github.com/kode4food/cascade/pkg/api"
)

type (
	// ExecutionError is a step's own failure. Its message is the message of
	// the error the step returned
	ExecutionError struct {
		Step api.StepName
		Err  error
	}

	// CycleLimitError reports a step in a router cycle that was selected
	// more times than its re-entry limit allows
	CycleLimitError struct {
		Step  api.StepName
		Limit int
	}
)

var (
	ErrGraphValidation  = errors.New("graph validation failed")
	ErrUnknownStep      = errors.New("source references an unknown step")
	ErrCycle            = errors.New("cycle does not pass through a router")
	ErrNoStartSteps     = errors.New("flow has no start steps")
	ErrUnboundedCycle   = errors.New("router cycle has no re-entry limit")
	ErrLabelOnNonRouter = errors.New("labeled source on a non-router step")
	ErrInvalidSource    = errors.New("invalid trigger source")

	ErrDuplicateStep = errors.New("step already registered")
	ErrInvalidStep   = errors.New("invalid step")
	ErrInvalidShape  = errors.New("state shape must encode as an object")

	ErrCycleLimitExceeded = errors.New("cycle limit exceeded")
	ErrStepPanicked       = errors.New("step panicked")
	ErrStepTimeout        = errors.New("step timed out")
	ErrCancelled          = errors.New("flow cancelled")
	ErrPersistence        = errors.New("snapshot persistence failed")
	ErrResume             = errors.New("cannot resume run")
	ErrInvalidTransition  = errors.New("invalid flow status transition")
	ErrUnknownKey         = errors.New("unknown state key")
)

// Fail returns an ExecutionError carrying msg. Steps may return it, or any
// other error, to fail
func Fail(msg string) error {
	return &ExecutionError{Err: errors.New(msg)}
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *CycleLimitError) Error() string {
	return fmt.Sprintf("%s: step %q exceeded %d re-entries",
		ErrCycleLimitExceeded, e.Step, e.Limit)
}

// Is matches ErrCycleLimitExceeded
func (e *CycleLimitError) Is(target error) bool {
	return target == ErrCycleLimitExceeded
}

func asExecutionError(step api.StepName, err error) *ExecutionError {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return &ExecutionError{Step: step, Err: ee.Err}
	}
	return &ExecutionError{Step: step, Err: err}
}

func validationError(cause error, format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s",
		ErrGraphValidation, cause, fmt.Sprintf(format, args...))
}

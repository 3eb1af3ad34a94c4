package cli

import (
	"fmt"

	"github.com/kode4food/cascade/pkg/api"
)

// ExitError carries the process exit code of a command that ran but did not
// succeed
type ExitError struct {
	Code int
	Err  error
}

const (
	ExitCompleted = 0
	ExitFailed    = 1
	ExitCancelled = 2
)

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitStatus maps a finished run to its exit error, or nil when it completed
func exitStatus(status api.FlowStatus, err error) error {
	switch status {
	case api.FlowCompleted:
		return nil
	case api.FlowCancelled:
		return &ExitError{Code: ExitCancelled, Err: err}
	default:
		return &ExitError{Code: ExitFailed, Err: err}
	}
}

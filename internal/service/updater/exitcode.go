package updater

import (
	"errors"
	"fmt"

	"github.com/oshokin/app-updater/internal/service/extractor"
	"github.com/oshokin/app-updater/internal/service/launcher"
)

// Process exit codes.
const (
	ExitSuccess               = 0
	ExitUnexpected            = 1
	ExitUsage                 = 2
	ExitFilePathInvalid       = 3
	ExitTargetPathInvalid     = 4
	ExitInsufficientDiskSpace = 5
	ExitLaunchFailed          = 6
	ExitAlreadyRunning        = 7
)

// ExitError carries the exit code the process should terminate with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d: %v", e.Code, e.Err)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code for an error returned by Run.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return ExitUnexpected
}

// exitCodeFor maps a flow error to its class exit code.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return ExitUsage
	case errors.Is(err, extractor.ErrFilePathInvalid):
		return ExitFilePathInvalid
	case errors.Is(err, extractor.ErrTargetPathInvalid):
		return ExitTargetPathInvalid
	case errors.Is(err, extractor.ErrInsufficientDiskSpace):
		return ExitInsufficientDiskSpace
	case errors.Is(err, launcher.ErrLaunch):
		return ExitLaunchFailed
	case errors.Is(err, errUpdaterAlreadyRunning):
		return ExitAlreadyRunning
	default:
		return ExitUnexpected
	}
}

// newExitError wraps err with the exit code of its class.
func newExitError(err error) *ExitError {
	return &ExitError{Code: exitCodeFor(err), Err: err}
}

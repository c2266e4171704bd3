package wrap

import (
	"errors"
	"fmt"
)

const (
	// ExitSetupFailure is returned for tunnel setup failures and missing
	// wrapped executables.
	ExitSetupFailure = 1
	// ExitInterrupt is returned after teardown when the user interrupted
	// the invocation.
	ExitInterrupt = 130
)

// ExitError carries the process exit code alongside the diagnostic to print.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ExitError) ExitCode() int {
	if e == nil {
		return 0
	}
	return e.Code
}

// CodeOf extracts the exit code from err, defaulting to ExitSetupFailure for
// errors that carry none.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr interface{ ExitCode() int }
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitSetupFailure
}

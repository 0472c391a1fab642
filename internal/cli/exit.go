package cli

import (
	"errors"
	"fmt"
)

// Exit codes. The error taxonomy keeps user-visible failures to
// configuration problems; anything else that escapes is an internal fault.
const (
	ExitSuccess  = 0
	ExitConfig   = 1 // bad flags, malformed world, unresolvable modules
	ExitInternal = 2 // export or database failures
)

// ExitError pairs an error with the process exit code it should produce.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError builds an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code and context to an underlying error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps an error to a process exit code. Errors that never
// picked up a code (cobra flag parsing, plain fmt.Errorf) count as
// configuration errors.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfig
}

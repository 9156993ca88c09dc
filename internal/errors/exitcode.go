package errors

import "errors"

// ExitCodeError wraps an error with the process exit code the CLI layer
// should use when surfacing it, so deep call sites can dictate their own
// exit code without the CLI layer re-deriving it by type-switching on
// sentinels.
type ExitCodeError struct {
	Err  error
	Code int
}

// NewExitCodeError wraps err with the given exit code.
func NewExitCodeError(err error, code int) *ExitCodeError {
	return &ExitCodeError{Err: err, Code: code}
}

// Error implements the error interface.
func (e *ExitCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is/errors.As to see through the wrapper.
func (e *ExitCodeError) Unwrap() error {
	return e.Err
}

// ExitCodeForError returns the exit code carried by err, or 1 for any
// other non-nil error, or 0 if err is nil.
func ExitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var ec *ExitCodeError
	if errors.As(err, &ec) {
		return ec.Code
	}
	return 1
}

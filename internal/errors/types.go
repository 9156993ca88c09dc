package errors

import (
	"errors"
	"fmt"
)

// InvalidTransitionError carries the offending states plus the only
// legal next state, per spec §7.
type InvalidTransitionError struct {
	From     string
	To       string
	ValidNext string
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if e.ValidNext == "" {
		return fmt.Sprintf("invalid transition from %s to %s: %s is terminal", e.From, e.To, e.From)
	}
	return fmt.Sprintf("invalid transition from %s to %s: only %s is valid", e.From, e.To, e.ValidNext)
}

// Unwrap allows errors.Is(err, ErrInvalidTransition) to succeed.
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// IncompleteItem is a reference to a checklist item blocking a transition.
type IncompleteItem struct {
	ID          string
	Title       string
	Description string
}

// StateChecklistIncompleteError carries the blocking state and the list
// of incomplete required items, per spec §4.6 and §7.
type StateChecklistIncompleteError struct {
	State           string
	IncompleteItems []IncompleteItem
}

// Error implements the error interface.
func (e *StateChecklistIncompleteError) Error() string {
	return fmt.Sprintf("%d required checklist item(s) incomplete for state %s", len(e.IncompleteItems), e.State)
}

// Unwrap allows errors.Is(err, ErrStateChecklistIncomplete) to succeed.
func (e *StateChecklistIncompleteError) Unwrap() error {
	return ErrStateChecklistIncomplete
}

// HistoryCorruptionError carries a human-readable description of the
// corruption detected in a task's workflow history.
type HistoryCorruptionError struct {
	Reason string
}

// Error implements the error interface.
func (e *HistoryCorruptionError) Error() string {
	return "state history corruption: " + e.Reason
}

// Unwrap allows errors.Is(err, ErrHistoryCorruption) to succeed.
func (e *HistoryCorruptionError) Unwrap() error {
	return ErrHistoryCorruption
}

// ExitCoder wraps an error with an explicit CLI exit code override,
// grounded on the teacher's ExitCode2Error but generalized to any code
// rather than hardcoding 2.
type ExitCoder struct {
	Err  error
	Code int
}

// NewExitCoder wraps err with an explicit exit code.
func NewExitCoder(err error, code int) *ExitCoder {
	return &ExitCoder{Err: err, Code: code}
}

// Error implements the error interface.
func (e *ExitCoder) Error() string {
	return e.Err.Error()
}

// Unwrap allows errors.Is/errors.As to see through to the wrapped error.
func (e *ExitCoder) Unwrap() error {
	return e.Err
}

// ExitCodeOf reports the exit code carried by err, if any, via the
// ExitCoder wrapper chain.
func ExitCodeOf(err error) (int, bool) {
	var e *ExitCoder
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

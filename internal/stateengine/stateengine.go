// Package stateengine implements pure, I/O-free functions over the six
// fixed workflow states: ordering, successor lookup, progress
// percentage, transition legality, and history integrity checking.
//
// Grounded on internal/task/state.go's style (an ordered lookup table
// plus derived data computed in init()), generalized from that
// teacher's branching multi-path machine to this package's strictly
// linear, +1-only sequence.
package stateengine

import (
	"fmt"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
)

// sequence is the fixed, ordered list of workflow states. Index in this
// slice is the only authoritative ordering.
var sequence = []domain.WorkflowState{ //nolint:gochecknoglobals // immutable ordering table
	domain.StateUnderstanding,
	domain.StateDesigning,
	domain.StateImplementing,
	domain.StateTesting,
	domain.StateReviewing,
	domain.StateReadyToCommit,
}

// indexOf is derived from sequence for O(1) lookups.
var indexOf = func() map[domain.WorkflowState]int { //nolint:gochecknoglobals // derived from sequence once
	m := make(map[domain.WorkflowState]int, len(sequence))
	for i, s := range sequence {
		m[s] = i
	}
	return m
}()

// Index returns s's position in the sequence, or -1 if s is unknown.
func Index(s domain.WorkflowState) int {
	if i, ok := indexOf[s]; ok {
		return i
	}
	return -1
}

// AllStates returns a fresh copy of the fixed state sequence.
func AllStates() []domain.WorkflowState {
	out := make([]domain.WorkflowState, len(sequence))
	copy(out, sequence)
	return out
}

// Next returns s's successor, or "" if s is the terminal state or
// unknown.
func Next(s domain.WorkflowState) domain.WorkflowState {
	i := Index(s)
	if i < 0 || i+1 >= len(sequence) {
		return ""
	}
	return sequence[i+1]
}

// Progress returns s's completion percentage in {0,20,40,60,80,100}, or
// -1 if s is unknown.
func Progress(s domain.WorkflowState) int {
	i := Index(s)
	if i < 0 {
		return -1
	}
	return (100 * i) / (len(sequence) - 1)
}

// IsValidTransition reports whether to is exactly from's successor.
func IsValidTransition(from, to domain.WorkflowState) bool {
	next := Next(from)
	return next != "" && next == to
}

// ValidateTransition returns a populated *errors.InvalidTransitionError
// if to is not from's successor, nil otherwise.
func ValidateTransition(from, to domain.WorkflowState) error {
	if IsValidTransition(from, to) {
		return nil
	}
	return &flowerrors.InvalidTransitionError{
		From:      string(from),
		To:        string(to),
		ValidNext: string(Next(from)),
	}
}

// ValidateHistory checks a workflow's recorded history for corruption:
// the current state must not appear in history, every history state
// must be known, and history indices must strictly increase by at
// least one step between entries. An empty history is always valid,
// per spec §4.2 (a task may skip through multiple early advances
// without recording them).
func ValidateHistory(wf *domain.Workflow) error {
	if wf == nil {
		return nil
	}

	for _, entry := range wf.StateHistory {
		if entry.State == wf.CurrentState {
			return &flowerrors.HistoryCorruptionError{
				Reason: fmt.Sprintf("current state %s found in history", wf.CurrentState),
			}
		}
		if Index(entry.State) < 0 {
			return &flowerrors.HistoryCorruptionError{
				Reason: fmt.Sprintf("unknown state %q in history", entry.State),
			}
		}
	}

	for i := 1; i < len(wf.StateHistory); i++ {
		prev := Index(wf.StateHistory[i-1].State)
		cur := Index(wf.StateHistory[i].State)
		if cur <= prev {
			return &flowerrors.HistoryCorruptionError{
				Reason: fmt.Sprintf("state history not strictly increasing: %s then %s", wf.StateHistory[i-1].State, wf.StateHistory[i].State),
			}
		}
	}

	if Index(wf.CurrentState) < 0 {
		return &flowerrors.HistoryCorruptionError{
			Reason: fmt.Sprintf("unknown current state %q", wf.CurrentState),
		}
	}

	return nil
}

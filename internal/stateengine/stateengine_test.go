package stateengine_test

import (
	"errors"
	"testing"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/stateengine"
	"github.com/stretchr/testify/assert"
)

func TestIndex(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, stateengine.Index(domain.StateUnderstanding))
	assert.Equal(t, 5, stateengine.Index(domain.StateReadyToCommit))
	assert.Equal(t, -1, stateengine.Index(domain.WorkflowState("BOGUS")))
}

func TestAllStatesReturnsFreshCopy(t *testing.T) {
	t.Parallel()

	states := stateengine.AllStates()
	assert.Len(t, states, 6)
	states[0] = "MUTATED"

	again := stateengine.AllStates()
	assert.Equal(t, domain.StateUnderstanding, again[0])
}

func TestNext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.StateDesigning, stateengine.Next(domain.StateUnderstanding))
	assert.Equal(t, domain.WorkflowState(""), stateengine.Next(domain.StateReadyToCommit))
	assert.Equal(t, domain.WorkflowState(""), stateengine.Next("BOGUS"))
}

func TestProgress(t *testing.T) {
	t.Parallel()

	cases := map[domain.WorkflowState]int{
		domain.StateUnderstanding: 0,
		domain.StateDesigning:     20,
		domain.StateImplementing:  40,
		domain.StateTesting:       60,
		domain.StateReviewing:     80,
		domain.StateReadyToCommit: 100,
	}
	for state, want := range cases {
		assert.Equal(t, want, stateengine.Progress(state), "state %s", state)
	}
	assert.Equal(t, -1, stateengine.Progress("BOGUS"))
}

func TestIsValidTransition(t *testing.T) {
	t.Parallel()

	assert.True(t, stateengine.IsValidTransition(domain.StateUnderstanding, domain.StateDesigning))
	assert.False(t, stateengine.IsValidTransition(domain.StateUnderstanding, domain.StateImplementing))
	assert.False(t, stateengine.IsValidTransition(domain.StateReadyToCommit, domain.StateUnderstanding))
}

func TestValidateTransition(t *testing.T) {
	t.Parallel()

	assert.NoError(t, stateengine.ValidateTransition(domain.StateUnderstanding, domain.StateDesigning))

	err := stateengine.ValidateTransition(domain.StateUnderstanding, domain.StateImplementing)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, flowerrors.ErrInvalidTransition))

	var target *flowerrors.InvalidTransitionError
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, "DESIGNING", target.ValidNext)
}

func TestValidateHistory_Empty(t *testing.T) {
	t.Parallel()

	wf := &domain.Workflow{CurrentState: domain.StateUnderstanding}
	assert.NoError(t, stateengine.ValidateHistory(wf))
	assert.NoError(t, stateengine.ValidateHistory(nil))
}

func TestValidateHistory_CurrentStateInHistory(t *testing.T) {
	t.Parallel()

	wf := &domain.Workflow{
		CurrentState: domain.StateDesigning,
		StateHistory: []domain.StateHistoryEntry{{State: domain.StateDesigning}},
	}
	err := stateengine.ValidateHistory(wf)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, flowerrors.ErrHistoryCorruption))
	assert.Contains(t, err.Error(), "current state")
}

func TestValidateHistory_NotStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	wf := &domain.Workflow{
		CurrentState: domain.StateTesting,
		StateHistory: []domain.StateHistoryEntry{
			{State: domain.StateDesigning},
			{State: domain.StateUnderstanding},
		},
	}
	err := stateengine.ValidateHistory(wf)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, flowerrors.ErrHistoryCorruption))
}

func TestValidateHistory_UnknownState(t *testing.T) {
	t.Parallel()

	wf := &domain.Workflow{
		CurrentState: domain.StateTesting,
		StateHistory: []domain.StateHistoryEntry{{State: "BOGUS"}},
	}
	err := stateengine.ValidateHistory(wf)
	assert.Error(t, err)
}

func TestValidateHistory_Valid(t *testing.T) {
	t.Parallel()

	wf := &domain.Workflow{
		CurrentState: domain.StateTesting,
		StateHistory: []domain.StateHistoryEntry{
			{State: domain.StateUnderstanding},
			{State: domain.StateDesigning},
			{State: domain.StateImplementing},
		},
	}
	assert.NoError(t, stateengine.ValidateHistory(wf))
}

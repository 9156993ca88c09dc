package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/flowlock/flowlock/internal/artifact"
	"github.com/flowlock/flowlock/internal/checklist"
	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/filesync"
	"github.com/flowlock/flowlock/internal/lifecycle"
	"github.com/flowlock/flowlock/internal/pattern"
	"github.com/flowlock/flowlock/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type alwaysAutoActivate struct{ enabled bool }

func (a alwaysAutoActivate) AutoActivateNext() bool { return a.enabled }

func newService(t *testing.T, autoActivate bool) *lifecycle.Service {
	t.Helper()
	dir := t.TempDir()
	c := fixedClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}

	store := queue.New(dir, c, alwaysAutoActivate{enabled: autoActivate})
	sync := filesync.New(dir, c)
	registry := checklist.NewRegistry()
	patterns := pattern.NewProvider(dir, c)
	require.NoError(t, patterns.Load(context.Background()))
	artifacts := artifact.New(dir)

	svc := lifecycle.New(store, sync, registry, patterns, artifacts, c, lifecycle.Config{})
	svc.LoadPatternChecklistItems()
	return svc
}

func completeRequiredItem(ctx context.Context, svc *lifecycle.Service, taskID string, _ domain.WorkflowState, itemID string) error {
	_, err := svc.MarkChecklistItem(ctx, taskID, itemID, "")
	return err
}

func TestCreateTask_ActivatesAndWritesArtefacts(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)

	task, err := svc.CreateTask(context.Background(), "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, task.Status)
	assert.NotEmpty(t, task.Checklist[domain.StateUnderstanding])
}

func TestCreateTask_QueuedTaskSkipsArtefacts(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)

	queued, err := svc.CreateTask(ctx, "implement the signup form", queue.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, queued.Status)
	assert.Nil(t, queued.Workflow)
}

func TestActivateTask_InitializesChecklistForNewlyCreatedWorkflow(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)
	second, err := svc.CreateTask(ctx, "implement the signup form", queue.CreateOptions{})
	require.NoError(t, err)

	activated, err := svc.ActivateTask(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, activated.Status)
	assert.NotEmpty(t, activated.Checklist[domain.StateUnderstanding])
}

func TestTransitionTo_BlockedByIncompleteChecklist(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	_, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)

	_, err = svc.TransitionTo(ctx, domain.StateDesigning)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowerrors.ErrStateChecklistIncomplete)
}

func TestTransitionTo_RejectsIllegalSkip(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)

	for _, item := range []string{"understand-requirements", "identify-ambiguities", "confirm-understanding"} {
		require.NoError(t, completeRequiredItem(ctx, svc, task.ID, domain.StateUnderstanding, item))
	}

	_, err = svc.TransitionTo(ctx, domain.StateImplementing)
	require.Error(t, err)
	assert.ErrorIs(t, err, flowerrors.ErrInvalidTransition)
}

func TestTransitionTo_AdvancesAndRecordsHistory(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)

	for _, item := range []string{"understand-requirements", "identify-ambiguities", "confirm-understanding"} {
		require.NoError(t, completeRequiredItem(ctx, svc, task.ID, domain.StateUnderstanding, item))
	}

	updated, err := svc.TransitionTo(ctx, domain.StateDesigning)
	require.NoError(t, err)
	assert.Equal(t, domain.StateDesigning, updated.Workflow.CurrentState)
	require.Len(t, updated.Workflow.StateHistory, 1)
	assert.Equal(t, domain.StateUnderstanding, updated.Workflow.StateHistory[0].State)
}

func TestTransitionTo_NoActiveTaskFails(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)

	_, err := svc.TransitionTo(context.Background(), domain.StateDesigning)
	assert.ErrorIs(t, err, flowerrors.ErrNoActiveTask)
}

func TestTransitionTo_InstantiatesReviewChecklistOnEnteringReviewing(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)

	states := []struct {
		from  domain.WorkflowState
		items []string
	}{
		{domain.StateUnderstanding, []string{"understand-requirements", "identify-ambiguities", "confirm-understanding"}},
		{domain.StateDesigning, []string{"create-design-doc", "design-approval"}},
		{domain.StateImplementing, []string{"write-code", "add-requirement-tags"}},
		{domain.StateTesting, []string{"create-test-plan", "write-tests", "run-tests"}},
	}

	for _, s := range states {
		for _, item := range s.items {
			require.NoError(t, completeRequiredItem(ctx, svc, task.ID, s.from, item))
		}
		_, err := svc.TransitionTo(ctx, nextOf(s.from))
		require.NoError(t, err)
	}

	current, err := svc.GetCurrentTask(ctx)
	require.NoError(t, err)
	require.NotNil(t, current.ReviewChecklist)
	assert.Len(t, current.ReviewChecklist.Items, 7)
}

func TestCompleteTask_RequiresReadyToCommit(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "implement the login form", queue.CreateOptions{})
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, task.ID, queue.CompleteOptions{})
	assert.ErrorIs(t, err, flowerrors.ErrNotReadyToCommit)
}

func TestGetCurrentTask_NilWhenNothingActive(t *testing.T) {
	t.Parallel()
	svc := newService(t, true)

	task, err := svc.GetCurrentTask(context.Background())
	require.NoError(t, err)
	assert.Nil(t, task)
}

func nextOf(state domain.WorkflowState) domain.WorkflowState {
	switch state {
	case domain.StateUnderstanding:
		return domain.StateDesigning
	case domain.StateDesigning:
		return domain.StateImplementing
	case domain.StateImplementing:
		return domain.StateTesting
	case domain.StateTesting:
		return domain.StateReviewing
	case domain.StateReviewing:
		return domain.StateReadyToCommit
	default:
		return ""
	}
}

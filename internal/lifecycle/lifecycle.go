// Package lifecycle composes the queue store, file sync, checklist
// registry, pattern provider, and artefact writer into the five atomic
// user-facing operations described in spec §4.8: Creation, Activation,
// State update, Completion, and Retrieval.
//
// Grounded on internal/task/state_manager.go's engine-method-per-
// transition style (load → validate → transition → persist →
// side-effect) and internal/task/engine.go's retry-on-race idiom,
// narrowed to the single 10ms retry spec §4.8 and §9 call for.
package lifecycle

import (
	"context"
	"time"

	"github.com/flowlock/flowlock/internal/artifact"
	"github.com/flowlock/flowlock/internal/checklist"
	"github.com/flowlock/flowlock/internal/clock"
	"github.com/flowlock/flowlock/internal/ctxutil"
	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/filesync"
	"github.com/flowlock/flowlock/internal/pattern"
	"github.com/flowlock/flowlock/internal/queue"
	"github.com/flowlock/flowlock/internal/stateengine"
)

// raceRetryDelay is the single retry delay absorbing the cross-process
// write-then-read race described in spec §4.8 and §9.
const raceRetryDelay = 10 * time.Millisecond

// Config carries the lifecycle-wide overrides not owned by any single
// collaborator.
type Config struct {
	// RetentionDays is the archive horizon; ArchiveOldTasks uses 30
	// days when it is 0 or negative.
	RetentionDays int
}

// Service orchestrates the five lifecycle shapes over a single task
// store, file-sync target, checklist registry, pattern provider, and
// artefact writer.
type Service struct {
	queue      queue.Store
	sync       *filesync.Sync
	checklists *checklist.Registry
	patterns   *pattern.Provider
	artifacts  *artifact.Writer
	clock      clock.Clock
	cfg        Config

	patternItemsLoaded bool
}

// New returns a Service composing its collaborators. LoadPatternChecklistItems
// should be called once after construction, before the first lifecycle
// operation, to seed the checklist registry with pattern-derived items.
func New(store queue.Store, sync *filesync.Sync, checklists *checklist.Registry, patterns *pattern.Provider, artifacts *artifact.Writer, c clock.Clock, cfg Config) *Service {
	return &Service{
		queue:      store,
		sync:       sync,
		checklists: checklists,
		patterns:   patterns,
		artifacts:  artifacts,
		clock:      c,
		cfg:        cfg,
	}
}

// LoadPatternChecklistItems wires each workflow state's pattern-derived
// checklist items into the registry exactly once. Calling it more than
// once would duplicate registry entries, since Registry.AddItems never
// deduplicates by id.
func (s *Service) LoadPatternChecklistItems() {
	if s.patternItemsLoaded {
		return
	}
	for _, state := range stateengine.AllStates() {
		if items := s.patterns.GenerateChecklistItems(state); len(items) > 0 {
			s.checklists.AddItems(state, items...)
		}
	}
	s.patternItemsLoaded = true
}

// CreateTask is the Creation shape: validate → queue.CreateTask → if the
// resulting task is ACTIVE, sync it to the legacy file (preserving
// requirements) and regenerate context artefacts.
func (s *Service) CreateTask(ctx context.Context, goal string, opts queue.CreateOptions) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	task, err := s.queue.CreateTask(ctx, goal, opts)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.StatusActive {
		return task, nil
	}

	task, err = s.ensureChecklistInitialized(ctx, task)
	if err != nil {
		return nil, err
	}
	if err := s.syncAndRegenerate(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ActivateTask is the Activation shape: queue.ActivateTask → sync →
// regenerate artefacts.
func (s *Service) ActivateTask(ctx context.Context, id string) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	task, err := s.queue.ActivateTask(ctx, id)
	if err != nil {
		return nil, err
	}
	task, err = s.ensureChecklistInitialized(ctx, task)
	if err != nil {
		return nil, err
	}
	if err := s.syncAndRegenerate(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ensureChecklistInitialized materializes task's current-state
// checklist if it has not already been, persisting the result. A task
// reactivated after a prior run through this state keeps its existing
// completion entries, since InitializeStateChecklist never overwrites
// them.
func (s *Service) ensureChecklistInitialized(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task.Workflow == nil {
		return task, nil
	}
	return s.queue.UpdateTask(ctx, task.ID, func(t *domain.Task) error {
		s.checklists.InitializeStateChecklist(t, t.Workflow.CurrentState)
		return nil
	})
}

// TransitionTo is the State update shape: load the active task
// (preferring the queue, with one 10ms retry to ride out a
// cross-process write race), validate the transition and the
// state-checklist gate, append history, set the new current state, and
// instantiate the ReviewChecklist when entering REVIEWING. Persists the
// queue, syncs the legacy file with a backup, and regenerates
// artefacts.
func (s *Service) TransitionTo(ctx context.Context, next domain.WorkflowState) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	active, err := s.loadActiveWithRetry(ctx)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, flowerrors.ErrNoActiveTask
	}

	validationWorkflow := active.Workflow
	if edited, err := s.sync.DetectManualEdit(active); err == nil && edited {
		if legacy, err := s.sync.ReadLegacyTask(); err == nil && legacy != nil && legacy.Workflow != nil {
			validationWorkflow = legacy.Workflow
		}
	}
	if err := stateengine.ValidateHistory(validationWorkflow); err != nil {
		return nil, err
	}

	current := active.Workflow.CurrentState
	if err := stateengine.ValidateTransition(current, next); err != nil {
		return nil, err
	}
	if err := s.checklists.CheckGate(active, current); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	updated, err := s.queue.UpdateTask(ctx, active.ID, func(t *domain.Task) error {
		t.Workflow.StateHistory = append(t.Workflow.StateHistory, domain.StateHistoryEntry{
			State:     t.Workflow.CurrentState,
			EnteredAt: t.Workflow.StateEnteredAt,
		})
		t.Workflow.CurrentState = next
		t.Workflow.StateEnteredAt = now

		s.checklists.InitializeStateChecklist(t, next)
		if next == domain.StateReviewing {
			t.ReviewChecklist = checklist.DefaultReviewChecklist()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.sync.SyncFromQueue(ctx, updated, filesync.SyncOptions{
		PreserveFields: []string{"requirements"},
		Backup:         true,
	}); err != nil {
		return nil, err
	}
	if err := s.regenerateArtifacts(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// CompleteTask is the Completion shape: require READY_TO_COMMIT, then
// queue.CompleteTask (which may auto-activate a successor). If a
// successor was activated, sync and regenerate artefacts for it;
// otherwise sync the completed task to file (so the legacy file keeps
// showing it, now with status "completed") and remove the derived
// artefacts.
func (s *Service) CompleteTask(ctx context.Context, id string, opts queue.CompleteOptions) (*queue.CompleteResult, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	task, err := s.queue.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Workflow == nil || task.Workflow.CurrentState != domain.StateReadyToCommit {
		return nil, flowerrors.ErrNotReadyToCommit
	}

	result, err := s.queue.CompleteTask(ctx, id, opts)
	if err != nil {
		return nil, err
	}

	if result.NextActive != nil {
		if err := s.syncAndRegenerate(ctx, result.NextActive); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := s.sync.SyncFromQueue(ctx, result.Completed, filesync.SyncOptions{}); err != nil {
		return nil, err
	}
	if err := s.artifacts.RemoveTaskArtifacts(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkChecklistItem marks itemID complete for the active task's current
// workflow state, per spec §4.6's markItemComplete(itemId, notes?), and
// regenerates artefacts so NEXT_STEPS.md reflects the new completion.
func (s *Service) MarkChecklistItem(ctx context.Context, taskID, itemID, notes string) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	updated, err := s.queue.UpdateTask(ctx, taskID, func(t *domain.Task) error {
		if t.Workflow == nil {
			return flowerrors.ErrNoActiveTask
		}
		return checklist.MarkItemComplete(t, t.Workflow.CurrentState, itemID, notes, now)
	})
	if err != nil {
		return nil, err
	}
	if err := s.regenerateArtifacts(updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkReviewItem marks itemID complete on the active task's
// ReviewChecklist, creating the checklist on demand if it was never
// instantiated, per §6's "check is accepted even if the checklist was
// never instantiated" rule.
func (s *Service) MarkReviewItem(ctx context.Context, taskID, itemID, notes string) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	updated, err := s.queue.UpdateTask(ctx, taskID, func(t *domain.Task) error {
		if t.ReviewChecklist == nil {
			t.ReviewChecklist = checklist.DefaultReviewChecklist()
		}
		for i := range t.ReviewChecklist.Items {
			if t.ReviewChecklist.Items[i].ID == itemID {
				t.ReviewChecklist.Items[i].Completion = domain.ItemCompletion{
					Completed:   true,
					CompletedAt: &now,
					Notes:       notes,
				}
				return nil
			}
		}
		return flowerrors.ErrChecklistItemNotFound
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetCurrentTask is the Retrieval shape: prefer the queue's active
// task; if none, fall back to the legacy file's in-progress task.
// completed legacy files return nil, per spec §4.8.
func (s *Service) GetCurrentTask(ctx context.Context) (*domain.Task, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	active, err := s.loadActiveWithRetry(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}
	return s.sync.ReadLegacyTask()
}

// ArchiveOldTasks archives DONE tasks older than the configured
// retention horizon, defaulting to 30 days.
func (s *Service) ArchiveOldTasks(ctx context.Context) (int, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return 0, err
	}
	horizon := s.cfg.RetentionDays
	if horizon <= 0 {
		horizon = 30
	}
	return s.queue.ArchiveOldTasks(ctx, horizon)
}

// loadActiveWithRetry loads the queue's active task, retrying once
// after raceRetryDelay if the first read finds none, per spec §4.8 and
// §9's cross-process write race allowance.
func (s *Service) loadActiveWithRetry(ctx context.Context) (*domain.Task, error) {
	active, err := s.queue.GetActiveTask(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(raceRetryDelay):
	}

	return s.queue.GetActiveTask(ctx)
}

func (s *Service) syncAndRegenerate(ctx context.Context, task *domain.Task) error {
	if err := s.sync.SyncFromQueue(ctx, task, filesync.SyncOptions{
		PreserveFields: []string{"requirements"},
	}); err != nil {
		return err
	}
	return s.regenerateArtifacts(task)
}

func (s *Service) regenerateArtifacts(task *domain.Task) error {
	if task.Workflow == nil {
		return nil
	}
	items := s.checklists.ItemsForState(task.Workflow.CurrentState, task.Tags)
	completion := make(artifact.CompletionMap, len(items))
	stateMap := task.Checklist[task.Workflow.CurrentState]
	for _, item := range items {
		if c, ok := stateMap[item.ID]; ok {
			completion[item.ID] = c.Completed
		}
	}
	return s.artifacts.Regenerate(task, items, completion, true)
}

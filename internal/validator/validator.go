// Package validator composes the pure checks of internal/stateengine
// with cross-source consistency checks and the aggregate validateAll
// report described in spec §4.5.
//
// Grounded on internal/task/state.go's validate-before-mutate structure
// (compute the error, never mutate on failure) and the teacher's
// sentinel-error package shape; the concurrent three-way fan-out in
// ValidateAll is grounded on internal/validation/parallel.go's
// runParallelLintTest, which collects every goroutine's result under a
// mutex and returns nil from errgroup.Go so one failure never discards
// another branch's result.
package validator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/stateengine"
)

// ValidateStateTransition is a thin wrapper around
// stateengine.ValidateTransition, kept as its own entry point per spec
// §4.5 so callers name the check they want without reaching past this
// package into stateengine directly.
func ValidateStateTransition(current, next domain.WorkflowState) error {
	return stateengine.ValidateTransition(current, next)
}

// ValidateStateHistory extends stateengine.ValidateHistory with the
// skip-forward check spec §4.5 asks for beyond plain corruption
// detection: consecutive history entries, and the jump from the last
// history entry to the current state, must each advance by exactly one
// step. stateengine.ValidateHistory already rejects regressions (a
// state history out of order is corruption either way); this only adds
// the ">1" half of "regressions and skip-forwards >1".
func ValidateStateHistory(wf *domain.Workflow) error {
	if err := stateengine.ValidateHistory(wf); err != nil {
		return err
	}
	if wf == nil || len(wf.StateHistory) == 0 {
		return nil
	}

	for i := 1; i < len(wf.StateHistory); i++ {
		prev := stateengine.Index(wf.StateHistory[i-1].State)
		cur := stateengine.Index(wf.StateHistory[i].State)
		if cur-prev > 1 {
			return &flowerrors.HistoryCorruptionError{
				Reason: fmt.Sprintf("state history skips forward: %s then %s", wf.StateHistory[i-1].State, wf.StateHistory[i].State),
			}
		}
	}

	last := wf.StateHistory[len(wf.StateHistory)-1].State
	if stateengine.Index(wf.CurrentState)-stateengine.Index(last) > 1 {
		return &flowerrors.HistoryCorruptionError{
			Reason: fmt.Sprintf("current state skips forward from history: %s then %s", last, wf.CurrentState),
		}
	}
	return nil
}

// CrossCheckResult reports the outcome of ValidateBoth.
type CrossCheckResult struct {
	Valid  bool
	Error  error
	Source string // "queue", "file", or "both"
}

// ValidateBoth validates queueTask and fileTask independently, then
// cross-checks their id, goal, and current-workflow-state agreement,
// per spec §4.5.
func ValidateBoth(queueTask, fileTask *domain.Task) CrossCheckResult {
	if queueTask != nil && queueTask.Workflow != nil {
		if err := ValidateStateHistory(queueTask.Workflow); err != nil {
			return CrossCheckResult{Valid: false, Error: err, Source: "queue"}
		}
	}
	if fileTask != nil && fileTask.Workflow != nil {
		if err := ValidateStateHistory(fileTask.Workflow); err != nil {
			return CrossCheckResult{Valid: false, Error: err, Source: "file"}
		}
	}

	if queueTask == nil || fileTask == nil {
		return CrossCheckResult{Valid: true, Source: "both"}
	}

	if queueTask.ID != fileTask.ID {
		return CrossCheckResult{
			Valid:  false,
			Error:  fmt.Errorf("%w: queue id %q, file taskId %q", flowerrors.ErrHistoryCorruption, queueTask.ID, fileTask.ID),
			Source: "both",
		}
	}
	if queueTask.Goal != fileTask.Goal {
		return CrossCheckResult{
			Valid:  false,
			Error:  fmt.Errorf("%w: queue goal %q, file originalGoal %q", flowerrors.ErrHistoryCorruption, queueTask.Goal, fileTask.Goal),
			Source: "both",
		}
	}
	if queueTask.Workflow != nil && fileTask.Workflow != nil &&
		queueTask.Workflow.CurrentState != fileTask.Workflow.CurrentState {
		return CrossCheckResult{
			Valid:  false,
			Error:  fmt.Errorf("%w: queue state %q, file state %q", flowerrors.ErrHistoryCorruption, queueTask.Workflow.CurrentState, fileTask.Workflow.CurrentState),
			Source: "both",
		}
	}

	return CrossCheckResult{Valid: true, Source: "both"}
}

// ArtifactChecker reports whether the required context artefacts exist
// for a task. Implemented by internal/artifact.
type ArtifactChecker interface {
	ArtifactsPresent(ctx context.Context, taskID string) (bool, error)
}

// PatternReport is the pattern-compliance summary produced by
// internal/pattern for the active workflow state.
type PatternReport struct {
	Violations []PatternViolation
}

// PatternViolation is one pattern-compliance failure.
type PatternViolation struct {
	PatternID string
	Severity  string // "error", "warning", "info"
	Message   string
}

// HasBlockingViolation reports whether any violation is severity
// "error"; warning/info violations are non-blocking per spec §4.5.
func (r PatternReport) HasBlockingViolation() bool {
	for _, v := range r.Violations {
		if v.Severity == "error" {
			return true
		}
	}
	return false
}

// PatternChecker produces a compliance report for a task's current
// state. Implemented by internal/pattern.
type PatternChecker interface {
	CheckCompliance(ctx context.Context, task *domain.Task) (PatternReport, error)
}

// AllOptions configures ValidateAll.
type AllOptions struct {
	// UseCachedResults is accepted but not read: ValidateAll always calls
	// the PatternChecker, whatever this flag says.
	UseCachedResults bool
}

// AllResult is the aggregate report produced by ValidateAll.
type AllResult struct {
	WorkflowValid  bool
	WorkflowError  error
	ArtifactsValid bool
	ArtifactsError error
	Patterns       PatternReport
	PatternsError  error
	Overall        bool
}

// ValidateAll runs the three independent checks described in spec
// §4.5 concurrently: workflow/history validity, required
// context-artefact presence, and pattern-compliance. Overall is the
// conjunction of all three, excluding warning/info pattern violations.
func ValidateAll(ctx context.Context, task *domain.Task, artifacts ArtifactChecker, patterns PatternChecker, opts AllOptions) AllResult {
	var (
		mu     sync.Mutex
		result AllResult
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := ValidateStateHistory(task.Workflow)
		mu.Lock()
		result.WorkflowValid = err == nil
		result.WorkflowError = err
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		present, err := artifacts.ArtifactsPresent(gctx, task.ID)
		mu.Lock()
		result.ArtifactsValid = err == nil && present
		result.ArtifactsError = err
		mu.Unlock()
		return nil
	})

	g.Go(func() error {
		report, err := patterns.CheckCompliance(gctx, task)
		mu.Lock()
		result.Patterns = report
		result.PatternsError = err
		mu.Unlock()
		return nil
	})

	_ = g.Wait()
	_ = opts

	result.Overall = result.WorkflowValid && result.ArtifactsValid &&
		result.PatternsError == nil && !result.Patterns.HasBlockingViolation()
	return result
}

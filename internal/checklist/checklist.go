// Package checklist implements the default per-state checklist
// registry and per-task completion tracking described in spec §4.6:
// item materialization, completion marking, and the
// StateChecklistIncomplete gate that blocks a transition until every
// required item for the current state is done.
//
// Grounded on internal/backlog/types.go's Validate*-method-per-field
// style, generalized from "validate one struct" to "materialize and
// track a list of items keyed by state."
package checklist

import (
	"time"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
)

// defaultItems is the built-in state→items table from spec §4.6.
var defaultItems = map[domain.WorkflowState][]domain.ChecklistItem{ //nolint:gochecknoglobals // immutable default table
	domain.StateUnderstanding: {
		{ID: "understand-requirements", Title: "Understand requirements", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "identify-ambiguities", Title: "Identify ambiguities", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "confirm-understanding", Title: "Confirm understanding", Required: true, Priority: domain.ItemPriorityHigh},
	},
	domain.StateDesigning: {
		{ID: "create-design-doc", Title: "Create design doc", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "design-approval", Title: "Obtain design approval", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "plan-implementation", Title: "Plan implementation", Required: false, Priority: domain.ItemPriorityMedium},
	},
	domain.StateImplementing: {
		{ID: "write-code", Title: "Write code", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "add-requirement-tags", Title: "Add requirement tags", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "follow-patterns", Title: "Follow patterns", Required: false, Priority: domain.ItemPriorityMedium},
	},
	domain.StateTesting: {
		{ID: "create-test-plan", Title: "Create test plan", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "write-tests", Title: "Write tests", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "run-tests", Title: "Run tests", Required: true, Priority: domain.ItemPriorityHigh},
	},
	domain.StateReviewing: {
		{ID: "run-validation", Title: "Run validation", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "code-quality-review", Title: "Code quality review", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "requirements-verification", Title: "Requirements verification", Required: true, Priority: domain.ItemPriorityHigh},
	},
	domain.StateReadyToCommit: {
		{ID: "all-tests-passing", Title: "All tests passing", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "validation-passed", Title: "Validation passed", Required: true, Priority: domain.ItemPriorityHigh},
		{ID: "no-warnings", Title: "No warnings", Required: false, Priority: domain.ItemPriorityLow},
	},
}

// Registry holds the default checklist items plus any extra items
// contributed by the pattern provider (§4.7).
type Registry struct {
	items map[domain.WorkflowState][]domain.ChecklistItem
}

// NewRegistry returns a Registry seeded with the spec's default items.
func NewRegistry() *Registry {
	r := &Registry{items: make(map[domain.WorkflowState][]domain.ChecklistItem, len(defaultItems))}
	for state, items := range defaultItems {
		cp := make([]domain.ChecklistItem, len(items))
		copy(cp, items)
		r.items[state] = cp
	}
	return r
}

// AddItems appends extra items (typically generated from patterns) to
// state's list. Safe to call multiple times; items are not deduplicated
// by id, matching the pattern provider's one-item-per-pattern
// contribution per materialization.
func (r *Registry) AddItems(state domain.WorkflowState, items ...domain.ChecklistItem) {
	r.items[state] = append(r.items[state], items...)
}

// ItemsForState returns every item registered for state whose condition
// (if any) matches tags.
func (r *Registry) ItemsForState(state domain.WorkflowState, tags []string) []domain.ChecklistItem {
	var out []domain.ChecklistItem
	for _, item := range r.items[state] {
		if item.Condition.Matches(tags) {
			out = append(out, item)
		}
	}
	return out
}

// InitializeStateChecklist materializes the completion map for state on
// task, honoring each item's condition predicate against task's tags.
// Existing completion entries for the state are preserved; only new
// items gain a fresh, incomplete entry.
func (r *Registry) InitializeStateChecklist(task *domain.Task, state domain.WorkflowState) {
	if task.Checklist == nil {
		task.Checklist = make(map[domain.WorkflowState]map[string]domain.ItemCompletion)
	}
	existing := task.Checklist[state]
	if existing == nil {
		existing = make(map[string]domain.ItemCompletion)
	}

	for _, item := range r.ItemsForState(state, task.Tags) {
		if _, ok := existing[item.ID]; !ok {
			existing[item.ID] = domain.ItemCompletion{Completed: false}
		}
	}
	task.Checklist[state] = existing
}

// MarkItemComplete flips itemID's completion flag for state and
// timestamps it. Returns ErrChecklistItemNotFound if the item was never
// materialized for this task/state.
func MarkItemComplete(task *domain.Task, state domain.WorkflowState, itemID, notes string, now time.Time) error {
	stateMap := task.Checklist[state]
	if stateMap == nil {
		return flowerrors.ErrChecklistItemNotFound
	}
	completion, ok := stateMap[itemID]
	if !ok {
		return flowerrors.ErrChecklistItemNotFound
	}
	completion.Completed = true
	completion.CompletedAt = &now
	completion.Notes = notes
	stateMap[itemID] = completion
	return nil
}

// IsStateComplete reports whether every required item registered for
// state (given task's tags) is marked completed on task.
func (r *Registry) IsStateComplete(task *domain.Task, state domain.WorkflowState) bool {
	stateMap := task.Checklist[state]
	for _, item := range r.ItemsForState(state, task.Tags) {
		if !item.Required {
			continue
		}
		completion, ok := stateMap[item.ID]
		if !ok || !completion.Completed {
			return false
		}
	}
	return true
}

// DefaultReviewChecklist returns the 7-item ReviewChecklist instantiated
// when a task enters REVIEWING, per spec §4.6: one automated
// run-validation item plus six manual review categories.
func DefaultReviewChecklist() *domain.ReviewChecklist {
	return &domain.ReviewChecklist{
		Items: []domain.ReviewChecklistItem{
			{ID: "run-validation", Title: "Run validation", Action: domain.ReviewAction{Kind: "command", Command: "validate", ExpectedExitCode: 0}},
			{ID: "code-quality", Title: "Code quality review", Action: domain.ReviewAction{Kind: "review"}},
			{ID: "requirements-coverage", Title: "Requirements coverage review", Action: domain.ReviewAction{Kind: "review"}},
			{ID: "test-coverage", Title: "Test coverage review", Action: domain.ReviewAction{Kind: "review"}},
			{ID: "error-handling", Title: "Error handling review", Action: domain.ReviewAction{Kind: "review"}},
			{ID: "security-review", Title: "Security review", Action: domain.ReviewAction{Kind: "review"}},
			{ID: "documentation-review", Title: "Documentation review", Action: domain.ReviewAction{Kind: "review"}},
		},
	}
}

// CheckGate returns a populated *errors.StateChecklistIncompleteError
// listing every incomplete required item for state, or nil if state is
// complete. This is the error transitionTo must surface per spec §4.6's
// gating rule.
func (r *Registry) CheckGate(task *domain.Task, state domain.WorkflowState) error {
	stateMap := task.Checklist[state]

	var incomplete []flowerrors.IncompleteItem
	for _, item := range r.ItemsForState(state, task.Tags) {
		if !item.Required {
			continue
		}
		completion, ok := stateMap[item.ID]
		if ok && completion.Completed {
			continue
		}
		incomplete = append(incomplete, flowerrors.IncompleteItem{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
		})
	}

	if len(incomplete) == 0 {
		return nil
	}
	return &flowerrors.StateChecklistIncompleteError{
		State:           string(state),
		IncompleteItems: incomplete,
	}
}

package domain

import "time"

// StateHistoryEntry records one prior occupancy of a workflow state.
type StateHistoryEntry struct {
	State     WorkflowState `json:"state"`
	EnteredAt time.Time     `json:"enteredAt"`
}

// Workflow tracks a task's progress through the six-phase lifecycle.
// Present on a task iff it has ever been activated.
type Workflow struct {
	CurrentState   WorkflowState       `json:"currentState"`
	StateEnteredAt time.Time           `json:"stateEnteredAt"`
	StateHistory   []StateHistoryEntry `json:"stateHistory"`
}

// ItemCompletion tracks whether a single checklist item has been
// satisfied for a given task.
type ItemCompletion struct {
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Task is one entry in the queue store.
type Task struct {
	ID             string                    `json:"id"`
	Goal           string                    `json:"goal"`
	Status         TaskStatus                `json:"status"`
	Priority       Priority                  `json:"priority"`
	Tags           []string                  `json:"tags"`
	CreatedAt      time.Time                 `json:"createdAt"`
	ActivatedAt    *time.Time                `json:"activatedAt,omitempty"`
	CompletedAt    *time.Time                `json:"completedAt,omitempty"`
	EstimatedTime  float64                   `json:"estimatedTime,omitempty"`
	ActualTime     float64                   `json:"actualTime,omitempty"`
	Requirements   []string                  `json:"requirements,omitempty"`
	Workflow       *Workflow                 `json:"workflow,omitempty"`
	ReviewChecklist *ReviewChecklist         `json:"reviewChecklist,omitempty"`

	// Checklist is per-state, per-item completion tracking, keyed first
	// by WorkflowState then by checklist item id. Not part of the
	// load-bearing external contract in spec §6, but persisted so
	// completion survives process restarts.
	Checklist map[WorkflowState]map[string]ItemCompletion `json:"checklist,omitempty"`
}

// Metadata holds the derived, recomputed-after-every-mutation counters
// for a QueueStore.
type Metadata struct {
	TotalTasks     int       `json:"totalTasks"`
	QueuedCount    int       `json:"queuedCount"`
	ActiveCount    int       `json:"activeCount"`
	CompletedCount int       `json:"completedCount"`
	ArchivedCount  int       `json:"archivedCount"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Recompute sets every counter in m from tasks. Called after every
// mutation per spec §3 invariant 4.
func (m *Metadata) Recompute(tasks []Task, now time.Time) {
	m.TotalTasks = len(tasks)
	m.QueuedCount = 0
	m.ActiveCount = 0
	m.CompletedCount = 0
	m.ArchivedCount = 0
	for i := range tasks {
		switch tasks[i].Status {
		case StatusQueued:
			m.QueuedCount++
		case StatusActive:
			m.ActiveCount++
		case StatusDone:
			m.CompletedCount++
		case StatusArchived:
			m.ArchivedCount++
		}
	}
	m.LastUpdated = now
}

// QueueStore is the authoritative, persisted root object: all tasks and
// at most one active task id.
type QueueStore struct {
	Tasks        []Task   `json:"tasks"`
	ActiveTaskID *string  `json:"activeTaskId"`
	Metadata     Metadata `json:"metadata"`
}

// FindTask returns a pointer into s.Tasks for the task with the given
// id, or nil if none exists. The pointer aliases the slice backing
// array, so callers may mutate the returned task in place before a
// subsequent persist.
func (s *QueueStore) FindTask(id string) *Task {
	for i := range s.Tasks {
		if s.Tasks[i].ID == id {
			return &s.Tasks[i]
		}
	}
	return nil
}

// ActiveTask returns the currently active task, or nil if none.
func (s *QueueStore) ActiveTask() *Task {
	if s.ActiveTaskID == nil {
		return nil
	}
	return s.FindTask(*s.ActiveTaskID)
}

// LegacyTask is the derived single-task file view kept for backward
// compatibility and external AI-agent context. Field names intentionally
// differ from Task's per spec §3/§6.
type LegacyTask struct {
	TaskID          string           `json:"taskId"`
	OriginalGoal    string           `json:"originalGoal"`
	Status          string           `json:"status"` // lowercase: in_progress | completed
	StartedAt       time.Time        `json:"startedAt"`
	CompletedAt     *time.Time       `json:"completedAt,omitempty"`
	Workflow        *Workflow        `json:"workflow,omitempty"`
	Requirements    []string         `json:"requirements,omitempty"`
	ReviewChecklist *ReviewChecklist `json:"reviewChecklist,omitempty"`
}

// Legacy status values, lowercase per spec §3.
const (
	LegacyStatusInProgress = "in_progress"
	LegacyStatusCompleted  = "completed"
)

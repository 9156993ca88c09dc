// Package queue implements the authoritative JSON task store described
// in spec §4.3: task creation, activation, completion, listing, and
// archival, all mutations serialized under the file lock.
//
// Grounded on internal/task/store.go's FileStore: the same
// atomic-write-via-temp-then-rename helper, directory/file permission
// constants, and id-generation/disambiguation strategy, adapted from
// one-file-per-task storage to a single JSON document holding every
// task plus derived metadata.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/flowlock/flowlock/internal/clock"
	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/filelock"
	"github.com/flowlock/flowlock/internal/ioretry"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600
)

// AutoActivateSource answers whether completion should automatically
// activate the next queued task. Implemented by internal/config.
type AutoActivateSource interface {
	AutoActivateNext() bool
}

// CreateOptions carries the optional fields accepted by CreateTask.
type CreateOptions struct {
	Priority      domain.Priority
	Tags          []string
	EstimatedTime string // human phrase, parsed per spec §3
	Requirements  []string
	ForceActivate bool
	Queue         bool // caller explicitly requested queuing over activation
}

// CompleteOptions carries the optional override accepted by
// CompleteTask.
type CompleteOptions struct {
	AutoActivateNext *bool // explicit override; wins over config per spec §4.3
}

// CompleteResult reports the outcome of CompleteTask.
type CompleteResult struct {
	Completed       *domain.Task
	NextActive      *domain.Task
	AlreadyCompleted bool
}

// ListOptions filters and bounds ListTasks.
type ListOptions struct {
	Status          []domain.TaskStatus
	Limit           int
	IncludeArchived bool
}

// Store is the persistence interface for the task queue.
type Store interface {
	CreateTask(ctx context.Context, goal string, opts CreateOptions) (*domain.Task, error)
	ActivateTask(ctx context.Context, id string) (*domain.Task, error)
	CompleteTask(ctx context.Context, id string, opts CompleteOptions) (*CompleteResult, error)
	ListTasks(ctx context.Context, opts ListOptions) ([]domain.Task, error)
	ArchiveOldTasks(ctx context.Context, horizonDays int) (int, error)
	GetActiveTask(ctx context.Context) (*domain.Task, error)
	Load(ctx context.Context) (*domain.QueueStore, error)
	Save(ctx context.Context, store *domain.QueueStore) error
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, mutate func(*domain.Task) error) (*domain.Task, error)
}

// FileStore is the on-disk implementation of Store, rooted at
// contextDir (typically <projectRoot>/.ai-context).
type FileStore struct {
	contextDir string
	clock      clock.Clock
	autoActivate AutoActivateSource
}

// New returns a FileStore rooted at contextDir.
func New(contextDir string, c clock.Clock, autoActivate AutoActivateSource) *FileStore {
	return &FileStore{contextDir: contextDir, clock: c, autoActivate: autoActivate}
}

// QueuePath returns the path to the authoritative queue file.
func (s *FileStore) QueuePath() string {
	return filepath.Join(s.contextDir, "tasks.json")
}

// Load reads the queue file without taking the lock, per spec §5
// (read-only operations perform unlocked reads). Returns an empty store
// if the file does not exist.
func (s *FileStore) Load(_ context.Context) (*domain.QueueStore, error) {
	data, err := os.ReadFile(s.QueuePath()) //nolint:gosec // path is derived from a caller-configured project root, not request input
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.QueueStore{Tasks: []domain.Task{}}, nil
		}
		return nil, err
	}
	var store domain.QueueStore
	if err := json.Unmarshal(data, &store); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.QueuePath(), err)
	}
	return &store, nil
}

// Save recomputes metadata and writes store atomically. Callers mutating
// the store must hold the file lock first. The write is retried per
// internal/ioretry's classification, absorbing the transient ENOENT/
// EMFILE conditions spec §7 names.
func (s *FileStore) Save(ctx context.Context, store *domain.QueueStore) error {
	store.Metadata.Recompute(store.Tasks, s.clock.Now().UTC())

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return err
	}

	return ioretry.Do(ctx, func() error {
		if err := os.MkdirAll(s.contextDir, dirPerm); err != nil {
			return err
		}
		return atomicWrite(s.QueuePath(), data)
	})
}

// GetTask returns the task with id, or ErrTaskNotFound.
func (s *FileStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	store, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	t := store.FindTask(id)
	if t == nil {
		return nil, flowerrors.ErrTaskNotFound
	}
	return t, nil
}

// UpdateTask loads the store under the file lock, runs mutate against
// the task with the given id, and persists the result. Used by
// internal/lifecycle for operations that don't fit the fixed
// create/activate/complete shapes: checklist-item completion and
// workflow-state transitions.
func (s *FileStore) UpdateTask(ctx context.Context, id string, mutate func(*domain.Task) error) (*domain.Task, error) {
	var result *domain.Task
	err := filelock.WithLock(ctx, s.QueuePath(), func() error {
		store, err := s.Load(ctx)
		if err != nil {
			return err
		}

		task := store.FindTask(id)
		if task == nil {
			return flowerrors.ErrTaskNotFound
		}

		if err := mutate(task); err != nil {
			return err
		}

		if err := s.Save(ctx, store); err != nil {
			return err
		}
		result = store.FindTask(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetActiveTask returns the currently active task, or nil if none.
func (s *FileStore) GetActiveTask(ctx context.Context) (*domain.Task, error) {
	store, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return store.ActiveTask(), nil
}

// CreateTask validates and appends a new task, under the file lock.
func (s *FileStore) CreateTask(ctx context.Context, goal string, opts CreateOptions) (*domain.Task, error) {
	trimmed := strings.TrimSpace(goal)
	if len(trimmed) < 10 {
		return nil, flowerrors.ErrGoalTooShort
	}
	if len(trimmed) > 500 {
		return nil, flowerrors.ErrGoalTooLong
	}

	priority := opts.Priority
	if priority == "" {
		priority = domain.DefaultPriority
	}
	if !priority.IsValid() {
		return nil, flowerrors.ErrInvalidPriority
	}

	var created *domain.Task
	err := filelock.WithLock(ctx, s.QueuePath(), func() error {
		store, err := s.Load(ctx)
		if err != nil {
			return err
		}

		existingIDs := make(map[string]bool, len(store.Tasks))
		for _, t := range store.Tasks {
			existingIDs[t.ID] = true
		}

		now := s.clock.Now().UTC()
		task := domain.Task{
			ID:            UniqueTaskID(now, existingIDs),
			Goal:          trimmed,
			Priority:      priority,
			Tags:          opts.Tags,
			CreatedAt:     now,
			EstimatedTime: parseEstimatedTime(opts.EstimatedTime),
			Requirements:  opts.Requirements,
		}

		hasActive := store.ActiveTaskID != nil
		if !hasActive && !opts.Queue || opts.ForceActivate {
			if opts.ForceActivate && hasActive {
				s.demoteActive(store)
			}
			task.Status = domain.StatusActive
			task.ActivatedAt = &now
			task.Workflow = &domain.Workflow{
				CurrentState:   domain.StateUnderstanding,
				StateEnteredAt: now,
				StateHistory:   []domain.StateHistoryEntry{},
			}
			id := task.ID
			store.Tasks = append(store.Tasks, task)
			store.ActiveTaskID = &id
		} else {
			task.Status = domain.StatusQueued
			store.Tasks = append(store.Tasks, task)
		}

		if err := s.Save(ctx, store); err != nil {
			return err
		}
		created = store.FindTask(task.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// demoteActive moves the current active task back to QUEUED, preserving
// its workflow, per spec §4.3.
func (s *FileStore) demoteActive(store *domain.QueueStore) {
	if store.ActiveTaskID == nil {
		return
	}
	if prev := store.FindTask(*store.ActiveTaskID); prev != nil {
		prev.Status = domain.StatusQueued
	}
	store.ActiveTaskID = nil
}

// ActivateTask makes id the active task, demoting any current active
// task to QUEUED with its workflow preserved, per spec §4.3.
func (s *FileStore) ActivateTask(ctx context.Context, id string) (*domain.Task, error) {
	var result *domain.Task
	err := filelock.WithLock(ctx, s.QueuePath(), func() error {
		store, err := s.Load(ctx)
		if err != nil {
			return err
		}

		target := store.FindTask(id)
		if target == nil {
			return flowerrors.ErrTaskNotFound
		}

		if target.Status == domain.StatusActive {
			result = target
			return nil
		}

		s.demoteActive(store)

		now := s.clock.Now().UTC()
		target.Status = domain.StatusActive
		target.ActivatedAt = &now
		if target.Workflow == nil {
			target.Workflow = &domain.Workflow{
				CurrentState:   domain.StateUnderstanding,
				StateEnteredAt: now,
				StateHistory:   []domain.StateHistoryEntry{},
			}
		}
		tid := target.ID
		store.ActiveTaskID = &tid

		if err := s.Save(ctx, store); err != nil {
			return err
		}
		result = store.FindTask(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CompleteTask marks id DONE, clears activeTaskId, and optionally
// auto-activates the next queued task, per spec §4.3.
func (s *FileStore) CompleteTask(ctx context.Context, id string, opts CompleteOptions) (*CompleteResult, error) {
	var result *CompleteResult
	err := filelock.WithLock(ctx, s.QueuePath(), func() error {
		store, err := s.Load(ctx)
		if err != nil {
			return err
		}

		target := store.FindTask(id)
		if target == nil {
			return flowerrors.ErrTaskNotFound
		}

		if target.Status == domain.StatusDone || target.Status == domain.StatusArchived {
			result = &CompleteResult{Completed: target, AlreadyCompleted: true}
			return nil
		}

		if store.ActiveTaskID == nil || *store.ActiveTaskID != id {
			return flowerrors.ErrNotActive
		}

		now := s.clock.Now().UTC()
		target.Status = domain.StatusDone
		target.CompletedAt = &now
		if target.ActivatedAt != nil {
			target.ActualTime = now.Sub(*target.ActivatedAt).Hours()
		}
		store.ActiveTaskID = nil

		autoActivate := true
		if s.autoActivate != nil {
			autoActivate = s.autoActivate.AutoActivateNext()
		}
		if opts.AutoActivateNext != nil {
			autoActivate = *opts.AutoActivateNext
		}

		result = &CompleteResult{Completed: target}

		if autoActivate {
			if next := pickNextQueued(store.Tasks); next != nil {
				next.Status = domain.StatusActive
				next.ActivatedAt = &now
				if next.Workflow == nil {
					next.Workflow = &domain.Workflow{
						CurrentState:   domain.StateUnderstanding,
						StateEnteredAt: now,
						StateHistory:   []domain.StateHistoryEntry{},
					}
				}
				nid := next.ID
				store.ActiveTaskID = &nid
				result.NextActive = next
			}
		}

		return s.Save(ctx, store)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// pickNextQueued selects the next task to auto-activate: highest
// priority first, then oldest createdAt, ties broken by id ascending,
// per spec §4.3.
func pickNextQueued(tasks []domain.Task) *domain.Task {
	var candidates []*domain.Task
	for i := range tasks {
		if tasks[i].Status == domain.StatusQueued {
			candidates = append(candidates, &tasks[i])
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sortByPriorityThenAge(candidates)
	return candidates[0]
}

func sortByPriorityThenAge(tasks []*domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// ListTasks returns tasks filtered by status, ordered per spec §4.3:
// ACTIVE first, then QUEUED by priority-then-age, then DONE by
// completedAt descending, then ARCHIVED.
func (s *FileStore) ListTasks(ctx context.Context, opts ListOptions) ([]domain.Task, error) {
	store, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	statusFilter := make(map[domain.TaskStatus]bool, len(opts.Status))
	for _, st := range opts.Status {
		statusFilter[st] = true
	}

	var active, queued, done, archived []domain.Task
	for _, t := range store.Tasks {
		if len(statusFilter) > 0 && !statusFilter[t.Status] {
			continue
		}
		if t.Status == domain.StatusArchived && !opts.IncludeArchived && len(statusFilter) == 0 {
			continue
		}
		switch t.Status {
		case domain.StatusActive:
			active = append(active, t)
		case domain.StatusQueued:
			queued = append(queued, t)
		case domain.StatusDone:
			done = append(done, t)
		case domain.StatusArchived:
			archived = append(archived, t)
		}
	}

	queuedPtrs := make([]*domain.Task, len(queued))
	for i := range queued {
		queuedPtrs[i] = &queued[i]
	}
	sortByPriorityThenAge(queuedPtrs)

	sort.SliceStable(done, func(i, j int) bool {
		ai, aj := done[i].CompletedAt, done[j].CompletedAt
		if ai == nil || aj == nil {
			return ai != nil
		}
		return ai.After(*aj)
	})

	out := make([]domain.Task, 0, len(store.Tasks))
	out = append(out, active...)
	out = append(out, queued...)
	out = append(out, done...)
	out = append(out, archived...)

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ArchiveOldTasks flips DONE tasks completed more than horizonDays ago
// to ARCHIVED, returning the count archived.
func (s *FileStore) ArchiveOldTasks(ctx context.Context, horizonDays int) (int, error) {
	count := 0
	err := filelock.WithLock(ctx, s.QueuePath(), func() error {
		store, err := s.Load(ctx)
		if err != nil {
			return err
		}

		cutoff := s.clock.Now().UTC().AddDate(0, 0, -horizonDays)
		for i := range store.Tasks {
			t := &store.Tasks[i]
			if t.Status == domain.StatusDone && t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
				t.Status = domain.StatusArchived
				count++
			}
		}

		if count == 0 {
			return nil
		}
		return s.Save(ctx, store)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by an fsync+rename, so a crash never leaves a half-written
// file in place. Grounded on internal/task/store.go's atomicWrite.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// parseEstimatedTime converts a human phrase to hours, per spec §3:
// "N week[s]"=40N, "N day[s]"=8N, "N hour[s]"=N, "N minute[s]" or
// "Nm"=N/60, a bare integer means hours, anything else is 0.
func parseEstimatedTime(phrase string) float64 {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return 0
	}

	fields := strings.Fields(p)
	if len(fields) == 1 {
		if num, ok := strings.CutSuffix(fields[0], "m"); ok {
			if n, err := strconv.ParseFloat(num, 64); err == nil {
				return n / 60
			}
			return 0
		}
		if n, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return n
		}
		return 0
	}
	if len(fields) != 2 {
		return 0
	}

	n, ok := parseLeadingNumber(fields[0])
	if !ok {
		return 0
	}
	unit := strings.TrimSuffix(fields[1], "s")
	switch unit {
	case "week":
		return 40 * n
	case "day":
		return 8 * n
	case "hour":
		return n
	case "minute":
		return n / 60
	default:
		return 0
	}
}

func parseLeadingNumber(s string) (float64, bool) {
	s = strings.TrimSuffix(s, "m")
	var n float64
	_, err := fmt.Sscanf(s, "%f", &n)
	if err != nil {
		return 0, false
	}
	return n, true
}

var _ Store = (*FileStore)(nil)

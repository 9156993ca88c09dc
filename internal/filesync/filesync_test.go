package filesync_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/filesync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTask() *domain.Task {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &domain.Task{
		ID:        "task-1",
		Goal:      "implement the login form",
		Status:    domain.StatusActive,
		CreatedAt: now,
		Workflow: &domain.Workflow{
			CurrentState:   domain.StateUnderstanding,
			StateEnteredAt: now,
			StateHistory:   []domain.StateHistoryEntry{},
		},
		Requirements: []string{"REQ-1"},
	}
}

func TestSyncFromQueue_WritesDerivedFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task := newTask()
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{}))

	data, err := os.ReadFile(s.TaskPath())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "task-1", got["taskId"])
	assert.Equal(t, "implement the login form", got["originalGoal"])
	assert.Equal(t, domain.LegacyStatusInProgress, got["status"])
}

func TestSyncFromQueue_PreservesListedFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	require.NoError(t, os.MkdirAll(dir, 0o750))
	prior := map[string]any{"requirements": []string{"PRIOR-REQ"}}
	priorData, err := json.Marshal(prior)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.TaskPath(), priorData, 0o600))

	task := newTask()
	task.Requirements = nil
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{
		PreserveFields: []string{"requirements"},
	}))

	data, err := os.ReadFile(s.TaskPath())
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, []any{"PRIOR-REQ"}, got["requirements"])
}

func TestDetectManualEdit_FalseWhenFileAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	edited, err := s.DetectManualEdit(newTask())
	require.NoError(t, err)
	assert.False(t, edited)
}

func TestDetectManualEdit_FalseAfterSync(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task := newTask()
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{}))

	edited, err := s.DetectManualEdit(task)
	require.NoError(t, err)
	assert.False(t, edited)
}

func TestDetectManualEdit_TrueWhenGoalDiffers(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task := newTask()
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{}))

	mutated := newTask()
	mutated.Goal = "a completely different goal entirely"

	edited, err := s.DetectManualEdit(mutated)
	require.NoError(t, err)
	assert.True(t, edited)
}

func TestBackupFile_NoOpWhenAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})
	require.NoError(t, s.BackupFile())
}

func TestBackupFile_PrunesToFiveMostRecent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, os.MkdirAll(dir, 0o750))
	taskPath := filepath.Join(dir, "current-task.json")
	require.NoError(t, os.WriteFile(taskPath, []byte(`{"taskId":"task-1"}`), 0o600))

	for i := 0; i < 7; i++ {
		s := filesync.New(dir, fixedClock{now: base.Add(time.Duration(i) * time.Second)})
		require.NoError(t, s.BackupFile())
	}

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestReadLegacyTask_NilWhenAbsent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task, err := s.ReadLegacyTask()
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestReadLegacyTask_NilWhenCompleted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task := newTask()
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{}))

	require.NoError(t, os.WriteFile(s.TaskPath(), []byte(`{"taskId":"task-1","status":"completed"}`), 0o600))

	got, err := s.ReadLegacyTask()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadLegacyTask_BuildsTaskFromInProgressFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task := newTask()
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{}))

	got, err := s.ReadLegacyTask()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "task-1", got.ID)
	assert.Equal(t, "implement the login form", got.Goal)
	assert.Equal(t, domain.StatusActive, got.Status)
}

func TestRollbackFromBackup_NoBackupAvailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	err := s.RollbackFromBackup()
	assert.ErrorIs(t, err, flowerrors.ErrNoBackupAvailable)
}

func TestRollbackFromBackup_RestoresLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := filesync.New(dir, fixedClock{now: time.Now()})

	task := newTask()
	require.NoError(t, s.SyncFromQueue(context.Background(), task, filesync.SyncOptions{}))
	require.NoError(t, s.BackupFile())

	require.NoError(t, os.WriteFile(s.TaskPath(), []byte(`{"taskId":"corrupted"}`), 0o600))

	require.NoError(t, s.RollbackFromBackup())

	data, err := os.ReadFile(s.TaskPath())
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "task-1", got["taskId"])
}

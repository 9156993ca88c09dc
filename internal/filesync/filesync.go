// Package filesync maintains the legacy single-task file as a derived
// view of the currently active queue task, per spec §4.4: two-way
// reconciliation, field preservation, rolling backups, and manual-edit
// detection.
//
// Grounded on internal/task/store.go's atomic write helper and
// internal/backlog/manager.go's createSafe (O_EXCL) idiom for
// never-clobber backup writes.
package filesync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/flowlock/flowlock/internal/clock"
	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/ioretry"
)

const (
	dirPerm     = 0o750
	filePerm    = 0o600
	maxBackups  = 5
	backupStamp = "20060102T150405.000000000"
)

// SyncOptions configures syncFromQueue.
type SyncOptions struct {
	// PreserveFields lists legacy-file top-level fields to copy verbatim
	// from the prior on-disk file rather than deriving from queueTask.
	PreserveFields []string
	// Backup, if true, snapshots the existing file before overwriting it.
	Backup bool
}

// Sync manages the legacy single-task file rooted at contextDir.
type Sync struct {
	contextDir string
	clock      clock.Clock
}

// New returns a Sync rooted at contextDir.
func New(contextDir string, c clock.Clock) *Sync {
	return &Sync{contextDir: contextDir, clock: c}
}

// TaskPath returns the path to the legacy single-task file.
func (s *Sync) TaskPath() string {
	return filepath.Join(s.contextDir, "current-task.json")
}

func (s *Sync) backupDir() string {
	return filepath.Join(s.contextDir, "backups")
}

// SyncFromQueue writes the legacy file as a derived view of queueTask,
// per spec §4.4's field-mapping rules.
func (s *Sync) SyncFromQueue(ctx context.Context, queueTask *domain.Task, opts SyncOptions) error {
	if opts.Backup {
		if _, err := os.Stat(s.TaskPath()); err == nil {
			if err := s.BackupFile(); err != nil {
				return err
			}
		}
	}

	var prior map[string]any
	if data, err := os.ReadFile(s.TaskPath()); err == nil { //nolint:gosec // path is derived from a caller-configured project root
		_ = json.Unmarshal(data, &prior)
	}

	derived := s.derive(queueTask)

	out := make(map[string]any, len(derived)+len(opts.PreserveFields))
	for k, v := range derived {
		out[k] = v
	}
	for _, field := range opts.PreserveFields {
		if prior == nil {
			continue
		}
		if v, ok := prior[field]; ok {
			out[field] = v
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	return ioretry.Do(ctx, func() error {
		if err := os.MkdirAll(s.contextDir, dirPerm); err != nil {
			return err
		}
		return atomicWrite(s.TaskPath(), data)
	})
}

// derive builds the canonical legacy-file field set from queueTask, per
// spec §4.4: id→taskId, goal→originalGoal, workflow copied whole,
// lowercased status, startedAt from createdAt, completedAt if set.
// requirements and reviewChecklist are always propagated when present.
func (s *Sync) derive(t *domain.Task) map[string]any {
	status := domain.LegacyStatusInProgress
	if t.Status == domain.StatusDone || t.Status == domain.StatusArchived {
		status = domain.LegacyStatusCompleted
	}

	out := map[string]any{
		"taskId":       t.ID,
		"originalGoal": t.Goal,
		"status":       status,
		"startedAt":    t.CreatedAt,
	}
	if t.Workflow != nil {
		out["workflow"] = t.Workflow
	}
	if t.CompletedAt != nil {
		out["completedAt"] = t.CompletedAt
	}
	if len(t.Requirements) > 0 {
		out["requirements"] = t.Requirements
	}
	if t.ReviewChecklist != nil {
		out["reviewChecklist"] = t.ReviewChecklist
	}
	return out
}

// ReadLegacyTask parses the on-disk legacy file into a Task-shaped view
// for Retrieval (spec §4.8) when no queue task is active. Returns
// (nil, nil) if the file is absent or its status is already "completed"
// per spec §4.8's retrieval rule.
func (s *Sync) ReadLegacyTask() (*domain.Task, error) {
	data, err := os.ReadFile(s.TaskPath()) //nolint:gosec // path is derived from a caller-configured project root
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var legacy domain.LegacyTask
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, err
	}
	if legacy.Status == domain.LegacyStatusCompleted {
		return nil, nil
	}

	return &domain.Task{
		ID:              legacy.TaskID,
		Goal:            legacy.OriginalGoal,
		Status:          domain.StatusActive,
		CreatedAt:       legacy.StartedAt,
		CompletedAt:     legacy.CompletedAt,
		Workflow:        legacy.Workflow,
		Requirements:    legacy.Requirements,
		ReviewChecklist: legacy.ReviewChecklist,
	}, nil
}

// DetectManualEdit reports whether the on-disk legacy file's essential
// fields differ from what would be synthesised from queueTask. Returns
// false if the file is absent, per spec §4.4.
func (s *Sync) DetectManualEdit(queueTask *domain.Task) (bool, error) {
	data, err := os.ReadFile(s.TaskPath()) //nolint:gosec // path is derived from a caller-configured project root
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	var onDisk map[string]any
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return true, nil
	}

	derived := s.derive(queueTask)
	normalizedDisk := normalize(onDisk)
	normalizedDerived := normalize(derived)

	for _, field := range []string{"taskId", "originalGoal", "status", "workflow"} {
		if !reflect.DeepEqual(normalizedDisk[field], normalizedDerived[field]) {
			return true, nil
		}
	}
	return false, nil
}

// normalize round-trips v through JSON so that structurally-equal values
// compare equal regardless of concrete Go type (map vs struct,
// time.Time vs RFC3339 string), per the manual-edit-detection
// resolution in SPEC_FULL.md §9.
func normalize(v map[string]any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// BackupFile writes an unconditional timestamped snapshot of the legacy
// file, pruning to the 5 most recent afterward. When a snapshot with the
// same timestamp already exists, a -NNN suffix keeps the name unique.
// No-op if the file does not exist.
func (s *Sync) BackupFile() error {
	data, err := os.ReadFile(s.TaskPath()) //nolint:gosec // path is derived from a caller-configured project root
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := os.MkdirAll(s.backupDir(), dirPerm); err != nil {
		return err
	}

	name := fmt.Sprintf("current-task.json.backup.%s", s.clock.Now().UTC().Format(backupStamp))
	path := filepath.Join(s.backupDir(), name)

	err = createExclusive(path, data)
	for i := 1; os.IsExist(err) && i < 1000; i++ {
		path = filepath.Join(s.backupDir(), fmt.Sprintf("%s-%03d", name, i))
		err = createExclusive(path, data)
	}
	if err != nil {
		return err
	}
	return s.pruneBackups()
}

// pruneBackups keeps only the maxBackups most recent snapshots.
func (s *Sync) pruneBackups() error {
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "current-task.json.backup.") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) <= maxBackups {
		return nil
	}
	for _, stale := range names[:len(names)-maxBackups] {
		if err := os.Remove(filepath.Join(s.backupDir(), stale)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// RollbackFromBackup restores the most recent backup over the current
// file, returning ErrNoBackupAvailable if none exists.
func (s *Sync) RollbackFromBackup() error {
	entries, err := os.ReadDir(s.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return flowerrors.ErrNoBackupAvailable
		}
		return err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "current-task.json.backup.") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return flowerrors.ErrNoBackupAvailable
	}
	sort.Strings(names)
	latest := names[len(names)-1]

	data, err := os.ReadFile(filepath.Join(s.backupDir(), latest)) //nolint:gosec // path built from directory we just listed
	if err != nil {
		return err
	}
	return atomicWrite(s.TaskPath(), data)
}

func createExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm) //nolint:gosec // path constructed internally from a timestamp, not user input
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = f.Write(data)
	return err
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, grounded on internal/task/store.go's atomicWrite.
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

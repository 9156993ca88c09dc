// Package artifact regenerates the small, deterministic set of
// human-readable files external AI agents read to stay oriented with
// the active task: STATUS.txt, NEXT_STEPS.md, and an optional
// per-state enforcement descriptor, per spec §4.9.
//
// Grounded on internal/task/store.go's atomic write helper; the
// rendering itself is a new design (the teacher has no external-agent
// context surface).
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flowlock/flowlock/internal/domain"
	"github.com/flowlock/flowlock/internal/ioretry"
)

const (
	dirPerm  = 0o750
	filePerm = 0o600

	statusFile     = "STATUS.txt"
	nextStepsFile  = "NEXT_STEPS.md"
	enforcementDir = ".cursor/rules"
	enforcementFile = "000-current-state-enforcement.mdc"
)

// CompletionMap reports, for a task's current state, which checklist
// item ids are complete. Supplied by the caller (internal/lifecycle)
// which owns the checklist registry and per-task completion data.
type CompletionMap map[string]bool

// Writer regenerates context artefacts rooted at contextDir.
type Writer struct {
	contextDir string
}

// New returns a Writer rooted at contextDir.
func New(contextDir string) *Writer {
	return &Writer{contextDir: contextDir}
}

// StatusPath returns the absolute path to STATUS.txt.
func (w *Writer) StatusPath() string { return filepath.Join(w.contextDir, statusFile) }

// NextStepsPath returns the absolute path to NEXT_STEPS.md.
func (w *Writer) NextStepsPath() string { return filepath.Join(w.contextDir, nextStepsFile) }

// EnforcementPath returns the absolute path to the state-enforcement
// descriptor.
func (w *Writer) EnforcementPath() string {
	return filepath.Join(w.contextDir, enforcementDir, enforcementFile)
}

// ArtifactsPresent reports whether STATUS.txt and NEXT_STEPS.md both
// exist, satisfying validator.ArtifactChecker. taskID is accepted for
// interface symmetry with a future per-task artefact layout; the
// current layout is single-task-at-a-time, so it is unused today.
func (w *Writer) ArtifactsPresent(_ context.Context, _ string) (bool, error) {
	for _, path := range []string{w.StatusPath(), w.NextStepsPath()} {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
	}
	return true, nil
}

// Regenerate rewrites STATUS.txt and NEXT_STEPS.md (and, if
// writeEnforcement is true, the state-enforcement descriptor) from
// task, items, and completion. Writes are idempotent and overwrite, per
// spec §4.9. The whole regeneration is retried per internal/ioretry's
// transient-error classification (spec §7).
func (w *Writer) Regenerate(task *domain.Task, items []domain.ChecklistItem, completion CompletionMap, writeEnforcement bool) error {
	if task.Workflow == nil {
		return nil
	}

	return ioretry.Do(context.Background(), func() error {
		if err := os.MkdirAll(w.contextDir, dirPerm); err != nil {
			return err
		}

		if err := w.writeStatus(task); err != nil {
			return err
		}
		if err := w.writeNextSteps(task, items, completion); err != nil {
			return err
		}
		if writeEnforcement {
			if err := w.writeEnforcement(task); err != nil {
				return err
			}
		}
		return nil
	})
}

func (w *Writer) writeStatus(task *domain.Task) error {
	line := fmt.Sprintf("%s | %s | %s\n", task.Workflow.CurrentState, task.ID, task.Goal)
	return atomicWrite(w.StatusPath(), []byte(line))
}

func (w *Writer) writeNextSteps(task *domain.Task, items []domain.ChecklistItem, completion CompletionMap) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Next steps: %s\n\n", task.Workflow.CurrentState)
	fmt.Fprintf(&b, "Task: %s (%s)\n\n", task.Goal, task.ID)

	sorted := make([]domain.ChecklistItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Required != sorted[j].Required {
			return sorted[i].Required
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, item := range sorted {
		mark := " "
		if completion[item.ID] {
			mark = "x"
		}
		req := ""
		if item.Required {
			req = " (required)"
		}
		fmt.Fprintf(&b, "- [%s] %s%s\n", mark, item.Title, req)
	}

	return atomicWrite(w.NextStepsPath(), []byte(b.String()))
}

func (w *Writer) writeEnforcement(task *domain.Task) error {
	path := w.EnforcementPath()
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	content := fmt.Sprintf(
		"---\ndescription: Current workflow state enforcement\n---\n\nCurrent state: %s\nTask: %s\n",
		task.Workflow.CurrentState, task.ID,
	)
	return atomicWrite(path, []byte(content))
}

// RemoveTaskArtifacts deletes STATUS.txt, NEXT_STEPS.md, and the
// state-enforcement descriptor, per spec §4.9's on-completion-without-
// successor cleanup. The legacy single-task file is untouched; callers
// manage that separately via internal/filesync.
func (w *Writer) RemoveTaskArtifacts() error {
	for _, path := range []string{w.StatusPath(), w.NextStepsPath(), w.EnforcementPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// atomicWrite writes data to path via a temp file in the same directory
// followed by rename, grounded on internal/task/store.go's atomicWrite.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return err
	}
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

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
)

// addReviewCommand registers the review command group operating on the
// active task's ReviewChecklist: status, execute, check, and list, per
// spec §6.
func addReviewCommand(root *cobra.Command, flags *GlobalFlags) {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and complete the active task's review checklist",
	}

	reviewCmd.AddCommand(newReviewStatusCmd(flags))
	reviewCmd.AddCommand(newReviewListCmd(flags))
	reviewCmd.AddCommand(newReviewExecuteCmd(flags))
	reviewCmd.AddCommand(newReviewCheckCmd(flags))

	root.AddCommand(reviewCmd)
}

func newReviewStatusCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the review checklist is complete",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			task, _, err := loadActiveForReview(cmd, flags, true)
			if err != nil {
				return err
			}
			return emitOK(cmd, flags, map[string]any{
				"complete": task.ReviewChecklist.IsComplete(),
				"items":    task.ReviewChecklist.Items,
			})
		},
	}
}

func newReviewListCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the review checklist's items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			task, _, err := loadActiveForReview(cmd, flags, true)
			if err != nil {
				return err
			}
			return emitOK(cmd, flags, task.ReviewChecklist.Items)
		},
	}
}

func newReviewExecuteCmd(flags *GlobalFlags) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "execute <item-id>",
		Short: "Mark an automated review item complete (its command is not run)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, d, err := loadActiveForReview(cmd, flags, true)
			if err != nil {
				return err
			}

			item := findReviewItem(task, args[0])
			if item == nil {
				return emitErr(cmd, flags, flowerrors.ErrChecklistItemNotFound)
			}
			if !item.Action.IsAutomated() {
				return emitErr(cmd, flags, fmt.Errorf("item %q has no automated action; use \"review check\" instead", args[0]))
			}

			updated, err := d.lifecycle.MarkReviewItem(cmd.Context(), task.ID, args[0], notes)
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			return emitOK(cmd, flags, updated)
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "note recorded against the item")
	return cmd
}

func newReviewCheckCmd(flags *GlobalFlags) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "check <item-id>",
		Short: "Manually mark a review checklist item complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// requireChecklist is false: per spec §6, a manual check is
			// accepted even if the checklist was never instantiated;
			// lifecycle.MarkReviewItem creates it on demand.
			task, d, err := loadActiveForReview(cmd, flags, false)
			if err != nil {
				return err
			}

			updated, err := d.lifecycle.MarkReviewItem(cmd.Context(), task.ID, args[0], notes)
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			return emitOK(cmd, flags, updated)
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "note recorded against the item")
	return cmd
}

// loadActiveForReview resolves the active task and its deps, failing
// if no task is active. When requireChecklist is true it also fails if
// the task has no review checklist yet; "review check" passes false
// since it instantiates the checklist on demand.
func loadActiveForReview(cmd *cobra.Command, flags *GlobalFlags, requireChecklist bool) (*domain.Task, *deps, error) {
	ctx := cmd.Context()
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, emitErr(cmd, flags, err)
	}
	d, err := newDeps(ctx, cwd)
	if err != nil {
		return nil, nil, emitErr(cmd, flags, err)
	}

	task, err := d.lifecycle.GetCurrentTask(ctx)
	if err != nil {
		return nil, nil, emitErr(cmd, flags, err)
	}
	if task == nil {
		return nil, nil, emitErr(cmd, flags, flowerrors.ErrNoActiveTask)
	}
	if requireChecklist && task.ReviewChecklist == nil {
		return nil, nil, emitErr(cmd, flags, fmt.Errorf("task %s has no review checklist yet; transition it to REVIEWING first", task.ID))
	}
	return task, d, nil
}

// findReviewItem returns the item with the given id, or nil.
func findReviewItem(task *domain.Task, itemID string) *domain.ReviewChecklistItem {
	for i := range task.ReviewChecklist.Items {
		if task.ReviewChecklist.Items[i].ID == itemID {
			return &task.ReviewChecklist.Items[i]
		}
	}
	return nil
}

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/queue"
)

// addTaskCommand registers the task command group: create, status, and
// complete, per spec §6's CLI surface.
func addTaskCommand(root *cobra.Command, flags *GlobalFlags) {
	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage the task queue",
	}

	taskCmd.AddCommand(newTaskCreateCmd(flags))
	taskCmd.AddCommand(newTaskStatusCmd(flags))
	taskCmd.AddCommand(newTaskCompleteCmd(flags))

	root.AddCommand(taskCmd)
}

func newTaskCreateCmd(flags *GlobalFlags) *cobra.Command {
	var (
		priority      string
		tags          []string
		estimate      string
		satisfies     []string
		forceActivate bool
		queueOnly     bool
	)

	cmd := &cobra.Command{
		Use:   "create <goal>",
		Short: "Create a new task and activate it unless one is already active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cwd, err := os.Getwd()
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			d, err := newDeps(ctx, cwd)
			if err != nil {
				return emitErr(cmd, flags, err)
			}

			task, err := d.lifecycle.CreateTask(ctx, args[0], queue.CreateOptions{
				Priority:      domain.Priority(priority),
				Tags:          tags,
				EstimatedTime: estimate,
				Requirements:  satisfies,
				ForceActivate: forceActivate,
				Queue:         queueOnly,
			})
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			return emitOK(cmd, flags, task)
		},
	}

	cmd.Flags().StringVar(&priority, "priority", "", "task priority: CRITICAL, HIGH, MEDIUM, or LOW")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "comma-separated tags")
	cmd.Flags().StringVar(&estimate, "estimate", "", "estimated time, e.g. \"2 days\"")
	cmd.Flags().StringSliceVar(&satisfies, "satisfies", nil, "requirement ids this task satisfies")
	cmd.Flags().BoolVar(&forceActivate, "force", false, "activate immediately, demoting any current active task")
	cmd.Flags().BoolVar(&queueOnly, "queue", false, "queue the task instead of activating it")

	return cmd
}

func newTaskStatusCmd(flags *GlobalFlags) *cobra.Command {
	var stateOnly bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the currently active task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cwd, err := os.Getwd()
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			d, err := newDeps(ctx, cwd)
			if err != nil {
				return emitErr(cmd, flags, err)
			}

			task, err := d.lifecycle.GetCurrentTask(ctx)
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			if task == nil {
				resp := Response{
					Status: "error",
					Error:  "no task is currently active",
					NextActions: []NextAction{{
						Type:   "command",
						Action: "task create <goal>",
						Reason: "no task is currently active",
					}},
				}
				return resp.Write(cmd.OutOrStdout(), flags.JSON, flags.Silent)
			}
			if stateOnly && task.Workflow != nil {
				return emitOK(cmd, flags, task.Workflow.CurrentState)
			}
			return emitOK(cmd, flags, task)
		},
	}

	cmd.Flags().BoolVar(&stateOnly, "state-only", false, "print only the current workflow state")
	return cmd
}

func newTaskCompleteCmd(flags *GlobalFlags) *cobra.Command {
	var (
		autoActivateNext   bool
		noAutoActivateNext bool
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Complete the active task; it must be in READY_TO_COMMIT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cwd, err := os.Getwd()
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			d, err := newDeps(ctx, cwd)
			if err != nil {
				return emitErr(cmd, flags, err)
			}

			active, err := d.lifecycle.GetCurrentTask(ctx)
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			if active == nil {
				return emitErr(cmd, flags, flowerrors.ErrNoActiveTask)
			}

			opts := queue.CompleteOptions{}
			switch {
			case autoActivateNext:
				v := true
				opts.AutoActivateNext = &v
			case noAutoActivateNext:
				v := false
				opts.AutoActivateNext = &v
			}

			result, err := d.lifecycle.CompleteTask(ctx, active.ID, opts)
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			return emitOK(cmd, flags, result)
		},
	}

	cmd.Flags().BoolVar(&autoActivateNext, "auto-activate-next", false, "activate the next queued task")
	cmd.Flags().BoolVar(&noAutoActivateNext, "no-auto-activate-next", false, "leave the queue idle after completion")

	return cmd
}

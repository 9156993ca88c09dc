package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowlock/flowlock/internal/domain"
	"github.com/flowlock/flowlock/internal/stateengine"
)

// addSyncCommand registers the sync command: advance the active task's
// workflow state and propagate the change to the legacy file and
// generated artefacts, per spec §6.
func addSyncCommand(root *cobra.Command, flags *GlobalFlags) {
	var state string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Transition the active task to the given workflow state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(state) == "" {
				return emitErr(cmd, flags, fmt.Errorf("--state is required"))
			}
			next := domain.WorkflowState(strings.ToUpper(strings.TrimSpace(state)))
			if stateengine.Index(next) < 0 {
				return emitErr(cmd, flags, fmt.Errorf("unknown workflow state %q", state))
			}

			ctx := cmd.Context()
			cwd, err := os.Getwd()
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			d, err := newDeps(ctx, cwd)
			if err != nil {
				return emitErr(cmd, flags, err)
			}

			task, err := d.lifecycle.TransitionTo(ctx, next)
			if err != nil {
				return emitErr(cmd, flags, err)
			}
			return emitOK(cmd, flags, task)
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "target workflow state, e.g. DESIGNING")
	root.AddCommand(cmd)
}

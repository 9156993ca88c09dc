package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/validator"
)

// addValidateCommand registers validate (run all three checks from
// spec §4.5) and validate verify (manually approve a pattern's cached
// result), per spec §6.
func addValidateCommand(root *cobra.Command, flags *GlobalFlags) {
	var useCache bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run workflow, artefact, and pattern-compliance checks against the active task",
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
				return emitErr(cmd, flags, flowerrors.ErrNoActiveTask)
			}

			result := validator.ValidateAll(ctx, task, d.artifact, d.pattern, validator.AllOptions{
				UseCachedResults: useCache,
			})
			if !result.Overall {
				return emitErr(cmd, flags, fmt.Errorf("validation failed"))
			}
			return emitOK(cmd, flags, result)
		},
	}

	cmd.Flags().BoolVar(&useCache, "use-cache", false, "accepted but has no effect: pattern checks always run")
	cmd.Flags().Bool("save", false, "reserved: results are not persisted separately from the task")
	root.AddCommand(cmd)

	cmd.AddCommand(newValidateVerifyCmd(flags))
}

func newValidateVerifyCmd(flags *GlobalFlags) *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "verify <pattern-id>",
		Short: "Manually approve a pattern's cached verification result",
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

			if err := d.pattern.MarkVerified(args[0], notes); err != nil {
				return emitErr(cmd, flags, err)
			}
			return emitOK(cmd, flags, nil)
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "note explaining the manual approval")
	return cmd
}

package cli

import (
	"github.com/spf13/cobra"

	flowerrors "github.com/flowlock/flowlock/internal/errors"
)

// emitOK writes a success Response to cmd's output stream and returns
// nil, per spec §6's structured output contract.
func emitOK(cmd *cobra.Command, flags *GlobalFlags, data any, next ...NextAction) error {
	resp := Success(data, next...)
	if err := resp.Write(cmd.OutOrStdout(), flags.JSON, flags.Silent); err != nil {
		return err
	}
	return nil
}

// emitErr writes an error Response and returns err wrapped so the exit
// code survives back to main via ExitCodeForError, preserving any
// *errors.ExitCoder override already carried by err.
func emitErr(cmd *cobra.Command, flags *GlobalFlags, err error) error {
	code := ExitCodeForError(err)
	resp := Failure(err, code)
	_ = resp.Write(cmd.ErrOrStderr(), flags.JSON, flags.Silent)
	if _, ok := flowerrors.ExitCodeOf(err); ok {
		return err
	}
	return flowerrors.NewExitCoder(err, code)
}

// Package cli implements the flowlockctl command tree: task lifecycle
// commands, state transitions, validation, and review-checklist
// operations, per spec §6. Rendering is limited to the structured JSON
// output schema and plain-text summaries; no TUI framework is used.
//
// Grounded on internal/cli/root.go's newRootCmd(flags, info) pattern
// (function-based construction, no package-level cobra globals) and
// internal/cli/flags.go's GlobalFlags/exit-code shape.
package cli

import (
	flowerrors "github.com/flowlock/flowlock/internal/errors"
)

// Exit codes for the CLI, per spec §6: every command is 0 on success,
// 1 on failure. ExitInvalidInput mirrors the teacher's three-tier
// scheme, but no command returns it: cobra's flag parsing failures
// also exit with ExitError.
const (
	ExitSuccess      = 0
	ExitError        = 1
	ExitInvalidInput = 2
)

// GlobalFlags holds flags available to every subcommand.
type GlobalFlags struct {
	JSON    bool
	Silent  bool
	Verbose bool
}

// ExitCodeForError returns the process exit code for err, honouring an
// explicit *errors.ExitCoder override if present.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if code, ok := flowerrors.ExitCodeOf(err); ok {
		return code
	}
	return ExitError
}

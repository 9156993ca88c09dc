package cli

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// BuildInfo carries version information set at build time via ldflags.
type BuildInfo struct {
	Version string
	Commit  string
}

var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // protects globalLogger
)

// Logger returns the logger initialized by the root command's
// PersistentPreRunE. Safe for concurrent use.
func Logger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// newRootCmd builds the root command, grounded on the function-based
// construction style of internal/cli/root.go (no package-level cobra
// globals beyond the logger handle every command needs).
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	version := info.Version
	if version == "" {
		version = "dev"
	}

	cmd := &cobra.Command{
		Use:     "flowlockctl",
		Short:   "Local file-backed workflow state engine",
		Version: version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			globalLoggerMu.Lock()
			globalLogger = InitLogger(flags.Verbose, flags.Silent)
			globalLoggerMu.Unlock()
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "emit structured JSON output")
	cmd.PersistentFlags().BoolVar(&flags.Silent, "silent", false, "suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable verbose logging")

	addTaskCommand(cmd, flags)
	addSyncCommand(cmd, flags)
	addValidateCommand(cmd, flags)
	addReviewCommand(cmd, flags)

	return cmd
}

// Execute runs the root command against args from os.Args.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, info)
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	return cmd.ExecuteContext(ctx)
}

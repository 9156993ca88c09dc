// Package main provides the entry point for the flowlockctl CLI.
package main

import (
	"context"
	"os"

	"github.com/flowlock/flowlock/internal/cli"
)

// Build info variables set via ldflags during build.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=$(git rev-parse HEAD)"
//
//nolint:gochecknoglobals // required for ldflags injection at build time
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx := context.Background()
	err := cli.Execute(ctx, cli.BuildInfo{
		Version: version,
		Commit:  commit,
	})
	if err != nil {
		os.Exit(cli.ExitCodeForError(err))
	}
}

package cli

import (
	"context"
	"path/filepath"

	"github.com/flowlock/flowlock/internal/artifact"
	"github.com/flowlock/flowlock/internal/checklist"
	"github.com/flowlock/flowlock/internal/clock"
	"github.com/flowlock/flowlock/internal/config"
	"github.com/flowlock/flowlock/internal/filesync"
	"github.com/flowlock/flowlock/internal/lifecycle"
	"github.com/flowlock/flowlock/internal/pattern"
	"github.com/flowlock/flowlock/internal/queue"
)

const contextDirName = ".ai-context"

// deps bundles every collaborator a command needs, built fresh per
// invocation from the current working directory.
type deps struct {
	cfg       *config.Config
	queue     *queue.FileStore
	sync      *filesync.Sync
	checklist *checklist.Registry
	pattern   *pattern.Provider
	artifact  *artifact.Writer
	lifecycle *lifecycle.Service
}

// newDeps wires every lifecycle collaborator: task/pattern/artefact
// state rooted at <projectRoot>/.ai-context, and config read from
// <projectRoot>/config (via config.Load), per spec §6's on-disk layout.
func newDeps(ctx context.Context, projectRoot string) (*deps, error) {
	cfg, err := config.Load(ctx, projectRoot)
	if err != nil {
		return nil, err
	}

	contextDir := filepath.Join(projectRoot, contextDirName)
	c := clock.RealClock{}

	store := queue.New(contextDir, c, cfg)
	sync := filesync.New(contextDir, c)
	registry := checklist.NewRegistry()

	patterns := pattern.NewProvider(contextDir, c)
	if err := patterns.Load(ctx); err != nil {
		return nil, err
	}

	artifacts := artifact.New(contextDir)

	svc := lifecycle.New(store, sync, registry, patterns, artifacts, c, lifecycle.Config{
		RetentionDays: cfg.RetentionDaysOrDefault(),
	})
	svc.LoadPatternChecklistItems()

	return &deps{
		cfg:       cfg,
		queue:     store,
		sync:      sync,
		checklist: registry,
		pattern:   patterns,
		artifact:  artifacts,
		lifecycle: svc,
	}, nil
}

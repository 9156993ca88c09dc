package pattern_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flowlock/flowlock/internal/domain"
	"github.com/flowlock/flowlock/internal/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeRunner struct {
	exitCode int
	output   string
	err      error
}

func (f fakeRunner) Run(context.Context, string) (int, string, error) {
	return f.exitCode, f.output, f.err
}

func writePatterns(t *testing.T, dir string, patterns []domain.StateBasedPattern) {
	t.Helper()
	data, err := json.Marshal(map[string]any{"patterns": patterns})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patterns.json"), data, 0o600))
}

func TestLoad_MissingFileYieldsNoPatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	assert.Empty(t, p.GetPatternsForState(domain.StateImplementing))
}

func TestLoad_FallsBackToLegacyRulesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data, err := json.Marshal(map[string]any{"patterns": []domain.StateBasedPattern{
		{ID: "naming", Title: "Naming conventions", ApplicableStates: []domain.WorkflowState{domain.StateImplementing}},
	}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.json"), data, 0o600))

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	assert.Len(t, p.GetPatternsForState(domain.StateImplementing), 1)
}

func TestGetPatternsForState_FiltersByApplicability(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{ID: "a", ApplicableStates: []domain.WorkflowState{domain.StateImplementing}},
		{ID: "b", RequiredStates: []domain.WorkflowState{domain.StateTesting}},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	assert.Len(t, p.GetPatternsForState(domain.StateImplementing), 1)
	assert.Len(t, p.GetPatternsForState(domain.StateTesting), 1)
	assert.Empty(t, p.GetPatternsForState(domain.StateDesigning))
}

func TestGetMandatoryPatternsForState_OnlyRequiredStates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{ID: "a", ApplicableStates: []domain.WorkflowState{domain.StateImplementing}},
		{ID: "b", RequiredStates: []domain.WorkflowState{domain.StateImplementing}},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	mandatory := p.GetMandatoryPatternsForState(domain.StateImplementing)
	require.Len(t, mandatory, 1)
	assert.Equal(t, "b", mandatory[0].ID)
}

func TestGenerateChecklistItems_RequiredFlagMatchesMandatory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{ID: "a", Title: "Pattern A", ApplicableStates: []domain.WorkflowState{domain.StateImplementing}},
		{ID: "b", Title: "Pattern B", RequiredStates: []domain.WorkflowState{domain.StateImplementing}},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	items := p.GenerateChecklistItems(domain.StateImplementing)
	require.Len(t, items, 2)
	byID := map[string]domain.ChecklistItem{}
	for _, item := range items {
		byID[item.ID] = item
	}
	assert.False(t, byID["pattern-a"].Required)
	assert.True(t, byID["pattern-b"].Required)
}

func TestCheckCompliance_FileExistsViolation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{
			ID:             "has-readme",
			RequiredStates: []domain.WorkflowState{domain.StateUnderstanding},
			Validation: domain.PatternValidation{
				Type: domain.ValidationFileExists,
				Rule: filepath.Join(dir, "does-not-exist.md"),
			},
		},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	task := &domain.Task{Workflow: &domain.Workflow{CurrentState: domain.StateUnderstanding}}
	report, err := p.CheckCompliance(context.Background(), task)
	require.NoError(t, err)
	assert.Len(t, report.Violations, 1)
	assert.True(t, report.HasBlockingViolation())
}

func TestCheckCompliance_CommandRunSuccessIsCompliant(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{
			ID:             "tests-pass",
			RequiredStates: []domain.WorkflowState{domain.StateTesting},
			Validation:     domain.PatternValidation{Type: domain.ValidationCommandRun, Rule: "true"},
		},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()}).WithRunner(fakeRunner{exitCode: 0})
	require.NoError(t, p.Load(context.Background()))

	task := &domain.Task{Workflow: &domain.Workflow{CurrentState: domain.StateTesting}}
	report, err := p.CheckCompliance(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestCheckCompliance_CodeCheckIsNonBlocking(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{
			ID:             "style",
			RequiredStates: []domain.WorkflowState{domain.StateImplementing},
			Validation:     domain.PatternValidation{Type: domain.ValidationCodeCheck, Severity: domain.SeverityError},
		},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	task := &domain.Task{Workflow: &domain.Workflow{CurrentState: domain.StateImplementing}}
	report, err := p.CheckCompliance(context.Background(), task)
	require.NoError(t, err)
	assert.False(t, report.HasBlockingViolation())
}

func TestMarkVerified_SuppressesNextViolation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writePatterns(t, dir, []domain.StateBasedPattern{
		{
			ID:             "has-readme",
			RequiredStates: []domain.WorkflowState{domain.StateUnderstanding},
			Validation: domain.PatternValidation{
				Type: domain.ValidationFileExists,
				Rule: filepath.Join(dir, "does-not-exist.md"),
			},
		},
	})

	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	require.NoError(t, p.MarkVerified("has-readme", "confirmed by hand"))

	task := &domain.Task{Workflow: &domain.Workflow{CurrentState: domain.StateUnderstanding}}
	report, err := p.CheckCompliance(context.Background(), task)
	require.NoError(t, err)
	assert.Empty(t, report.Violations)
}

func TestMarkVerified_UnknownPatternFails(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := pattern.NewProvider(dir, fixedClock{now: time.Now()})
	require.NoError(t, p.Load(context.Background()))

	err := p.MarkVerified("does-not-exist", "")
	require.Error(t, err)
}

// Package pattern loads the project's coding-pattern rules and exposes
// per-state relevance queries, checklist-item generation, and a
// memoized compliance report, per spec §4.7.
//
// Grounded on a new design (the teacher has no equivalent); the
// mtime-keyed verification cache is styled after
// C360Studio-semspec/processor/ast/watcher.go's change-detection
// approach, narrowed from a debounced directory watch (flowlockctl is a
// one-shot CLI with no long-running process to host a watcher) to a
// plain stat comparison on each invocation.
package pattern

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowlock/flowlock/internal/clock"
	"github.com/flowlock/flowlock/internal/domain"
	flowerrors "github.com/flowlock/flowlock/internal/errors"
	"github.com/flowlock/flowlock/internal/validator"
)

const (
	patternsFileName = "patterns.json"
	legacyFileName   = "rules.json"
)

// patternsFile is the on-disk shape of patterns.json/rules.json.
type patternsFile struct {
	Patterns []domain.StateBasedPattern `json:"patterns"`
}

// CommandRunner executes a shell command for command_run validations.
// Implemented by exec.Command in production, faked in tests.
type CommandRunner interface {
	Run(ctx context.Context, command string) (exitCode int, output string, err error)
}

// execRunner runs command via the shell, grounded on the invocation
// style of internal/validation/parallel.go's command execution.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, command string) (int, string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command) //nolint:gosec // command originates from patterns.json, a project-owned config file, not external input
	out, err := cmd.CombinedOutput()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return -1, string(out), err
		}
	}
	return exitCode, string(out), nil
}

// Provider loads and serves state-based patterns from a JSON file
// rooted at contextDir.
type Provider struct {
	contextDir string
	clock      clock.Clock
	runner     CommandRunner
	cache      *verificationCache

	patterns   []domain.StateBasedPattern
	fileMtime  time.Time
	loadedPath string
}

// NewProvider returns a Provider rooted at contextDir. Load must be
// called before any query method.
func NewProvider(contextDir string, c clock.Clock) *Provider {
	return &Provider{
		contextDir: contextDir,
		clock:      c,
		runner:     execRunner{},
		cache:      newVerificationCache(),
	}
}

// WithRunner overrides the command runner, for tests.
func (p *Provider) WithRunner(r CommandRunner) *Provider {
	p.runner = r
	return p
}

// path resolves to patterns.json, falling back to the legacy rules.json
// if only that exists, per spec §4.7.
func (p *Provider) path() string {
	primary := filepath.Join(p.contextDir, patternsFileName)
	if _, err := os.Stat(primary); err == nil {
		return primary
	}
	legacy := filepath.Join(p.contextDir, legacyFileName)
	if _, err := os.Stat(legacy); err == nil {
		return legacy
	}
	return primary
}

// Load reads the patterns file. A missing file is not an error: the
// provider simply serves zero patterns.
func (p *Provider) Load(_ context.Context) error {
	path := p.path()
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a caller-configured project root
	if err != nil {
		if os.IsNotExist(err) {
			p.patterns = nil
			p.loadedPath = path
			return nil
		}
		return err
	}

	var file patternsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	p.patterns = file.Patterns
	p.fileMtime = info.ModTime()
	p.loadedPath = path
	p.cache.invalidateAll()
	return nil
}

// GetPatternsForState returns patterns relevant to state, either
// applicable or required.
func (p *Provider) GetPatternsForState(state domain.WorkflowState) []domain.StateBasedPattern {
	var out []domain.StateBasedPattern
	for i := range p.patterns {
		if p.patterns[i].IsRelevant(state) {
			out = append(out, p.patterns[i])
		}
	}
	return out
}

// GetMandatoryPatternsForState returns patterns required in state.
func (p *Provider) GetMandatoryPatternsForState(state domain.WorkflowState) []domain.StateBasedPattern {
	var out []domain.StateBasedPattern
	for i := range p.patterns {
		if p.patterns[i].IsMandatory(state) {
			out = append(out, p.patterns[i])
		}
	}
	return out
}

// GenerateChecklistItems converts each pattern relevant to state into a
// checklist item, per spec §4.7's read→understand→implement shape,
// collapsed into a single tracked item whose title names all three
// steps; required iff the pattern is mandatory for state.
func (p *Provider) GenerateChecklistItems(state domain.WorkflowState) []domain.ChecklistItem {
	var out []domain.ChecklistItem
	for _, pat := range p.GetPatternsForState(state) {
		out = append(out, domain.ChecklistItem{
			ID:          "pattern-" + pat.ID,
			Title:       fmt.Sprintf("Read, understand, and implement pattern: %s", pat.Title),
			Description: pat.Description,
			Required:    pat.IsMandatory(state),
			Priority:    domain.ItemPriorityHigh,
		})
	}
	return out
}

// CheckCompliance verifies every mandatory pattern for task's current
// workflow state, consulting and refreshing the verification cache.
// Implements validator.PatternChecker.
func (p *Provider) CheckCompliance(ctx context.Context, task *domain.Task) (validator.PatternReport, error) {
	if task.Workflow == nil {
		return validator.PatternReport{}, nil
	}

	now := p.clock.Now()
	var report validator.PatternReport

	for _, pat := range p.GetMandatoryPatternsForState(task.Workflow.CurrentState) {
		if cached, ok := p.cache.get(pat.ID, p.fileMtime, now); ok {
			if !cached.compliant {
				report.Violations = append(report.Violations, validator.PatternViolation{
					PatternID: pat.ID, Severity: cached.severity, Message: cached.message,
				})
			}
			continue
		}

		compliant, severity, message, err := p.verify(ctx, pat)
		if err != nil {
			return report, err
		}
		p.cache.set(pat.ID, p.fileMtime, now, compliant, message, severity)
		if !compliant {
			report.Violations = append(report.Violations, validator.PatternViolation{
				PatternID: pat.ID, Severity: severity, Message: message,
			})
		}
	}

	return report, nil
}

// MarkVerified forces patternID's cached verification result to
// compliant, annotating the message with notes. Used by the CLI's
// "validate verify" command to record a manual approval that
// CheckCompliance's next call honours until the cache entry expires or
// patterns.json changes, per spec §7.
func (p *Provider) MarkVerified(patternID, notes string) error {
	for i := range p.patterns {
		if p.patterns[i].ID == patternID {
			severity := string(p.patterns[i].Validation.Severity)
			if severity == "" {
				severity = "error"
			}
			message := "manually verified"
			if notes != "" {
				message = "manually verified: " + notes
			}
			p.cache.set(patternID, p.fileMtime, p.clock.Now(), true, message, severity)
			return nil
		}
	}
	return flowerrors.ErrPatternNotFound
}

// verify runs pat's validation step, per spec §4.7's type-derived
// verification kinds.
func (p *Provider) verify(ctx context.Context, pat domain.StateBasedPattern) (compliant bool, severity, message string, err error) {
	severity = string(pat.Validation.Severity)
	if severity == "" {
		severity = "error"
	}

	switch pat.Validation.Type {
	case domain.ValidationFileExists:
		if _, statErr := os.Stat(pat.Validation.Rule); statErr != nil {
			return false, severity, pat.Validation.Message, nil
		}
		return true, severity, "", nil

	case domain.ValidationCommandRun:
		exitCode, output, runErr := p.runner.Run(ctx, pat.Validation.Rule)
		if runErr != nil {
			return false, severity, runErr.Error(), nil
		}
		if exitCode != 0 {
			msg := pat.Validation.Message
			if msg == "" {
				msg = strings.TrimSpace(output)
			}
			return false, severity, msg, nil
		}
		return true, severity, "", nil

	case domain.ValidationCodeCheck:
		// The rule text is not evaluated: a code_check pattern is always
		// reported compliant with severity "warning", so it never adds a
		// violation, whatever severity the pattern declares.
		return true, "warning", "", nil

	case domain.ValidationCustom:
		// Always manual per spec §4.7; never automatically fails.
		return true, severity, "", nil

	default:
		return true, "warning", fmt.Sprintf("unknown validation type %q, treated as manual", pat.Validation.Type), nil
	}
}

// Package config loads the single configuration surface spec §6
// describes: whether completing a task auto-activates the next queued
// one, plus the archive-retention override from SPEC_FULL.md's Design
// Notes. File discovery and precedence are grounded on
// internal/config/load.go, trimmed from atlas's many config domains
// (worktrees, git, tooling, crypto) down to this one.
package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// fileName is the config file atlas-style layered loading looks for,
// per spec §6.
const fileName = "ai-workflow.config.json"

// defaultRetentionDays is the fallback used when RetentionDays is unset
// or non-positive, per SPEC_FULL.md §9's Open Question resolution.
const defaultRetentionDays = 30

// Config is the fully-resolved configuration surface.
type Config struct {
	AutoActions   AutoActionsConfig `mapstructure:"autoActions"`
	RetentionDays int               `mapstructure:"retentionDays"`
}

// AutoActionsConfig groups the auto-action toggles.
type AutoActionsConfig struct {
	Task TaskAutoActionsConfig `mapstructure:"task"`
}

// TaskAutoActionsConfig groups task-lifecycle auto-action toggles.
type TaskAutoActionsConfig struct {
	Complete TaskCompleteAutoActionsConfig `mapstructure:"complete"`
}

// TaskCompleteAutoActionsConfig is the completion-time toggle set.
type TaskCompleteAutoActionsConfig struct {
	AutoActivateNext bool `mapstructure:"autoActivateNext"`
}

// AutoActivateNext implements queue.AutoActivateSource.
func (c *Config) AutoActivateNext() bool {
	return c.AutoActions.Task.Complete.AutoActivateNext
}

// RetentionDaysOrDefault returns c.RetentionDays, falling back to
// defaultRetentionDays when unset.
func (c *Config) RetentionDaysOrDefault() int {
	if c.RetentionDays <= 0 {
		return defaultRetentionDays
	}
	return c.RetentionDays
}

// setDefaults seeds v with the built-in defaults, lowest precedence.
func setDefaults(v *viper.Viper) {
	v.SetDefault("autoActions.task.complete.autoActivateNext", true)
	v.SetDefault("retentionDays", defaultRetentionDays)
}

// Load reads configuration from, in ascending precedence:
// built-in defaults, <projectRoot>/config/ai-workflow.config.json,
// and FLOWLOCK_*-prefixed environment variables.
func Load(_ context.Context, projectRoot string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FLOWLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := filepath.Join(projectRoot, "config", fileName)
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decoderOption()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// decoderOption configures mapstructure to accept duration-string
// overrides for RetentionDays expressed as "720h" etc, alongside the
// plain integer-days form, grounded on internal/config/load.go's
// viperDecoderOption.
func decoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			retentionDaysFromDurationHook,
		),
	)
}

// retentionDaysFromDurationHook converts a duration-shaped RetentionDays
// override (a time.Duration, or a string such as "720h" that
// time.ParseDuration accepts) into whole days. Any other value, including
// a plain integer or a unitless numeric string, is passed through.
func retentionDaysFromDurationHook(_, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(int(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case time.Duration:
		return int(v.Hours() / 24), nil
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return int(d.Hours() / 24), nil
		}
	}
	return data, nil
}

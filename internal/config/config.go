// Package config loads the constellate.yaml host configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/emberweb/constellate/internal/hangmon"
	"github.com/emberweb/constellate/internal/ident"
)

// Config is the host configuration for one orchestrator instance.
type Config struct {
	Version              string               `yaml:"version"`
	EventLogPath         string               `yaml:"event_log"`
	CrashReportPath      string               `yaml:"crash_reports"`
	CheckpointIntervalMs int                  `yaml:"checkpoint_interval_ms"`
	HangTimers           map[string]HangTimer `yaml:"hang_timers"`
}

// HangTimer is the per-component-kind hang budget in milliseconds.
type HangTimer struct {
	TaskTimeoutMs int `yaml:"task_timeout_ms"`
	MaxTimeoutMs  int `yaml:"max_timeout_ms"`
}

// GenerateDefault returns a config with workable defaults: script
// contexts get a generous budget, layout a tight one.
func GenerateDefault() *Config {
	return &Config{
		Version:              "1",
		EventLogPath:         ".constellate/session.ndjson",
		CrashReportPath:      ".constellate/crash-reports.ndjson",
		CheckpointIntervalMs: 100,
		HangTimers: map[string]HangTimer{
			string(ident.ComponentKindScript): {TaskTimeoutMs: 100, MaxTimeoutMs: 5000},
			string(ident.ComponentKindLayout): {TaskTimeoutMs: 50, MaxTimeoutMs: 1000},
		},
	}
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate rejects budgets that could never classify a hang.
func (c *Config) Validate() error {
	for kind, timer := range c.HangTimers {
		if timer.TaskTimeoutMs <= 0 {
			return fmt.Errorf("hang_timers.%s: task_timeout_ms must be positive", kind)
		}
		if timer.MaxTimeoutMs < timer.TaskTimeoutMs {
			return fmt.Errorf("hang_timers.%s: max_timeout_ms must be >= task_timeout_ms", kind)
		}
	}
	if c.CheckpointIntervalMs < 0 {
		return fmt.Errorf("checkpoint_interval_ms must not be negative")
	}
	return nil
}

// CheckpointInterval returns the checkpoint cadence as a duration.
func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalMs) * time.Millisecond
}

// Timers returns the hang budget for a component kind, falling back to
// the script budget when the kind has no entry of its own, and to the
// generated defaults when the config carries no script budget either.
// A zero-valued budget would mark every checkpoint as a permanent hang.
func (c *Config) Timers(kind ident.ComponentKind) hangmon.Timers {
	timer, ok := c.HangTimers[string(kind)]
	if !ok {
		timer, ok = c.HangTimers[string(ident.ComponentKindScript)]
	}
	if !ok {
		defaults := GenerateDefault().HangTimers
		if timer, ok = defaults[string(kind)]; !ok {
			timer = defaults[string(ident.ComponentKindScript)]
		}
	}
	return hangmon.Timers{
		TaskTimeout: time.Duration(timer.TaskTimeoutMs) * time.Millisecond,
		MaxTimeout:  time.Duration(timer.MaxTimeoutMs) * time.Millisecond,
	}
}

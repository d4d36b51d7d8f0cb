package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the daemon configuration. Accepted as YAML or JSON; unknown
// fields are rejected.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging      LoggingConfig       `json:"logging"`
	Storage      *StorageConfig      `json:"storage,omitempty"`
	Scheduler    SchedulerConfig     `json:"scheduler,omitempty"`
	Housekeeping *HousekeepingConfig `json:"housekeeping,omitempty"`
	Settings     SettingsConfig      `json:"settings,omitempty"`
	Backend      BackendConfig       `json:"backend,omitempty"`

	// ClaudeConfigPath overrides the location of the Claude Code user
	// config scraped for MCP servers. Empty means ~/.claude.json.
	ClaudeConfigPath string `json:"claude_config_path,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	File    string `json:"file,omitempty"`
}

// StorageConfig selects where the schedule is persisted.
// Driver: "file", "sqlite", or ""/"none" to disable.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type SchedulerConfig struct {
	// ShutdownGrace bounds how long shutdown waits for the poll loop and
	// background workers. Default 5s.
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// HousekeepingConfig controls periodic maintenance jobs.
type HousekeepingConfig struct {
	// AutosaveCron is a cron spec for persisting the schedule in the
	// background (e.g. "*/5 * * * *"). Empty disables autosave.
	AutosaveCron string `json:"autosave_cron,omitempty"`
}

type SettingsConfig struct {
	// Path of the JSON runtime-settings file. Default
	// "claude_scheduler_config.json" in the working directory.
	Path string `json:"path,omitempty"`
}

type BackendConfig struct {
	// Binary is the agent CLI executable. Default "claude".
	Binary string `json:"binary,omitempty"`

	// OutputLogPerSec caps how many streamed output chunks per task are
	// written to the log. 0 means the default of 2.
	OutputLogPerSec int `json:"output_log_per_sec,omitempty"`
}

const defaultShutdownGrace = 5 * time.Second

// Validate checks cross-field constraints that the strict decoder cannot.
func (c *Config) Validate() error {
	if _, err := c.ShutdownGrace(); err != nil {
		return err
	}
	if c.Storage != nil {
		switch d := strings.ToLower(strings.TrimSpace(c.Storage.Driver)); d {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", d)
		}
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Housekeeping != nil && strings.TrimSpace(c.Housekeeping.AutosaveCron) != "" {
		if _, err := cron.ParseStandard(c.Housekeeping.AutosaveCron); err != nil {
			return fmt.Errorf("housekeeping.autosave_cron: %w", err)
		}
	}
	if c.Backend.OutputLogPerSec < 0 {
		return fmt.Errorf("backend.output_log_per_sec: must be >= 0")
	}
	return nil
}

// ShutdownGrace returns the parsed scheduler.shutdown_grace with default.
func (c *Config) ShutdownGrace() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.shutdown_grace", c.Scheduler.ShutdownGrace, defaultShutdownGrace)
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

package config

import (
	"time"

	logx "dailyrun/pkg/logx"
)

// Config is the on-disk configuration document.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Task keys are string-encoded positive integer ids; the registry validates
// and skips malformed entries at load time rather than failing the whole file.
type Config struct {
	Logging   LoggingConfig        `json:"logging,omitempty"`
	Storage   StorageConfig        `json:"storage,omitempty"`
	Scheduler SchedulerConfig      `json:"scheduler,omitempty"`
	Clock     ClockConfig          `json:"clock,omitempty"`
	Tasks     map[string]TaskEntry `json:"tasks"`
}

// TaskEntry is one configured task, as stored.
type TaskEntry struct {
	Time     string   `json:"time"`
	Commands []string `json:"commands"`
	Message  string   `json:"message,omitempty"`
}

type LoggingConfig struct {
	Level string `json:"level,omitempty"`
	// Console is a pointer so "omitted" defaults to true.
	Console *bool      `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
	// RetentionDays is a pointer so "omitted" gets the default while an
	// explicit 0 disables pruning.
	RetentionDays *int `json:"retention_days,omitempty"`
}

type SchedulerConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	CommandDelay string `json:"command_delay,omitempty"`
}

// ClockConfig selects the external time provider.
//
// source "system" (or empty) uses the local clock only; "file" reads the
// time-of-day string from path, with placeholder as the writer's
// "unavailable" sentinel.
type ClockConfig struct {
	Source      string `json:"source,omitempty"`
	Path        string `json:"path,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

const (
	defaultStoragePath   = "./dailyrun.db"
	defaultBusyTimeout   = 5 * time.Second
	defaultPollInterval  = 10 * time.Second
	defaultCommandDelay  = 50 * time.Millisecond
	defaultRetentionDays = 90
)

// LogxConfig resolves the logging section to logx settings.
func (c *Config) LogxConfig() logx.Config {
	console := true
	if c.Logging.Console != nil {
		console = *c.Logging.Console
	}
	level := c.Logging.Level
	if level == "" {
		level = "info"
	}
	return logx.Config{
		Level:   level,
		Console: console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// StoragePath resolves the ledger file location.
func (c *Config) StoragePath() string {
	if c.Storage.Path != "" {
		return c.Storage.Path
	}
	return defaultStoragePath
}

// BusyTimeout resolves the sqlite busy timeout.
func (c *Config) BusyTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, defaultBusyTimeout)
}

// RetentionDays resolves the ledger retention window; 0 disables pruning.
func (c *Config) RetentionDays() int {
	if c.Storage.RetentionDays == nil {
		return defaultRetentionDays
	}
	if *c.Storage.RetentionDays < 0 {
		return 0
	}
	return *c.Storage.RetentionDays
}

// PollInterval resolves the scheduler poll cadence. The cadence must stay
// comfortably below a minute or boundaries could be skipped.
func (c *Config) PollInterval() (time.Duration, error) {
	d, err := ParseDurationOrDefault("scheduler.poll_interval", c.Scheduler.PollInterval, defaultPollInterval)
	if err != nil {
		return 0, err
	}
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d, nil
}

// CommandDelay resolves the pause between successive commands in a batch.
func (c *Config) CommandDelay() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.command_delay", c.Scheduler.CommandDelay, defaultCommandDelay)
}

// TaskEntries returns a caller-owned copy of the tasks section.
func (c *Config) TaskEntries() map[string]TaskEntry {
	out := make(map[string]TaskEntry, len(c.Tasks))
	for k, v := range c.Tasks {
		cp := v
		cp.Commands = append([]string(nil), v.Commands...)
		out[k] = cp
	}
	return out
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `logging:
  level: debug
  console: false
storage:
  path: ./data/run.db
  busy_timeout: 2s
  retention_days: 30
scheduler:
  poll_interval: 5s
  command_delay: 100ms
clock:
  source: file
  path: /run/timefeed
tasks:
  "1":
    time: "14:30"
    commands:
      - "[console] say hi"
      - "[player] spawn"
    message: "Event soon"
  "2":
    time: "06:00"
    commands:
      - "backup now"
`

func writeConfig(t *testing.T, name, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", sampleYAML)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	lx := cfg.LogxConfig()
	if lx.Level != "debug" || lx.Console {
		t.Fatalf("unexpected logging config: %+v", lx)
	}
	if cfg.StoragePath() != "./data/run.db" {
		t.Fatalf("StoragePath = %q", cfg.StoragePath())
	}
	if bt, _ := cfg.BusyTimeout(); bt != 2*time.Second {
		t.Fatalf("BusyTimeout = %v", bt)
	}
	if cfg.RetentionDays() != 30 {
		t.Fatalf("RetentionDays = %d", cfg.RetentionDays())
	}
	if pi, _ := cfg.PollInterval(); pi != 5*time.Second {
		t.Fatalf("PollInterval = %v", pi)
	}
	if cd, _ := cfg.CommandDelay(); cd != 100*time.Millisecond {
		t.Fatalf("CommandDelay = %v", cd)
	}
	if cfg.Clock.Source != "file" || cfg.Clock.Path != "/run/timefeed" {
		t.Fatalf("unexpected clock config: %+v", cfg.Clock)
	}

	tasks := cfg.TaskEntries()
	if len(tasks) != 2 {
		t.Fatalf("tasks = %d, want 2", len(tasks))
	}
	if tasks["1"].Message != "Event soon" || len(tasks["1"].Commands) != 2 {
		t.Fatalf("unexpected task 1: %+v", tasks["1"])
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "tasks: {}\n")
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	lx := cfg.LogxConfig()
	if lx.Level != "info" || !lx.Console {
		t.Fatalf("unexpected defaults: %+v", lx)
	}
	if cfg.RetentionDays() != defaultRetentionDays {
		t.Fatalf("RetentionDays = %d", cfg.RetentionDays())
	}
	if pi, _ := cfg.PollInterval(); pi != defaultPollInterval {
		t.Fatalf("PollInterval = %v", pi)
	}
	if cd, _ := cfg.CommandDelay(); cd != defaultCommandDelay {
		t.Fatalf("CommandDelay = %v", cd)
	}
}

func TestStrictDecodeRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "tasks: {}\nnonsense: true\n")
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestPollIntervalClamp(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", "scheduler:\n  poll_interval: 5m\ntasks: {}\n")
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pi, _ := cfg.PollInterval(); pi != 30*time.Second {
		t.Fatalf("PollInterval = %v, want clamp to 30s", pi)
	}
}

func TestSaveTasksRoundTrip(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", sampleYAML)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tasks := m.Get().TaskEntries()
	tasks["1"] = TaskEntry{Time: "15:00", Commands: []string{"say moved"}, Message: "Moved"}
	delete(tasks, "2")
	if err := m.SaveTasks(tasks); err != nil {
		t.Fatalf("SaveTasks: %v", err)
	}

	// In-memory view reflects the edit immediately.
	got := m.Get().TaskEntries()
	if got["1"].Time != "15:00" || len(got) != 1 {
		t.Fatalf("in-memory tasks = %+v", got)
	}

	// On-disk document round-trips, with unrelated sections preserved.
	fresh := NewManager(m.Path())
	cfg, err := fresh.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.StoragePath() != "./data/run.db" {
		t.Fatalf("storage section lost: %q", cfg.StoragePath())
	}
	if cfg.Clock.Path != "/run/timefeed" {
		t.Fatalf("clock section lost: %+v", cfg.Clock)
	}
	reloaded := cfg.TaskEntries()
	if len(reloaded) != 1 {
		t.Fatalf("tasks on disk = %+v", reloaded)
	}
	if e := reloaded["1"]; e.Time != "15:00" || e.Message != "Moved" || len(e.Commands) != 1 {
		t.Fatalf("task 1 on disk = %+v", e)
	}

	// Hash was refreshed: re-parsing our own write is a no-op publish.
	b, _ := os.ReadFile(m.Path())
	if !strings.Contains(string(b), "15:00") {
		t.Fatalf("expected new time in file:\n%s", b)
	}
}

func TestSaveTasksJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"storage":{"path":"x.db"},"tasks":{"3":{"time":"01:00","commands":["a"]}}}`)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	tasks := m.Get().TaskEntries()
	e := tasks["3"]
	e.Commands = append(e.Commands, "b")
	tasks["3"] = e
	if err := m.SaveTasks(tasks); err != nil {
		t.Fatalf("SaveTasks: %v", err)
	}

	cfg, err := NewManager(m.Path()).Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.StoragePath() != "x.db" {
		t.Fatalf("storage section lost: %q", cfg.StoragePath())
	}
	if got := cfg.TaskEntries()["3"].Commands; len(got) != 2 || got[1] != "b" {
		t.Fatalf("commands = %v", got)
	}
}

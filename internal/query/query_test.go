package query

import (
	"testing"

	"dailyrun/internal/clock"
	"dailyrun/internal/registry"
)

type fixedClock struct{ t clock.TimeOfDay }

func (c fixedClock) Now() clock.TimeOfDay { return c.t }

type staticTasks map[int]registry.Task

func (s staticTasks) AllTasks() map[int]registry.Task {
	out := make(map[int]registry.Task, len(s))
	for id, t := range s {
		out[id] = t
	}
	return out
}

func (s staticTasks) Task(id int) (registry.Task, bool) {
	t, ok := s[id]
	return t, ok
}

func task(id int, h, m int, msg string, commands ...string) registry.Task {
	return registry.Task{ID: id, Time: clock.At(h, m, 0), Commands: commands, Message: msg}
}

func TestNextTaskWrapsAroundMidnight(t *testing.T) {
	t.Parallel()
	tasks := staticTasks{
		1: task(1, 6, 0, "", "a"),
		2: task(2, 23, 0, "", "b"),
	}

	tests := []struct {
		name    string
		now     clock.TimeOfDay
		wantID  int
		wantSec int
	}{
		{"morning picks same-day six", clock.At(5, 0, 0), 1, 3600},
		{"afternoon picks evening task", clock.At(12, 0, 0), 2, 11 * 3600},
		{"late night wraps to tomorrow", clock.At(23, 30, 0), 1, 6*3600 + 30*60},
		{"exact trigger counts as tomorrow", clock.At(6, 0, 0), 2, 17 * 3600},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := New(tasks, fixedClock{tt.now})
			got, sec, ok := svc.NextTask()
			if !ok {
				t.Fatal("expected a next task")
			}
			if got.ID != tt.wantID || sec != tt.wantSec {
				t.Fatalf("NextTask() = (id=%d, sec=%d), want (id=%d, sec=%d)",
					got.ID, sec, tt.wantID, tt.wantSec)
			}
		})
	}
}

func TestNextTaskEmptyRegistry(t *testing.T) {
	t.Parallel()
	svc := New(staticTasks{}, fixedClock{clock.At(12, 0, 0)})
	if _, _, ok := svc.NextTask(); ok {
		t.Fatal("expected no next task")
	}
}

func TestFormatCountdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sec  int
		want string
	}{
		{0, "00:00:00"},
		{-5, "00:00:00"},
		{59, "00:00:59"},
		{3661, "01:01:01"},
		{23*3600 + 59*60 + 59, "23:59:59"},
	}
	for _, tt := range tests {
		if got := FormatCountdown(tt.sec); got != tt.want {
			t.Fatalf("FormatCountdown(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestFormatSimpleCountdown(t *testing.T) {
	t.Parallel()
	tests := []struct {
		sec  int
		want string
	}{
		{0, "Now"},
		{30, "30s"},
		{5*60 + 10, "5m 10s"},
		{90 * 60, "1h 30m"},
		{2*3600 + 5, "2h 0m"},
	}
	for _, tt := range tests {
		if got := FormatSimpleCountdown(tt.sec); got != tt.want {
			t.Fatalf("FormatSimpleCountdown(%d) = %q, want %q", tt.sec, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	tasks := staticTasks{
		1: task(1, 14, 30, "Backup soon", "save-all", "backup run"),
		2: task(2, 20, 0, "", "announce"),
	}
	// 13:00:00 — next is task 1 in 1h30m (5400s).
	svc := New(tasks, fixedClock{clock.At(13, 0, 0)})

	tests := []struct {
		param string
		want  string
	}{
		{"next_task_id", "1"},
		{"next_task_time", "14:30"},
		{"countdown_seconds", "5400"},
		{"countdown_minutes", "90"},
		{"countdown_hours", "1"},
		{"countdown_formatted", "01:30:00"},
		{"countdown_simple", "1h 30m"},
		{"countdown_detailed", "Task 1 in 1h 30m"},
		{"tasks_total", "2"},
		{"next_task_commands", "2"},
		{"time_until_hours_only", "1"},
		{"time_until_minutes_only", "30"},
		{"time_until_seconds_only", "0"},
		{"next_taskmsg", "Backup soon 01:30:00"},
		{"COUNTDOWN_SIMPLE", "1h 30m"}, // parameter names are case-insensitive
		{"task_1_msg", "Backup soon"},
		{"task_2_msg", "No message set"},
		{"task_9_msg", "Task not found"},
		{"task_1_countdown", "Backup soon 01:30:00"},
		{"task_2_countdown", "07:00:00"},
		{"task_9_countdown", "Task not found"},
		{"task_x_msg", "Invalid task ID"},
		{"task_1_2_msg", "Invalid task ID"},
	}
	for _, tt := range tests {
		got, ok := svc.Resolve(tt.param)
		if !ok {
			t.Fatalf("Resolve(%q) unknown, want %q", tt.param, tt.want)
		}
		if got != tt.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tt.param, got, tt.want)
		}
	}
}

func TestResolveUnknownParam(t *testing.T) {
	t.Parallel()
	svc := New(staticTasks{1: task(1, 14, 30, "", "x")}, fixedClock{clock.At(13, 0, 0)})
	if _, ok := svc.Resolve("bogus"); ok {
		t.Fatal("bogus parameter must be unknown")
	}
	if _, ok := svc.Resolve("task_1_extra"); ok {
		t.Fatal("unrecognized task parameter must be unknown")
	}
}

func TestResolveEmptyRegistry(t *testing.T) {
	t.Parallel()
	svc := New(staticTasks{}, fixedClock{clock.At(13, 0, 0)})
	// Every parameter answers N/A when nothing is scheduled.
	for _, p := range []string{"next_task_id", "countdown_simple", "task_1_msg"} {
		got, ok := svc.Resolve(p)
		if !ok || got != "N/A" {
			t.Fatalf("Resolve(%q) = (%q, %v), want (\"N/A\", true)", p, got, ok)
		}
	}
}

func TestNextTaskMessageEmptyWhenUnset(t *testing.T) {
	t.Parallel()
	svc := New(staticTasks{2: task(2, 20, 0, "", "announce")}, fixedClock{clock.At(13, 0, 0)})
	got, ok := svc.Resolve("next_taskmsg")
	if !ok || got != "" {
		t.Fatalf("next_taskmsg = (%q, %v), want empty string", got, ok)
	}
}

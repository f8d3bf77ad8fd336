// Package query is the read-only operator surface: next-task lookup and
// countdown strings derived from the task collection and the clock source.
// It never mutates anything and never fails; undefined inputs map to fixed
// fallback strings.
package query

import (
	"fmt"
	"strconv"
	"strings"

	"dailyrun/internal/clock"
	"dailyrun/internal/registry"
)

const (
	fallbackNone          = "N/A"
	fallbackTaskNotFound  = "Task not found"
	fallbackNoMessage     = "No message set"
	fallbackInvalidTaskID = "Invalid task ID"
)

const secondsPerDay = 24 * 60 * 60

// Tasks is the slice of the registry the query layer reads.
type Tasks interface {
	AllTasks() map[int]registry.Task
	Task(id int) (registry.Task, bool)
}

// TimeSource yields the current time-of-day (clock.Source satisfies it).
type TimeSource interface {
	Now() clock.TimeOfDay
}

// Service answers countdown and next-task queries.
type Service struct {
	tasks Tasks
	clock TimeSource
}

func New(tasks Tasks, src TimeSource) *Service {
	return &Service{tasks: tasks, clock: src}
}

// NextTask returns the task whose trigger time is closest in the future,
// together with the seconds until it fires. A trigger at or before the current
// instant counts as tomorrow's occurrence. ok is false when no tasks exist.
func (s *Service) NextTask() (t registry.Task, secondsUntil int, ok bool) {
	all := s.tasks.AllTasks()
	if len(all) == 0 {
		return registry.Task{}, 0, false
	}
	now := s.clock.Now()

	shortest := secondsPerDay + 1
	for _, cand := range all {
		until := secondsUntil24h(now, cand.Time)
		if until < shortest {
			shortest = until
			t = cand
			ok = true
		}
	}
	return t, shortest, ok
}

// secondsUntil24h measures the forward distance from now to target on a
// 24-hour circle; a zero or negative raw difference wraps to the next day.
func secondsUntil24h(now, target clock.TimeOfDay) int {
	d := target.SecondsOfDay() - now.SecondsOfDay()
	if d <= 0 {
		d += secondsPerDay
	}
	return d
}

// FormatCountdown renders "HH:MM:SS"; non-positive inputs render "00:00:00".
func FormatCountdown(totalSeconds int) string {
	if totalSeconds <= 0 {
		return "00:00:00"
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	sec := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
}

// FormatSimpleCountdown renders the two most significant units, or "Now".
func FormatSimpleCountdown(totalSeconds int) string {
	if totalSeconds <= 0 {
		return "Now"
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	sec := totalSeconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

// Resolve answers one query parameter. The second return is false only for
// parameters outside the defined surface; every defined parameter resolves to
// a string, falling back to "N/A" when no tasks are configured.
func (s *Service) Resolve(param string) (string, bool) {
	next, secondsUntil, ok := s.NextTask()
	if !ok {
		return fallbackNone, true
	}

	switch strings.ToLower(param) {
	case "next_task_id":
		return strconv.Itoa(next.ID), true
	case "next_task_time":
		return next.FormattedTime(), true
	case "countdown_seconds":
		return strconv.Itoa(secondsUntil), true
	case "countdown_minutes":
		return strconv.Itoa(secondsUntil / 60), true
	case "countdown_hours":
		return strconv.Itoa(secondsUntil / 3600), true
	case "countdown_formatted":
		return FormatCountdown(secondsUntil), true
	case "countdown_simple":
		return FormatSimpleCountdown(secondsUntil), true
	case "countdown_detailed":
		return fmt.Sprintf("Task %d in %s", next.ID, FormatSimpleCountdown(secondsUntil)), true
	case "tasks_total":
		return strconv.Itoa(len(s.tasks.AllTasks())), true
	case "next_task_commands":
		return strconv.Itoa(len(next.Commands)), true
	case "time_until_hours_only":
		return strconv.Itoa((secondsUntil / 3600) % 24), true
	case "time_until_minutes_only":
		return strconv.Itoa((secondsUntil / 60) % 60), true
	case "time_until_seconds_only":
		return strconv.Itoa(secondsUntil % 60), true
	case "next_taskmsg":
		return s.nextTaskMessage(next, secondsUntil), true
	}

	// "task_<id>_msg" and "task_<id>_countdown" address a specific task.
	if id, rest, found := cutTaskParam(param); found {
		switch rest {
		case "msg":
			return s.taskMessage(id), true
		case "countdown":
			return s.taskCountdown(id), true
		}
	}
	if looksLikeTaskParam(param) {
		return fallbackInvalidTaskID, true
	}
	return "", false
}

// nextTaskMessage is "<message> HH:MM:SS", or empty when no message is set.
func (s *Service) nextTaskMessage(next registry.Task, secondsUntil int) string {
	msg := strings.TrimSpace(next.Message)
	if msg == "" {
		return ""
	}
	return msg + " " + FormatCountdown(secondsUntil)
}

func (s *Service) taskMessage(id int) string {
	t, ok := s.tasks.Task(id)
	if !ok {
		return fallbackTaskNotFound
	}
	msg := strings.TrimSpace(t.Message)
	if msg == "" {
		return fallbackNoMessage
	}
	return msg
}

// taskCountdown is "<message> HH:MM:SS", or just the countdown when the task
// has no message.
func (s *Service) taskCountdown(id int) string {
	t, ok := s.tasks.Task(id)
	if !ok {
		return fallbackTaskNotFound
	}
	countdown := FormatCountdown(secondsUntil24h(s.clock.Now(), t.Time))
	msg := strings.TrimSpace(t.Message)
	if msg == "" {
		return countdown
	}
	return msg + " " + countdown
}

// cutTaskParam splits "task_<id>_<rest>" into its numeric id and rest.
func cutTaskParam(param string) (id int, rest string, ok bool) {
	body, found := strings.CutPrefix(param, "task_")
	if !found {
		return 0, "", false
	}
	idStr, rest, found := strings.Cut(body, "_")
	if !found {
		return 0, "", false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return 0, "", false
	}
	return id, rest, true
}

// looksLikeTaskParam reports whether the parameter is shaped like a task
// address but carries a non-numeric id.
func looksLikeTaskParam(param string) bool {
	return strings.HasPrefix(param, "task_") &&
		(strings.HasSuffix(param, "_msg") || strings.HasSuffix(param, "_countdown"))
}

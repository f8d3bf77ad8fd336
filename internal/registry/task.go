package registry

import (
	"fmt"

	"dailyrun/internal/clock"
)

// Task is a daily trigger time plus an ordered command batch and an optional
// display message. Seconds in Time are always zero; matching is minute-level.
type Task struct {
	ID       int
	Time     clock.TimeOfDay
	Commands []string
	Message  string
}

// FormattedTime renders the schedule time as "HH:MM".
func (t Task) FormattedTime() string { return t.Time.MinuteKey() }

func (t Task) String() string {
	return fmt.Sprintf("Task{id=%d, time=%s, commands=%d}", t.ID, t.FormattedTime(), len(t.Commands))
}

// clone returns a caller-owned copy.
func (t Task) clone() Task {
	cp := t
	cp.Commands = append([]string(nil), t.Commands...)
	return cp
}

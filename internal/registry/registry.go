// Package registry owns the in-memory task collection and the per-task
// execution guard.
//
// Reads hand out copies; mutations persist back to the configuration store
// immediately. The guard is a set of in-flight task ids with insert-if-absent
// semantics, so overlapping ExecuteTask calls for the same id run exactly one
// batch. Guards are not persisted — a restart clears them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"dailyrun/internal/clock"
	"dailyrun/internal/config"
	logx "dailyrun/pkg/logx"
)

// ErrTaskNotFound is returned by mutating operations for unknown ids.
var ErrTaskNotFound = errors.New("task not found")

// Store persists the tasks section of the configuration.
type Store interface {
	TaskEntries() map[string]config.TaskEntry
	SaveTasks(map[string]config.TaskEntry) error
}

// ExecutionLedger is the slice of the ledger the registry needs: marking a
// finished batch and purging a removed task. Both are asynchronous.
type ExecutionLedger interface {
	MarkExecuted(taskID int) <-chan struct{}
	RemoveTaskRecords(taskID int) <-chan struct{}
}

// CommandRunner executes one raw command line (dispatch.Dispatcher satisfies it).
type CommandRunner interface {
	Run(ctx context.Context, raw string) bool
}

// Spawner allows the owner to manage goroutines started for batch execution.
type Spawner interface {
	Go(name string, fn func())
}

type Options struct {
	// CommandDelay is the pause between successive commands in a batch.
	CommandDelay time.Duration
	Spawner      Spawner
}

type Registry struct {
	mu       sync.RWMutex
	tasks    map[int]*Task
	inFlight map[int]struct{}

	store  Store
	ledger ExecutionLedger
	runner CommandRunner

	delay time.Duration
	spawn Spawner
	log   logx.Logger
}

func New(store Store, ledger ExecutionLedger, runner CommandRunner, opts Options, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	delay := opts.CommandDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &Registry{
		tasks:    map[int]*Task{},
		inFlight: map[int]struct{}{},
		store:    store,
		ledger:   ledger,
		runner:   runner,
		delay:    delay,
		spawn:    opts.Spawner,
		log:      log,
	}
}

// LoadTasks rebuilds the collection from the configuration store. Malformed
// entries are logged and skipped; they never abort the load. The previous
// collection and the guard set are replaced wholesale.
func (r *Registry) LoadTasks() int {
	entries := r.store.TaskEntries()

	tasks := make(map[int]*Task, len(entries))
	for key, entry := range entries {
		id, err := strconv.Atoi(key)
		if err != nil || id <= 0 {
			r.log.Warn("invalid task id (must be a positive number)", logx.String("id", key))
			continue
		}
		if strings.TrimSpace(entry.Time) == "" {
			r.log.Warn("task is missing time configuration", logx.Int("task", id))
			continue
		}
		at, err := clock.ParseHHMM(entry.Time)
		if err != nil {
			r.log.Warn("invalid time format (expected HH:MM)",
				logx.Int("task", id), logx.String("time", entry.Time))
			continue
		}
		if len(entry.Commands) == 0 {
			r.log.Warn("task has no commands configured", logx.Int("task", id))
			continue
		}
		tasks[id] = &Task{
			ID:       id,
			Time:     at,
			Commands: append([]string(nil), entry.Commands...),
			Message:  entry.Message,
		}
	}

	r.mu.Lock()
	r.tasks = tasks
	r.inFlight = map[int]struct{}{}
	r.mu.Unlock()

	r.log.Info("tasks loaded", logx.Int("count", len(tasks)))
	return len(tasks)
}

// AllTasks returns a snapshot copy of the collection.
func (r *Registry) AllTasks() map[int]Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]Task, len(r.tasks))
	for id, t := range r.tasks {
		out[id] = t.clone()
	}
	return out
}

// TaskIDs returns the sorted task ids.
func (r *Registry) TaskIDs() []int {
	r.mu.RLock()
	ids := make([]int, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Task returns a snapshot of one task.
func (r *Registry) Task(id int) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// Count returns the number of loaded tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// ShouldExecuteTask reports whether the task's configured hour and minute
// equal now's hour and minute. Seconds are intentionally ignored.
func (r *Registry) ShouldExecuteTask(id int, now clock.TimeOfDay) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return ok && t.Time.SameMinute(now)
}

// ---- mutations (each persists immediately) ----

// UpdateTaskTime changes the schedule time. timeStr must be "HH:MM".
func (r *Registry) UpdateTaskTime(id int, timeStr string) error {
	at, err := clock.ParseHHMM(timeStr)
	if err != nil {
		return err
	}

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	old := t.Time
	t.Time = at
	entries := r.entriesLocked()
	r.mu.Unlock()

	if err := r.store.SaveTasks(entries); err != nil {
		return fmt.Errorf("persist task time: %w", err)
	}
	r.log.Info("task time updated", logx.Int("task", id),
		logx.String("from", old.MinuteKey()), logx.String("to", at.MinuteKey()))
	return nil
}

// AddCommand appends a command to the task's batch.
func (r *Registry) AddCommand(id int, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.New("command must not be empty")
	}

	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	t.Commands = append(t.Commands, command)
	entries := r.entriesLocked()
	r.mu.Unlock()

	if err := r.store.SaveTasks(entries); err != nil {
		return fmt.Errorf("persist task commands: %w", err)
	}
	r.log.Info("command added to task", logx.Int("task", id), logx.String("command", command))
	return nil
}

// RemoveCommand deletes the command at the given 1-based index. Emptying the
// batch is permitted; the task becomes a no-op until commands are re-added.
func (r *Registry) RemoveCommand(id int, index int) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	if index < 1 || index > len(t.Commands) {
		n := len(t.Commands)
		r.mu.Unlock()
		return fmt.Errorf("command index %d out of range (task has %d)", index, n)
	}
	removed := t.Commands[index-1]
	t.Commands = append(t.Commands[:index-1], t.Commands[index:]...)
	entries := r.entriesLocked()
	r.mu.Unlock()

	if err := r.store.SaveTasks(entries); err != nil {
		return fmt.Errorf("persist task commands: %w", err)
	}
	r.log.Info("command removed from task", logx.Int("task", id), logx.String("command", removed))
	return nil
}

// UpdateMessage sets the display message; an empty string clears it.
func (r *Registry) UpdateMessage(id int, message string) error {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	t.Message = strings.TrimSpace(message)
	entries := r.entriesLocked()
	r.mu.Unlock()

	if err := r.store.SaveTasks(entries); err != nil {
		return fmt.Errorf("persist task message: %w", err)
	}
	return nil
}

// RemoveTask deletes the task, its guard entry, and its ledger rows.
func (r *Registry) RemoveTask(id int) error {
	r.mu.Lock()
	if _, ok := r.tasks[id]; !ok {
		r.mu.Unlock()
		return ErrTaskNotFound
	}
	delete(r.tasks, id)
	delete(r.inFlight, id)
	entries := r.entriesLocked()
	r.mu.Unlock()

	if err := r.store.SaveTasks(entries); err != nil {
		return fmt.Errorf("persist task removal: %w", err)
	}
	r.ledger.RemoveTaskRecords(id)
	r.log.Info("task removed", logx.Int("task", id))
	return nil
}

// entriesLocked renders the current collection in storage form.
// Caller must hold r.mu.
func (r *Registry) entriesLocked() map[string]config.TaskEntry {
	out := make(map[string]config.TaskEntry, len(r.tasks))
	for id, t := range r.tasks {
		out[strconv.Itoa(id)] = config.TaskEntry{
			Time:     t.Time.MinuteKey(),
			Commands: append([]string(nil), t.Commands...),
			Message:  t.Message,
		}
	}
	return out
}

// Package sched drives the poll loop: every tick it reads the clock source,
// detects minute transitions, and sweeps the task collection for due tasks.
//
// Duplicate suppression is layered. A per-minute in-memory set (keyed
// "id:HH:MM") stops re-dispatch within the polled minute before any storage
// round-trip; the execution ledger then rejects tasks already run today. The
// set token is recorded before the asynchronous ledger check resolves, so two
// ticks landing in the same minute can never race past each other.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dailyrun/internal/clock"
	logx "dailyrun/pkg/logx"
)

// TaskSource is the slice of the registry the loop sweeps.
type TaskSource interface {
	TaskIDs() []int
	ShouldExecuteTask(id int, now clock.TimeOfDay) bool
	ExecuteTask(ctx context.Context, id int)
}

// Ledger answers whether a task already ran today. The check is asynchronous.
type Ledger interface {
	HasExecutedToday(taskID int) <-chan bool
}

// TimeSource yields the current time-of-day (clock.Source satisfies it).
type TimeSource interface {
	Now() clock.TimeOfDay
}

// Spawner allows the owner to manage goroutines started for ledger checks.
type Spawner interface {
	Go(name string, fn func())
}

type Options struct {
	// PollInterval is the tick period. Values outside (0, 30s] are replaced
	// by the 10s default; polling slower than the dedup window risks
	// skipping a minute entirely.
	PollInterval time.Duration
	Spawner      Spawner
}

// Loop is the scheduler. Construct with New, then call Run.
type Loop struct {
	clock  TimeSource
	tasks  TaskSource
	ledger Ledger

	interval time.Duration
	spawn    Spawner
	log      logx.Logger

	mu         sync.Mutex
	lastMinute string
	lastTime   clock.TimeOfDay
	hasLast    bool
	seen       map[string]struct{}
}

func New(ts TimeSource, tasks TaskSource, ledger Ledger, opts Options, log logx.Logger) *Loop {
	if log.IsZero() {
		log = logx.Nop()
	}
	interval := opts.PollInterval
	if interval <= 0 || interval > 30*time.Second {
		interval = 10 * time.Second
	}
	return &Loop{
		clock:    ts,
		tasks:    tasks,
		ledger:   ledger,
		interval: interval,
		spawn:    opts.Spawner,
		log:      log,
		seen:     map[string]struct{}{},
	}
}

// Run ticks until ctx is cancelled. The first sweep happens immediately so a
// task due in the startup minute is not missed.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("scheduler started", logx.Duration("poll_interval", l.interval))

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			l.log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

// tick runs one poll cycle: minute bookkeeping, then the due-task sweep.
func (l *Loop) tick(ctx context.Context) {
	now := l.clock.Now()
	minute := now.MinuteKey()

	l.mu.Lock()
	// A minute transition requires both the formatted key and the raw reading
	// to differ from the previous tick. An external clock source that keeps
	// replaying one reading therefore never advances the minute.
	if minute != l.lastMinute && (!l.hasLast || now != l.lastTime) {
		l.lastMinute = minute
		l.lastTime = now
		l.hasLast = true
		l.seen = map[string]struct{}{}
		l.log.Debug("minute transition", logx.String("minute", minute))
	}
	l.mu.Unlock()

	for _, id := range l.tasks.TaskIDs() {
		if !l.tasks.ShouldExecuteTask(id, now) {
			continue
		}
		key := fmt.Sprintf("%d:%s", id, minute)

		l.mu.Lock()
		if _, dup := l.seen[key]; dup {
			l.mu.Unlock()
			continue
		}
		// Claim the minute before the ledger answer arrives.
		l.seen[key] = struct{}{}
		l.mu.Unlock()

		l.checkAndExecute(ctx, id)
	}
}

// checkAndExecute resolves the ledger answer off the tick goroutine and
// triggers execution when the task has not run today.
func (l *Loop) checkAndExecute(ctx context.Context, id int) {
	done := l.ledger.HasExecutedToday(id)
	l.goAsync("sched.ledger_check", func() {
		select {
		case <-ctx.Done():
			return
		case ran := <-done:
			if ran {
				l.log.Debug("task already executed today", logx.Int("task", id))
				return
			}
			l.tasks.ExecuteTask(ctx, id)
		}
	})
}

func (l *Loop) goAsync(name string, fn func()) {
	if l.spawn != nil {
		l.spawn.Go(name, fn)
		return
	}
	go fn()
}

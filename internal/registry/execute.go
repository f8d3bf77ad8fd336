package registry

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "dailyrun/pkg/logx"
)

// ExecuteTask triggers the task's command batch, guarded against overlap.
// If the task is unknown or its batch is already running this is a logged
// no-op; exactly one batch proceeds per invocation window. The batch runs on
// its own goroutine (the dispatch hand-off) and the ledger is marked only
// after the whole batch finished, so a crash mid-batch leaves the task
// eligible to retry the same day.
func (r *Registry) ExecuteTask(ctx context.Context, id int) {
	t, ok := r.Task(id)
	if !ok {
		r.log.Warn("attempted to execute non-existent task", logx.Int("task", id))
		return
	}
	if !r.beginExecution(id) {
		r.log.Debug("task is already executing, skipping", logx.Int("task", id))
		return
	}

	r.log.Info("executing task", logx.Int("task", id), logx.Int("commands", len(t.Commands)))
	r.goAsync("registry.execute_task", func() {
		defer r.endExecution(id)
		r.runBatch(ctx, t)
		// Mark only after the batch completed; the write itself is async.
		r.ledger.MarkExecuted(id)
	})
}

// ExecuteTaskForTesting bypasses the execution guard and the ledger entirely
// and runs the batch immediately. Diagnostics only — it is NOT the scheduled
// path and repeated calls will re-run the commands.
func (r *Registry) ExecuteTaskForTesting(ctx context.Context, id int) bool {
	t, ok := r.Task(id)
	if !ok {
		r.log.Warn("cannot test non-existent task", logx.Int("task", id))
		return false
	}
	r.log.Info("testing task (bypassing schedule and ledger checks)", logx.Int("task", id))
	r.goAsync("registry.test_task", func() {
		r.runBatch(ctx, t)
	})
	return true
}

// beginExecution inserts id into the in-flight set if absent.
// Reports whether this caller won the right to run the batch.
func (r *Registry) beginExecution(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	if _, running := r.inFlight[id]; running {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Registry) endExecution(id int) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}

// runBatch dispatches the task's commands in order. Blank entries are
// skipped, individual failures are logged and do not abort the remainder,
// and successive dispatches are paced by the configured delay.
func (r *Registry) runBatch(ctx context.Context, t Task) {
	start := time.Now()
	lim := rate.NewLimiter(rate.Every(r.delay), 1)
	executed := 0

	for i, raw := range t.Commands {
		if strings.TrimSpace(raw) == "" {
			r.log.Warn("skipping empty command", logx.Int("task", t.ID), logx.Int("index", i+1))
			continue
		}
		if err := lim.Wait(ctx); err != nil {
			r.log.Warn("command batch interrupted", logx.Int("task", t.ID), logx.Err(err))
			return
		}
		ok := r.runner.Run(ctx, raw)
		executed++
		if !ok {
			r.log.Warn("command dispatch failed", logx.Int("task", t.ID), logx.Int("index", i+1))
			continue
		}
		r.log.Debug("command dispatched", logx.Int("task", t.ID), logx.Int("index", i+1))
	}

	r.log.Info("task batch completed", logx.Int("task", t.ID),
		logx.Int("executed", executed), logx.Duration("took", time.Since(start)))
}

func (r *Registry) goAsync(name string, fn func()) {
	if r.spawn != nil {
		r.spawn.Go(name, fn)
		return
	}
	go fn()
}

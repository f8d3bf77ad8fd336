// Package ledger is the durable "already executed today" record.
//
// One row per (task, calendar day) means the task ran that day; the scheduler
// consults it so a task fires at most once per day even across restarts. All
// public operations are asynchronous: they return immediately and deliver
// their result on a buffered channel. Storage failures never propagate — a
// read degrades to "not executed" and a write to a no-op, which errs on the
// side of a possible re-run rather than a permanent skip.
package ledger

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	logx "dailyrun/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

// dayFormat is the ledger's calendar-day key. The day is always the local
// calendar regardless of which clock the scheduler polls.
const dayFormat = "2006-01-02"

// Spawner allows the owner (e.g. the app supervisor) to own goroutines
// created for async ledger operations. When nil, plain `go` is used.
type Spawner interface {
	Go(name string, fn func())
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(name string, fn func())

func (f SpawnerFunc) Go(name string, fn func()) { f(name, fn) }

type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default (5s)
	// RetentionDays bounds how long rows are kept; 0 disables pruning.
	RetentionDays int
}

// Ledger owns a single sqlite handle. The handle does not tolerate concurrent
// statement execution, so one coarse mutex serializes every operation.
type Ledger struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
	busy time.Duration

	spawn Spawner
	log   logx.Logger

	// now is a test hook for the calendar day.
	now func() time.Time
}

// Open initializes the store, creating the file and schema as needed.
// This is the only ledger failure that is fatal to the caller.
func Open(cfg Config, spawn Spawner, log logx.Logger) (*Ledger, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("ledger path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create ledger dir: %w", err)
		}
	}

	l := &Ledger{path: cfg.Path, busy: busy, spawn: spawn, log: log, now: time.Now}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.connectLocked(); err != nil {
		return nil, err
	}
	l.log.Info("ledger opened", logx.String("path", cfg.Path))
	return l, nil
}

func (l *Ledger) connectLocked() error {
	db, err := sql.Open("sqlite", l.path)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite prefers a single writer; one connection also makes the
	// coarse-lock discipline airtight.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", l.busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("create schema: %w", err)
	}

	l.db = db
	return nil
}

// ensureConnLocked re-establishes the handle if it was closed or invalidated.
func (l *Ledger) ensureConnLocked() error {
	if l.db == nil {
		l.log.Info("reconnecting ledger", logx.String("path", l.path))
		return l.connectLocked()
	}
	if err := l.db.Ping(); err != nil {
		l.log.Warn("ledger handle stale, reconnecting", logx.Err(err))
		_ = l.db.Close()
		l.db = nil
		return l.connectLocked()
	}
	return nil
}

func (l *Ledger) goAsync(name string, fn func()) {
	if l.spawn != nil {
		l.spawn.Go(name, fn)
		return
	}
	go fn()
}

func (l *Ledger) today() string { return l.now().Format(dayFormat) }

// HasExecutedToday reports (asynchronously) whether a row exists for the task
// and the current local calendar day. On storage failure the result is false.
func (l *Ledger) HasExecutedToday(taskID int) <-chan bool {
	ch := make(chan bool, 1)
	l.goAsync("ledger.has_executed", func() {
		ch <- l.hasExecutedToday(taskID)
	})
	return ch
}

func (l *Ledger) hasExecutedToday(taskID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureConnLocked(); err != nil {
		l.log.Error("ledger read unavailable", logx.Int("task", taskID), logx.Err(err))
		return false
	}

	var one int
	err := l.db.QueryRow(
		`SELECT 1 FROM executed_tasks WHERE task_id = ? AND execution_date = ? LIMIT 1`,
		taskID, l.today(),
	).Scan(&one)
	switch {
	case err == nil:
		return true
	case errors.Is(err, sql.ErrNoRows):
		return false
	default:
		l.log.Error("ledger read failed", logx.Int("task", taskID), logx.Err(err))
		return false
	}
}

// MarkExecuted records (asynchronously) that the task ran today. The write is
// idempotent; repeating it on the same day leaves a single row.
func (l *Ledger) MarkExecuted(taskID int) <-chan struct{} {
	done := make(chan struct{}, 1)
	l.goAsync("ledger.mark_executed", func() {
		l.markExecuted(taskID)
		done <- struct{}{}
	})
	return done
}

func (l *Ledger) markExecuted(taskID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureConnLocked(); err != nil {
		l.log.Error("ledger write unavailable", logx.Int("task", taskID), logx.Err(err))
		return
	}

	day := l.today()
	if _, err := l.db.Exec(
		`INSERT OR REPLACE INTO executed_tasks (task_id, execution_date) VALUES (?, ?)`,
		taskID, day,
	); err != nil {
		// The task stays eligible to re-fire later today; preferable to a skip.
		l.log.Error("ledger write failed", logx.Int("task", taskID), logx.Err(err))
		return
	}
	l.log.Debug("task marked executed", logx.Int("task", taskID), logx.String("day", day))
}

// RemoveTaskRecords deletes (asynchronously) every row for the task. Used
// when a task is removed from the configuration.
func (l *Ledger) RemoveTaskRecords(taskID int) <-chan struct{} {
	done := make(chan struct{}, 1)
	l.goAsync("ledger.remove_records", func() {
		l.removeTaskRecords(taskID)
		done <- struct{}{}
	})
	return done
}

func (l *Ledger) removeTaskRecords(taskID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureConnLocked(); err != nil {
		l.log.Error("ledger delete unavailable", logx.Int("task", taskID), logx.Err(err))
		return
	}

	res, err := l.db.Exec(`DELETE FROM executed_tasks WHERE task_id = ?`, taskID)
	if err != nil {
		l.log.Error("ledger delete failed", logx.Int("task", taskID), logx.Err(err))
		return
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		l.log.Info("removed execution records", logx.Int("task", taskID), logx.Int64("rows", n))
	}
}

// Close releases the storage handle. Safe to call even if the handle was
// never established. A straggling async operation that races Close will
// transparently reconnect; shutdown does not wait for in-flight operations.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	if err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

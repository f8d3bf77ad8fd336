package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"dailyrun/internal/clock"
	logx "dailyrun/pkg/logx"
)

type fakeClock struct {
	mu sync.Mutex
	t  clock.TimeOfDay
}

func (c *fakeClock) Now() clock.TimeOfDay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) set(t clock.TimeOfDay) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeTasks struct {
	mu       sync.Mutex
	times    map[int]clock.TimeOfDay
	executed []int
}

func (f *fakeTasks) TaskIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int, 0, len(f.times))
	for id := range f.times {
		ids = append(ids, id)
	}
	return ids
}

func (f *fakeTasks) ShouldExecuteTask(id int, now clock.TimeOfDay) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.times[id]
	return ok && t.SameMinute(now)
}

func (f *fakeTasks) ExecuteTask(_ context.Context, id int) {
	f.mu.Lock()
	f.executed = append(f.executed, id)
	f.mu.Unlock()
}

func (f *fakeTasks) executions() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.executed...)
}

type fakeLedger struct {
	mu     sync.Mutex
	ran    map[int]bool
	checks int
}

func (l *fakeLedger) HasExecutedToday(id int) <-chan bool {
	l.mu.Lock()
	l.checks++
	ran := l.ran[id]
	l.mu.Unlock()
	ch := make(chan bool, 1)
	ch <- ran
	return ch
}

func (l *fakeLedger) checkCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checks
}

// syncSpawner runs spawned work inline so tests observe effects immediately.
type syncSpawner struct{}

func (syncSpawner) Go(_ string, fn func()) { fn() }

func newTestLoop(c *fakeClock, tasks *fakeTasks, led *fakeLedger) *Loop {
	return New(c, tasks, led, Options{Spawner: syncSpawner{}}, logx.Nop())
}

func TestTickExecutesDueTask(t *testing.T) {
	t.Parallel()
	c := &fakeClock{t: clock.At(14, 30, 5)}
	tasks := &fakeTasks{times: map[int]clock.TimeOfDay{
		1: clock.At(14, 30, 0),
		2: clock.At(18, 0, 0),
	}}
	led := &fakeLedger{}
	loop := newTestLoop(c, tasks, led)

	loop.tick(context.Background())

	if got := tasks.executions(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("executions = %v, want [1]", got)
	}
	if led.checkCount() != 1 {
		t.Fatalf("ledger checked %d times, want 1 (only due tasks)", led.checkCount())
	}
}

func TestTickHonoursLedger(t *testing.T) {
	t.Parallel()
	c := &fakeClock{t: clock.At(14, 30, 5)}
	tasks := &fakeTasks{times: map[int]clock.TimeOfDay{1: clock.At(14, 30, 0)}}
	led := &fakeLedger{ran: map[int]bool{1: true}}
	loop := newTestLoop(c, tasks, led)

	loop.tick(context.Background())

	if got := tasks.executions(); len(got) != 0 {
		t.Fatalf("executions = %v, want none (already ran today)", got)
	}
}

func TestSameMinuteDedup(t *testing.T) {
	t.Parallel()
	c := &fakeClock{t: clock.At(14, 30, 5)}
	tasks := &fakeTasks{times: map[int]clock.TimeOfDay{1: clock.At(14, 30, 0)}}
	led := &fakeLedger{}
	loop := newTestLoop(c, tasks, led)

	ctx := context.Background()
	loop.tick(ctx)
	c.set(clock.At(14, 30, 15))
	loop.tick(ctx)
	c.set(clock.At(14, 30, 55))
	loop.tick(ctx)

	if got := tasks.executions(); len(got) != 1 {
		t.Fatalf("executions = %v, want exactly one within the minute", got)
	}
	if led.checkCount() != 1 {
		t.Fatalf("ledger checked %d times, want 1 (dedup claims before the check)", led.checkCount())
	}
}

func TestNextMinuteClearsDedup(t *testing.T) {
	t.Parallel()
	c := &fakeClock{t: clock.At(14, 30, 55)}
	tasks := &fakeTasks{times: map[int]clock.TimeOfDay{
		1: clock.At(14, 30, 0),
		2: clock.At(14, 31, 0),
	}}
	led := &fakeLedger{}
	loop := newTestLoop(c, tasks, led)

	ctx := context.Background()
	loop.tick(ctx)
	c.set(clock.At(14, 31, 5))
	loop.tick(ctx)

	if got := tasks.executions(); len(got) != 2 {
		t.Fatalf("executions = %v, want one per minute", got)
	}
}

func TestStalledClockNeverAdvancesMinute(t *testing.T) {
	t.Parallel()
	c := &fakeClock{t: clock.At(14, 30, 5)}
	tasks := &fakeTasks{times: map[int]clock.TimeOfDay{1: clock.At(14, 30, 0)}}
	led := &fakeLedger{}
	loop := newTestLoop(c, tasks, led)

	ctx := context.Background()
	// A stuck external source replays the identical reading forever.
	for i := 0; i < 5; i++ {
		loop.tick(ctx)
	}

	loop.mu.Lock()
	seen := len(loop.seen)
	last := loop.lastMinute
	loop.mu.Unlock()
	if seen != 1 || last != "14:30" {
		t.Fatalf("seen=%d last=%q; dedup state must not reset on a stalled clock", seen, last)
	}
	if got := tasks.executions(); len(got) != 1 {
		t.Fatalf("executions = %v, want exactly one", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	c := &fakeClock{t: clock.At(3, 0, 0)}
	tasks := &fakeTasks{times: map[int]clock.TimeOfDay{}}
	led := &fakeLedger{}
	loop := New(c, tasks, led, Options{PollInterval: 5 * time.Millisecond, Spawner: syncSpawner{}}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestDefaultPollInterval(t *testing.T) {
	t.Parallel()
	c := &fakeClock{}
	loop := New(c, &fakeTasks{}, &fakeLedger{}, Options{PollInterval: 5 * time.Minute}, logx.Nop())
	if loop.interval != 10*time.Second {
		t.Fatalf("interval = %v, want 10s default for out-of-range values", loop.interval)
	}
}

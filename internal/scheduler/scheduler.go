// Package scheduler runs one-shot delayed callbacks (gag expiry, cooldown
// cleanup, delayed message deletion) as individually cancellable tasks.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a handle to a scheduled callback.
type Task interface {
	// Cancel stops the task. It reports true if the callback had not started
	// yet and will now never run.
	Cancel() bool
}

// Runner schedules one-shot callbacks. Implemented by *Scheduler and by
// schedulertest.Manual.
type Runner interface {
	ScheduleOnce(delay time.Duration, name string, fn func(ctx context.Context)) Task
}

// Scheduler is a timer-backed Runner. Callbacks receive a context that is
// cancelled by Stop.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tasks   map[string]*timerTask
	stopped bool
	wg      sync.WaitGroup
}

type timerTask struct {
	id    string
	name  string
	s     *Scheduler
	timer *time.Timer

	mu    sync.Mutex
	state int // 0 pending, 1 running/done, 2 cancelled
}

const (
	taskPending = iota
	taskFired
	taskCancelled
)

// New creates a running scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctx:    ctx,
		cancel: cancel,
		tasks:  make(map[string]*timerTask),
	}
}

// ScheduleOnce runs fn after delay on its own goroutine.
// After Stop the returned task is already cancelled.
func (s *Scheduler) ScheduleOnce(delay time.Duration, name string, fn func(ctx context.Context)) Task {
	t := &timerTask{id: uuid.NewString(), name: name, s: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		t.state = taskCancelled
		return t
	}
	s.tasks[t.id] = t
	s.wg.Add(1)
	t.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()
		if !t.claim(taskFired) {
			return
		}
		s.forget(t.id)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("scheduled task panicked", "task", name, "panic", r)
			}
		}()
		fn(s.ctx)
	})

	slog.Debug("task scheduled", "task", name, "id", t.id, "delay", delay)
	return t
}

// claim moves a pending task to the given state. Only one caller wins.
func (t *timerTask) claim(state int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != taskPending {
		return false
	}
	t.state = state
	return true
}

func (t *timerTask) Cancel() bool {
	if !t.claim(taskCancelled) {
		return false
	}
	if t.timer != nil && t.timer.Stop() {
		// the AfterFunc goroutine will never run, release its slot here
		t.s.wg.Done()
	}
	t.s.forget(t.id)
	return true
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// Pending returns the number of tasks that have neither fired nor been cancelled.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop cancels all pending tasks, cancels the callback context and waits for
// running callbacks to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	pending := make([]*timerTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		pending = append(pending, t)
	}
	s.mu.Unlock()

	for _, t := range pending {
		t.Cancel()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out with tasks still running")
	}
}

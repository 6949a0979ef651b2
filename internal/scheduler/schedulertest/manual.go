// Package schedulertest provides a manually driven scheduler.Runner so timer
// behaviour can be tested without sleeping.
package schedulertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
)

// Manual keeps a virtual clock. Tasks fire only when Advance moves the clock
// past their due time, in due order, on the caller's goroutine.
type Manual struct {
	mu    sync.Mutex
	now   time.Duration
	seq   int
	tasks []*Task
}

// Task is a task scheduled on Manual.
type Task struct {
	Name  string
	Delay time.Duration

	m         *Manual
	due       time.Duration
	seq       int
	fn        func(ctx context.Context)
	cancelled bool
	fired     bool
}

// NewManual returns a Manual at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

var _ scheduler.Runner = (*Manual)(nil)

func (m *Manual) ScheduleOnce(delay time.Duration, name string, fn func(ctx context.Context)) scheduler.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &Task{Name: name, Delay: delay, m: m, due: m.now + delay, seq: m.seq, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *Task) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.cancelled || t.fired {
		return false
	}
	t.cancelled = true
	return true
}

// Cancelled reports whether the task was cancelled before firing.
func (t *Task) Cancelled() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	return t.cancelled
}

// Advance moves the clock forward by d and runs every task that became due.
// Tasks scheduled by callbacks are eligible in the same call if due.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var next *Task
		for _, t := range m.tasks {
			if t.cancelled || t.fired || t.due > target {
				continue
			}
			if next == nil || t.due < next.due || (t.due == next.due && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		next.fired = true
		m.now = next.due
		m.mu.Unlock()

		next.fn(context.Background())
	}
}

// FireAll runs every pending task regardless of its delay.
func (m *Manual) FireAll() {
	m.Advance(m.maxDelay())
}

func (m *Manual) maxDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var d time.Duration
	for _, t := range m.tasks {
		if !t.cancelled && !t.fired && t.due-m.now > d {
			d = t.due - m.now
		}
	}
	return d
}

// Pending returns the pending tasks ordered by due time.
func (m *Manual) Pending() []*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Task
	for _, t := range m.tasks {
		if !t.cancelled && !t.fired {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].due < out[j].due })
	return out
}

// PendingNamed returns the pending tasks with the given name.
func (m *Manual) PendingNamed(name string) []*Task {
	var out []*Task
	for _, t := range m.Pending() {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

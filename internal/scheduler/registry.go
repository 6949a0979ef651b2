package scheduler

import (
	"context"
	"sync"
	"time"
)

// Registry tracks at most one cancellable task per key. Used for
// "auto-expire this message" style timers that get re-armed.
type Registry[K comparable] struct {
	mu    sync.Mutex
	tasks map[K]Task
}

// NewRegistry creates an empty registry.
func NewRegistry[K comparable]() *Registry[K] {
	return &Registry[K]{tasks: make(map[K]Task)}
}

// Put stores t under key, cancelling the task it replaces.
func (r *Registry[K]) Put(key K, t Task) {
	r.mu.Lock()
	prev := r.swap(key, t)
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
}

// Arm schedules fn on s after delay and registers the task under key,
// cancelling the task it replaces. The entry is dropped before fn runs.
// Registration completes before the callback can observe the registry.
func (r *Registry[K]) Arm(s Runner, key K, delay time.Duration, name string, fn func(ctx context.Context)) Task {
	var t Task

	r.mu.Lock()
	t = s.ScheduleOnce(delay, name, func(ctx context.Context) {
		r.Remove(key, t)
		fn(ctx)
	})
	prev := r.swap(key, t)
	r.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	return t
}

// swap installs t under key and returns the task it displaced, if different.
// r.mu must be held.
func (r *Registry[K]) swap(key K, t Task) Task {
	prev := r.tasks[key]
	r.tasks[key] = t
	if prev == t {
		return nil
	}
	return prev
}

// Cancel cancels and removes the task under key. It reports whether a task
// was registered.
func (r *Registry[K]) Cancel(key K) bool {
	r.mu.Lock()
	t, ok := r.tasks[key]
	delete(r.tasks, key)
	r.mu.Unlock()

	if ok {
		t.Cancel()
	}
	return ok
}

// Remove drops the entry for key if it still holds t. Fired tasks call this
// to clean up after themselves without clobbering a newer registration.
func (r *Registry[K]) Remove(key K, t Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[key] == t {
		delete(r.tasks, key)
	}
}

// Len returns the number of registered keys.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

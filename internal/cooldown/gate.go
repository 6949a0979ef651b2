// Package cooldown gates features so each user can trigger them once per
// cooldown window.
package cooldown

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
)

// ErrActive is returned by Trigger while the flag for the key is set.
var ErrActive = errors.New("cooldown active")

// TaskCleanup names the scheduled flag removal.
const TaskCleanup = "cooldown-cleanup"

// Key identifies one flag.
type Key struct {
	Feature string
	UserID  int64
}

// Cleanup undoes the visible result of an effect once the cooldown ends,
// e.g. deletes the delivered message.
type Cleanup func(ctx context.Context)

// Effect is the primary action guarded by the gate.
type Effect func(ctx context.Context) (Cleanup, error)

type flag struct {
	task scheduler.Task // nil while the effect is running
}

// Gate holds the active flags. Safe for concurrent use.
type Gate struct {
	sched scheduler.Runner

	mu    sync.Mutex
	flags map[Key]*flag
}

func NewGate(sched scheduler.Runner) *Gate {
	return &Gate{sched: sched, flags: make(map[Key]*flag)}
}

// Trigger runs effect unless key is already flagged, in which case it returns
// ErrActive. The flag is set before effect runs so concurrent triggers see it.
// If effect fails the flag is cleared at once and the error returned;
// otherwise the flag is cleared and cleanup run after cooldown.
func (g *Gate) Trigger(ctx context.Context, key Key, cooldown time.Duration, effect Effect) error {
	g.mu.Lock()
	if _, ok := g.flags[key]; ok {
		g.mu.Unlock()
		return ErrActive
	}
	f := &flag{}
	g.flags[key] = f
	g.mu.Unlock()

	cleanup, err := effect(ctx)
	if err != nil {
		g.drop(key, f)
		return err
	}

	g.mu.Lock()
	if g.flags[key] != f {
		// cleared while the effect ran, nothing left to wait for
		g.mu.Unlock()
		if cleanup != nil {
			cleanup(ctx)
		}
		return nil
	}
	f.task = g.sched.ScheduleOnce(cooldown, TaskCleanup, func(ctx context.Context) {
		if !g.drop(key, f) {
			return
		}
		if cleanup != nil {
			cleanup(ctx)
		}
	})
	g.mu.Unlock()
	return nil
}

// Active reports whether key is flagged.
func (g *Gate) Active(key Key) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.flags[key]
	return ok
}

// Clear removes the flag early and cancels its scheduled cleanup, which is
// then not run. An effect still in flight runs its cleanup as soon as it
// returns.
func (g *Gate) Clear(key Key) bool {
	g.mu.Lock()
	f, ok := g.flags[key]
	if ok {
		delete(g.flags, key)
	}
	g.mu.Unlock()

	if ok && f.task != nil {
		f.task.Cancel()
	}
	return ok
}

// Len returns the number of active flags.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.flags)
}

// drop removes key only if it still maps to f.
func (g *Gate) drop(key Key, f *flag) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flags[key] != f {
		return false
	}
	delete(g.flags, key)
	return true
}

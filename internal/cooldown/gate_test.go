package cooldown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/scheduler/schedulertest"
)

func TestTrigger_BlocksUntilCleanup(t *testing.T) {
	sched := schedulertest.NewManual()
	g := NewGate(sched)
	key := Key{Feature: "rules", UserID: 7}

	var effects, cleanups int
	effect := func(context.Context) (Cleanup, error) {
		effects++
		return func(context.Context) { cleanups++ }, nil
	}

	if err := g.Trigger(context.Background(), key, time.Minute, effect); err != nil {
		t.Fatalf("first Trigger() error: %v", err)
	}
	if err := g.Trigger(context.Background(), key, time.Minute, effect); !errors.Is(err, ErrActive) {
		t.Fatalf("second Trigger() error = %v, want ErrActive", err)
	}
	if effects != 1 {
		t.Errorf("effect ran %d times, want 1", effects)
	}

	// other users and features are independent
	if err := g.Trigger(context.Background(), Key{Feature: "rules", UserID: 8}, time.Minute, effect); err != nil {
		t.Errorf("other user blocked: %v", err)
	}
	if err := g.Trigger(context.Background(), Key{Feature: "faq", UserID: 7}, time.Minute, effect); err != nil {
		t.Errorf("other feature blocked: %v", err)
	}

	tasks := sched.PendingNamed(TaskCleanup)
	if len(tasks) != 3 || tasks[0].Delay != time.Minute {
		t.Fatalf("cleanup tasks = %+v", tasks)
	}

	sched.Advance(time.Minute)
	if g.Active(key) || cleanups != 3 {
		t.Errorf("after cooldown: active = %v, cleanups = %d", g.Active(key), cleanups)
	}
	if err := g.Trigger(context.Background(), key, time.Minute, effect); err != nil {
		t.Errorf("Trigger() after cleanup error: %v", err)
	}
}

func TestTrigger_FailedEffectClearsFlag(t *testing.T) {
	sched := schedulertest.NewManual()
	g := NewGate(sched)
	key := Key{Feature: "rules", UserID: 7}
	boom := errors.New("send failed")

	err := g.Trigger(context.Background(), key, time.Minute, func(context.Context) (Cleanup, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Trigger() error = %v, want effect error", err)
	}
	if g.Active(key) || g.Len() != 0 {
		t.Error("flag leaked after failed effect")
	}
	if n := len(sched.Pending()); n != 0 {
		t.Errorf("%d tasks scheduled after failed effect", n)
	}
}

func TestTrigger_FlagVisibleDuringEffect(t *testing.T) {
	g := NewGate(schedulertest.NewManual())
	key := Key{Feature: "rules", UserID: 7}

	var inner error
	_ = g.Trigger(context.Background(), key, time.Minute, func(ctx context.Context) (Cleanup, error) {
		inner = g.Trigger(ctx, key, time.Minute, func(context.Context) (Cleanup, error) { return nil, nil })
		return nil, nil
	})
	if !errors.Is(inner, ErrActive) {
		t.Errorf("nested Trigger() error = %v, want ErrActive", inner)
	}
}

func TestClear(t *testing.T) {
	sched := schedulertest.NewManual()
	g := NewGate(sched)
	key := Key{Feature: "rules", UserID: 7}
	cleaned := false

	_ = g.Trigger(context.Background(), key, time.Minute, func(context.Context) (Cleanup, error) {
		return func(context.Context) { cleaned = true }, nil
	})
	task := sched.PendingNamed(TaskCleanup)[0]

	if !g.Clear(key) {
		t.Fatal("Clear() = false for an active flag")
	}
	if !task.Cancelled() {
		t.Error("cleanup task not cancelled")
	}
	sched.FireAll()
	if cleaned {
		t.Error("cleanup ran after Clear()")
	}
	if g.Clear(key) {
		t.Error("second Clear() = true")
	}
}

func TestClear_DuringEffectRunsCleanup(t *testing.T) {
	sched := schedulertest.NewManual()
	g := NewGate(sched)
	key := Key{Feature: "rules", UserID: 7}

	var cleanups int
	effect := func(context.Context) (Cleanup, error) {
		if !g.Clear(key) {
			t.Error("Clear() during effect = false")
		}
		return func(context.Context) { cleanups++ }, nil
	}

	if err := g.Trigger(context.Background(), key, time.Minute, effect); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if cleanups != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleanups)
	}
	if n := len(sched.PendingNamed(TaskCleanup)); n != 0 {
		t.Errorf("%d cleanup tasks scheduled for a cleared flag", n)
	}
	if g.Active(key) {
		t.Error("flag still set after Clear")
	}
}

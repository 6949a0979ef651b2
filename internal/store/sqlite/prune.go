package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/gagbot/internal/store"
)

// DefaultPruneCron runs the journal pruner every half hour.
const DefaultPruneCron = "*/30 * * * *"

// Pruner removes expired gags from a journal on a cron schedule. Rows only
// outlive their gag when the process was down at expiry time.
type Pruner struct {
	gags store.GagStore
	expr string
	now  func() time.Time
}

// NewPruner validates expr and returns a pruner for gags.
func NewPruner(gags store.GagStore, expr string) (*Pruner, error) {
	if expr == "" {
		expr = DefaultPruneCron
	}
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid prune cron expression: %s", expr)
	}
	return &Pruner{gags: gags, expr: expr, now: time.Now}, nil
}

// RunOnce deletes every journal row that already expired.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	return p.gags.PruneGags(ctx, p.now())
}

// Run sleeps until each cron tick and prunes, until ctx is done.
func (p *Pruner) Run(ctx context.Context) error {
	slog.Info("gag journal pruner started", "cron", p.expr)
	for {
		next, err := gronx.NextTickAfter(p.expr, p.now(), false)
		if err != nil {
			slog.Error("prune next tick failed", "cron", p.expr, "error", err)
			next = p.now().Add(30 * time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("gag journal pruner stopped")
			return nil
		case <-timer.C:
		}

		n, err := p.RunOnce(ctx)
		if err != nil {
			slog.Warn("prune gag journal failed", "error", err)
			continue
		}
		if n > 0 {
			slog.Info("pruned expired gags", "count", n)
		}
	}
}

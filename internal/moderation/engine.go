// Package moderation implements the gag engine: per-user mute state with
// scheduled expiry and interception of a gagged user's messages.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/config"
	"github.com/nextlevelbuilder/gagbot/internal/mention"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
	"github.com/nextlevelbuilder/gagbot/internal/store"
	"github.com/nextlevelbuilder/gagbot/internal/timeparse"
)

var (
	ErrNoTarget    = errors.New("no target user")
	ErrNoDuration  = errors.New("no duration")
	ErrInvalidTime = timeparse.ErrInvalidTime
	ErrPermission  = errors.New("permission denied")
)

// Scheduled task names.
const (
	TaskGagExpire    = "gag-expire"
	TaskMumbleDelete = "mumble-delete"
)

const defaultMumbleTTL = 5 * time.Second

// GagRecord is one active gag. At most one exists per user.
type GagRecord struct {
	UserID    int64
	ChatID    int64
	Target    mention.Mention
	ExpiresAt time.Time

	task scheduler.Task
}

// Request describes a gag to apply.
type Request struct {
	ChatID  int64
	Actor   platform.User
	Target  mention.Mention
	Seconds int
}

// Engine owns the gag table. All methods are safe for concurrent use.
type Engine struct {
	cfg      *config.Store
	msgr     platform.Messenger
	sched    scheduler.Runner
	resolver *mention.Resolver
	journal  store.GagStore
	now      func() time.Time
	pick     func(n int) int

	// jmu orders journal writes with the table changes they mirror.
	// Lock order: jmu, then mu.
	jmu  sync.Mutex
	mu   sync.Mutex
	gags map[int64]*GagRecord
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal persists gags so Restore can reinstate them after a restart.
func WithJournal(j store.GagStore) Option {
	return func(e *Engine) { e.journal = j }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPicker overrides the random mumble choice. pick(n) must return [0, n).
func WithPicker(pick func(n int) int) Option {
	return func(e *Engine) { e.pick = pick }
}

func NewEngine(cfg *config.Store, msgr platform.Messenger, sched scheduler.Runner, resolver *mention.Resolver, opts ...Option) *Engine {
	e := &Engine{
		cfg:      cfg,
		msgr:     msgr,
		sched:    sched,
		resolver: resolver,
		now:      time.Now,
		pick:     rand.IntN,
		gags:     make(map[int64]*GagRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleMessage offers msg to the engine and reports whether it was consumed.
// Ungag commands are checked before gag commands; any other text from a
// gagged user is deleted and replaced with a mumble.
func (e *Engine) HandleMessage(ctx context.Context, msg *platform.Message) bool {
	if msg.Text == "" {
		return false
	}
	cfg := e.cfg.Current()

	if cfg.MatchUngag(msg.Text) {
		e.handleUngag(ctx, msg)
		return true
	}
	if cfg.MatchGag(msg.Text) {
		e.handleGag(ctx, msg)
		return true
	}
	if !e.IsGagged(msg.From.ID) {
		return false
	}
	e.mumble(ctx, msg, cfg)
	return true
}

// IsGagged reports whether userID has an active gag.
func (e *Engine) IsGagged(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.gags[userID]
	return ok
}

// Active returns a snapshot of current gags ordered by expiry.
func (e *Engine) Active() []GagRecord {
	e.mu.Lock()
	out := make([]GagRecord, 0, len(e.gags))
	for _, rec := range e.gags {
		cp := *rec
		cp.task = nil
		out = append(out, cp)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out
}

// Gag validates req, installs the gag and announces it.
func (e *Engine) Gag(ctx context.Context, req Request) error {
	if err := e.checkGag(req); err != nil {
		return err
	}
	e.apply(ctx, req)
	return nil
}

// Ungag releases target on behalf of requester. Only the target or an admin
// may release. released is false when no gag existed; both outcomes are announced.
func (e *Engine) Ungag(ctx context.Context, chatID int64, requester platform.User, target mention.Mention) (released bool, err error) {
	if err := e.checkUngag(requester, target); err != nil {
		return false, err
	}
	return e.release(ctx, chatID, target), nil
}

// Expire removes the gag on userID without an announcement. It is a no-op
// when no gag exists.
func (e *Engine) Expire(ctx context.Context, userID int64) {
	e.jmu.Lock()
	defer e.jmu.Unlock()

	e.mu.Lock()
	rec, ok := e.gags[userID]
	if ok {
		delete(e.gags, userID)
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	rec.task.Cancel()
	e.forget(ctx, userID)
	slog.Info("gag expired", "user_id", userID)
}

// expireRecord is the expiry callback. It only removes rec if it is still
// the installed record, so a stale timer cannot clear a newer gag.
func (e *Engine) expireRecord(ctx context.Context, rec *GagRecord) {
	e.jmu.Lock()
	defer e.jmu.Unlock()

	e.mu.Lock()
	cur, ok := e.gags[rec.UserID]
	if !ok || cur != rec {
		e.mu.Unlock()
		return
	}
	delete(e.gags, rec.UserID)
	e.mu.Unlock()

	e.forget(ctx, rec.UserID)
	slog.Info("gag expired", "user_id", rec.UserID)
}

// Restore reinstates journaled gags with their remaining time. Entries that
// expired while the bot was down are dropped from the journal.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.journal == nil {
		return 0, nil
	}
	e.jmu.Lock()
	defer e.jmu.Unlock()

	entries, err := e.journal.ListGags(ctx)
	if err != nil {
		return 0, fmt.Errorf("list journaled gags: %w", err)
	}

	now := e.now()
	restored := 0
	for _, g := range entries {
		remaining := g.ExpiresAt.Sub(now)
		if remaining <= 0 {
			e.forget(ctx, g.UserID)
			continue
		}
		target := mention.Mention{UserID: g.UserID, Username: g.Username, Name: g.Name}
		e.install(g.ChatID, target, remaining)
		restored++
	}
	return restored, nil
}

func (e *Engine) checkGag(req Request) error {
	if !req.Target.HasID() {
		return ErrNoTarget
	}
	if req.Seconds <= 0 {
		return ErrInvalidTime
	}
	cfg := e.cfg.Current()
	if cfg.Gag.AdminOnly && !cfg.IsAdmin(req.Actor.ID) {
		return ErrPermission
	}
	return nil
}

func (e *Engine) checkUngag(requester platform.User, target mention.Mention) error {
	if !target.HasID() {
		return ErrNoTarget
	}
	if target.UserID != requester.ID && !e.cfg.Current().IsAdmin(requester.ID) {
		return ErrPermission
	}
	return nil
}

// apply installs the gag, journals it and announces it. The journal row is
// written before any concurrent ungag or replacement can touch the record.
func (e *Engine) apply(ctx context.Context, req Request) {
	d := time.Duration(req.Seconds) * time.Second

	e.jmu.Lock()
	rec := e.install(req.ChatID, req.Target, d)
	if e.journal != nil {
		err := e.journal.SaveGag(ctx, store.GagEntry{
			UserID:    req.Target.UserID,
			ChatID:    req.ChatID,
			Username:  req.Target.Username,
			Name:      req.Target.Name,
			ExpiresAt: rec.ExpiresAt,
			CreatedBy: req.Actor.ID,
		})
		if err != nil {
			slog.Warn("journal gag failed", "user_id", req.Target.UserID, "error", err)
		}
	}
	e.jmu.Unlock()

	slog.Info("gag applied", "chat_id", req.ChatID, "actor_id", req.Actor.ID,
		"user_id", req.Target.UserID, "seconds", req.Seconds)

	text := fmt.Sprintf("%s надел кляп на %s на %s",
		mention.DisplayUser(req.Actor), req.Target.Display(), timeparse.Format(req.Seconds))
	if _, err := e.msgr.SendMessage(ctx, req.ChatID, text); err != nil {
		slog.Error("send gag announcement failed", "chat_id", req.ChatID, "error", err)
	}
}

// install creates or replaces the record for target. The previous expiry
// task is cancelled under the same lock that installs the replacement.
func (e *Engine) install(chatID int64, target mention.Mention, d time.Duration) *GagRecord {
	rec := &GagRecord{
		UserID:    target.UserID,
		ChatID:    chatID,
		Target:    target,
		ExpiresAt: e.now().Add(d),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if old, ok := e.gags[target.UserID]; ok {
		old.task.Cancel()
	}
	rec.task = e.sched.ScheduleOnce(d, TaskGagExpire, func(ctx context.Context) {
		e.expireRecord(ctx, rec)
	})
	e.gags[target.UserID] = rec
	return rec
}

// release removes the gag on target and announces the outcome.
func (e *Engine) release(ctx context.Context, chatID int64, target mention.Mention) bool {
	e.jmu.Lock()
	e.mu.Lock()
	rec, ok := e.gags[target.UserID]
	if ok {
		delete(e.gags, target.UserID)
	}
	e.mu.Unlock()
	if ok {
		rec.task.Cancel()
		e.forget(ctx, target.UserID)
	}
	e.jmu.Unlock()

	var text string
	if ok {
		slog.Info("gag released", "chat_id", chatID, "user_id", target.UserID)
		text = fmt.Sprintf("✅ %s освобождён(а) от кляпа", target.Display())
	} else {
		text = fmt.Sprintf("⚠️ %s не был(а) в кляпе", target.Display())
	}
	if _, err := e.msgr.SendMessage(ctx, chatID, text); err != nil {
		slog.Error("send ungag announcement failed", "chat_id", chatID, "error", err)
	}
	return ok
}

func (e *Engine) forget(ctx context.Context, userID int64) {
	if e.journal == nil {
		return
	}
	if err := e.journal.DeleteGag(ctx, userID); err != nil {
		slog.Warn("remove journaled gag failed", "user_id", userID, "error", err)
	}
}

// mumble deletes a gagged user's message and posts a filler phrase in its
// place, removed again after the mumble TTL.
func (e *Engine) mumble(ctx context.Context, msg *platform.Message, cfg *config.Config) {
	if err := e.msgr.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		slog.Warn("delete gagged message failed", "chat_id", msg.ChatID, "user_id", msg.From.ID, "error", err)
	}
	if len(cfg.Mumbles) == 0 {
		return
	}

	phrase := cfg.Mumbles[e.pick(len(cfg.Mumbles))]
	text := mention.DisplayUser(msg.From) + ": " + phrase
	sentID, err := e.msgr.SendMessage(ctx, msg.ChatID, text)
	if err != nil {
		slog.Error("send mumble failed", "chat_id", msg.ChatID, "user_id", msg.From.ID, "error", err)
		return
	}

	ttl := defaultMumbleTTL
	if cfg.Gag.MumbleTTL > 0 {
		ttl = time.Duration(cfg.Gag.MumbleTTL) * time.Second
	}
	chatID := msg.ChatID
	e.sched.ScheduleOnce(ttl, TaskMumbleDelete, func(ctx context.Context) {
		if err := e.msgr.DeleteMessage(ctx, chatID, sentID); err != nil {
			slog.Debug("delete mumble failed", "chat_id", chatID, "message_id", sentID, "error", err)
		}
	})
}

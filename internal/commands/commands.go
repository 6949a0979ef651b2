// Package commands serves the one-shot informational commands defined in
// config (/rules and the like), each gated per user by a cooldown.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/nextlevelbuilder/gagbot/internal/config"
	"github.com/nextlevelbuilder/gagbot/internal/cooldown"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
)

const (
	// DefaultWarning is sent when a command is still cooling down and its
	// config has no warning text.
	DefaultWarning = "⚠️ Команда уже была использована."

	// TaskWarningDelete names the removal of a cooldown warning.
	TaskWarningDelete = "warning-delete"

	warningTTL = 5 * time.Second
)

// Parse splits "/name@bot args" into a lower-cased name and the argument
// text. ok is false when text is not a command.
func Parse(text string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// Handler answers configured commands.
type Handler struct {
	cfg   *config.Store
	msgr  platform.Messenger
	gate  *cooldown.Gate
	sched scheduler.Runner
}

func NewHandler(cfg *config.Store, msgr platform.Messenger, gate *cooldown.Gate, sched scheduler.Runner) *Handler {
	return &Handler{cfg: cfg, msgr: msgr, gate: gate, sched: sched}
}

// Handle answers the command name for msg and reports whether name is a
// configured command. The user's command message is always deleted.
func (h *Handler) Handle(ctx context.Context, msg *platform.Message, name string) bool {
	cmd, ok := h.cfg.Current().Command(name)
	if !ok {
		return false
	}

	h.delete(ctx, msg.ChatID, msg.MessageID)

	key := cooldown.Key{Feature: cmd.Flag, UserID: msg.From.ID}
	cooldownFor := time.Duration(cmd.Cooldown) * time.Second
	chatID := msg.ChatID

	err := h.gate.Trigger(ctx, key, cooldownFor, func(ctx context.Context) (cooldown.Cleanup, error) {
		sentID, err := h.msgr.SendHTML(ctx, chatID, cmd.Text)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) { h.delete(ctx, chatID, sentID) }, nil
	})

	switch {
	case errors.Is(err, cooldown.ErrActive):
		warning := cmd.Warning
		if warning == "" {
			warning = DefaultWarning
		}
		h.sendTemporary(ctx, chatID, warning, warningTTL)
	case err != nil:
		slog.Error("send command reply failed", "command", name, "chat_id", chatID, "error", err)
	}
	return true
}

// Names lists the configured command names.
func (h *Handler) Names() []string {
	cmds := h.cfg.Current().Commands
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	return names
}

func (h *Handler) sendTemporary(ctx context.Context, chatID int64, text string, ttl time.Duration) {
	id, err := h.msgr.SendMessage(ctx, chatID, text)
	if err != nil {
		slog.Error("send temporary message failed", "chat_id", chatID, "error", err)
		return
	}
	h.sched.ScheduleOnce(ttl, TaskWarningDelete, func(ctx context.Context) {
		h.delete(ctx, chatID, id)
	})
}

func (h *Handler) delete(ctx context.Context, chatID int64, messageID int) {
	if err := h.msgr.DeleteMessage(ctx, chatID, messageID); err != nil {
		slog.Debug("delete message failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

package moderation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/timeparse"
)

// Replies sent to the user who issued a malformed or forbidden command.
const (
	replyGagNoTarget    = "⚠️ Не найден пользователь для кляпа. Используй reply или @username."
	replyUngagNoTarget  = "⚠️ Не найден пользователь для снятия кляпа."
	replyNoDuration     = "⚠️ Укажи время: «10с», «5м», «2ч» или «до HH:MM»"
	replyInvalidTime    = "⚠️ Неправильное время."
	replyGagAdminOnly   = "🚫 Только админ может надевать кляп."
	replyUngagAdminOnly = "🚫 Только админ может снять кляп с другого пользователя."
)

func (e *Engine) handleGag(ctx context.Context, msg *platform.Message) {
	req := Request{ChatID: msg.ChatID, Actor: msg.From}

	target, ok := e.resolver.Target(ctx, msg)
	if !ok {
		e.reply(ctx, msg, replyGagNoTarget)
		return
	}
	req.Target = target

	seconds, err := ParseSeconds(msg.Text, e.now())
	if err != nil {
		e.reply(ctx, msg, gagReply(err))
		return
	}
	req.Seconds = seconds

	if err := e.checkGag(req); err != nil {
		e.reply(ctx, msg, gagReply(err))
		return
	}

	e.deleteCommand(ctx, msg)
	e.apply(ctx, req)
}

func (e *Engine) handleUngag(ctx context.Context, msg *platform.Message) {
	target, ok := e.resolver.Target(ctx, msg)
	if !ok {
		e.reply(ctx, msg, replyUngagNoTarget)
		return
	}
	if err := e.checkUngag(msg.From, target); err != nil {
		e.reply(ctx, msg, replyUngagAdminOnly)
		return
	}

	e.deleteCommand(ctx, msg)
	e.release(ctx, msg.ChatID, target)
}

// ParseSeconds extracts a gag length from command text. It returns
// ErrNoDuration when the text names no time and ErrInvalidTime when the
// time resolves to zero or less.
func ParseSeconds(text string, now time.Time) (int, error) {
	seconds, found, err := timeparse.Seconds(text, now)
	switch {
	case !found:
		return 0, ErrNoDuration
	case err != nil:
		return 0, err
	}
	return seconds, nil
}

func gagReply(err error) string {
	switch {
	case errors.Is(err, ErrNoTarget):
		return replyGagNoTarget
	case errors.Is(err, ErrNoDuration):
		return replyNoDuration
	case errors.Is(err, ErrPermission):
		return replyGagAdminOnly
	default:
		return replyInvalidTime
	}
}

func (e *Engine) reply(ctx context.Context, msg *platform.Message, text string) {
	if _, err := e.msgr.Reply(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		slog.Warn("reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

func (e *Engine) deleteCommand(ctx context.Context, msg *platform.Message) {
	if err := e.msgr.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		slog.Warn("delete gag command failed", "chat_id", msg.ChatID, "message_id", msg.MessageID, "error", err)
	}
}

package telegram

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/mymmrac/telego"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/gagbot/internal/channels"
	"github.com/nextlevelbuilder/gagbot/internal/commands"
	"github.com/nextlevelbuilder/gagbot/internal/tracing"
)

// handleUpdate dispatches one update. A panicking handler is logged and
// does not take down the poll loop.
func (c *Channel) handleUpdate(ctx context.Context, update telego.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telegram update handler panicked", "update_id", update.UpdateID,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	switch {
	case update.Message != nil:
		ctx, span := tracing.Start(ctx, "telegram.message",
			attribute.Int64("chat.id", update.Message.Chat.ID),
			attribute.Int("message.id", update.Message.MessageID))
		defer span.End()
		c.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		ctx, span := tracing.Start(ctx, "telegram.callback",
			attribute.String("callback.data", update.CallbackQuery.Data))
		defer span.End()
		c.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
	}
}

// handleMessage routes a text message: mute engine first, then role-play
// dispatch, then commands. The first stage that consumes it wins.
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	msg := toPlatformMessage(message)
	if msg == nil {
		return
	}

	slog.Debug("telegram message received",
		"chat_id", msg.ChatID,
		"user_id", msg.From.ID,
		"username", msg.From.Username,
		"text_preview", channels.Truncate(msg.Text, 60),
	)

	c.msgr.Remember(ctx, msg.ChatID, knownUsers(msg)...)

	if c.engine.HandleMessage(ctx, msg) {
		return
	}
	if c.roleplay.Dispatch(ctx, msg) {
		return
	}
	if name, args, ok := commands.Parse(msg.Text); ok {
		c.handleBotCommand(ctx, msg, name, args)
	}
}

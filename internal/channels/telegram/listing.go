package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
)

// Callback data of the listing keyboard.
const (
	callbackPagePrefix = "actions:page:"
	callbackDelete     = "actions:delete"
)

// TaskListingDelete names the auto-removal of an actions listing.
const TaskListingDelete = "listing-delete"

const (
	defaultListingTTL = 180 * time.Second
	listingEmpty      = "❗️ Действий не найдено."
)

// listingKey identifies a posted listing message.
type listingKey struct {
	chatID    int64
	messageID int
}

// renderListing builds the HTML text and keyboard for view.
func renderListing(view actions.PageView) (string, *telego.InlineKeyboardMarkup) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📖 Список действий (страница <b>%d</b> из <b>%d</b>):\n\n", view.Page+1, view.TotalPages)
	if len(view.Items) == 0 {
		sb.WriteString(listingEmpty)
	}
	for i, item := range view.Items {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "• <b>%s</b>: %s", html.EscapeString(item.Key), html.EscapeString(item.Template))
	}

	kb := tu.InlineKeyboard(tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("⬅️ Назад").WithCallbackData(callbackPagePrefix+strconv.Itoa(view.Prev())),
		tu.InlineKeyboardButton("❌ Убрать").WithCallbackData(callbackDelete),
		tu.InlineKeyboardButton("Вперёд ➡️").WithCallbackData(callbackPagePrefix+strconv.Itoa(view.Next())),
	))
	return sb.String(), kb
}

// page reads a fresh catalog snapshot and renders page.
func (c *Channel) page(page int) (string, *telego.InlineKeyboardMarkup, error) {
	snap, err := c.catalog.Snapshot()
	if err != nil {
		return "", nil, err
	}
	size := c.cfg.Current().ActionsList.PageSize
	text, kb := renderListing(actions.Page(snap, page, size))
	return text, kb, nil
}

func (c *Channel) listingTTL() time.Duration {
	if ttl := c.cfg.Current().ActionsList.TTL; ttl > 0 {
		return time.Duration(ttl) * time.Second
	}
	return defaultListingTTL
}

// sendListing deletes the /actions command and posts the first page.
func (c *Channel) sendListing(ctx context.Context, msg *platform.Message) {
	if err := c.msgr.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		slog.Debug("delete actions command failed", "chat_id", msg.ChatID, "error", err)
	}

	text, kb, err := c.page(0)
	if err != nil {
		slog.Error("read action catalog failed", "error", err)
		return
	}
	sentID, err := c.msgr.SendKeyboard(ctx, msg.ChatID, text, kb)
	if err != nil {
		slog.Error("send actions listing failed", "chat_id", msg.ChatID, "error", err)
		return
	}
	c.armListing(listingKey{chatID: msg.ChatID, messageID: sentID})
}

// armListing schedules deletion of the listing, replacing any earlier timer.
func (c *Channel) armListing(key listingKey) {
	c.listings.Arm(c.sched, key, c.listingTTL(), TaskListingDelete, func(ctx context.Context) {
		if err := c.msgr.DeleteMessage(ctx, key.chatID, key.messageID); err != nil {
			slog.Warn("delete actions listing failed", "chat_id", key.chatID, "message_id", key.messageID, "error", err)
		}
	})
}

// handleCallbackQuery serves the listing keyboard. Other callbacks are only answered.
func (c *Channel) handleCallbackQuery(ctx context.Context, query *telego.CallbackQuery) {
	if err := c.api.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
	}); err != nil {
		slog.Debug("answer callback query failed", "error", err)
	}
	if query.Message == nil {
		return
	}
	key := listingKey{
		chatID:    query.Message.GetChat().ID,
		messageID: query.Message.GetMessageID(),
	}

	switch {
	case query.Data == callbackDelete:
		c.listings.Cancel(key)
		if err := c.msgr.DeleteMessage(ctx, key.chatID, key.messageID); err != nil {
			slog.Warn("delete actions listing failed", "chat_id", key.chatID, "error", err)
		}

	case strings.HasPrefix(query.Data, callbackPagePrefix):
		page, err := strconv.Atoi(strings.TrimPrefix(query.Data, callbackPagePrefix))
		if err != nil || page < 0 {
			return
		}
		text, kb, err := c.page(page)
		if err != nil {
			slog.Error("read action catalog failed", "error", err)
			return
		}
		c.listings.Cancel(key)
		if err := c.msgr.EditKeyboard(ctx, key.chatID, key.messageID, text, kb); err != nil {
			slog.Warn("update actions listing failed", "chat_id", key.chatID, "error", err)
			return
		}
		c.armListing(key)

	default:
		slog.Debug("telegram callback ignored", "data", query.Data)
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/timeparse"
)

const (
	replyNoAccess     = "🚫 У вас нет доступа к этой команде."
	replyReloaded     = "🔄 Конфигурация перезагружена."
	replyReloadFailed = "❌ Не удалось перезагрузить конфигурацию: %v"
	replyAddUsage     = "Использование: /addact команда: шаблон"
	replyAddExists    = "⚠️ Действие «%s» уже существует."
	replyAdded        = "✅ Добавлено действие: «%s»"
	replyAddFailed    = "❌ Произошла ошибка при добавлении действия."
	replyDelUsage     = "Использование: /delact команда"
	replyDelNotFound  = "❌ Действие «%s» не найдено."
	replyDeleted      = "🗑️ Действие «%s» удалено."
	replyDelFailed    = "❌ Произошла ошибка при удалении действия."
	replyNoGags       = "Сейчас никто не в кляпе."
)

// handleBotCommand serves the built-in commands and falls back to the
// configured one-shot commands. Unknown commands are ignored.
func (c *Channel) handleBotCommand(ctx context.Context, msg *platform.Message, name, args string) {
	switch name {
	case "reload":
		c.adminOnly(ctx, msg, c.handleReload)
	case "addact":
		c.adminOnly(ctx, msg, func(ctx context.Context, msg *platform.Message) {
			c.handleAddAction(ctx, msg, args)
		})
	case "delact":
		c.adminOnly(ctx, msg, func(ctx context.Context, msg *platform.Message) {
			c.handleDeleteAction(ctx, msg, args)
		})
	case "gags":
		c.adminOnly(ctx, msg, c.handleListGags)
	case "actions":
		c.sendListing(ctx, msg)
	default:
		if !c.commands.Handle(ctx, msg, name) {
			slog.Debug("telegram command ignored", "command", name, "chat_id", msg.ChatID)
		}
	}
}

func (c *Channel) adminOnly(ctx context.Context, msg *platform.Message, fn func(context.Context, *platform.Message)) {
	if !c.cfg.Current().IsAdmin(msg.From.ID) {
		c.reply(ctx, msg, replyNoAccess)
		return
	}
	fn(ctx, msg)
}

func (c *Channel) handleReload(ctx context.Context, msg *platform.Message) {
	if err := c.cfg.Reload(); err != nil {
		slog.Error("config reload failed", "error", err)
		c.reply(ctx, msg, fmt.Sprintf(replyReloadFailed, err))
		return
	}
	c.reply(ctx, msg, replyReloaded)
}

// handleAddAction parses "key: template" and appends it to the catalog.
func (c *Channel) handleAddAction(ctx context.Context, msg *platform.Message, args string) {
	key, template, ok := strings.Cut(args, ":")
	key, template = actions.NormalizeKey(key), strings.TrimSpace(template)
	if !ok || key == "" || template == "" {
		c.reply(ctx, msg, replyAddUsage)
		return
	}

	switch err := c.catalog.Add(key, template); {
	case errors.Is(err, actions.ErrExists):
		c.reply(ctx, msg, fmt.Sprintf(replyAddExists, key))
	case err != nil:
		slog.Error("add action failed", "key", key, "error", err)
		c.reply(ctx, msg, replyAddFailed)
	default:
		slog.Info("action added", "key", key, "user_id", msg.From.ID)
		c.reply(ctx, msg, fmt.Sprintf(replyAdded, key))
	}
}

func (c *Channel) handleDeleteAction(ctx context.Context, msg *platform.Message, args string) {
	key := actions.NormalizeKey(args)
	if key == "" {
		c.reply(ctx, msg, replyDelUsage)
		return
	}

	switch err := c.catalog.Delete(key); {
	case errors.Is(err, actions.ErrNotFound):
		c.reply(ctx, msg, fmt.Sprintf(replyDelNotFound, key))
	case err != nil:
		slog.Error("delete action failed", "key", key, "error", err)
		c.reply(ctx, msg, replyDelFailed)
	default:
		slog.Info("action deleted", "key", key, "user_id", msg.From.ID)
		c.reply(ctx, msg, fmt.Sprintf(replyDeleted, key))
	}
}

// handleListGags replies with the active gags and their remaining time.
func (c *Channel) handleListGags(ctx context.Context, msg *platform.Message) {
	active := c.engine.Active()
	if len(active) == 0 {
		c.reply(ctx, msg, replyNoGags)
		return
	}

	now := time.Now()
	var sb strings.Builder
	for _, g := range active {
		left := max(int(g.ExpiresAt.Sub(now).Round(time.Second)/time.Second), 1)
		fmt.Fprintf(&sb, "• %s: ещё %s\n", g.Target.Display(), timeparse.Format(left))
	}
	c.reply(ctx, msg, strings.TrimRight(sb.String(), "\n"))
}

func (c *Channel) reply(ctx context.Context, msg *platform.Message, text string) {
	if _, err := c.msgr.Reply(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		slog.Warn("telegram reply failed", "chat_id", msg.ChatID, "error", err)
	}
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.api.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}

	if len(commands) == 0 {
		return nil
	}

	if len(commands) > 100 {
		commands = commands[:100]
	}

	return c.api.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
	})
}

// menuCommands is the built-in menu followed by the configured commands.
func (c *Channel) menuCommands() []telego.BotCommand {
	menu := DefaultMenuCommands()
	names := c.commands.Names()
	sort.Strings(names)
	for _, name := range names {
		if !validMenuName(name) {
			continue
		}
		menu = append(menu, telego.BotCommand{Command: name, Description: "/" + name})
	}
	return menu
}

// DefaultMenuCommands returns the built-in bot menu commands.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "actions", Description: "Список ролевых действий"},
		{Command: "addact", Description: "Добавить действие (админ)"},
		{Command: "delact", Description: "Удалить действие (админ)"},
		{Command: "gags", Description: "Кто сейчас в кляпе (админ)"},
		{Command: "reload", Description: "Перезагрузить конфигурацию (админ)"},
	}
}

// validMenuName reports whether name is accepted by setMyCommands:
// 1-32 chars of lower-case latin letters, digits and underscores.
func validMenuName(name string) bool {
	if name == "" || len(name) > 32 {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}

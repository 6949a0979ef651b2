// Package roleplay turns "@someone hugs" style messages into templated
// action lines.
package roleplay

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/mention"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
)

// Templates supplies a fresh keyword to template mapping on every call.
type Templates interface {
	Snapshot() (map[string]string, error)
}

// Dispatcher resolves a message to (actor, target, action) and delivers the
// rendered line in place of the original message.
type Dispatcher struct {
	templates Templates
	msgr      platform.Messenger
}

func NewDispatcher(templates Templates, msgr platform.Messenger) *Dispatcher {
	return &Dispatcher{templates: templates, msgr: msgr}
}

// Trigger is a message resolved to an action request.
type Trigger struct {
	Target  mention.Mention
	Keyword string
}

// Resolve extracts the target and action keyword from msg. The first
// text_mention entity wins, then the first @handle entity, then the reply
// author with the whole text as keyword.
func Resolve(msg *platform.Message) (Trigger, bool) {
	var (
		target    mention.Mention
		remainder string
		found     bool
	)

	for _, e := range msg.Entities {
		if e.Type == platform.EntityTextMention && e.User != nil {
			target, remainder, found = mention.FromUser(*e.User), msg.TextAfter(e), true
			break
		}
	}
	if !found {
		for _, e := range msg.Entities {
			if e.Type == platform.EntityMention {
				target, remainder, found = mention.FromHandle(msg.EntityText(e)), msg.TextAfter(e), true
				break
			}
		}
	}
	if !found && msg.ReplyTo != nil {
		target, remainder, found = mention.FromUser(*msg.ReplyTo), msg.Text, true
	}
	if !found {
		return Trigger{}, false
	}

	keyword := NormalizeKeyword(remainder)
	if keyword == "" {
		return Trigger{}, false
	}
	return Trigger{Target: target, Keyword: keyword}, true
}

// NormalizeKeyword trims whitespace and trailing ".,!" and lower-cases.
func NormalizeKeyword(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, ".,!")
	return actions.NormalizeKey(s)
}

// Dispatch handles msg if it is an action trigger with a known keyword and
// reports whether it did. Unknown keywords are the common case and are not
// logged. A template that fails to render leaves msg unhandled.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *platform.Message) bool {
	if msg.Text == "" {
		return false
	}
	trig, ok := Resolve(msg)
	if !ok {
		return false
	}

	snap, err := d.templates.Snapshot()
	if err != nil {
		slog.Error("load action catalog failed", "error", err)
		return false
	}
	tmpl, ok := snap[trig.Keyword]
	if !ok {
		return false
	}

	text, err := actions.Render(tmpl, mention.DisplayUser(msg.From), trig.Target.Display())
	if err != nil {
		if errors.Is(err, actions.ErrMissingSlot) {
			slog.Error("action template is broken", "action", trig.Keyword, "error", err)
		} else {
			slog.Error("render action failed", "action", trig.Keyword, "error", err)
		}
		return false
	}

	if err := d.msgr.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
		slog.Warn("delete action trigger failed", "chat_id", msg.ChatID, "user_id", msg.From.ID, "error", err)
	}
	if _, err := d.msgr.SendMessage(ctx, msg.ChatID, text); err != nil {
		slog.Error("send action failed", "chat_id", msg.ChatID, "action", trig.Keyword, "error", err)
	}
	return true
}

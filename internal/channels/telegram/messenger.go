package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/gagbot/internal/channels"
	"github.com/nextlevelbuilder/gagbot/internal/platform"
	"github.com/nextlevelbuilder/gagbot/internal/store"
)

const (
	memberStatusLeft   = "left"
	memberStatusKicked = "kicked"
)

// Messenger implements platform.Messenger over the Bot API. Sends are paced
// per chat; handle lookups go through the member directory because
// getChatMember only accepts numeric user ids.
type Messenger struct {
	api     botAPI
	members store.MemberStore
	limiter *channels.ChatLimiter
}

var _ platform.Messenger = (*Messenger)(nil)

// NewMessenger creates a Messenger. members may be nil, in which case
// handle lookups always fail.
func NewMessenger(api botAPI, members store.MemberStore, limiter *channels.ChatLimiter) *Messenger {
	if limiter == nil {
		limiter = channels.NewChatLimiter(0)
	}
	return &Messenger{api: api, members: members, limiter: limiter}
}

func (m *Messenger) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	return m.send(ctx, tu.Message(tu.ID(chatID), text))
}

func (m *Messenger) SendHTML(ctx context.Context, chatID int64, text string) (int, error) {
	return m.send(ctx, tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML))
}

func (m *Messenger) Reply(ctx context.Context, chatID int64, messageID int, text string) (int, error) {
	params := tu.Message(tu.ID(chatID), text).WithReplyParameters(&telego.ReplyParameters{
		MessageID:                messageID,
		AllowSendingWithoutReply: true,
	})
	return m.send(ctx, params)
}

// SendKeyboard posts HTML text with an inline keyboard.
func (m *Messenger) SendKeyboard(ctx context.Context, chatID int64, text string, kb *telego.InlineKeyboardMarkup) (int, error) {
	return m.send(ctx, tu.Message(tu.ID(chatID), text).
		WithParseMode(telego.ModeHTML).
		WithReplyMarkup(kb))
}

// EditKeyboard replaces the HTML text and inline keyboard of a message.
func (m *Messenger) EditKeyboard(ctx context.Context, chatID int64, messageID int, text string, kb *telego.InlineKeyboardMarkup) error {
	if err := m.limiter.Wait(ctx, chatID); err != nil {
		return err
	}
	_, err := m.api.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:      tu.ID(chatID),
		MessageID:   messageID,
		Text:        text,
		ParseMode:   telego.ModeHTML,
		ReplyMarkup: kb,
	})
	return err
}

func (m *Messenger) send(ctx context.Context, params *telego.SendMessageParams) (int, error) {
	if err := m.limiter.Wait(ctx, params.ChatID.ID); err != nil {
		return 0, err
	}
	sent, err := m.api.SendMessage(ctx, params)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (m *Messenger) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	return m.api.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
}

// LookupMember finds a user seen in the chat under handle and confirms they
// are still a member.
func (m *Messenger) LookupMember(ctx context.Context, chatID int64, handle string) (*platform.User, error) {
	if m.members == nil {
		return nil, platform.ErrMemberNotFound
	}
	known, err := m.members.FindMember(ctx, chatID, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", platform.ErrMemberNotFound, handle)
	}
	if err != nil {
		return nil, err
	}

	member, err := m.api.GetChatMember(ctx, &telego.GetChatMemberParams{
		ChatID: tu.ID(chatID),
		UserID: known.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("get chat member %d: %w", known.ID, err)
	}
	switch member.MemberStatus() {
	case memberStatusLeft, memberStatusKicked:
		return nil, fmt.Errorf("%w: %s has left", platform.ErrMemberNotFound, handle)
	}
	u := toPlatformUser(member.MemberUser())
	return &u, nil
}

// Remember records users seen in chatID so later @handle lookups resolve.
func (m *Messenger) Remember(ctx context.Context, chatID int64, users ...platform.User) {
	if m.members == nil {
		return
	}
	for _, u := range users {
		if u.Username == "" || u.IsBot {
			continue
		}
		if err := m.members.UpsertMember(ctx, chatID, u); err != nil {
			slog.Debug("record chat member failed", "chat_id", chatID, "user_id", u.ID, "error", err)
		}
	}
}

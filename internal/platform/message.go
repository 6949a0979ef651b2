// Package platform holds the messaging-platform neutral types the moderation
// and role-play handlers work on. The Telegram channel converts telego updates
// into these values and implements Messenger on top of the Bot API.
package platform

import (
	"context"
	"errors"
	"unicode/utf16"
)

// Entity types understood by the handlers (Telegram naming).
const (
	EntityMention     = "mention"      // plain @handle, text only
	EntityTextMention = "text_mention" // mention carrying a full user object
	EntityBotCommand  = "bot_command"
)

// ErrMemberNotFound is returned by LookupMember when the handle cannot be
// matched to a member of the chat.
var ErrMemberNotFound = errors.New("chat member not found")

// User is a chat participant.
type User struct {
	ID        int64
	Username  string
	FirstName string
	IsBot     bool
}

// Entity is an annotated span of message text.
// Offset and Length are counted in UTF-16 code units.
type Entity struct {
	Type   string
	Offset int
	Length int
	User   *User // set for text_mention only
}

// Message is an incoming chat message.
type Message struct {
	ChatID    int64
	MessageID int
	From      User
	Text      string
	Entities  []Entity
	ReplyTo   *User // author of the replied-to message, nil if not a reply
}

// IsReply reports whether the message replies to another user's message.
func (m *Message) IsReply() bool {
	return m.ReplyTo != nil
}

// EntityText returns the text covered by e. Out-of-range spans yield "".
func (m *Message) EntityText(e Entity) string {
	units := utf16.Encode([]rune(m.Text))
	start, end := e.Offset, e.Offset+e.Length
	if start < 0 || end > len(units) || start > end {
		return ""
	}
	return string(utf16.Decode(units[start:end]))
}

// TextAfter returns the text following e.
func (m *Message) TextAfter(e Entity) string {
	units := utf16.Encode([]rune(m.Text))
	start := e.Offset + e.Length
	if start < 0 || start > len(units) {
		return ""
	}
	return string(utf16.Decode(units[start:]))
}

// Messenger is the outbound side of the platform. All calls may fail
// independently; callers treat failures as best-effort.
type Messenger interface {
	// SendMessage posts plain text as a new message and returns its id.
	SendMessage(ctx context.Context, chatID int64, text string) (int, error)
	// SendHTML posts HTML-formatted text as a new message.
	SendHTML(ctx context.Context, chatID int64, text string) (int, error)
	// Reply posts text as a reply to messageID.
	Reply(ctx context.Context, chatID int64, messageID int, text string) (int, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	// LookupMember resolves a handle (with or without the leading @) to a
	// chat member.
	LookupMember(ctx context.Context, chatID int64, handle string) (*User, error)
}

// Package mention resolves which chat participant a message addresses.
package mention

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
)

// Mention is a resolved participant reference. UserID is zero when only the
// handle text is known.
type Mention struct {
	UserID   int64
	Username string
	Name     string
}

// FromUser builds a Mention carrying a stable id.
func FromUser(u platform.User) Mention {
	return Mention{UserID: u.ID, Username: u.Username, Name: u.FirstName}
}

// FromHandle builds an id-less Mention from "@handle" text.
func FromHandle(handle string) Mention {
	return Mention{Username: strings.TrimPrefix(handle, "@")}
}

// HasID reports whether the mention carries a stable user id.
func (m Mention) HasID() bool {
	return m.UserID != 0
}

// Display renders the mention for chat text: @handle, else first name, else "user".
func (m Mention) Display() string {
	return Display(m.Username, m.Name)
}

// DisplayUser renders u the same way Mention.Display does.
func DisplayUser(u platform.User) string {
	return Display(u.Username, u.FirstName)
}

// Display prefers "@username" and falls back to name.
func Display(username, name string) string {
	if username != "" {
		return "@" + username
	}
	if name != "" {
		return name
	}
	return "user"
}

// MemberLookup resolves a plain handle to a chat member.
type MemberLookup interface {
	LookupMember(ctx context.Context, chatID int64, handle string) (*platform.User, error)
}

// Resolver finds the user a moderation command targets.
type Resolver struct {
	members MemberLookup
}

// NewResolver creates a resolver that looks plain @handles up through members.
func NewResolver(members MemberLookup) *Resolver {
	return &Resolver{members: members}
}

// Target returns the user msg addresses, first match wins:
// the replied-to author, a text_mention entity, then a plain @handle looked up
// among chat members. Lookup failures are logged and reported as not found.
func (r *Resolver) Target(ctx context.Context, msg *platform.Message) (Mention, bool) {
	if msg.ReplyTo != nil {
		return FromUser(*msg.ReplyTo), true
	}

	for _, e := range msg.Entities {
		if e.Type == platform.EntityTextMention && e.User != nil {
			return FromUser(*e.User), true
		}
	}

	for _, e := range msg.Entities {
		if e.Type != platform.EntityMention {
			continue
		}
		handle := strings.TrimPrefix(msg.EntityText(e), "@")
		if handle == "" {
			continue
		}
		u, err := r.members.LookupMember(ctx, msg.ChatID, handle)
		if err != nil {
			slog.Warn("chat member lookup failed", "chat_id", msg.ChatID, "handle", handle, "error", err)
			return Mention{}, false
		}
		return FromUser(*u), true
	}

	return Mention{}, false
}

package telegram

import (
	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
)

func toPlatformUser(u telego.User) platform.User {
	return platform.User{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		IsBot:     u.IsBot,
	}
}

// toPlatformMessage converts a text message. Returns nil for messages without
// a sender or text.
func toPlatformMessage(m *telego.Message) *platform.Message {
	if m == nil || m.From == nil || m.Text == "" {
		return nil
	}

	pm := &platform.Message{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		From:      toPlatformUser(*m.From),
		Text:      m.Text,
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil {
		u := toPlatformUser(*r.From)
		pm.ReplyTo = &u
	}
	for _, e := range m.Entities {
		pe := platform.Entity{Type: e.Type, Offset: e.Offset, Length: e.Length}
		if e.User != nil {
			u := toPlatformUser(*e.User)
			pe.User = &u
		}
		pm.Entities = append(pm.Entities, pe)
	}
	return pm
}

// knownUsers returns every user with a stable id referenced by msg.
func knownUsers(msg *platform.Message) []platform.User {
	users := []platform.User{msg.From}
	if msg.ReplyTo != nil {
		users = append(users, *msg.ReplyTo)
	}
	for _, e := range msg.Entities {
		if e.Type == platform.EntityTextMention && e.User != nil {
			users = append(users, *e.User)
		}
	}
	return users
}

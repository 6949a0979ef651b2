// Package platformtest provides a recording platform.Messenger for tests.
package platformtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/gagbot/internal/platform"
)

// ErrInjected is returned by calls configured to fail.
var ErrInjected = errors.New("injected failure")

// Call kinds recorded by Messenger.
const (
	KindSend   = "send"
	KindHTML   = "html"
	KindReply  = "reply"
	KindDelete = "delete"
)

// Call is one recorded outbound operation.
type Call struct {
	Kind      string
	ChatID    int64
	MessageID int // deleted id, replied-to id, or id assigned to a sent message
	Text      string
}

// Messenger records every call in order. Sent messages get ids from 1000 up.
type Messenger struct {
	mu      sync.Mutex
	calls   []Call
	nextID  int
	members map[string]*platform.User

	FailSend   bool
	FailDelete bool
	FailLookup bool
}

// New returns an empty recording messenger.
func New() *Messenger {
	return &Messenger{nextID: 1000, members: make(map[string]*platform.User)}
}

// AddMember registers a user for LookupMember.
func (m *Messenger) AddMember(u platform.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[strings.ToLower(u.Username)] = &u
}

func (m *Messenger) send(kind string, chatID int64, replyTo int, text string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSend {
		return 0, ErrInjected
	}
	m.nextID++
	id := m.nextID
	if kind == KindReply {
		id = replyTo
	}
	m.calls = append(m.calls, Call{Kind: kind, ChatID: chatID, MessageID: id, Text: text})
	return m.nextID, nil
}

func (m *Messenger) SendMessage(_ context.Context, chatID int64, text string) (int, error) {
	return m.send(KindSend, chatID, 0, text)
}

func (m *Messenger) SendHTML(_ context.Context, chatID int64, text string) (int, error) {
	return m.send(KindHTML, chatID, 0, text)
}

func (m *Messenger) Reply(_ context.Context, chatID int64, messageID int, text string) (int, error) {
	return m.send(KindReply, chatID, messageID, text)
}

func (m *Messenger) DeleteMessage(_ context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Kind: KindDelete, ChatID: chatID, MessageID: messageID})
	if m.FailDelete {
		return ErrInjected
	}
	return nil
}

func (m *Messenger) LookupMember(_ context.Context, _ int64, handle string) (*platform.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLookup {
		return nil, ErrInjected
	}
	u, ok := m.members[strings.ToLower(strings.TrimPrefix(handle, "@"))]
	if !ok {
		return nil, platform.ErrMemberNotFound
	}
	cp := *u
	return &cp, nil
}

// Calls returns a copy of the recorded calls.
func (m *Messenger) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsOf returns the recorded calls of one kind.
func (m *Messenger) CallsOf(kind string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (m *Messenger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

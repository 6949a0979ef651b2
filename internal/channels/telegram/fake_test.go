package telegram

import (
	"context"
	"errors"
	"sync"

	"github.com/mymmrac/telego"
)

var errNoMember = errors.New("bad request: user not found")

// fakeAPI records Bot API calls. Sent messages get ids from 500 up.
type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []*telego.SendMessageParams
	edited   []*telego.EditMessageTextParams
	deleted  []int
	answered []string
	menu     []telego.BotCommand
	members  map[int64]telego.ChatMember
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 500, members: make(map[int64]telego.ChatMember)}
}

func (f *fakeAPI) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, params)
	return &telego.Message{MessageID: f.nextID, Chat: telego.Chat{ID: params.ChatID.ID}}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, params)
	return &telego.Message{MessageID: params.MessageID}, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, params *telego.DeleteMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, params.MessageID)
	return nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, params *telego.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, params.CallbackQueryID)
	return nil
}

func (f *fakeAPI) GetChatMember(_ context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.members[params.UserID]
	if !ok {
		return nil, errNoMember
	}
	return m, nil
}

func (f *fakeAPI) SetMyCommands(_ context.Context, params *telego.SetMyCommandsParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = params.Commands
	return nil
}

func (f *fakeAPI) DeleteMyCommands(_ context.Context, _ *telego.DeleteMyCommandsParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.menu = nil
	return nil
}

func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, p := range f.sent {
		out[i] = p.Text
	}
	return out
}

func (f *fakeAPI) lastSent() *telego.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) wasDeleted(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deleted {
		if d == id {
			return true
		}
	}
	return false
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent, f.edited, f.deleted, f.answered = nil, nil, nil, nil
}

package telegram

import (
	"context"

	"github.com/mymmrac/telego"
)

// botAPI is the subset of *telego.Bot the channel calls. Tests substitute a fake.
type botAPI interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error)
	DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	GetChatMember(ctx context.Context, params *telego.GetChatMemberParams) (telego.ChatMember, error)
	SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error
	DeleteMyCommands(ctx context.Context, params *telego.DeleteMyCommandsParams) error
}

var _ botAPI = (*telego.Bot)(nil)

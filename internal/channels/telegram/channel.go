package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/channels"
	"github.com/nextlevelbuilder/gagbot/internal/commands"
	"github.com/nextlevelbuilder/gagbot/internal/config"
	"github.com/nextlevelbuilder/gagbot/internal/moderation"
	"github.com/nextlevelbuilder/gagbot/internal/roleplay"
	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
)

const defaultMaxConcurrent = 16

// NewBot creates the Bot API client, routing through cfg.Proxy when set.
func NewBot(cfg config.TelegramConfig) (*telego.Bot, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

// Deps are the handlers a Channel routes updates to.
type Deps struct {
	Config    *config.Store
	Messenger *Messenger
	Engine    *moderation.Engine
	Roleplay  *roleplay.Dispatcher
	Commands  *commands.Handler
	Catalog   *actions.Catalog
	Scheduler scheduler.Runner
}

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot      *telego.Bot
	api      botAPI
	cfg      *config.Store
	msgr     *Messenger
	engine   *moderation.Engine
	roleplay *roleplay.Dispatcher
	commands *commands.Handler
	catalog  *actions.Catalog
	sched    scheduler.Runner
	listings *scheduler.Registry[listingKey]

	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling and all handlers have exited
}

var _ channels.Channel = (*Channel)(nil)

// New creates a Telegram channel on top of bot.
func New(bot *telego.Bot, deps Deps) *Channel {
	c := newChannel(bot, deps)
	c.bot = bot
	return c
}

func newChannel(api botAPI, deps Deps) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram"),
		api:         api,
		cfg:         deps.Config,
		msgr:        deps.Messenger,
		engine:      deps.Engine,
		roleplay:    deps.Roleplay,
		commands:    deps.Commands,
		catalog:     deps.Catalog,
		sched:       deps.Scheduler,
		listings:    scheduler.NewRegistry[listingKey](),
	}
}

// Start begins long polling for Telegram updates. Updates are handled
// concurrently up to runtime.max_concurrent; further updates wait for a slot.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"callback_query",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}
	c.pollDone = make(chan struct{})

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	// Register bot menu commands with retry.
	go func() {
		menu := c.menuCommands()
		for attempt := 1; attempt <= 3; attempt++ {
			if err := c.SyncMenuCommands(pollCtx, menu); err != nil {
				slog.Warn("failed to sync telegram menu commands", "error", err, "attempt", attempt)
				if attempt < 3 {
					select {
					case <-pollCtx.Done():
						return
					case <-time.After(time.Duration(attempt*5) * time.Second):
					}
				}
			} else {
				slog.Info("telegram menu commands synced", "count", len(menu))
				return
			}
		}
	}()

	limit := c.cfg.Current().Runtime.MaxConcurrent
	if limit <= 0 {
		limit = defaultMaxConcurrent
	}

	go func() {
		defer close(c.pollDone)

		var g errgroup.Group
		g.SetLimit(limit)
		defer g.Wait()

		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				g.Go(func() error {
					c.handleUpdate(pollCtx, update)
					return nil
				})
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for in-flight handlers to finish.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}

	// Wait for the polling goroutine to fully exit so that
	// Telegram releases the getUpdates lock before a new instance starts.
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}

	return nil
}

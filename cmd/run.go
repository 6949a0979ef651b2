package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/channels"
	"github.com/nextlevelbuilder/gagbot/internal/channels/telegram"
	"github.com/nextlevelbuilder/gagbot/internal/commands"
	"github.com/nextlevelbuilder/gagbot/internal/config"
	"github.com/nextlevelbuilder/gagbot/internal/cooldown"
	"github.com/nextlevelbuilder/gagbot/internal/mention"
	"github.com/nextlevelbuilder/gagbot/internal/moderation"
	"github.com/nextlevelbuilder/gagbot/internal/roleplay"
	"github.com/nextlevelbuilder/gagbot/internal/scheduler"
	"github.com/nextlevelbuilder/gagbot/internal/store"
	"github.com/nextlevelbuilder/gagbot/internal/store/memory"
	"github.com/nextlevelbuilder/gagbot/internal/store/sqlite"
	"github.com/nextlevelbuilder/gagbot/internal/tracing"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the bot (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot()
		},
	}
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.Storage.SQLitePath == "" {
		return memory.NewStores(), nil
	}
	stores, err := sqlite.NewStores(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite stores: %w", err)
	}
	return stores, nil
}

func runBot() error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfgStore, err := config.NewStore(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgStore.Current()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Telegram.Token == "" {
		return errors.New("telegram token is not set (telegram.token or GAGBOT_TELEGRAM_TOKEN); run: gagbot onboard")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("tracing disabled", "error", err)
	} else {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdownTracing(flushCtx); err != nil {
				slog.Warn("tracing shutdown failed", "error", err)
			}
		}()
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	if stores.Close != nil {
		defer stores.Close()
	}

	sched := scheduler.New()
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		sched.Stop(stopCtx)
	}()

	bot, err := telegram.NewBot(cfg.Telegram)
	if err != nil {
		return err
	}
	msgr := telegram.NewMessenger(bot, stores.Members, channels.NewChatLimiter(cfg.Runtime.SendRatePerMinute))
	catalog := actions.NewCatalog(cfg.ActionsPath)
	cfgStore.OnReload(func(c *config.Config) {
		if c.ActionsPath != "" {
			catalog.SetPath(c.ActionsPath)
		}
	})

	var engineOpts []moderation.Option
	if stores.Durable() {
		engineOpts = append(engineOpts, moderation.WithJournal(stores.Gags))
	}
	engine := moderation.NewEngine(cfgStore, msgr, sched, mention.NewResolver(msgr), engineOpts...)
	if n, err := engine.Restore(ctx); err != nil {
		slog.Warn("restore gags failed", "error", err)
	} else if n > 0 {
		slog.Info("restored active gags", "count", n)
	}

	ch := telegram.New(bot, telegram.Deps{
		Config:    cfgStore,
		Messenger: msgr,
		Engine:    engine,
		Roleplay:  roleplay.NewDispatcher(catalog, msgr),
		Commands:  commands.NewHandler(cfgStore, msgr, cooldown.NewGate(sched), sched),
		Catalog:   catalog,
		Scheduler: sched,
	})
	channelMgr := channels.NewManager()
	channelMgr.RegisterChannel(ch.Name(), ch)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := cfgStore.Watch(gctx); err != nil {
			slog.Warn("config watcher stopped", "error", err)
		}
		return nil
	})

	if stores.Durable() {
		pruner, err := sqlite.NewPruner(stores.Gags, cfg.Storage.PruneCron)
		if err != nil {
			return err
		}
		g.Go(func() error { return pruner.Run(gctx) })
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("start channels: %w", err)
	}

	slog.Info("gagbot started",
		"version", Version,
		"config", cfgPath,
		"actions", catalog.Path(),
		"durable", stores.Durable(),
	)

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			slog.Info("graceful shutdown initiated", "signal", sig)
		case <-gctx.Done():
		}
		err := channelMgr.StopAll(context.Background())
		cancel()
		return err
	})

	return g.Wait()
}

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gagbot/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard that writes the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnboard(resolveConfigPath())
		},
	}
}

func runOnboard(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var (
		token     = cfg.Telegram.Token
		admins    = joinIDs(cfg.Admins)
		gags      = strings.Join(cfg.Gags, ", ")
		ungags    = strings.Join(cfg.Ungags, ", ")
		adminOnly = cfg.Gag.AdminOnly
		durable   = cfg.Storage.SQLitePath != ""
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("token is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Admin user ids").
				Description("Comma separated numeric Telegram ids").
				Value(&admins).
				Validate(func(s string) error {
					_, err := parseIDs(s)
					return err
				}),
		),
		huh.NewGroup(
			huh.NewInput().Title("Gag phrases").Description("Comma separated").Value(&gags),
			huh.NewInput().Title("Ungag phrases").Description("Comma separated").Value(&ungags),
			huh.NewConfirm().Title("Only admins may gag?").Value(&adminOnly),
			huh.NewConfirm().Title("Keep gags across restarts (sqlite)?").Value(&durable),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("onboard: %w", err)
	}

	cfg.Telegram.Token = strings.TrimSpace(token)
	cfg.Admins, _ = parseIDs(admins)
	cfg.Gags = splitList(gags)
	cfg.Ungags = splitList(ungags)
	cfg.Gag.AdminOnly = adminOnly
	switch {
	case durable && cfg.Storage.SQLitePath == "":
		cfg.Storage.SQLitePath = "gagbot.db"
	case !durable:
		cfg.Storage.SQLitePath = ""
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Fprintf(os.Stdout, "config written to %s\nstart the bot with: gagbot run\n", cfgPath)
	return nil
}

func parseIDs(s string) (config.FlexibleInt64Slice, error) {
	var ids config.FlexibleInt64Slice
	for _, part := range splitList(s) {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

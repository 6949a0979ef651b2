package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/config"
)

func openCatalog() (*actions.Catalog, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return actions.NewCatalog(cfg.ActionsPath), nil
}

func actionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Edit the role-play action catalog offline",
	}
	cmd.AddCommand(actionsListCmd())
	cmd.AddCommand(actionsAddCmd())
	cmd.AddCommand(actionsDelCmd())
	return cmd
}

func actionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := openCatalog()
			if err != nil {
				return err
			}
			snap, err := catalog.Snapshot()
			if err != nil {
				return err
			}
			keys := actions.Keys(snap)
			if len(keys) == 0 {
				fmt.Printf("no actions in %s\n", catalog.Path())
				return nil
			}

			width := 0
			for _, k := range keys {
				width = max(width, runewidth.StringWidth(k))
			}
			for _, k := range keys {
				fmt.Printf("%s  %s\n", runewidth.FillRight(k, width), snap[k])
			}
			return nil
		},
	}
}

func actionsAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <keyword> <template...>",
		Short: "Add an action; the template uses {user1} and {user2}",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := strings.Join(args[1:], " ")
			if _, err := actions.Render(template, "a", "b"); err != nil {
				return fmt.Errorf("invalid template: %w", err)
			}
			catalog, err := openCatalog()
			if err != nil {
				return err
			}
			if err := catalog.Add(args[0], template); err != nil {
				if errors.Is(err, actions.ErrExists) {
					return fmt.Errorf("action %q already exists", actions.NormalizeKey(args[0]))
				}
				return err
			}
			fmt.Printf("added %q\n", actions.NormalizeKey(args[0]))
			return nil
		},
	}
}

func actionsDelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <keyword>",
		Short: "Delete an action",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.Join(args, " ")
			catalog, err := openCatalog()
			if err != nil {
				return err
			}
			if err := catalog.Delete(key); err != nil {
				if errors.Is(err, actions.ErrNotFound) {
					return fmt.Errorf("action %q not found", actions.NormalizeKey(key))
				}
				return err
			}
			fmt.Printf("deleted %q\n", actions.NormalizeKey(key))
			return nil
		},
	}
}

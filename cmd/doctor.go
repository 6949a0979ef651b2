package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/gagbot/internal/actions"
	"github.com/nextlevelbuilder/gagbot/internal/config"
	"github.com/nextlevelbuilder/gagbot/internal/store/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, action catalog and storage health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("gagbot doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	fmt.Println()
	fmt.Println("  Telegram:")
	checkSecret("Token", cfg.Telegram.Token)
	if cfg.Telegram.Proxy != "" {
		fmt.Printf("    %-12s %s\n", "Proxy:", cfg.Telegram.Proxy)
	}
	fmt.Printf("    %-12s %d\n", "Admins:", len(cfg.Admins))

	fmt.Println()
	fmt.Println("  Moderation:")
	fmt.Printf("    %-12s %s\n", "Gag:", strings.Join(cfg.Gags, ", "))
	fmt.Printf("    %-12s %s\n", "Ungag:", strings.Join(cfg.Ungags, ", "))
	fmt.Printf("    %-12s %d phrases\n", "Mumbles:", len(cfg.Mumbles))
	fmt.Printf("    %-12s %v\n", "Admin only:", cfg.Gag.AdminOnly)
	fmt.Printf("    %-12s %d\n", "Commands:", len(cfg.Commands))

	// Action catalog
	fmt.Println()
	fmt.Printf("  Actions:  %s", cfg.ActionsPath)
	snap, err := actions.NewCatalog(cfg.ActionsPath).Snapshot()
	switch {
	case err != nil:
		fmt.Printf(" (ERROR: %s)\n", err)
	case len(snap) == 0:
		fmt.Println(" (EMPTY)")
	default:
		fmt.Printf(" (%d actions)\n", len(snap))
	}

	// Storage
	fmt.Println()
	fmt.Println("  Storage:")
	if cfg.Storage.SQLitePath == "" {
		fmt.Printf("    %-12s memory (gags are lost on restart)\n", "Mode:")
	} else {
		fmt.Printf("    %-12s sqlite %s\n", "Mode:", cfg.Storage.SQLitePath)
		checkSQLite(cfg.Storage.SQLitePath)
	}

	fmt.Println()
	fmt.Println("  Telemetry:")
	if cfg.Telemetry.Enabled {
		fmt.Printf("    %-12s %s (%s)\n", "OTLP:", cfg.Telemetry.Endpoint, cfg.Telemetry.Protocol)
	} else {
		fmt.Printf("    %-12s disabled\n", "OTLP:")
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkSQLite(path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Printf("    %-12s not created yet (run: gagbot migrate up)\n", "Schema:")
		return
	}
	db, err := sqlite.OpenDB(path)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Schema:", err)
		return
	}
	status, err := sqlite.CheckSchema(db)
	db.Close()
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
		return
	case status.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", status.CurrentVersion)
	default:
		fmt.Printf("    %-12s v%d\n\n%s\n", "Schema:", status.CurrentVersion, sqlite.FormatError(status))
		return
	}

	stores, err := sqlite.NewStores(path)
	if err != nil {
		fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Journal:", err)
		return
	}
	defer stores.Close()
	gags, err := stores.Gags.ListGags(context.Background())
	if err != nil {
		fmt.Printf("    %-12s READ FAILED (%s)\n", "Journal:", err)
		return
	}
	fmt.Printf("    %-12s %d journaled gags\n", "Journal:", len(gags))
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s not set\n", name+":")
		return
	}
	if len(value) <= 8 {
		fmt.Printf("    %-12s %s\n", name+":", strings.Repeat("*", len(value)))
		return
	}
	masked := value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
	fmt.Printf("    %-12s %s\n", name+":", masked)
}

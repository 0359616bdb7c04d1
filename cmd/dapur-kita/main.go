package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"dapur-kita/internal/app"
	"dapur-kita/internal/config"
	"dapur-kita/internal/database"
	"dapur-kita/internal/metrics"
	"dapur-kita/internal/notify"
	"dapur-kita/internal/query"
	"dapur-kita/internal/store"
	"dapur-kita/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	cfg             *config.Config
	application     *app.App
	metricsStore    *metrics.Store
	shutdownTracing telemetry.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:          "dapur-kita",
	Short:        "Browse and add recipes in the Dapur Kita catalog",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

func init() {
	rootCmd.AddCommand(listCmd, showCmd, addCmd, metricsCmd)
}

func setup() error {
	var err error
	cfg, err = config.NewFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTracing, err = telemetry.Init("dapur-kita", cfg.OTelEnabled, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	metricsStore = metrics.NewStore(db.SQL)

	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg)
		if err != nil {
			log.Printf("Warning: telegram notifications disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	// Each invocation is a single read or write, so nothing is kept fresh.
	application = app.NewApp(store.NewClient(cfg), query.New(0), notifier, metricsStore)
	return nil
}

func teardown() {
	if shutdownTracing != nil {
		shutdownTracing(context.Background())
	}
	if metricsStore != nil {
		metricsStore.Close()
		metricsStore = nil
	}
}

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		teardown()
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dapur-kita/internal/app"
	"dapur-kita/internal/config"
	"dapur-kita/internal/database"
	"dapur-kita/internal/metrics"
	"dapur-kita/internal/notify"
	"dapur-kita/internal/query"
	"dapur-kita/internal/store"
	"dapur-kita/internal/telemetry"
	"dapur-kita/internal/web"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracing, err := telemetry.Init("dapur-web", cfg.OTelEnabled, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	// 2. Metrics database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	metricsStore := metrics.NewStore(db.SQL)
	defer metricsStore.Close()

	// 3. Notifications are optional
	var notifier notify.Notifier = notify.Nop{}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg)
		if err != nil {
			log.Printf("Warning: telegram notifications disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	// 4. Catalog service and HTTP server
	application := app.NewApp(store.NewClient(cfg), query.New(cfg.CacheStaleTime), notifier, metricsStore)

	server, err := web.NewServer(application, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize web server: %v", err)
	}

	srv := &http.Server{
		Addr:              server.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Dapur Kita listening on %s (recipes from %s)", srv.Addr, cfg.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(ctxShutdown); err != nil {
		log.Printf("Failed to flush traces: %v", err)
	}

	log.Println("Server exiting")
}

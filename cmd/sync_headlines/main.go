// Command sync_headlines brings the local daily headline archive up to date once.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"stockSync/config"
	"stockSync/internal/adapters/logger"
	"stockSync/internal/app"
	"stockSync/internal/bootstrap"
)

func main() {
	force := flag.Bool("force", false, "refetch every day since HEADLINE_EPOCH, replacing the local archive")
	backfill := flag.Bool("backfill", true, "crawl from HEADLINE_EPOCH when no local archive exists")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	cfg.HeadlinesEnabled = true
	components, err := bootstrap.Build(ctx, cfg, appLogger, true)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize synchronizer: %v", err)
	}
	defer components.Close()

	svc, err := app.NewSyncService(cfg, appLogger, components.Prices, components.HeadlineSync(), components.Recorder, nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}

	reports, runErr := svc.Run(ctx, app.RunRequest{Headlines: true, Backfill: *backfill, Force: *force})
	if err := app.WriteReports(os.Stdout, reports); err != nil {
		log.Printf("Error writing report: %v", err)
	}
	if runErr != nil {
		components.Close()
		log.Fatalf("FATAL: Headline synchronization failed: %v", runErr)
	}
}

package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"stockSync/config"
	"stockSync/internal/adapters/logger"
	"stockSync/internal/app"
	"stockSync/internal/bootstrap"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Resolve Watchlist
	cfg.Tickers, err = config.LoadWatchlist(cfg.WatchlistFile, cfg.Tickers)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to load watchlist")
		log.Fatalf("FATAL: Failed to load watchlist: %v", err)
	}
	if len(cfg.Tickers) == 0 && !cfg.HeadlinesEnabled {
		log.Fatalf("FATAL: Nothing to sync: set TICKERS, WATCHLIST_FILE or HEADLINES_ENABLED")
	}
	appLogger.Info(ctx, "Watchlist loaded", map[string]interface{}{"tickers": len(cfg.Tickers)})

	// 4. Initialize Stores and Sources
	components, err := bootstrap.Build(ctx, cfg, appLogger, false)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize synchronizers")
		log.Fatalf("FATAL: Failed to initialize synchronizers: %v", err)
	}
	defer components.Close()
	appLogger.Info(ctx, "Synchronizers initialized", map[string]interface{}{
		"store":  cfg.StoreBackend,
		"source": components.Prices.Source(),
	})

	// 5. Initialize Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := app.NewMetrics(reg)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to register metrics")
		log.Fatalf("FATAL: Failed to register metrics: %v", err)
	}

	// 6. Initialize Application Service
	syncService, err := app.NewSyncService(cfg, appLogger, components.Prices, components.HeadlineSync(), components.Recorder, metrics)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize sync service")
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}

	// 7. Start the Service
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(serviceCtx, cfg.MetricsAddr, appLogger); err != nil {
				appLogger.Error(serviceCtx, err, "Metrics endpoint stopped")
			}
		}()
	}
	if err := syncService.Start(serviceCtx); err != nil {
		appLogger.Error(ctx, err, "Sync service exited with error")
		log.Fatalf("FATAL: Sync service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}

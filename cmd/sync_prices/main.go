// Command sync_prices brings the local price history of a set of tickers up to date once.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stockSync/config"
	"stockSync/internal/adapters/logger"
	"stockSync/internal/app"
	"stockSync/internal/bootstrap"
)

func main() {
	tickersFlag := flag.String("tickers", "", "comma separated tickers (defaults to TICKERS and WATCHLIST_FILE)")
	force := flag.Bool("force", false, "refetch the full history, replacing local records")
	backfill := flag.Bool("backfill", false, "fetch the full history of tickers without a local record")
	history := flag.Int("history", 0, "after syncing, print the last N audited runs per ticker (sqlite and postgres stores)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat)

	// 2. Resolve Tickers (flags win over the environment)
	extra, watchlistFile := cfg.Tickers, cfg.WatchlistFile
	if *tickersFlag != "" {
		extra, watchlistFile = strings.Split(*tickersFlag, ","), ""
	}
	tickers, err := config.LoadWatchlist(watchlistFile, append(extra, flag.Args()...))
	if err != nil {
		log.Fatalf("FATAL: Failed to load watchlist: %v", err)
	}
	if len(tickers) == 0 {
		log.Fatalf("FATAL: No tickers given: use -tickers, TICKERS or WATCHLIST_FILE")
	}

	// 3. Initialize Synchronizer
	cfg.HeadlinesEnabled = false
	components, err := bootstrap.Build(ctx, cfg, appLogger, false)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize synchronizer: %v", err)
	}
	defer components.Close()

	svc, err := app.NewSyncService(cfg, appLogger, components.Prices, nil, components.Recorder, nil)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}

	// 4. Sync and report
	reports, runErr := svc.Run(ctx, app.RunRequest{
		Tickers:  tickers,
		Backfill: *backfill || cfg.AutoBackfill,
		Force:    *force,
	})
	if err := app.WriteReports(os.Stdout, reports); err != nil {
		log.Printf("Error writing report: %v", err)
	}

	// 5. Audit history
	if *history > 0 {
		printHistory(ctx, components, tickers, *history)
	}
	if runErr != nil {
		components.Close()
		log.Fatalf("FATAL: Synchronization failed: %v", runErr)
	}
}

func printHistory(ctx context.Context, components *bootstrap.Components, tickers []string, limit int) {
	if components.History == nil {
		log.Printf("Run history needs STORE_BACKEND=sqlite or postgres")
		return
	}
	for _, ticker := range tickers {
		runs, err := components.History.RecentRuns(ctx, strings.ToUpper(ticker), limit)
		if err != nil {
			log.Printf("Error reading run history for %s: %v", ticker, err)
			continue
		}
		fmt.Printf("\n%s: last %d runs\n", ticker, len(runs))
		if err := app.WriteRunHistory(os.Stdout, runs); err != nil {
			log.Printf("Error writing run history: %v", err)
		}
	}
}

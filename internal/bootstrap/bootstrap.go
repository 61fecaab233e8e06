// Package bootstrap assembles stores, sources and synchronizers from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"

	"stockSync/config"
	"stockSync/internal/adapters/binanceclient"
	"stockSync/internal/adapters/csvstore"
	"stockSync/internal/adapters/postgres"
	"stockSync/internal/adapters/sqlite"
	"stockSync/internal/adapters/wsj"
	"stockSync/internal/adapters/yahoo"
	"stockSync/internal/domain"
	"stockSync/internal/freshness"
	"stockSync/internal/market"
	"stockSync/internal/ports"
)

// Components holds everything the commands need to run a synchronization.
type Components struct {
	Prices    *freshness.Synchronizer[domain.Bar]
	Headlines *freshness.Synchronizer[domain.HeadlineDay] // nil unless headlines are enabled
	Recorder  ports.RunRecorder                           // nil for the CSV backend
	History   ports.RunHistory                            // nil for the CSV backend
	closers   []func()
}

// Close releases database connections, last opened first.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// HeadlineSync returns the headline synchronizer as an interface, nil when it was not built.
func (c *Components) HeadlineSync() ports.Synchronizer[domain.HeadlineDay] {
	if c.Headlines == nil {
		return nil
	}
	return c.Headlines
}

// Build wires the configured store backend and price source into a price synchronizer,
// plus the headline synchronizer when enabled or when withHeadlines forces it.
func Build(ctx context.Context, cfg *config.Config, logger ports.Logger, withHeadlines bool) (*Components, error) {
	c := &Components{}

	store, err := c.priceStore(ctx, cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	source, err := PriceSource(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	calendar, err := market.NewCalendar(market.Config{Timezone: cfg.MarketTimezone, Close: cfg.MarketClose})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("market calendar: %w: %w", ports.ErrConfigurationError, err)
	}
	c.Prices, err = freshness.New(freshness.Config[domain.Bar]{
		Store:  store,
		Source: source,
		Policy: calendar,
		Clock:  market.SystemClock{},
		Logger: logger,
		Epoch:  cfg.BackfillEpoch,
	})
	if err != nil {
		c.Close()
		return nil, err
	}

	if cfg.HeadlinesEnabled || withHeadlines {
		c.Headlines, err = buildHeadlines(cfg, logger)
		if err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Components) priceStore(ctx context.Context, cfg *config.Config, logger ports.Logger) (ports.SeriesStore[domain.Bar], error) {
	switch cfg.StoreBackend {
	case config.StoreSQLite:
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store: %w", err)
		}
		c.closers = append(c.closers, func() {
			if err := repo.Close(); err != nil {
				logger.Error(context.Background(), err, "Error closing database repository")
			}
		})
		c.Recorder, c.History = repo, repo
		return repo, nil
	case config.StorePostgres:
		repo, err := postgres.NewRepository(ctx, cfg.DatabaseDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		c.closers = append(c.closers, repo.Close)
		c.Recorder, c.History = repo, repo
		return repo, nil
	case config.StoreCSV, "":
		store, err := csvstore.New(csvstore.Config[domain.Bar]{Dir: cfg.DataDir, Codec: csvstore.BarCodec{}, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize csv store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q: %w", cfg.StoreBackend, ports.ErrConfigurationError)
	}
}

// PriceSource returns the configured remote price history source.
func PriceSource(cfg *config.Config, logger ports.Logger) (ports.HistorySource[domain.Bar], error) {
	switch cfg.PriceSource {
	case config.SourceBinance:
		client, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.SourceYahoo, "":
		calendar, err := market.NewCalendar(market.Config{Timezone: cfg.MarketTimezone, Close: cfg.MarketClose})
		if err != nil {
			return nil, fmt.Errorf("market calendar: %w: %w", ports.ErrConfigurationError, err)
		}
		client, err := yahoo.New(yahoo.Config{
			BaseURL:           cfg.YahooBaseURL,
			Timeout:           cfg.HTTPTimeout,
			ProxyURL:          cfg.ProxyURL,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Location:          calendar.Location(),
			Logger:            logger,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported price source %q: %w", cfg.PriceSource, ports.ErrConfigurationError)
	}
}

// HeadlineDir is the directory of the headline archive. It sits below DataDir so a ticker
// can never share a file with the archive.
func HeadlineDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "headlines")
}

func headlineStore(cfg *config.Config, logger ports.Logger) (*csvstore.Store[domain.HeadlineDay], error) {
	store, err := csvstore.New(csvstore.Config[domain.HeadlineDay]{
		Dir:    HeadlineDir(cfg),
		Codec:  csvstore.HeadlineCodec{Max: cfg.MaxHeadlines},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize headline store: %w", err)
	}
	return store, nil
}

func buildHeadlines(cfg *config.Config, logger ports.Logger) (*freshness.Synchronizer[domain.HeadlineDay], error) {
	store, err := headlineStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	crawler, err := wsj.NewCrawler(wsj.CrawlerConfig{
		BaseURL:           cfg.HeadlineBaseURL,
		MaxHeadlines:      cfg.MaxHeadlines,
		Timeout:           cfg.HTTPTimeout,
		ProxyURL:          cfg.ProxyURL,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	// The archive publishes every day, weekends included.
	calendar, err := market.NewCalendar(market.Config{Timezone: cfg.MarketTimezone, Close: cfg.MarketClose, AllDays: true})
	if err != nil {
		return nil, fmt.Errorf("headline calendar: %w: %w", ports.ErrConfigurationError, err)
	}
	return freshness.New(freshness.Config[domain.HeadlineDay]{
		Store:  store,
		Source: crawler,
		Policy: calendar,
		Clock:  market.SystemClock{},
		Logger: logger,
		Epoch:  cfg.HeadlineEpoch,
	})
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"stockSync/internal/adapters/logger" // Import the logger package for LogLevel
	"stockSync/internal/domain"
	"stockSync/internal/market"
)

// Store backends.
const (
	StoreCSV      = "csv"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Price sources.
const (
	SourceYahoo   = "yahoo"
	SourceBinance = "binance"
)

// Config holds all application configuration.
type Config struct {
	// Storage
	DataDir      string // Directory for CSV records
	StoreBackend string // csv | sqlite | postgres
	DBPath       string
	DatabaseDSN  string

	// Price source
	PriceSource       string // yahoo | binance
	YahooBaseURL      string
	HTTPTimeout       time.Duration
	ProxyURL          string
	RequestsPerSecond float64

	// Binance API (public klines need no keys)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Market calendar
	MarketTimezone string
	MarketClose    string // HH:MM in MarketTimezone
	BackfillEpoch  time.Time
	AutoBackfill   bool

	// Watchlist
	Tickers       []string
	WatchlistFile string

	// Headlines
	HeadlinesEnabled bool
	HeadlineFeed     string
	HeadlineBaseURL  string
	MaxHeadlines     int
	HeadlineEpoch    time.Time

	// Scheduling
	SyncCron   string
	RunOnStart bool

	// Observability
	MetricsAddr string
	LogLevel    logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat   string          // text | json | std
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Storage
	cfg.DataDir = getEnv("DATA_DIR", "./data")
	cfg.StoreBackend = strings.ToLower(getEnv("STORE_BACKEND", StoreCSV))
	cfg.DBPath = getEnv("DB_PATH", "./data/stock_sync.db")
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", "")
	switch cfg.StoreBackend {
	case StoreCSV:
		if cfg.DataDir == "" {
			errs = append(errs, "DATA_DIR must be set")
		}
	case StoreSQLite:
		if cfg.DBPath == "" {
			errs = append(errs, "DB_PATH must be set")
		}
	case StorePostgres:
		if cfg.DatabaseDSN == "" {
			errs = append(errs, "DATABASE_DSN must be set when STORE_BACKEND=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported STORE_BACKEND '%s' (want csv, sqlite or postgres)", cfg.StoreBackend))
	}

	// Price source
	cfg.PriceSource = strings.ToLower(getEnv("PRICE_SOURCE", SourceYahoo))
	if cfg.PriceSource != SourceYahoo && cfg.PriceSource != SourceBinance {
		errs = append(errs, fmt.Sprintf("unsupported PRICE_SOURCE '%s' (want yahoo or binance)", cfg.PriceSource))
	}
	cfg.YahooBaseURL = getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com")
	cfg.ProxyURL = getEnv("HTTPS_PROXY", "")

	timeoutSeconds, err := getEnvAsIntRequired("HTTP_TIMEOUT_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HTTP_TIMEOUT_SECONDS: %v", err))
	} else if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("REQUESTS_PER_SECOND", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REQUESTS_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "REQUESTS_PER_SECOND must be positive")
	}

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Market calendar
	cfg.MarketTimezone = getEnv("MARKET_TIMEZONE", "America/New_York")
	if _, err := time.LoadLocation(cfg.MarketTimezone); err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKET_TIMEZONE '%s': %v", cfg.MarketTimezone, err))
	}
	cfg.MarketClose = getEnv("MARKET_CLOSE", "16:00")
	if _, _, err := market.ParseClock(cfg.MarketClose); err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKET_CLOSE: %v", err))
	}
	cfg.BackfillEpoch, err = getEnvAsDateRequired("BACKFILL_EPOCH", "1980-01-01")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKFILL_EPOCH: %v", err))
	}
	cfg.AutoBackfill = getEnvAsBool("AUTO_BACKFILL", false)

	// Watchlist
	cfg.Tickers = splitList(getEnv("TICKERS", ""))
	cfg.WatchlistFile = getEnv("WATCHLIST_FILE", "")

	// Headlines
	cfg.HeadlinesEnabled = getEnvAsBool("HEADLINES_ENABLED", false)
	cfg.HeadlineFeed = strings.ToLower(getEnv("HEADLINE_FEED", "wsj"))
	if cfg.HeadlinesEnabled && cfg.HeadlineFeed != "wsj" {
		errs = append(errs, fmt.Sprintf("unsupported HEADLINE_FEED '%s' (want wsj)", cfg.HeadlineFeed))
	}
	cfg.HeadlineBaseURL = getEnv("HEADLINE_BASE_URL", "https://www.wsj.com")
	cfg.MaxHeadlines, err = getEnvAsIntRequired("MAX_HEADLINES", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_HEADLINES: %v", err))
	} else if cfg.MaxHeadlines <= 0 {
		errs = append(errs, "MAX_HEADLINES must be positive")
	}
	cfg.HeadlineEpoch, err = getEnvAsDateRequired("HEADLINE_EPOCH", "2024-01-01")
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HEADLINE_EPOCH: %v", err))
	}

	// Scheduling
	cfg.SyncCron = getEnv("SYNC_CRON", "0 30 16 * * 1-5")
	if _, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(cfg.SyncCron); err != nil {
		errs = append(errs, fmt.Sprintf("invalid SYNC_CRON '%s': %v", cfg.SyncCron, err))
	}
	cfg.RunOnStart = getEnvAsBool("RUN_ON_START", true)

	// Observability
	cfg.MetricsAddr = getEnv("METRICS_ADDR", "")
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsDateRequired(key, defaultValue string) (time.Time, error) {
	valueStr := getEnv(key, defaultValue)
	value, err := domain.ParseDay(valueStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date value '%s' for key %s (want YYYY-MM-DD): %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
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

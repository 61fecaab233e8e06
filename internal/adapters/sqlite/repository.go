package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockSync/internal/domain"
	"stockSync/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.SeriesStore for daily bars, ports.RunRecorder and
// ports.RunHistory using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/stocksync.db"
	}

	dsn := dbPath
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
		dsn = dbPath + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection keeps ":memory:" databases alive across calls and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS series (
		ticker TEXT PRIMARY KEY,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daily_bars (
		ticker TEXT NOT NULL,
		date TEXT NOT NULL, -- ISO YYYY-MM-DD
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		adj_close REAL NOT NULL,
		volume REAL NOT NULL,
		PRIMARY KEY (ticker, date)
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		source TEXT NOT NULL,
		outcome TEXT NOT NULL,
		added INTEGER NOT NULL,
		error TEXT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sync_runs_ticker_started ON sync_runs (ticker, started_at);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- SeriesStore Implementation ---

// Exists reports whether a record has been saved for ticker.
// A ticker saved with zero bars still exists (the "series" row marks it).
func (r *Repository) Exists(ctx context.Context, ticker string) (bool, error) {
	const query = `SELECT COUNT(*) FROM series WHERE ticker = ?`
	var n int
	if err := r.db.QueryRowContext(ctx, query, ticker).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check series for %s: %w: %w", ticker, ports.ErrQueryFailed, err)
	}
	return n > 0, nil
}

// Load reads all bars for ticker ordered by date.
func (r *Repository) Load(ctx context.Context, ticker string) (*domain.Series[domain.Bar], error) {
	exists, err := r.Exists(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("series %s: %w", ticker, ports.ErrNotFound)
	}

	const query = `
	SELECT date, open, high, low, close, adj_close, volume
	FROM daily_bars
	WHERE ticker = ?
	ORDER BY date ASC`

	rows, err := r.db.QueryContext(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w: %w", ticker, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0)
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w: %w", ticker, ports.ErrCorruptRecord, err)
		}
		bars = append(bars, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}

	series, err := domain.NewSeries(ticker, bars)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w: %w", ticker, ports.ErrCorruptRecord, err)
	}
	r.logger.Debug(ctx, "Loaded bars", map[string]interface{}{"ticker": ticker, "rows": series.Len()})
	return series, nil
}

// Save replaces all bars for ticker in a single transaction.
func (r *Repository) Save(ctx context.Context, ticker string, series *domain.Series[domain.Bar]) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("refusing to save %s: %w: %w", ticker, ports.ErrCorruptRecord, err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback() // No-op after Commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM daily_bars WHERE ticker = ?`, ticker); err != nil {
		return fmt.Errorf("failed to clear bars for %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO daily_bars (ticker, date, open, high, low, close, adj_close, volume)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare bar insert: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	for _, b := range series.Records {
		if _, err := stmt.ExecContext(ctx, ticker, b.Date.Format(domain.DateLayout),
			b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume); err != nil {
			return fmt.Errorf("failed to insert bar %s for %s: %w: %w",
				b.Date.Format(domain.DateLayout), ticker, ports.ErrUpdateFailed, err)
		}
	}

	const upsertSeries = `
	INSERT INTO series (ticker, updated_at) VALUES (?, ?)
	ON CONFLICT(ticker) DO UPDATE SET updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsertSeries, ticker, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to mark series %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars for %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Bars saved", map[string]interface{}{"ticker": ticker, "rows": series.Len()})
	return nil
}

// --- RunRecorder Implementation ---

// RecordRun saves one synchronization attempt.
func (r *Repository) RecordRun(ctx context.Context, run ports.SyncRun) error {
	const query = `
	INSERT INTO sync_runs (run_id, ticker, source, outcome, added, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.Key, run.Source, string(run.Outcome), run.Added, errText, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record sync run for %s: %w: %w", run.Key, ports.ErrUpdateFailed, err)
	}
	return nil
}

// RecentRuns returns the latest runs for ticker, newest first.
func (r *Repository) RecentRuns(ctx context.Context, ticker string, limit int) ([]ports.SyncRun, error) {
	const query = `
	SELECT run_id, ticker, source, outcome, added, error, started_at, finished_at
	FROM sync_runs
	WHERE ticker = ? ORDER BY started_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs for %s: %w: %w", ticker, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]ports.SyncRun, 0)
	for rows.Next() {
		var run ports.SyncRun
		var outcome string
		var errText sql.NullString
		if err := rows.Scan(&run.RunID, &run.Key, &run.Source, &outcome, &run.Added, &errText,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		run.Outcome = domain.SyncOutcome(outcome)
		if errText.Valid {
			run.Error = errText.String
		}
		runs = append(runs, run)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync run rows: %w", err)
	}
	return runs, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanBar scans a row into a domain.Bar struct.
func scanBar(s scanner) (domain.Bar, error) {
	var b domain.Bar
	var date string
	if err := s.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
		return b, err
	}
	d, err := domain.ParseDay(date)
	if err != nil {
		return b, fmt.Errorf("parsing date '%s': %w", date, err)
	}
	b.Date = d
	return b, nil
}

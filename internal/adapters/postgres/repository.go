// Package postgres stores daily bars in PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS series (
	ticker     TEXT PRIMARY KEY,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS daily_bars (
	ticker    TEXT NOT NULL REFERENCES series(ticker) ON DELETE CASCADE,
	date      DATE NOT NULL,
	open      DOUBLE PRECISION NOT NULL,
	high      DOUBLE PRECISION NOT NULL,
	low       DOUBLE PRECISION NOT NULL,
	close     DOUBLE PRECISION NOT NULL,
	adj_close DOUBLE PRECISION NOT NULL,
	volume    DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (ticker, date)
);
CREATE TABLE IF NOT EXISTS sync_runs (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	ticker      TEXT NOT NULL,
	source      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	added       INTEGER NOT NULL,
	error       TEXT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);`

// Repository implements ports.SeriesStore for daily bars, ports.RunRecorder and
// ports.RunHistory on Postgres.
type Repository struct {
	pool   *pgxpool.Pool
	logger ports.Logger
}

// NewRepository connects to dsn and ensures the schema exists.
func NewRepository(ctx context.Context, dsn string, logger ports.Logger) (*Repository, error) {
	if logger == nil {
		return nil, errors.New("logger is required for Postgres repository")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w: %w", ports.ErrConfigurationError, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w: %w", ports.ErrDBConnection, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w: %w", ports.ErrDBConnection, err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	logger.Info(ctx, "Postgres repository ready", map[string]interface{}{"host": cfg.ConnConfig.Host, "database": cfg.ConnConfig.Database})
	return &Repository{pool: pool, logger: logger}, nil
}

func (r *Repository) Close() {
	if r == nil || r.pool == nil {
		return
	}
	r.pool.Close()
}

func (r *Repository) Exists(ctx context.Context, ticker string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM series WHERE ticker = $1)`, ticker).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check series %s: %w: %w", ticker, ports.ErrQueryFailed, err)
	}
	return exists, nil
}

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
		WHERE ticker = $1
		ORDER BY date ASC`
	rows, err := r.pool.Query(ctx, query, ticker)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w: %w", ticker, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	bars := make([]domain.Bar, 0)
	for rows.Next() {
		var b domain.Bar
		var date time.Time
		if err := rows.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar %s: %w", ticker, err)
		}
		b.Date = domain.Day(date, time.UTC)
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	series, err := domain.NewSeries(ticker, bars)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w: %w", ticker, ports.ErrCorruptRecord, err)
	}
	return series, nil
}

// Save replaces the ticker's bars inside one transaction using COPY.
func (r *Repository) Save(ctx context.Context, ticker string, series *domain.Series[domain.Bar]) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("refusing to save %s: %w: %w", ticker, ports.ErrCorruptRecord, err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	const upsert = `
		INSERT INTO series (ticker, updated_at) VALUES ($1, $2)
		ON CONFLICT (ticker) DO UPDATE SET updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, upsert, ticker, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert series %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM daily_bars WHERE ticker = $1`, ticker); err != nil {
		return fmt.Errorf("clear bars %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}

	rows := make([][]interface{}, 0, series.Len())
	for _, b := range series.Records {
		rows = append(rows, []interface{}{ticker, b.Date, b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume})
	}
	if len(rows) > 0 {
		_, err = tx.CopyFrom(
			ctx,
			pgx.Identifier{"daily_bars"},
			[]string{"ticker", "date", "open", "high", "low", "close", "adj_close", "volume"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy bars %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit bars %s: %w: %w", ticker, ports.ErrUpdateFailed, err)
	}
	return nil
}

func (r *Repository) RecordRun(ctx context.Context, run ports.SyncRun) error {
	const query = `
		INSERT INTO sync_runs (run_id, ticker, source, outcome, added, error, started_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,NULLIF($6,''),$7,$8)`
	_, err := r.pool.Exec(ctx, query,
		run.RunID, run.Key, run.Source, string(run.Outcome), run.Added, run.Error, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record sync run %s: %w: %w", run.Key, ports.ErrUpdateFailed, err)
	}
	return nil
}

// RecentRuns returns the latest runs for ticker, newest first.
func (r *Repository) RecentRuns(ctx context.Context, ticker string, limit int) ([]ports.SyncRun, error) {
	const query = `
		SELECT run_id, ticker, source, outcome, added, COALESCE(error, ''), started_at, finished_at
		FROM sync_runs
		WHERE ticker = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync runs %s: %w: %w", ticker, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	runs := make([]ports.SyncRun, 0)
	for rows.Next() {
		var run ports.SyncRun
		var outcome string
		if err := rows.Scan(&run.RunID, &run.Key, &run.Source, &outcome, &run.Added, &run.Error,
			&run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan sync run %s: %w", ticker, err)
		}
		run.Outcome = domain.SyncOutcome(outcome)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

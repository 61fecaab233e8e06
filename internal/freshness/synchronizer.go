// Package freshness keeps local historical records current with the minimal remote fetch.
package freshness

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

// DefaultEpoch is the first day requested by a full backfill.
var DefaultEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Synchronizer implements ports.Synchronizer for one record shape, store and source.
type Synchronizer[R domain.Record] struct {
	store  ports.SeriesStore[R]
	source ports.HistorySource[R]
	policy ports.FreshnessPolicy
	clock  ports.Clock
	logger ports.Logger
	epoch  time.Time
}

// Config holds the collaborators of a Synchronizer.
type Config[R domain.Record] struct {
	Store  ports.SeriesStore[R]
	Source ports.HistorySource[R]
	Policy ports.FreshnessPolicy
	Clock  ports.Clock
	Logger ports.Logger
	Epoch  time.Time // First backfill day; DefaultEpoch when zero
}

// New creates a Synchronizer.
func New[R domain.Record](cfg Config[R]) (*Synchronizer[R], error) {
	if cfg.Store == nil || cfg.Source == nil || cfg.Policy == nil || cfg.Clock == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for Synchronizer: %w", ports.ErrConfigurationError)
	}
	epoch := cfg.Epoch
	if epoch.IsZero() {
		epoch = DefaultEpoch
	}
	return &Synchronizer[R]{
		store:  cfg.Store,
		source: cfg.Source,
		policy: cfg.Policy,
		clock:  cfg.Clock,
		logger: cfg.Logger,
		epoch:  domain.Day(epoch, nil),
	}, nil
}

// Source returns the name of the remote source.
func (s *Synchronizer[R]) Source() string {
	return s.source.Name()
}

// EnsureFresh brings an existing local record up to date.
//
// A missing record yields OutcomeAbsent without contacting the source. Remote failures and
// integrity failures are reported through the Result; only invalid input and local store
// failures are returned as errors.
func (s *Synchronizer[R]) EnsureFresh(ctx context.Context, key string) (domain.Result[R], error) {
	key = strings.TrimSpace(key)
	res := domain.Result[R]{Key: key}
	if key == "" {
		return res, fmt.Errorf("ticker must not be empty: %w", ports.ErrInvalidRequest)
	}
	fields := map[string]interface{}{"key": key, "source": s.source.Name()}

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return res, fmt.Errorf("failed to check local record for %s: %w", key, err)
	}
	if !exists {
		s.logger.Info(ctx, "No local record found", fields)
		res.Outcome = domain.OutcomeAbsent
		return res, nil
	}

	series, err := s.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return res, fmt.Errorf("local record for %s disappeared before update: %w: %w", key, ports.ErrNoBaseline, err)
		}
		return res, fmt.Errorf("failed to load local record for %s: %w", key, err)
	}
	res.Series = series

	now := s.clock.Now()
	today := s.policy.Today(now)
	last, ok := series.LastDate()
	if !ok {
		// Header-only record: treat as stale since before the epoch.
		last = s.epoch.AddDate(0, 0, -1)
	}
	fields["lastDate"] = last.Format(domain.DateLayout)

	if !s.policy.ShouldUpdate(last, now) {
		s.logger.Debug(ctx, "Local record is current, skipping remote fetch", fields)
		res.Outcome = domain.OutcomeUpToDate
		return res, nil
	}

	start := domain.NextDay(last)
	fields["start"] = start.Format(domain.DateLayout)
	fields["end"] = today.Format(domain.DateLayout)
	s.logger.Info(ctx, "Local record is stale, fetching missing tail", fields)

	fetched, err := s.source.Fetch(ctx, key, start, today)
	if err != nil {
		s.logger.Warn(ctx, "Remote source failed, keeping local record", withError(fields, err))
		res.Outcome = domain.OutcomeSourceUnavailable
		res.Err = err
		return res, nil
	}
	if len(fetched) == 0 {
		s.logger.Info(ctx, "Remote source returned no new records", fields)
		res.Outcome = domain.OutcomeUpToDate
		return res, nil
	}

	tail := domain.SortByDay(fetched)
	if err := checkNotAfter(tail, today); err != nil {
		return s.corrupt(ctx, res, err, fields), nil
	}
	updated, err := series.Append(tail)
	if err != nil {
		return s.corrupt(ctx, res, err, fields), nil
	}

	if err := s.store.Save(ctx, key, updated); err != nil {
		return res, fmt.Errorf("failed to save updated record for %s: %w", key, err)
	}

	fields["added"] = len(tail)
	s.logger.Info(ctx, "Local record updated", fields)
	res.Outcome = domain.OutcomeUpdated
	res.Series = updated
	res.Added = len(tail)
	return res, nil
}

// ForceFetch backfills the complete history from the epoch through today and stores it as
// a new local record, replacing any existing one.
//
// When a local record exists and the backfill fails, that record is returned unchanged with
// OutcomeSourceUnavailable (or OutcomeCorruptAppend); OutcomeAbsent means no record exists.
func (s *Synchronizer[R]) ForceFetch(ctx context.Context, key string) (domain.Result[R], error) {
	key = strings.TrimSpace(key)
	res := domain.Result[R]{Key: key}
	if key == "" {
		return res, fmt.Errorf("ticker must not be empty: %w", ports.ErrInvalidRequest)
	}

	baseline, err := s.baseline(ctx, key)
	if err != nil {
		return res, err
	}
	res.Series = baseline
	failed := domain.OutcomeAbsent
	if baseline != nil {
		failed = domain.OutcomeSourceUnavailable
	}

	today := s.policy.Today(s.clock.Now())
	fields := map[string]interface{}{
		"key":    key,
		"source": s.source.Name(),
		"start":  s.epoch.Format(domain.DateLayout),
		"end":    today.Format(domain.DateLayout),
	}
	s.logger.Info(ctx, "Backfilling full history", fields)

	fetched, err := s.source.Fetch(ctx, key, s.epoch, today)
	if err != nil {
		s.logger.Warn(ctx, "Backfill failed", withError(fields, err))
		res.Outcome = failed
		res.Err = err
		return res, nil
	}
	if len(fetched) == 0 {
		err := fmt.Errorf("no history returned for %s: %w", key, ports.ErrNotFound)
		s.logger.Warn(ctx, "Backfill returned no records", withError(fields, err))
		res.Outcome = failed
		res.Err = err
		return res, nil
	}

	records := domain.SortByDay(fetched)
	if err := checkNotAfter(records, today); err != nil {
		return s.corrupt(ctx, res, err, fields), nil
	}
	series, err := domain.NewSeries(key, records)
	if err != nil {
		return s.corrupt(ctx, res, err, fields), nil
	}

	if err := s.store.Save(ctx, key, series); err != nil {
		return res, fmt.Errorf("failed to save backfilled record for %s: %w", key, err)
	}

	fields["added"] = series.Len()
	s.logger.Info(ctx, "Backfill stored", fields)
	res.Outcome = domain.OutcomeUpdated
	res.Series = series
	res.Added = series.Len()
	return res, nil
}

// baseline loads the existing local record, or returns nil when there is none.
func (s *Synchronizer[R]) baseline(ctx context.Context, key string) (*domain.Series[R], error) {
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check local record for %s: %w", key, err)
	}
	if !exists {
		return nil, nil
	}
	series, err := s.store.Load(ctx, key)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load local record for %s: %w", key, err)
	}
	return series, nil
}

func (s *Synchronizer[R]) corrupt(ctx context.Context, res domain.Result[R], err error, fields map[string]interface{}) domain.Result[R] {
	err = fmt.Errorf("%w: %w", ports.ErrCorruptAppend, err)
	s.logger.Error(ctx, err, "Rejected fetched records, local record left untouched", fields)
	res.Outcome = domain.OutcomeCorruptAppend
	res.Err = err
	return res
}

func checkNotAfter[R domain.Record](records []R, today time.Time) error {
	if n := len(records); n > 0 && records[n-1].Day().After(today) {
		return fmt.Errorf("record dated %s is after today %s",
			records[n-1].Day().Format(domain.DateLayout), today.Format(domain.DateLayout))
	}
	return nil
}

func withError(fields map[string]interface{}, err error) map[string]interface{} {
	out := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

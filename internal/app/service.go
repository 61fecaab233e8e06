package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"stockSync/config"
	"stockSync/internal/domain"
	"stockSync/internal/indicators"
	"stockSync/internal/ports"
)

// HeadlinesKey is the record key of the headline feed.
const HeadlinesKey = "HEADLINES"

// Report is the result of one synchronization as seen by operators.
type Report struct {
	Key      string
	Source   string
	Outcome  domain.SyncOutcome
	Added    int
	LastDate time.Time // Zero when no local record exists
	Summary  *indicators.Summary
	Err      error // Non-fatal reason carried by the outcome
	Fatal    error // Invalid input or local store failure
	Elapsed  time.Duration
}

// OutcomeLabel is the outcome name, or ERROR for fatal failures.
func (r Report) OutcomeLabel() string {
	if r.Fatal != nil {
		return outcomeError
	}
	return string(r.Outcome)
}

// SyncService orchestrates price and headline synchronization for the watchlist.
type SyncService struct {
	cfg       *config.Config
	logger    ports.Logger
	prices    ports.Synchronizer[domain.Bar]
	headlines ports.Synchronizer[domain.HeadlineDay] // Optional
	recorder  ports.RunRecorder                      // Optional
	metrics   *Metrics                               // Optional
	location  *time.Location

	mu      sync.Mutex // Serializes runs
	lastRun []Report
}

// NewSyncService creates a new application service instance.
func NewSyncService(
	cfg *config.Config,
	logger ports.Logger,
	prices ports.Synchronizer[domain.Bar],
	headlines ports.Synchronizer[domain.HeadlineDay],
	recorder ports.RunRecorder,
	metrics *Metrics,
) (*SyncService, error) {
	if cfg == nil || logger == nil || prices == nil {
		return nil, fmt.Errorf("missing required dependencies for SyncService: %w", ports.ErrConfigurationError)
	}
	if cfg.HeadlinesEnabled && headlines == nil {
		return nil, fmt.Errorf("headlines enabled without a headline synchronizer: %w", ports.ErrConfigurationError)
	}
	loc := time.UTC
	if cfg.MarketTimezone != "" {
		l, err := time.LoadLocation(cfg.MarketTimezone)
		if err != nil {
			return nil, fmt.Errorf("invalid market timezone %q: %w: %w", cfg.MarketTimezone, ports.ErrConfigurationError, err)
		}
		loc = l
	}

	return &SyncService{
		cfg:       cfg,
		logger:    logger,
		prices:    prices,
		headlines: headlines,
		recorder:  recorder,
		metrics:   metrics,
		location:  loc,
	}, nil
}

// SyncTicker brings one ticker up to date. When backfill is set, a ticker without a local
// record gets its full history fetched instead of being reported ABSENT.
func (s *SyncService) SyncTicker(ctx context.Context, ticker string, backfill bool) (Report, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	report, res, err := syncKey(ctx, s.prices, ticker, backfill, false)
	if err != nil {
		return report, err
	}
	s.summarize(ctx, &report, res)
	return report, nil
}

// ForceTicker refetches the full history of one ticker, replacing any local record.
func (s *SyncService) ForceTicker(ctx context.Context, ticker string) (Report, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	report, res, err := syncKey(ctx, s.prices, ticker, false, true)
	if err != nil {
		return report, err
	}
	s.summarize(ctx, &report, res)
	return report, nil
}

// SyncHeadlines brings the headline feed up to date; force refetches it from its epoch.
func (s *SyncService) SyncHeadlines(ctx context.Context, backfill, force bool) (Report, error) {
	if s.headlines == nil {
		return Report{Key: HeadlinesKey}, fmt.Errorf("headline synchronization is not configured: %w", ports.ErrConfigurationError)
	}
	report, _, err := syncKey(ctx, s.headlines, HeadlinesKey, backfill, force)
	return report, err
}

func (s *SyncService) summarize(ctx context.Context, report *Report, res domain.Result[domain.Bar]) {
	if res.Series == nil || res.Series.Len() == 0 {
		return
	}
	summary, err := indicators.Summarize(ctx, res.Series.Records)
	if err != nil {
		s.logger.Warn(ctx, "Failed to compute indicator summary", map[string]interface{}{"ticker": report.Key, "error": err.Error()})
		return
	}
	report.Summary = summary
}

// syncKey runs EnsureFresh, optionally followed by a backfill when no record exists, or a
// ForceFetch when force is set.
func syncKey[R domain.Record](ctx context.Context, syncer ports.Synchronizer[R], key string, backfill, force bool) (Report, domain.Result[R], error) {
	started := time.Now()
	report := Report{Key: key, Source: syncer.Source()}

	var res domain.Result[R]
	var err error
	if force {
		res, err = syncer.ForceFetch(ctx, key)
	} else {
		res, err = syncer.EnsureFresh(ctx, key)
		if err == nil && res.Outcome == domain.OutcomeAbsent && backfill {
			res, err = syncer.ForceFetch(ctx, key)
		}
	}

	report.Elapsed = time.Since(started)
	if err != nil {
		report.Fatal = err
		return report, res, err
	}
	report.Outcome = res.Outcome
	report.Added = res.Added
	report.Err = res.Err
	if res.Series != nil {
		if last, ok := res.Series.LastDate(); ok {
			report.LastDate = last
		}
	}
	return report, res, nil
}

// RunRequest selects what one run synchronizes.
type RunRequest struct {
	Tickers   []string
	Headlines bool
	Backfill  bool // Fetch the full history of keys without a local record
	Force     bool // Refetch the full history of every key
}

// RunOnce synchronizes every watchlist ticker and then, when enabled, the headline feed.
func (s *SyncService) RunOnce(ctx context.Context) ([]Report, error) {
	return s.Run(ctx, RunRequest{
		Tickers:   s.cfg.Tickers,
		Headlines: s.cfg.HeadlinesEnabled,
		Backfill:  s.cfg.AutoBackfill,
	})
}

// Run synchronizes the requested tickers and then the headline feed. A failing key does not
// stop the run; fatal failures are joined into the returned error. Every attempt is logged,
// measured and recorded under one run ID.
func (s *SyncService) Run(ctx context.Context, req RunRequest) ([]Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.NewString()
	fields := map[string]interface{}{"runID": runID, "tickers": len(req.Tickers), "headlines": req.Headlines, "force": req.Force}
	s.logger.Info(ctx, "Starting sync run", fields)

	var reports []Report
	var errs []error
	for _, ticker := range req.Tickers {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("sync run interrupted: %w: %w", ports.ErrContextCanceled, ctx.Err()))
			break
		}
		started := time.Now()
		var report Report
		var err error
		if req.Force {
			report, err = s.ForceTicker(ctx, ticker)
		} else {
			report, err = s.SyncTicker(ctx, ticker, req.Backfill)
		}
		s.finish(ctx, runID, started, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("ticker %s: %w", report.Key, err))
		}
		reports = append(reports, report)
	}

	if req.Headlines && ctx.Err() == nil {
		started := time.Now()
		report, err := s.SyncHeadlines(ctx, req.Backfill, req.Force)
		s.finish(ctx, runID, started, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("headlines: %w", err))
		}
		reports = append(reports, report)
	}

	s.lastRun = reports
	fields["reports"] = len(reports)
	fields["failures"] = len(errs)
	s.logger.Info(ctx, "Sync run finished", fields)
	return reports, errors.Join(errs...)
}

// LastRun returns the reports of the most recent completed run.
func (s *SyncService) LastRun() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.lastRun...)
}

// finish logs, measures and records one report.
func (s *SyncService) finish(ctx context.Context, runID string, started time.Time, r Report) {
	fields := map[string]interface{}{
		"runID":   runID,
		"key":     r.Key,
		"source":  r.Source,
		"outcome": r.OutcomeLabel(),
		"added":   r.Added,
	}
	if !r.LastDate.IsZero() {
		fields["lastDate"] = r.LastDate.Format(domain.DateLayout)
	}
	switch {
	case r.Fatal != nil:
		s.logger.Error(ctx, r.Fatal, "Synchronization failed", fields)
	case r.Err != nil:
		fields["reason"] = r.Err.Error()
		s.logger.Warn(ctx, "Synchronization finished with a problem", fields)
	default:
		if r.Summary != nil {
			for k, v := range r.Summary.Fields() {
				fields[k] = v
			}
		}
		s.logger.Info(ctx, "Synchronization finished", fields)
	}

	s.metrics.Observe(r.Source, r.OutcomeLabel(), r.Elapsed)

	if s.recorder == nil {
		return
	}
	run := ports.SyncRun{
		RunID:      runID,
		Key:        r.Key,
		Source:     r.Source,
		Outcome:    domain.SyncOutcome(r.OutcomeLabel()),
		Added:      r.Added,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if r.Fatal != nil {
		run.Error = r.Fatal.Error()
	} else if r.Err != nil {
		run.Error = r.Err.Error()
	}
	// Audit failures never fail the sync itself.
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		s.logger.Warn(ctx, "Failed to record sync run", map[string]interface{}{"runID": runID, "key": r.Key, "error": err.Error()})
	}
}

// Start runs RunOnce on the configured cron schedule until ctx is cancelled or the process
// receives SIGINT/SIGTERM.
func (s *SyncService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Sync Service...", map[string]interface{}{"schedule": s.cfg.SyncCron, "timezone": s.location.String()})

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	cronLog := cronLogger{ctx: ctx, logger: s.logger}
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(s.location),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := scheduler.AddFunc(s.cfg.SyncCron, func() { s.runScheduled(ctx) }); err != nil {
		return fmt.Errorf("register sync schedule %q: %w: %w", s.cfg.SyncCron, ports.ErrConfigurationError, err)
	}

	if s.cfg.RunOnStart {
		s.runScheduled(ctx)
	}

	scheduler.Start()
	s.logger.Info(ctx, "Scheduler started")

	<-ctx.Done()
	s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")

	// Wait briefly for a running sync to finish
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn(context.Background(), "Timeout waiting for running sync to finish")
	}

	s.logger.Info(context.Background(), "Sync Service stopped.")
	return nil
}

func (s *SyncService) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error(ctx, err, "Sync run finished with failures")
	}
}

// cronLogger adapts ports.Logger to cron.Logger.
type cronLogger struct {
	ctx    context.Context
	logger ports.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(l.ctx, "cron: "+msg, kvFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(l.ctx, err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

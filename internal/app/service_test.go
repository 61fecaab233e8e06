package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockSync/config"
	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSynchronizer[R domain.Record] struct {
	mu          sync.Mutex
	source      string
	ensureFresh func(key string) (domain.Result[R], error)
	forceFetch  func(key string) (domain.Result[R], error)
	ensureCalls []string
	forceCalls  []string
}

func (m *mockSynchronizer[R]) EnsureFresh(ctx context.Context, key string) (domain.Result[R], error) {
	m.mu.Lock()
	m.ensureCalls = append(m.ensureCalls, key)
	m.mu.Unlock()
	return m.ensureFresh(key)
}

func (m *mockSynchronizer[R]) ForceFetch(ctx context.Context, key string) (domain.Result[R], error) {
	m.mu.Lock()
	m.forceCalls = append(m.forceCalls, key)
	m.mu.Unlock()
	if m.forceFetch == nil {
		return domain.Result[R]{Key: key, Outcome: domain.OutcomeAbsent, Err: ports.ErrNotFound}, nil
	}
	return m.forceFetch(key)
}

func (m *mockSynchronizer[R]) Source() string { return m.source }

func (m *mockSynchronizer[R]) ensureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ensureCalls)
}

type mockRecorder struct {
	runs []ports.SyncRun
	err  error
}

func (m *mockRecorder) RecordRun(ctx context.Context, run ports.SyncRun) error {
	m.runs = append(m.runs, run)
	return m.err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// barSeries builds n consecutive daily bars ending on last with closes 1..n.
func barSeries(t *testing.T, key string, last time.Time, n int) *domain.Series[domain.Bar] {
	t.Helper()
	bars := make([]domain.Bar, n)
	for i := 0; i < n; i++ {
		c := float64(i + 1)
		bars[i] = domain.Bar{Date: last.AddDate(0, 0, i-n+1), Open: c, High: c + 1, Low: c - 1, Close: c, AdjClose: c, Volume: 100}
	}
	s, err := domain.NewSeries(key, bars)
	require.NoError(t, err)
	return s
}

func testConfig() *config.Config {
	return &config.Config{
		Tickers:        []string{"AAPL", "MSFT"},
		MarketTimezone: "America/New_York",
		SyncCron:       "0 0 0 1 1 *",
	}
}

func upToDate(t *testing.T) func(key string) (domain.Result[domain.Bar], error) {
	return func(key string) (domain.Result[domain.Bar], error) {
		return domain.Result[domain.Bar]{Key: key, Outcome: domain.OutcomeUpToDate, Series: barSeries(t, key, day(2024, 1, 31), 30)}, nil
	}
}

func TestNewSyncService(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo"}

	_, err := NewSyncService(nil, &mockLogger{}, prices, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewSyncService(testConfig(), &mockLogger{}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg := testConfig()
	cfg.HeadlinesEnabled = true
	_, err = NewSyncService(cfg, &mockLogger{}, prices, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	cfg = testConfig()
	cfg.MarketTimezone = "Nowhere/Special"
	_, err = NewSyncService(cfg, &mockLogger{}, prices, nil, nil, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", svc.location.String())
}

func TestSyncService_SyncTicker(t *testing.T) {
	ctx := context.Background()

	t.Run("up to date computes summary", func(t *testing.T) {
		prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: upToDate(t)}
		svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
		require.NoError(t, err)

		report, err := svc.SyncTicker(ctx, " aapl ", false)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", report.Key)
		assert.Equal(t, "yahoo", report.Source)
		assert.Equal(t, domain.OutcomeUpToDate, report.Outcome)
		assert.Equal(t, day(2024, 1, 31), report.LastDate)
		require.NotNil(t, report.Summary)
		assert.Equal(t, 30.0, report.Summary.LastClose)
		assert.NotNil(t, report.Summary.SMA20)
		assert.Nil(t, report.Summary.SMA50)
		assert.Empty(t, prices.forceCalls)
	})

	t.Run("absent without backfill stays absent", func(t *testing.T) {
		prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: func(key string) (domain.Result[domain.Bar], error) {
			return domain.Result[domain.Bar]{Key: key, Outcome: domain.OutcomeAbsent}, nil
		}}
		svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
		require.NoError(t, err)

		report, err := svc.SyncTicker(ctx, "NEW", false)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeAbsent, report.Outcome)
		assert.True(t, report.LastDate.IsZero())
		assert.Nil(t, report.Summary)
		assert.Empty(t, prices.forceCalls)
	})

	t.Run("absent with backfill fetches full history", func(t *testing.T) {
		prices := &mockSynchronizer[domain.Bar]{
			source: "yahoo",
			ensureFresh: func(key string) (domain.Result[domain.Bar], error) {
				return domain.Result[domain.Bar]{Key: key, Outcome: domain.OutcomeAbsent}, nil
			},
			forceFetch: func(key string) (domain.Result[domain.Bar], error) {
				s := barSeries(t, key, day(2024, 1, 31), 5)
				return domain.Result[domain.Bar]{Key: key, Outcome: domain.OutcomeUpdated, Series: s, Added: 5}, nil
			},
		}
		svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
		require.NoError(t, err)

		report, err := svc.SyncTicker(ctx, "NEW", true)
		require.NoError(t, err)
		assert.Equal(t, domain.OutcomeUpdated, report.Outcome)
		assert.Equal(t, 5, report.Added)
		assert.Equal(t, []string{"NEW"}, prices.forceCalls)
	})

	t.Run("fatal error is returned", func(t *testing.T) {
		prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: func(key string) (domain.Result[domain.Bar], error) {
			return domain.Result[domain.Bar]{Key: key}, fmt.Errorf("disk gone: %w", ports.ErrNoBaseline)
		}}
		svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
		require.NoError(t, err)

		report, err := svc.SyncTicker(ctx, "AAPL", true)
		require.Error(t, err)
		assert.ErrorIs(t, report.Fatal, ports.ErrNoBaseline)
		assert.Equal(t, outcomeError, report.OutcomeLabel())
		assert.Empty(t, prices.forceCalls)
	})
}

func TestSyncService_ForceTicker(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "binance", ensureFresh: upToDate(t)}
	svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
	require.NoError(t, err)

	report, err := svc.ForceTicker(context.Background(), "zzzz")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAbsent, report.Outcome)
	assert.ErrorIs(t, report.Err, ports.ErrNotFound)
	assert.Equal(t, []string{"ZZZZ"}, prices.forceCalls)
	assert.Empty(t, prices.ensureCalls)
}

func TestSyncService_SyncHeadlines(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: upToDate(t)}

	svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
	require.NoError(t, err)
	_, err = svc.SyncHeadlines(context.Background(), false, false)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	headlines := &mockSynchronizer[domain.HeadlineDay]{
		source: "wsj",
		ensureFresh: func(key string) (domain.Result[domain.HeadlineDay], error) {
			return domain.Result[domain.HeadlineDay]{Key: key, Outcome: domain.OutcomeSourceUnavailable, Err: ports.ErrSourceUnavailable}, nil
		},
	}
	svc, err = NewSyncService(testConfig(), &mockLogger{}, prices, headlines, nil, nil)
	require.NoError(t, err)

	report, err := svc.SyncHeadlines(context.Background(), false, false)
	require.NoError(t, err)
	assert.Equal(t, HeadlinesKey, report.Key)
	assert.Equal(t, domain.OutcomeSourceUnavailable, report.Outcome)
	assert.ErrorIs(t, report.Err, ports.ErrSourceUnavailable)

	_, err = svc.SyncHeadlines(context.Background(), false, true)
	require.NoError(t, err)
	assert.Equal(t, []string{HeadlinesKey}, headlines.forceCalls)
}

func TestSyncService_RunOnce(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: func(key string) (domain.Result[domain.Bar], error) {
		switch key {
		case "BAD":
			return domain.Result[domain.Bar]{Key: key}, errors.New("permission denied")
		case "DOWN":
			return domain.Result[domain.Bar]{Key: key, Outcome: domain.OutcomeSourceUnavailable, Err: ports.ErrSourceUnavailable}, nil
		default:
			return domain.Result[domain.Bar]{Key: key, Outcome: domain.OutcomeUpdated, Added: 2, Series: barSeries(t, key, day(2024, 1, 31), 3)}, nil
		}
	}}
	headlines := &mockSynchronizer[domain.HeadlineDay]{source: "wsj", ensureFresh: func(key string) (domain.Result[domain.HeadlineDay], error) {
		return domain.Result[domain.HeadlineDay]{Key: key, Outcome: domain.OutcomeUpToDate}, nil
	}}

	cfg := testConfig()
	cfg.Tickers = []string{"AAPL", "BAD", "DOWN"}
	cfg.HeadlinesEnabled = true

	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	recorder := &mockRecorder{err: errors.New("audit table locked")}
	log := &mockLogger{}

	svc, err := NewSyncService(cfg, log, prices, headlines, recorder, metrics)
	require.NoError(t, err)

	reports, err := svc.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticker BAD")

	require.Len(t, reports, 4)
	assert.Equal(t, domain.OutcomeUpdated, reports[0].Outcome)
	assert.Equal(t, outcomeError, reports[1].OutcomeLabel())
	assert.Equal(t, domain.OutcomeSourceUnavailable, reports[2].Outcome)
	assert.Equal(t, HeadlinesKey, reports[3].Key)
	assert.Equal(t, reports, svc.LastRun())

	// Every attempt is audited under one run ID, even though the recorder fails.
	require.Len(t, recorder.runs, 4)
	runID := recorder.runs[0].RunID
	assert.NotEmpty(t, runID)
	for _, run := range recorder.runs {
		assert.Equal(t, runID, run.RunID)
	}
	assert.Equal(t, domain.SyncOutcome(outcomeError), recorder.runs[1].Outcome)
	assert.Equal(t, "permission denied", recorder.runs[1].Error)
	assert.Contains(t, log.warnMsgs, "Failed to record sync run")

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.outcomes.WithLabelValues("yahoo", "UPDATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.outcomes.WithLabelValues("yahoo", outcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.outcomes.WithLabelValues("wsj", "UP_TO_DATE")))
}

func TestSyncService_RunOnce_StopsOnCanceledContext(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: upToDate(t)}
	svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := svc.RunOnce(ctx)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.Empty(t, reports)
	assert.Zero(t, prices.ensureCount())
}

func TestSyncService_Start_RunsOnStartAndStops(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: upToDate(t)}
	cfg := testConfig()
	cfg.RunOnStart = true

	svc, err := NewSyncService(cfg, &mockLogger{}, prices, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, svc.Start(ctx))
	assert.Equal(t, 2, prices.ensureCount())
}

func TestSyncService_Start_InvalidSchedule(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: upToDate(t)}
	cfg := testConfig()
	cfg.SyncCron = "whenever"

	svc, err := NewSyncService(cfg, &mockLogger{}, prices, nil, nil, nil)
	require.NoError(t, err)

	err = svc.Start(context.Background())
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestKVFields(t *testing.T) {
	assert.Equal(t, map[string]interface{}{"entry": 1, "next": "soon"}, kvFields([]interface{}{"entry", 1, "next", "soon", "dangling"}))
}

func TestSyncService_Run_Force(t *testing.T) {
	prices := &mockSynchronizer[domain.Bar]{source: "yahoo", ensureFresh: upToDate(t)}
	headlines := &mockSynchronizer[domain.HeadlineDay]{source: "wsj", ensureFresh: func(key string) (domain.Result[domain.HeadlineDay], error) {
		return domain.Result[domain.HeadlineDay]{Key: key, Outcome: domain.OutcomeUpToDate}, nil
	}}
	recorder := &mockRecorder{}

	svc, err := NewSyncService(testConfig(), &mockLogger{}, prices, headlines, recorder, nil)
	require.NoError(t, err)

	reports, err := svc.Run(context.Background(), RunRequest{Tickers: []string{"tsla"}, Headlines: true, Force: true})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{"TSLA"}, prices.forceCalls)
	assert.Equal(t, []string{HeadlinesKey}, headlines.forceCalls)
	assert.Empty(t, prices.ensureCalls)
	assert.Len(t, recorder.runs, 2)
}

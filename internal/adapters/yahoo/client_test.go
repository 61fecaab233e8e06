package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockSync/internal/adapters/logger"
	"stockSync/internal/ports"
)

func testLogger() ports.Logger {
	return logger.NewStdLogger(logger.LevelError)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	c, err := New(Config{
		BaseURL:           srv.URL,
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		Location:          ny,
		Logger:            testLogger(),
	})
	require.NoError(t, err)
	return c, srv
}

// 2024-01-02 and 2024-01-03 09:30 New York, as Unix seconds.
const (
	tsJan2 = 1704205800
	tsJan3 = 1704292200
	tsJan4 = 1704378600
)

func chartBody(timestamps string, closes string) string {
	return fmt.Sprintf(`{"chart":{"result":[{"meta":{"symbol":"AAPL","exchangeTimezoneName":"America/New_York"},
"timestamp":[%s],
"indicators":{"quote":[{"open":[10,11,12],"high":[11,12,13],"low":[9,10,11],"close":[%s],"volume":[100,200,300]}],
"adjclose":[{"adjclose":[10.1,null,12.1]}]}}],"error":null}}`, timestamps, closes)
}

func TestClient_Fetch_TranslatesBars(t *testing.T) {
	var gotPath, gotQuery string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chartBody(fmt.Sprintf("%d,%d,%d", tsJan2, tsJan3, tsJan4), "10.5,11.5,12.5"))
	})

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	bars, err := c.Fetch(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 3)

	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)
	assert.Contains(t, gotQuery, "interval=1d")
	assert.Contains(t, gotQuery, "includeAdjustedClose=true")

	assert.Equal(t, start, bars[0].Date)
	assert.Equal(t, 10.0, bars[0].Open)
	assert.Equal(t, 10.5, bars[0].Close)
	assert.Equal(t, 10.1, bars[0].AdjClose)
	assert.Equal(t, 100.0, bars[0].Volume)

	// Null adjusted close falls back to close.
	assert.Equal(t, 11.5, bars[1].AdjClose)
	assert.Equal(t, end, bars[2].Date)
}

func TestClient_Fetch_SkipsNullAndOutOfRangeSessions(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chartBody(fmt.Sprintf("%d,%d,%d", tsJan2, tsJan3, tsJan4), "10.5,null,12.5"))
	})

	start := time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	bars, err := c.Fetch(context.Background(), "AAPL", start, end)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, end, bars[0].Date)
}

func TestClient_Fetch_EmptyResult(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":[{"meta":{"symbol":"AAPL"},"indicators":{"quote":[{}]}}],"error":null}}`)
	})

	day := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	bars, err := c.Fetch(context.Background(), "AAPL", day, day)
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestClient_Fetch_MapsSymbolAlias(t *testing.T) {
	var gotPath string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
	})

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := c.Fetch(context.Background(), "SPX500", day, day)
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/^GSPC", gotPath)
}

func TestClient_Fetch_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantIs    []error
		wantNotIs []error
	}{
		{
			name:      "unknown symbol",
			status:    http.StatusNotFound,
			body:      `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`,
			wantIs:    []error{ports.ErrNotFound},
			wantNotIs: []error{ports.ErrSourceUnavailable},
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   "Too Many Requests",
			wantIs: []error{ports.ErrSourceUnavailable, ports.ErrRateLimited},
		},
		{
			name:      "plain not found page",
			status:    http.StatusNotFound,
			body:      "<html>Not Found</html>",
			wantIs:    []error{ports.ErrNotFound},
			wantNotIs: []error{ports.ErrSourceUnavailable},
		},
		{
			name:      "bad request",
			status:    http.StatusBadRequest,
			body:      `{"chart":{"result":null,"error":{"code":"Bad Request","description":"Invalid input"}}}`,
			wantIs:    []error{ports.ErrSourceUnavailable, ports.ErrInvalidRequest},
			wantNotIs: []error{ports.ErrNotFound},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			body:   "bad gateway",
			wantIs: []error{ports.ErrSourceUnavailable},
		},
		{
			name:   "malformed payload",
			status: http.StatusOK,
			body:   `{"chart":`,
			wantIs: []error{ports.ErrSourceUnavailable, ports.ErrMalformedResponse},
		},
		{
			name:   "mismatched quote arrays",
			status: http.StatusOK,
			body: fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%d,%d],
"indicators":{"quote":[{"open":[1],"high":[1],"low":[1],"close":[1],"volume":[1]}]}}]}}`, tsJan2, tsJan3),
			wantIs: []error{ports.ErrSourceUnavailable, ports.ErrMalformedResponse},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
			bars, err := c.Fetch(context.Background(), "ZZZZ", day, day)
			require.Error(t, err)
			assert.Nil(t, bars)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}
			for _, target := range tt.wantNotIs {
				assert.NotErrorIs(t, err, target)
			}
		})
	}
}

func TestClient_Fetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: addr, Logger: testLogger(), RequestsPerSecond: 1000})
	require.NoError(t, err)

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err = c.Fetch(context.Background(), "AAPL", day, day)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrSourceUnavailable)
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestClient_Fetch_CanceledContext(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err := c.Fetch(ctx, "AAPL", day, day)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrSourceUnavailable)
	assert.Equal(t, int32(0), calls.Load())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Logger: testLogger(), ProxyURL: "://bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	c, err := New(Config{Logger: testLogger()})
	require.NoError(t, err)
	assert.Equal(t, "yahoo", c.Name())
	assert.True(t, strings.HasPrefix(c.baseURL, "https://"))
}

// Package yahoo fetches daily price history from the Yahoo Finance chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client implements ports.HistorySource[domain.Bar].
type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	loc       *time.Location
	symbolMap map[string]string
	logger    ports.Logger
}

// Config holds configuration for the Yahoo client.
type Config struct {
	BaseURL           string         // Defaults to the public query1 endpoint
	Timeout           time.Duration  // Per-request timeout
	ProxyURL          string         // Optional HTTP(S) proxy
	RequestsPerSecond float64        // Client-side rate limit; <= 0 means 2/s
	Location          *time.Location // Exchange zone used to map timestamps to trading days
	Logger            ports.Logger
}

// New creates a Yahoo chart client.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Yahoo client")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL '%s': %w: %w", cfg.ProxyURL, ports.ErrConfigurationError, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		loc:     loc,
		symbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
		logger: cfg.Logger,
	}, nil
}

func (c *Client) Name() string { return "yahoo" }

func (c *Client) yahooSymbol(symbol string) string {
	if mapped, ok := c.symbolMap[strings.ToUpper(symbol)]; ok {
		return mapped
	}
	return symbol
}

// chartResponse is the response structure from the Yahoo Finance chart API.
// Prices are pointers because Yahoo reports missing sessions as null.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Fetch returns the daily bars dated within [start, end].
func (c *Client) Fetch(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error) {
	op := "YahooChart"
	if end.Before(start) {
		return nil, nil
	}

	// period2 is exclusive: ask up to the midnight after end in the exchange zone.
	from := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.loc)
	to := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(from.Unix(), 10))
	q.Set("period2", strconv.FormatInt(to.Unix(), 10))
	q.Set("interval", "1d")
	q.Set("events", "history")
	q.Set("includeAdjustedClose", "true")
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(c.yahooSymbol(ticker)), q.Encode())

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug(ctx, "Requesting Yahoo chart", map[string]interface{}{"ticker": ticker, "url": u})
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}

	var chart chartResponse
	decodeErr := json.Unmarshal(body, &chart)

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleError(ctx, statusError(resp.StatusCode, chart, body), op, ticker)
	}
	if decodeErr != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, decodeErr), op, ticker)
	}
	if chart.Chart.Error != nil {
		return nil, c.handleError(ctx, &apiError{Code: chart.Chart.Error.Code, Description: chart.Chart.Error.Description}, op, ticker)
	}

	bars, err := c.translate(chart, start, end)
	if err != nil {
		return nil, c.handleError(ctx, err, op, ticker)
	}
	c.logger.Debug(ctx, "Yahoo chart fetched", map[string]interface{}{"ticker": ticker, "bars": len(bars)})
	return bars, nil
}

func (c *Client) translate(chart chartResponse, start, end time.Time) ([]domain.Bar, error) {
	if len(chart.Chart.Result) == 0 {
		return nil, nil
	}
	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]
	n := len(result.Timestamp)
	if len(quote.Open) != n || len(quote.High) != n || len(quote.Low) != n || len(quote.Close) != n || len(quote.Volume) != n {
		return nil, fmt.Errorf("quote arrays do not match %d timestamps: %w", n, ports.ErrMalformedResponse)
	}
	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 && len(result.Indicators.AdjClose[0].AdjClose) == n {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	startDay := domain.Day(start, nil)
	endDay := domain.Day(end, nil)
	bars := make([]domain.Bar, 0, n)
	for i, ts := range result.Timestamp {
		if quote.Close[i] == nil {
			continue // null session (holiday or not yet settled)
		}
		date := domain.Day(time.Unix(ts, 0), c.loc)
		if date.Before(startDay) || date.After(endDay) {
			continue
		}
		b := domain.Bar{
			Date:   date,
			Open:   value(quote.Open[i]),
			High:   value(quote.High[i]),
			Low:    value(quote.Low[i]),
			Close:  *quote.Close[i],
			Volume: value(quote.Volume[i]),
		}
		b.AdjClose = b.Close
		if adj != nil && adj[i] != nil {
			b.AdjClose = *adj[i]
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// apiError is an error reported inside the chart payload.
type apiError struct {
	Status      int
	Code        string
	Description string
}

func (e *apiError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("yahoo status %d: %s: %s", e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("yahoo api error: %s: %s", e.Code, e.Description)
}

func statusError(status int, chart chartResponse, body []byte) *apiError {
	e := &apiError{Status: status}
	if chart.Chart.Error != nil {
		e.Code = chart.Chart.Error.Code
		e.Description = chart.Chart.Error.Description
	} else {
		e.Description = strings.TrimSpace(string(body))
		if len(e.Description) > 200 {
			e.Description = e.Description[:200]
		}
	}
	return e
}

// handleError translates transport and API failures into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation, ticker string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "ticker": ticker}

	var apiErr *apiError
	var netErr net.Error
	var finalErr error
	switch {
	case errors.As(err, &apiErr):
		fields["status"] = apiErr.Status
		fields["code"] = apiErr.Code
		switch {
		case apiErr.Status == http.StatusNotFound || strings.EqualFold(apiErr.Code, "Not Found"):
			finalErr = fmt.Errorf("%s failed for %s: %w: %w", operation, ticker, ports.ErrNotFound, err)
		case apiErr.Status == http.StatusTooManyRequests:
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrRateLimited, err)
		case apiErr.Status == http.StatusBadRequest || strings.EqualFold(apiErr.Code, "Bad Request"):
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrInvalidRequest, err)
		default:
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
		}
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrContextCanceled, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrTimeout, err)
	case errors.Is(err, ports.ErrMalformedResponse):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrConnectionFailed, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

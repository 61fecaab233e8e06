package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stockSync/internal/domain"
	"stockSync/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	dailyInterval = "1d"
	maxLimit      = 1500
)

// Client implements ports.HistorySource[domain.Bar] over Binance futures daily klines.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
	now           func() time.Time
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger
}

// New creates a new Binance client adapter. Klines are public, so keys are optional.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Debug(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL})

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
		now:           time.Now,
	}, nil
}

func (c *Client) Name() string { return "binance" }

// handleError translates common Binance API errors into standardized ports errors.
// Everything except an unknown symbol also wraps ports.ErrSourceUnavailable.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var finalErr error
		switch apiErr.Code {
		case -1121: // Invalid symbol
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrNotFound, err)
		case -1003: // Too many requests
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrRateLimited, err)
		case -1021: // Timestamp for this request is outside of the recvWindow
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrTimeout, err)
		case -2014, -2015: // API-key format invalid / permissions
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrPermissionDenied, err)
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1130:
			finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrInvalidRequest, err)
		default:
			finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
		}
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrContextCanceled, err)
	} else if errors.Is(err, ports.ErrMalformedResponse) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Fetch returns the closed daily klines whose UTC open day falls within [start, end].
// Klines are paged in batches of 1500, the futures endpoint maximum.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	op := "GetKlinesRange"
	startDay := domain.Day(start, nil)
	endDay := domain.Day(end, nil)
	if endDay.Before(startDay) {
		return nil, nil
	}
	// Inclusive end of the last requested day.
	until := endDay.AddDate(0, 0, 1).Add(-time.Millisecond)
	now := c.now()

	var bars []domain.Bar
	from := startDay
	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(dailyInterval).
			StartTime(from.UnixMilli()).
			EndTime(until.UnixMilli()).
			Limit(maxLimit).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			bar, err := translateBinanceKline(bk)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w: %w", ports.ErrMalformedResponse, err), op)
			}
			// The running session is not final yet.
			if time.UnixMilli(bk.CloseTime).After(now) {
				continue
			}
			if bar.Date.Before(startDay) || bar.Date.After(endDay) {
				continue
			}
			bars = append(bars, bar)
		}
		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(until) || len(klines) < maxLimit {
			break
		}
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "bars": len(bars)})
	return bars, nil
}

// translateBinanceKline converts a futures kline into a daily bar dated by its UTC open day.
// Futures prices are not dividend adjusted, so AdjClose mirrors Close.
func translateBinanceKline(bk *futures.Kline) (domain.Bar, error) {
	if bk == nil {
		return domain.Bar{}, errors.New("received nil historical kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return domain.Bar{
		Date:     domain.Day(time.UnixMilli(bk.OpenTime), time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    cls,
		AdjClose: cls,
		Volume:   vol,
	}, nil
}

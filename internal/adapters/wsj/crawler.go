// Package wsj crawls the daily Wall Street Journal news archive for headlines.
package wsj

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"stockSync/internal/domain"
	"stockSync/internal/ports"
)

const (
	DefaultBaseURL      = "https://www.wsj.com"
	DefaultMaxHeadlines = 20
	headlineClass       = "headlineText"
	userAgent           = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
)

// CrawlerConfig holds configuration for the archive crawler.
type CrawlerConfig struct {
	BaseURL           string
	MaxHeadlines      int
	Timeout           time.Duration
	ProxyURL          string
	RequestsPerSecond float64 // <= 0 means 1/s
	Logger            ports.Logger
}

// Crawler implements ports.HistorySource[domain.HeadlineDay].
type Crawler struct {
	baseURL      string
	maxHeadlines int
	http         *http.Client
	limiter      *rate.Limiter
	logger       ports.Logger
}

func NewCrawler(cfg CrawlerConfig) (*Crawler, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for WSJ crawler")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	maxHeadlines := cfg.MaxHeadlines
	if maxHeadlines <= 0 {
		maxHeadlines = DefaultMaxHeadlines
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL '%s': %w: %w", cfg.ProxyURL, ports.ErrConfigurationError, err)
		}
		transport.Proxy = http.ProxyURL(u)
	}

	return &Crawler{
		baseURL:      baseURL,
		maxHeadlines: maxHeadlines,
		http:         &http.Client{Timeout: timeout, Transport: transport},
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		logger:       cfg.Logger,
	}, nil
}

func (c *Crawler) Name() string { return "wsj" }

// Fetch crawls one archive page per calendar day in [start, end]. Days without an
// archive page or without headlines are left out of the result.
func (c *Crawler) Fetch(ctx context.Context, feed string, start, end time.Time) ([]domain.HeadlineDay, error) {
	op := "CrawlArchive"
	var days []domain.HeadlineDay
	for day := domain.Day(start, nil); !day.After(domain.Day(end, nil)); day = domain.NextDay(day) {
		headlines, err := c.fetchDay(ctx, day)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				c.logger.Debug(ctx, "No archive page for day", map[string]interface{}{"feed": feed, "date": day.Format(domain.DateLayout)})
				continue
			}
			return nil, c.handleError(ctx, err, op, day)
		}
		if len(headlines) == 0 {
			continue
		}
		days = append(days, domain.HeadlineDay{Date: day, Headlines: headlines})
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"feed": feed, "days": len(days)})
	return days, nil
}

func (c *Crawler) archiveURL(day time.Time) string {
	return fmt.Sprintf("%s/news/archive/%04d/%02d/%02d", c.baseURL, day.Year(), int(day.Month()), day.Day())
}

func (c *Crawler) fetchDay(ctx context.Context, day time.Time) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.archiveURL(day), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, ports.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, ports.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err)
	}
	return extractHeadlines(doc, c.maxHeadlines), nil
}

// extractHeadlines returns the text of span elements whose class contains headlineText,
// in document order, stopping after limit.
func extractHeadlines(doc *html.Node, limit int) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(out) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "span" && hasHeadlineClass(n) {
			if text := nodeText(n); text != "" {
				out = append(out, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return out
}

func hasHeadlineClass(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, headlineClass) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// handleError translates crawl failures into standardized ports errors.
func (c *Crawler) handleError(ctx context.Context, err error, operation string, day time.Time) error {
	fields := map[string]interface{}{"operation": operation, "date": day.Format(domain.DateLayout)}

	var netErr net.Error
	var finalErr error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrContextCanceled, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrTimeout, err)
	case errors.As(err, &netErr):
		finalErr = fmt.Errorf("%s failed: %w: %w: %w", operation, ports.ErrSourceUnavailable, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrSourceUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

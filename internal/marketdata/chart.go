// Package marketdata serves OHLCV history over the Yahoo-style chart HTTP
// API and streams live quotes over WebSocket.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/jpillora/backoff"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

// ChartClient fetches OHLCV candles from a chart API host. It implements
// domain.MarketDataSource.
type ChartClient struct {
	host       string
	minListing int
	retryMax   int
	client     *http.Client
	logger     *slog.Logger
}

// NewChartClient creates a chart client from configuration.
func NewChartClient(cfg config.MarketDataConfig, logger *slog.Logger) *ChartClient {
	return &ChartClient{
		host:       cfg.ChartHost,
		minListing: cfg.MinListingDays,
		retryMax:   cfg.RetryMax,
		client:     &http.Client{Timeout: cfg.Timeout.Duration},
		logger:     logger.With(slog.String("component", "chart_client")),
	}
}

// chartResponse mirrors the chart API's JSON envelope. Null entries appear
// for holidays and halts and are skipped.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// GetBars returns up to lookback candles at the given resolution, oldest
// first. A symbol listed for fewer than the configured minimum listing days
// fails with ErrDataUnavailable; young listings have no trustworthy trend
// structure to score.
func (c *ChartClient) GetBars(ctx context.Context, symbol string, res domain.Resolution, lookback int) ([]domain.Bar, error) {
	bars, err := c.fetchWithRetry(ctx, symbol, res)
	if err != nil {
		return nil, err
	}
	if res == domain.ResolutionDaily && len(bars) < c.minListing {
		return nil, fmt.Errorf("marketdata: %s has %d daily bars, need %d: %w",
			symbol, len(bars), c.minListing, domain.ErrDataUnavailable)
	}
	if len(bars) > lookback {
		bars = bars[len(bars)-lookback:]
	}
	return bars, nil
}

// fetchWithRetry retries transient failures with jittered exponential
// backoff. 4xx responses other than 429 are not retried.
func (c *ChartClient) fetchWithRetry(ctx context.Context, symbol string, res domain.Resolution) ([]domain.Bar, error) {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    10 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}
		bars, retryable, err := c.fetch(ctx, symbol, res)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		c.logger.Warn("chart fetch failed, retrying",
			slog.String("symbol", symbol),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
	}
	return nil, lastErr
}

func (c *ChartClient) fetch(ctx context.Context, symbol string, res domain.Resolution) ([]domain.Bar, bool, error) {
	rng := rangeFor(res)
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&range=%s",
		c.host, url.PathEscape(symbol), res, rng)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("marketdata: build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("marketdata: fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("marketdata: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return nil, retryable, fmt.Errorf("marketdata: %s: status %d", symbol, resp.StatusCode)
	}

	var chart chartResponse
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, false, fmt.Errorf("marketdata: decode %s: %w", symbol, err)
	}
	if chart.Chart.Error != nil {
		return nil, false, fmt.Errorf("marketdata: %s: api error %s: %w",
			symbol, chart.Chart.Error.Code, domain.ErrDataUnavailable)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, false, fmt.Errorf("marketdata: %s: empty result: %w", symbol, domain.ErrDataUnavailable)
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil || quote.Open[i] == nil ||
			quote.High[i] == nil || quote.Low[i] == nil {
			continue
		}
		var vol float64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			vol = *quote.Volume[i]
		}
		bars = append(bars, domain.Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     *quote.Close[i],
			Volume:    vol,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, false, nil
}

// rangeFor maps a resolution to the widest chart range the API serves for
// it, so trimming happens locally.
func rangeFor(res domain.Resolution) string {
	switch res {
	case domain.ResolutionWeekly:
		return "2y"
	case domain.ResolutionMonthly:
		return "5y"
	default:
		return "2y"
	}
}

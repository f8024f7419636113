package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

// chartJSON builds a minimal chart API payload. A negative close marks a
// null slot in every OHLC series.
func chartJSON(closes ...float64) string {
	var ts, open, high, low, cl, vol []string
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC).Unix()
	for i, c := range closes {
		ts = append(ts, fmt.Sprintf("%d", base+int64(i)*86400))
		if c < 0 {
			for _, s := range []*[]string{&open, &high, &low, &cl, &vol} {
				*s = append(*s, "null")
			}
			continue
		}
		open = append(open, fmt.Sprintf("%.2f", c-1))
		high = append(high, fmt.Sprintf("%.2f", c+1))
		low = append(low, fmt.Sprintf("%.2f", c-2))
		cl = append(cl, fmt.Sprintf("%.2f", c))
		vol = append(vol, "1000")
	}
	return fmt.Sprintf(`{"chart":{"result":[{"timestamp":[%s],"indicators":{"quote":[{"open":[%s],"high":[%s],"low":[%s],"close":[%s],"volume":[%s]}]}}],"error":null}}`,
		strings.Join(ts, ","), strings.Join(open, ","), strings.Join(high, ","),
		strings.Join(low, ","), strings.Join(cl, ","), strings.Join(vol, ","))
}

func newTestClient(host string, minListing, retryMax int) *ChartClient {
	return NewChartClient(config.MarketDataConfig{
		ChartHost:      host,
		MinListingDays: minListing,
		RetryMax:       retryMax,
		Timeout:        config.Duration{Duration: 5 * time.Second},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestGetBars_ParsesAndSkipsNulls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v8/finance/chart/AAPL") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, chartJSON(100, -1, 102, 103))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, 0)
	bars, err := c.GetBars(context.Background(), "AAPL", domain.ResolutionDaily, 300)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3 (null slot skipped)", len(bars))
	}
	if bars[0].Close != 100 || bars[2].Close != 103 {
		t.Errorf("bars out of order: first=%.2f last=%.2f", bars[0].Close, bars[2].Close)
	}
	if !bars[0].Timestamp.Before(bars[1].Timestamp) {
		t.Error("bars must be oldest first")
	}
}

func TestGetBars_TrimsToLookback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chartJSON(100, 101, 102, 103, 104))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, 0)
	bars, err := c.GetBars(context.Background(), "AAPL", domain.ResolutionDaily, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bars[0].Close != 103 {
		t.Errorf("got %d bars starting at %.2f, want the 2 most recent", len(bars), bars[0].Close)
	}
}

func TestGetBars_YoungListingRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, chartJSON(100, 101, 102))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 250, 0)
	_, err := c.GetBars(context.Background(), "IPO", domain.ResolutionDaily, 300)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable for young listing", err)
	}

	// The listing-age floor applies to daily bars only.
	if _, err := c.GetBars(context.Background(), "IPO", domain.ResolutionWeekly, 60); err != nil {
		t.Errorf("weekly fetch should pass: %v", err)
	}
}

func TestGetBars_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, chartJSON(100, 101))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, 3)
	bars, err := c.GetBars(context.Background(), "AAPL", domain.ResolutionDaily, 300)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Errorf("got %d bars, want 2", len(bars))
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (two retried failures)", calls)
	}
}

func TestGetBars_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, 3)
	if _, err := c.GetBars(context.Background(), "NOPE", domain.ResolutionDaily, 300); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (404 is terminal)", calls)
	}
}

func TestGetBars_APIErrorIsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1, 0)
	_, err := c.GetBars(context.Background(), "DELISTED", domain.ResolutionDaily, 300)
	if !errors.Is(err, domain.ErrDataUnavailable) {
		t.Errorf("err = %v, want ErrDataUnavailable", err)
	}
}

package marketdata

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// Lookbacks fetched per cycle. Daily must cover the 200-bar trend baseline
// with headroom; weekly and monthly only feed single-MA checks.
const (
	dailyLookback   = 300
	weeklyLookback  = 60
	monthlyLookback = 24
)

// BarSet bundles the three resolutions the indicator engine needs for one
// symbol.
type BarSet struct {
	Daily   []domain.Bar
	Weekly  []domain.Bar
	Monthly []domain.Bar
}

// Fetcher fans bar fetches out across a bounded worker pool. One slow or
// failing symbol never blocks the rest of the watchlist.
type Fetcher struct {
	source  domain.MarketDataSource
	workers int
	logger  *slog.Logger
}

// NewFetcher wraps a MarketDataSource with concurrent fan-out.
func NewFetcher(source domain.MarketDataSource, workers int, logger *slog.Logger) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		source:  source,
		workers: workers,
		logger:  logger.With(slog.String("component", "fetcher")),
	}
}

// FetchAll fetches daily, weekly, and monthly bars for every symbol. Symbols
// that fail land in the error map and are absent from the result map; the
// call itself only fails when the context is cancelled.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) (map[string]BarSet, map[string]error) {
	var (
		mu      sync.Mutex
		sets    = make(map[string]BarSet, len(symbols))
		failed  = make(map[string]error)
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(f.workers)

	for _, symbol := range symbols {
		g.Go(func() error {
			set, err := f.fetchOne(gctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed[symbol] = err
				f.logger.Warn("bar fetch failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
				return nil
			}
			sets[symbol] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sets, failed
	}
	return sets, failed
}

func (f *Fetcher) fetchOne(ctx context.Context, symbol string) (BarSet, error) {
	daily, err := f.source.GetBars(ctx, symbol, domain.ResolutionDaily, dailyLookback)
	if err != nil {
		return BarSet{}, err
	}
	weekly, err := f.source.GetBars(ctx, symbol, domain.ResolutionWeekly, weeklyLookback)
	if err != nil {
		return BarSet{}, err
	}
	monthly, err := f.source.GetBars(ctx, symbol, domain.ResolutionMonthly, monthlyLookback)
	if err != nil {
		return BarSet{}, err
	}
	return BarSet{Daily: daily, Weekly: weekly, Monthly: monthly}, nil
}

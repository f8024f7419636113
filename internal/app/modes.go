package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kmatsuda/swingtrader/internal/entry"
	"github.com/kmatsuda/swingtrader/internal/exit"
	"github.com/kmatsuda/swingtrader/internal/indicator"
	"github.com/kmatsuda/swingtrader/internal/ledger"
	"github.com/kmatsuda/swingtrader/internal/marketdata"
	"github.com/kmatsuda/swingtrader/internal/orchestrator"
	"github.com/kmatsuda/swingtrader/internal/scheduler"
	"github.com/kmatsuda/swingtrader/internal/scorer"
)

// TradeMode runs the full engine: exits, scanning, and entries, plus the
// live quote stream and the archive schedule when configured.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, orchestrator.Options{
		ExecuteExits:   true,
		ExecuteEntries: true,
	})
}

// ScanMode scores the watchlist and journals signals without submitting any
// orders. Useful for tuning gate thresholds against live data.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, orchestrator.Options{})
}

// MonitorMode manages exits for existing positions but takes no new
// entries. Used to wind a book down.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.runEngine(ctx, deps, orchestrator.Options{
		ExecuteExits: true,
	})
}

func (a *App) runEngine(ctx context.Context, deps *Dependencies, opts orchestrator.Options) error {
	book := ledger.New(deps.PositionStore, a.logger)
	if err := book.Load(ctx); err != nil {
		return err
	}

	indicators := indicator.NewEngine(a.cfg.Scoring)
	score := scorer.New(a.cfg.Scoring)
	classifier := entry.New(a.cfg.Tiers)
	sched := scheduler.New(a.cfg.Capital, a.cfg.Tiers, a.logger)
	exits := exit.New(a.cfg.Exits, a.cfg.Tiers, book, a.logger)
	fetcher := marketdata.NewFetcher(deps.MarketData, a.cfg.MarketData.FetchWorkers, a.logger)

	orch := orchestrator.New(*a.cfg, opts, orchestrator.Deps{
		Watchlist:  deps.Watchlist,
		Fetcher:    fetcher,
		Indicators: indicators,
		Scorer:     score,
		Classifier: classifier,
		Scheduler:  sched,
		Exits:      exits,
		Ledger:     book,
		Gateway:    deps.Gateway,
		Equity:     deps.Equity,
		Quotes:     deps.QuoteCache,
		Buys:       deps.BuyCounter,
		Locks:      deps.LockManager,
		Bus:        deps.SignalBus,
		Journal:    deps.Journal,
		Notifier:   deps.Notifier,
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	if deps.Stream != nil {
		deps.Stream.Subscribe(deps.Watchlist.WithOpen(book.OpenSymbols()))
		g.Go(func() error {
			defer deps.Stream.Close()
			return deps.Stream.Run(ctx)
		})
	}

	if deps.Archiver != nil && a.cfg.S3.Enabled {
		if err := a.startArchiveSchedule(ctx, deps); err != nil {
			return err
		}
	}

	g.Go(func() error {
		return orch.Run(ctx)
	})

	return g.Wait()
}

// startArchiveSchedule runs the archiver on its own cron. Closed positions
// older than the retention window are exported to cold storage.
func (a *App) startArchiveSchedule(ctx context.Context, deps *Dependencies) error {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(a.cfg.S3.ArchiveCron, func() {
		cutoff := time.Now().AddDate(0, 0, -a.cfg.S3.RetentionDays)
		n, err := deps.Archiver.ArchiveClosed(ctx, cutoff)
		if err != nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			a.logger.Info("archive run complete", slog.Int64("positions", n))
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	a.closers = append(a.closers, func() { c.Stop() })
	return nil
}

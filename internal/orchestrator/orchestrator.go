// Package orchestrator drives the evaluation cycle: fetch bars, run exits,
// score the watchlist, and execute the scheduler's buy plan. Cycles are
// cron-triggered; a cycle that is still running when the next trigger fires
// causes the new trigger to be skipped, and a distributed lock keeps a
// second engine instance from trading concurrently.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
	"github.com/kmatsuda/swingtrader/internal/entry"
	"github.com/kmatsuda/swingtrader/internal/exit"
	"github.com/kmatsuda/swingtrader/internal/indicator"
	"github.com/kmatsuda/swingtrader/internal/journal"
	"github.com/kmatsuda/swingtrader/internal/ledger"
	"github.com/kmatsuda/swingtrader/internal/marketdata"
	"github.com/kmatsuda/swingtrader/internal/notify"
	"github.com/kmatsuda/swingtrader/internal/scheduler"
	"github.com/kmatsuda/swingtrader/internal/scorer"
	"github.com/kmatsuda/swingtrader/internal/watchlist"
)

// cycleLockKey is the distributed lock key shared by all engine instances.
const cycleLockKey = "cycle"

// Options select which halves of the cycle submit orders. Scan mode submits
// nothing; monitor mode manages exits but takes no new entries.
type Options struct {
	ExecuteExits   bool
	ExecuteEntries bool
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Watchlist  *watchlist.Watchlist
	Fetcher    *marketdata.Fetcher
	Indicators *indicator.Engine
	Scorer     *scorer.Scorer
	Classifier *entry.Classifier
	Scheduler  *scheduler.Scheduler
	Exits      *exit.Engine
	Ledger     *ledger.Ledger
	Gateway    domain.OrderGateway
	Equity     domain.EquitySource
	Quotes     domain.QuoteCache
	Buys       domain.BuyCounter
	Locks      domain.LockManager
	Bus        domain.SignalBus
	Journal    journal.Recorder
	Notifier   *notify.Notifier
}

// Orchestrator owns the cycle loop.
type Orchestrator struct {
	cfg     config.Config
	opts    Options
	deps    Deps
	logger  *slog.Logger
	running atomic.Bool
	cron    *cron.Cron
}

// New creates an orchestrator. Validation of cfg has already happened.
func New(cfg config.Config, opts Options, deps Deps, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		opts:   opts,
		deps:   deps,
		logger: logger.With(slog.String("component", "orchestrator")),
	}
}

// Run schedules cycles on the configured cron spec and blocks until ctx is
// cancelled. With RunOnStart set, one cycle fires immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.cron = cron.New(cron.WithSeconds())
	_, err := o.cron.AddFunc(o.cfg.Cycle.Cron, func() {
		if err := o.RunCycle(ctx); err != nil {
			o.logger.Error("cycle failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("orchestrator: bad cron spec %q: %w", o.cfg.Cycle.Cron, err)
	}

	o.cron.Start()
	defer o.cron.Stop()
	o.logger.Info("cycle schedule started", slog.String("cron", o.cfg.Cycle.Cron))

	if o.cfg.Cycle.RunOnStart {
		if err := o.RunCycle(ctx); err != nil {
			o.logger.Error("startup cycle failed", slog.String("error", err.Error()))
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// RunCycle executes one full evaluation cycle. A cycle already in flight, or
// one running on another instance, causes this trigger to be skipped rather
// than queued; stale evaluations must never pile up behind a slow fetch.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Warn("previous cycle still running, skipping trigger")
		return nil
	}
	defer o.running.Store(false)

	unlock, err := o.deps.Locks.Acquire(ctx, cycleLockKey, o.cfg.Cycle.LockTTL.Duration)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Warn("cycle lock held elsewhere, skipping trigger")
			return nil
		}
		return fmt.Errorf("orchestrator: acquire cycle lock: %w", err)
	}
	defer unlock()

	started := time.Now()
	now := started

	openSymbols := o.deps.Ledger.OpenSymbols()
	universe := o.deps.Watchlist.WithOpen(openSymbols)

	sets, failed := o.deps.Fetcher.FetchAll(ctx, append(universe, o.cfg.Watchlist.BenchmarkSymbol))
	if ctx.Err() != nil {
		return ctx.Err()
	}
	benchmark, ok := sets[o.cfg.Watchlist.BenchmarkSymbol]
	if !ok {
		// Scoring needs the benchmark; exits do not, so keep going with an
		// empty benchmark and let every gate check fail closed.
		o.logger.Error("benchmark bars unavailable",
			slog.String("symbol", o.cfg.Watchlist.BenchmarkSymbol))
	}

	quotes := o.collectQuotes(ctx, universe, sets)

	exitCount := 0
	if o.opts.ExecuteExits {
		exitCount = o.runExits(ctx, quotes, now)
	}

	results, eligible, collected := o.scanAndCollect(ctx, universe, sets, benchmark.Daily, now)

	executed := 0
	if o.opts.ExecuteEntries && o.inBuyWindow(now) {
		executed = o.runEntries(ctx, quotes, results, now)
	}

	if err := o.deps.Journal.RecordCycle(journal.CycleEvent{
		Scanned:    len(universe) - len(failed),
		Eligible:   eligible,
		Collected:  collected,
		Executed:   executed,
		Exits:      exitCount,
		DurationMs: time.Since(started).Milliseconds(),
	}); err != nil {
		o.logger.Error("journal cycle record failed", slog.String("error", err.Error()))
	}

	o.logger.Info("cycle complete",
		slog.Int("scanned", len(universe)),
		slog.Int("fetch_failures", len(failed)),
		slog.Int("eligible", eligible),
		slog.Int("exits", exitCount),
		slog.Int("entries", executed),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// collectQuotes builds the cycle's quote view: the live cache where present,
// otherwise the latest daily close. Symbols with neither are absent; the
// exit engine treats them fail-safe.
func (o *Orchestrator) collectQuotes(ctx context.Context, symbols []string, sets map[string]marketdata.BarSet) map[string]domain.Quote {
	quotes := make(map[string]domain.Quote, len(symbols))
	for _, symbol := range symbols {
		q, err := o.deps.Quotes.GetQuote(ctx, symbol)
		if err == nil {
			quotes[symbol] = q
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("quote cache read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		set, ok := sets[symbol]
		if !ok || len(set.Daily) == 0 {
			continue
		}
		last := set.Daily[len(set.Daily)-1]
		quotes[symbol] = domain.Quote{
			Symbol: symbol,
			Price:  last.Close,
			Low:    last.Low,
			At:     last.Timestamp,
		}
	}
	return quotes
}

// runExits sweeps the ledger and submits the resulting sell instructions.
// The ledger is only mutated after the sell is confirmed filled and the
// mutation has been persisted.
func (o *Orchestrator) runExits(ctx context.Context, quotes map[string]domain.Quote, now time.Time) int {
	instructions := o.deps.Exits.Sweep(ctx, quotes, now)
	executed := 0
	for _, instr := range instructions {
		if err := o.executeExit(ctx, instr); err != nil {
			o.logger.Error("exit execution failed",
				slog.String("position_id", instr.PositionID),
				slog.String("symbol", instr.Symbol),
				slog.String("reason", string(instr.Reason)),
				slog.String("error", err.Error()),
			)
			continue
		}
		executed++
	}
	return executed
}

func (o *Orchestrator) executeExit(ctx context.Context, instr domain.ExitInstruction) error {
	fill, err := o.deps.Gateway.SubmitSell(ctx, instr.Symbol, instr.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrOrderUnknown) {
			// The sell may have filled. Touching the ledger now could double
			// count; leave state alone and page the operator.
			o.notify(ctx, notify.EventOrderUnknown, "SELL outcome unknown",
				fmt.Sprintf("%s x%d (%s), verify manually", instr.Symbol, instr.Quantity, instr.Reason))
		}
		return err
	}

	p, err := o.deps.Ledger.ApplyExit(ctx, instr.PositionID, domain.PartialExit{
		PositionID: instr.PositionID,
		Timestamp:  fill.At,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Reason:     instr.Reason,
	})
	if err != nil {
		return fmt.Errorf("apply exit: %w", err)
	}

	closed := p.Status == domain.PositionStatusClosed
	if err := o.deps.Journal.RecordExit(journal.ExitEvent{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Tier:       p.Tier,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Reason:     instr.Reason,
		Closed:     closed,
	}); err != nil {
		o.logger.Error("journal exit record failed", slog.String("error", err.Error()))
	}

	ev := domain.TradeEvent{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Tier:       p.Tier,
		Side:       "sell",
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		Reason:     string(instr.Reason),
		At:         fill.At,
	}
	if err := o.deps.Bus.PublishTrade(ctx, ev); err != nil {
		o.logger.Error("trade publish failed", slog.String("error", err.Error()))
	}
	if err := o.deps.Notifier.NotifyTrade(ctx, ev); err != nil {
		o.logger.Warn("trade notification failed", slog.String("error", err.Error()))
	}
	return nil
}

// scanAndCollect scores the scan universe and feeds tier-qualified signals
// into the scheduler's monitoring window. It returns the per-symbol scoring
// results for revalidation, plus eligible and collected counts.
func (o *Orchestrator) scanAndCollect(ctx context.Context, universe []string, sets map[string]marketdata.BarSet, benchmark []domain.Bar, now time.Time) (map[string]scorer.Result, int, int) {
	results := make(map[string]scorer.Result, len(universe))
	eligible, collected := 0, 0

	for _, symbol := range universe {
		if o.deps.Watchlist.Excluded(symbol) {
			continue
		}
		set, ok := sets[symbol]
		if !ok {
			continue
		}
		snap, err := o.deps.Indicators.Snapshot(symbol, set.Daily, set.Weekly, set.Monthly, benchmark, now)
		if err != nil {
			if !errors.Is(err, domain.ErrDataUnavailable) {
				o.logger.Warn("snapshot failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		res := o.deps.Scorer.Score(snap)
		results[symbol] = res
		if !res.Eligible {
			if err := o.deps.Journal.RecordGate(journal.GateEvent{
				Symbol:     symbol,
				FailedGate: res.FailedGate,
			}); err != nil {
				o.logger.Error("journal gate record failed", slog.String("error", err.Error()))
			}
			continue
		}
		eligible++

		sig := domain.Signal{
			ID:         uuid.New().String(),
			Symbol:     symbol,
			Score:      res.Score,
			Pattern:    res.Pattern,
			DetectedAt: now,
		}
		decision := o.deps.Classifier.Classify(sig, o.deps.Ledger, o.cfg.Signals)
		outcome := string(decision.Action)
		if decision.Action == entry.ActionEnter {
			sig.ProposedTier = decision.Tier
			if o.deps.Scheduler.Collect(sig, o.cfg.Signals) {
				collected++
				outcome = "collected"
			}
		}
		if err := o.deps.Journal.RecordSignal(journal.SignalEvent{
			Symbol:  symbol,
			Tier:    decision.Tier,
			Score:   res.Score,
			Pattern: res.Pattern,
			Outcome: outcome,
		}); err != nil {
			o.logger.Error("journal signal record failed", slog.String("error", err.Error()))
		}
	}
	return results, eligible, collected
}

// runEntries asks the scheduler for the cycle's buy plan and executes it in
// order. The position is persisted before the buy is counted or announced.
func (o *Orchestrator) runEntries(ctx context.Context, quotes map[string]domain.Quote, results map[string]scorer.Result, now time.Time) int {
	equity, err := o.deps.Equity.Equity(ctx)
	if err != nil {
		o.logger.Error("equity unavailable, skipping entries", slog.String("error", err.Error()))
		return 0
	}
	day := now.Format("2006-01-02")
	dailyBuys, err := o.deps.Buys.Buys(ctx, day)
	if err != nil {
		o.logger.Error("buy counter unavailable, skipping entries", slog.String("error", err.Error()))
		return 0
	}

	revalidate := func(_ context.Context, symbol string) (scorer.Result, error) {
		if res, ok := results[symbol]; ok {
			return res, nil
		}
		return scorer.Result{}, domain.ErrDataUnavailable
	}

	plan, drops := o.deps.Scheduler.Plan(ctx, equity, dailyBuys, o.cfg.Signals,
		o.deps.Ledger, quotes, revalidate, now)
	for _, d := range drops {
		if err := o.deps.Journal.RecordSignal(journal.SignalEvent{
			Symbol:  d.Signal.Symbol,
			Tier:    d.Signal.ProposedTier,
			Score:   d.Signal.Score,
			Pattern: d.Signal.Pattern,
			Outcome: d.Reason,
		}); err != nil {
			o.logger.Error("journal drop record failed", slog.String("error", err.Error()))
		}
	}

	executed := 0
	for _, order := range plan {
		if err := o.executeEntry(ctx, order, day); err != nil {
			o.logger.Error("entry execution failed",
				slog.String("symbol", order.Signal.Symbol),
				slog.String("tier", string(order.Tier)),
				slog.String("error", err.Error()),
			)
			continue
		}
		executed++
	}
	return executed
}

func (o *Orchestrator) executeEntry(ctx context.Context, order scheduler.BuyOrder, day string) error {
	fill, err := o.deps.Gateway.SubmitBuy(ctx, order.Signal.Symbol, order.Quantity)
	if err != nil {
		if errors.Is(err, domain.ErrOrderUnknown) {
			o.notify(ctx, notify.EventOrderUnknown, "BUY outcome unknown",
				fmt.Sprintf("%s x%d, verify manually", order.Signal.Symbol, order.Quantity))
		}
		return err
	}

	p := domain.Position{
		ID:           uuid.New().String(),
		Symbol:       order.Signal.Symbol,
		Tier:         order.Tier,
		EntryAt:      fill.At,
		EntryPrice:   fill.Price,
		InitialQty:   fill.Quantity,
		RemainingQty: fill.Quantity,
		EntryScore:   order.Signal.Score,
		Pattern:      order.Signal.Pattern,
		StopPrice:    fill.Price * (1 - o.cfg.Exits.InitialStopPct),
		StopTier:     domain.StopTierInitial,
		Status:       domain.PositionStatusOpen,
	}
	p, err = o.deps.Ledger.OpenPosition(ctx, p)
	if err != nil {
		// The fill happened but the position could not be recorded. This is
		// the one state the engine cannot repair on its own.
		o.notify(ctx, notify.EventError, "fill not recorded",
			fmt.Sprintf("%s x%d @ %.2f, ledger error: %v", p.Symbol, fill.Quantity, fill.Price, err))
		return fmt.Errorf("open position: %w", err)
	}

	if _, err := o.deps.Buys.IncrBuys(ctx, day); err != nil {
		o.logger.Error("buy counter increment failed", slog.String("error", err.Error()))
	}
	if err := o.deps.Journal.RecordEntry(journal.EntryEvent{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Tier:       p.Tier,
		Quantity:   p.InitialQty,
		Price:      p.EntryPrice,
		Score:      p.EntryScore,
		Pattern:    p.Pattern,
	}); err != nil {
		o.logger.Error("journal entry record failed", slog.String("error", err.Error()))
	}

	ev := domain.TradeEvent{
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Tier:       p.Tier,
		Side:       "buy",
		Quantity:   p.InitialQty,
		Price:      p.EntryPrice,
		At:         p.EntryAt,
	}
	if err := o.deps.Bus.PublishTrade(ctx, ev); err != nil {
		o.logger.Error("trade publish failed", slog.String("error", err.Error()))
	}
	if err := o.deps.Notifier.NotifyTrade(ctx, ev); err != nil {
		o.logger.Warn("trade notification failed", slog.String("error", err.Error()))
	}
	return nil
}

// inBuyWindow reports whether now falls inside the configured buy window.
// Exits are exempt; only entries are gated.
func (o *Orchestrator) inBuyWindow(now time.Time) bool {
	start, err1 := time.Parse("15:04", o.cfg.Cycle.BuyWindowStart)
	end, err2 := time.Parse("15:04", o.cfg.Cycle.BuyWindowEnd)
	if err1 != nil || err2 != nil {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	startMin := start.Hour()*60 + start.Minute()
	endMin := end.Hour()*60 + end.Minute()
	return minutes >= startMin && minutes <= endMin
}

func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if err := o.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		o.logger.Warn("notification failed", slog.String("error", err.Error()))
	}
}

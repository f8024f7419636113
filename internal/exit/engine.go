// Package exit evaluates every open position each cycle against trailing
// stop tiers, partial profit targets, and the time exit, and emits ordered
// sell instructions. It runs every cycle regardless of any buy-window
// restriction.
package exit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
	"github.com/kmatsuda/swingtrader/internal/ledger"
)

// Engine is the exit engine. The sweep may run in parallel across symbols;
// all mutations funnel through the ledger's single writer.
type Engine struct {
	cfg    config.ExitConfig
	tiers  config.TiersConfig
	ledger *ledger.Ledger
	logger *slog.Logger
}

// New creates an exit engine over the given ledger.
func New(cfg config.ExitConfig, tiers config.TiersConfig, l *ledger.Ledger, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		tiers:  tiers,
		ledger: l,
		logger: logger.With(slog.String("component", "exit_engine")),
	}
}

// Sweep evaluates all open positions against the given quotes and returns
// sell instructions. Within each (symbol, tier) queue instructions are
// ordered oldest entry first; B1 and B2 queues never interleave. The
// per-symbol evaluation runs concurrently, but the returned slice is
// assembled in deterministic symbol order.
func (e *Engine) Sweep(ctx context.Context, quotes map[string]domain.Quote, now time.Time) []domain.ExitInstruction {
	symbols := e.ledger.OpenSymbols()
	if len(symbols) == 0 {
		return nil
	}

	var mu sync.Mutex
	perSymbol := make(map[string][]domain.ExitInstruction, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, symbol := range symbols {
		g.Go(func() error {
			q, hasQuote := quotes[symbol]
			instrs := e.evaluateSymbol(gctx, symbol, q, hasQuote, now)
			if len(instrs) > 0 {
				mu.Lock()
				perSymbol[symbol] = instrs
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.ExitInstruction
	for _, symbol := range symbols {
		out = append(out, perSymbol[symbol]...)
	}
	return out
}

// evaluateSymbol walks both tier queues for one symbol in FIFO order.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, q domain.Quote, hasQuote bool, now time.Time) []domain.ExitInstruction {
	var out []domain.ExitInstruction
	for _, tier := range domain.Tiers {
		for _, p := range e.ledger.OpenPositions(symbol, tier) {
			out = append(out, e.evaluatePosition(ctx, p, q, hasQuote, now)...)
		}
	}
	return out
}

// evaluatePosition applies the exit priority for a single position:
// stop-loss, then time exit, then partial targets. Stops and time exits are
// safety-first and always checked before targets. A missing quote never
// skips the position outright: the time exit needs no price and still runs.
func (e *Engine) evaluatePosition(ctx context.Context, p domain.Position, q domain.Quote, hasQuote bool, now time.Time) []domain.ExitInstruction {
	log := e.logger.With(
		slog.String("position_id", p.ID),
		slog.String("symbol", p.Symbol),
		slog.String("tier", string(p.Tier)),
	)

	if !hasQuote {
		log.Error("no quote for open position, evaluating time exit only")
	} else {
		p = e.ratchet(ctx, p, q.Price, log)

		stopBasis := q.Price
		if e.cfg.IntradayStops && q.Low > 0 {
			stopBasis = q.Low
		}
		if stopBasis <= p.StopPrice {
			return []domain.ExitInstruction{{
				PositionID: p.ID,
				Symbol:     p.Symbol,
				Tier:       p.Tier,
				Quantity:   p.RemainingQty,
				Reason:     domain.ExitReasonStop,
				EvalPrice:  q.Price,
			}}
		}
	}

	if p.HoldingDays(now) >= e.tiers.ForTier(string(p.Tier)).TimeExitDays {
		return []domain.ExitInstruction{{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Tier:       p.Tier,
			Quantity:   p.RemainingQty,
			Reason:     domain.ExitReasonTimeExit,
			EvalPrice:  q.Price,
		}}
	}

	if !hasQuote {
		return nil
	}
	return e.evaluateTargets(p, q)
}

// ratchet tightens the stop as unrealized profit crosses the tier
// thresholds. Transitions are one-directional; the ledger refuses any
// downward move. A failed persist is fatal for that mutation: the position
// keeps its current (tighter-or-equal) stop for this cycle's trigger check.
func (e *Engine) ratchet(ctx context.Context, p domain.Position, price float64, log *slog.Logger) domain.Position {
	profit := p.UnrealizedPct(price)

	var stop float64
	var tier domain.StopTier
	switch {
	case profit >= e.cfg.Tier2ProfitPct:
		stop = p.EntryPrice * (1 - e.cfg.Tier2StopPct)
		tier = domain.StopTier2
	case profit >= e.cfg.Tier1ProfitPct:
		stop = p.EntryPrice * (1 - e.cfg.Tier1StopPct)
		tier = domain.StopTier1
	default:
		return p
	}
	if tier <= p.StopTier {
		return p
	}

	if err := e.ledger.RatchetStop(ctx, p.ID, stop, tier); err != nil {
		log.Error("stop ratchet failed", slog.String("error", err.Error()))
		return p
	}
	if stop > p.StopPrice {
		p.StopPrice = stop
	}
	p.StopTier = tier
	return p
}

// evaluateTargets emits an instruction for every unfired target whose
// profit level has been reached, in order. When price gaps through several
// levels in one cycle each target consumes its own slice of the original
// quantity.
func (e *Engine) evaluateTargets(p domain.Position, q domain.Quote) []domain.ExitInstruction {
	profit := p.UnrealizedPct(q.Price)
	levels := [3]float64{e.cfg.Target1ProfitPct, e.cfg.Target2ProfitPct, e.cfg.Target3ProfitPct}
	reasons := [3]domain.ExitReason{domain.ExitReasonPT1, domain.ExitReasonPT2, domain.ExitReasonPT3}

	var out []domain.ExitInstruction
	available := p.RemainingQty
	for i := 0; i < 3; i++ {
		if p.TargetsFired[i] || profit < levels[i] {
			continue
		}
		qty := e.targetSlice(p.InitialQty, i)
		if qty > available {
			qty = available
		}
		if qty <= 0 {
			continue
		}
		out = append(out, domain.ExitInstruction{
			PositionID: p.ID,
			Symbol:     p.Symbol,
			Tier:       p.Tier,
			Quantity:   qty,
			Reason:     reasons[i],
			EvalPrice:  q.Price,
		})
		available -= qty
	}
	return out
}

// targetSlice computes the share count for one target as a fraction of the
// ORIGINAL initial quantity. The final slice absorbs the rounding remainder
// so the three slices always sum to the initial quantity.
func (e *Engine) targetSlice(initial int64, idx int) int64 {
	total := decimal.NewFromInt(initial)
	s1 := total.Mul(decimal.NewFromFloat(e.cfg.Target1SlicePct)).Floor().IntPart()
	s2 := total.Mul(decimal.NewFromFloat(e.cfg.Target2SlicePct)).Floor().IntPart()
	switch idx {
	case 0:
		return s1
	case 1:
		return s2
	default:
		return initial - s1 - s2
	}
}


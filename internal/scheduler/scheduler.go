// Package scheduler aggregates tier-qualified signals across the watchlist
// for one monitoring window, enforces capital, position-count, and daily-buy
// caps, ranks by score, and emits a bounded ordered buy plan. Rank is
// score-first, never arrival-first: a lower-scored signal must not execute
// ahead of a higher-scored, still-valid one.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
	"github.com/kmatsuda/swingtrader/internal/scorer"
)

// BuyOrder is one accepted entry in the buy plan, in execution order.
type BuyOrder struct {
	Signal   domain.Signal
	Tier     domain.Tier
	Quantity int64
	Notional float64
	Price    float64
}

// Drop reasons recorded in the journal.
const (
	DropExpired  = "EXPIRED"  // mandatory gates no longer pass at execution time
	DropDisabled = "DISABLED" // signal type switched off
	DropWindow   = "WINDOW"   // monitoring window elapsed before execution
	DropCap      = "CAP"      // a capital / count cap rejected the candidate
	DropUnsized  = "UNSIZED"  // no quote or zero-share size
)

// Drop records a signal leaving the window without executing.
type Drop struct {
	Signal domain.Signal
	Reason string
}

// LedgerView is the read-only slice of the position ledger the scheduler
// consults for cap checks.
type LedgerView interface {
	HasOpen(symbol string, tier domain.Tier) bool
	CountOpen(tier domain.Tier) int
	CountOpenForSymbol(symbol string, tier domain.Tier) int
	OpenNotional() float64
}

// RevalidateFunc re-runs the mandatory gates for a symbol against fresh
// data. It returns the scoring result; a gate failure or error expires the
// signal regardless of its score.
type RevalidateFunc func(ctx context.Context, symbol string) (scorer.Result, error)

type pendingKey struct {
	symbol string
	tier   domain.Tier
}

// Scheduler owns the monitoring window. Signals never outlive one window:
// they are discarded after execution, expiry, or a cap rejection.
type Scheduler struct {
	mu      sync.Mutex
	capital config.CapitalConfig
	tiers   config.TiersConfig
	window  map[pendingKey]domain.Signal
	logger  *slog.Logger
}

// New creates an empty scheduler.
func New(capital config.CapitalConfig, tiers config.TiersConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		capital: capital,
		tiers:   tiers,
		window:  make(map[pendingKey]domain.Signal),
		logger:  logger.With(slog.String("component", "scheduler")),
	}
}

// Collect admits a tier-qualified signal into the monitoring window. The
// enable flags are consulted here (collection stage); a disabled type is
// rejected outright. A repeat signal for the same (symbol, tier) keeps its
// original detection time so ranking ties stay stable.
func (s *Scheduler) Collect(sig domain.Signal, flags config.SignalFlags) bool {
	if !flags.Allowed(string(sig.Pattern.Type())) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := pendingKey{sig.Symbol, sig.ProposedTier}
	if existing, ok := s.window[k]; ok {
		sig.DetectedAt = existing.DetectedAt
	}
	s.window[k] = sig
	return true
}

// PendingCount returns the number of signals in the window.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.window)
}

// Plan produces the cycle's ordered buy plan. Steps: expire window
// stragglers, revalidate every surviving signal (gates and flags), rank by
// score descending with detection-time tie-break, then walk the ranked list
// accepting candidates while all caps hold. Rejected candidates leave the
// window and are not retried within it.
func (s *Scheduler) Plan(
	ctx context.Context,
	equity float64,
	dailyBuys int64,
	flags config.SignalFlags,
	ledger LedgerView,
	quotes map[string]domain.Quote,
	revalidate RevalidateFunc,
	now time.Time,
) ([]BuyOrder, []Drop) {
	s.mu.Lock()
	pending := make([]domain.Signal, 0, len(s.window))
	var drops []Drop
	for k, sig := range s.window {
		if now.Sub(sig.DetectedAt) > s.capital.MonitorWindow.Duration {
			drops = append(drops, Drop{Signal: sig, Reason: DropWindow})
			delete(s.window, k)
			continue
		}
		pending = append(pending, sig)
	}
	s.mu.Unlock()

	// Revalidation stage: flags and mandatory gates, both re-read here.
	survivors := pending[:0]
	for _, sig := range pending {
		if !flags.Allowed(string(sig.Pattern.Type())) {
			drops = append(drops, Drop{Signal: sig, Reason: DropDisabled})
			s.remove(sig)
			continue
		}
		res, err := revalidate(ctx, sig.Symbol)
		if err != nil || !res.Eligible {
			drops = append(drops, Drop{Signal: sig, Reason: DropExpired})
			s.remove(sig)
			continue
		}
		sig.RevalidatedAt = now
		survivors = append(survivors, sig)
	}

	// Rank: score first, then earliest detection, then symbol for full
	// determinism.
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].Score != survivors[j].Score {
			return survivors[i].Score > survivors[j].Score
		}
		if !survivors[i].DetectedAt.Equal(survivors[j].DetectedAt) {
			return survivors[i].DetectedAt.Before(survivors[j].DetectedAt)
		}
		return survivors[i].Symbol < survivors[j].Symbol
	})

	var (
		plan             []BuyOrder
		acceptedNotional float64
		acceptedTier     = map[domain.Tier]int{}
		acceptedStock    = map[pendingKey]int{}
		buysToday        = dailyBuys
	)
	openNotional := ledger.OpenNotional()

	for _, sig := range survivors {
		// Execution stage: the flag is consulted one final time. A toggle
		// flipped mid-window must stop the trade here even though collection
		// and revalidation already passed.
		if !flags.Allowed(string(sig.Pattern.Type())) {
			drops = append(drops, Drop{Signal: sig, Reason: DropDisabled})
			s.remove(sig)
			continue
		}

		// A B2 entry stacks on an open B1. The prerequisite held at
		// classification, but exits run before entries: if the B1 closed
		// while the signal sat in the window, the add no longer has a base
		// position and must not execute.
		if sig.ProposedTier == domain.TierB2 && !ledger.HasOpen(sig.Symbol, domain.TierB1) {
			drops = append(drops, Drop{Signal: sig, Reason: DropExpired})
			s.remove(sig)
			continue
		}

		tc := s.tiers.ForTier(string(sig.ProposedTier))
		k := pendingKey{sig.Symbol, sig.ProposedTier}

		if buysToday >= int64(s.capital.DailyBuyCap) {
			drops = append(drops, Drop{Signal: sig, Reason: DropCap})
			s.remove(sig)
			continue
		}
		if ledger.CountOpen(sig.ProposedTier)+acceptedTier[sig.ProposedTier] >= tc.MaxPositionsGlobal {
			drops = append(drops, Drop{Signal: sig, Reason: DropCap})
			s.remove(sig)
			continue
		}
		if ledger.CountOpenForSymbol(sig.Symbol, sig.ProposedTier)+acceptedStock[k] >= tc.MaxPositionsPerStock {
			drops = append(drops, Drop{Signal: sig, Reason: DropCap})
			s.remove(sig)
			continue
		}

		q, ok := quotes[sig.Symbol]
		if !ok || q.Price <= 0 {
			drops = append(drops, Drop{Signal: sig, Reason: DropUnsized})
			s.remove(sig)
			continue
		}

		notional := s.size(tc, equity, openNotional+acceptedNotional)
		qty := decimal.NewFromFloat(notional).
			Div(decimal.NewFromFloat(q.Price)).
			Floor().IntPart()
		if qty <= 0 {
			drops = append(drops, Drop{Signal: sig, Reason: DropUnsized})
			s.remove(sig)
			continue
		}
		spend := float64(qty) * q.Price

		if equity > 0 && (openNotional+acceptedNotional+spend)/equity > s.capital.MaxUtilizationPct {
			drops = append(drops, Drop{Signal: sig, Reason: DropCap})
			s.remove(sig)
			continue
		}

		plan = append(plan, BuyOrder{
			Signal:   sig,
			Tier:     sig.ProposedTier,
			Quantity: qty,
			Notional: spend,
			Price:    q.Price,
		})
		acceptedNotional += spend
		acceptedTier[sig.ProposedTier]++
		acceptedStock[k]++
		buysToday++
		s.remove(sig)
	}

	if len(plan) > 0 || len(drops) > 0 {
		s.logger.Info("buy plan built",
			slog.Int("accepted", len(plan)),
			slog.Int("dropped", len(drops)),
		)
	}
	return plan, drops
}

// size computes the base notional for one entry. When conservation mode is
// on and utilization exceeds the trigger fraction of the cap, the size is
// halved before the cap check.
func (s *Scheduler) size(tc config.TierConfig, equity, deployed float64) float64 {
	var base decimal.Decimal
	switch tc.SizingMode {
	case "fixed_dollar":
		base = decimal.NewFromFloat(tc.FixedDollar)
	case "percent_of_base":
		base = decimal.NewFromFloat(tc.FixedBase).Mul(decimal.NewFromFloat(tc.PercentOfBase))
	default: // percent_of_equity
		base = decimal.NewFromFloat(equity).Mul(decimal.NewFromFloat(tc.PercentOfEquity))
	}

	if s.capital.ConservationMode && equity > 0 {
		utilization := deployed / equity
		if utilization > s.capital.ConservationTrigger*s.capital.MaxUtilizationPct {
			base = base.Div(decimal.NewFromInt(2))
		}
	}
	f, _ := base.Float64()
	return f
}

// remove drops a signal from the window.
func (s *Scheduler) remove(sig domain.Signal) {
	s.mu.Lock()
	delete(s.window, pendingKey{sig.Symbol, sig.ProposedTier})
	s.mu.Unlock()
}

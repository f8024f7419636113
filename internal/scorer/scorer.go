// Package scorer converts an indicator snapshot into a 0-5 (+bonus) score
// and a classified pattern label, or "no signal" when any mandatory gate
// fails.
package scorer

import (
	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

// Result is the outcome of scoring one symbol for one cycle.
type Result struct {
	Eligible bool
	// FailedGate names the first failed mandatory gate when Eligible is
	// false. No score is computed for an ineligible snapshot.
	FailedGate string
	Score      float64
	Pattern    domain.Pattern
}

// Scorer evaluates mandatory gates and score components. It is a pure
// function of the snapshot plus configuration; it performs no I/O.
type Scorer struct {
	cfg config.ScoringConfig
}

// New creates a Scorer with the given parameters.
func New(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Gate names reported in Result.FailedGate and in the journal.
const (
	GateUptrend  = "uptrend"
	GateWeekly   = "weekly_above_ema21"
	GateMonthly  = "monthly_above_ema10"
	GatePullback = "pullback_higher_high"
	GatePattern  = "reversal_pattern"
	GateStalling = "stalling"
	GateGap      = "extended_gap"
)

// CheckGates evaluates every mandatory gate and returns the name of the
// first failure, or "" when all pass. Gate order is fixed so journal entries
// are comparable across cycles.
func (s *Scorer) CheckGates(snap domain.IndicatorSnapshot) string {
	if !(snap.SMA50 > snap.SMA200 && snap.EMA21 > snap.SMA50) {
		return GateUptrend
	}
	if !(snap.WeeklyClose > snap.WeeklyEMA21) {
		return GateWeekly
	}
	if !(snap.MonthlyClose > snap.MonthlyEMA10) {
		return GateMonthly
	}
	if !((snap.NearEMA21 || snap.NearSMA50) && snap.HigherHigh) {
		return GatePullback
	}
	if !snap.SwingPattern.IsSwing() {
		// A touch without a reversal pattern is an observation, not an
		// actionable setup.
		return GatePattern
	}
	if !(snap.RangeLongPct <= s.cfg.StallRangeLongMaxPct || snap.RangeShortPct <= s.cfg.StallRangeShortMaxPct) {
		return GateStalling
	}
	if s.cfg.GapFilterEnabled && snap.GapUpPct > s.cfg.GapMaxPct {
		return GateGap
	}
	return ""
}

// Score evaluates the snapshot. Components are independent and
// order-insensitive; each contributes exactly one point. Bonuses are
// strictly additive and capped, and never influence the pattern label.
func (s *Scorer) Score(snap domain.IndicatorSnapshot) Result {
	if gate := s.CheckGates(snap); gate != "" {
		return Result{Eligible: false, FailedGate: gate}
	}

	score := 0.0
	if snap.Return > snap.BenchmarkReturn {
		score++
	}
	if snap.WeeklyClose > snap.WeeklyEMA21 {
		score++
	}
	if snap.MonthlyClose > snap.MonthlyEMA10 {
		score++
	}
	if snap.AvgVolume > 0 && snap.Volume > snap.AvgVolume {
		score++
	}
	if s.inDemandZone(snap) {
		score++
	}

	bonus := 0.0
	if snap.TouchedEMA21 {
		bonus += s.cfg.BonusPerTouch
	}
	if snap.TouchedSMA50 {
		bonus += s.cfg.BonusPerTouch
	}
	if bonus > s.cfg.BonusCap {
		bonus = s.cfg.BonusCap
	}

	return Result{
		Eligible: true,
		Score:    score + bonus,
		Pattern:  Classify(snap),
	}
}

// inDemandZone reports whether the current low sits within the configured
// band above the trailing 21-day low.
func (s *Scorer) inDemandZone(snap domain.IndicatorSnapshot) bool {
	if snap.Low21d <= 0 {
		return false
	}
	return (snap.Low-snap.Low21d)/snap.Low21d <= s.cfg.DemandZoneBandPct
}

// Classify returns the single pattern label for a snapshot. A detected swing
// reversal always wins; touch labels apply only when no swing pattern was
// found. The label is computed exactly once and never reassigned, so a touch
// can never overwrite a swing classification.
func Classify(snap domain.IndicatorSnapshot) domain.Pattern {
	switch {
	case snap.SwingPattern.IsSwing():
		return snap.SwingPattern
	case snap.NearEMA21:
		return domain.PatternEMA21Touch
	case snap.NearSMA50:
		return domain.PatternSMA50Touch
	default:
		return domain.PatternNone
	}
}

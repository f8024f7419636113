package scorer

import (
	"testing"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

func testConfig() config.ScoringConfig {
	return config.ScoringConfig{
		PullbackBandPct:       0.02,
		HigherHighDays:        10,
		StallRangeLongDays:    40,
		StallRangeLongMaxPct:  0.25,
		StallRangeShortDays:   10,
		StallRangeShortMaxPct: 0.07,
		GapFilterEnabled:      true,
		GapMaxPct:             0.08,
		GapLookbackDays:       10,
		OutperformDays:        63,
		VolumeAvgDays:         20,
		DemandZoneBandPct:     0.03,
		BonusPerTouch:         0.5,
		BonusCap:              1.0,
	}
}

// passingSnapshot satisfies every mandatory gate and every score component.
func passingSnapshot() domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Symbol: "AAPL",
		Close:  150, Open: 148, High: 151, Low: 147, Volume: 2_000_000,
		SMA50: 145, SMA200: 130, EMA21: 148,
		WeeklyClose: 150, WeeklyEMA21: 140,
		MonthlyClose: 150, MonthlyEMA10: 135,
		AvgVolume: 1_500_000,
		Low21d:    146,
		HigherHigh:   true,
		NearEMA21:    true,
		NearSMA50:    false,
		RangeLongPct: 0.20, RangeShortPct: 0.05,
		GapUpPct: 0.02,
		Return:   0.15, BenchmarkReturn: 0.05,
		TouchedEMA21: true,
		TouchedSMA50: false,
		SwingPattern: domain.PatternEngulfing,
	}
}

func TestCheckGates_AllPass(t *testing.T) {
	s := New(testConfig())
	if gate := s.CheckGates(passingSnapshot()); gate != "" {
		t.Fatalf("expected all gates to pass, failed at %q", gate)
	}
}

func TestCheckGates_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.IndicatorSnapshot)
		want   string
	}{
		{"sma50 below sma200", func(s *domain.IndicatorSnapshot) { s.SMA200 = 160 }, GateUptrend},
		{"ema21 below sma50", func(s *domain.IndicatorSnapshot) { s.EMA21 = 140 }, GateUptrend},
		{"weekly below ema21", func(s *domain.IndicatorSnapshot) { s.WeeklyEMA21 = 155 }, GateWeekly},
		{"monthly below ema10", func(s *domain.IndicatorSnapshot) { s.MonthlyEMA10 = 155 }, GateMonthly},
		{"no pullback touch", func(s *domain.IndicatorSnapshot) { s.NearEMA21, s.NearSMA50 = false, false }, GatePullback},
		{"no higher high", func(s *domain.IndicatorSnapshot) { s.HigherHigh = false }, GatePullback},
		{"touch without pattern", func(s *domain.IndicatorSnapshot) { s.SwingPattern = domain.PatternNone }, GatePattern},
		{"not stalling", func(s *domain.IndicatorSnapshot) { s.RangeLongPct, s.RangeShortPct = 0.40, 0.20 }, GateStalling},
		{"extended gap", func(s *domain.IndicatorSnapshot) { s.GapUpPct = 0.12 }, GateGap},
	}
	s := New(testConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := passingSnapshot()
			tt.mutate(&snap)
			if got := s.CheckGates(snap); got != tt.want {
				t.Errorf("got gate %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckGates_StallingEitherWindow(t *testing.T) {
	s := New(testConfig())

	// Long window too wide but short window tight: still passes.
	snap := passingSnapshot()
	snap.RangeLongPct = 0.40
	snap.RangeShortPct = 0.05
	if gate := s.CheckGates(snap); gate != "" {
		t.Errorf("tight short window should pass, failed at %q", gate)
	}

	// Gap filter disabled: extended gap no longer blocks.
	cfg := testConfig()
	cfg.GapFilterEnabled = false
	snap = passingSnapshot()
	snap.GapUpPct = 0.20
	if gate := New(cfg).CheckGates(snap); gate != "" {
		t.Errorf("disabled gap filter should pass, failed at %q", gate)
	}
}

func TestScore_AllComponentsAndBonus(t *testing.T) {
	s := New(testConfig())
	res := s.Score(passingSnapshot())
	if !res.Eligible {
		t.Fatalf("expected eligible, failed gate %q", res.FailedGate)
	}
	// Five components plus one 0.5 touch bonus.
	if res.Score != 5.5 {
		t.Errorf("score = %.2f, want 5.5", res.Score)
	}
	if res.Pattern != domain.PatternEngulfing {
		t.Errorf("pattern = %q, want engulfing", res.Pattern)
	}
}

func TestScore_BonusCap(t *testing.T) {
	cfg := testConfig()
	cfg.BonusPerTouch = 0.75
	s := New(cfg)
	snap := passingSnapshot()
	snap.TouchedEMA21 = true
	snap.TouchedSMA50 = true
	res := s.Score(snap)
	// 5 components + min(1.5, cap 1.0)
	if res.Score != 6.0 {
		t.Errorf("score = %.2f, want 6.0 with capped bonus", res.Score)
	}
}

func TestScore_IneligibleHasNoScore(t *testing.T) {
	s := New(testConfig())
	snap := passingSnapshot()
	snap.SMA200 = 200
	res := s.Score(snap)
	if res.Eligible {
		t.Fatal("expected ineligible")
	}
	if res.Score != 0 {
		t.Errorf("ineligible snapshot must carry no score, got %.2f", res.Score)
	}
	if res.FailedGate != GateUptrend {
		t.Errorf("failed gate = %q, want %q", res.FailedGate, GateUptrend)
	}
}

func TestScore_ComponentsIndependent(t *testing.T) {
	s := New(testConfig())

	tests := []struct {
		name   string
		mutate func(*domain.IndicatorSnapshot)
		want   float64
	}{
		{"no outperformance", func(sn *domain.IndicatorSnapshot) { sn.Return = 0.01 }, 4.5},
		{"no volume expansion", func(sn *domain.IndicatorSnapshot) { sn.Volume = 1_000_000 }, 4.5},
		{"outside demand zone", func(sn *domain.IndicatorSnapshot) { sn.Low = 160 }, 4.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := passingSnapshot()
			tt.mutate(&snap)
			res := s.Score(snap)
			if !res.Eligible {
				t.Fatalf("unexpectedly ineligible: %q", res.FailedGate)
			}
			if res.Score != tt.want {
				t.Errorf("score = %.2f, want %.2f", res.Score, tt.want)
			}
		})
	}
}

func TestClassify_SwingWinsOverTouch(t *testing.T) {
	// The regression this guards: a pullback touch must never relabel a
	// detected reversal pattern.
	snap := passingSnapshot()
	snap.SwingPattern = domain.PatternTweezer
	snap.NearEMA21 = true
	if got := Classify(snap); got != domain.PatternTweezer {
		t.Errorf("got %q, want tweezer_bottom despite EMA21 touch", got)
	}

	snap.SwingPattern = domain.PatternNone
	if got := Classify(snap); got != domain.PatternEMA21Touch {
		t.Errorf("got %q, want ema21_touch without a swing pattern", got)
	}

	snap.NearEMA21 = false
	snap.NearSMA50 = true
	if got := Classify(snap); got != domain.PatternSMA50Touch {
		t.Errorf("got %q, want sma50_touch", got)
	}

	snap.NearSMA50 = false
	if got := Classify(snap); got != domain.PatternNone {
		t.Errorf("got %q, want none", got)
	}
}

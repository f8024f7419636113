package indicator

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

// touchState is the per-symbol sticky touch record. It resets whenever the
// SMA50 crosses above the SMA200, marking a new trend.
type touchState struct {
	touchedEMA21 bool
	touchedSMA50 bool
	sma50Above   bool
	seen         bool
}

// TouchTracker remembers which moving averages a symbol has touched since
// the last golden-cross trend reset.
type TouchTracker struct {
	mu     sync.Mutex
	states map[string]*touchState
}

// NewTouchTracker creates an empty tracker.
func NewTouchTracker() *TouchTracker {
	return &TouchTracker{states: make(map[string]*touchState)}
}

// Update records this cycle's touch observations and returns the sticky
// touch flags after applying any trend reset.
func (t *TouchTracker) Update(symbol string, nearEMA21, nearSMA50 bool, sma50, sma200 float64) (bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[symbol]
	if !ok {
		st = &touchState{}
		t.states[symbol] = st
	}

	above := sma50 > sma200
	if st.seen && above && !st.sma50Above {
		// Golden cross: new trend, bonuses start over.
		st.touchedEMA21 = false
		st.touchedSMA50 = false
	}
	st.sma50Above = above
	st.seen = true

	if nearEMA21 {
		st.touchedEMA21 = true
	}
	if nearSMA50 {
		st.touchedSMA50 = true
	}
	return st.touchedEMA21, st.touchedSMA50
}

// Engine builds per-symbol indicator snapshots from raw bars.
type Engine struct {
	cfg     config.ScoringConfig
	touches *TouchTracker
}

// NewEngine creates an indicator engine with the given scoring parameters.
func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg, touches: NewTouchTracker()}
}

// minDailyBars is the history needed for the SMA200 plus return lookbacks.
const minDailyBars = 200

// Snapshot computes the full indicator state for one symbol. benchmark may
// share bars with daily when the symbol is the benchmark itself.
func (e *Engine) Snapshot(symbol string, daily, weekly, monthly, benchmark []domain.Bar, asOf time.Time) (domain.IndicatorSnapshot, error) {
	if len(daily) < minDailyBars {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s: %d daily bars, need %d: %w",
			symbol, len(daily), minDailyBars, domain.ErrDataUnavailable)
	}
	if len(weekly) < 21 || len(monthly) < 10 {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s: insufficient weekly/monthly history: %w",
			symbol, domain.ErrDataUnavailable)
	}

	closes := Closes(daily)
	last := daily[len(daily)-1]

	sma50, err := SMA(closes, 50)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s sma50: %w", symbol, err)
	}
	sma200, err := SMA(closes, 200)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s sma200: %w", symbol, err)
	}
	ema21, err := EMA(closes, 21)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s ema21: %w", symbol, err)
	}
	weeklyEMA21, err := EMA(Closes(weekly), 21)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s weekly ema21: %w", symbol, err)
	}
	monthlyEMA10, err := EMA(Closes(monthly), 10)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s monthly ema10: %w", symbol, err)
	}

	rangeLong, err := RangePct(daily, e.cfg.StallRangeLongDays)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s long range: %w", symbol, err)
	}
	rangeShort, err := RangePct(daily, e.cfg.StallRangeShortDays)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s short range: %w", symbol, err)
	}
	low21, err := LowestLow(daily, 21)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s 21d low: %w", symbol, err)
	}
	avgVol, err := AvgVolume(daily, e.cfg.VolumeAvgDays)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s avg volume: %w", symbol, err)
	}
	symReturn, err := ReturnOver(daily, e.cfg.OutperformDays)
	if err != nil {
		return domain.IndicatorSnapshot{}, fmt.Errorf("indicator: %s return: %w", symbol, err)
	}
	benchReturn := 0.0
	if len(benchmark) > e.cfg.OutperformDays {
		if r, rErr := ReturnOver(benchmark, e.cfg.OutperformDays); rErr == nil {
			benchReturn = r
		}
	}

	nearEMA21 := withinBand(last.Close, ema21, e.cfg.PullbackBandPct)
	nearSMA50 := withinBand(last.Close, sma50, e.cfg.PullbackBandPct)
	touched21, touched50 := e.touches.Update(symbol, nearEMA21, nearSMA50, sma50, sma200)

	return domain.IndicatorSnapshot{
		Symbol:          symbol,
		AsOf:            asOf,
		Close:           last.Close,
		Open:            last.Open,
		High:            last.High,
		Low:             last.Low,
		Volume:          last.Volume,
		SMA50:           sma50,
		SMA200:          sma200,
		EMA21:           ema21,
		WeeklyClose:     weekly[len(weekly)-1].Close,
		WeeklyEMA21:     weeklyEMA21,
		MonthlyClose:    monthly[len(monthly)-1].Close,
		MonthlyEMA10:    monthlyEMA10,
		AvgVolume:       avgVol,
		Low21d:          low21,
		HigherHigh:      HigherHigh(daily, e.cfg.HigherHighDays),
		NearEMA21:       nearEMA21,
		NearSMA50:       nearSMA50,
		RangeLongPct:    rangeLong,
		RangeShortPct:   rangeShort,
		GapUpPct:        MaxGapUpPct(daily, e.cfg.GapLookbackDays),
		Return:          symReturn,
		BenchmarkReturn: benchReturn,
		TouchedEMA21:    touched21,
		TouchedSMA50:    touched50,
		SwingPattern:    DetectBullishReversal(daily),
	}, nil
}

// withinBand reports whether price is within band (fractional) of the level.
func withinBand(price, level, band float64) bool {
	if level <= 0 {
		return false
	}
	return math.Abs(price-level)/level <= band
}

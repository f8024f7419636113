package domain

import "time"

// Pattern classifies what qualified a signal. Swing reversal patterns take
// priority over touch labels: the classification is computed once by a single
// pure function and never reassigned, so a touch can never overwrite a
// detected swing pattern.
type Pattern string

const (
	PatternNone       Pattern = ""
	PatternEngulfing  Pattern = "engulfing"
	PatternPiercing   Pattern = "piercing"
	PatternTweezer    Pattern = "tweezer_bottom"
	PatternEMA21Touch Pattern = "ema21_touch"
	PatternSMA50Touch Pattern = "sma50_touch"
)

// IsSwing reports whether the pattern is a bullish reversal candlestick
// formation rather than a moving-average touch.
func (p Pattern) IsSwing() bool {
	switch p {
	case PatternEngulfing, PatternPiercing, PatternTweezer:
		return true
	default:
		return false
	}
}

// SignalType groups patterns for the enable-flag surface: swing patterns,
// EMA21 touches, and SMA50 touches can each be switched off independently.
type SignalType string

const (
	SignalTypeSwing   SignalType = "swing"
	SignalTypeEMA21   SignalType = "ema21_touch"
	SignalTypeSMA50   SignalType = "sma50_touch"
	SignalTypeUnknown SignalType = "unknown"
)

// Type returns the signal type a pattern belongs to.
func (p Pattern) Type() SignalType {
	switch {
	case p.IsSwing():
		return SignalTypeSwing
	case p == PatternEMA21Touch:
		return SignalTypeEMA21
	case p == PatternSMA50Touch:
		return SignalTypeSMA50
	default:
		return SignalTypeUnknown
	}
}

// Signal is an ephemeral per-symbol scoring result. It lives only inside one
// monitoring window and carries no reference back to any position.
type Signal struct {
	ID            string
	Symbol        string
	Score         float64
	Pattern       Pattern
	ProposedTier  Tier
	DetectedAt    time.Time
	RevalidatedAt time.Time
}

// IndicatorSnapshot is the per-symbol indicator state consumed by the scorer.
// It is a pure value computed from raw bars; the scorer performs no I/O.
type IndicatorSnapshot struct {
	Symbol string
	AsOf   time.Time

	Close  float64
	Open   float64
	High   float64
	Low    float64
	Volume float64

	SMA50  float64
	SMA200 float64
	EMA21  float64

	WeeklyClose  float64
	WeeklyEMA21  float64
	MonthlyClose float64
	MonthlyEMA10 float64

	AvgVolume float64
	Low21d    float64

	// HigherHigh reports a higher high inside the configured lookback.
	HigherHigh bool

	// NearEMA21 / NearSMA50 report the pullback condition: price within the
	// configured band of the moving average.
	NearEMA21 bool
	NearSMA50 bool

	// RangeLongPct / RangeShortPct are the high-low ranges over the long and
	// short stalling windows, as a fraction of the window low.
	RangeLongPct  float64
	RangeShortPct float64

	// GapUpPct is the largest open-over-previous-close gap inside the
	// extended-gap lookback.
	GapUpPct float64

	// Return and BenchmarkReturn cover the same outperformance lookback.
	Return          float64
	BenchmarkReturn float64

	// TouchedEMA21 / TouchedSMA50 are sticky since the last golden-cross
	// trend reset; they drive the bonus components.
	TouchedEMA21 bool
	TouchedSMA50 bool

	// SwingPattern is the detected bullish reversal pattern, if any. Only
	// swing variants appear here; touch labels are derived by the scorer.
	SwingPattern Pattern
}

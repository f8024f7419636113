// Package indicator computes moving averages, ranges, and candlestick
// pattern flags from raw OHLCV bars. Everything here is a pure function of
// its inputs; the only state is the touch tracker, which is sticky between
// cycles by design.
package indicator

import (
	"errors"
	"math"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// SMA computes the simple moving average of the last period values.
func SMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period), nil
}

// EMA computes the exponential moving average over the full series, seeded
// with the SMA of the first period values.
func EMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(values) < period {
		return 0, errors.New("not enough data for EMA calculation")
	}
	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	ema := seed / float64(period)
	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		ema = values[i]*k + ema*(1-k)
	}
	return ema, nil
}

// Closes extracts closing prices from bars.
func Closes(bars []domain.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// RangePct returns the high-low range over the last days bars as a fraction
// of the window low.
func RangePct(bars []domain.Bar, days int) (float64, error) {
	if len(bars) == 0 {
		return 0, errors.New("no bars provided")
	}
	start := len(bars) - days
	if start < 0 {
		start = 0
	}
	high := math.Inf(-1)
	low := math.Inf(1)
	for i := start; i < len(bars); i++ {
		if bars[i].High > high {
			high = bars[i].High
		}
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	if low <= 0 {
		return 0, errors.New("non-positive low in range window")
	}
	return (high - low) / low, nil
}

// LowestLow returns the lowest low of the last days bars.
func LowestLow(bars []domain.Bar, days int) (float64, error) {
	if len(bars) == 0 {
		return 0, errors.New("no bars provided")
	}
	start := len(bars) - days
	if start < 0 {
		start = 0
	}
	low := math.Inf(1)
	for i := start; i < len(bars); i++ {
		if bars[i].Low < low {
			low = bars[i].Low
		}
	}
	return low, nil
}

// HigherHigh reports whether any bar in the most recent days window printed
// a high above the highest high of the preceding window of the same length.
func HigherHigh(bars []domain.Bar, days int) bool {
	if len(bars) < 2*days {
		return false
	}
	prevHigh := math.Inf(-1)
	for i := len(bars) - 2*days; i < len(bars)-days; i++ {
		if bars[i].High > prevHigh {
			prevHigh = bars[i].High
		}
	}
	for i := len(bars) - days; i < len(bars); i++ {
		if bars[i].High > prevHigh {
			return true
		}
	}
	return false
}

// MaxGapUpPct returns the largest open-over-previous-close gap inside the
// last lookback bars.
func MaxGapUpPct(bars []domain.Bar, lookback int) float64 {
	start := len(bars) - lookback
	if start < 1 {
		start = 1
	}
	maxGap := 0.0
	for i := start; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		gap := (bars[i].Open - prev) / prev
		if gap > maxGap {
			maxGap = gap
		}
	}
	return maxGap
}

// ReturnOver returns the fractional close-to-close return over the last days
// bars.
func ReturnOver(bars []domain.Bar, days int) (float64, error) {
	if len(bars) < days+1 {
		return 0, errors.New("not enough data for return calculation")
	}
	base := bars[len(bars)-1-days].Close
	if base <= 0 {
		return 0, errors.New("non-positive base close")
	}
	return (bars[len(bars)-1].Close - base) / base, nil
}

// AvgVolume returns the average volume of the days bars preceding the most
// recent bar, so the current bar's volume can be compared against it.
func AvgVolume(bars []domain.Bar, days int) (float64, error) {
	if len(bars) < days+1 {
		return 0, errors.New("not enough data for volume average")
	}
	sum := 0.0
	for i := len(bars) - 1 - days; i < len(bars)-1; i++ {
		sum += bars[i].Volume
	}
	return sum / float64(days), nil
}

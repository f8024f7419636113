package indicator

import (
	"math"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// tweezerTolerance is the maximum relative distance between two lows for
// them to count as a tweezer bottom.
const tweezerTolerance = 0.002

func isBullish(b domain.Bar) bool { return b.Close > b.Open }
func isBearish(b domain.Bar) bool { return b.Close < b.Open }

// DetectBullishReversal inspects the last two completed bars and returns the
// detected swing reversal pattern, or PatternNone. Detection priority is
// engulfing, then piercing, then tweezer bottom.
func DetectBullishReversal(bars []domain.Bar) domain.Pattern {
	if len(bars) < 2 {
		return domain.PatternNone
	}
	prev := bars[len(bars)-2]
	cur := bars[len(bars)-1]

	if isBullishEngulfing(prev, cur) {
		return domain.PatternEngulfing
	}
	if isPiercingLine(prev, cur) {
		return domain.PatternPiercing
	}
	if isTweezerBottom(prev, cur) {
		return domain.PatternTweezer
	}
	return domain.PatternNone
}

// isBullishEngulfing: a bearish bar followed by a bullish bar whose real
// body engulfs the previous real body.
func isBullishEngulfing(prev, cur domain.Bar) bool {
	return isBearish(prev) && isBullish(cur) &&
		cur.Open <= prev.Close && cur.Close >= prev.Open
}

// isPiercingLine: a bearish bar followed by a bullish bar that opens below
// the previous close and closes above the midpoint of the previous body but
// below its open.
func isPiercingLine(prev, cur domain.Bar) bool {
	if !isBearish(prev) || !isBullish(cur) {
		return false
	}
	mid := (prev.Open + prev.Close) / 2
	return cur.Open < prev.Close && cur.Close > mid && cur.Close < prev.Open
}

// isTweezerBottom: a bearish bar and a bullish bar sharing (within
// tolerance) the same low.
func isTweezerBottom(prev, cur domain.Bar) bool {
	if !isBearish(prev) || !isBullish(cur) {
		return false
	}
	if prev.Low <= 0 {
		return false
	}
	return math.Abs(cur.Low-prev.Low)/prev.Low <= tweezerTolerance
}

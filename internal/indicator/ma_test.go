package indicator

import (
	"math"
	"testing"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	got, err := SMA(values, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 3) {
		t.Errorf("SMA(5) = %.4f, want 3", got)
	}

	got, err = SMA(values, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 4.5) {
		t.Errorf("SMA(2) = %.4f, want 4.5 (last two values only)", got)
	}

	if _, err := SMA(values, 6); err == nil {
		t.Error("expected error for period longer than series")
	}
	if _, err := SMA(values, 0); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestEMA_ConstantSeries(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 100
	}
	got, err := EMA(values, 21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 100) {
		t.Errorf("EMA of constant series = %.4f, want 100", got)
	}
}

func TestEMA_TracksRecentValues(t *testing.T) {
	// A series that steps up: the EMA must sit between the old level and the
	// new level, closer to recent prices than the plain average is.
	values := make([]float64, 60)
	for i := 0; i < 30; i++ {
		values[i] = 100
	}
	for i := 30; i < 60; i++ {
		values[i] = 110
	}
	ema, err := EMA(values, 21)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ema <= 105 || ema >= 110 {
		t.Errorf("EMA = %.4f, want within (105, 110)", ema)
	}
}

func TestRangePct(t *testing.T) {
	bars := []domain.Bar{
		{High: 110, Low: 100},
		{High: 120, Low: 105},
		{High: 115, Low: 95},
	}
	got, err := RangePct(bars, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// high 120, low 95 -> (120-95)/95
	want := 25.0 / 95.0
	if !almostEqual(got, want) {
		t.Errorf("RangePct = %.6f, want %.6f", got, want)
	}

	// Window larger than series just uses all bars.
	if _, err := RangePct(bars, 10); err != nil {
		t.Errorf("unexpected error for oversized window: %v", err)
	}
	if _, err := RangePct(nil, 5); err == nil {
		t.Error("expected error for empty series")
	}
}

func TestHigherHigh(t *testing.T) {
	mk := func(highs ...float64) []domain.Bar {
		bars := make([]domain.Bar, len(highs))
		for i, h := range highs {
			bars[i] = domain.Bar{High: h}
		}
		return bars
	}

	// Recent window prints 106 above the prior window's max 104.
	if !HigherHigh(mk(100, 102, 104, 103, 106, 105), 3) {
		t.Error("expected higher high")
	}
	// Recent window never exceeds the prior max.
	if HigherHigh(mk(100, 105, 104, 103, 102, 101), 3) {
		t.Error("expected no higher high")
	}
	// Not enough history for two full windows.
	if HigherHigh(mk(100, 101, 102), 3) {
		t.Error("expected false with insufficient history")
	}
}

func TestMaxGapUpPct(t *testing.T) {
	bars := []domain.Bar{
		{Open: 100, Close: 100},
		{Open: 101, Close: 102}, // 1% gap
		{Open: 110, Close: 108}, // ~7.8% gap over 102
		{Open: 107, Close: 109}, // gap down, ignored
	}
	got := MaxGapUpPct(bars, 10)
	want := 8.0 / 102.0
	if !almostEqual(got, want) {
		t.Errorf("MaxGapUpPct = %.6f, want %.6f", got, want)
	}

	if got := MaxGapUpPct(bars, 1); !almostEqual(got, 0) {
		t.Errorf("lookback 1 should only see the gap-down bar, got %.6f", got)
	}
}

func TestReturnOver(t *testing.T) {
	bars := []domain.Bar{
		{Close: 100}, {Close: 101}, {Close: 99}, {Close: 110},
	}
	got, err := ReturnOver(bars, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 0.10) {
		t.Errorf("ReturnOver = %.4f, want 0.10", got)
	}
	if _, err := ReturnOver(bars, 4); err == nil {
		t.Error("expected error when lookback exceeds history")
	}
}

func TestAvgVolume_ExcludesCurrentBar(t *testing.T) {
	bars := []domain.Bar{
		{Volume: 100}, {Volume: 200}, {Volume: 300}, {Volume: 9999},
	}
	got, err := AvgVolume(bars, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 200) {
		t.Errorf("AvgVolume = %.2f, want 200 (current bar excluded)", got)
	}
}

package indicator

import "testing"

func TestTouchTracker_Sticky(t *testing.T) {
	tr := NewTouchTracker()

	e21, s50 := tr.Update("AAPL", true, false, 150, 140)
	if !e21 || s50 {
		t.Fatalf("after first touch: ema21=%v sma50=%v, want true/false", e21, s50)
	}

	// No touch this cycle: the earlier EMA21 touch persists.
	e21, s50 = tr.Update("AAPL", false, true, 150, 140)
	if !e21 || !s50 {
		t.Errorf("touches must be sticky: ema21=%v sma50=%v", e21, s50)
	}
}

func TestTouchTracker_GoldenCrossResets(t *testing.T) {
	tr := NewTouchTracker()

	// Touch while the SMA50 sits below the SMA200.
	tr.Update("AAPL", true, true, 140, 150)

	// SMA50 crosses above: a new trend begins and old touches are void.
	e21, s50 := tr.Update("AAPL", false, false, 151, 150)
	if e21 || s50 {
		t.Errorf("golden cross must reset touches: ema21=%v sma50=%v", e21, s50)
	}

	// A touch in the new trend counts again.
	e21, _ = tr.Update("AAPL", true, false, 151, 150)
	if !e21 {
		t.Error("post-cross touch must register")
	}

	// Staying above is not another cross; no further reset.
	e21, _ = tr.Update("AAPL", false, false, 152, 150)
	if !e21 {
		t.Error("no reset without a fresh cross")
	}
}

func TestTouchTracker_FirstObservationIsNotACross(t *testing.T) {
	tr := NewTouchTracker()

	// First sighting with SMA50 already above must not wipe the same cycle's
	// touch.
	e21, _ := tr.Update("NVDA", true, false, 150, 140)
	if !e21 {
		t.Error("first observation must keep its own touch")
	}
}

func TestTouchTracker_SymbolsIndependent(t *testing.T) {
	tr := NewTouchTracker()
	tr.Update("AAPL", true, false, 150, 140)
	e21, s50 := tr.Update("MSFT", false, false, 150, 140)
	if e21 || s50 {
		t.Errorf("MSFT inherits AAPL state: ema21=%v sma50=%v", e21, s50)
	}
}

func TestWithinBand(t *testing.T) {
	tests := []struct {
		price, level, band float64
		want               bool
	}{
		{102, 100, 0.02, true},
		{98, 100, 0.02, true},
		{103, 100, 0.02, false},
		{100, 0, 0.02, false},
	}
	for _, tt := range tests {
		if got := withinBand(tt.price, tt.level, tt.band); got != tt.want {
			t.Errorf("withinBand(%.1f, %.1f, %.2f) = %v, want %v", tt.price, tt.level, tt.band, got, tt.want)
		}
	}
}

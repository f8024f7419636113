package entry

import (
	"testing"
	"time"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

type fakeLedger struct {
	open map[string]int // "SYM/B1" -> count
}

func (f *fakeLedger) key(symbol string, tier domain.Tier) string {
	return symbol + "/" + string(tier)
}

func (f *fakeLedger) HasOpen(symbol string, tier domain.Tier) bool {
	return f.open[f.key(symbol, tier)] > 0
}

func (f *fakeLedger) CountOpenForSymbol(symbol string, tier domain.Tier) int {
	return f.open[f.key(symbol, tier)]
}

func (f *fakeLedger) CountOpen(tier domain.Tier) int {
	n := 0
	for k, c := range f.open {
		if k[len(k)-2:] == string(tier) {
			n += c
		}
	}
	return n
}

func testTiers() config.TiersConfig {
	return config.TiersConfig{
		B1: config.TierConfig{
			MaxPositionsGlobal:   10,
			MaxPositionsPerStock: 1,
			MinEntryScore:        2.0,
		},
		B2: config.TierConfig{
			MaxPositionsGlobal:   5,
			MaxPositionsPerStock: 1,
			MinEntryScore:        3.0,
		},
	}
}

func allFlags() config.SignalFlags {
	return config.SignalFlags{EnableSwing: true, EnableEMA21: true, EnableSMA50: true}
}

func sig(symbol string, score float64, pattern domain.Pattern) domain.Signal {
	return domain.Signal{
		ID:         "sig-1",
		Symbol:     symbol,
		Score:      score,
		Pattern:    pattern,
		DetectedAt: time.Now(),
	}
}

func TestClassify_FreshB1Entry(t *testing.T) {
	c := New(testTiers())
	led := &fakeLedger{open: map[string]int{}}

	d := c.Classify(sig("AAPL", 2.5, domain.PatternEngulfing), led, allFlags())
	if d.Action != ActionEnter {
		t.Fatalf("action = %q (%s), want enter", d.Action, d.Reason)
	}
	if d.Tier != domain.TierB1 {
		t.Errorf("tier = %q, want B1", d.Tier)
	}
}

func TestClassify_BelowB1Threshold(t *testing.T) {
	c := New(testTiers())
	led := &fakeLedger{open: map[string]int{}}

	d := c.Classify(sig("AAPL", 1.5, domain.PatternEngulfing), led, allFlags())
	if d.Action != ActionSkip {
		t.Errorf("action = %q, want skip for score below B1 threshold", d.Action)
	}
}

func TestClassify_B2StackOnOpenB1(t *testing.T) {
	c := New(testTiers())
	led := &fakeLedger{open: map[string]int{"AAPL/B1": 1}}

	d := c.Classify(sig("AAPL", 3.5, domain.PatternPiercing), led, allFlags())
	if d.Action != ActionEnter {
		t.Fatalf("action = %q (%s), want enter", d.Action, d.Reason)
	}
	if d.Tier != domain.TierB2 {
		t.Errorf("tier = %q, want B2 on top of an open B1", d.Tier)
	}
}

func TestClassify_OpportunityWhenB2ScoreShort(t *testing.T) {
	// Open B1, repeat signal scores above B1 but below B2: recorded, not traded.
	c := New(testTiers())
	led := &fakeLedger{open: map[string]int{"AAPL/B1": 1}}

	d := c.Classify(sig("AAPL", 2.5, domain.PatternEngulfing), led, allFlags())
	if d.Action != ActionOpportunity {
		t.Errorf("action = %q (%s), want opportunity", d.Action, d.Reason)
	}
}

func TestClassify_DisabledTypeSkipsEverywhere(t *testing.T) {
	c := New(testTiers())
	led := &fakeLedger{open: map[string]int{}}
	flags := allFlags()
	flags.EnableSwing = false

	d := c.Classify(sig("AAPL", 5.0, domain.PatternEngulfing), led, flags)
	if d.Action != ActionSkip {
		t.Errorf("action = %q, want skip for disabled signal type", d.Action)
	}

	// Touch types stay enabled independently.
	d = c.Classify(sig("AAPL", 5.0, domain.PatternEMA21Touch), led, flags)
	if d.Action != ActionEnter {
		t.Errorf("action = %q (%s), want enter for still-enabled touch type", d.Action, d.Reason)
	}
}

func TestClassify_Caps(t *testing.T) {
	tiers := testTiers()
	tiers.B1.MaxPositionsGlobal = 1
	c := New(tiers)

	// Global B1 cap consumed by another symbol.
	led := &fakeLedger{open: map[string]int{"MSFT/B1": 1}}
	d := c.Classify(sig("AAPL", 4.0, domain.PatternEngulfing), led, allFlags())
	if d.Action != ActionSkip {
		t.Errorf("action = %q, want skip at B1 global cap", d.Action)
	}

	// Per-stock B2 cap with B1 already open.
	led = &fakeLedger{open: map[string]int{"AAPL/B1": 1, "AAPL/B2": 1}}
	d = c.Classify(sig("AAPL", 4.0, domain.PatternEngulfing), led, allFlags())
	if d.Action != ActionSkip {
		t.Errorf("action = %q, want skip at B2 per-stock cap", d.Action)
	}
}

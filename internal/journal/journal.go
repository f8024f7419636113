// Package journal persists a local decision trail: why a symbol was skipped,
// why a signal was dropped, and every executed entry and exit. It is an
// analysis aid, never a source of truth; the position store holds state.
package journal

import "github.com/kmatsuda/swingtrader/internal/domain"

// GateEvent records a symbol failing a mandatory gate during a cycle.
type GateEvent struct {
	Symbol     string
	FailedGate string
}

// SignalEvent records a signal entering or leaving the monitoring window.
type SignalEvent struct {
	Symbol  string
	Tier    domain.Tier
	Score   float64
	Pattern domain.Pattern
	// Outcome is "collected", "executed", or a scheduler drop reason.
	Outcome string
}

// EntryEvent records an executed buy.
type EntryEvent struct {
	PositionID string
	Symbol     string
	Tier       domain.Tier
	Quantity   int64
	Price      float64
	Score      float64
	Pattern    domain.Pattern
}

// ExitEvent records an executed sell.
type ExitEvent struct {
	PositionID string
	Symbol     string
	Tier       domain.Tier
	Quantity   int64
	Price      float64
	Reason     domain.ExitReason
	Closed     bool
}

// CycleEvent summarizes one evaluation cycle.
type CycleEvent struct {
	Scanned    int
	Eligible   int
	Collected  int
	Executed   int
	Exits      int
	DurationMs int64
}

// Recorder persists decision events for later analysis.
type Recorder interface {
	RecordGate(evt GateEvent) error
	RecordSignal(evt SignalEvent) error
	RecordEntry(evt EntryEvent) error
	RecordExit(evt ExitEvent) error
	RecordCycle(evt CycleEvent) error
	Close() error
}

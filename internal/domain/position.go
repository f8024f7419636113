package domain

import "time"

// Tier identifies which entry tier a position belongs to. B2 entries are
// only taken on a symbol that already carries an open B1 position.
type Tier string

const (
	TierB1 Tier = "B1"
	TierB2 Tier = "B2"
)

// Tiers lists all entry tiers in precedence order.
var Tiers = []Tier{TierB1, TierB2}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// StopTier is the trailing-stop tightening stage a position has reached.
// Transitions are one-directional; a position never reverts to a looser
// stage even if profit retraces.
type StopTier int

const (
	StopTierInitial StopTier = iota
	StopTier1
	StopTier2
)

// ExitReason labels why quantity left a position.
type ExitReason string

const (
	ExitReasonPT1      ExitReason = "PT1"
	ExitReasonPT2      ExitReason = "PT2"
	ExitReasonPT3      ExitReason = "PT3"
	ExitReasonStop     ExitReason = "STOP"
	ExitReasonTimeExit ExitReason = "TIME_EXIT"
	ExitReasonFull     ExitReason = "FULL"
)

// TargetIndex maps a partial-profit-target reason to its slot (0..2), or -1
// for non-target reasons.
func (r ExitReason) TargetIndex() int {
	switch r {
	case ExitReasonPT1:
		return 0
	case ExitReasonPT2:
		return 1
	case ExitReasonPT3:
		return 2
	default:
		return -1
	}
}

// PartialExit is an immutable record of quantity leaving a position.
type PartialExit struct {
	PositionID string
	Timestamp  time.Time
	Quantity   int64
	Price      float64
	Reason     ExitReason
}

// Position is one opened trade lot. ID is a UUID; Seq is a monotonic
// sequence assigned by the store and used to break FIFO ties between
// positions opened at the same instant.
type Position struct {
	ID     string
	Seq    int64
	Symbol string
	Tier   Tier

	EntryAt      time.Time
	EntryPrice   float64
	InitialQty   int64
	RemainingQty int64
	EntryScore   float64
	Pattern      Pattern

	StopPrice    float64
	StopTier     StopTier
	TargetsFired [3]bool

	Status   PositionStatus
	ClosedAt *time.Time

	Exits []PartialExit
}

// UnrealizedPct returns the fractional gain of price over the entry price.
func (p Position) UnrealizedPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryPrice
}

// ExitedQty sums the quantity of all recorded exits.
func (p Position) ExitedQty() int64 {
	var total int64
	for _, e := range p.Exits {
		total += e.Quantity
	}
	return total
}

// HoldingDays returns whole days elapsed since entry.
func (p Position) HoldingDays(now time.Time) int {
	return int(now.Sub(p.EntryAt).Hours() / 24)
}

// ExitInstruction is a sell request emitted by the exit engine. Instructions
// for positions in the same (symbol, tier) queue are always ordered oldest
// entry first.
type ExitInstruction struct {
	PositionID string
	Symbol     string
	Tier       Tier
	Quantity   int64
	Reason     ExitReason
	EvalPrice  float64
}

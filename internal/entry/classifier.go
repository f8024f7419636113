// Package entry decides whether a qualifying signal maps to a B1 or B2
// entry tier, or is recorded as a non-actionable opportunity.
package entry

import (
	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

// Action is the classifier's verdict for one signal.
type Action string

const (
	// ActionEnter proposes a tiered entry.
	ActionEnter Action = "enter"
	// ActionOpportunity records the signal for the journal but submits no
	// order.
	ActionOpportunity Action = "opportunity"
	// ActionSkip drops the signal entirely.
	ActionSkip Action = "skip"
)

// Decision carries the verdict plus the proposed tier and a reason string
// for the journal.
type Decision struct {
	Action Action
	Tier   domain.Tier
	Reason string
}

// LedgerView is the read-only slice of the position ledger the classifier
// needs.
type LedgerView interface {
	HasOpen(symbol string, tier domain.Tier) bool
	CountOpen(tier domain.Tier) int
	CountOpenForSymbol(symbol string, tier domain.Tier) int
}

// Classifier applies the dual-tier entry rules.
type Classifier struct {
	tiers config.TiersConfig
}

// New creates a Classifier with the given tier parameters.
func New(tiers config.TiersConfig) *Classifier {
	return &Classifier{tiers: tiers}
}

// Classify evaluates one signal against the ledger. Signal-type enable
// flags are consulted here as well as in the scheduler: a disabled type must
// not slip through any stage. B1 takes precedence over B2 for a fresh entry
// on the same symbol.
func (c *Classifier) Classify(sig domain.Signal, ledger LedgerView, flags config.SignalFlags) Decision {
	if !flags.Allowed(string(sig.Pattern.Type())) {
		return Decision{Action: ActionSkip, Reason: "signal type disabled"}
	}

	hasB1 := ledger.HasOpen(sig.Symbol, domain.TierB1)

	if !hasB1 {
		if sig.Score < c.tiers.B1.MinEntryScore {
			return Decision{Action: ActionSkip, Reason: "below B1 score threshold"}
		}
		if ledger.CountOpenForSymbol(sig.Symbol, domain.TierB1) >= c.tiers.B1.MaxPositionsPerStock {
			return Decision{Action: ActionSkip, Reason: "B1 per-stock cap reached"}
		}
		if ledger.CountOpen(domain.TierB1) >= c.tiers.B1.MaxPositionsGlobal {
			return Decision{Action: ActionSkip, Reason: "B1 global cap reached"}
		}
		return Decision{Action: ActionEnter, Tier: domain.TierB1, Reason: "fresh B1 entry"}
	}

	if sig.Score >= c.tiers.B2.MinEntryScore {
		if ledger.CountOpenForSymbol(sig.Symbol, domain.TierB2) >= c.tiers.B2.MaxPositionsPerStock {
			return Decision{Action: ActionSkip, Reason: "B2 per-stock cap reached"}
		}
		if ledger.CountOpen(domain.TierB2) >= c.tiers.B2.MaxPositionsGlobal {
			return Decision{Action: ActionSkip, Reason: "B2 global cap reached"}
		}
		return Decision{Action: ActionEnter, Tier: domain.TierB2, Reason: "B2 add on open B1"}
	}

	// A live B1 with a sub-threshold B2 score is worth recording: the setup
	// repeated but was not strong enough to add.
	return Decision{Action: ActionOpportunity, Reason: "B1 open, score below B2 threshold"}
}

package domain

import (
	"context"
	"time"
)

// PositionStore is the durable backing for the position ledger. Every
// mutation is persisted here before the corresponding order is acknowledged
// upstream, so a crash between fill and persistence cannot silently lose a
// position.
type PositionStore interface {
	// Open inserts a new position and assigns its monotonic Seq.
	Open(ctx context.Context, p *Position) error

	// AppendExit records a partial exit and updates the position's remaining
	// quantity, fired targets, and status in one transaction.
	AppendExit(ctx context.Context, positionID string, exit PartialExit, remaining int64, fired [3]bool, status PositionStatus) error

	// UpdateStop ratchets the stop price. Implementations must refuse a
	// downward move.
	UpdateStop(ctx context.Context, positionID string, stop float64, tier StopTier) error

	// ListOpen returns every open position with its exits, ordered by
	// (symbol, tier, entry time, seq).
	ListOpen(ctx context.Context) ([]Position, error)

	// OldestOpen returns the open position with the earliest entry in the
	// given (symbol, tier) queue, ties broken by Seq.
	OldestOpen(ctx context.Context, symbol string, tier Tier) (Position, error)

	// ListClosedBefore returns closed positions whose close time is strictly
	// before the cutoff, for archival. Archived rows are never deleted.
	ListClosedBefore(ctx context.Context, before time.Time) ([]Position, error)
}

// QuoteCache stores the latest quote per symbol.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// BuyCounter tracks executed buys per trading day for the global daily cap.
type BuyCounter interface {
	IncrBuys(ctx context.Context, day string) (int64, error)
	Buys(ctx context.Context, day string) (int64, error)
}

// LockManager provides a distributed mutex so a second engine instance
// cannot run a trading cycle concurrently.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// TradeEvent is published on the signal bus after an order has been filled
// and the ledger mutation has been durably persisted.
type TradeEvent struct {
	PositionID string
	Symbol     string
	Tier       Tier
	Side       string // "buy" or "sell"
	Quantity   int64
	Price      float64
	Reason     string
	At         time.Time
}

// SignalBus publishes trade events for downstream consumers.
type SignalBus interface {
	PublishTrade(ctx context.Context, ev TradeEvent) error
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// Archiver exports aged closed positions to cold storage.
type Archiver interface {
	ArchiveClosed(ctx context.Context, before time.Time) (int64, error)
}

package domain

import (
	"context"
	"time"
)

// FillResult is the outcome of a filled order.
type FillResult struct {
	Quantity int64
	Price    float64
	At       time.Time
}

// OrderGateway submits orders to the broker. A returned ErrOrderRejected
// means no fill happened and no position may be created or mutated. An
// ErrOrderUnknown means the order outcome could not be confirmed in time;
// callers must not assume a position exists and must not silently resubmit.
type OrderGateway interface {
	SubmitBuy(ctx context.Context, symbol string, quantity int64) (FillResult, error)
	SubmitSell(ctx context.Context, symbol string, quantity int64) (FillResult, error)
}

// EquitySource reports the total account equity used for position sizing and
// the capital-utilization cap.
type EquitySource interface {
	Equity(ctx context.Context) (float64, error)
}

// MarketDataSource serves OHLCV history. GetBars fails with
// ErrDataUnavailable when the symbol has less history than the configured
// minimum listing period.
type MarketDataSource interface {
	GetBars(ctx context.Context, symbol string, res Resolution, lookback int) ([]Bar, error)
}

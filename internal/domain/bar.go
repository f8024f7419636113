package domain

import "time"

// Resolution identifies the bar interval served by a MarketDataSource.
type Resolution string

const (
	ResolutionDaily   Resolution = "1d"
	ResolutionWeekly  Resolution = "1wk"
	ResolutionMonthly Resolution = "1mo"
)

// Bar is a single OHLCV candle.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Quote is the latest observed price for a symbol. Low carries the session
// low when the feed provides it, so stops can be evaluated on an intraday
// basis; otherwise Low equals Price.
type Quote struct {
	Symbol string
	Price  float64
	Low    float64
	At     time.Time
}

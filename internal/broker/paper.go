// Package broker provides order gateways. Only the paper gateway is built
// in; it fills instantly at the cached quote plus configured slippage and
// tracks cash and holdings for the equity report.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

// Paper is a simulated broker. It implements domain.OrderGateway and
// domain.EquitySource.
type Paper struct {
	quotes   domain.QuoteCache
	slippage float64
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]int64
}

// NewPaper creates a paper broker with the configured starting cash.
func NewPaper(cfg config.BrokerConfig, quotes domain.QuoteCache, logger *slog.Logger) *Paper {
	return &Paper{
		quotes:   quotes,
		slippage: cfg.SlippagePct,
		timeout:  cfg.OrderTimeout.Duration,
		logger:   logger.With(slog.String("component", "paper_broker")),
		cash:     decimal.NewFromFloat(cfg.StartingCash),
		holdings: make(map[string]int64),
	}
}

// SubmitBuy fills a market buy at quote plus slippage. A missing quote or
// insufficient cash rejects the order; no partial fills are simulated.
func (p *Paper) SubmitBuy(ctx context.Context, symbol string, quantity int64) (domain.FillResult, error) {
	return p.fill(ctx, symbol, quantity, true)
}

// SubmitSell fills a market sell at quote minus slippage. Selling more than
// is held rejects the order.
func (p *Paper) SubmitSell(ctx context.Context, symbol string, quantity int64) (domain.FillResult, error) {
	return p.fill(ctx, symbol, quantity, false)
}

func (p *Paper) fill(ctx context.Context, symbol string, quantity int64, buy bool) (domain.FillResult, error) {
	if quantity <= 0 {
		return domain.FillResult{}, fmt.Errorf("broker: quantity %d: %w", quantity, domain.ErrOrderRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	q, err := p.quotes.GetQuote(ctx, symbol)
	if err != nil {
		// The fill may or may not have happened at a real broker by the time
		// a lookup times out. Mirror that ambiguity so callers exercise the
		// unknown-outcome path.
		if ctx.Err() != nil {
			return domain.FillResult{}, fmt.Errorf("broker: %s order timed out: %w", symbol, domain.ErrOrderUnknown)
		}
		return domain.FillResult{}, fmt.Errorf("broker: no quote for %s: %w", symbol, domain.ErrOrderRejected)
	}

	price := decimal.NewFromFloat(q.Price)
	slip := decimal.NewFromFloat(p.slippage)
	if buy {
		price = price.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		price = price.Mul(decimal.NewFromInt(1).Sub(slip))
	}
	cost := price.Mul(decimal.NewFromInt(quantity))

	p.mu.Lock()
	defer p.mu.Unlock()
	if buy {
		if cost.GreaterThan(p.cash) {
			return domain.FillResult{}, fmt.Errorf("broker: insufficient cash for %s x%d: %w",
				symbol, quantity, domain.ErrOrderRejected)
		}
		p.cash = p.cash.Sub(cost)
		p.holdings[symbol] += quantity
	} else {
		if p.holdings[symbol] < quantity {
			return domain.FillResult{}, fmt.Errorf("broker: holding %d of %s, cannot sell %d: %w",
				p.holdings[symbol], symbol, quantity, domain.ErrOrderRejected)
		}
		p.cash = p.cash.Add(cost)
		p.holdings[symbol] -= quantity
		if p.holdings[symbol] == 0 {
			delete(p.holdings, symbol)
		}
	}

	fillPrice, _ := price.Float64()
	side := "sell"
	if buy {
		side = "buy"
	}
	p.logger.Info("paper fill",
		slog.String("symbol", symbol),
		slog.String("side", side),
		slog.Int64("quantity", quantity),
		slog.Float64("price", fillPrice),
	)
	return domain.FillResult{Quantity: quantity, Price: fillPrice, At: time.Now().UTC()}, nil
}

// Equity returns cash plus the marked value of all holdings. Symbols with no
// quote are marked at zero and logged; equity is then conservative.
func (p *Paper) Equity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	cash := p.cash
	holdings := make(map[string]int64, len(p.holdings))
	for sym, qty := range p.holdings {
		holdings[sym] = qty
	}
	p.mu.Unlock()

	total := cash
	for sym, qty := range holdings {
		q, err := p.quotes.GetQuote(ctx, sym)
		if err != nil {
			p.logger.Warn("no quote while marking equity", slog.String("symbol", sym))
			continue
		}
		total = total.Add(decimal.NewFromFloat(q.Price).Mul(decimal.NewFromInt(qty)))
	}
	f, _ := total.Float64()
	return f, nil
}

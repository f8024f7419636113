package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
)

type fakeQuotes struct {
	quotes map[string]domain.Quote
	delay  time.Duration
}

func (f *fakeQuotes) SetQuote(_ context.Context, q domain.Quote) error {
	f.quotes[q.Symbol] = q
	return nil
}

func (f *fakeQuotes) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return domain.Quote{}, ctx.Err()
		}
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func newPaper(t *testing.T, cash float64, quotes *fakeQuotes) *Paper {
	t.Helper()
	cfg := config.BrokerConfig{
		Kind:         "paper",
		StartingCash: cash,
		SlippagePct:  0.001,
		OrderTimeout: config.Duration{Duration: time.Second},
	}
	return NewPaper(cfg, quotes, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSubmitBuy_FillsWithSlippage(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100, At: time.Now()},
	}}
	p := newPaper(t, 10_000, quotes)

	fill, err := p.SubmitBuy(context.Background(), "AAPL", 10)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if fill.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", fill.Quantity)
	}
	if math.Abs(fill.Price-100.1) > 1e-9 {
		t.Errorf("price = %.4f, want 100.10 with slippage", fill.Price)
	}

	eq, err := p.Equity(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// 10000 - 1001 spent + 10 shares marked at 100.
	if math.Abs(eq-9999) > 1e-6 {
		t.Errorf("equity = %.4f, want 9999", eq)
	}
}

func TestSubmitSell_AppliesNegativeSlippage(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100, At: time.Now()},
	}}
	p := newPaper(t, 10_000, quotes)

	if _, err := p.SubmitBuy(context.Background(), "AAPL", 10); err != nil {
		t.Fatal(err)
	}
	fill, err := p.SubmitSell(context.Background(), "AAPL", 4)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if math.Abs(fill.Price-99.9) > 1e-9 {
		t.Errorf("price = %.4f, want 99.90", fill.Price)
	}
}

func TestSubmit_Rejections(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100, At: time.Now()},
	}}
	p := newPaper(t, 500, quotes)
	ctx := context.Background()

	if _, err := p.SubmitBuy(ctx, "AAPL", 10); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("insufficient cash: err = %v, want ErrOrderRejected", err)
	}
	if _, err := p.SubmitBuy(ctx, "MSFT", 1); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("missing quote: err = %v, want ErrOrderRejected", err)
	}
	if _, err := p.SubmitSell(ctx, "AAPL", 1); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("selling unheld symbol: err = %v, want ErrOrderRejected", err)
	}
	if _, err := p.SubmitBuy(ctx, "AAPL", 0); !errors.Is(err, domain.ErrOrderRejected) {
		t.Errorf("zero quantity: err = %v, want ErrOrderRejected", err)
	}
}

func TestSubmit_TimeoutIsUnknownOutcome(t *testing.T) {
	quotes := &fakeQuotes{
		quotes: map[string]domain.Quote{"AAPL": {Symbol: "AAPL", Price: 100}},
		delay:  5 * time.Second,
	}
	cfg := config.BrokerConfig{
		StartingCash: 10_000,
		OrderTimeout: config.Duration{Duration: 20 * time.Millisecond},
	}
	p := NewPaper(cfg, quotes, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := p.SubmitBuy(context.Background(), "AAPL", 1)
	if !errors.Is(err, domain.ErrOrderUnknown) {
		t.Errorf("err = %v, want ErrOrderUnknown on timeout", err)
	}
}

func TestEquity_MissingQuoteMarkedZero(t *testing.T) {
	quotes := &fakeQuotes{quotes: map[string]domain.Quote{
		"AAPL": {Symbol: "AAPL", Price: 100, At: time.Now()},
	}}
	p := newPaper(t, 10_000, quotes)
	ctx := context.Background()

	if _, err := p.SubmitBuy(ctx, "AAPL", 10); err != nil {
		t.Fatal(err)
	}
	delete(quotes.quotes, "AAPL")

	eq, err := p.Equity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Only cash remains when the holding cannot be marked.
	if math.Abs(eq-(10_000-1001)) > 1e-6 {
		t.Errorf("equity = %.4f, want 8999 (cash only)", eq)
	}
}

package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/kmatsuda/swingtrader/internal/domain"
	"github.com/kmatsuda/swingtrader/internal/store/memory"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(memory.NewPositionStore(), logger)
}

func openTestPosition(t *testing.T, l *Ledger, id, symbol string, tier domain.Tier, qty int64, entryAt time.Time) domain.Position {
	t.Helper()
	p, err := l.OpenPosition(context.Background(), domain.Position{
		ID:           id,
		Symbol:       symbol,
		Tier:         tier,
		EntryAt:      entryAt,
		EntryPrice:   100,
		InitialQty:   qty,
		RemainingQty: qty,
		StopPrice:    83,
		StopTier:     domain.StopTierInitial,
	})
	if err != nil {
		t.Fatalf("open %s: %v", id, err)
	}
	return p
}

func TestOpenPosition_AssignsSeqAndOrdersFIFO(t *testing.T) {
	l := testLedger(t)
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

	// Same symbol, same tier, same instant: Seq breaks the tie.
	first := openTestPosition(t, l, "p1", "AAPL", domain.TierB1, 10, at)
	second := openTestPosition(t, l, "p2", "AAPL", domain.TierB1, 10, at)
	if second.Seq <= first.Seq {
		t.Fatalf("seq not monotonic: first=%d second=%d", first.Seq, second.Seq)
	}

	q := l.OpenPositions("AAPL", domain.TierB1)
	if len(q) != 2 {
		t.Fatalf("queue length = %d, want 2", len(q))
	}
	if q[0].ID != "p1" || q[1].ID != "p2" {
		t.Errorf("queue order = [%s %s], want [p1 p2]", q[0].ID, q[1].ID)
	}

	oldest, ok := l.OldestOpen("AAPL", domain.TierB1)
	if !ok || oldest.ID != "p1" {
		t.Errorf("oldest = %v (%v), want p1", oldest.ID, ok)
	}
}

func TestOpenPosition_EarlierEntrySortsFirst(t *testing.T) {
	l := testLedger(t)
	late := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	early := late.Add(-24 * time.Hour)

	openTestPosition(t, l, "late", "NVDA", domain.TierB1, 5, late)
	openTestPosition(t, l, "early", "NVDA", domain.TierB1, 5, early)

	q := l.OpenPositions("NVDA", domain.TierB1)
	if q[0].ID != "early" {
		t.Errorf("head = %s, want early despite later insertion", q[0].ID)
	}
}

func TestOpenPosition_TierQueuesIsolated(t *testing.T) {
	l := testLedger(t)
	at := time.Now()
	openTestPosition(t, l, "b1", "AAPL", domain.TierB1, 10, at)
	openTestPosition(t, l, "b2", "AAPL", domain.TierB2, 10, at.Add(-time.Hour))

	// The earlier B2 entry must not appear at the head of the B1 queue.
	oldest, ok := l.OldestOpen("AAPL", domain.TierB1)
	if !ok || oldest.ID != "b1" {
		t.Errorf("B1 head = %v, want b1", oldest.ID)
	}
	if got := l.CountOpen(domain.TierB1); got != 1 {
		t.Errorf("CountOpen(B1) = %d, want 1", got)
	}
	if got := l.CountOpen(domain.TierB2); got != 1 {
		t.Errorf("CountOpen(B2) = %d, want 1", got)
	}
}

func TestOpenPosition_RejectsInvalidQuantities(t *testing.T) {
	l := testLedger(t)
	_, err := l.OpenPosition(context.Background(), domain.Position{
		ID: "bad", Symbol: "AAPL", Tier: domain.TierB1,
		InitialQty: 10, RemainingQty: 5,
	})
	if !errors.Is(err, domain.ErrLedgerConflict) {
		t.Errorf("err = %v, want ErrLedgerConflict", err)
	}
}

func TestApplyExit_QuantityConservation(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	p := openTestPosition(t, l, "p1", "AAPL", domain.TierB1, 100, time.Now())

	exits := []struct {
		qty    int64
		reason domain.ExitReason
	}{
		{33, domain.ExitReasonPT1},
		{33, domain.ExitReasonPT2},
		{34, domain.ExitReasonPT3},
	}
	var exited int64
	for _, e := range exits {
		got, err := l.ApplyExit(ctx, p.ID, domain.PartialExit{
			Timestamp: time.Now(), Quantity: e.qty, Price: 110, Reason: e.reason,
		})
		if err != nil {
			t.Fatalf("exit %s: %v", e.reason, err)
		}
		exited += e.qty
		if got.RemainingQty != p.InitialQty-exited {
			t.Errorf("after %s: remaining = %d, want %d", e.reason, got.RemainingQty, p.InitialQty-exited)
		}
		if got.ExitedQty() != exited {
			t.Errorf("after %s: exited = %d, want %d", e.reason, got.ExitedQty(), exited)
		}
	}

	final, _ := l.Get(p.ID)
	if final.Status != domain.PositionStatusClosed {
		t.Error("position must close when remaining hits zero")
	}
	if final.ClosedAt == nil {
		t.Error("closed position must carry a closed timestamp")
	}
	if l.HasOpen("AAPL", domain.TierB1) {
		t.Error("closed position must leave its queue")
	}
}

func TestApplyExit_RejectsOverdraw(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	p := openTestPosition(t, l, "p1", "AAPL", domain.TierB1, 10, time.Now())

	_, err := l.ApplyExit(ctx, p.ID, domain.PartialExit{
		Timestamp: time.Now(), Quantity: 11, Price: 110, Reason: domain.ExitReasonStop,
	})
	if !errors.Is(err, domain.ErrLedgerConflict) {
		t.Errorf("err = %v, want ErrLedgerConflict for overdraw", err)
	}

	// Remaining quantity untouched after the rejected exit.
	got, _ := l.Get(p.ID)
	if got.RemainingQty != 10 {
		t.Errorf("remaining = %d, want 10", got.RemainingQty)
	}
}

func TestApplyExit_TargetFiresOnce(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	p := openTestPosition(t, l, "p1", "AAPL", domain.TierB1, 100, time.Now())

	if _, err := l.ApplyExit(ctx, p.ID, domain.PartialExit{
		Timestamp: time.Now(), Quantity: 33, Price: 110, Reason: domain.ExitReasonPT1,
	}); err != nil {
		t.Fatalf("first PT1: %v", err)
	}
	_, err := l.ApplyExit(ctx, p.ID, domain.PartialExit{
		Timestamp: time.Now(), Quantity: 33, Price: 111, Reason: domain.ExitReasonPT1,
	})
	if !errors.Is(err, domain.ErrLedgerConflict) {
		t.Errorf("err = %v, want ErrLedgerConflict on repeated PT1", err)
	}
}

func TestApplyExit_UnknownPosition(t *testing.T) {
	l := testLedger(t)
	_, err := l.ApplyExit(context.Background(), "missing", domain.PartialExit{
		Timestamp: time.Now(), Quantity: 1, Price: 100, Reason: domain.ExitReasonStop,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRatchetStop_Monotonic(t *testing.T) {
	l := testLedger(t)
	ctx := context.Background()
	p := openTestPosition(t, l, "p1", "AAPL", domain.TierB1, 10, time.Now())

	if err := l.RatchetStop(ctx, p.ID, 91, domain.StopTier1); err != nil {
		t.Fatalf("ratchet to tier1: %v", err)
	}
	got, _ := l.Get(p.ID)
	if got.StopPrice != 91 || got.StopTier != domain.StopTier1 {
		t.Fatalf("after tier1: stop=%.2f tier=%d", got.StopPrice, got.StopTier)
	}

	// Downward move is a no-op, not an error.
	if err := l.RatchetStop(ctx, p.ID, 85, domain.StopTierInitial); err != nil {
		t.Fatalf("downward ratchet: %v", err)
	}
	got, _ = l.Get(p.ID)
	if got.StopPrice != 91 || got.StopTier != domain.StopTier1 {
		t.Errorf("stop loosened: stop=%.2f tier=%d, want 91/tier1", got.StopPrice, got.StopTier)
	}

	if err := l.RatchetStop(ctx, p.ID, 99, domain.StopTier2); err != nil {
		t.Fatalf("ratchet to tier2: %v", err)
	}
	got, _ = l.Get(p.ID)
	if got.StopPrice != 99 || got.StopTier != domain.StopTier2 {
		t.Errorf("after tier2: stop=%.2f tier=%d, want 99/tier2", got.StopPrice, got.StopTier)
	}
}

func TestLoad_RebuildsQueues(t *testing.T) {
	store := memory.NewPositionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	first := New(store, logger)
	at := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	p1, err := first.OpenPosition(ctx, domain.Position{
		ID: "p1", Symbol: "AAPL", Tier: domain.TierB1, EntryAt: at,
		EntryPrice: 100, InitialQty: 10, RemainingQty: 10, StopPrice: 83,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := first.OpenPosition(ctx, domain.Position{
		ID: "p2", Symbol: "AAPL", Tier: domain.TierB1, EntryAt: at.Add(time.Hour),
		EntryPrice: 100, InitialQty: 10, RemainingQty: 10, StopPrice: 83,
	}); err != nil {
		t.Fatal(err)
	}

	// A fresh ledger over the same store sees the same FIFO order.
	second := New(store, logger)
	if err := second.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	q := second.OpenPositions("AAPL", domain.TierB1)
	if len(q) != 2 || q[0].ID != p1.ID {
		t.Errorf("rehydrated queue = %v, want p1 first", ids(q))
	}
	if got := second.OpenNotional(); got != 2000 {
		t.Errorf("OpenNotional = %.2f, want 2000", got)
	}
}

func ids(ps []domain.Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

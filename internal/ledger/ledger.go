// Package ledger holds the authoritative in-memory model of all open
// positions, backed by a durable PositionStore. Reads return consistent
// copies; all mutation goes through single-writer methods that persist
// before updating memory, so a crash between fill and persistence cannot
// lose a position.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

type queueKey struct {
	symbol string
	tier   domain.Tier
}

// Ledger is the position ledger.
type Ledger struct {
	mu     sync.RWMutex
	store  domain.PositionStore
	queues map[queueKey][]*domain.Position
	byID   map[string]*domain.Position
	logger *slog.Logger
}

// New creates an empty ledger backed by the given store.
func New(store domain.PositionStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		queues: make(map[queueKey][]*domain.Position),
		byID:   make(map[string]*domain.Position),
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Load hydrates the ledger with all open positions from the store.
func (l *Ledger) Load(ctx context.Context) error {
	positions, err := l.store.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load open positions: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.queues = make(map[queueKey][]*domain.Position)
	l.byID = make(map[string]*domain.Position)
	for i := range positions {
		p := positions[i]
		l.insertLocked(&p)
	}
	l.logger.Info("ledger loaded", slog.Int("open_positions", len(positions)))
	return nil
}

// OpenPosition persists and registers a new position. The store assigns the
// monotonic Seq before the position becomes visible to readers.
func (l *Ledger) OpenPosition(ctx context.Context, p domain.Position) (domain.Position, error) {
	if p.InitialQty <= 0 || p.RemainingQty != p.InitialQty {
		return domain.Position{}, fmt.Errorf("ledger: open %s: invalid quantities (initial=%d remaining=%d): %w",
			p.ID, p.InitialQty, p.RemainingQty, domain.ErrLedgerConflict)
	}
	p.Status = domain.PositionStatusOpen

	if err := l.store.Open(ctx, &p); err != nil {
		return domain.Position{}, fmt.Errorf("ledger: persist open %s: %w", p.ID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.byID[p.ID]; exists {
		return domain.Position{}, fmt.Errorf("ledger: open %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	cp := p
	l.insertLocked(&cp)
	return p, nil
}

// ApplyExit records a partial or full exit against a position. The exit is
// persisted atomically with the new remaining quantity and status before the
// in-memory state changes. A position closes exactly when its remaining
// quantity reaches zero.
func (l *Ledger) ApplyExit(ctx context.Context, positionID string, exit domain.PartialExit) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[positionID]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: exit %s: %w", positionID, domain.ErrNotFound)
	}
	if p.Status != domain.PositionStatusOpen {
		return domain.Position{}, fmt.Errorf("ledger: exit %s: position closed: %w", positionID, domain.ErrLedgerConflict)
	}
	if exit.Quantity <= 0 || exit.Quantity > p.RemainingQty {
		return domain.Position{}, fmt.Errorf("ledger: exit %s: quantity %d outside remaining %d: %w",
			positionID, exit.Quantity, p.RemainingQty, domain.ErrLedgerConflict)
	}
	if idx := exit.Reason.TargetIndex(); idx >= 0 && p.TargetsFired[idx] {
		return domain.Position{}, fmt.Errorf("ledger: exit %s: target %s already fired: %w",
			positionID, exit.Reason, domain.ErrLedgerConflict)
	}

	exit.PositionID = positionID
	remaining := p.RemainingQty - exit.Quantity
	fired := p.TargetsFired
	if idx := exit.Reason.TargetIndex(); idx >= 0 {
		fired[idx] = true
	}
	status := domain.PositionStatusOpen
	if remaining == 0 {
		status = domain.PositionStatusClosed
	}

	if err := l.store.AppendExit(ctx, positionID, exit, remaining, fired, status); err != nil {
		return domain.Position{}, fmt.Errorf("ledger: persist exit %s: %w", positionID, err)
	}

	p.RemainingQty = remaining
	p.TargetsFired = fired
	p.Exits = append(p.Exits, exit)
	if status == domain.PositionStatusClosed {
		p.Status = domain.PositionStatusClosed
		closedAt := exit.Timestamp
		p.ClosedAt = &closedAt
		l.removeFromQueueLocked(p)
	}
	return copyPosition(p), nil
}

// RatchetStop raises a position's stop. Downward moves are ignored: the stop
// only ratchets.
func (l *Ledger) RatchetStop(ctx context.Context, positionID string, stop float64, tier domain.StopTier) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.byID[positionID]
	if !ok {
		return fmt.Errorf("ledger: ratchet %s: %w", positionID, domain.ErrNotFound)
	}
	if p.Status != domain.PositionStatusOpen {
		return fmt.Errorf("ledger: ratchet %s: position closed: %w", positionID, domain.ErrLedgerConflict)
	}
	if stop <= p.StopPrice && tier <= p.StopTier {
		return nil
	}
	newStop := p.StopPrice
	if stop > newStop {
		newStop = stop
	}
	newTier := p.StopTier
	if tier > newTier {
		newTier = tier
	}

	if err := l.store.UpdateStop(ctx, positionID, newStop, newTier); err != nil {
		return fmt.Errorf("ledger: persist stop %s: %w", positionID, err)
	}
	p.StopPrice = newStop
	p.StopTier = newTier
	return nil
}

// OpenPositions returns copies of the open positions for (symbol, tier) in
// FIFO order: earliest entry first, ties broken by Seq.
func (l *Ledger) OpenPositions(symbol string, tier domain.Tier) []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q := l.queues[queueKey{symbol, tier}]
	out := make([]domain.Position, 0, len(q))
	for _, p := range q {
		out = append(out, copyPosition(p))
	}
	return out
}

// OldestOpen returns the head of the (symbol, tier) FIFO queue.
func (l *Ledger) OldestOpen(symbol string, tier domain.Tier) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	q := l.queues[queueKey{symbol, tier}]
	if len(q) == 0 {
		return domain.Position{}, false
	}
	return copyPosition(q[0]), true
}

// HasOpen reports whether any open position exists for (symbol, tier).
func (l *Ledger) HasOpen(symbol string, tier domain.Tier) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.queues[queueKey{symbol, tier}]) > 0
}

// CountOpenForSymbol returns the number of open positions in one
// (symbol, tier) slot.
func (l *Ledger) CountOpenForSymbol(symbol string, tier domain.Tier) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.queues[queueKey{symbol, tier}])
}

// CountOpen returns the number of open positions across all symbols for one
// tier.
func (l *Ledger) CountOpen(tier domain.Tier) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for k, q := range l.queues {
		if k.tier == tier {
			n += len(q)
		}
	}
	return n
}

// AllOpen returns copies of every open position, grouped by symbol and in
// FIFO order within each (symbol, tier) queue. Symbols are sorted so sweeps
// are deterministic.
func (l *Ledger) AllOpen() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := make([]queueKey, 0, len(l.queues))
	for k := range l.queues {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].symbol != keys[j].symbol {
			return keys[i].symbol < keys[j].symbol
		}
		return keys[i].tier < keys[j].tier
	})

	var out []domain.Position
	for _, k := range keys {
		for _, p := range l.queues[k] {
			out = append(out, copyPosition(p))
		}
	}
	return out
}

// OpenSymbols returns the sorted set of symbols with at least one open
// position.
func (l *Ledger) OpenSymbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	set := make(map[string]struct{})
	for k, q := range l.queues {
		if len(q) > 0 {
			set[k.symbol] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// OpenNotional returns the entry-price notional of all remaining open
// quantity. Entry-price basis keeps the utilization cap deterministic within
// a cycle.
func (l *Ledger) OpenNotional() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0.0
	for _, q := range l.queues {
		for _, p := range q {
			total += float64(p.RemainingQty) * p.EntryPrice
		}
	}
	return total
}

// Get returns a copy of a position by ID, open or closed.
func (l *Ledger) Get(positionID string) (domain.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.byID[positionID]
	if !ok {
		return domain.Position{}, false
	}
	return copyPosition(p), true
}

// insertLocked places a position into its FIFO queue, keeping the queue
// sorted by (entry time, seq). Caller holds the write lock.
func (l *Ledger) insertLocked(p *domain.Position) {
	l.byID[p.ID] = p
	if p.Status != domain.PositionStatusOpen {
		return
	}
	k := queueKey{p.Symbol, p.Tier}
	q := l.queues[k]
	idx := sort.Search(len(q), func(i int) bool {
		if !q[i].EntryAt.Equal(p.EntryAt) {
			return q[i].EntryAt.After(p.EntryAt)
		}
		return q[i].Seq > p.Seq
	})
	q = append(q, nil)
	copy(q[idx+1:], q[idx:])
	q[idx] = p
	l.queues[k] = q
}

// removeFromQueueLocked drops a closed position from its queue. The byID map
// keeps the archived record. Caller holds the write lock.
func (l *Ledger) removeFromQueueLocked(p *domain.Position) {
	k := queueKey{p.Symbol, p.Tier}
	q := l.queues[k]
	for i, candidate := range q {
		if candidate.ID == p.ID {
			l.queues[k] = append(q[:i], q[i+1:]...)
			return
		}
	}
}

func copyPosition(p *domain.Position) domain.Position {
	cp := *p
	cp.Exits = make([]domain.PartialExit, len(p.Exits))
	copy(cp.Exits, p.Exits)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return cp
}

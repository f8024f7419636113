// Package memory provides an in-process PositionStore. Scan mode uses it so
// the engine can run without a database; tests use it as a real store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// PositionStore implements domain.PositionStore with a mutex-guarded map.
type PositionStore struct {
	mu        sync.Mutex
	nextSeq   int64
	positions map[string]*domain.Position
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]*domain.Position)}
}

// Open inserts a new position and assigns its Seq.
func (s *PositionStore) Open(ctx context.Context, p *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.nextSeq++
	p.Seq = s.nextSeq
	cp := *p
	cp.Exits = append([]domain.PartialExit(nil), p.Exits...)
	s.positions[p.ID] = &cp
	return nil
}

// AppendExit records an exit and applies the remaining quantity, fired
// targets, and status atomically under the store lock.
func (s *PositionStore) AppendExit(ctx context.Context, positionID string, exit domain.PartialExit, remaining int64, fired [3]bool, status domain.PositionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[positionID]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	p.Exits = append(p.Exits, exit)
	p.RemainingQty = remaining
	p.TargetsFired = fired
	p.Status = status
	if status == domain.PositionStatusClosed && p.ClosedAt == nil {
		t := exit.Timestamp
		p.ClosedAt = &t
	}
	return nil
}

// UpdateStop ratchets the stop, refusing a downward move.
func (s *PositionStore) UpdateStop(ctx context.Context, positionID string, stop float64, tier domain.StopTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[positionID]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	if stop < p.StopPrice || tier < p.StopTier {
		return domain.ErrLedgerConflict
	}
	p.StopPrice = stop
	p.StopTier = tier
	return nil
}

// ListOpen returns open positions ordered by (symbol, tier, entry, seq).
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusOpen {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if !a.EntryAt.Equal(b.EntryAt) {
			return a.EntryAt.Before(b.EntryAt)
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

// OldestOpen returns the earliest open position in the (symbol, tier) queue.
func (s *PositionStore) OldestOpen(ctx context.Context, symbol string, tier domain.Tier) (domain.Position, error) {
	all, _ := s.ListOpen(ctx)
	for _, p := range all {
		if p.Symbol == symbol && p.Tier == tier {
			return p, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

// ListClosedBefore returns closed positions whose close time precedes the
// cutoff.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, p := range s.positions {
		if p.Status == domain.PositionStatusClosed && p.ClosedAt != nil && p.ClosedAt.Before(before) {
			out = append(out, clone(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func clone(p *domain.Position) domain.Position {
	cp := *p
	cp.Exits = append([]domain.PartialExit(nil), p.Exits...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return cp
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, seq, symbol, tier, entry_at, entry_price,
	initial_qty, remaining_qty, entry_score, pattern,
	stop_price, stop_tier, target1_fired, target2_fired, target3_fired,
	status, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p             domain.Position
		tier, pattern string
		stopTier      int16
		status        string
	)
	err := row.Scan(
		&p.ID, &p.Seq, &p.Symbol, &tier, &p.EntryAt, &p.EntryPrice,
		&p.InitialQty, &p.RemainingQty, &p.EntryScore, &pattern,
		&p.StopPrice, &stopTier,
		&p.TargetsFired[0], &p.TargetsFired[1], &p.TargetsFired[2],
		&status, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Tier = domain.Tier(tier)
	p.Pattern = domain.Pattern(pattern)
	p.StopTier = domain.StopTier(stopTier)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// Open inserts a new position and reads back its store-assigned Seq.
func (s *PositionStore) Open(ctx context.Context, p *domain.Position) error {
	const query = `
		INSERT INTO positions (
			id, symbol, tier, entry_at, entry_price,
			initial_qty, remaining_qty, entry_score, pattern,
			stop_price, stop_tier, status, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, NOW()
		)
		RETURNING seq`

	err := s.pool.QueryRow(ctx, query,
		p.ID, p.Symbol, string(p.Tier), p.EntryAt, p.EntryPrice,
		p.InitialQty, p.RemainingQty, p.EntryScore, string(p.Pattern),
		p.StopPrice, int16(p.StopTier), string(p.Status),
	).Scan(&p.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("postgres: position %s: %w", p.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("postgres: open position %s: %w", p.ID, err)
	}
	return nil
}

// AppendExit records a partial exit and updates the position's remaining
// quantity, fired targets, and status in a single transaction.
func (s *PositionStore) AppendExit(ctx context.Context, positionID string, exit domain.PartialExit, remaining int64, fired [3]bool, status domain.PositionStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin exit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO position_exits (position_id, exited_at, quantity, price, reason)
		VALUES ($1, $2, $3, $4, $5)`,
		positionID, exit.Timestamp, exit.Quantity, exit.Price, string(exit.Reason),
	); err != nil {
		return fmt.Errorf("postgres: insert exit for %s: %w", positionID, err)
	}

	var closedAt *time.Time
	if status == domain.PositionStatusClosed {
		t := exit.Timestamp
		closedAt = &t
	}
	tag, err := tx.Exec(ctx, `
		UPDATE positions SET
			remaining_qty = $2,
			target1_fired = $3,
			target2_fired = $4,
			target3_fired = $5,
			status        = $6,
			closed_at     = COALESCE($7, closed_at),
			updated_at    = NOW()
		WHERE id = $1 AND status = 'open'`,
		positionID, remaining, fired[0], fired[1], fired[2], string(status), closedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s after exit: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: position %s not open: %w", positionID, domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit exit for %s: %w", positionID, err)
	}
	return nil
}

// UpdateStop ratchets the stop price. The WHERE clause refuses a downward
// move, so a stale caller cannot loosen a stop that another writer already
// tightened.
func (s *PositionStore) UpdateStop(ctx context.Context, positionID string, stop float64, tier domain.StopTier) error {
	const query = `
		UPDATE positions SET
			stop_price = $2,
			stop_tier  = $3,
			updated_at = NOW()
		WHERE id = $1 AND status = 'open'
		  AND stop_price <= $2 AND stop_tier <= $3`

	tag, err := s.pool.Exec(ctx, query, positionID, stop, int16(tier))
	if err != nil {
		return fmt.Errorf("postgres: update stop for %s: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: stop update for %s refused: %w", positionID, domain.ErrLedgerConflict)
	}
	return nil
}

// ListOpen returns every open position with its exits, ordered by
// (symbol, tier, entry_at, seq).
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY symbol, tier, entry_at, seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := collectPositions(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachExits(ctx, positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// OldestOpen returns the open position with the earliest entry in the given
// (symbol, tier) queue, ties broken by seq.
func (s *PositionStore) OldestOpen(ctx context.Context, symbol string, tier domain.Tier) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE symbol = $1 AND tier = $2 AND status = 'open'
		 ORDER BY entry_at, seq
		 LIMIT 1`, symbol, string(tier))

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: oldest open %s/%s: %w", symbol, tier, err)
	}
	positions := []domain.Position{p}
	if err := s.attachExits(ctx, positions); err != nil {
		return domain.Position{}, err
	}
	return positions[0], nil
}

// ListClosedBefore returns closed positions whose close time precedes the
// cutoff, with exits, for archival.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at, seq`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	positions, err := collectPositions(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachExits(ctx, positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func collectPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// attachExits loads the exit rows for the given positions in one query.
func (s *PositionStore) attachExits(ctx context.Context, positions []domain.Position) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]string, len(positions))
	index := make(map[string]int, len(positions))
	for i := range positions {
		ids[i] = positions[i].ID
		index[positions[i].ID] = i
	}

	rows, err := s.pool.Query(ctx, `
		SELECT position_id, exited_at, quantity, price, reason
		FROM position_exits
		WHERE position_id = ANY($1)
		ORDER BY position_id, id`, ids)
	if err != nil {
		return fmt.Errorf("postgres: load exits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e      domain.PartialExit
			reason string
		)
		if err := rows.Scan(&e.PositionID, &e.Timestamp, &e.Quantity, &e.Price, &reason); err != nil {
			return fmt.Errorf("postgres: scan exit: %w", err)
		}
		e.Reason = domain.ExitReason(reason)
		if i, ok := index[e.PositionID]; ok {
			positions[i].Exits = append(positions[i].Exits, e)
		}
	}
	return rows.Err()
}

package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists decision events to a local SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open sqlite: %w", err)
	}

	// WAL mode so reads for analysis do not block the engine's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS gate_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			failed_gate TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gate_ts ON gate_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS signal_events (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			symbol    TEXT NOT NULL,
			tier      TEXT NOT NULL,
			score     REAL NOT NULL,
			pattern   TEXT NOT NULL,
			outcome   TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_ts ON signal_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS entry_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			position_id TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			tier        TEXT NOT NULL,
			quantity    INTEGER NOT NULL,
			price       REAL NOT NULL,
			score       REAL NOT NULL,
			pattern     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_ts ON entry_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS exit_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			position_id TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			tier        TEXT NOT NULL,
			quantity    INTEGER NOT NULL,
			price       REAL NOT NULL,
			reason      TEXT NOT NULL,
			closed      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exit_ts ON exit_events(timestamp)`,

		`CREATE TABLE IF NOT EXISTS cycle_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			scanned     INTEGER NOT NULL,
			eligible    INTEGER NOT NULL,
			collected   INTEGER NOT NULL,
			executed    INTEGER NOT NULL,
			exits       INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_ts ON cycle_events(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordGate(evt GateEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO gate_events (timestamp, symbol, failed_gate)
		VALUES (?,?,?)`,
		time.Now().Unix(), evt.Symbol, evt.FailedGate,
	)
	return err
}

func (r *SQLiteRecorder) RecordSignal(evt SignalEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO signal_events
		(timestamp, symbol, tier, score, pattern, outcome)
		VALUES (?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Symbol, string(evt.Tier), evt.Score,
		string(evt.Pattern), evt.Outcome,
	)
	return err
}

func (r *SQLiteRecorder) RecordEntry(evt EntryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO entry_events
		(timestamp, position_id, symbol, tier, quantity, price, score, pattern)
		VALUES (?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.PositionID, evt.Symbol, string(evt.Tier),
		evt.Quantity, evt.Price, evt.Score, string(evt.Pattern),
	)
	return err
}

func (r *SQLiteRecorder) RecordExit(evt ExitEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	closed := 0
	if evt.Closed {
		closed = 1
	}
	_, err := r.db.Exec(`INSERT INTO exit_events
		(timestamp, position_id, symbol, tier, quantity, price, reason, closed)
		VALUES (?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.PositionID, evt.Symbol, string(evt.Tier),
		evt.Quantity, evt.Price, string(evt.Reason), closed,
	)
	return err
}

func (r *SQLiteRecorder) RecordCycle(evt CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO cycle_events
		(timestamp, scanned, eligible, collected, executed, exits, duration_ms)
		VALUES (?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.Scanned, evt.Eligible, evt.Collected,
		evt.Executed, evt.Exits, evt.DurationMs,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

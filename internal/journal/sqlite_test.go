package journal

import (
	"path/filepath"
	"testing"

	"github.com/kmatsuda/swingtrader/internal/domain"
)

func newRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func countRows(t *testing.T, r *SQLiteRecorder, table string) int {
	t.Helper()
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSQLiteRecorder_RecordsAllEventTypes(t *testing.T) {
	r := newRecorder(t)

	if err := r.RecordGate(GateEvent{Symbol: "AAPL", FailedGate: "uptrend"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordSignal(SignalEvent{
		Symbol: "AAPL", Tier: domain.TierB1, Score: 3.5,
		Pattern: domain.PatternEngulfing, Outcome: "collected",
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordEntry(EntryEvent{
		PositionID: "p1", Symbol: "AAPL", Tier: domain.TierB1,
		Quantity: 10, Price: 100.5, Score: 3.5, Pattern: domain.PatternEngulfing,
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordExit(ExitEvent{
		PositionID: "p1", Symbol: "AAPL", Tier: domain.TierB1,
		Quantity: 10, Price: 110, Reason: domain.ExitReasonPT1, Closed: false,
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordCycle(CycleEvent{
		Scanned: 20, Eligible: 3, Collected: 2, Executed: 1, Exits: 1, DurationMs: 1500,
	}); err != nil {
		t.Fatal(err)
	}

	for _, table := range []string{"gate_events", "signal_events", "entry_events", "exit_events", "cycle_events"} {
		if n := countRows(t, r, table); n != 1 {
			t.Errorf("%s has %d rows, want 1", table, n)
		}
	}
}

func TestSQLiteRecorder_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	r, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RecordGate(GateEvent{Symbol: "MSFT", FailedGate: "stalling"}); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}

	r2, err := NewSQLiteRecorder(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	if n := countRows(t, r2, "gate_events"); n != 1 {
		t.Errorf("gate_events = %d rows after reopen, want 1", n)
	}
}

func TestNoopRecorder_AlwaysSucceeds(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	if err := r.RecordGate(GateEvent{}); err != nil {
		t.Error(err)
	}
	if err := r.RecordCycle(CycleEvent{}); err != nil {
		t.Error(err)
	}
	if err := r.Close(); err != nil {
		t.Error(err)
	}
}

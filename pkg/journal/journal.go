// Package journal is the local SQLite run journal: an append-only event log
// of run, phase, and item activity written by the scheduler and read by
// `loom status` and loom-dash. It is observability only; the tracking
// service remains the system of record for item status.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS run_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	type       TEXT NOT NULL,
	item_id    TEXT NOT NULL DEFAULT '',
	phase      INTEGER NOT NULL DEFAULT 0,
	detail     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id, id);
CREATE INDEX IF NOT EXISTS idx_run_events_item ON run_events(item_id);
`

// Event is one journal entry.
type Event struct {
	ID        int64
	RunID     string
	Type      string
	ItemID    string
	Phase     int
	Detail    string
	CreatedAt time.Time
}

// Store wraps the journal database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the journal at path with WAL and a 5-second busy
// timeout, applies the schema, and verifies the connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal %s: %w", path, err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure journal %s: %w", path, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing journal without write access, for readers
// like loom-dash that must not block the writer.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("journal not found: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection. Safe to call multiple times.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append writes one event. CreatedAt defaults to now when zero.
func (s *Store) Append(ctx context.Context, ev Event) error {
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_events (run_id, type, item_id, phase, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.RunID, ev.Type, ev.ItemID, ev.Phase, ev.Detail, at.Unix())
	if err != nil {
		return fmt.Errorf("append run event: %w", err)
	}
	return nil
}

// Query filters journal events.
type Query struct {
	RunID  string // restrict to one run
	ItemID string // restrict to one item
	Types  []string
	Limit  int // 0 = no limit; results are newest-first when limited
}

// Events returns journal entries matching q in insertion order.
func (s *Store) Events(ctx context.Context, q Query) ([]Event, error) {
	var conds []string
	var args []any
	if q.RunID != "" {
		conds = append(conds, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.ItemID != "" {
		conds = append(conds, "item_id = ?")
		args = append(args, q.ItemID)
	}
	if len(q.Types) > 0 {
		placeholders := strings.Repeat("?,", len(q.Types))
		conds = append(conds, fmt.Sprintf("type IN (%s)", placeholders[:len(placeholders)-1]))
		for _, t := range q.Types {
			args = append(args, t)
		}
	}

	query := "SELECT id, run_id, type, item_id, phase, detail, created_at FROM run_events"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id"
	if q.Limit > 0 {
		query = strings.Replace(query, "ORDER BY id", "ORDER BY id DESC", 1)
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...) //nolint:rowserrcheck // checked below
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var unix int64
		if err := rows.Scan(&ev.ID, &ev.RunID, &ev.Type, &ev.ItemID, &ev.Phase, &ev.Detail, &unix); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		ev.CreatedAt = time.Unix(unix, 0)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run events: %w", err)
	}

	// Newest-first limited queries come back reversed; restore insertion order.
	if q.Limit > 0 {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return events, nil
}

// LatestRunID returns the run id of the most recent event, or "" when the
// journal is empty.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM run_events ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest run id: %w", err)
	}
	return runID, nil
}

// ForRun returns a logger bound to one run id, suitable for the scheduler's
// RunLog hook.
func (s *Store) ForRun(runID string) *RunLogger {
	return &RunLogger{store: s, runID: runID}
}

// RunLogger appends scheduler telemetry for a single run. Append failures
// are swallowed: journal writes must never fail a run.
type RunLogger struct {
	store *Store
	runID string
}

// Log implements the scheduler's RunLog interface.
func (l *RunLogger) Log(ctx context.Context, event, itemID string, phase int, detail string) {
	_ = l.store.Append(ctx, Event{
		RunID:  l.runID,
		Type:   event,
		ItemID: itemID,
		Phase:  phase,
		Detail: detail,
	})
}

// Package memory implements the tiered dialogue memory: an append-only log of
// turns, consolidated summary traces, and the dual-context bundle fed to the
// prompt layer.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glyphkeeper/glyphkeeper/internal/llm"
)

// SchemaDDL defines the dialogue log and memory trace tables.
// Execute against a SQLite database with: store.Migrate(ctx).
const SchemaDDL = `
-- Append-only dialogue log, one row per turn. Rows are never deleted; the
-- only mutation is flipping consolidated when a consolidation event covers
-- the turn.
CREATE TABLE IF NOT EXISTS dialogue_records (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    turn_number INTEGER NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    consolidated INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    UNIQUE (session_id, turn_number)
);

-- One row per consolidation event, covering a contiguous disjoint range of
-- turn numbers. Immutable after creation.
CREATE TABLE IF NOT EXISTS memory_traces (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    summary TEXT NOT NULL,
    start_turn INTEGER NOT NULL,
    end_turn INTEGER NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dialogue_session_turn
    ON dialogue_records (session_id, turn_number);
CREATE INDEX IF NOT EXISTS idx_dialogue_unconsolidated
    ON dialogue_records (session_id, consolidated);
`

// DialogueRecord is one persisted turn of dialogue.
type DialogueRecord struct {
	ID           string
	SessionID    string
	TurnNumber   int
	Role         llm.Role
	Content      string
	Consolidated bool
	CreatedAt    time.Time
}

// Trace is one consolidated summary covering turns [StartTurn, EndTurn].
type Trace struct {
	ID        string
	SessionID string
	Summary   string
	StartTurn int
	EndTurn   int
	Tags      []string
	CreatedAt time.Time
}

// Store persists dialogue records and memory traces.
// It is the sole writer of consolidated flags and trace rows.
type Store struct {
	db *sql.DB
}

// NewStore returns a store backed by the given SQLite database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the dialogue and trace tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("migrate memory schema: %w", err)
	}
	return nil
}

// AppendDialogue inserts a new record with the next turn number for the
// session. The turn number is reserved inside the INSERT itself so the
// sequence stays gapless even without caller-side serialization.
func (s *Store) AppendDialogue(ctx context.Context, id, sessionID string, role llm.Role, content string) (DialogueRecord, error) {
	rec := DialogueRecord{
		ID:        id,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO dialogue_records (id, session_id, turn_number, role, content, consolidated, created_at)
		 VALUES (?, ?, (SELECT COALESCE(MAX(turn_number), 0) + 1 FROM dialogue_records WHERE session_id = ?), ?, ?, 0, ?)
		 RETURNING turn_number`,
		rec.ID, sessionID, sessionID, string(role), content, rec.CreatedAt.Format(time.RFC3339Nano),
	).Scan(&rec.TurnNumber)
	if err != nil {
		return DialogueRecord{}, fmt.Errorf("append dialogue: %w", err)
	}
	return rec, nil
}

// Unconsolidated returns the session's unconsolidated buffer in turn order.
func (s *Store) Unconsolidated(ctx context.Context, sessionID string) ([]DialogueRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, turn_number, role, content, consolidated, created_at
		 FROM dialogue_records
		 WHERE session_id = ? AND consolidated = 0
		 ORDER BY turn_number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query unconsolidated: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// RecentWindow returns the most recent limit records in chronological order,
// regardless of consolidation status.
func (s *Store) RecentWindow(ctx context.Context, sessionID string, limit int) ([]DialogueRecord, error) {
	return s.recent(ctx, sessionID, 0, limit)
}

// RecentWindowBefore is RecentWindow restricted to turns strictly before
// beforeTurn. The orchestrator uses it to exclude the turn it just appended.
func (s *Store) RecentWindowBefore(ctx context.Context, sessionID string, beforeTurn, limit int) ([]DialogueRecord, error) {
	return s.recent(ctx, sessionID, beforeTurn, limit)
}

func (s *Store) recent(ctx context.Context, sessionID string, beforeTurn, limit int) ([]DialogueRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	q := `SELECT id, session_id, turn_number, role, content, consolidated, created_at
	      FROM dialogue_records WHERE session_id = ?`
	args := []any{sessionID}
	if beforeTurn > 0 {
		q += ` AND turn_number < ?`
		args = append(args, beforeTurn)
	}
	q += ` ORDER BY turn_number DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent window: %w", err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Consolidate records one consolidation event atomically: the trace row is
// inserted and every covered record is flagged in a single transaction, so a
// failure leaves the buffer untouched for the next attempt.
func (s *Store) Consolidate(ctx context.Context, trace Trace, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return fmt.Errorf("consolidate: empty record set")
	}
	tags, err := json.Marshal(trace.Tags)
	if err != nil {
		return fmt.Errorf("marshal trace tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin consolidate tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_traces (id, session_id, summary, start_turn, end_turn, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		trace.ID, trace.SessionID, trace.Summary, trace.StartTurn, trace.EndTurn,
		string(tags), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}

	for _, id := range recordIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE dialogue_records SET consolidated = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("flag record %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit consolidate tx: %w", err)
	}
	return nil
}

// Traces returns the session's traces in creation order.
func (s *Store) Traces(ctx context.Context, sessionID string) ([]Trace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, summary, start_turn, end_turn, tags, created_at
		 FROM memory_traces WHERE session_id = ? ORDER BY start_turn`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query traces: %w", err)
	}
	defer rows.Close()

	var out []Trace
	for rows.Next() {
		var t Trace
		var tags, created string
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Summary, &t.StartTurn, &t.EndTurn, &tags, &created); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			t.Tags = nil
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRecords(rows *sql.Rows) ([]DialogueRecord, error) {
	var out []DialogueRecord
	for rows.Next() {
		var r DialogueRecord
		var role, created string
		var consolidated int
		if err := rows.Scan(&r.ID, &r.SessionID, &r.TurnNumber, &role, &r.Content, &consolidated, &created); err != nil {
			return nil, fmt.Errorf("scan dialogue record: %w", err)
		}
		r.Role = llm.Role(role)
		r.Consolidated = consolidated != 0
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore is a durable, append-only memory store. History survives
// process restarts; the read side applies the window, so old turns are
// never deleted except by Clear.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a sqlite-backed store on an existing database
// handle, running migrations on first use. The caller owns the handle
// and its driver choice.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate memory: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS turns (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			text       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq);
	`)
	return err
}

// Append inserts a turn. seq is the only ordering key, so two turns
// appended in the same instant still read back in insertion order.
func (s *SQLiteStore) Append(ctx context.Context, sessionID, role, text string) error {
	turnID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("turn id: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, role, text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		turnID.String(), sessionID, role, text, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Recent returns at most limit turns, oldest-first. The query reads
// the newest rows and reverses them, so the window always covers the
// most recently appended turns.
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns
		 WHERE session_id = ?
		 ORDER BY seq DESC
		 LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("read recent turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; flip to oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// All returns the full history for a session, oldest-first.
func (s *SQLiteStore) All(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, created_at FROM turns
		 WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

// Clear deletes all turns for a session. Deleting an unknown session
// is a no-op.
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clear turns: %w", err)
	}
	return nil
}

// Stats returns memory statistics.
func (s *SQLiteStore) Stats(ctx context.Context) map[string]any {
	var sessions, turns int
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT session_id) FROM turns`).Scan(&sessions)
	_ = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&turns)

	return map[string]any{
		"sessions": sessions,
		"turns":    turns,
		"storage":  "sqlite",
	}
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Role, &t.Text, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Package session persists client-pushed session snapshots. A record
// is an opaque JSON payload keyed by id; the web widget posts its own
// full conversation state here. This store is independent from turn
// memory: the chat pipeline never reads it, and snapshots are never
// merged back into server-side history.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Fetch for unknown ids. It is a normal
// outcome, not a fault. Handlers map it to 404.
var ErrNotFound = errors.New("session not found")

// ValidationError reports a missing required field on upsert.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("session must include %s", e.Field)
}

// Record is a stored session snapshot. Payload is the client's object
// verbatim; CreatedAt is set on first insert and never overwritten,
// UpdatedAt refreshes on every upsert.
type Record struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists session records in SQLite.
type Store struct {
	db *sql.DB

	// now is swappable for tests.
	now func() time.Time
}

// NewStore creates a session record store on an existing database
// handle, running migrations on first use.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate sessions: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Upsert stores a snapshot. The payload fully replaces any previous
// one, never a partial merge. created_at survives; updated_at refreshes.
func (s *Store) Upsert(ctx context.Context, id string, payload json.RawMessage) error {
	if id == "" {
		return &ValidationError{Field: "id"}
	}
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE
		 SET data = excluded.data, updated_at = excluded.updated_at`,
		id, string(payload), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", id, err)
	}
	return nil
}

// Fetch returns the stored record, or ErrNotFound.
func (s *Store) Fetch(ctx context.Context, id string) (*Record, error) {
	var rec Record
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM sessions WHERE id = ?`,
		id,
	).Scan(&rec.ID, &data, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch session %s: %w", id, err)
	}

	rec.Payload = json.RawMessage(data)
	return &rec, nil
}

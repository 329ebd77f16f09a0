// Package memory provides bounded conversational memory keyed by
// session identity. Turns are append-only: they are never mutated or
// reordered after insertion, and the chat pipeline reads only the most
// recent window.
package memory

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is how many recent turns the chat pipeline replays.
const DefaultWindow = 8

// DefaultRetention caps how many turns the in-memory backend keeps per
// session. The sqlite backend keeps full history.
const DefaultRetention = 40

// Roles for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged message in a conversation.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the interface for conversation memory backends.
//
// Concurrent requests for the same session may interleave appends;
// Recent reflects write arrival order, not logical conversation order.
// Each backend serializes its own internal writes but provides no
// cross-request mutual exclusion.
type Store interface {
	// Append records a turn. A storage fault is returned, never
	// swallowed.
	Append(ctx context.Context, sessionID, role, text string) error

	// Recent returns at most limit turns, oldest-first, strictly the
	// most recently appended ones. Empty slice when there is no
	// history. A non-positive limit uses DefaultWindow.
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// All returns the full history for a session, oldest-first,
	// including turns beyond the chat window.
	All(ctx context.Context, sessionID string) ([]Turn, error)

	// Clear deletes all turns for a session. Idempotent.
	Clear(ctx context.Context, sessionID string) error

	// Stats returns backend statistics for diagnostics.
	Stats(ctx context.Context) map[string]any
}

// InMemoryStore keeps turns in process memory. History does not
// survive a restart, so it is only wired up when the config asks for
// the memory backend explicitly.
type InMemoryStore struct {
	mu        sync.RWMutex
	turns     map[string][]Turn
	retention int
}

// NewInMemoryStore creates a process-local store. retention caps the
// turns kept per session; non-positive values use DefaultRetention.
func NewInMemoryStore(retention int) *InMemoryStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &InMemoryStore{
		turns:     make(map[string][]Turn),
		retention: retention,
	}
}

// Append records a turn, evicting the oldest once retention is exceeded.
func (s *InMemoryStore) Append(_ context.Context, sessionID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.turns[sessionID], Turn{
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	})
	if len(turns) > s.retention {
		turns = turns[len(turns)-s.retention:]
	}
	s.turns[sessionID] = turns
	return nil
}

// Recent returns the tail of the session's history, oldest-first.
func (s *InMemoryStore) Recent(_ context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	// Return a copy so callers never alias internal state.
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// All returns every retained turn for the session, oldest-first.
func (s *InMemoryStore) All(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[sessionID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// Clear removes the session's history. Clearing an unknown session
// succeeds silently.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, sessionID)
	return nil
}

// Stats returns memory statistics.
func (s *InMemoryStore) Stats(_ context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, turns := range s.turns {
		total += len(turns)
	}

	return map[string]any{
		"sessions":  len(s.turns),
		"turns":     total,
		"retention": s.retention,
		"storage":   "memory",
	}
}

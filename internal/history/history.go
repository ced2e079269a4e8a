// Package history is the append-only per-session chat log. Each turn is
// stored as one opaque serialized batch; reading a session reconstructs the
// full history by concatenating its batches in append order.
package history

import (
	"context"
	"encoding/json"
	"sync"
)

// Store persists per-session message batches.
type Store interface {
	// Append adds one serialized batch to the session log. Appends on the
	// same session are atomic; the batch is stored as-is.
	Append(ctx context.Context, sessionID string, batch json.RawMessage) error

	// History returns all batches of a session in append order. An unseen
	// session yields an empty history, not an error.
	History(ctx context.Context, sessionID string) ([]json.RawMessage, error)

	Close() error
}

// MemoryStore keeps session histories in process memory. Nothing survives a
// restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]json.RawMessage)}
}

func (s *MemoryStore) Append(ctx context.Context, sessionID string, batch json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so a caller reusing its buffer cannot mutate the log.
	stored := make(json.RawMessage, len(batch))
	copy(stored, batch)
	s.sessions[sessionID] = append(s.sessions[sessionID], stored)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, sessionID string) ([]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batches := s.sessions[sessionID]
	out := make([]json.RawMessage, len(batches))
	copy(out, batches)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

package session

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps sessions in process memory with optimistic version
// checks. Suitable for tests and single-node deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

// Load retrieves a deep copy of the stored session.
func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

// Save commits the session if its version matches the stored one.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	current, exists := m.sessions[s.ID]
	switch {
	case !exists:
		if s.Version != 0 {
			return fmt.Errorf("%w: session %q expected version 0 on create, got %d",
				ErrVersionConflict, s.ID, s.Version)
		}
	case s.Version != current.Version:
		return fmt.Errorf("%w: session %q expected version %d, got %d",
			ErrVersionConflict, s.ID, current.Version, s.Version)
	}

	s.Version++
	m.sessions[s.ID] = s.Clone()
	return nil
}

// Delete removes a session. Deleting an absent session is a no-op.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	delete(m.sessions, id)
	return nil
}

// List returns all stored session IDs.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

// Close marks the store closed; further operations fail.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.sessions = nil
	return nil
}

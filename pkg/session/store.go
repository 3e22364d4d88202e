package session

import (
	"context"
	"errors"
)

// Common errors for session persistence.
var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrVersionConflict is returned when a commit carries a stale
	// version, meaning another writer committed first.
	ErrVersionConflict = errors.New("session version conflict")
	// ErrConcurrentModification is returned when the commit retry
	// budget is exhausted.
	ErrConcurrentModification = errors.New("concurrent session modification")
	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("session store is closed")
)

// Store abstracts versioned session persistence over a key-value
// backing store. Implementations must be safe for concurrent use.
//
// Save is a compare-and-swap: the session must carry the Version it was
// loaded with. On success the stored copy (and the passed session) get
// Version+1; if another writer advanced the version in between, Save
// returns ErrVersionConflict and stores nothing.
type Store interface {
	// Load retrieves a session by ID.
	// Returns ErrSessionNotFound if it doesn't exist.
	Load(ctx context.Context, id string) (*Session, error)

	// Save commits a session under optimistic version check.
	Save(ctx context.Context, s *Session) error

	// Delete removes a session.
	Delete(ctx context.Context, id string) error

	// List returns all stored session IDs.
	List(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/dyzsasd/tomo/pkg/observability"
)

const applyRetries = 3

// Manager coordinates session lifecycle on top of a Store. It owns the
// slot declarations used to initialize new sessions and the retry loop
// that turns transient version conflicts into clean replays.
type Manager struct {
	store Store
	decls []Slot
	// greeting is sent as the first bot utterance of a fresh session.
	greeting string
}

// NewManager creates a session manager backed by the given store.
// decls are the slot declarations every new session starts with.
func NewManager(store Store, decls []Slot, greeting string) *Manager {
	return &Manager{
		store:    store,
		decls:    decls,
		greeting: greeting,
	}
}

// Store exposes the underlying store, mainly for health checks.
func (m *Manager) Store() Store {
	return m.store
}

// GetOrCreate loads the session with the given ID, creating and
// persisting a fresh one when none exists. A fresh session starts
// active with a SessionStarted event and, when the manager carries a
// greeting, a BotUttered event for it.
func (m *Manager) GetOrCreate(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Load(ctx, id)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	s = New(id, m.decls)
	events := []Event{NewSessionStarted()}
	if m.greeting != "" {
		events = append(events, NewBotUttered(m.greeting))
	}
	if err := s.ApplyEvents(events); err != nil {
		return nil, fmt.Errorf("initialize session: %w", err)
	}

	if err := m.store.Save(ctx, s); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// Another writer created the session first; use theirs.
			return m.store.Load(ctx, id)
		}
		return nil, err
	}
	return s, nil
}

// Apply loads the session, invokes fn to produce events, replays them
// onto the loaded copy, and commits. On a version conflict the whole
// load-produce-commit cycle is retried against fresh state, so fn must
// be safe to call more than once and must not perform external side
// effects itself. After applyRetries conflicts the commit is abandoned
// with ErrConcurrentModification.
func (m *Manager) Apply(ctx context.Context, id string, fn func(*Session) ([]Event, error)) (*Session, error) {
	var lastErr error
	for attempt := 0; attempt < applyRetries; attempt++ {
		s, err := m.GetOrCreate(ctx, id)
		if err != nil {
			return nil, err
		}

		events, err := fn(s)
		if err != nil {
			return nil, err
		}
		if len(events) == 0 {
			return s, nil
		}

		if err := s.ApplyEvents(events); err != nil {
			return nil, fmt.Errorf("apply events: %w", err)
		}

		err = m.store.Save(ctx, s)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
		observability.RecordCommitConflict()
		log.Printf("[SESSION] commit conflict on %s (attempt %d/%d), retrying", id, attempt+1, applyRetries)
	}
	return nil, fmt.Errorf("%w: session %q: %v", ErrConcurrentModification, id, lastErr)
}

// Commit applies a fixed batch of events to the session. It is a thin
// wrapper over Apply for callers that computed events up front.
func (m *Manager) Commit(ctx context.Context, id string, events []Event) (*Session, error) {
	return m.Apply(ctx, id, func(*Session) ([]Event, error) {
		return events, nil
	})
}

// Disable marks the session inactive.
func (m *Manager) Disable(ctx context.Context, id string) (*Session, error) {
	return m.Commit(ctx, id, []Event{NewSessionDisabled()})
}

// Restart resets the session to a fresh active state, clearing slots
// back to their initial values.
func (m *Manager) Restart(ctx context.Context, id string) (*Session, error) {
	events := []Event{NewSessionStarted()}
	if m.greeting != "" {
		events = append(events, NewBotUttered(m.greeting))
	}
	return m.Commit(ctx, id, events)
}

// Delete removes the session entirely.
func (m *Manager) Delete(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

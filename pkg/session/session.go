// Package session owns per-conversation state: the typed slot store,
// the event history, and the versioned persistence that keeps
// concurrent turns from clobbering each other.
package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Session aggregates the conversation state of one user. It is a plain
// value: synchronization happens in the Store/Manager commit path, not
// here. Mutate sessions only by applying events through Manager.Apply.
type Session struct {
	// ID is the unique conversation identifier.
	ID string
	// Intent currently governing the conversation.
	Intent string
	// Step is the active workflow step; "" means no step-based
	// workflow is running.
	Step string
	// PendingAction is an action parked on a human-confirmation
	// request, resumed on the next user input.
	PendingAction string
	// LastAction is the most recently executed action name.
	LastAction string
	// Turns counts processed user messages.
	Turns int
	// Version increments on every committed mutation. Writers must
	// carry the version they loaded; the store rejects stale commits.
	Version int64
	// Active is false once the session has been disabled.
	Active bool
	// Slots is the typed key-value state of the conversation.
	Slots *SlotStore
	// Events is the ordered history of everything that happened.
	Events []Event

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an empty session with the given slot declarations.
func New(id string, decls []Slot) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		Active:    true,
		Slots:     NewSlotStore(decls),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyEvents applies each event in order and appends it to the
// history. The first failing event stops the replay; the session may
// then hold a partial mutation, which is why callers work on a clone
// and discard it on error.
func (s *Session) ApplyEvents(events []Event) error {
	for _, ev := range events {
		if err := ev.Apply(s); err != nil {
			return fmt.Errorf("apply %s: %w", ev.Type(), err)
		}
		s.Events = append(s.Events, ev)
	}
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Clone returns a deep copy. Slot values and event payloads are shared;
// both are treated as immutable once recorded.
func (s *Session) Clone() *Session {
	dup := *s
	dup.Slots = s.Slots.Clone()
	dup.Events = make([]Event, len(s.Events))
	copy(dup.Events, s.Events)
	return &dup
}

// LastUserUttered returns the most recent user message event, or nil.
func (s *Session) LastUserUttered() *UserUttered {
	for i := len(s.Events) - 1; i >= 0; i-- {
		if ev, ok := s.Events[i].(*UserUttered); ok {
			return ev
		}
	}
	return nil
}

// HasBotRepliedSince reports whether the bot uttered anything after the
// latest user message. Quick-reply policies use this to avoid talking
// over a reply that already went out.
func (s *Session) HasBotRepliedSince() bool {
	for i := len(s.Events) - 1; i >= 0; i-- {
		switch s.Events[i].(type) {
		case *BotUttered:
			return true
		case *UserUttered:
			return false
		}
	}
	return false
}

// Transcript renders the conversation history as alternating user/bot
// lines for predictor prompts.
func (s *Session) Transcript() []string {
	var lines []string
	for _, ev := range s.Events {
		switch e := ev.(type) {
		case *UserUttered:
			if e.Intent != "" {
				lines = append(lines, fmt.Sprintf("user(%s): %s", e.Intent, e.Text))
			} else {
				lines = append(lines, "user: "+e.Text)
			}
		case *BotUttered:
			lines = append(lines, "bot: "+e.Text)
		}
	}
	return lines
}

// sessionJSON is the persisted wire form of a Session.
type sessionJSON struct {
	ID            string     `json:"id"`
	Intent        string     `json:"intent,omitempty"`
	Step          string     `json:"step,omitempty"`
	PendingAction string     `json:"pendingAction,omitempty"`
	LastAction    string     `json:"lastAction,omitempty"`
	Turns         int        `json:"turns"`
	Version       int64      `json:"version"`
	Active        bool       `json:"active"`
	Slots         *SlotStore `json:"slots"`
	Events        []envelope `json:"events"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// MarshalJSON serializes the session including its polymorphic event
// history.
func (s *Session) MarshalJSON() ([]byte, error) {
	events, err := encodeEvents(s.Events)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sessionJSON{
		ID:            s.ID,
		Intent:        s.Intent,
		Step:          s.Step,
		PendingAction: s.PendingAction,
		LastAction:    s.LastAction,
		Turns:         s.Turns,
		Version:       s.Version,
		Active:        s.Active,
		Slots:         s.Slots,
		Events:        events,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	})
}

// UnmarshalJSON restores a session from its wire form.
func (s *Session) UnmarshalJSON(data []byte) error {
	var wire sessionJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	events, err := decodeEvents(wire.Events)
	if err != nil {
		return err
	}
	s.ID = wire.ID
	s.Intent = wire.Intent
	s.Step = wire.Step
	s.PendingAction = wire.PendingAction
	s.LastAction = wire.LastAction
	s.Turns = wire.Turns
	s.Version = wire.Version
	s.Active = wire.Active
	s.Slots = wire.Slots
	s.Events = events
	s.CreatedAt = wire.CreatedAt
	s.UpdatedAt = wire.UpdatedAt
	if s.Slots == nil {
		s.Slots = NewSlotStore(nil)
	}
	return nil
}

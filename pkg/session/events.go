package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is one entry of a session's history. Events are the unit of
// mutation: a turn collects events against a snapshot and the commit
// path replays them onto a freshly loaded session, so an optimistic
// retry never repeats external calls.
type Event interface {
	// Type is the stable wire name of the event.
	Type() string
	// Apply mutates the session. Apply must be deterministic and free
	// of external side effects.
	Apply(s *Session) error
}

// Event wire names.
const (
	TypeUserUttered           = "user_uttered"
	TypeBotUttered            = "bot_uttered"
	TypeSlotFilled            = "slot_filled"
	TypeSlotConfirmed         = "slot_confirmed"
	TypeActionExecuted        = "action_executed"
	TypeActionFailed          = "action_failed"
	TypeStepEntered           = "step_entered"
	TypeConfirmationRequested = "confirmation_requested"
	TypeConfirmationResolved  = "confirmation_resolved"
	TypeSessionStarted        = "session_started"
	TypeSessionDisabled       = "session_disabled"
)

// Slot write origins, checked by SlotFilled.Apply.
const (
	OriginExtraction = "extraction"
	OriginAction     = "action"
)

// UserUttered records an inbound user message and the intent detected
// for it.
type UserUttered struct {
	MessageID string    `json:"messageId"`
	Text      string    `json:"text"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *UserUttered) Type() string { return TypeUserUttered }

func (e *UserUttered) Apply(s *Session) error {
	if e.Intent != "" {
		s.Intent = e.Intent
	}
	s.Turns++
	return nil
}

// BotUttered records an outbound bot message.
type BotUttered struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *BotUttered) Type() string { return TypeBotUttered }

func (e *BotUttered) Apply(s *Session) error { return nil }

// SlotFilled records a slot write. Origin selects the write path so the
// extractable invariant holds on replay as well.
type SlotFilled struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *SlotFilled) Type() string { return TypeSlotFilled }

func (e *SlotFilled) Apply(s *Session) error {
	if e.Origin == OriginExtraction {
		return s.Slots.SetExtracted(e.Key, e.Value)
	}
	return s.Slots.Set(e.Key, e.Value)
}

// SlotConfirmed records an explicit user affirmation of a slot value.
type SlotConfirmed struct {
	Key       string    `json:"key"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *SlotConfirmed) Type() string { return TypeSlotConfirmed }

func (e *SlotConfirmed) Apply(s *Session) error {
	return s.Slots.Confirm(e.Key)
}

// ActionExecuted records a completed action and its outcome kind.
type ActionExecuted struct {
	Action    string    `json:"action"`
	Policy    string    `json:"policy,omitempty"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ActionExecuted) Type() string { return TypeActionExecuted }

func (e *ActionExecuted) Apply(s *Session) error {
	s.LastAction = e.Action
	return nil
}

// ActionFailed records an action whose outcome was a failure.
type ActionFailed struct {
	Action    string    `json:"action"`
	Policy    string    `json:"policy,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ActionFailed) Type() string { return TypeActionFailed }

func (e *ActionFailed) Apply(s *Session) error {
	s.LastAction = e.Action
	return nil
}

// StepEntered records a workflow step transition. An empty step leaves
// the step-based workflow.
type StepEntered struct {
	Step      string    `json:"step"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StepEntered) Type() string { return TypeStepEntered }

func (e *StepEntered) Apply(s *Session) error {
	s.Step = e.Step
	return nil
}

// ConfirmationRequested parks an action until the user responds.
type ConfirmationRequested struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ConfirmationRequested) Type() string { return TypeConfirmationRequested }

func (e *ConfirmationRequested) Apply(s *Session) error {
	s.PendingAction = e.Action
	return nil
}

// ConfirmationResolved clears a parked action.
type ConfirmationResolved struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ConfirmationResolved) Type() string { return TypeConfirmationResolved }

func (e *ConfirmationResolved) Apply(s *Session) error {
	s.PendingAction = ""
	return nil
}

// SessionStarted resets the session to its initial state.
type SessionStarted struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e *SessionStarted) Type() string { return TypeSessionStarted }

func (e *SessionStarted) Apply(s *Session) error {
	s.Slots.Reset()
	s.Active = true
	return nil
}

// SessionDisabled deactivates the session; no further actions run.
type SessionDisabled struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e *SessionDisabled) Type() string { return TypeSessionDisabled }

func (e *SessionDisabled) Apply(s *Session) error {
	s.Active = false
	return nil
}

// NewUserUttered records an inbound message with a fresh timestamp.
func NewUserUttered(messageID, text, intent string) *UserUttered {
	return &UserUttered{MessageID: messageID, Text: text, Intent: intent, Timestamp: time.Now().UTC()}
}

// NewBotUttered records an outbound message with a fresh timestamp.
func NewBotUttered(text string) *BotUttered {
	return &BotUttered{Text: text, Timestamp: time.Now().UTC()}
}

// NewSlotFilled records a slot write from the given origin.
func NewSlotFilled(key string, value any, origin string) *SlotFilled {
	return &SlotFilled{Key: key, Value: value, Origin: origin, Timestamp: time.Now().UTC()}
}

// NewSlotConfirmed records a user affirmation of a slot value.
func NewSlotConfirmed(key string) *SlotConfirmed {
	return &SlotConfirmed{Key: key, Timestamp: time.Now().UTC()}
}

// NewActionExecuted records a completed action.
func NewActionExecuted(action, policy, outcome string) *ActionExecuted {
	return &ActionExecuted{Action: action, Policy: policy, Outcome: outcome, Timestamp: time.Now().UTC()}
}

// NewActionFailed records a failed action.
func NewActionFailed(action, policy, reason string) *ActionFailed {
	return &ActionFailed{Action: action, Policy: policy, Reason: reason, Timestamp: time.Now().UTC()}
}

// NewStepEntered records a workflow step transition.
func NewStepEntered(step string) *StepEntered {
	return &StepEntered{Step: step, Timestamp: time.Now().UTC()}
}

// NewConfirmationRequested parks an action awaiting the user.
func NewConfirmationRequested(action string) *ConfirmationRequested {
	return &ConfirmationRequested{Action: action, Timestamp: time.Now().UTC()}
}

// NewConfirmationResolved clears a parked action.
func NewConfirmationResolved(action string) *ConfirmationResolved {
	return &ConfirmationResolved{Action: action, Timestamp: time.Now().UTC()}
}

// NewSessionStarted marks a session (re)start.
func NewSessionStarted() *SessionStarted {
	return &SessionStarted{Timestamp: time.Now().UTC()}
}

// NewSessionDisabled marks a session as disabled.
func NewSessionDisabled() *SessionDisabled {
	return &SessionDisabled{Timestamp: time.Now().UTC()}
}

// envelope is the persisted form of an event.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var eventFactories = map[string]func() Event{
	TypeUserUttered:           func() Event { return &UserUttered{} },
	TypeBotUttered:            func() Event { return &BotUttered{} },
	TypeSlotFilled:            func() Event { return &SlotFilled{} },
	TypeSlotConfirmed:         func() Event { return &SlotConfirmed{} },
	TypeActionExecuted:        func() Event { return &ActionExecuted{} },
	TypeActionFailed:          func() Event { return &ActionFailed{} },
	TypeStepEntered:           func() Event { return &StepEntered{} },
	TypeConfirmationRequested: func() Event { return &ConfirmationRequested{} },
	TypeConfirmationResolved:  func() Event { return &ConfirmationResolved{} },
	TypeSessionStarted:        func() Event { return &SessionStarted{} },
	TypeSessionDisabled:       func() Event { return &SessionDisabled{} },
}

func encodeEvents(events []Event) ([]envelope, error) {
	encoded := make([]envelope, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", ev.Type(), err)
		}
		encoded = append(encoded, envelope{Type: ev.Type(), Data: data})
	}
	return encoded, nil
}

func decodeEvents(encoded []envelope) ([]Event, error) {
	events := make([]Event, 0, len(encoded))
	for _, env := range encoded {
		factory, ok := eventFactories[env.Type]
		if !ok {
			return nil, fmt.Errorf("unknown event type %q", env.Type)
		}
		ev := factory()
		if err := json.Unmarshal(env.Data, ev); err != nil {
			return nil, fmt.Errorf("unmarshal event %s: %w", env.Type, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

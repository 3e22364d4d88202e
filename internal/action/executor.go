package action

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/dyzsasd/tomo/pkg/session"
)

const defaultActionTimeout = 30 * time.Second

// Executor runs actions from a registry and turns their outcomes into
// session events. Handler errors never escape as errors: they become
// failure outcomes, so one broken backend cannot take down a turn.
type Executor struct {
	registry *Registry
	timeout  time.Duration
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		timeout:  defaultActionTimeout,
	}
}

// WithTimeout sets the per-action deadline.
func (e *Executor) WithTimeout(d time.Duration) *Executor {
	if d > 0 {
		e.timeout = d
	}
	return e
}

// Registry returns the backing registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// Result is one completed action run with its session events, ready to
// commit.
type Result struct {
	Action  string
	Outcome Outcome
	Events  []session.Event
}

// Execute runs the named action against the session snapshot. The only
// error case is an unregistered name; everything else, including a
// handler error or timeout, is reported as a failure outcome inside
// the Result.
func (e *Executor) Execute(ctx context.Context, name, policy string, sess *session.Session, args map[string]any) (*Result, error) {
	a, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	if missing := e.missingSlots(a, sess); len(missing) > 0 {
		out := Fail(fmt.Sprintf("required slots not filled: %v", missing))
		return e.result(name, policy, out), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := a.Handler(runCtx, sess, args)
	elapsed := time.Since(start)

	if err != nil {
		log.Printf("[ACTION] %s failed after %v: %v", name, elapsed, err)
		out = Outcome{
			Kind:          OutcomeFailure,
			FailureReason: err.Error(),
			Retryable:     errors.Is(err, context.DeadlineExceeded),
		}
	} else {
		log.Printf("[ACTION] %s completed in %v (%s)", name, elapsed, out.Kind)
	}
	if out.Kind == "" {
		out.Kind = OutcomeSuccess
	}

	return e.result(name, policy, out), nil
}

func (e *Executor) missingSlots(a *Action, sess *session.Session) []string {
	var missing []string
	for _, slot := range a.RequiredSlots {
		if !sess.Slots.IsFilled(slot) {
			missing = append(missing, slot)
		}
	}
	return missing
}

// result converts an outcome into the event batch recording it.
func (e *Executor) result(name, policy string, out Outcome) *Result {
	var events []session.Event

	switch out.Kind {
	case OutcomeFailure:
		events = append(events, session.NewActionFailed(name, policy, out.FailureReason))
	case OutcomeConfirm:
		if out.Message != "" {
			events = append(events, session.NewBotUttered(out.Message))
		}
		events = append(events,
			session.NewConfirmationRequested(name),
			session.NewActionExecuted(name, policy, string(OutcomeConfirm)))
	default:
		for _, key := range sortedKeys(out.SlotUpdates) {
			events = append(events, session.NewSlotFilled(key, out.SlotUpdates[key], session.OriginAction))
		}
		if out.Message != "" {
			events = append(events, session.NewBotUttered(out.Message))
		}
		events = append(events, session.NewActionExecuted(name, policy, string(OutcomeSuccess)))
		if out.Restart {
			events = append(events, session.NewSessionStarted())
		}
		if out.EndSession {
			events = append(events, session.NewSessionDisabled())
		}
	}

	return &Result{Action: name, Outcome: out, Events: events}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

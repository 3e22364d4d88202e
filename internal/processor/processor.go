// Package processor drives conversations: one HandleMessage call is
// one turn, from raw user text through extraction, policy decisions,
// and action execution to committed session state.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dyzsasd/tomo/internal/action"
	"github.com/dyzsasd/tomo/internal/nlu"
	"github.com/dyzsasd/tomo/internal/policy"
	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/pkg/channel"
	"github.com/dyzsasd/tomo/pkg/observability"
	"github.com/dyzsasd/tomo/pkg/session"
)

const (
	// defaultMaxPredictions bounds the decision loop of one turn.
	defaultMaxPredictions = 100
	// defaultActionRetries bounds re-runs of retryable action failures.
	defaultActionRetries = 3

	apologyMessage = "Sorry, something went wrong on our side. Please try again."
	failureMessage = "Sorry, I couldn't complete that request."
)

// Message is one inbound user message.
type Message struct {
	SessionID string
	Text      string
	// MessageID is assigned when empty.
	MessageID string
}

// Processor owns the turn loop. All collaborators are read-only after
// construction; per-session state lives in the session store.
type Processor struct {
	manager    *session.Manager
	extractor  nlu.Extractor
	dispatcher *policy.Dispatcher
	executor   *action.Executor
	channel    channel.OutputChannel

	maxPredictions int
	actionRetries  int
}

// New creates a processor.
func New(manager *session.Manager, extractor nlu.Extractor, dispatcher *policy.Dispatcher,
	executor *action.Executor, out channel.OutputChannel) *Processor {
	return &Processor{
		manager:        manager,
		extractor:      extractor,
		dispatcher:     dispatcher,
		executor:       executor,
		channel:        out,
		maxPredictions: defaultMaxPredictions,
		actionRetries:  defaultActionRetries,
	}
}

// WithMaxPredictions overrides the per-turn decision bound.
func (p *Processor) WithMaxPredictions(n int) *Processor {
	if n > 0 {
		p.maxPredictions = n
	}
	return p
}

// HandleMessage processes one user message as a full turn. The
// returned error covers infrastructure problems only; conversation
// level failures are delivered to the user and logged.
func (p *Processor) HandleMessage(ctx context.Context, msg Message) error {
	start := time.Now()
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}

	sess, err := p.manager.GetOrCreate(ctx, msg.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !sess.Active {
		log.Printf("[PROCESSOR] session %s is disabled, dropping message", msg.SessionID)
		return nil
	}

	defer p.endTurn(msg.SessionID)

	sess, err = p.logMessage(ctx, sess, msg)
	if err != nil {
		return err
	}

	err = p.decisionLoop(ctx, sess)
	observability.RecordTurn(time.Since(start), err == nil)
	return err
}

// logMessage is phase one of a turn: record the user message and the
// slot values extracted from it. Committed before any decision runs,
// so a crash mid-turn never loses the user's words.
func (p *Processor) logMessage(ctx context.Context, sess *session.Session, msg Message) (*session.Session, error) {
	result, err := p.extractor.Extract(ctx, msg.Text, nlu.Context{
		Transcript:    sess.Transcript(),
		CurrentIntent: sess.Intent,
	})
	if err != nil {
		// The turn proceeds on the previously established intent.
		log.Printf("[PROCESSOR] extraction failed for %s: %v", sess.ID, err)
		result = nlu.Result{}
	}

	// The slot filter runs inside the commit so a conflict retry
	// re-evaluates against whatever a concurrent turn just filled.
	committed, err := p.manager.Apply(ctx, sess.ID, func(s *session.Session) ([]session.Event, error) {
		events := []session.Event{
			session.NewUserUttered(msg.MessageID, msg.Text, result.Intent),
		}
		for _, name := range sortedKeys(result.Slots) {
			slot := s.Slots.Lookup(name)
			switch {
			case slot == nil:
				log.Printf("[PROCESSOR] extraction returned undeclared slot %q, skipping", name)
			case !slot.Extractable:
				log.Printf("[PROCESSOR] extraction returned non-extractable slot %q, skipping", name)
			case slot.Filled():
				// Extraction only fills empty slots; actions own overwrites.
			default:
				events = append(events, session.NewSlotFilled(name, result.Slots[name], session.OriginExtraction))
			}
		}
		if s.PendingAction != "" {
			// The user has answered the pending confirmation; the policy
			// reads the answer from the transcript and decides.
			events = append(events, session.NewConfirmationResolved(s.PendingAction))
		}
		return events, nil
	})
	if err != nil {
		return nil, fmt.Errorf("commit user message: %w", err)
	}
	return committed, nil
}

// decisionLoop is phase two: ask the policy what to do, run it, commit
// it, until the turn hands back to the user or ends.
func (p *Processor) decisionLoop(ctx context.Context, sess *session.Session) error {
	for i := 0; i < p.maxPredictions; i++ {
		if !sess.Active {
			return nil
		}

		pol, err := p.dispatcher.ForIntent(sess.Intent)
		if err != nil {
			log.Printf("[PROCESSOR] no policy for intent %q on %s, waiting for user", sess.Intent, sess.ID)
			return nil
		}

		dec, err := pol.Decide(ctx, sess)
		if err != nil {
			// Integrity errors abort the turn; state stays at the last
			// commit and the user hears an apology rather than silence.
			log.Printf("[PROCESSOR] policy %s failed on %s: %v", pol.Name(), sess.ID, err)
			observability.RecordTurnAbort(pol.Name())
			p.send(ctx, sess.ID, apologyMessage)
			return nil
		}

		switch dec.Type {
		case predict.Wait:
			return nil

		case predict.End:
			if _, err := p.manager.Disable(ctx, sess.ID); err != nil {
				return fmt.Errorf("disable session: %w", err)
			}
			return nil

		case predict.RunAction:
			sess, err = p.runAction(ctx, pol, dec, sess)
			if err != nil {
				return err
			}
			if sess == nil {
				// Terminal action failure or pending confirmation;
				// the turn is over.
				return nil
			}

		default:
			log.Printf("[PROCESSOR] unknown decision type %q from %s", dec.Type, pol.Name())
			return nil
		}
	}

	log.Printf("[PROCESSOR] prediction bound reached on %s, ending turn", sess.ID)
	return nil
}

// runAction executes one decision, commits its events, and delivers
// its message. It returns the refreshed session, or nil when the turn
// should stop here.
func (p *Processor) runAction(ctx context.Context, pol policy.Policy, dec predict.Decision, sess *session.Session) (*session.Session, error) {
	var result *action.Result
	for attempt := 0; ; attempt++ {
		var err error
		result, err = p.executor.Execute(ctx, dec.Action, pol.Name(), sess, dec.Args)
		if err != nil {
			// The policy produced an action the registry never heard
			// of. Abort the turn; nothing has been committed for it.
			log.Printf("[PROCESSOR] cannot execute %q from %s: %v", dec.Action, pol.Name(), err)
			observability.RecordTurnAbort(pol.Name())
			p.send(ctx, sess.ID, apologyMessage)
			return nil, nil
		}
		if result.Outcome.Kind != action.OutcomeFailure || !result.Outcome.Retryable || attempt >= p.actionRetries-1 {
			break
		}
		log.Printf("[PROCESSOR] retrying %s (attempt %d/%d): %s",
			dec.Action, attempt+2, p.actionRetries, result.Outcome.FailureReason)
	}
	observability.RecordAction(dec.Action, string(result.Outcome.Kind))

	events := result.Events
	advancing := dec.NextStep != "" && dec.NextStep != sess.Step
	// Only a success moves the workflow: failures stay put, and a
	// pending confirmation must resume in the step that asked.
	if advancing && result.Outcome.Kind != action.OutcomeSuccess {
		advancing = false
	}
	if advancing {
		events = append(events, session.NewStepEntered(dec.NextStep))
	}

	committed, err := p.manager.Commit(ctx, sess.ID, events)
	if err != nil {
		return nil, fmt.Errorf("commit action %s: %w", dec.Action, err)
	}

	if result.Outcome.Message != "" {
		p.send(ctx, sess.ID, result.Outcome.Message)
	}

	switch {
	case result.Outcome.Kind == action.OutcomeFailure:
		p.send(ctx, sess.ID, failureMessage)
		return nil, nil
	case result.Outcome.Kind == action.OutcomeConfirm:
		return nil, nil
	case advancing && !dec.Chain:
		// The workflow moved on but the step does not chain; wait for
		// the user before working the new step.
		return nil, nil
	}
	return committed, nil
}

func (p *Processor) send(ctx context.Context, sessionID, text string) {
	if err := p.channel.SendText(ctx, sessionID, text); err != nil {
		log.Printf("[PROCESSOR] channel %s delivery failed: %v", p.channel.Name(), err)
	}
}

func (p *Processor) endTurn(sessionID string) {
	for _, pol := range p.dispatcher.Policies() {
		if te, ok := pol.(policy.TurnEnder); ok {
			te.EndTurn(sessionID)
		}
	}
}

// IsConflict reports whether err is a commit conflict the caller may
// retry by resubmitting the message.
func IsConflict(err error) bool {
	return errors.Is(err, session.ErrConcurrentModification)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package workflow drives step-based policies: it tracks which step a
// session is in, scopes each prediction to the step's allowed actions,
// and guards the decision loop against invalid or circling predictions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/pkg/assistant"
	"github.com/dyzsasd/tomo/pkg/session"
)

// Engine errors. All three are integrity errors: the turn that hits
// them is aborted rather than retried.
var (
	// ErrUndefinedStep is returned when a session or prediction refers
	// to a step the workflow does not define.
	ErrUndefinedStep = errors.New("undefined workflow step")
	// ErrWorkflowStalled is returned when predictions circle in one
	// step without changing session state.
	ErrWorkflowStalled = errors.New("workflow stalled")
)

// stallLimit is how often one (step, slots) state may repeat within a
// single turn before the engine declares a stall.
const stallLimit = 3

// Engine runs one step-based workflow definition. Safe for concurrent
// sessions; per-session loop state lives in an internal trace keyed by
// session ID.
type Engine struct {
	steps     map[string]assistant.Step
	order     []string
	specs     map[string]predict.ActionSpec
	predictor predict.Predictor

	mu     sync.Mutex
	traces map[string]*trace
}

// trace is the loop state of one session. Visits reset when a new turn
// starts, so long conversations cannot trip the stall guard across
// turns.
type trace struct {
	turn   int
	visits map[string]int
}

// NewEngine builds an engine from a step-based policy definition.
// specs must cover every action named by the policy.
func NewEngine(cfg *assistant.PolicyConfig, specs []predict.ActionSpec, predictor predict.Predictor) (*Engine, error) {
	if len(cfg.Steps) == 0 {
		return nil, errors.New("step-based policy has no steps")
	}

	steps := make(map[string]assistant.Step, len(cfg.Steps))
	order := make([]string, 0, len(cfg.Steps))
	for _, step := range cfg.Steps {
		steps[step.ID] = step
		order = append(order, step.ID)
	}

	specMap := make(map[string]predict.ActionSpec, len(specs))
	for _, spec := range specs {
		specMap[spec.Name] = spec
	}
	for _, name := range cfg.Actions {
		if _, ok := specMap[name]; !ok {
			return nil, fmt.Errorf("no action spec for %q", name)
		}
	}

	return &Engine{
		steps:     steps,
		order:     order,
		specs:     specMap,
		predictor: predictor,
		traces:    make(map[string]*trace),
	}, nil
}

// FirstStep returns the entry step of the workflow.
func (e *Engine) FirstStep() string {
	return e.order[0]
}

// HasStep reports whether the workflow defines the named step.
func (e *Engine) HasStep(id string) bool {
	_, ok := e.steps[id]
	return ok
}

// Next predicts the next decision for the session. A session with no
// current step starts in the first step; the returned decision carries
// it in NextStep so the caller commits the transition.
func (e *Engine) Next(ctx context.Context, sess *session.Session) (predict.Decision, error) {
	entering := sess.Step == ""
	currentID := sess.Step
	if entering {
		currentID = e.order[0]
	}
	current, ok := e.steps[currentID]
	if !ok {
		return predict.Decision{}, fmt.Errorf("%w: %q", ErrUndefinedStep, currentID)
	}

	if err := e.recordVisit(sess, currentID); err != nil {
		return predict.Decision{}, err
	}

	dec, err := e.predictor.Predict(ctx, e.request(sess, current))
	if err != nil {
		return predict.Decision{}, err
	}

	if dec.Type == predict.RunAction {
		if !e.reachable(current, dec.Action) {
			return predict.Decision{}, fmt.Errorf("%w: action %q is not reachable from step %q",
				predict.ErrInvalidPrediction, dec.Action, currentID)
		}
	}
	if dec.NextStep != "" {
		if _, ok := e.steps[dec.NextStep]; !ok {
			return predict.Decision{}, fmt.Errorf("%w: %q", ErrUndefinedStep, dec.NextStep)
		}
	} else if entering {
		dec.NextStep = currentID
	}
	// The model may request chaining but only the step declaration can
	// grant it.
	dec.Chain = dec.Chain && current.Chain

	return dec, nil
}

// reachable reports whether the step may run the action. A step with a
// declared action set restricts predictions to it; otherwise the whole
// policy action set is reachable.
func (e *Engine) reachable(step assistant.Step, name string) bool {
	if len(step.Actions) == 0 {
		_, ok := e.specs[name]
		return ok
	}
	for _, a := range step.Actions {
		if a == name {
			return true
		}
	}
	return false
}

// EndTurn drops the loop state of a session. The processor calls this
// when a turn finishes or aborts.
func (e *Engine) EndTurn(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.traces, sessionID)
}

func (e *Engine) recordVisit(sess *session.Session, stepID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.traces[sess.ID]
	if !ok || tr.turn != sess.Turns {
		tr = &trace{turn: sess.Turns, visits: make(map[string]int)}
		e.traces[sess.ID] = tr
	}

	fp := stepID + ":" + sess.Slots.Fingerprint()
	tr.visits[fp]++
	if tr.visits[fp] > stallLimit {
		return fmt.Errorf("%w: step %q repeated %d times without progress",
			ErrWorkflowStalled, stepID, tr.visits[fp])
	}
	return nil
}

// request scopes the prediction to the current step. A step that lists
// actions restricts the choice to those; otherwise the whole policy
// action set is offered.
func (e *Engine) request(sess *session.Session, current assistant.Step) predict.Request {
	names := current.Actions
	if len(names) == 0 {
		names = make([]string, 0, len(e.specs))
		for name := range e.specs {
			names = append(names, name)
		}
	}
	actions := make([]predict.ActionSpec, 0, len(names))
	for _, name := range names {
		if spec, ok := e.specs[name]; ok {
			actions = append(actions, spec)
		}
	}

	all := make([]predict.StepInfo, 0, len(e.order))
	for _, id := range e.order {
		step := e.steps[id]
		all = append(all, predict.StepInfo{ID: step.ID, Description: step.Description, Prompt: step.Prompt})
	}

	return predict.Request{
		Actions:    actions,
		Transcript: sess.Transcript(),
		Slots:      predict.SlotsFromSession(sess),
		Step: &predict.StepContext{
			Current: predict.StepInfo{ID: current.ID, Description: current.Description, Prompt: current.Prompt},
			All:     all,
		},
	}
}

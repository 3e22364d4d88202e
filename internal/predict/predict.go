// Package predict asks a language model what the assistant should do
// next and parses the answer into a validated decision. Predictors are
// stateless; everything they condition on arrives in the request.
package predict

import (
	"context"
	"errors"
)

// ErrInvalidPrediction is returned when the model output cannot be
// parsed into a decision.
var ErrInvalidPrediction = errors.New("invalid prediction")

// DecisionType classifies what the runtime should do next.
type DecisionType string

const (
	// RunAction executes the named action and continues the loop.
	RunAction DecisionType = "run_action"
	// Wait hands the turn back to the user.
	Wait DecisionType = "wait"
	// End finishes the conversation.
	End DecisionType = "end"
)

// Decision is one validated instruction for the decision loop.
type Decision struct {
	Type   DecisionType
	Action string
	Args   map[string]any
	// NextStep moves a step-based workflow; empty means stay.
	NextStep string
	// Chain requests an immediate follow-up prediction after the
	// action, without waiting for new user input.
	Chain bool
}

// ActionSpec describes one action offered to the model.
type ActionSpec struct {
	Name          string
	Description   string
	RequiredSlots []string
}

// SlotState describes one slot offered to the model.
type SlotState struct {
	Name        string
	Description string
	Value       any
	Filled      bool
}

// Request carries everything one prediction may condition on.
type Request struct {
	// Scope describes what this policy is responsible for.
	Scope string
	// Intents this policy handles; empty means all.
	Intents []string
	// Actions the model may pick from.
	Actions []ActionSpec
	// Transcript is the conversation so far.
	Transcript []string
	// Slots is the current session state.
	Slots []SlotState
	// Step carries step-based workflow context; nil outside workflows.
	Step *StepContext
}

// StepContext is the workflow portion of a request.
type StepContext struct {
	// Current is the active step.
	Current StepInfo
	// All lists every step of the workflow in order.
	All []StepInfo
}

// StepInfo is one workflow step as shown to the model.
type StepInfo struct {
	ID          string
	Description string
	Prompt      string
}

// Predictor produces one decision per call.
type Predictor interface {
	Predict(ctx context.Context, req Request) (Decision, error)
}

// PredictorFunc adapts a function to the Predictor interface.
type PredictorFunc func(ctx context.Context, req Request) (Decision, error)

func (f PredictorFunc) Predict(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}

package policy

import (
	"context"

	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/internal/workflow"
	"github.com/dyzsasd/tomo/pkg/session"
)

// StepBased drives a workflow engine: decisions are scoped to the
// session's current step and validated against the step graph.
type StepBased struct {
	name    string
	intents []string
	engine  *workflow.Engine
}

// NewStepBased creates a step-based policy over the given engine.
func NewStepBased(name string, intents []string, engine *workflow.Engine) *StepBased {
	return &StepBased{
		name:    name,
		intents: intents,
		engine:  engine,
	}
}

func (p *StepBased) Name() string      { return p.name }
func (p *StepBased) Intents() []string { return p.intents }

func (p *StepBased) Decide(ctx context.Context, sess *session.Session) (predict.Decision, error) {
	return p.engine.Next(ctx, sess)
}

// EndTurn clears the engine's per-turn loop state for the session.
func (p *StepBased) EndTurn(sessionID string) {
	p.engine.EndTurn(sessionID)
}

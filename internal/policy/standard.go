package policy

import (
	"context"

	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/pkg/session"
)

// Standard is the free-form LLM policy: every decision is one
// prediction over the policy's whole action set.
type Standard struct {
	name      string
	scope     string
	intents   []string
	actions   []predict.ActionSpec
	predictor predict.Predictor
}

// NewStandard creates a standard LLM policy.
func NewStandard(name, scope string, intents []string, actions []predict.ActionSpec, predictor predict.Predictor) *Standard {
	return &Standard{
		name:      name,
		scope:     scope,
		intents:   intents,
		actions:   actions,
		predictor: predictor,
	}
}

func (p *Standard) Name() string      { return p.name }
func (p *Standard) Intents() []string { return p.intents }

func (p *Standard) Decide(ctx context.Context, sess *session.Session) (predict.Decision, error) {
	return p.predictor.Predict(ctx, predict.Request{
		Scope:      p.scope,
		Intents:    p.intents,
		Actions:    p.actions,
		Transcript: sess.Transcript(),
		Slots:      predict.SlotsFromSession(sess),
	})
}

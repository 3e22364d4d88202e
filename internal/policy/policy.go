// Package policy selects and drives the decision strategy for each
// intent: canned quick replies, free-form LLM policies, and step-based
// workflows all answer the same question, what should the assistant do
// next for this session.
package policy

import (
	"context"
	"errors"

	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/pkg/session"
)

// Dispatch errors.
var (
	// ErrNoPolicyForIntent is returned when no policy claims the
	// session's intent.
	ErrNoPolicyForIntent = errors.New("no policy for intent")
	// ErrAmbiguousIntentPolicy is returned when more than one policy
	// claims the same intent.
	ErrAmbiguousIntentPolicy = errors.New("intent claimed by multiple policies")
)

// Policy decides the next move for sessions whose intent it claims.
type Policy interface {
	// Name identifies the policy in events and logs.
	Name() string
	// Intents this policy claims; empty means it is a catch-all.
	Intents() []string
	// Decide produces the next decision for the session.
	Decide(ctx context.Context, sess *session.Session) (predict.Decision, error)
}

// TurnEnder is implemented by policies that keep per-turn loop state.
// The processor signals turn boundaries so that state cannot leak
// across turns.
type TurnEnder interface {
	EndTurn(sessionID string)
}

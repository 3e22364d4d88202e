package policy

import (
	"context"
	"time"

	"github.com/dyzsasd/tomo/internal/action"
	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/pkg/session"
)

const defaultQuickReplyDelay = 500 * time.Millisecond

// QuickReply sends an immediate canned acknowledgement so the user
// knows the request landed while slower policies do their work. It
// stays silent when the bot already replied this turn.
type QuickReply struct {
	name    string
	intents []string
	message string
	delay   time.Duration
}

// NewQuickReply creates a quick-reply policy.
func NewQuickReply(name, message string, intents []string) *QuickReply {
	return &QuickReply{
		name:    name,
		intents: intents,
		message: message,
		delay:   defaultQuickReplyDelay,
	}
}

// WithDelay overrides the pause before the reply goes out.
func (p *QuickReply) WithDelay(d time.Duration) *QuickReply {
	p.delay = d
	return p
}

func (p *QuickReply) Name() string      { return p.name }
func (p *QuickReply) Intents() []string { return p.intents }

func (p *QuickReply) Decide(ctx context.Context, sess *session.Session) (predict.Decision, error) {
	if sess.HasBotRepliedSince() {
		return predict.Decision{Type: predict.Wait}, nil
	}

	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return predict.Decision{}, ctx.Err()
	}

	return predict.Decision{
		Type:   predict.RunAction,
		Action: action.BotUtterQuickReply,
		Args:   map[string]any{"message": p.message},
	}, nil
}

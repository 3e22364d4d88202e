package action

import (
	"context"
	"fmt"

	"github.com/dyzsasd/tomo/pkg/session"
)

// RegisterBuiltins installs the actions every assistant gets for free.
func RegisterBuiltins(r *Registry) error {
	builtins := []*Action{
		{
			Name:        Listen,
			Description: "Hand the turn back to the user and wait for input.",
			Handler: func(context.Context, *session.Session, map[string]any) (Outcome, error) {
				return Success(), nil
			},
		},
		{
			Name:        BotUtter,
			Description: "Send a message to the user.",
			Handler:     utterHandler,
		},
		{
			Name:        BotUtterQuickReply,
			Description: "Send a canned reply to the user.",
			Handler:     utterHandler,
		},
		{
			Name:        SessionStart,
			Description: "Restart the conversation with fresh state.",
			Handler: func(context.Context, *session.Session, map[string]any) (Outcome, error) {
				return Outcome{Kind: OutcomeSuccess, Restart: true}, nil
			},
		},
		{
			Name:        DisableSession,
			Description: "End the conversation; no further messages are processed.",
			Handler: func(_ context.Context, _ *session.Session, args map[string]any) (Outcome, error) {
				out := Outcome{Kind: OutcomeSuccess, EndSession: true}
				if msg, ok := args["message"].(string); ok {
					out.Message = msg
				}
				return out, nil
			},
		},
	}

	for _, a := range builtins {
		if err := r.Register(a); err != nil {
			return fmt.Errorf("register builtin %s: %w", a.Name, err)
		}
	}
	return nil
}

func utterHandler(_ context.Context, _ *session.Session, args map[string]any) (Outcome, error) {
	msg, ok := args["message"].(string)
	if !ok || msg == "" {
		return Outcome{}, fmt.Errorf("missing message argument")
	}
	return Say(msg), nil
}

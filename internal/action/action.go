// Package action hosts the action registry and executor. Actions do
// the conversational work: calling backends, filling slots, talking to
// the user. They run against a session snapshot and report everything
// they did as an outcome; they never mutate the session directly.
package action

import (
	"context"

	"github.com/dyzsasd/tomo/pkg/session"
)

// Reserved action names the runtime interprets itself.
const (
	Listen             = "listen"
	BotUtter           = "bot_utter"
	BotUtterQuickReply = "bot_utter_quick_reply"
	SessionStart       = "session_start"
	DisableSession     = "disable_session"
)

// Handler executes one action against a read-only session snapshot.
// Implementations must not mutate sess; every effect goes into the
// returned Outcome. An error means the action could not run at all and
// is reported as a failure outcome by the executor.
type Handler func(ctx context.Context, sess *session.Session, args map[string]any) (Outcome, error)

// Action couples a name with its handler and the slots it needs filled
// before it can run.
type Action struct {
	Name          string
	Description   string
	RequiredSlots []string
	Handler       Handler
}

package predict

import (
	"github.com/dyzsasd/tomo/pkg/session"
)

// SlotsFromSession renders a session's slot store as request state.
func SlotsFromSession(sess *session.Session) []SlotState {
	names := sess.Slots.Names()
	states := make([]SlotState, 0, len(names))
	for _, name := range names {
		slot := sess.Slots.Lookup(name)
		states = append(states, SlotState{
			Name:        name,
			Description: slot.Description,
			Value:       slot.Value,
			Filled:      slot.Filled(),
		})
	}
	return states
}

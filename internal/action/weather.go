package action

import (
	"context"
	"log"

	"github.com/dyzsasd/tomo/pkg/session"
)

// RegisterWeather installs the weather lookup action.
func RegisterWeather(r *Registry) error {
	return r.Register(&Action{
		Name:          "find_weather",
		Description:   "Find the weather information according to the location and date",
		RequiredSlots: []string{"date", "city"},
		Handler: func(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
			date, _ := sess.Slots.Get("date")
			city, _ := sess.Slots.Get("city")
			log.Printf("[ACTION] looking up weather for %v on %v", city, date)

			// Stubbed backend; a production deployment plugs a real
			// weather client in here.
			return Fill(map[string]any{
				"weather": "There will be heavy snow, and the temperature will be around -5 degrees.",
			}), nil
		},
	})
}

package action

import (
	"context"
	"fmt"
	"log"

	"github.com/dyzsasd/tomo/pkg/session"
)

// RegisterFlightExchange installs the ticket-exchange action suite.
// Backend calls are stubbed; the shapes of the slot payloads match what
// a Sabre-style reservation system returns.
func RegisterFlightExchange(r *Registry) error {
	actions := []*Action{
		{
			Name:          "validate_service_availability",
			Description:   "Validate if the service is available in the client's market.",
			RequiredSlots: []string{"client_location"},
			Handler:       validateServiceAvailability,
		},
		{
			Name:          "retrieve_pnr",
			Description:   "Retrieve the Passenger Name Record (PNR) details.",
			RequiredSlots: []string{"pnr_number"},
			Handler:       retrievePNR,
		},
		{
			Name:          "exchange_shopping",
			Description:   "Search exchangeable itineraries matching the requested change.",
			RequiredSlots: []string{"pnr_details", "new_itinerary"},
			Handler:       exchangeShopping,
		},
		{
			Name:          "price_the_exchange",
			Description:   "Price the exchange and calculate additional fees or refunds.",
			RequiredSlots: []string{"pnr_details", "new_itinerary_details"},
			Handler:       priceTheExchange,
		},
		{
			Name:          "evaluate_pricing_information",
			Description:   "Present the pricing to the user and ask whether to proceed.",
			RequiredSlots: []string{"pricing_information"},
			Handler:       evaluatePricing,
		},
		{
			Name:          "cancel_existing_itinerary",
			Description:   "Cancel the existing itinerary in the PNR.",
			RequiredSlots: []string{"pnr_details"},
			Handler:       cancelExistingItinerary,
		},
		{
			Name:          "book_new_itinerary",
			Description:   "Book the new air itinerary requested by the client.",
			RequiredSlots: []string{"new_itinerary_details"},
			Handler:       bookNewItinerary,
		},
		{
			Name:          "confirm_exchange",
			Description:   "Confirm and store the exchange under its price quote record.",
			RequiredSlots: []string{"pqr_number"},
			Handler:       confirmExchange,
		},
		{
			Name:        "completion_confirmation",
			Description: "Confirm the completion of the ticket exchange to the client.",
			Handler: func(context.Context, *session.Session, map[string]any) (Outcome, error) {
				return Say("Your ticket exchange is complete. A confirmation email has been sent to you."), nil
			},
		},
	}

	for _, a := range actions {
		if err := r.Register(a); err != nil {
			return fmt.Errorf("register %s: %w", a.Name, err)
		}
	}
	return nil
}

func validateServiceAvailability(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	location, _ := sess.Slots.Get("client_location")
	log.Printf("[ACTION] checking service availability for %v", location)

	available := true
	if !available {
		return Outcome{
			Kind:       OutcomeSuccess,
			Message:    "Sorry, our service is not available in your location.",
			EndSession: true,
		}, nil
	}
	return Success(), nil
}

func retrievePNR(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	pnrNumber, _ := sess.Slots.Get("pnr_number")
	log.Printf("[ACTION] retrieving PNR %v", pnrNumber)

	details := map[string]any{
		"pnr_number": pnrNumber,
		"status":     "active",
	}
	return Fill(map[string]any{"pnr_details": details}), nil
}

func exchangeShopping(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	request, _ := sess.Slots.Get("new_itinerary")
	log.Printf("[ACTION] shopping exchange options for %v", request)

	options := map[string]any{
		"request":  request,
		"provider": "exchange-shopping",
	}
	return Fill(map[string]any{"new_itinerary_details": options}), nil
}

func priceTheExchange(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	pricing := map[string]any{
		"additional_fee": 150.00,
		"refund":         0.00,
		"pqr_number":     "PQR123456",
	}
	return Fill(map[string]any{
		"pricing_information": pricing,
		"pqr_number":          pricing["pqr_number"],
	}), nil
}

func evaluatePricing(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	pricing, _ := sess.Slots.Get("pricing_information")
	fee := 0.0
	if m, ok := pricing.(map[string]any); ok {
		if f, ok := m["additional_fee"].(float64); ok {
			fee = f
		}
	}
	return Confirm(fmt.Sprintf("The exchange will cost an additional $%.2f. Would you like to proceed?", fee)), nil
}

func cancelExistingItinerary(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	details, _ := sess.Slots.Get("pnr_details")
	log.Printf("[ACTION] cancelling itinerary for %v", details)

	cancelled := true
	if !cancelled {
		return Fail("could not cancel the existing itinerary"), nil
	}
	return Success(), nil
}

func bookNewItinerary(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	details, _ := sess.Slots.Get("new_itinerary_details")
	log.Printf("[ACTION] booking new itinerary %v", details)

	booked := true
	if !booked {
		return FailRetryable("booking backend rejected the itinerary"), nil
	}
	return Success(), nil
}

func confirmExchange(_ context.Context, sess *session.Session, _ map[string]any) (Outcome, error) {
	pqr, _ := sess.Slots.Get("pqr_number")
	log.Printf("[ACTION] confirming exchange under %v", pqr)
	return Success(), nil
}

package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/pkg/assistant"
	"github.com/dyzsasd/tomo/pkg/session"
)

func testPolicy() *assistant.PolicyConfig {
	return &assistant.PolicyConfig{
		Type:    assistant.PolicyStepBased,
		Name:    "flight_exchange",
		Actions: []string{"retrieve_pnr", "exchange_shopping", "confirm_exchange"},
		Steps: []assistant.Step{
			{ID: "collect", Description: "collect booking details", Actions: []string{"retrieve_pnr"}},
			{ID: "shopping", Description: "search itineraries", Actions: []string{"exchange_shopping"}},
			{ID: "confirm", Description: "confirm the exchange", Actions: []string{"confirm_exchange"}},
		},
	}
}

func testSpecs() []predict.ActionSpec {
	return []predict.ActionSpec{
		{Name: "retrieve_pnr", Description: "fetch the booking"},
		{Name: "exchange_shopping", Description: "search itineraries"},
		{Name: "confirm_exchange", Description: "confirm"},
	}
}

func testWorkflowSession() *session.Session {
	return session.New("sess-1", []session.Slot{
		{Name: "pnr_number", Extractable: true},
		{Name: "pnr_details"},
	})
}

func scripted(decisions ...predict.Decision) predict.Predictor {
	i := 0
	return predict.PredictorFunc(func(context.Context, predict.Request) (predict.Decision, error) {
		if i >= len(decisions) {
			return predict.Decision{Type: predict.Wait}, nil
		}
		d := decisions[i]
		i++
		return d, nil
	})
}

func TestEngineEntersFirstStep(t *testing.T) {
	e, err := NewEngine(testPolicy(), testSpecs(), scripted(
		predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr"},
	))
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	dec, err := e.Next(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if dec.NextStep != "collect" {
		t.Errorf("NextStep = %q, want collect (entry step)", dec.NextStep)
	}
}

func TestEngineScopesActionsToStep(t *testing.T) {
	var seen []string
	p := predict.PredictorFunc(func(_ context.Context, req predict.Request) (predict.Decision, error) {
		for _, a := range req.Actions {
			seen = append(seen, a.Name)
		}
		return predict.Decision{Type: predict.Wait}, nil
	})
	e, err := NewEngine(testPolicy(), testSpecs(), p)
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "shopping"
	if _, err := e.Next(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != "exchange_shopping" {
		t.Errorf("offered actions = %v, want only exchange_shopping", seen)
	}
}

func TestEngineRejectsForeignAction(t *testing.T) {
	e, err := NewEngine(testPolicy(), testSpecs(), scripted(
		predict.Decision{Type: predict.RunAction, Action: "launch_rocket"},
	))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Next(context.Background(), testWorkflowSession())
	if !errors.Is(err, predict.ErrInvalidPrediction) {
		t.Errorf("expected ErrInvalidPrediction, got %v", err)
	}
}

// TestEngineRejectsActionOutsideStep predicts an action that belongs
// to the policy but not to the current step's declared set.
func TestEngineRejectsActionOutsideStep(t *testing.T) {
	e, err := NewEngine(testPolicy(), testSpecs(), scripted(
		predict.Decision{Type: predict.RunAction, Action: "confirm_exchange"},
	))
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "collect"
	_, err = e.Next(context.Background(), sess)
	if !errors.Is(err, predict.ErrInvalidPrediction) {
		t.Errorf("expected ErrInvalidPrediction for action outside the step, got %v", err)
	}
}

// TestEngineChainRequiresStepDeclaration checks that a chain request
// from the model only survives when the step declares chaining.
func TestEngineChainRequiresStepDeclaration(t *testing.T) {
	cfg := testPolicy()
	cfg.Steps[0].Chain = true

	e, err := NewEngine(cfg, testSpecs(), scripted(
		predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr", NextStep: "shopping", Chain: true},
		predict.Decision{Type: predict.RunAction, Action: "exchange_shopping", NextStep: "confirm", Chain: true},
	))
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "collect"
	dec, err := e.Next(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Chain {
		t.Error("chaining step should grant the model's chain request")
	}

	sess.Step = "shopping"
	dec, err = e.Next(context.Background(), sess)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Chain {
		t.Error("non-chaining step must strip the model's chain request")
	}
}

func TestEngineRejectsUnknownNextStep(t *testing.T) {
	e, err := NewEngine(testPolicy(), testSpecs(), scripted(
		predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr", NextStep: "nirvana"},
	))
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Next(context.Background(), testWorkflowSession())
	if !errors.Is(err, ErrUndefinedStep) {
		t.Errorf("expected ErrUndefinedStep, got %v", err)
	}
}

func TestEngineRejectsUnknownCurrentStep(t *testing.T) {
	e, err := NewEngine(testPolicy(), testSpecs(), scripted())
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "vanished"
	_, err = e.Next(context.Background(), sess)
	if !errors.Is(err, ErrUndefinedStep) {
		t.Errorf("expected ErrUndefinedStep, got %v", err)
	}
}

// TestEngineStallDetection loops one step without any slot change and
// expects the guard to fire once the repeat budget is spent.
func TestEngineStallDetection(t *testing.T) {
	p := predict.PredictorFunc(func(context.Context, predict.Request) (predict.Decision, error) {
		return predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr", Chain: true}, nil
	})
	e, err := NewEngine(testPolicy(), testSpecs(), p)
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "collect"

	var stallErr error
	for i := 0; i < stallLimit+1; i++ {
		if _, stallErr = e.Next(context.Background(), sess); stallErr != nil {
			break
		}
	}
	if !errors.Is(stallErr, ErrWorkflowStalled) {
		t.Fatalf("expected ErrWorkflowStalled, got %v", stallErr)
	}
}

// TestEngineStallResetOnProgress verifies a slot change resets the
// repeat budget.
func TestEngineStallResetOnProgress(t *testing.T) {
	p := predict.PredictorFunc(func(context.Context, predict.Request) (predict.Decision, error) {
		return predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr", Chain: true}, nil
	})
	e, err := NewEngine(testPolicy(), testSpecs(), p)
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "collect"

	for i := 0; i < stallLimit; i++ {
		if _, err := e.Next(context.Background(), sess); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
	// Progress: a slot changed, so the state fingerprint moves.
	if err := sess.Slots.SetExtracted("pnr_number", "ABC123"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < stallLimit; i++ {
		if _, err := e.Next(context.Background(), sess); err != nil {
			t.Fatalf("post-progress iteration %d: %v", i, err)
		}
	}
}

// TestEngineStallResetOnNewTurn verifies a new user message clears the
// loop state.
func TestEngineStallResetOnNewTurn(t *testing.T) {
	p := predict.PredictorFunc(func(context.Context, predict.Request) (predict.Decision, error) {
		return predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr", Chain: true}, nil
	})
	e, err := NewEngine(testPolicy(), testSpecs(), p)
	if err != nil {
		t.Fatal(err)
	}

	sess := testWorkflowSession()
	sess.Step = "collect"

	for i := 0; i < stallLimit; i++ {
		if _, err := e.Next(context.Background(), sess); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
	sess.Turns++
	if _, err := e.Next(context.Background(), sess); err != nil {
		t.Fatalf("new turn should reset the stall budget: %v", err)
	}
}

func TestEngineRequiresKnownSpecs(t *testing.T) {
	cfg := testPolicy()
	cfg.Actions = append(cfg.Actions, "unmapped_action")
	if _, err := NewEngine(cfg, testSpecs(), scripted()); err == nil {
		t.Error("expected error for action without a spec")
	}
}

package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyzsasd/tomo/internal/action"
	"github.com/dyzsasd/tomo/internal/nlu"
	"github.com/dyzsasd/tomo/internal/policy"
	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/internal/workflow"
	"github.com/dyzsasd/tomo/pkg/assistant"
	"github.com/dyzsasd/tomo/pkg/channel"
	"github.com/dyzsasd/tomo/pkg/session"
)

func slotDecls() []session.Slot {
	return []session.Slot{
		{Name: "city", Description: "city asked about", Extractable: true},
		{Name: "date", Description: "date asked about", Extractable: true},
		{Name: "weather", Description: "weather lookup result"},
		{Name: "pnr_number", Description: "booking reference", Extractable: true},
		{Name: "new_itinerary", Description: "requested change", Extractable: true},
		{Name: "pnr_details"},
		{Name: "new_itinerary_details"},
		{Name: "pricing_information"},
		{Name: "pqr_number"},
		{Name: "client_location", Extractable: true},
	}
}

func fullRegistry(t *testing.T) *action.Registry {
	t.Helper()
	reg := action.NewRegistry()
	require.NoError(t, action.RegisterBuiltins(reg))
	require.NoError(t, action.RegisterWeather(reg))
	require.NoError(t, action.RegisterFlightExchange(reg))
	return reg
}

// scriptedExtractor returns fixed results per call, in order.
func scriptedExtractor(results ...nlu.Result) nlu.Extractor {
	i := 0
	return nlu.ExtractorFunc(func(context.Context, string, nlu.Context) (nlu.Result, error) {
		if i >= len(results) {
			return nlu.Result{}, nil
		}
		r := results[i]
		i++
		return r, nil
	})
}

// scriptedPredictor returns fixed decisions per call, then waits.
func scriptedPredictor(decisions ...predict.Decision) predict.Predictor {
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

func newProcessor(t *testing.T, extractor nlu.Extractor, policies []policy.Policy, out channel.OutputChannel) (*Processor, *session.Manager) {
	t.Helper()
	manager := session.NewManager(session.NewMemoryStore(), slotDecls(), "Hello! How can I help?")
	dispatcher, err := policy.NewDispatcher(policies)
	require.NoError(t, err)
	executor := action.NewExecutor(fullRegistry(t))
	return New(manager, extractor, dispatcher, executor, out), manager
}

// TestWeatherTurn covers the full weather flow: extraction fills the
// city, the policy looks up the weather, utters it, and waits.
func TestWeatherTurn(t *testing.T) {
	out := channel.NewCollector()

	extractor := scriptedExtractor(nlu.Result{
		Intent: "ask_weather",
		Slots:  map[string]any{"city": "paris", "date": "today"},
	})
	weather := policy.NewStandard("weather", "Answer weather questions.", []string{"ask_weather"},
		nil, scriptedPredictor(
			predict.Decision{Type: predict.RunAction, Action: "find_weather"},
			predict.Decision{Type: predict.RunAction, Action: action.BotUtter,
				Args: map[string]any{"message": "There will be heavy snow in Paris."}},
			predict.Decision{Type: predict.Wait},
		))

	p, manager := newProcessor(t, extractor, []policy.Policy{weather}, out)
	require.NoError(t, p.HandleMessage(context.Background(), Message{
		SessionID: "sess-1",
		Text:      "what's the weather in paris today?",
	}))

	sess, err := manager.Store().Load(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "ask_weather", sess.Intent)
	assert.True(t, sess.Slots.IsFilled("weather"), "action should have filled the weather slot")

	msgs := out.Messages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, strings.Join(msgs, "\n"), "snow")

	// The turn's history carries both executed actions.
	var actions []string
	for _, ev := range sess.Events {
		if e, ok := ev.(*session.ActionExecuted); ok {
			actions = append(actions, e.Action)
		}
	}
	assert.Equal(t, []string{"find_weather", action.BotUtter}, actions)
}

func stepPolicy(t *testing.T, predictor predict.Predictor) policy.Policy {
	t.Helper()
	cfg := &assistant.PolicyConfig{
		Type:    assistant.PolicyStepBased,
		Name:    "flight_exchange",
		Intents: []string{"exchange_flight"},
		Actions: []string{"retrieve_pnr", "exchange_shopping", "cancel_existing_itinerary", "bot_utter", "listen"},
		Steps: []assistant.Step{
			{ID: "retrieve_pnr_step", Description: "get the booking", Actions: []string{"retrieve_pnr", "bot_utter"}, Chain: true},
			{ID: "exchange_shopping_step", Description: "search options", Actions: []string{"exchange_shopping", "bot_utter"}},
			{ID: "cancel_step", Description: "cancel the old itinerary", Actions: []string{"cancel_existing_itinerary"}},
		},
	}
	specs := []predict.ActionSpec{
		{Name: "retrieve_pnr"}, {Name: "exchange_shopping"},
		{Name: "cancel_existing_itinerary"}, {Name: "bot_utter"}, {Name: "listen"},
	}
	engine, err := workflow.NewEngine(cfg, specs, predictor)
	require.NoError(t, err)
	return policy.NewStepBased(cfg.Name, cfg.Intents, engine)
}

// TestStepTurnAwaitsMissingSlot covers the two-message step flow: with
// the booking reference missing the policy waits; once extraction
// fills it the action runs and the step advances.
func TestStepTurnAwaitsMissingSlot(t *testing.T) {
	out := channel.NewCollector()

	extractor := scriptedExtractor(
		nlu.Result{Intent: "exchange_flight"},
		nlu.Result{Slots: map[string]any{"pnr_number": "ABC123"}},
	)
	predictor := scriptedPredictor(
		// Turn 1: ask for the PNR and hand back to the user. Chain
		// keeps the loop alive across the entry transition so the
		// Wait decision ends the turn.
		predict.Decision{Type: predict.RunAction, Action: "bot_utter", Chain: true,
			Args: map[string]any{"message": "Could you share your booking reference?"}},
		predict.Decision{Type: predict.Wait},
		// Turn 2: retrieve and advance without chaining.
		predict.Decision{Type: predict.RunAction, Action: "retrieve_pnr", NextStep: "exchange_shopping_step"},
	)

	p, manager := newProcessor(t, extractor, []policy.Policy{stepPolicy(t, predictor)}, out)
	ctx := context.Background()

	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "I need to change my flight"}))

	sess, err := manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.False(t, sess.Slots.IsFilled("pnr_details"), "no booking call before the reference arrives")
	assert.Contains(t, strings.Join(out.Drain(), "\n"), "booking reference")

	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "it's ABC123"}))

	sess, err = manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.True(t, sess.Slots.IsFilled("pnr_details"))
	assert.Equal(t, "exchange_shopping_step", sess.Step, "step advances with the successful action")
}

// TestTerminalFailureDoesNotAdvanceStep puts a failing action at a
// step boundary and expects the step to stay put.
func TestTerminalFailureDoesNotAdvanceStep(t *testing.T) {
	out := channel.NewCollector()

	extractor := scriptedExtractor(nlu.Result{Intent: "exchange_flight"})
	// pnr_details is required by cancel_existing_itinerary and is not
	// filled, so the action reports failure.
	predictor := scriptedPredictor(
		predict.Decision{Type: predict.RunAction, Action: "cancel_existing_itinerary", NextStep: "exchange_shopping_step"},
	)

	p, manager := newProcessor(t, extractor, []policy.Policy{stepPolicy(t, predictor)}, out)
	ctx := context.Background()

	// Park the session in the cancellation step before the message
	// arrives.
	_, err := manager.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	_, err = manager.Apply(ctx, "s", func(*session.Session) ([]session.Event, error) {
		return []session.Event{session.NewStepEntered("cancel_step")}, nil
	})
	require.NoError(t, err)

	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "cancel it"}))

	sess, err := manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "cancel_step", sess.Step, "failure must not advance the step")

	var failed int
	for _, ev := range sess.Events {
		if _, ok := ev.(*session.ActionFailed); ok {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
	assert.Contains(t, strings.Join(out.Messages(), "\n"), "couldn't complete")
}

// TestInvalidPredictionAbortsTurn feeds the engine an action outside
// the workflow and expects an aborted turn with no action history.
func TestInvalidPredictionAbortsTurn(t *testing.T) {
	out := channel.NewCollector()

	extractor := scriptedExtractor(nlu.Result{Intent: "exchange_flight"})
	predictor := scriptedPredictor(
		predict.Decision{Type: predict.RunAction, Action: "find_weather"},
	)

	p, manager := newProcessor(t, extractor, []policy.Policy{stepPolicy(t, predictor)}, out)
	ctx := context.Background()
	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "change my flight"}))

	sess, err := manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	for _, ev := range sess.Events {
		switch ev.(type) {
		case *session.ActionExecuted, *session.ActionFailed:
			t.Fatalf("aborted turn must not commit action history, found %s", ev.Type())
		}
	}
	// The user message itself stays committed.
	assert.NotNil(t, sess.LastUserUttered())
	assert.Contains(t, strings.Join(out.Messages(), "\n"), "Sorry")
}

// TestEndDecisionDisablesSession verifies an End decision disables the
// session and later messages are dropped.
func TestEndDecisionDisablesSession(t *testing.T) {
	out := channel.NewCollector()

	extractor := scriptedExtractor(nlu.Result{Intent: "goodbye"}, nlu.Result{})
	farewell := policy.NewStandard("farewell", "Say goodbye.", []string{"goodbye"}, nil,
		scriptedPredictor(predict.Decision{Type: predict.End}))

	p, manager := newProcessor(t, extractor, []policy.Policy{farewell}, out)
	ctx := context.Background()
	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "bye"}))

	sess, err := manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.False(t, sess.Active)

	turns := sess.Turns
	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "hello?"}))
	sess, err = manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, turns, sess.Turns, "disabled session must drop messages")
}

// TestPredictionBound stops a policy that never waits.
func TestPredictionBound(t *testing.T) {
	out := channel.NewCollector()

	extractor := scriptedExtractor(nlu.Result{Intent: "chatty"})
	calls := 0
	chatty := policy.NewStandard("chatty", "", []string{"chatty"}, nil,
		predict.PredictorFunc(func(context.Context, predict.Request) (predict.Decision, error) {
			calls++
			return predict.Decision{Type: predict.RunAction, Action: action.BotUtter,
				Args: map[string]any{"message": "and another thing"}}, nil
		}))

	p, _ := newProcessor(t, extractor, []policy.Policy{chatty}, out)
	p.WithMaxPredictions(5)

	require.NoError(t, p.HandleMessage(context.Background(), Message{SessionID: "s", Text: "hi"}))
	assert.Equal(t, 5, calls, "loop must stop at the prediction bound")
}

// TestRetryableFailureRetried verifies the retry budget for retryable
// outcomes.
func TestRetryableFailureRetried(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, action.RegisterBuiltins(reg))
	attempts := 0
	require.NoError(t, reg.Register(&action.Action{
		Name: "flaky",
		Handler: func(context.Context, *session.Session, map[string]any) (action.Outcome, error) {
			attempts++
			if attempts < 3 {
				return action.FailRetryable("timeout"), nil
			}
			return action.Say("done"), nil
		},
	}))

	out := channel.NewCollector()
	manager := session.NewManager(session.NewMemoryStore(), slotDecls(), "")
	pol := policy.NewStandard("p", "", nil, nil, scriptedPredictor(
		predict.Decision{Type: predict.RunAction, Action: "flaky"},
		predict.Decision{Type: predict.Wait},
	))
	dispatcher, err := policy.NewDispatcher([]policy.Policy{pol})
	require.NoError(t, err)

	p := New(manager, nlu.Noop(), dispatcher, action.NewExecutor(reg), out)
	require.NoError(t, p.HandleMessage(context.Background(), Message{SessionID: "s", Text: "go"}))

	assert.Equal(t, 3, attempts)
	assert.Contains(t, strings.Join(out.Messages(), "\n"), "done")
}

// TestNoPolicyForIntentWaits verifies an unroutable intent ends the
// turn quietly instead of crashing it.
func TestNoPolicyForIntentWaits(t *testing.T) {
	out := channel.NewCollector()
	extractor := scriptedExtractor(nlu.Result{Intent: "smalltalk"})
	weather := policy.NewStandard("weather", "", []string{"ask_weather"}, nil, scriptedPredictor())

	p, manager := newProcessor(t, extractor, []policy.Policy{weather}, out)
	require.NoError(t, p.HandleMessage(context.Background(), Message{SessionID: "s", Text: "nice day"}))

	sess, err := manager.Store().Load(context.Background(), "s")
	require.NoError(t, err)
	assert.NotNil(t, sess.LastUserUttered(), "the message is committed even without a policy")
}

// TestExtractionSkipsProtectedSlots checks that extraction results can
// neither invent slots nor touch non-extractable or filled ones.
func TestExtractionSkipsProtectedSlots(t *testing.T) {
	out := channel.NewCollector()
	extractor := scriptedExtractor(nlu.Result{
		Intent: "ask_weather",
		Slots: map[string]any{
			"city":        "paris",
			"pnr_details": map[string]any{"forged": true},
			"no_such":     "x",
		},
	})
	weather := policy.NewStandard("weather", "", []string{"ask_weather"}, nil, scriptedPredictor())

	p, manager := newProcessor(t, extractor, []policy.Policy{weather}, out)
	require.NoError(t, p.HandleMessage(context.Background(), Message{SessionID: "s", Text: "hi"}))

	sess, err := manager.Store().Load(context.Background(), "s")
	require.NoError(t, err)
	v, _ := sess.Slots.Get("city")
	assert.Equal(t, "paris", v)
	assert.False(t, sess.Slots.IsFilled("pnr_details"), "non-extractable slot must stay empty")
}

// TestConfirmOutcomeDoesNotAdvanceStep pairs a confirmation request
// with a step transition and expects the step to stay put until the
// user answers.
func TestConfirmOutcomeDoesNotAdvanceStep(t *testing.T) {
	reg := action.NewRegistry()
	require.NoError(t, action.RegisterBuiltins(reg))
	require.NoError(t, reg.Register(&action.Action{
		Name: "seek_approval",
		Handler: func(context.Context, *session.Session, map[string]any) (action.Outcome, error) {
			return action.Confirm("Shall I go ahead?"), nil
		},
	}))

	out := channel.NewCollector()
	extractor := scriptedExtractor(nlu.Result{Intent: "exchange_flight"})
	pol := policy.NewStandard("exchange", "", []string{"exchange_flight"}, nil, scriptedPredictor(
		predict.Decision{Type: predict.RunAction, Action: "seek_approval", NextStep: "booking"},
	))
	dispatcher, err := policy.NewDispatcher([]policy.Policy{pol})
	require.NoError(t, err)
	manager := session.NewManager(session.NewMemoryStore(), slotDecls(), "")
	p := New(manager, extractor, dispatcher, action.NewExecutor(reg), out)

	ctx := context.Background()
	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "do it"}))

	sess, err := manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "seek_approval", sess.PendingAction)
	assert.Empty(t, sess.Step, "a pending confirmation must not advance the step")
}

// TestExtractionYieldsToConcurrentFill commits a message whose
// snapshot predates another turn's slot fill; the fill must survive.
func TestExtractionYieldsToConcurrentFill(t *testing.T) {
	out := channel.NewCollector()
	extractor := scriptedExtractor(nlu.Result{
		Intent: "ask_weather",
		Slots:  map[string]any{"city": "paris"},
	})
	weather := policy.NewStandard("weather", "", []string{"ask_weather"}, nil, scriptedPredictor())

	p, manager := newProcessor(t, extractor, []policy.Policy{weather}, out)
	ctx := context.Background()

	sess, err := manager.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	stale := sess.Clone()

	// Another turn fills the slot after our snapshot was taken.
	_, err = manager.Commit(ctx, "s", []session.Event{
		session.NewSlotFilled("city", "london", session.OriginExtraction),
	})
	require.NoError(t, err)

	committed, err := p.logMessage(ctx, stale, Message{SessionID: "s", Text: "what about paris?", MessageID: "m1"})
	require.NoError(t, err)

	v, ok := committed.Slots.Get("city")
	require.True(t, ok)
	assert.Equal(t, "london", v, "extraction must not overwrite a concurrently filled slot")
}

// TestConfirmationFlow parks an action on a confirm outcome and
// resolves it on the next message.
func TestConfirmationFlow(t *testing.T) {
	out := channel.NewCollector()
	extractor := scriptedExtractor(
		nlu.Result{Intent: "exchange_flight"},
		nlu.Result{},
	)

	reg := fullRegistry(t)
	pol := policy.NewStandard("exchange", "", []string{"exchange_flight"}, nil, scriptedPredictor(
		// Turn 1: the pricing evaluation asks for a go-ahead.
		predict.Decision{Type: predict.RunAction, Action: "evaluate_pricing_information"},
		// Turn 2: the user agreed; confirm the exchange.
		predict.Decision{Type: predict.RunAction, Action: "confirm_exchange"},
		predict.Decision{Type: predict.Wait},
	))
	dispatcher, err := policy.NewDispatcher([]policy.Policy{pol})
	require.NoError(t, err)
	manager := session.NewManager(session.NewMemoryStore(), slotDecls(), "")
	p := New(manager, extractor, dispatcher, action.NewExecutor(reg), out)

	ctx := context.Background()

	// Seed the slots the actions need.
	_, err = manager.GetOrCreate(ctx, "s")
	require.NoError(t, err)
	_, err = manager.Apply(ctx, "s", func(*session.Session) ([]session.Event, error) {
		return []session.Event{
			session.NewSlotFilled("pricing_information", map[string]any{"additional_fee": 150.0}, session.OriginAction),
			session.NewSlotFilled("pqr_number", "PQR123456", session.OriginAction),
		}, nil
	})
	require.NoError(t, err)

	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "change my flight"}))
	sess, err := manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, "evaluate_pricing_information", sess.PendingAction)
	assert.Contains(t, strings.Join(out.Drain(), "\n"), "proceed")

	require.NoError(t, p.HandleMessage(ctx, Message{SessionID: "s", Text: "yes please"}))
	sess, err = manager.Store().Load(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, sess.PendingAction, "the confirmation is resolved by the next message")
	assert.Equal(t, "confirm_exchange", sess.LastAction)
}

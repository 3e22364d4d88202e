package predict

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dyzsasd/tomo/internal/llm"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Decision
		wantErr bool
	}{
		{
			name: "run action",
			raw:  `{"decision":"run_action","action":"retrieve_pnr","arguments":{"pnr":"ABC"}}`,
			want: Decision{Type: RunAction, Action: "retrieve_pnr", Args: map[string]any{"pnr": "ABC"}},
		},
		{
			name: "wait",
			raw:  `{"decision":"wait"}`,
			want: Decision{Type: Wait},
		},
		{
			name: "end",
			raw:  `{"decision":"end"}`,
			want: Decision{Type: End},
		},
		{
			name: "step move with chain",
			raw:  `{"decision":"run_action","action":"retrieve_pnr","next_step":"shopping","chain":true}`,
			want: Decision{Type: RunAction, Action: "retrieve_pnr", NextStep: "shopping", Chain: true},
		},
		{
			name:    "garbage",
			raw:     `next we should retrieve the PNR`,
			wantErr: true,
		},
		{
			name:    "unknown decision",
			raw:     `{"decision":"ponder"}`,
			wantErr: true,
		},
		{
			name:    "run action without name",
			raw:     `{"decision":"run_action"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecision(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPrediction) {
					t.Fatalf("expected ErrInvalidPrediction, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Type != tt.want.Type || got.Action != tt.want.Action ||
				got.NextStep != tt.want.NextStep || got.Chain != tt.want.Chain {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLLMPredictorStandardPrompt(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.AddResponse(`{"decision":"wait"}`, nil)

	p := NewLLMPredictor(mock)
	_, err := p.Predict(context.Background(), Request{
		Scope:   "Handle weather questions.",
		Intents: []string{"ask_weather"},
		Actions: []ActionSpec{
			{Name: "find_weather", Description: "look up the weather", RequiredSlots: []string{"city", "date"}},
		},
		Transcript: []string{"user(ask_weather): weather in Paris?"},
		Slots: []SlotState{
			{Name: "city", Value: "Paris", Filled: true},
			{Name: "date", Description: "the date asked about"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if !calls[0].JSON {
		t.Error("prediction must request JSON output")
	}
	if !strings.Contains(calls[0].System, "ask_weather") {
		t.Error("system prompt should carry the intent scope")
	}
	if !strings.Contains(calls[0].User, "required slots: city, date") {
		t.Error("session prompt should list required slots")
	}
	if !strings.Contains(calls[0].User, `"Paris"`) {
		t.Error("session prompt should render filled slot values")
	}
	if !strings.Contains(calls[0].User, "<empty>") {
		t.Error("session prompt should mark unfilled slots")
	}
}

func TestLLMPredictorStepPrompt(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.AddResponse(`{"decision":"run_action","action":"retrieve_pnr"}`, nil)

	p := NewLLMPredictor(mock)
	dec, err := p.Predict(context.Background(), Request{
		Actions: []ActionSpec{{Name: "retrieve_pnr", Description: "fetch the booking"}},
		Step: &StepContext{
			Current: StepInfo{ID: "collect", Description: "collect booking details", Prompt: "Ask for the PNR, then retrieve it."},
			All: []StepInfo{
				{ID: "collect", Description: "collect booking details"},
				{ID: "shopping", Description: "search new itineraries"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Type != RunAction || dec.Action != "retrieve_pnr" {
		t.Errorf("decision = %+v", dec)
	}

	call := mock.Calls()[0]
	if !strings.Contains(call.System, "step name: shopping") {
		t.Error("system prompt should list all steps")
	}
	if !strings.Contains(call.User, `step "collect"`) {
		t.Error("session prompt should name the current step")
	}
	if !strings.Contains(call.User, "Ask for the PNR") {
		t.Error("session prompt should carry the step instruction")
	}
}

func TestLLMPredictorBackendError(t *testing.T) {
	mock := llm.NewMockGenerator()
	mock.AddResponse("", errors.New("backend down"))

	p := NewLLMPredictor(mock)
	if _, err := p.Predict(context.Background(), Request{}); err == nil {
		t.Error("expected backend error to propagate")
	}
}

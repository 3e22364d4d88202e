package assistant

import (
	"errors"
	"testing"
)

const validDefinition = `
assistant:
  name: travel
  greeting: "Hi!"
  intents:
    - name: exchange_flight
    - name: greet
  slots:
    - name: pnr_number
      extractable: true
    - name: pnr_details
  nlu:
    provider: openai
  predictor:
    provider: openai
  policies:
    - type: quick_reply
      name: greeter
      intents: [greet]
      message: "Hello!"
    - type: step_based
      name: exchange
      intents: [exchange_flight]
      actions: [retrieve_pnr, bot_utter]
      steps:
        - id: pnr_retrieval
          prompt: Collect the booking reference and retrieve the record.
          actions: [retrieve_pnr, bot_utter]
`

func TestParseValid(t *testing.T) {
	def, err := Parse([]byte(validDefinition))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "travel" {
		t.Errorf("expected name travel, got %q", def.Name)
	}
	if len(def.Policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(def.Policies))
	}
	step := def.Policies[1].StepByID("pnr_retrieval")
	if step == nil {
		t.Fatal("expected step pnr_retrieval")
	}
	if slot := def.SlotByName("pnr_number"); slot == nil || !slot.Extractable {
		t.Error("expected extractable pnr_number slot")
	}
	if slot := def.SlotByName("pnr_details"); slot == nil || slot.Extractable {
		t.Error("expected non-extractable pnr_details slot")
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{
			name: "duplicate slot",
			want: ErrDuplicateSlot,
			yaml: `
assistant:
  slots:
    - name: city
    - name: city
`,
		},
		{
			name: "duplicate intent",
			want: ErrDuplicateIntent,
			yaml: `
assistant:
  intents:
    - name: greet
    - name: greet
`,
		},
		{
			name: "policy with unknown intent",
			want: ErrUnknownIntent,
			yaml: `
assistant:
  intents:
    - name: greet
  policies:
    - type: quick_reply
      name: greeter
      intents: [farewell]
      message: hi
`,
		},
		{
			name: "intent claimed twice",
			want: ErrAmbiguousIntentPolicy,
			yaml: `
assistant:
  intents:
    - name: greet
  policies:
    - type: quick_reply
      name: a
      intents: [greet]
      message: hi
    - type: quick_reply
      name: b
      intents: [greet]
      message: hello
`,
		},
		{
			name: "quick reply without message",
			want: ErrInvalidPolicy,
			yaml: `
assistant:
  policies:
    - type: quick_reply
      name: greeter
`,
		},
		{
			name: "standard without actions",
			want: ErrInvalidPolicy,
			yaml: `
assistant:
  policies:
    - type: standard
      name: empty
`,
		},
		{
			name: "unknown policy type",
			want: ErrInvalidPolicy,
			yaml: `
assistant:
  policies:
    - type: form
      name: legacy
`,
		},
		{
			name: "step uses undeclared action",
			want: ErrUndeclaredAction,
			yaml: `
assistant:
  policies:
    - type: step_based
      name: exchange
      actions: [retrieve_pnr]
      steps:
        - id: s1
          prompt: p
          actions: [ghost_action]
`,
		},
		{
			name: "duplicate step id",
			want: ErrDuplicateStep,
			yaml: `
assistant:
  policies:
    - type: step_based
      name: exchange
      actions: [retrieve_pnr]
      steps:
        - id: s1
          prompt: p
          actions: [retrieve_pnr]
        - id: s1
          prompt: p
          actions: [retrieve_pnr]
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateActions(t *testing.T) {
	def, err := Parse([]byte(validDefinition))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	registered := map[string]bool{"retrieve_pnr": true, "bot_utter": true}
	if err := def.ValidateActions(func(name string) bool { return registered[name] }); err != nil {
		t.Errorf("expected registered actions to pass: %v", err)
	}

	if err := def.ValidateActions(func(string) bool { return false }); !errors.Is(err, ErrUndeclaredAction) {
		t.Errorf("expected ErrUndeclaredAction, got %v", err)
	}
}

func TestAPIKeyEnvFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	def, err := Parse([]byte(validDefinition))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.NLU.APIKey != "sk-test" {
		t.Errorf("expected env fallback key, got %q", def.NLU.APIKey)
	}
}

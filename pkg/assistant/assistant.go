// Package assistant defines the declarative assistant configuration:
// intents, slots, policies with their steps, and the NLU/predictor
// backends. A definition is loaded once at startup, validated, and then
// shared read-only by all sessions.
package assistant

// Definition is the root of an assistant configuration artifact.
type Definition struct {
	// Name identifies the assistant.
	Name string `yaml:"name"`
	// Greeting is sent when a new session starts.
	Greeting string `yaml:"greeting,omitempty"`
	// Intents the assistant can recognize.
	Intents []Intent `yaml:"intents"`
	// Slots declared for every session of this assistant.
	Slots []Slot `yaml:"slots"`
	// Policies that govern conversations, keyed by their intent sets.
	Policies []PolicyConfig `yaml:"policies"`
	// NLU configures the slot-extraction backend.
	NLU BackendConfig `yaml:"nlu"`
	// Predictor configures the next-action prediction backend.
	Predictor BackendConfig `yaml:"predictor"`
}

// Intent is a classified category of user goal.
type Intent struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// Slot declares a named piece of conversation state.
type Slot struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Extractable slots may be populated by the NLU from raw text.
	// Non-extractable slots can only be written by action outcomes.
	Extractable bool `yaml:"extractable"`
	// InitialValue pre-fills the slot when a session starts.
	InitialValue any `yaml:"initial_value,omitempty"`
}

// Policy types understood by the runtime.
const (
	PolicyQuickReply = "quick_reply"
	PolicyStandard   = "standard"
	PolicyStepBased  = "step_based"
)

// PolicyConfig declares one policy and the intents it governs.
type PolicyConfig struct {
	Type    string   `yaml:"type"`
	Name    string   `yaml:"name"`
	Intents []string `yaml:"intents"`
	// Actions the policy may run. For step-based policies this is the
	// union of all step action sets.
	Actions []string `yaml:"actions,omitempty"`
	// Scope is a free-text description of the policy's responsibility,
	// passed to the predictor (standard policies).
	Scope string `yaml:"scope,omitempty"`
	// Message is the canned response of a quick-reply policy.
	Message string `yaml:"message,omitempty"`
	// Steps of a step-based policy, in declared order.
	Steps []Step `yaml:"steps,omitempty"`
}

// Step is one node of a step-based policy's workflow.
type Step struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	// Prompt guides the predictor's next-action decision for this step.
	// The runtime treats it as opaque.
	Prompt string `yaml:"prompt"`
	// Actions reachable from this step. A prediction outside this set
	// is rejected without being executed.
	Actions []string `yaml:"actions"`
	// Chain allows a successful action outcome to trigger the next
	// decision without waiting for new user input.
	Chain bool `yaml:"chain,omitempty"`
}

// BackendConfig selects and configures an external collaborator.
type BackendConfig struct {
	Provider string `yaml:"provider"` // openai, gemini or static
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
}

// StepByID returns the step with the given ID, or nil.
func (p *PolicyConfig) StepByID(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// SlotByName returns the slot declaration with the given name, or nil.
func (d *Definition) SlotByName(name string) *Slot {
	for i := range d.Slots {
		if d.Slots[i].Name == name {
			return &d.Slots[i]
		}
	}
	return nil
}

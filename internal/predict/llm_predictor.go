package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyzsasd/tomo/internal/llm"
)

const standardSystemPrompt = `Objective: guide the system to determine and execute actions based on the user's inquiry.

Scope: %s

The assistant only handles intents within this policy's scope and must not respond to intents outside of it.
Intent scope: %s

Instructions:
1. Analyze the conversation history and decide whether an action should be taken for the user's latest intent.
2. If the latest intent is outside this policy's scope, wait for the next user message instead of acting.
3. If the intent is in scope, review the session slots and pick the single next action that moves the conversation forward, such as:
   - asking the user for missing information with bot_utter,
   - calling a backend action to fill session slots,
   - presenting gathered information to the user.
4. An action may list required slots; only pick it when all of them are filled.
5. Once the user's requirement is satisfied, wait for further input.

Respond with a JSON object of the form:
{"decision": "run_action" | "wait" | "end", "action": "<action name>", "arguments": {}, "chain": true|false}

Use "wait" to hand the turn back to the user and "end" to finish the conversation. Set "chain" to true when the system should immediately decide again after the action instead of waiting for user input.`

const stepSystemPrompt = `You are the decision component of a customer service assistant. Your responsibility is guiding the system through a multi-step process by choosing the next action.

The process is broken into steps, each with its own objective and allowed actions:
%s

To choose the next action:
1. Check which step the process is currently in.
2. Check the session slots, the conversation history, and the step instruction.
3. Pick the single next action from the available actions, or move to another step when the current step's objective is met.

Respond with a JSON object of the form:
{"decision": "run_action" | "wait" | "end", "action": "<action name>", "arguments": {}, "next_step": "<step name or empty>", "chain": true|false}

Use "wait" to hand the turn back to the user, "end" to finish the conversation, and "next_step" to move the workflow to another step. Set "chain" to true when the system should immediately decide again after the action.`

const sessionPromptTemplate = `Available actions:
An action may list required slots; it can only run when all of them are filled.
%s

Conversation history, oldest to latest. User messages carry the detected intent as a prefix.
%s

Session slots:
%s
%s`

// LLMPredictor turns session state into a prompt, runs it through a
// generation backend, and parses the reply.
type LLMPredictor struct {
	gen llm.Generator
}

// NewLLMPredictor creates a predictor over the given backend.
func NewLLMPredictor(gen llm.Generator) *LLMPredictor {
	return &LLMPredictor{gen: gen}
}

func (p *LLMPredictor) Predict(ctx context.Context, req Request) (Decision, error) {
	raw, err := p.gen.Generate(ctx, llm.Request{
		System: p.systemPrompt(req),
		User:   p.sessionPrompt(req),
		JSON:   true,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("prediction call: %w", err)
	}
	return ParseDecision(raw)
}

func (p *LLMPredictor) systemPrompt(req Request) string {
	if req.Step != nil {
		var steps strings.Builder
		for _, step := range req.Step.All {
			fmt.Fprintf(&steps, "- step name: %s\n  description: %s\n", step.ID, step.Description)
		}
		return fmt.Sprintf(stepSystemPrompt, steps.String())
	}

	intents := "all intents"
	if len(req.Intents) > 0 {
		intents = strings.Join(req.Intents, ", ")
	}
	return fmt.Sprintf(standardSystemPrompt, req.Scope, intents)
}

func (p *LLMPredictor) sessionPrompt(req Request) string {
	var actions strings.Builder
	for _, a := range req.Actions {
		fmt.Fprintf(&actions, "- %s: %s", a.Name, a.Description)
		if len(a.RequiredSlots) > 0 {
			fmt.Fprintf(&actions, " (required slots: %s)", strings.Join(a.RequiredSlots, ", "))
		}
		actions.WriteString("\n")
	}

	var slots strings.Builder
	for _, s := range req.Slots {
		if s.Filled {
			data, err := json.Marshal(s.Value)
			if err != nil {
				data = []byte(fmt.Sprintf("%v", s.Value))
			}
			fmt.Fprintf(&slots, "- %s: %s\n", s.Name, data)
		} else {
			fmt.Fprintf(&slots, "- %s: <empty> (%s)\n", s.Name, s.Description)
		}
	}

	stepSection := ""
	if req.Step != nil {
		cur := req.Step.Current
		stepSection = fmt.Sprintf("\nThe process is currently in step %q.\nStep description: %s\nStep instruction: %s\n",
			cur.ID, cur.Description, cur.Prompt)
	}

	return fmt.Sprintf(sessionPromptTemplate,
		actions.String(),
		strings.Join(req.Transcript, "\n"),
		slots.String(),
		stepSection)
}

// decisionJSON is the wire form the model replies with.
type decisionJSON struct {
	Decision string         `json:"decision"`
	Action   string         `json:"action"`
	Args     map[string]any `json:"arguments"`
	NextStep string         `json:"next_step"`
	Chain    bool           `json:"chain"`
}

// ParseDecision parses a model reply into a decision. Structural
// problems come back as ErrInvalidPrediction.
func ParseDecision(raw string) (Decision, error) {
	var wire decisionJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &wire); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrInvalidPrediction, err)
	}

	switch DecisionType(wire.Decision) {
	case RunAction:
		if wire.Action == "" {
			return Decision{}, fmt.Errorf("%w: run_action without an action name", ErrInvalidPrediction)
		}
	case Wait, End:
	default:
		return Decision{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidPrediction, wire.Decision)
	}

	return Decision{
		Type:     DecisionType(wire.Decision),
		Action:   wire.Action,
		Args:     wire.Args,
		NextStep: wire.NextStep,
		Chain:    wire.Chain,
	}, nil
}

package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dyzsasd/tomo/internal/llm"
	"github.com/dyzsasd/tomo/pkg/assistant"
)

const extractorSystemPrompt = `You are the language understanding component of a conversational assistant.
Given the conversation history and the latest user message, detect the user's intent and extract slot values.

Intents you may detect:
%s

Slots you may extract:
%s

Respond with a JSON object of the form:
{"intent": "<intent name or empty string>", "slots": {"<slot name>": <value>}}

Only use intent and slot names from the lists above. Return an empty intent when the message does not change the user's goal. Only include slots whose values appear in the message.`

// LLMExtractor runs intent detection and slot extraction through a
// text-generation backend. The prompt is built once from the assistant
// definition; only extractable slots are offered to the model.
type LLMExtractor struct {
	gen    llm.Generator
	system string
}

// NewLLMExtractor builds an extractor for the given assistant.
func NewLLMExtractor(gen llm.Generator, def *assistant.Definition) *LLMExtractor {
	var intents strings.Builder
	for _, it := range def.Intents {
		fmt.Fprintf(&intents, "- %s: %s\n", it.Name, it.Description)
	}

	var slots strings.Builder
	for _, sl := range def.Slots {
		if !sl.Extractable {
			continue
		}
		fmt.Fprintf(&slots, "- %s: %s\n", sl.Name, sl.Description)
	}

	return &LLMExtractor{
		gen:    gen,
		system: fmt.Sprintf(extractorSystemPrompt, intents.String(), slots.String()),
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, convCtx Context) (Result, error) {
	var user strings.Builder
	if len(convCtx.Transcript) > 0 {
		user.WriteString("Conversation so far:\n")
		user.WriteString(strings.Join(convCtx.Transcript, "\n"))
		user.WriteString("\n\n")
	}
	if convCtx.CurrentIntent != "" {
		fmt.Fprintf(&user, "Current intent: %s\n\n", convCtx.CurrentIntent)
	}
	user.WriteString("Latest user message: ")
	user.WriteString(text)

	raw, err := e.gen.Generate(ctx, llm.Request{
		System: e.system,
		User:   user.String(),
		JSON:   true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("extraction call: %w", err)
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Result{}, fmt.Errorf("parse extraction %q: %w", raw, err)
	}
	return result, nil
}

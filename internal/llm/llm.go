// Package llm provides the text-generation backends the NLU extractor
// and the policy predictors run on. Backends expose one operation,
// prompt in, text out; callers own their prompts and their parsing.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dyzsasd/tomo/pkg/assistant"
)

// Backend errors.
var (
	// ErrEmptyCompletion is returned when the model produced no text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrUnknownProvider is returned for unconfigured provider names.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Request is one generation call.
type Request struct {
	// System is the instruction prompt.
	System string
	// User is the conversation payload.
	User string
	// JSON forces the model to emit a JSON object.
	JSON bool
	// Temperature defaults to 0 for deterministic extraction.
	Temperature float32
}

// Generator produces one completion. Implementations must be safe for
// concurrent use.
type Generator interface {
	// Name identifies the backend in logs.
	Name() string
	// Generate returns the completion text for one request.
	Generate(ctx context.Context, req Request) (string, error)
}

// New builds a generator from a backend configuration.
func New(cfg assistant.BackendConfig) (Generator, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg)
	case "gemini":
		return NewGemini(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Package nlu turns raw user text into an intent and extracted slot
// candidates. Extraction results only ever touch extractable slots;
// that check happens downstream in the slot store, not here.
package nlu

import (
	"context"
)

// Result is what extraction produced for one message. A zero Intent
// means the message did not change the governing intent.
type Result struct {
	Intent string         `json:"intent,omitempty"`
	Slots  map[string]any `json:"slots,omitempty"`
}

// Context carries the conversation state extraction may condition on.
type Context struct {
	// Transcript is the conversation so far, one line per utterance.
	Transcript []string
	// CurrentIntent is the intent governing the session, if any.
	CurrentIntent string
}

// Extractor parses one user message.
type Extractor interface {
	Extract(ctx context.Context, text string, convCtx Context) (Result, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, text string, convCtx Context) (Result, error)

func (f ExtractorFunc) Extract(ctx context.Context, text string, convCtx Context) (Result, error) {
	return f(ctx, text, convCtx)
}

// Noop returns an extractor that detects nothing. Assistants without
// an NLU backend fall back to it; policy selection then relies on the
// previously established intent.
func Noop() Extractor {
	return ExtractorFunc(func(context.Context, string, Context) (Result, error) {
		return Result{}, nil
	})
}

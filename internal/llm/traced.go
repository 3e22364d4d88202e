package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dyzsasd/tomo/pkg/observability"
)

// Traced wraps a generator with a span and call metrics per request.
type Traced struct {
	inner Generator
}

// NewTraced instruments a generator.
func NewTraced(inner Generator) *Traced {
	return &Traced{inner: inner}
}

func (t *Traced) Name() string { return t.inner.Name() }

func (t *Traced) Generate(ctx context.Context, req Request) (string, error) {
	ctx, span := observability.Tracer().Start(ctx, "llm.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.backend", t.inner.Name()),
		attribute.Bool("llm.json", req.JSON),
	)

	start := time.Now()
	out, err := t.inner.Generate(ctx, req)
	observability.RecordLLMCall(t.inner.Name(), time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return out, err
}

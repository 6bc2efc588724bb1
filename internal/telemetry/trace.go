package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer offers span helpers for the three expensive operations the
// coordinator performs: one provider call (§4.7), one tool invocation
// (§4.8), one full Run (§4.11) — grounded on goa-ai's
// runtime/agent/telemetry/clue.go tracer wiring. No code in this module
// calls these helpers; Coordinator only holds a Tracer.
type Tracer struct {
	tr trace.Tracer
}

// NewTracer builds a Tracer from the global otel TracerProvider under
// the given instrumentation name.
func NewTracer(name string) *Tracer {
	return &Tracer{tr: otel.Tracer(name)}
}

// StartRun opens a span covering one Coordinator.Run/RunStream call.
func (t *Tracer) StartRun(ctx context.Context, runID string) (context.Context, trace.Span) {
	return t.tr.Start(ctx, "coordinator.run", trace.WithAttributes())
}

// StartProviderCall opens a span covering one LLM caller invocation.
func (t *Tracer) StartProviderCall(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.tr.Start(ctx, "llm.call")
}

// StartToolInvoke opens a span covering one router dispatch.
func (t *Tracer) StartToolInvoke(ctx context.Context, toolName string) (context.Context, trace.Span) {
	return t.tr.Start(ctx, "router.invoke")
}

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics offers otel instruments for the retry counts and tool-budget
// consumption spec.md §4.6/§4.9 describe only as WARN log lines, an
// ambient addition over go.opentelemetry.io/otel/metric. internal/retry
// records retries through IncrRetry; ObserveToolBudget has no caller in
// this module.
type Metrics struct {
	retryCounter  metric.Int64Counter
	toolHistogram metric.Float64Histogram
}

// NewMetrics builds the counters/histograms from the global otel
// MeterProvider. Errors constructing an instrument are swallowed into a
// no-op instrument rather than failing Coordinator construction —
// metrics are an ambient concern, not load-bearing for correctness.
func NewMetrics(meterName string) *Metrics {
	meter := otel.Meter(meterName)
	retryCounter, _ := meter.Int64Counter("llmcoordinator.retry.count")
	toolHistogram, _ := meter.Float64Histogram("llmcoordinator.tool.budget_consumed")
	return &Metrics{retryCounter: retryCounter, toolHistogram: toolHistogram}
}

func (m *Metrics) IncrRetry(ctx context.Context, provider, model string, rateLimited bool) {
	if m == nil || m.retryCounter == nil {
		return
	}
	m.retryCounter.Add(ctx, 1)
}

func (m *Metrics) ObserveToolBudget(ctx context.Context, consumed int) {
	if m == nil || m.toolHistogram == nil {
		return
	}
	m.toolHistogram.Record(ctx, float64(consumed))
}

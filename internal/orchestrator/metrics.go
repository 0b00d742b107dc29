package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "billing-mcp/orchestrator"

type stepMetrics struct {
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// newStepMetrics creates the step instruments. Instrument creation errors
// leave the instrument nil and recording is skipped.
func newStepMetrics(meter metric.Meter) *stepMetrics {
	m := &stepMetrics{}
	m.outcomes, _ = meter.Int64Counter(
		"orchestrator.step.outcomes",
		metric.WithDescription("Workflow step outcomes by step and status"),
	)
	m.duration, _ = meter.Float64Histogram(
		"orchestrator.step.duration",
		metric.WithDescription("Workflow step duration"),
		metric.WithUnit("s"),
	)
	return m
}

func (m *stepMetrics) record(ctx context.Context, step Step, status Status, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("step", step.Key),
		attribute.String("status", string(status)),
		attribute.Bool("fatal", step.Fatal),
	)
	if m.outcomes != nil {
		m.outcomes.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

package catchup

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/contextgg/go-projections/es/catchup"

// MetricsRecorder records discovery and catch-up metrics.
// Use NewMetricsRecorder for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordDiscoveryPage records one discovered page of work items.
	RecordDiscoveryPage(ctx context.Context, items int, hasMore bool)

	// RecordIteration records one applied convergent catch-up iteration.
	RecordIteration(ctx context.Context, projection string, eventsApplied int64)

	// RecordCatchUp records a finished convergent catch-up.
	RecordCatchUp(ctx context.Context, projection string, synced bool, iterations int, duration time.Duration)
}

type otelMetrics struct {
	discoveryPages metric.Int64Counter
	workItems      metric.Int64Counter
	iterations     metric.Int64Counter
	eventsApplied  metric.Int64Counter
	catchUps       metric.Int64Counter
	catchUpLatency metric.Float64Histogram
}

func newOtelMetrics(provider metric.MeterProvider) (*otelMetrics, error) {
	meter := provider.Meter(meterName)

	discoveryPages, err := meter.Int64Counter("projections.discovery.pages",
		metric.WithDescription("Number of discovery pages produced"),
	)
	if err != nil {
		return nil, err
	}

	workItems, err := meter.Int64Counter("projections.discovery.work_items",
		metric.WithDescription("Number of discovered work items"),
	)
	if err != nil {
		return nil, err
	}

	iterations, err := meter.Int64Counter("projections.catchup.iterations",
		metric.WithDescription("Number of applied catch-up iterations"),
	)
	if err != nil {
		return nil, err
	}

	eventsApplied, err := meter.Int64Counter("projections.catchup.events_applied",
		metric.WithDescription("Number of events folded during catch-up"),
	)
	if err != nil {
		return nil, err
	}

	catchUps, err := meter.Int64Counter("projections.catchup.runs",
		metric.WithDescription("Number of convergent catch-up runs"),
	)
	if err != nil {
		return nil, err
	}

	catchUpLatency, err := meter.Float64Histogram("projections.catchup.latency_ms",
		metric.WithDescription("Convergent catch-up latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		discoveryPages: discoveryPages,
		workItems:      workItems,
		iterations:     iterations,
		eventsApplied:  eventsApplied,
		catchUps:       catchUps,
		catchUpLatency: catchUpLatency,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder on the given provider, the
// global one when nil. If initialization fails it returns a no-op recorder.
func NewMetricsRecorder(provider metric.MeterProvider) MetricsRecorder {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	m, err := newOtelMetrics(provider)
	if err != nil {
		log.
			Warn().
			Err(err).
			Msg("metrics initialization failed, using no-op recorder")
		return NoopMetrics{}
	}
	return m
}

func (m *otelMetrics) RecordDiscoveryPage(ctx context.Context, items int, hasMore bool) {
	attrs := metric.WithAttributes(attribute.Bool("has_more", hasMore))
	m.discoveryPages.Add(ctx, 1, attrs)
	m.workItems.Add(ctx, int64(items), attrs)
}

func (m *otelMetrics) RecordIteration(ctx context.Context, projection string, eventsApplied int64) {
	attrs := metric.WithAttributes(attribute.String("projection", projection))
	m.iterations.Add(ctx, 1, attrs)
	m.eventsApplied.Add(ctx, eventsApplied, attrs)
}

func (m *otelMetrics) RecordCatchUp(ctx context.Context, projection string, synced bool, iterations int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("projection", projection),
		attribute.Bool("synced", synced),
	)
	m.catchUps.Add(ctx, 1, attrs)
	m.catchUpLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordDiscoveryPage does nothing.
func (NoopMetrics) RecordDiscoveryPage(context.Context, int, bool) {}

// RecordIteration does nothing.
func (NoopMetrics) RecordIteration(context.Context, string, int64) {}

// RecordCatchUp does nothing.
func (NoopMetrics) RecordCatchUp(context.Context, string, bool, int, time.Duration) {}

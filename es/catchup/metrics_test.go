package catchup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/contextgg/go-projections/es/tests"
)

func setupMetricsTest(t *testing.T) (*sdkmetric.ManualReader, MetricsRecorder) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down meter provider: %v", err)
		}
	})
	return reader, NewMetricsRecorder(provider)
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sum(t *testing.T, m *metricdata.Metrics) int64 {
	require.NotNil(t, m)
	data, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range data.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	_, recorder := setupMetricsTest(t)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestDiscoveryMetrics(t *testing.T) {
	reader, recorder := setupMetricsTest(t)
	d := NewDiscovery(newProvider(3, 0), WithDiscoveryMetrics(recorder))

	for _, err := range d.Stream(context.Background(), []string{"project"}, 2) {
		require.NoError(t, err)
	}

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sum(t, findMetric(rm, "projections.discovery.pages")))
	assert.Equal(t, int64(3), sum(t, findMetric(rm, "projections.discovery.work_items")))
}

func TestCatchUpMetrics(t *testing.T) {
	reader, recorder := setupMetricsTest(t)
	f := newFixture(t, tests.NewOrderSummary(1))
	checker := NewChecker(f.projections, WithCheckerMetrics(recorder))

	result, err := checker.ConvergentCatchUp(context.Background(), "summary", 1, 2, Options{
		MaxIterations:         3,
		MaxEventsPerIteration: 100,
	})
	require.NoError(t, err)
	require.True(t, result.IsSynced)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sum(t, findMetric(rm, "projections.catchup.iterations")))
	assert.Equal(t, int64(5), sum(t, findMetric(rm, "projections.catchup.events_applied")))
	assert.Equal(t, int64(1), sum(t, findMetric(rm, "projections.catchup.runs")))
	assert.NotNil(t, findMetric(rm, "projections.catchup.latency_ms"))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	m.RecordDiscoveryPage(context.Background(), 1, false)
	m.RecordIteration(context.Background(), "x", 1)
	m.RecordCatchUp(context.Background(), "x", true, 1, 0)
}

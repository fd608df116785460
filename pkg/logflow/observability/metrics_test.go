package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func setupMetricsTest(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	original := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)

	t.Cleanup(func() {
		otel.SetMeterProvider(original)
		if err := provider.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown meter provider: %v", err)
		}
	})
	return reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
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

func sumValue(t *testing.T, rm *metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	require.NotNil(t, m, "metric %s not recorded", name)
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewMetricsRecorder(t *testing.T) {
	setupMetricsTest(t)

	recorder := NewMetricsRecorder()
	require.NotNil(t, recorder)
	_, isNoop := recorder.(NoopMetrics)
	assert.False(t, isNoop)
}

func TestRecordChannelOperations(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordPut(ctx, "mem1", nil)
	m.RecordPut(ctx, "mem1", nil)
	m.RecordPut(ctx, "mem1", errors.New("full"))
	m.RecordTake(ctx, "mem1", true, nil)
	m.RecordTake(ctx, "mem1", false, nil)
	m.RecordCommit(ctx, "mem1", nil)
	m.RecordCommit(ctx, "mem1", errors.New("capacity"))
	m.RecordChannelSize(ctx, "mem1", 2)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(3), sumValue(t, rm, "logflow.channel.put.attempts"))
	assert.Equal(t, int64(2), sumValue(t, rm, "logflow.channel.put.successes"))
	assert.Equal(t, int64(2), sumValue(t, rm, "logflow.channel.take.attempts"))
	assert.Equal(t, int64(1), sumValue(t, rm, "logflow.channel.take.successes"))
	assert.Equal(t, int64(1), sumValue(t, rm, "logflow.channel.commits"))
	assert.Equal(t, int64(1), sumValue(t, rm, "logflow.channel.commit.errors"))

	size := findMetric(rm, "logflow.channel.size")
	require.NotNil(t, size)
	gauge, ok := size.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(2), gauge.DataPoints[0].Value)
	ch, ok := gauge.DataPoints[0].Attributes.Value(attribute.Key("channel"))
	require.True(t, ok)
	assert.Equal(t, "mem1", ch.AsString())
}

func TestRecordDelivery(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	m.RecordDelivery(ctx, "a", true, 3, 2*time.Millisecond, nil)
	m.RecordDelivery(ctx, "c", false, 3, time.Millisecond, errors.New("down"))

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(2), sumValue(t, rm, "logflow.processor.deliveries"))
	assert.Equal(t, int64(3), sumValue(t, rm, "logflow.processor.events"))
	assert.NotNil(t, findMetric(rm, "logflow.processor.delivery.latency_ms"))
}

func TestRecordBackoff(t *testing.T) {
	reader := setupMetricsTest(t)
	m, err := newOtelMetrics()
	require.NoError(t, err)

	m.RecordBackoff(context.Background(), "sink-runner", 500*time.Millisecond)

	rm := collectMetrics(t, reader)
	assert.Equal(t, int64(1), sumValue(t, rm, "logflow.runner.backoffs"))
	assert.NotNil(t, findMetric(rm, "logflow.runner.backoff_ms"))
}

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordPut(ctx, "c", nil)
		m.RecordTake(ctx, "c", true, nil)
		m.RecordCommit(ctx, "c", nil)
		m.RecordChannelSize(ctx, "c", 1)
		m.RecordDelivery(ctx, "c", true, 1, time.Second, nil)
		m.RecordBackoff(ctx, "r", time.Second)
	})
}

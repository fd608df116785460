package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "logflow"

// MetricsRecorder records logflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordPut records a put attempt and whether it succeeded.
	RecordPut(ctx context.Context, channel string, err error)

	// RecordTake records a take attempt and whether it returned an event.
	RecordTake(ctx context.Context, channel string, found bool, err error)

	// RecordCommit records a commit attempt.
	RecordCommit(ctx context.Context, channel string, err error)

	// RecordChannelSize records the number of committed events in a channel.
	RecordChannelSize(ctx context.Context, channel string, size int64)

	// RecordDelivery records a processor delivery to one channel.
	RecordDelivery(ctx context.Context, channel string, required bool, events int, duration time.Duration, err error)

	// RecordBackoff records a runner backing off.
	RecordBackoff(ctx context.Context, runner string, sleep time.Duration)
}

type otelMetrics struct {
	putAttempts      metric.Int64Counter
	putSuccesses     metric.Int64Counter
	takeAttempts     metric.Int64Counter
	takeSuccesses    metric.Int64Counter
	commits          metric.Int64Counter
	commitErrors     metric.Int64Counter
	channelSize      metric.Int64Gauge
	deliveries       metric.Int64Counter
	deliveredEvents  metric.Int64Counter
	deliveryLatency  metric.Float64Histogram
	runnerBackoffs   metric.Int64Counter
	runnerBackoffDur metric.Float64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(meterName)
	m := &otelMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.putAttempts, "logflow.channel.put.attempts", "Number of put attempts"},
		{&m.putSuccesses, "logflow.channel.put.successes", "Number of events staged by put"},
		{&m.takeAttempts, "logflow.channel.take.attempts", "Number of take attempts"},
		{&m.takeSuccesses, "logflow.channel.take.successes", "Number of events returned by take"},
		{&m.commits, "logflow.channel.commits", "Number of committed transactions"},
		{&m.commitErrors, "logflow.channel.commit.errors", "Number of failed commits"},
		{&m.deliveries, "logflow.processor.deliveries", "Number of per-channel deliveries"},
		{&m.deliveredEvents, "logflow.processor.events", "Number of events delivered to channels"},
		{&m.runnerBackoffs, "logflow.runner.backoffs", "Number of runner backoffs"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.channelSize, err = meter.Int64Gauge("logflow.channel.size",
		metric.WithDescription("Number of committed events held by the channel"),
	)
	if err != nil {
		return nil, err
	}

	m.deliveryLatency, err = meter.Float64Histogram("logflow.processor.delivery.latency_ms",
		metric.WithDescription("Per-channel delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	m.runnerBackoffDur, err = meter.Float64Histogram("logflow.runner.backoff_ms",
		metric.WithDescription("Runner backoff sleep in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func channelAttrs(channel string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("channel", channel))
}

func (m *otelMetrics) RecordPut(ctx context.Context, channel string, err error) {
	attrs := channelAttrs(channel)
	m.putAttempts.Add(ctx, 1, attrs)
	if err == nil {
		m.putSuccesses.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordTake(ctx context.Context, channel string, found bool, err error) {
	attrs := channelAttrs(channel)
	m.takeAttempts.Add(ctx, 1, attrs)
	if err == nil && found {
		m.takeSuccesses.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordCommit(ctx context.Context, channel string, err error) {
	attrs := channelAttrs(channel)
	if err != nil {
		m.commitErrors.Add(ctx, 1, attrs)
		return
	}
	m.commits.Add(ctx, 1, attrs)
}

func (m *otelMetrics) RecordChannelSize(ctx context.Context, channel string, size int64) {
	m.channelSize.Record(ctx, size, channelAttrs(channel))
}

func (m *otelMetrics) RecordDelivery(ctx context.Context, channel string, required bool, events int, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.Bool("required", required),
		attribute.Bool("success", err == nil),
	)
	m.deliveries.Add(ctx, 1, attrs)
	if err == nil {
		m.deliveredEvents.Add(ctx, int64(events), attrs)
	}
	m.deliveryLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (m *otelMetrics) RecordBackoff(ctx context.Context, runner string, sleep time.Duration) {
	attrs := metric.WithAttributes(attribute.String("runner", runner))
	m.runnerBackoffs.Add(ctx, 1, attrs)
	m.runnerBackoffDur.Record(ctx, float64(sleep.Milliseconds()), attrs)
}

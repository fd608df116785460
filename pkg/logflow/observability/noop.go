package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordPut does nothing.
func (NoopMetrics) RecordPut(context.Context, string, error) {}

// RecordTake does nothing.
func (NoopMetrics) RecordTake(context.Context, string, bool, error) {}

// RecordCommit does nothing.
func (NoopMetrics) RecordCommit(context.Context, string, error) {}

// RecordChannelSize does nothing.
func (NoopMetrics) RecordChannelSize(context.Context, string, int64) {}

// RecordDelivery does nothing.
func (NoopMetrics) RecordDelivery(context.Context, string, bool, int, time.Duration, error) {}

// RecordBackoff does nothing.
func (NoopMetrics) RecordBackoff(context.Context, string, time.Duration) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartProcessSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartProcessSpan(ctx context.Context, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartDeliverySpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDeliverySpan(ctx context.Context, _ string, _ bool, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(trace.Span, error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(context.Context, string, ...attribute.KeyValue) {}

package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	originalTracer := tracer
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("logflow")

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		tracer = originalTracer
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutdown tracer provider: %v", err)
		}
	})
	return exporter
}

func TestDeliverySpanIsChildOfProcessSpan(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, process := sm.StartProcessSpan(context.Background(), 2)
	_, deliver := sm.StartDeliverySpan(ctx, "mem1", true, 2)
	sm.EndSpanWithError(deliver, nil)
	sm.EndSpanWithError(process, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	d, p := spans[0], spans[1]
	assert.Equal(t, "logflow.deliver.mem1", d.Name)
	assert.Equal(t, "logflow.process", p.Name)
	assert.Equal(t, p.SpanContext.SpanID(), d.Parent.SpanID())
	assert.Contains(t, d.Attributes, attribute.String("channel", "mem1"))
	assert.Contains(t, d.Attributes, attribute.Bool("required", true))
	assert.Contains(t, p.Attributes, attribute.Int("events", 2))
	assert.Equal(t, codes.Ok, d.Status.Code)
}

func TestEndSpanWithError(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	_, span := sm.StartDeliverySpan(context.Background(), "c", false, 1)
	sm.EndSpanWithError(span, errors.New("channel c full"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "channel c full", spans[0].Status.Description)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)

	assert.NotPanics(t, func() { EndSpanWithError(nil, errors.New("x")) })
}

func TestAddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, span := sm.StartProcessSpan(context.Background(), 1)
	sm.AddSpanEvent(ctx, "event dropped", attribute.Int("index", 0))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "event dropped", spans[0].Events[0].Name)

	assert.NotPanics(t, func() { AddSpanEvent(context.Background(), "no span") })
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	got, span := sm.StartProcessSpan(ctx, 1)
	assert.Equal(t, ctx, got)
	assert.False(t, span.IsRecording())

	got, span = sm.StartDeliverySpan(ctx, "c", true, 1)
	assert.Equal(t, ctx, got)
	sm.EndSpanWithError(span, errors.New("ignored"))
	sm.AddSpanEvent(ctx, "ignored")
}

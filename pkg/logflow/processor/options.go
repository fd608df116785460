package processor

import (
	"log/slog"

	"github.com/randalmurphal/logflow/pkg/logflow/interceptor"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// Option configures a ChannelProcessor.
type Option func(*ChannelProcessor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *ChannelProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *ChannelProcessor) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithSpanManager sets the span manager. Defaults to NoopSpanManager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(p *ChannelProcessor) {
		if s != nil {
			p.spans = s
		}
	}
}

// WithWorker makes every call that does not carry a worker in its context
// use the given worker ID. Without it each such call gets a fresh worker.
//
// A fixed worker shares one transaction per channel between calls, so it
// is only safe for a processor driven by a single goroutine.
func WithWorker(id string) Option {
	return func(p *ChannelProcessor) {
		p.worker = id
	}
}

// WithInterceptors prepends interceptors to the chain. Interceptors read
// by Configure run after them.
func WithInterceptors(ics ...interceptor.Interceptor) Option {
	return func(p *ChannelProcessor) {
		p.interceptors = append(p.interceptors, ics...)
	}
}

// Package interceptor provides the transform and filter stages applied to
// events before they are routed to channels.
//
// An interceptor may modify an event in place, replace it, or drop it by
// returning nil. Batch interception never returns more events than it was
// given and keeps the survivors in input order.
package interceptor

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Interceptor transforms or filters events.
type Interceptor interface {
	// Initialize is called once before the first event.
	Initialize(ctx context.Context) error

	// Intercept returns the event to pass on, or nil to drop it.
	Intercept(evt *event.Event) *event.Event

	// InterceptBatch returns the events to pass on, in input order.
	InterceptBatch(evts []*event.Event) []*event.Event

	// Close releases resources. It is called once after the last event.
	Close() error
}

// Builder creates an interceptor from configuration.
type Builder interface {
	Configure(cfg config.Config) error
	Build() (Interceptor, error)
}

// LoggerSetter is implemented by builders whose interceptors log. FromConfig
// hands them the caller's logger before Configure.
type LoggerSetter interface {
	SetLogger(logger *slog.Logger)
}

// BuilderFactory returns a new, unconfigured Builder.
type BuilderFactory func() Builder

// noLifecycle gives interceptors no-op Initialize and Close.
type noLifecycle struct{}

func (noLifecycle) Initialize(context.Context) error { return nil }
func (noLifecycle) Close() error                    { return nil }

// logging holds a builder's logger. The zero value logs to slog.Default().
type logging struct {
	logger *slog.Logger
}

// SetLogger implements LoggerSetter. A nil logger is ignored.
func (l *logging) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

func (l *logging) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

// eachEvent applies fn to every event and keeps the non-nil results.
func eachEvent(evts []*event.Event, fn func(*event.Event) *event.Event) []*event.Event {
	out := make([]*event.Event, 0, len(evts))
	for _, evt := range evts {
		if res := fn(evt); res != nil {
			out = append(out, res)
		}
	}
	return out
}

// Func adapts a per-event function to an Interceptor.
type Func func(*event.Event) *event.Event

// Initialize does nothing.
func (Func) Initialize(context.Context) error { return nil }

// Intercept calls f.
func (f Func) Intercept(evt *event.Event) *event.Event { return f(evt) }

// InterceptBatch calls f for each event and drops nil results.
func (f Func) InterceptBatch(evts []*event.Event) []*event.Event { return eachEvent(evts, f) }

// Close does nothing.
func (Func) Close() error { return nil }

package runner

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// Default sink backoff.
const (
	DefaultBackoffIncrement = time.Second
	DefaultMaxBackoff       = 5 * time.Second
)

type settings struct {
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	increment time.Duration
	max       time.Duration
}

func newSettings(opts []Option) settings {
	s := settings{
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		increment: DefaultBackoffIncrement,
		max:       DefaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures a runner.
type Option func(*settings)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *settings) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithBackoff sets a sink runner's backoff increment and cap. Pollable
// sources supply their own.
func WithBackoff(increment, max time.Duration) Option {
	return func(s *settings) {
		if increment > 0 {
			s.increment = increment
		}
		if max > 0 {
			s.max = max
		}
	}
}

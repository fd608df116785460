package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// poller calls process until its context is cancelled.
type poller struct {
	name      string
	process   func(ctx context.Context) (Status, error)
	increment time.Duration
	max       time.Duration
	// sleepOnDeliveryError makes delivery errors wait like other errors.
	sleepOnDeliveryError bool

	counters *CounterGroup
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
}

func (p *poller) run(ctx context.Context) {
	p.logger.Debug("polling runner starting", slog.String("runner", p.name))
	defer func() {
		p.logger.Debug("polling runner exiting",
			slog.String("runner", p.name),
			slog.String("counters", p.counters.String()))
	}()

	for ctx.Err() == nil {
		p.counters.Increment(CounterPolls)
		status, err := p.process(ctx)

		switch {
		case err != nil && ctx.Err() != nil:
			p.counters.Increment(CounterInterruptions)
			return
		case err != nil:
			var de *lferrors.DeliveryError
			delivery := errors.As(err, &de)
			if delivery {
				p.counters.Increment(CounterDeliveryErrors)
			} else {
				p.counters.Increment(CounterErrors)
			}
			observability.LogRunnerError(p.logger, p.name, delivery, err)
			if (!delivery || p.sleepOnDeliveryError) && !p.sleep(ctx, p.max) {
				return
			}
		case status == Backoff:
			p.counters.Increment(CounterBackoffs)
			n := p.counters.Increment(CounterConsecutiveBackoffs)
			d := lferrors.LinearBackoff(n, p.increment, p.max)
			observability.LogRunnerBackoff(p.logger, p.name, n, d)
			p.metrics.RecordBackoff(ctx, p.name, d)
			if !p.sleep(ctx, d) {
				return
			}
		default:
			p.counters.Set(CounterConsecutiveBackoffs, 0)
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func (p *poller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		p.counters.Increment(CounterInterruptions)
		return false
	}
}

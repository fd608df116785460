package runner

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/lifecycle"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// loop owns the lifecycle state and polling goroutine shared by the
// runners.
type loop struct {
	mu     sync.Mutex
	state  lifecycle.State
	worker string
	cancel context.CancelFunc
	group  *errgroup.Group
}

func (l *loop) LifecycleState() lifecycle.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Worker returns the worker ID used by the polling goroutine, or "" if the
// runner has not been started.
func (l *loop) Worker() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.worker
}

func (l *loop) checkStartable(op string) error {
	if l.state == lifecycle.Start {
		return lferrors.NewStateError(op, l.state.String(), lferrors.ErrIllegalState)
	}
	return nil
}

// spawn starts fn on a goroutine bound to a fresh worker. The goroutine
// outlives ctx's deadline and ends when halt is called.
func (l *loop) spawn(ctx context.Context, fn func(ctx context.Context)) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.worker = channel.NewWorkerID()
	runCtx = channel.WithWorker(runCtx, l.worker)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		fn(gctx)
		return nil
	})
	l.cancel = cancel
	l.group = g
}

// halt cancels the goroutine and waits for it or for ctx.
func (l *loop) halt(ctx context.Context) error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	done := make(chan error, 1)
	g := l.group
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		l.cancel, l.group = nil, nil
		return err
	case <-ctx.Done():
		return fmt.Errorf("waiting for runner to exit: %w", ctx.Err())
	}
}

// PollableSourceRunner polls a PollableSource on its own goroutine.
type PollableSourceRunner struct {
	loop
	source   PollableSource
	counters *CounterGroup
	settings settings
}

var _ lifecycle.Aware = (*PollableSourceRunner)(nil)

// NewPollableSourceRunner creates a runner for source.
func NewPollableSourceRunner(source PollableSource, opts ...Option) *PollableSourceRunner {
	s := newSettings(opts)
	s.logger = observability.EnrichLogger(s.logger, "source-runner", source.Name())
	return &PollableSourceRunner{
		source:   source,
		counters: NewCounterGroup("runner." + source.Name()),
		settings: s,
	}
}

// Counters returns the runner's counters.
func (r *PollableSourceRunner) Counters() *CounterGroup { return r.counters }

// Source returns the source.
func (r *PollableSourceRunner) Source() PollableSource { return r.source }

// Start initializes the source's processor, starts the source and begins
// polling.
func (r *PollableSourceRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkStartable("start"); err != nil {
		return err
	}
	if err := startSource(ctx, r.source); err != nil {
		r.state = lifecycle.Error
		return err
	}
	p := &poller{
		name:      r.source.Name(),
		process:   r.source.Process,
		increment: r.source.BackoffIncrement(),
		max:       r.source.MaxBackoff(),
		counters:  r.counters,
		logger:    r.settings.logger,
		metrics:   r.settings.metrics,
	}
	r.spawn(ctx, p.run)
	r.state = lifecycle.Start
	observability.LogComponentStarted(r.settings.logger, "source-runner", r.source.Name())
	return nil
}

// Stop stops polling, then stops the source and closes its processor.
func (r *PollableSourceRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.halt(ctx); err != nil {
		r.state = lifecycle.Error
		return err
	}
	if err := stopSource(ctx, r.source); err != nil {
		r.state = lifecycle.Error
		return err
	}
	r.state = lifecycle.Stop
	observability.LogComponentStopped(r.settings.logger, "source-runner", r.source.Name())
	return nil
}

// String implements fmt.Stringer.
func (r *PollableSourceRunner) String() string {
	return fmt.Sprintf("PollableSourceRunner{source:%s %s}", r.source.Name(), r.counters)
}

// EventDrivenSourceRunner starts and stops an EventDrivenSource.
type EventDrivenSourceRunner struct {
	loop
	source   EventDrivenSource
	settings settings
}

var _ lifecycle.Aware = (*EventDrivenSourceRunner)(nil)

// NewEventDrivenSourceRunner creates a runner for source.
func NewEventDrivenSourceRunner(source EventDrivenSource, opts ...Option) *EventDrivenSourceRunner {
	s := newSettings(opts)
	s.logger = observability.EnrichLogger(s.logger, "source-runner", source.Name())
	return &EventDrivenSourceRunner{source: source, settings: s}
}

// Start initializes the source's processor and starts the source.
func (r *EventDrivenSourceRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkStartable("start"); err != nil {
		return err
	}
	if err := startSource(ctx, r.source); err != nil {
		r.state = lifecycle.Error
		return err
	}
	r.state = lifecycle.Start
	observability.LogComponentStarted(r.settings.logger, "source-runner", r.source.Name())
	return nil
}

// Stop stops the source and closes its processor.
func (r *EventDrivenSourceRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := stopSource(ctx, r.source); err != nil {
		r.state = lifecycle.Error
		return err
	}
	r.state = lifecycle.Stop
	observability.LogComponentStopped(r.settings.logger, "source-runner", r.source.Name())
	return nil
}

// String implements fmt.Stringer.
func (r *EventDrivenSourceRunner) String() string {
	return fmt.Sprintf("EventDrivenSourceRunner{source:%s}", r.source.Name())
}

// SinkRunner polls a SinkProcessor on its own goroutine.
type SinkRunner struct {
	loop
	processor SinkProcessor
	counters  *CounterGroup
	settings  settings
}

var _ lifecycle.Aware = (*SinkRunner)(nil)

// NewSinkRunner creates a runner for a single sink behind a
// DefaultSinkProcessor. Use WithBackoff to change the default 1s increment
// and 5s cap.
func NewSinkRunner(sink Sink, opts ...Option) *SinkRunner {
	return NewSinkProcessorRunner(NewDefaultSinkProcessor(sink), opts...)
}

// NewSinkProcessorRunner creates a runner that polls proc.
func NewSinkProcessorRunner(proc SinkProcessor, opts ...Option) *SinkRunner {
	s := newSettings(opts)
	s.logger = observability.EnrichLogger(s.logger, "sink-runner", proc.Name())
	return &SinkRunner{
		processor: proc,
		counters:  NewCounterGroup("runner." + proc.Name()),
		settings:  s,
	}
}

// Counters returns the runner's counters.
func (r *SinkRunner) Counters() *CounterGroup { return r.counters }

// Processor returns the sink processor the runner polls.
func (r *SinkRunner) Processor() SinkProcessor { return r.processor }

// Start starts the processor's sinks and begins polling.
func (r *SinkRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkStartable("start"); err != nil {
		return err
	}
	if err := r.processor.Start(ctx); err != nil {
		r.state = lifecycle.Error
		return err
	}
	p := &poller{
		name:                 r.processor.Name(),
		process:              r.processor.Process,
		increment:            r.settings.increment,
		max:                  r.settings.max,
		sleepOnDeliveryError: true,
		counters:             r.counters,
		logger:               r.settings.logger,
		metrics:              r.settings.metrics,
	}
	r.spawn(ctx, p.run)
	r.state = lifecycle.Start
	observability.LogComponentStarted(r.settings.logger, "sink-runner", r.processor.Name())
	return nil
}

// Stop stops polling and then stops the processor's sinks.
func (r *SinkRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.halt(ctx); err != nil {
		r.state = lifecycle.Error
		return err
	}
	if err := r.processor.Stop(ctx); err != nil {
		r.state = lifecycle.Error
		return err
	}
	r.state = lifecycle.Stop
	observability.LogComponentStopped(r.settings.logger, "sink-runner", r.processor.Name())
	return nil
}

// String implements fmt.Stringer.
func (r *SinkRunner) String() string {
	return fmt.Sprintf("SinkRunner{processor:%s %s}", r.processor.Name(), r.counters)
}

func startSource(ctx context.Context, src Source) error {
	if p := src.Processor(); p != nil {
		if err := p.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize processor for source %s: %w", src.Name(), err)
		}
	}
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("start source %s: %w", src.Name(), err)
	}
	return nil
}

func stopSource(ctx context.Context, src Source) error {
	err := src.Stop(ctx)
	if p := src.Processor(); p != nil {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("stop source %s: %w", src.Name(), err)
	}
	return nil
}

package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/lifecycle"
)

// Sink processor kinds accepted by NewSinkProcessor.
const (
	SinkProcessorDefault  = "default"
	SinkProcessorFailover = "failover"
)

// Failover configuration keys. A sink's priority is read from
// "priority.<sink name>"; maxpenalty is in milliseconds.
const (
	KeyPriority   = "priority"
	KeyMaxPenalty = "maxpenalty"
)

// DefaultMaxPenalty caps how long a failed sink sits out.
const DefaultMaxPenalty = 30 * time.Second

// failurePenalty is doubled for every consecutive failure of a sink.
const failurePenalty = time.Second

// ErrNoLiveSinks is returned, wrapped in a DeliveryError, when every sink
// of a failover processor has failed.
var ErrNoLiveSinks = errors.New("all sinks failed to process, nothing left to fail over to")

// SinkProcessor chooses which sink a SinkRunner polls and how failures of
// a sink are handled.
type SinkProcessor interface {
	lifecycle.Aware
	Name() string

	// Process polls one or more sinks. It returns a *errors.DeliveryError
	// when the processor could not deliver according to its policy.
	Process(ctx context.Context) (Status, error)

	// Sinks returns the sinks the processor owns.
	Sinks() []Sink
}

// NewSinkProcessor builds a processor of the given kind over sinks. An
// empty kind means "default", which requires exactly one sink.
func NewSinkProcessor(kind string, sinks []Sink, cfg config.Config, opts ...Option) (SinkProcessor, error) {
	if len(sinks) == 0 {
		return nil, lferrors.NewConfigError("sink processor", "sinks", "no sinks given")
	}
	switch strings.ToLower(kind) {
	case "", SinkProcessorDefault:
		if len(sinks) != 1 {
			return nil, lferrors.NewConfigError("sink processor", "sinks",
				"default processor takes one sink, got %d", len(sinks))
		}
		return NewDefaultSinkProcessor(sinks[0]), nil
	case SinkProcessorFailover:
		prio := cfg.Sub(KeyPriority)
		priorities := make(map[string]int, len(sinks))
		for _, s := range sinks {
			priorities[s.Name()] = prio.Int(s.Name(), 0)
		}
		penalty := time.Duration(cfg.Int64(KeyMaxPenalty, DefaultMaxPenalty.Milliseconds())) * time.Millisecond
		return NewFailoverSinkProcessor(sinks, priorities, penalty, opts...)
	default:
		return nil, lferrors.NewConfigError("sink processor", "type", "unknown sink processor %q", kind)
	}
}

// DefaultSinkProcessor passes every call through to a single sink.
type DefaultSinkProcessor struct {
	sink Sink
}

var _ SinkProcessor = (*DefaultSinkProcessor)(nil)

// NewDefaultSinkProcessor wraps sink.
func NewDefaultSinkProcessor(sink Sink) *DefaultSinkProcessor {
	return &DefaultSinkProcessor{sink: sink}
}

func (p *DefaultSinkProcessor) Name() string                    { return p.sink.Name() }
func (p *DefaultSinkProcessor) Sinks() []Sink                   { return []Sink{p.sink} }
func (p *DefaultSinkProcessor) Start(ctx context.Context) error { return p.sink.Start(ctx) }
func (p *DefaultSinkProcessor) Stop(ctx context.Context) error  { return p.sink.Stop(ctx) }
func (p *DefaultSinkProcessor) LifecycleState() lifecycle.State { return p.sink.LifecycleState() }

func (p *DefaultSinkProcessor) Process(ctx context.Context) (Status, error) {
	return p.sink.Process(ctx)
}

type prioritizedSink struct {
	sink     Sink
	priority int
	failures int
	refresh  time.Time
}

// FailoverSinkProcessor polls the live sink with the highest priority.
// A sink whose Process fails is moved aside for a penalty that doubles
// with each consecutive failure, capped at the max penalty, and the next
// live sink takes over. Once the penalty has passed the sink is tried
// again before the active one and rejoins the live set if it succeeds.
type FailoverSinkProcessor struct {
	mu         sync.Mutex
	name       string
	sinks      []Sink
	live       []*prioritizedSink
	failed     []*prioritizedSink
	maxPenalty time.Duration
	state      lifecycle.State
	logger     *slog.Logger

	now func() time.Time
}

var _ SinkProcessor = (*FailoverSinkProcessor)(nil)

// NewFailoverSinkProcessor creates a failover processor. Higher priority
// wins; sinks missing from priorities get 0. Two sinks may not share a
// priority. A maxPenalty of zero or less uses DefaultMaxPenalty.
func NewFailoverSinkProcessor(sinks []Sink, priorities map[string]int, maxPenalty time.Duration, opts ...Option) (*FailoverSinkProcessor, error) {
	if len(sinks) == 0 {
		return nil, lferrors.NewConfigError("failover", "sinks", "no sinks given")
	}
	if maxPenalty <= 0 {
		maxPenalty = DefaultMaxPenalty
	}
	seen := make(map[int]string, len(sinks))
	live := make([]*prioritizedSink, 0, len(sinks))
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		prio := priorities[s.Name()]
		if other, dup := seen[prio]; dup {
			return nil, lferrors.NewConfigError("failover", KeyPriority+"."+s.Name(),
				"priority %d already used by sink %s", prio, other)
		}
		seen[prio] = s.Name()
		live = append(live, &prioritizedSink{sink: s, priority: prio})
		names = append(names, s.Name())
	}
	sortLive(live)
	return &FailoverSinkProcessor{
		name:       "failover[" + strings.Join(names, ",") + "]",
		sinks:      slices.Clone(sinks),
		live:       live,
		maxPenalty: maxPenalty,
		logger:     newSettings(opts).logger,
		now:        time.Now,
	}, nil
}

func sortLive(live []*prioritizedSink) {
	slices.SortFunc(live, func(a, b *prioritizedSink) int { return b.priority - a.priority })
}

func (p *FailoverSinkProcessor) Name() string  { return p.name }
func (p *FailoverSinkProcessor) Sinks() []Sink { return slices.Clone(p.sinks) }

func (p *FailoverSinkProcessor) LifecycleState() lifecycle.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start starts every sink. If one fails the sinks already started are
// stopped.
func (p *FailoverSinkProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range p.sinks {
		if err := s.Start(ctx); err != nil {
			for _, started := range p.sinks[:i] {
				_ = started.Stop(ctx)
			}
			p.state = lifecycle.Error
			return fmt.Errorf("start sink %s: %w", s.Name(), err)
		}
	}
	p.state = lifecycle.Start
	return nil
}

// Stop stops every sink and returns the first error.
func (p *FailoverSinkProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var first error
	for _, s := range p.sinks {
		if err := s.Stop(ctx); err != nil && first == nil {
			first = fmt.Errorf("stop sink %s: %w", s.Name(), err)
		}
	}
	if first != nil {
		p.state = lifecycle.Error
		return first
	}
	p.state = lifecycle.Stop
	return nil
}

// Active returns the name of the sink currently polled, or "" if every
// sink is serving a penalty.
func (p *FailoverSinkProcessor) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.live) == 0 {
		return ""
	}
	return p.live[0].sink.Name()
}

// Process retries failed sinks whose penalty has passed, then polls the
// active sink, failing over until one succeeds.
func (p *FailoverSinkProcessor) Process(ctx context.Context) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		cur := p.nextRecovered()
		if cur == nil {
			break
		}
		status, err := cur.sink.Process(ctx)
		if err == nil {
			cur.failures = 0
			p.live = append(p.live, cur)
			sortLive(p.live)
			p.logger.Info("sink recovered", slog.String("sink", cur.sink.Name()))
			return status, nil
		}
		if ctx.Err() != nil {
			p.failed = append(p.failed, cur)
			return status, err
		}
		p.penalize(cur, err)
	}

	for len(p.live) > 0 {
		active := p.live[0]
		status, err := active.sink.Process(ctx)
		if err == nil {
			return status, nil
		}
		if ctx.Err() != nil {
			return status, err
		}
		p.live = p.live[1:]
		p.penalize(active, err)
	}
	return Backoff, &lferrors.DeliveryError{Component: p.name, Err: ErrNoLiveSinks}
}

// nextRecovered removes and returns the failed sink with the earliest
// refresh time if that time has passed.
func (p *FailoverSinkProcessor) nextRecovered() *prioritizedSink {
	if len(p.failed) == 0 {
		return nil
	}
	idx := 0
	for i, s := range p.failed {
		if s.refresh.Before(p.failed[idx].refresh) {
			idx = i
		}
	}
	if p.failed[idx].refresh.After(p.now()) {
		return nil
	}
	s := p.failed[idx]
	p.failed = slices.Delete(p.failed, idx, idx+1)
	return s
}

func (p *FailoverSinkProcessor) penalize(s *prioritizedSink, err error) {
	s.failures++
	penalty := p.maxPenalty
	if s.failures < 32 {
		penalty = min(p.maxPenalty, failurePenalty<<s.failures)
	}
	s.refresh = p.now().Add(penalty)
	p.failed = append(p.failed, s)
	p.logger.Warn("sink failed, failing over",
		slog.String("sink", s.sink.Name()),
		slog.Int("consecutive_failures", s.failures),
		slog.Duration("penalty", penalty),
		slog.String("error", err.Error()),
	)
}

package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
	"github.com/randalmurphal/logflow/pkg/logflow/interceptor"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
	"github.com/randalmurphal/logflow/pkg/logflow/selector"
)

// Configuration keys.
const (
	KeyInterceptors = "interceptors"
	KeySelector     = "selector"
)

// ChannelProcessor puts events on the channels chosen by a selector.
// It is safe for concurrent use once initialized.
type ChannelProcessor struct {
	selector     selector.Selector
	interceptors []interceptor.Interceptor
	chain        *interceptor.Chain

	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	worker  string

	mu          sync.Mutex
	initialized bool
	closed      bool
}

// New creates a processor that routes with sel.
func New(sel selector.Selector, opts ...Option) *ChannelProcessor {
	p := &ChannelProcessor{
		selector: sel,
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = observability.EnrichLogger(p.logger, "processor", sel.Name())
	p.chain = interceptor.NewChain(p.interceptors...)
	return p
}

// Build creates a processor over channels from cfg. The selector is read
// from "selector.type" and the rest of "selector.*"; interceptors are read
// as by Configure.
func Build(channels []channel.Channel, cfg config.Config, opts ...Option) (*ChannelProcessor, error) {
	selCfg := cfg.Sub(KeySelector)
	sel, err := selector.New(selCfg.String(selector.KeyType, ""), channels, selCfg)
	if err != nil {
		return nil, err
	}
	p := New(sel, opts...)
	if err := p.Configure(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// Selector returns the processor's selector.
func (p *ChannelProcessor) Selector() selector.Selector { return p.selector }

// Configure reads "interceptors", a list of interceptor names, and builds
// each from "interceptors.<name>.*". It must be called before Initialize.
func (p *ChannelProcessor) Configure(cfg config.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return lferrors.NewConfigError("processor", KeyInterceptors, "cannot configure an initialized processor")
	}

	names := cfg.Fields(KeyInterceptors)
	all := cfg.Sub(KeyInterceptors)
	ics := make([]interceptor.Interceptor, 0, len(p.interceptors)+len(names))
	ics = append(ics, p.interceptors...)
	for _, name := range names {
		ic, err := interceptor.FromConfig(name, all.Sub(name), p.logger)
		if err != nil {
			return err
		}
		ics = append(ics, ic)
	}
	p.chain = interceptor.NewChain(ics...)
	return nil
}

// Initialize initializes the interceptor chain. Only the first call has
// any effect; later calls return nil.
func (p *ChannelProcessor) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if p.closed {
		return lferrors.NewStateError("initialize", "closed", lferrors.ErrIllegalState)
	}
	if err := p.chain.Initialize(ctx); err != nil {
		return err
	}
	p.initialized = true
	observability.LogComponentStarted(p.logger, "processor", p.selector.Name())
	return nil
}

// Close closes the interceptor chain. It is idempotent.
func (p *ChannelProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if !p.initialized {
		return nil
	}
	err := p.chain.Close()
	observability.LogComponentStopped(p.logger, "processor", p.selector.Name())
	return err
}

// checkReady fails unless Initialize succeeded and Close was not called.
func (p *ChannelProcessor) checkReady(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.closed:
		return lferrors.NewStateError(op, "closed", lferrors.ErrIllegalState)
	case !p.initialized:
		return lferrors.NewStateError(op, "not initialized",
			fmt.Errorf("%w: call Initialize first", lferrors.ErrIllegalState))
	}
	return nil
}

// withWorker makes sure every transaction in one call belongs to one
// worker.
func (p *ChannelProcessor) withWorker(ctx context.Context) context.Context {
	if channel.HasWorker(ctx) {
		return ctx
	}
	if p.worker != "" {
		return channel.WithWorker(ctx, p.worker)
	}
	return channel.WithWorker(ctx, channel.NewWorkerID())
}

// ProcessEvent intercepts evt and puts it on its required and optional
// channels. A dropped event is not an error. The processor must be
// initialized.
func (p *ChannelProcessor) ProcessEvent(ctx context.Context, evt *event.Event) (err error) {
	if evt == nil {
		return lferrors.NewStateError("process", "", lferrors.ErrNilEvent)
	}
	if err := p.checkReady("process"); err != nil {
		return err
	}
	ctx, span := p.spans.StartProcessSpan(p.withWorker(ctx), 1)
	defer func() { p.spans.EndSpanWithError(span, err) }()

	evt = p.chain.Intercept(evt)
	if evt == nil {
		p.spans.AddSpanEvent(ctx, "event dropped")
		return nil
	}

	var required, optional routes
	for _, ch := range p.selector.RequiredChannels(evt) {
		required.add(ch, evt)
	}
	for _, ch := range p.selector.OptionalChannels(evt) {
		optional.add(ch, evt)
	}
	return p.dispatch(ctx, required, optional)
}

// ProcessEventBatch intercepts evts and puts the survivors on their
// channels, one transaction per channel. Each channel receives its events
// in input order; channels are visited in the order they were first
// selected.
func (p *ChannelProcessor) ProcessEventBatch(ctx context.Context, evts []*event.Event) (err error) {
	for i, evt := range evts {
		if evt == nil {
			return lferrors.NewStateError("process", "", fmt.Errorf("%w at index %d", lferrors.ErrNilEvent, i))
		}
	}
	if err := p.checkReady("process"); err != nil {
		return err
	}
	ctx, span := p.spans.StartProcessSpan(p.withWorker(ctx), len(evts))
	defer func() { p.spans.EndSpanWithError(span, err) }()

	evts, err = p.chain.InterceptBatch(evts)
	if err != nil {
		return err
	}
	if len(evts) == 0 {
		return nil
	}

	var required, optional routes
	for _, evt := range evts {
		for _, ch := range p.selector.RequiredChannels(evt) {
			required.add(ch, evt)
		}
		for _, ch := range p.selector.OptionalChannels(evt) {
			optional.add(ch, evt)
		}
	}
	return p.dispatch(ctx, required, optional)
}

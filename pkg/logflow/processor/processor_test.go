package processor_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
	"github.com/randalmurphal/logflow/pkg/logflow/interceptor"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
	"github.com/randalmurphal/logflow/pkg/logflow/processor"
	"github.com/randalmurphal/logflow/pkg/logflow/selector"
)

// fakeChannel is a channel whose commits can be made to fail or whose
// puts can panic. Committed events are kept in order.
type fakeChannel struct {
	*channel.BasicChannel

	commitErr error
	putPanic  bool

	transactions atomic.Int32
	rollbacks    atomic.Int32

	mu        sync.Mutex
	committed []*event.Event
}

type fakeHooks struct {
	channel.NoopBeginClose
	ch      *fakeChannel
	pending []*event.Event
}

func (h *fakeHooks) Put(_ context.Context, evt *event.Event) error {
	if h.ch.putPanic {
		panic("put exploded")
	}
	h.pending = append(h.pending, evt)
	return nil
}

func (h *fakeHooks) Take(context.Context) (*event.Event, error) { return nil, nil }

func (h *fakeHooks) Commit(context.Context) error {
	if h.ch.commitErr != nil {
		return h.ch.commitErr
	}
	h.ch.mu.Lock()
	defer h.ch.mu.Unlock()
	h.ch.committed = append(h.ch.committed, h.pending...)
	h.pending = nil
	return nil
}

func (h *fakeHooks) Rollback(context.Context) error {
	h.ch.rollbacks.Add(1)
	h.pending = nil
	return nil
}

func newFakeChannel(name string) *fakeChannel {
	fc := &fakeChannel{}
	fc.BasicChannel = channel.NewBasicChannel(name, func(context.Context) channel.TransactionHooks {
		fc.transactions.Add(1)
		return &fakeHooks{ch: fc}
	})
	return fc
}

func (fc *fakeChannel) Committed() []string {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return bodies(fc.committed)
}

func newMemoryChannel(t *testing.T, name string, cfg map[string]any) *channel.MemoryChannel {
	t.Helper()
	if cfg == nil {
		cfg = map[string]any{}
	}
	cfg[channel.KeyKeepAlive] = 0
	ch := channel.NewMemoryChannel(name)
	require.NoError(t, ch.Configure(config.New(cfg)))
	return ch
}

// drain takes every event currently in ch.
func drain(t *testing.T, ch channel.Channel) []string {
	t.Helper()
	ctx := channel.WithWorker(context.Background(), "drain")
	tx, err := ch.GetTransaction(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Begin(ctx))
	var out []*event.Event
	for {
		evt, err := ch.Take(ctx)
		require.NoError(t, err)
		if evt == nil {
			break
		}
		out = append(out, evt)
	}
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Close(ctx))
	return bodies(out)
}

func bodies(evts []*event.Event) []string {
	out := make([]string, 0, len(evts))
	for _, e := range evts {
		out = append(out, string(e.Body))
	}
	return out
}

func newProcessor(t *testing.T, sel selector.Selector, opts ...processor.Option) *processor.ChannelProcessor {
	t.Helper()
	p := processor.New(sel, opts...)
	require.NoError(t, p.Initialize(context.Background()))
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func replicating(t *testing.T, optional string, chans ...channel.Channel) selector.Selector {
	t.Helper()
	cfg := map[string]any{}
	if optional != "" {
		cfg[selector.KeyOptional] = optional
	}
	sel, err := selector.New("replicating", chans, config.New(cfg))
	require.NoError(t, err)
	return sel
}

func TestProcessEvent_Replicating(t *testing.T) {
	a := newMemoryChannel(t, "A", nil)
	b := newMemoryChannel(t, "B", nil)
	p := newProcessor(t, replicating(t, "", a, b))

	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("e1")))
	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("e2")))

	assert.Equal(t, []string{"e1", "e2"}, drain(t, a))
	assert.Equal(t, []string{"e1", "e2"}, drain(t, b))
	assert.Zero(t, a.ActiveTransactions())
	assert.Zero(t, b.ActiveTransactions())
}

func TestProcessEvent_PartialFailure(t *testing.T) {
	a := newMemoryChannel(t, "A", nil)
	b := newFakeChannel("B")
	b.commitErr = errors.New("disk on fire")
	c := newMemoryChannel(t, "C", nil)
	p := newProcessor(t, replicating(t, "C", a, b, c))

	err := p.ProcessEvent(context.Background(), event.NewWithString("e"))
	require.Error(t, err)

	var chanErr *lferrors.ChannelError
	require.ErrorAs(t, err, &chanErr)
	assert.Equal(t, "B", chanErr.Channel)

	assert.Equal(t, []string{"e"}, drain(t, a), "committed channel stays committed")
	assert.Empty(t, b.Committed())
	assert.Equal(t, int32(1), b.rollbacks.Load())
	assert.Zero(t, b.ActiveTransactions())
	assert.Equal(t, []string{"e"}, drain(t, c), "optional channel is attempted")
}

func TestProcessEvent_RequiredFailureStopsRequiredDelivery(t *testing.T) {
	b := newFakeChannel("B")
	b.commitErr = errors.New("nope")
	a := newMemoryChannel(t, "A", nil)
	p := newProcessor(t, replicating(t, "", b, a))

	require.Error(t, p.ProcessEvent(context.Background(), event.NewWithString("e")))
	assert.Empty(t, drain(t, a))
}

func TestProcessEvent_OptionalFailureIsSwallowed(t *testing.T) {
	a := newMemoryChannel(t, "A", nil)
	opt := newFakeChannel("O")
	opt.commitErr = errors.New("flaky")
	p := newProcessor(t, replicating(t, "O", a, opt))

	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("e")))
	assert.Equal(t, []string{"e"}, drain(t, a))
	assert.Zero(t, opt.ActiveTransactions())
}

func TestProcessEvent_FatalOptionalFailureEscalates(t *testing.T) {
	a := newMemoryChannel(t, "A", nil)
	opt := newFakeChannel("O")
	opt.commitErr = lferrors.NewStateError("commit", "", lferrors.ErrIllegalState)
	p := newProcessor(t, replicating(t, "O", a, opt))

	err := p.ProcessEvent(context.Background(), event.NewWithString("e"))
	require.Error(t, err)
	assert.True(t, lferrors.IsFatal(err))
	assert.Equal(t, []string{"e"}, drain(t, a))
}

func TestProcessEvent_ChannelFullIsNotWrapped(t *testing.T) {
	a := newMemoryChannel(t, "A", map[string]any{
		channel.KeyCapacity:            1,
		channel.KeyTransactionCapacity: 1,
	})
	p := newProcessor(t, replicating(t, "", a))

	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("first")))
	err := p.ProcessEvent(context.Background(), event.NewWithString("second"))

	var full *lferrors.ChannelFullError
	require.ErrorAs(t, err, &full)
	assert.Equal(t, "A", full.Channel)
	assert.True(t, lferrors.IsRetryable(err))
	assert.Equal(t, []string{"first"}, drain(t, a))
}

func TestProcessEvent_PanicClosesTransaction(t *testing.T) {
	a := newFakeChannel("A")
	a.putPanic = true
	p := newProcessor(t, replicating(t, "", a))

	assert.PanicsWithValue(t, "put exploded", func() {
		_ = p.ProcessEvent(context.Background(), event.NewWithString("e"))
	})
	assert.Equal(t, int32(1), a.rollbacks.Load())
	assert.Zero(t, a.ActiveTransactions())
}

func TestProcessEvent_Dropped(t *testing.T) {
	a := newFakeChannel("A")
	drop := interceptor.Func(func(*event.Event) *event.Event { return nil })
	p := newProcessor(t, replicating(t, "", a), processor.WithInterceptors(drop))

	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("e")))
	assert.Zero(t, a.transactions.Load())
}

func TestProcessEvent_NilEvent(t *testing.T) {
	p := newProcessor(t, replicating(t, "", newFakeChannel("A")))
	err := p.ProcessEvent(context.Background(), nil)
	assert.ErrorIs(t, err, lferrors.ErrNilEvent)
}

func TestProcessEventBatch_GroupsByChannel(t *testing.T) {
	m1 := newFakeChannel("m1")
	f2 := newFakeChannel("f2")
	opt := newFakeChannel("o3")
	sel, err := selector.New("multiplexing", []channel.Channel{m1, f2, opt}, config.New(map[string]any{
		"header":      "state",
		"mapping.CA":  "m1",
		"mapping.AZ":  "f2",
		"mapping.NY":  "m1 f2",
		"optional.CA": "o3",
		"default":     "m1",
	}))
	require.NoError(t, err)
	p := newProcessor(t, sel)

	state := func(body, st string) *event.Event {
		if st == "" {
			return event.NewWithString(body)
		}
		return event.NewWithString(body, event.WithHeader("state", st))
	}
	err = p.ProcessEventBatch(context.Background(), []*event.Event{
		state("1", "AZ"),
		state("2", "CA"),
		state("3", "NY"),
		state("4", "TX"),
		state("5", ""),
		state("6", "CA"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2", "3", "4", "5", "6"}, m1.Committed())
	assert.Equal(t, []string{"1", "3"}, f2.Committed())
	assert.Equal(t, []string{"2", "6"}, opt.Committed())
	assert.Equal(t, int32(1), m1.transactions.Load())
	assert.Equal(t, int32(1), f2.transactions.Load())
	assert.Equal(t, int32(1), opt.transactions.Load())
}

func TestProcessEventBatch_InterceptorsRunFirst(t *testing.T) {
	a := newFakeChannel("A")
	filter, err := interceptor.FromConfig("errors", config.New(map[string]any{
		"type":  interceptor.TypeRegexFilter,
		"regex": "^ERROR",
	}), nil)
	require.NoError(t, err)
	p := newProcessor(t, replicating(t, "", a), processor.WithInterceptors(filter))

	require.NoError(t, p.ProcessEventBatch(context.Background(), []*event.Event{
		event.NewWithString("INFO a"),
		event.NewWithString("ERROR b"),
		event.NewWithString("ERROR c"),
	}))
	assert.Equal(t, []string{"ERROR b", "ERROR c"}, a.Committed())
}

func TestProcessEventBatch_AllDropped(t *testing.T) {
	a := newFakeChannel("A")
	drop := interceptor.Func(func(*event.Event) *event.Event { return nil })
	p := newProcessor(t, replicating(t, "", a), processor.WithInterceptors(drop))

	require.NoError(t, p.ProcessEventBatch(context.Background(), []*event.Event{event.NewWithString("x")}))
	assert.Zero(t, a.transactions.Load())
}

func TestProcessEventBatch_PartialFailure(t *testing.T) {
	a := newFakeChannel("A")
	b := newFakeChannel("B")
	b.commitErr = errors.New("broken")
	c := newFakeChannel("C")
	c.commitErr = errors.New("also broken")
	p := newProcessor(t, replicating(t, "C", a, b, c))

	err := p.ProcessEventBatch(context.Background(), []*event.Event{
		event.NewWithString("1"),
		event.NewWithString("2"),
	})
	var chanErr *lferrors.ChannelError
	require.ErrorAs(t, err, &chanErr)
	assert.Equal(t, "B", chanErr.Channel)
	assert.Equal(t, []string{"1", "2"}, a.Committed())
	assert.Equal(t, int32(1), c.transactions.Load())
	assert.Zero(t, b.ActiveTransactions())
	assert.Zero(t, c.ActiveTransactions())
}

func TestProcessor_ConcurrentCallsUseSeparateWorkers(t *testing.T) {
	a := newMemoryChannel(t, "A", map[string]any{channel.KeyCapacity: 1000})
	p := newProcessor(t, replicating(t, "", a))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("x")))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, a.Len())
	assert.Zero(t, a.ActiveTransactions())
}

func TestProcessor_FixedWorker(t *testing.T) {
	a := newMemoryChannel(t, "A", nil)
	p := newProcessor(t, replicating(t, "", a), processor.WithWorker("source-1"))

	// An open transaction owned by another worker does not interfere.
	other := channel.WithWorker(context.Background(), "other")
	tx, err := a.GetTransaction(other)
	require.NoError(t, err)
	require.NoError(t, tx.Begin(other))

	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("e")))
	require.NoError(t, tx.Rollback(other))
	require.NoError(t, tx.Close(other))
	assert.Equal(t, []string{"e"}, drain(t, a))
}

type lifecycleInterceptor struct {
	interceptor.Func
	inits  atomic.Int32
	closes atomic.Int32
}

func (l *lifecycleInterceptor) Initialize(context.Context) error {
	l.inits.Add(1)
	return nil
}

func (l *lifecycleInterceptor) Close() error {
	l.closes.Add(1)
	return nil
}

func TestProcessor_Lifecycle(t *testing.T) {
	ic := &lifecycleInterceptor{Func: func(e *event.Event) *event.Event { return e }}
	a := newFakeChannel("A")
	p := processor.New(replicating(t, "", a), processor.WithInterceptors(ic))

	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.Initialize(ctx))
	assert.Equal(t, int32(1), ic.inits.Load())

	err := p.Configure(config.New(nil))
	var cfgErr *lferrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, int32(1), ic.closes.Load())

	err = p.ProcessEvent(ctx, event.NewWithString("late"))
	assert.ErrorIs(t, err, lferrors.ErrIllegalState)
	assert.Error(t, p.Initialize(ctx))
}

func TestProcessor_ProcessBeforeInitialize(t *testing.T) {
	var calls atomic.Int32
	ic := interceptor.Func(func(e *event.Event) *event.Event {
		calls.Add(1)
		return e
	})
	a := newFakeChannel("A")
	p := processor.New(replicating(t, "", a), processor.WithInterceptors(ic))
	ctx := context.Background()

	err := p.ProcessEvent(ctx, event.NewWithString("early"))
	var stateErr *lferrors.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "not initialized", stateErr.State)
	assert.True(t, lferrors.IsFatal(err))

	err = p.ProcessEventBatch(ctx, []*event.Event{event.NewWithString("early")})
	assert.ErrorIs(t, err, lferrors.ErrIllegalState)

	assert.Zero(t, calls.Load(), "interceptors do not run before Initialize")
	assert.Zero(t, a.transactions.Load())

	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.ProcessEvent(ctx, event.NewWithString("ready")))
	assert.Equal(t, int32(1), calls.Load())
}

func TestBuild(t *testing.T) {
	m1 := newFakeChannel("m1")
	f2 := newFakeChannel("f2")
	cfg, err := config.FromProperties([]byte(`
selector.type = multiplexing
selector.header = state
selector.mapping.CA = m1
selector.mapping.AZ = f2
selector.default = f2
interceptors = stamp env
interceptors.stamp.type = timestamp
interceptors.env.type = static
interceptors.env.key = env
interceptors.env.value = prod
`))
	require.NoError(t, err)

	p, err := processor.Build([]channel.Channel{m1, f2}, cfg)
	require.NoError(t, err)
	require.NoError(t, p.Initialize(context.Background()))
	defer p.Close()
	assert.Equal(t, "multiplexing", p.Selector().Name())

	require.NoError(t, p.ProcessEvent(context.Background(),
		event.NewWithString("e", event.WithHeader("state", "CA"))))

	m1.mu.Lock()
	defer m1.mu.Unlock()
	require.Len(t, m1.committed, 1)
	evt := m1.committed[0]
	env, _ := evt.Header("env")
	assert.Equal(t, "prod", env)
	_, ok := evt.Header("timestamp")
	assert.True(t, ok)
	assert.Empty(t, f2.Committed())
}

func TestBuild_ConfigErrors(t *testing.T) {
	chans := []channel.Channel{newFakeChannel("A")}
	tests := []struct {
		name string
		cfg  map[string]any
	}{
		{"unknown selector", map[string]any{"selector.type": "roundrobin"}},
		{"unknown channel", map[string]any{"selector.optional": "Z"}},
		{"interceptor without type", map[string]any{"interceptors": "i1"}},
		{"unknown interceptor", map[string]any{"interceptors": "i1", "interceptors.i1.type": "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.Build(chans, config.New(tt.cfg))
			var cfgErr *lferrors.ConfigError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

type recordingMetrics struct {
	observability.NoopMetrics
	mu         sync.Mutex
	deliveries []string
}

func (m *recordingMetrics) RecordDelivery(_ context.Context, ch string, required bool, events int, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kind := "optional"
	if required {
		kind = "required"
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.deliveries = append(m.deliveries, ch+"/"+kind+"/"+status)
}

func TestProcessor_RecordsDeliveries(t *testing.T) {
	a := newFakeChannel("A")
	b := newFakeChannel("B")
	b.commitErr = errors.New("x")
	m := &recordingMetrics{}
	p := newProcessor(t, replicating(t, "B", a, b), processor.WithMetrics(m))

	require.NoError(t, p.ProcessEvent(context.Background(), event.NewWithString("e")))
	assert.Equal(t, []string{"A/required/ok", "B/optional/failed"}, m.deliveries)
}

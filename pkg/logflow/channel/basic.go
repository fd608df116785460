package channel

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
	"github.com/randalmurphal/logflow/pkg/logflow/lifecycle"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// Channel buffers events between producers and consumers. All puts and
// takes happen inside a transaction obtained from GetTransaction by the
// same worker.
//
//	tx, err := ch.GetTransaction(ctx)
//	if err != nil { ... }
//	if err := tx.Begin(ctx); err != nil { ... }
//	if err := ch.Put(ctx, evt); err != nil { tx.Rollback(ctx) } else { err = tx.Commit(ctx) }
//	tx.Close(ctx)
type Channel interface {
	lifecycle.Aware

	// Name returns the configured channel name.
	Name() string

	// Configure applies configuration. It must be called before the
	// first transaction.
	Configure(cfg config.Config) error

	// GetTransaction returns the calling worker's transaction, creating
	// a new one if the worker has none or its previous one is closed.
	GetTransaction(ctx context.Context) (*Transaction, error)

	// Put stages evt in the calling worker's open transaction.
	Put(ctx context.Context, evt *event.Event) error

	// Take reserves the next event in the calling worker's open
	// transaction. It returns (nil, nil) when no event is available.
	Take(ctx context.Context) (*event.Event, error)
}

// HooksFactory creates the hooks for a new transaction.
type HooksFactory func(ctx context.Context) TransactionHooks

// Option configures a BasicChannel.
type Option func(*BasicChannel)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *BasicChannel) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *BasicChannel) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithInitializer sets a hook run exactly once, before the first
// transaction is created. If it fails, the next GetTransaction retries.
func WithInitializer(fn func(ctx context.Context) error) Option {
	return func(c *BasicChannel) {
		c.initialize = fn
	}
}

// BasicChannel gives a channel per-worker transactions. Concrete channels
// embed it and supply a HooksFactory.
type BasicChannel struct {
	name       string
	factory    HooksFactory
	initialize func(ctx context.Context) error
	logger     *slog.Logger
	metrics    observability.MetricsRecorder

	initMu      sync.Mutex
	initialized atomic.Bool

	defaultWorkerOnce sync.Once

	mu  sync.Mutex
	txs map[string]*Transaction

	state atomic.Int32
}

var _ Channel = (*BasicChannel)(nil)

// NewBasicChannel creates a channel whose transactions use hooks from
// factory.
func NewBasicChannel(name string, factory HooksFactory, opts ...Option) *BasicChannel {
	c := &BasicChannel{
		name:    name,
		factory: factory,
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		txs:     make(map[string]*Transaction),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = observability.EnrichLogger(c.logger, "channel", name)
	return c
}

// Name returns the channel name.
func (c *BasicChannel) Name() string { return c.name }

// Configure accepts any configuration.
func (c *BasicChannel) Configure(config.Config) error { return nil }

// Start marks the channel started.
func (c *BasicChannel) Start(context.Context) error {
	c.state.Store(int32(lifecycle.Start))
	observability.LogComponentStarted(c.logger, "channel", c.name)
	return nil
}

// Stop marks the channel stopped.
func (c *BasicChannel) Stop(context.Context) error {
	c.state.Store(int32(lifecycle.Stop))
	observability.LogComponentStopped(c.logger, "channel", c.name)
	return nil
}

// LifecycleState returns the lifecycle state.
func (c *BasicChannel) LifecycleState() lifecycle.State {
	return lifecycle.State(c.state.Load())
}

// Initialized reports whether the one-time initializer has run.
func (c *BasicChannel) Initialized() bool {
	return c.initialized.Load()
}

func (c *BasicChannel) ensureInitialized(ctx context.Context) error {
	if c.initialized.Load() {
		return nil
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.initialized.Load() {
		return nil
	}
	if c.initialize != nil {
		if err := c.initialize(ctx); err != nil {
			return err
		}
	}
	c.initialized.Store(true)
	return nil
}

// GetTransaction returns the calling worker's transaction, creating one
// if the worker has none or its last one was closed.
func (c *BasicChannel) GetTransaction(ctx context.Context) (*Transaction, error) {
	if err := c.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	if !HasWorker(ctx) {
		c.defaultWorkerOnce.Do(func() { observability.LogDefaultWorker(c.logger, c.name) })
	}
	worker := WorkerFrom(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	tx := c.txs[worker]
	if tx == nil || tx.State() == TxClosed {
		tx = NewTransaction(ctx, c.name, c.factory(ctx))
		tx.onClose = c.release
		c.txs[worker] = tx
	}
	return tx, nil
}

// release drops a closed transaction from the worker table so that short
// lived workers do not accumulate entries.
func (c *BasicChannel) release(tx *Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txs[tx.worker] == tx {
		delete(c.txs, tx.worker)
	}
}

func (c *BasicChannel) current(ctx context.Context) *Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs[WorkerFrom(ctx)]
}

// Put stages evt in the calling worker's transaction.
func (c *BasicChannel) Put(ctx context.Context, evt *event.Event) error {
	tx := c.current(ctx)
	if tx == nil {
		return lferrors.NewStateError("put", "", lferrors.ErrNoTransaction)
	}
	err := tx.put(ctx, evt)
	c.metrics.RecordPut(ctx, c.name, err)
	return err
}

// Take reserves the next event in the calling worker's transaction.
func (c *BasicChannel) Take(ctx context.Context) (*event.Event, error) {
	tx := c.current(ctx)
	if tx == nil {
		return nil, lferrors.NewStateError("take", "", lferrors.ErrNoTransaction)
	}
	evt, err := tx.take(ctx)
	c.metrics.RecordTake(ctx, c.name, evt != nil, err)
	return evt, err
}

// ActiveTransactions returns the number of workers holding an unclosed
// transaction.
func (c *BasicChannel) ActiveTransactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.txs)
}

// String implements fmt.Stringer.
func (c *BasicChannel) String() string {
	return "channel{name: " + c.name + "}"
}

package channel

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pbnjay/memory"
	"golang.org/x/sync/semaphore"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// Memory channel configuration keys.
const (
	KeyCapacity                     = "capacity"
	KeyTransactionCapacity          = "transactionCapacity"
	KeyByteCapacity                 = "byteCapacity"
	KeyByteCapacityBufferPercentage = "byteCapacityBufferPercentage"
	KeyKeepAlive                    = "keep-alive"
)

// Memory channel defaults.
const (
	DefaultCapacity                     int64 = 100
	DefaultTransactionCapacity          int64 = 100
	DefaultByteCapacityBufferPercentage       = 20
	DefaultKeepAlive                          = 3 * time.Second

	// byteSlotSize is the granularity of byte accounting.
	byteSlotSize = 100
)

// MemoryChannel is a bounded in-memory channel.
//
// It enforces two budgets. Capacity bounds the number of events held by
// the channel, counting events reserved by open takes. The byte budget
// bounds the body bytes of committed and staged events, measured in
// 100 byte slots, after reserving byteCapacityBufferPercentage for header
// overhead.
//
// Puts are staged privately and become visible at commit. Takes remove
// events from the queue immediately but only release their budget at
// commit; a rollback pushes them back onto the head in order.
//
// Configuration must happen before the first transaction. To change
// limits, construct a new channel.
type MemoryChannel struct {
	*BasicChannel

	capacity   int64
	txCapacity int64
	byteSlots  int64
	keepAlive  time.Duration

	queueMu sync.Mutex
	queue   deque

	// queueRemaining counts free event slots. queueStored counts
	// committed events available to take. bytesRemaining counts free
	// byte slots.
	queueRemaining *semaphore.Weighted
	queueStored    *semaphore.Weighted
	bytesRemaining *semaphore.Weighted

	occupied atomic.Int64
}

var _ Channel = (*MemoryChannel)(nil)

// NewMemoryChannel creates a memory channel with default limits.
func NewMemoryChannel(name string, opts ...Option) *MemoryChannel {
	m := &MemoryChannel{
		capacity:   DefaultCapacity,
		txCapacity: DefaultTransactionCapacity,
		byteSlots:  byteSlots(defaultByteCapacity(), DefaultByteCapacityBufferPercentage),
		keepAlive:  DefaultKeepAlive,
	}
	opts = append(opts, WithInitializer(m.initialize))
	m.BasicChannel = NewBasicChannel(name, m.newHooks, opts...)
	return m
}

// totalMemory reports the physical memory of the host, or 0 if unknown.
var totalMemory = memory.TotalMemory

// defaultByteCapacity is 80% of the memory available to the process: the
// runtime memory limit when one is set (GOMEMLIMIT), otherwise the
// host's physical memory. It is 0, meaning unbounded, only when neither
// is known.
func defaultByteCapacity() int64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		total := totalMemory()
		if total == 0 {
			return 0
		}
		if total > math.MaxInt64 {
			total = math.MaxInt64
		}
		limit = int64(total)
	}
	return limit / 10 * 8
}

// byteSlots converts a byte capacity into slots. A budget smaller than one
// slot means unbounded.
func byteSlots(byteCapacity int64, bufferPct int) int64 {
	usable := int64(100 - bufferPct)
	var slots int64
	if byteCapacity <= math.MaxInt64/100 {
		slots = byteCapacity * usable / 100 / byteSlotSize
	} else {
		slots = byteCapacity / 100 * usable / byteSlotSize
	}
	if slots < 1 {
		return math.MaxInt64
	}
	return slots
}

// eventSlots is the number of byte slots an event occupies, at least one.
func eventSlots(evt *event.Event) int64 {
	n := int64(len(evt.Body))
	if n == 0 {
		return 1
	}
	return (n + byteSlotSize - 1) / byteSlotSize
}

// Configure reads capacity, transactionCapacity, byteCapacity,
// byteCapacityBufferPercentage and keep-alive.
func (m *MemoryChannel) Configure(cfg config.Config) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized.Load() {
		return lferrors.NewConfigError("channel "+m.name, "",
			"cannot reconfigure after the first transaction")
	}

	capacity := cfg.Int64(KeyCapacity, DefaultCapacity)
	if capacity <= 0 {
		return lferrors.NewConfigError("channel "+m.name, KeyCapacity, "must be positive, got %d", capacity)
	}
	txCapacity := cfg.Int64(KeyTransactionCapacity, DefaultTransactionCapacity)
	if txCapacity <= 0 {
		return lferrors.NewConfigError("channel "+m.name, KeyTransactionCapacity, "must be positive, got %d", txCapacity)
	}
	if txCapacity > capacity {
		return lferrors.NewConfigError("channel "+m.name, KeyTransactionCapacity,
			"transaction capacity %d cannot be higher than capacity %d", txCapacity, capacity)
	}
	pct := cfg.Int(KeyByteCapacityBufferPercentage, DefaultByteCapacityBufferPercentage)
	if pct < 0 || pct > 100 {
		return lferrors.NewConfigError("channel "+m.name, KeyByteCapacityBufferPercentage,
			"must be between 0 and 100, got %d", pct)
	}
	byteCapacity := cfg.Int64(KeyByteCapacity, defaultByteCapacity())
	if byteCapacity < 0 {
		return lferrors.NewConfigError("channel "+m.name, KeyByteCapacity, "must not be negative, got %d", byteCapacity)
	}
	keepAlive := cfg.Duration(KeyKeepAlive, DefaultKeepAlive)
	if keepAlive < 0 {
		return lferrors.NewConfigError("channel "+m.name, KeyKeepAlive, "must not be negative, got %s", keepAlive)
	}

	m.capacity = capacity
	m.txCapacity = txCapacity
	m.byteSlots = byteSlots(byteCapacity, pct)
	m.keepAlive = keepAlive
	return nil
}

func (m *MemoryChannel) initialize(context.Context) error {
	m.queueRemaining = semaphore.NewWeighted(m.capacity)
	m.queueStored = semaphore.NewWeighted(m.capacity)
	if !m.queueStored.TryAcquire(m.capacity) {
		return fmt.Errorf("channel %s: initialize stored counter", m.name)
	}
	m.bytesRemaining = semaphore.NewWeighted(m.byteSlots)
	observability.LogChannelConfigured(m.logger, m.name, m.capacity, m.txCapacity, m.byteSlots)
	return nil
}

// Start records the initial channel size and marks the channel started.
func (m *MemoryChannel) Start(ctx context.Context) error {
	m.metrics.RecordChannelSize(ctx, m.name, int64(m.Len()))
	return m.BasicChannel.Start(ctx)
}

// Stop records the final channel size and marks the channel stopped.
func (m *MemoryChannel) Stop(ctx context.Context) error {
	m.metrics.RecordChannelSize(ctx, m.name, int64(m.Len()))
	return m.BasicChannel.Stop(ctx)
}

// Capacity returns the maximum number of events the channel holds.
func (m *MemoryChannel) Capacity() int64 { return m.capacity }

// TransactionCapacity returns the maximum puts or takes per transaction.
func (m *MemoryChannel) TransactionCapacity() int64 { return m.txCapacity }

// ByteCapacitySlots returns the byte budget in 100 byte slots.
func (m *MemoryChannel) ByteCapacitySlots() int64 { return m.byteSlots }

// KeepAlive returns how long put, take and commit wait for budget.
func (m *MemoryChannel) KeepAlive() time.Duration { return m.keepAlive }

// Len returns the number of committed events available to take.
func (m *MemoryChannel) Len() int {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return m.queue.len()
}

// RemainingCapacity returns the number of free event slots. Events
// reserved by uncommitted takes still occupy a slot.
func (m *MemoryChannel) RemainingCapacity() int64 {
	return m.capacity - m.occupied.Load()
}

// Snapshot returns the committed events in take order.
func (m *MemoryChannel) Snapshot() []*event.Event {
	m.queueMu.Lock()
	defer m.queueMu.Unlock()
	return m.queue.snapshot()
}

// acquire takes n units from sem, waiting up to the keep-alive. It returns
// false with a nil error on timeout and ctx.Err() if ctx ends first.
func (m *MemoryChannel) acquire(ctx context.Context, sem *semaphore.Weighted, n int64) (bool, error) {
	if sem.TryAcquire(n) {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.keepAlive <= 0 {
		return false, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, m.keepAlive)
	defer cancel()
	if err := sem.Acquire(waitCtx, n); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		return false, nil
	}
	return true, nil
}

func (m *MemoryChannel) byteCapacityBytes() int64 {
	if m.byteSlots > math.MaxInt64/byteSlotSize {
		return math.MaxInt64
	}
	return m.byteSlots * byteSlotSize
}

func (m *MemoryChannel) newHooks(context.Context) TransactionHooks {
	return &memoryTx{ch: m}
}

// memoryTx holds the private put and take lists of one transaction.
type memoryTx struct {
	NoopBeginClose
	ch        *MemoryChannel
	puts      []queued
	takes     []queued
	putSlots  int64
	takeSlots int64
}

func (tx *memoryTx) Put(ctx context.Context, evt *event.Event) error {
	m := tx.ch
	if int64(len(tx.puts)) >= m.txCapacity {
		return &lferrors.ChannelFullError{Channel: m.name, Reason: "transaction capacity", Capacity: m.txCapacity}
	}
	slots := eventSlots(evt)
	if slots > m.byteSlots {
		return &lferrors.ChannelFullError{Channel: m.name, Reason: "byte capacity", Capacity: m.byteCapacityBytes()}
	}
	ok, err := m.acquire(ctx, m.bytesRemaining, slots)
	if err != nil {
		return err
	}
	if !ok {
		return &lferrors.ChannelFullError{Channel: m.name, Reason: "byte capacity", Capacity: m.byteCapacityBytes()}
	}
	tx.puts = append(tx.puts, queued{evt: evt, slots: slots})
	tx.putSlots += slots
	return nil
}

func (tx *memoryTx) Take(ctx context.Context) (*event.Event, error) {
	m := tx.ch
	if int64(len(tx.takes)) >= m.txCapacity {
		return nil, &lferrors.ChannelError{
			Channel: m.name,
			Op:      "take",
			Message: fmt.Sprintf("take list of capacity %d full, consider committing more frequently, "+
				"increasing capacity, or increasing thread count", m.txCapacity),
		}
	}
	ok, err := m.acquire(ctx, m.queueStored, 1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	m.queueMu.Lock()
	q, found := m.queue.popFront()
	m.queueMu.Unlock()
	if !found {
		m.queueStored.Release(1)
		return nil, lferrors.NewStateError("take", "", fmt.Errorf(
			"%w: queue empty although an event was counted as stored", lferrors.ErrIllegalState))
	}
	tx.takes = append(tx.takes, q)
	tx.takeSlots += q.slots
	return q.evt, nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	m := tx.ch
	delta := int64(len(tx.takes) - len(tx.puts))
	if delta < 0 {
		ok, err := m.acquire(ctx, m.queueRemaining, -delta)
		if err == nil && !ok {
			err = &lferrors.ChannelFullError{Channel: m.name, Reason: "capacity", Capacity: m.capacity}
		}
		if err != nil {
			m.metrics.RecordCommit(ctx, m.name, err)
			return err
		}
	}

	puts := int64(len(tx.puts))
	m.queueMu.Lock()
	for _, q := range tx.puts {
		m.queue.pushBack(q)
	}
	size := m.queue.len()
	m.queueMu.Unlock()
	m.occupied.Add(-delta)

	if tx.takeSlots > 0 {
		m.bytesRemaining.Release(tx.takeSlots)
	}
	if puts > 0 {
		m.queueStored.Release(puts)
	}
	if delta > 0 {
		m.queueRemaining.Release(delta)
	}
	tx.reset()

	m.metrics.RecordCommit(ctx, m.name, nil)
	m.metrics.RecordChannelSize(ctx, m.name, int64(size))
	return nil
}

func (tx *memoryTx) Rollback(ctx context.Context) error {
	m := tx.ch
	takes := int64(len(tx.takes))
	m.queueMu.Lock()
	for i := len(tx.takes) - 1; i >= 0; i-- {
		m.queue.pushFront(tx.takes[i])
	}
	size := m.queue.len()
	m.queueMu.Unlock()

	if takes > 0 {
		m.queueStored.Release(takes)
	}
	if tx.putSlots > 0 {
		m.bytesRemaining.Release(tx.putSlots)
	}
	tx.reset()

	m.metrics.RecordChannelSize(ctx, m.name, int64(size))
	return nil
}

func (tx *memoryTx) reset() {
	tx.puts = nil
	tx.takes = nil
	tx.putSlots = 0
	tx.takeSlots = 0
}

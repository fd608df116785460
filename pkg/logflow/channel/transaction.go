package channel

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// TxState is the state of a Transaction.
//
//	NEW --Begin--> OPEN --Commit|Rollback--> COMPLETED --Close--> CLOSED
//
// Close is also legal directly from NEW.
type TxState int32

const (
	TxNew TxState = iota
	TxOpen
	TxCompleted
	TxClosed
)

// String returns the state name.
func (s TxState) String() string {
	switch s {
	case TxNew:
		return "NEW"
	case TxOpen:
		return "OPEN"
	case TxCompleted:
		return "COMPLETED"
	case TxClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// TransactionHooks is implemented by concrete channels to do the actual
// work of a transaction. Transaction calls each hook only after the worker
// and state checks pass, so hooks never see an out-of-order call.
//
// Hooks may block. A blocking hook must honour ctx cancellation by
// returning ctx.Err().
type TransactionHooks interface {
	Begin(ctx context.Context) error
	Put(ctx context.Context, evt *event.Event) error
	Take(ctx context.Context) (*event.Event, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close()
}

// NoopBeginClose can be embedded by hooks that need no work on Begin or
// Close.
type NoopBeginClose struct{}

// Begin does nothing.
func (NoopBeginClose) Begin(context.Context) error { return nil }

// Close does nothing.
func (NoopBeginClose) Close() {}

// Transaction enforces the transaction state machine and worker affinity
// around a set of TransactionHooks.
//
// A Transaction belongs to the worker that obtained it from
// Channel.GetTransaction. Every call from any other worker fails with a
// StateError wrapping ErrWrongWorker and leaves the transaction untouched.
type Transaction struct {
	id      string
	worker  string
	channel string
	hooks   TransactionHooks
	state   atomic.Int32
	onClose func(*Transaction)
}

// NewTransaction creates a transaction in state NEW owned by the worker in
// ctx. Channels built on BasicChannel never need to call this directly.
func NewTransaction(ctx context.Context, channelName string, hooks TransactionHooks) *Transaction {
	return &Transaction{
		id:      uuid.NewString(),
		worker:  WorkerFrom(ctx),
		channel: channelName,
		hooks:   hooks,
	}
}

// ID returns a unique identifier for log correlation.
func (t *Transaction) ID() string { return t.id }

// Worker returns the ID of the owning worker.
func (t *Transaction) Worker() string { return t.worker }

// Channel returns the name of the channel the transaction belongs to.
func (t *Transaction) Channel() string { return t.channel }

// State returns the current state.
func (t *Transaction) State() TxState { return TxState(t.state.Load()) }

func (t *Transaction) setState(s TxState) { t.state.Store(int32(s)) }

func (t *Transaction) checkWorker(ctx context.Context, op string) error {
	if w := WorkerFrom(ctx); w != t.worker {
		return lferrors.NewStateError(op, "",
			fmt.Errorf("%w: owner %q, caller %q", lferrors.ErrWrongWorker, t.worker, w))
	}
	return nil
}

func (t *Transaction) checkOpen(ctx context.Context, op string) error {
	if err := t.checkWorker(ctx, op); err != nil {
		return err
	}
	if s := t.State(); s != TxOpen {
		return lferrors.NewStateError(op, s.String(), nil)
	}
	return nil
}

// Begin opens the transaction. Nested begins are rejected: Begin on a
// transaction that is not NEW is a StateError.
func (t *Transaction) Begin(ctx context.Context) error {
	if err := t.checkWorker(ctx, "begin"); err != nil {
		return err
	}
	if s := t.State(); s != TxNew {
		return lferrors.NewStateError("begin", s.String(), nil)
	}
	if err := t.hooks.Begin(ctx); err != nil {
		return t.wrap("begin", err)
	}
	t.setState(TxOpen)
	return nil
}

func (t *Transaction) put(ctx context.Context, evt *event.Event) error {
	if err := t.checkOpen(ctx, "put"); err != nil {
		return err
	}
	if evt == nil {
		return lferrors.NewStateError("put", "", lferrors.ErrNilEvent)
	}
	return t.wrap("put", t.hooks.Put(ctx, evt))
}

// take returns (nil, nil) when no event is available or ctx is cancelled
// while waiting.
func (t *Transaction) take(ctx context.Context) (*event.Event, error) {
	if err := t.checkOpen(ctx, "take"); err != nil {
		return nil, err
	}
	evt, err := t.hooks.Take(ctx)
	if err != nil {
		if isInterrupt(err) {
			return nil, nil
		}
		return nil, t.wrap("take", err)
	}
	return evt, nil
}

// Commit makes the transaction's puts visible and its takes permanent.
// If the commit hook fails the transaction stays OPEN and the caller must
// roll back.
func (t *Transaction) Commit(ctx context.Context) error {
	if err := t.checkOpen(ctx, "commit"); err != nil {
		return err
	}
	if err := t.hooks.Commit(ctx); err != nil {
		return t.wrap("commit", err)
	}
	t.setState(TxCompleted)
	return nil
}

// Rollback discards the transaction's puts and returns its takes to the
// channel. The transaction is COMPLETED even if the hook fails.
func (t *Transaction) Rollback(ctx context.Context) error {
	if err := t.checkOpen(ctx, "rollback"); err != nil {
		return err
	}
	t.setState(TxCompleted)
	return t.wrap("rollback", t.hooks.Rollback(ctx))
}

// Close releases the transaction. It is legal from NEW or COMPLETED; an
// OPEN transaction must be committed or rolled back first.
func (t *Transaction) Close(ctx context.Context) error {
	if err := t.checkWorker(ctx, "close"); err != nil {
		return err
	}
	if s := t.State(); s != TxNew && s != TxCompleted {
		return lferrors.NewStateError("close", s.String(),
			fmt.Errorf("%w: commit or rollback first", lferrors.ErrIllegalState))
	}
	t.setState(TxClosed)
	t.hooks.Close()
	if t.onClose != nil {
		t.onClose(t)
	}
	return nil
}

// String implements fmt.Stringer.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction[%s channel=%s worker=%q state=%s]", t.id, t.channel, t.worker, t.State())
}

func (t *Transaction) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		full     *lferrors.ChannelFullError
		chanErr  *lferrors.ChannelError
		stateErr *lferrors.StateError
	)
	switch {
	case errors.As(err, &full), errors.As(err, &chanErr), errors.As(err, &stateErr):
		return err
	case isInterrupt(err):
		return &lferrors.ChannelError{Channel: t.channel, Op: op, Message: "interrupted", Err: err}
	default:
		return &lferrors.ChannelError{Channel: t.channel, Op: op, Err: err}
	}
}

func isInterrupt(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

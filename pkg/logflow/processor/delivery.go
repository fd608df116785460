package processor

import (
	"context"
	"errors"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
)

// route is the sub-batch bound for one channel.
type route struct {
	ch     channel.Channel
	events []*event.Event
}

// routes groups events by channel name, keeping first-seen channel order.
type routes struct {
	list  []*route
	index map[string]*route
}

func (rs *routes) add(ch channel.Channel, evt *event.Event) {
	if rs.index == nil {
		rs.index = make(map[string]*route)
	}
	r, ok := rs.index[ch.Name()]
	if !ok {
		r = &route{ch: ch}
		rs.index[ch.Name()] = r
		rs.list = append(rs.list, r)
	}
	r.events = append(r.events, evt)
}

// dispatch delivers to required channels until one fails, then to every
// optional channel.
func (p *ChannelProcessor) dispatch(ctx context.Context, required, optional routes) error {
	var reqErr error
	for _, r := range required.list {
		if err := p.deliver(ctx, r, true); err != nil {
			reqErr = requiredFailure(r.ch.Name(), err)
			observability.LogRequiredFailure(p.logger, r.ch.Name(), len(r.events), reqErr)
			break
		}
	}

	for _, r := range optional.list {
		err := p.deliver(ctx, r, false)
		if err == nil {
			continue
		}
		observability.LogOptionalFailure(p.logger, r.ch.Name(), len(r.events), err)
		if lferrors.IsFatal(err) {
			if reqErr != nil {
				return errors.Join(reqErr, err)
			}
			return err
		}
	}
	return reqErr
}

// requiredFailure reports err as a channel failure.
func requiredFailure(name string, err error) error {
	var (
		chanErr *lferrors.ChannelError
		full    *lferrors.ChannelFullError
	)
	if errors.As(err, &chanErr) || errors.As(err, &full) {
		return err
	}
	return &lferrors.ChannelError{
		Channel: name,
		Op:      "deliver",
		Message: "unable to put events on required channel",
		Err:     err,
	}
}

// deliver puts r's events on r's channel in one transaction. The
// transaction is closed on every path, including a panic, which is
// re-raised once the transaction is rolled back.
func (p *ChannelProcessor) deliver(ctx context.Context, r *route, required bool) (err error) {
	name := r.ch.Name()
	elapsed := observability.TimedOperation()
	ctx, span := p.spans.StartDeliverySpan(ctx, name, required, len(r.events))
	defer func() {
		p.metrics.RecordDelivery(ctx, name, required, len(r.events), elapsed(), err)
		p.spans.EndSpanWithError(span, err)
	}()

	tx, err := r.ch.GetTransaction(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rec := recover(); rec != nil {
			p.finish(ctx, tx, nil)
			panic(rec)
		}
	}()

	err = p.put(ctx, tx, r)
	return p.finish(ctx, tx, err)
}

func (p *ChannelProcessor) put(ctx context.Context, tx *channel.Transaction, r *route) error {
	if err := tx.Begin(ctx); err != nil {
		return err
	}
	for _, evt := range r.events {
		if err := r.ch.Put(ctx, evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// finish rolls tx back if it is still open and closes it. It returns
// cause, or the close error when cause is nil.
func (p *ChannelProcessor) finish(ctx context.Context, tx *channel.Transaction, cause error) error {
	if tx.State() == channel.TxOpen {
		rbErr := tx.Rollback(ctx)
		reason := cause
		if rbErr != nil {
			reason = rbErr
		}
		observability.LogTxRollback(p.logger, tx.Channel(), tx.ID(), reason)
	}
	if err := tx.Close(ctx); err != nil && cause == nil {
		return err
	}
	return cause
}

/*
Package channel implements transactional channels.

A channel buffers events between producers and consumers. Every put and
take happens inside a Transaction bound to one worker, identified by the
worker ID carried in the context:

	ctx = channel.WithWorker(ctx, channel.NewWorkerID())
	tx, err := ch.GetTransaction(ctx)
	if err != nil {
	    return err
	}
	defer tx.Close(ctx)

	if err := tx.Begin(ctx); err != nil {
	    return err
	}
	if err := ch.Put(ctx, evt); err != nil {
	    _ = tx.Rollback(ctx)
	    return err
	}
	if err := tx.Commit(ctx); err != nil {
	    _ = tx.Rollback(ctx)
	    return err
	}

Puts become visible to takers only at commit. A rolled back take returns
its events to the head of the channel in their original order.

# Errors

Misuse of a transaction (wrong worker, wrong state, no transaction) is a
*errors.StateError and is never worth retrying. Exhausted capacity is a
*errors.ChannelFullError, which callers should treat as backpressure.
Any other failure from a channel is a *errors.ChannelError.

# Implementations

BasicChannel supplies per-worker transactions and lazy initialization;
concrete channels embed it and provide TransactionHooks. MemoryChannel is
a bounded in-memory channel registered under the type name "memory".
*/
package channel

package channel

import (
	"context"

	"github.com/google/uuid"
)

type workerKey struct{}

// DefaultWorker is the worker ID of a context that never had one set.
// Every such context shares one transaction per channel, so concurrent
// callers must set their own ID. BasicChannel logs a warning the first
// time it sees the default worker.
const DefaultWorker = ""

// WithWorker returns a context that identifies the calling worker.
// A channel binds at most one live transaction to each worker.
func WithWorker(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerFrom returns the worker ID carried by ctx, or DefaultWorker.
func WorkerFrom(ctx context.Context) string {
	if ctx == nil {
		return DefaultWorker
	}
	if id, ok := ctx.Value(workerKey{}).(string); ok {
		return id
	}
	return DefaultWorker
}

// HasWorker reports whether ctx carries a worker ID.
func HasWorker(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	_, ok := ctx.Value(workerKey{}).(string)
	return ok
}

// NewWorkerID returns a random worker ID.
func NewWorkerID() string {
	return uuid.NewString()
}

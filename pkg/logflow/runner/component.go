package runner

import (
	"context"
	"time"

	"github.com/randalmurphal/logflow/pkg/logflow/lifecycle"
	"github.com/randalmurphal/logflow/pkg/logflow/processor"
)

// Status is the result of one Process call.
type Status int

const (
	// Ready means work was done and Process may be called again at once.
	Ready Status = iota
	// Backoff means there was nothing to do and the runner should sleep.
	Backoff
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Ready:
		return "READY"
	case Backoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

// Source produces events and hands them to a channel processor.
type Source interface {
	lifecycle.Aware
	Name() string

	// Processor returns the processor the source delivers to. The runner
	// initializes it before starting the source and closes it after
	// stopping the source. It may be nil.
	Processor() *processor.ChannelProcessor
}

// PollableSource is a source the runner polls.
type PollableSource interface {
	Source

	// Process delivers zero or more events. Errors wrapping
	// *errors.DeliveryError are counted as delivery errors.
	Process(ctx context.Context) (Status, error)

	// BackoffIncrement is added to the sleep for every consecutive
	// Backoff status.
	BackoffIncrement() time.Duration

	// MaxBackoff caps the sleep.
	MaxBackoff() time.Duration
}

// EventDrivenSource is a source that delivers events on its own.
type EventDrivenSource interface {
	Source
}

// Sink takes events from a channel and writes them somewhere.
type Sink interface {
	lifecycle.Aware
	Name() string

	// Process takes and writes zero or more events in one transaction.
	Process(ctx context.Context) (Status, error)
}

package interceptor

import (
	"context"
	"errors"
	"fmt"

	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Chain applies interceptors in order.
type Chain struct {
	interceptors []Interceptor
}

// NewChain creates a chain of interceptors applied in the given order.
func NewChain(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

// Len returns the number of interceptors.
func (c *Chain) Len() int { return len(c.interceptors) }

// Initialize initializes every interceptor in order. If one fails, the
// ones already initialized are closed.
func (c *Chain) Initialize(ctx context.Context) error {
	for i, ic := range c.interceptors {
		if err := ic.Initialize(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = c.interceptors[j].Close()
			}
			return fmt.Errorf("initialize interceptor %d: %w", i, err)
		}
	}
	return nil
}

// Intercept runs evt through every interceptor, stopping as soon as one
// drops it.
func (c *Chain) Intercept(evt *event.Event) *event.Event {
	for _, ic := range c.interceptors {
		if evt == nil {
			return nil
		}
		evt = ic.Intercept(evt)
	}
	return evt
}

// InterceptBatch runs evts through every interceptor, stopping once the
// batch is empty. An interceptor that returns more events than it was
// given is a usage error.
func (c *Chain) InterceptBatch(evts []*event.Event) ([]*event.Event, error) {
	for i, ic := range c.interceptors {
		if len(evts) == 0 {
			return evts, nil
		}
		out := ic.InterceptBatch(evts)
		if len(out) > len(evts) {
			return nil, lferrors.NewStateError("intercept",
				"", fmt.Errorf("%w: interceptor %d (%T) grew batch from %d to %d events",
					lferrors.ErrIllegalState, i, ic, len(evts), len(out)))
		}
		evts = out
	}
	return evts, nil
}

// Close closes every interceptor and joins their errors.
func (c *Chain) Close() error {
	var errs []error
	for _, ic := range c.interceptors {
		if err := ic.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

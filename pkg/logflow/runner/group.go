package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/logflow/pkg/logflow/lifecycle"
)

// Group starts and stops a set of components together, typically the
// channels, sink runners and source runners of one agent.
type Group struct {
	components []lifecycle.Aware
	started    int
}

// NewGroup returns a group that starts components in the given order.
// List channels before the runners that use them.
func NewGroup(components ...lifecycle.Aware) *Group {
	return &Group{components: components}
}

// Start starts every component in order. If one fails, the components
// already started are stopped and the start error is returned.
func (g *Group) Start(ctx context.Context) error {
	for i, c := range g.components {
		if err := c.Start(ctx); err != nil {
			g.started = i
			_ = g.Stop(ctx)
			return fmt.Errorf("start component %d: %w", i, err)
		}
	}
	g.started = len(g.components)
	return nil
}

// Stop stops the started components. Runners are stopped concurrently
// first, then the remaining components, so no runner outlives a channel.
func (g *Group) Stop(ctx context.Context) error {
	started := g.components[:g.started]
	g.started = 0

	var runners, others []lifecycle.Aware
	for _, c := range started {
		switch c.(type) {
		case *PollableSourceRunner, *EventDrivenSourceRunner, *SinkRunner:
			runners = append(runners, c)
		default:
			others = append(others, c)
		}
	}
	err := stopAll(ctx, runners)
	if oerr := stopAll(ctx, others); err == nil {
		err = oerr
	}
	return err
}

func stopAll(ctx context.Context, components []lifecycle.Aware) error {
	var eg errgroup.Group
	for _, c := range components {
		eg.Go(func() error { return c.Stop(ctx) })
	}
	return eg.Wait()
}

package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
	"github.com/randalmurphal/logflow/pkg/logflow/interceptor"
	"github.com/randalmurphal/logflow/pkg/logflow/processor"
	"github.com/randalmurphal/logflow/pkg/logflow/selector"
)

// discardHooks accepts and drops every event.
type discardHooks struct{ channel.NoopBeginClose }

func (discardHooks) Put(context.Context, *event.Event) error    { return nil }
func (discardHooks) Take(context.Context) (*event.Event, error) { return nil, nil }
func (discardHooks) Commit(context.Context) error               { return nil }
func (discardHooks) Rollback(context.Context) error             { return nil }

func discardChannel(name string) channel.Channel {
	return channel.NewBasicChannel(name, func(context.Context) channel.TransactionHooks {
		return discardHooks{}
	})
}

func newBenchProcessor(b *testing.B, chans int, cfg map[string]any) *processor.ChannelProcessor {
	b.Helper()
	cs := make([]channel.Channel, chans)
	for i := range cs {
		cs[i] = discardChannel(fmt.Sprintf("c%d", i))
	}
	p, err := processor.Build(cs, config.New(cfg))
	if err != nil {
		b.Fatal(err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { _ = p.Close() })
	return p
}

// BenchmarkProcessEvent_Replicating_3 delivers one event to three channels.
func BenchmarkProcessEvent_Replicating_3(b *testing.B) {
	p := newBenchProcessor(b, 3, nil)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.ProcessEvent(ctx, event.NewWithString("payload")); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkProcessEventBatch_Multiplexing delivers 100-event batches
// routed by header.
func BenchmarkProcessEventBatch_Multiplexing(b *testing.B) {
	p := newBenchProcessor(b, 3, map[string]any{
		"selector.type":       "multiplexing",
		"selector.header":     "shard",
		"selector.mapping.s0": "c0",
		"selector.mapping.s1": "c1",
		"selector.default":    "c2",
	})
	batch := make([]*event.Event, 100)
	for i := range batch {
		batch[i] = event.NewWithString("payload", event.WithHeader("shard", fmt.Sprintf("s%d", i%3)))
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := p.ProcessEventBatch(ctx, batch); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkChain measures a three-stage interceptor chain.
func BenchmarkChain(b *testing.B) {
	var ics []interceptor.Interceptor
	for _, cfg := range []map[string]any{
		{"type": interceptor.TypeTimestamp},
		{"type": interceptor.TypeStatic, "key": "env", "value": "prod"},
		{"type": interceptor.TypeRegexFilter, "regex": "^ERROR", "excludeEvents": "true"},
	} {
		ic, err := interceptor.FromConfig("bench", config.New(cfg), nil)
		if err != nil {
			b.Fatal(err)
		}
		ics = append(ics, ic)
	}
	chain := interceptor.NewChain(ics...)
	batch := make([]*event.Event, 100)
	for i := range batch {
		batch[i] = event.NewWithString("INFO something happened")
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := chain.InterceptBatch(batch); err != nil {
			b.Fatal(err)
		}
	}
}

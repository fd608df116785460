// Package processor delivers events from a source to channels.
//
// A ChannelProcessor runs events through an interceptor chain, asks a
// selector which channels must receive each event, and puts the events on
// those channels in one transaction per channel.
//
// Delivery to required channels is reported to the caller: the first
// required channel that fails stops required delivery and its error is
// returned. Channels committed before the failure stay committed. Optional
// channels are attempted regardless and their failures are only logged,
// unless the failure is fatal (a usage or configuration error), which is
// always returned.
//
// Basic usage:
//
//	sel, _ := selector.New("replicating", []channel.Channel{mem}, config.New(nil))
//	p := processor.New(sel)
//	if err := p.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	if err := p.ProcessEvent(ctx, event.NewWithString("hello")); err != nil {
//	    // retry or back off
//	}
package processor

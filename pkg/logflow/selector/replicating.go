package selector

import (
	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Replicating sends every event to all channels. Channels listed under
// "optional" are best-effort; the rest are required.
//
// Until Configure is called every channel is required.
type Replicating struct {
	base
	configured bool
	required   []channel.Channel
	optional   []channel.Channel
}

var _ Selector = (*Replicating)(nil)

// NewReplicating creates an unconfigured replicating selector.
func NewReplicating() *Replicating {
	return &Replicating{base: base{name: "replicating"}}
}

// Configure reads the whitespace separated "optional" channel list.
func (r *Replicating) Configure(cfg config.Config) error {
	optional, err := r.resolve(KeyOptional, cfg.Fields(KeyOptional))
	if err != nil {
		return err
	}
	r.optional = optional
	r.required = without(r.channels, optional)
	r.configured = true
	return nil
}

// RequiredChannels returns every channel not marked optional.
func (r *Replicating) RequiredChannels(*event.Event) []channel.Channel {
	if !r.configured {
		return r.channels
	}
	return r.required
}

// OptionalChannels returns the channels marked optional.
func (r *Replicating) OptionalChannels(*event.Event) []channel.Channel {
	return r.optional
}

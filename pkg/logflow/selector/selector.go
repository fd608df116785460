// Package selector decides, per event, which channels must receive it and
// which may receive it on a best-effort basis.
//
// Selectors are configured once and then read concurrently without
// locking. The slices they return are shared and must not be modified.
package selector

import (
	"fmt"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Configuration keys.
const (
	KeyType     = "type"
	KeyOptional = "optional"
	KeyHeader   = "header"
	KeyDefault  = "default"
	KeyMapping  = "mapping"
)

// Selector returns the required and optional channels for an event.
// For any event the two results are disjoint.
type Selector interface {
	// Name returns the selector type name.
	Name() string

	// SetChannels sets the channels the selector chooses from. It must be
	// called before Configure.
	SetChannels(channels []channel.Channel)

	// AllChannels returns every channel the selector was given.
	AllChannels() []channel.Channel

	// Configure reads selector configuration. Names that do not match a
	// channel given to SetChannels are a *errors.ConfigError.
	Configure(cfg config.Config) error

	// RequiredChannels returns the channels whose delivery failures must
	// be reported to the caller.
	RequiredChannels(evt *event.Event) []channel.Channel

	// OptionalChannels returns the channels whose delivery failures are
	// logged and ignored.
	OptionalChannels(evt *event.Event) []channel.Channel
}

type base struct {
	name     string
	channels []channel.Channel
	byName   map[string]channel.Channel
}

func (b *base) Name() string { return b.name }

func (b *base) SetChannels(channels []channel.Channel) {
	b.channels = channels
	b.byName = make(map[string]channel.Channel, len(channels))
	for _, ch := range channels {
		b.byName[ch.Name()] = ch
	}
}

func (b *base) AllChannels() []channel.Channel {
	return b.channels
}

// resolve maps channel names to channels, dropping repeats.
func (b *base) resolve(key string, names []string) ([]channel.Channel, error) {
	out := make([]channel.Channel, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		ch, ok := b.byName[n]
		if !ok {
			return nil, &lferrors.ConfigError{
				Component: "selector " + b.name,
				Key:       key,
				Err:       fmt.Errorf("channel %q not found", n),
			}
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, ch)
	}
	return out, nil
}

func contains(channels []channel.Channel, ch channel.Channel) bool {
	for _, c := range channels {
		if c == ch {
			return true
		}
	}
	return false
}

func without(channels, remove []channel.Channel) []channel.Channel {
	out := make([]channel.Channel, 0, len(channels))
	for _, ch := range channels {
		if !contains(remove, ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Names returns the names of channels, for logging and tests.
func Names(channels []channel.Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = ch.Name()
	}
	return out
}

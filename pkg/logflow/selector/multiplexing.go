package selector

import (
	"fmt"
	"strings"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// DefaultHeader is the header inspected when "header" is not configured.
const DefaultHeader = "flume.selector.header"

// Multiplexing routes an event by the value of one header.
//
//	header = state
//	mapping.CA = mem1
//	mapping.NY = mem1 file2
//	optional.CA = file2
//	default = mem1
//
// An event whose header is missing, blank or unmapped goes to the default
// channels. A channel listed as optional for a value is dropped from that
// value's optional list if it is already required for it.
type Multiplexing struct {
	base
	header   string
	mapping  map[string][]channel.Channel
	optional map[string][]channel.Channel
	defaults []channel.Channel
}

var _ Selector = (*Multiplexing)(nil)

// NewMultiplexing creates an unconfigured multiplexing selector.
func NewMultiplexing() *Multiplexing {
	return &Multiplexing{
		base:     base{name: "multiplexing"},
		header:   DefaultHeader,
		mapping:  make(map[string][]channel.Channel),
		optional: make(map[string][]channel.Channel),
	}
}

// Configure reads header, default, mapping.<value> and optional.<value>.
func (m *Multiplexing) Configure(cfg config.Config) error {
	header := strings.TrimSpace(cfg.String(KeyHeader, DefaultHeader))
	if header == "" {
		header = DefaultHeader
	}

	defaults, err := m.resolve(KeyDefault, cfg.Fields(KeyDefault))
	if err != nil {
		return err
	}

	mappingCfg := cfg.Sub(KeyMapping)
	mapping := make(map[string][]channel.Channel, mappingCfg.Len())
	for _, value := range mappingCfg.Keys() {
		key := KeyMapping + "." + value
		chans, err := m.resolve(key, mappingCfg.Fields(value))
		if err != nil {
			return err
		}
		if len(chans) == 0 {
			return &lferrors.ConfigError{
				Component: "selector " + m.name,
				Key:       key,
				Err:       fmt.Errorf("no channel configured for header value %q", value),
			}
		}
		mapping[value] = chans
	}

	optionalCfg := cfg.Sub(KeyOptional)
	optional := make(map[string][]channel.Channel, optionalCfg.Len())
	for _, value := range optionalCfg.Keys() {
		chans, err := m.resolve(KeyOptional+"."+value, optionalCfg.Fields(value))
		if err != nil {
			return err
		}
		required := mapping[value]
		if len(required) == 0 {
			required = defaults
		}
		optional[value] = without(chans, required)
	}

	m.header = header
	m.defaults = defaults
	m.mapping = mapping
	m.optional = optional
	return nil
}

// Header returns the header name used for routing.
func (m *Multiplexing) Header() string { return m.header }

// RequiredChannels returns the channels mapped to the event's header
// value, or the default channels.
func (m *Multiplexing) RequiredChannels(evt *event.Event) []channel.Channel {
	value, ok := evt.Header(m.header)
	if !ok || strings.TrimSpace(value) == "" {
		return m.defaults
	}
	if chans, ok := m.mapping[value]; ok {
		return chans
	}
	return m.defaults
}

// OptionalChannels returns the optional channels for the event's header
// value, if any.
func (m *Multiplexing) OptionalChannels(evt *event.Event) []channel.Channel {
	value, ok := evt.Header(m.header)
	if !ok {
		return nil
	}
	return m.optional[value]
}

package channel

import (
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/registry"
)

// Factory constructs an unconfigured channel.
type Factory func(name string, opts ...Option) Channel

var factories = registry.New[Factory]()

func init() {
	Register("memory", func(name string, opts ...Option) Channel {
		return NewMemoryChannel(name, opts...)
	})
}

// Register makes a channel type available to New. Type names are case
// insensitive; registering an existing name replaces it.
func Register(typeName string, f Factory) {
	factories.Register(typeName, f)
}

// Types returns the registered channel type names.
func Types() []string {
	return factories.Names()
}

// New creates and configures a channel of the given type.
func New(typeName, name string, cfg config.Config, opts ...Option) (Channel, error) {
	f, err := factories.Lookup(typeName)
	if err != nil {
		return nil, &lferrors.ConfigError{Component: "channel " + name, Key: "type", Err: err}
	}
	ch := f(name, opts...)
	if err := ch.Configure(cfg); err != nil {
		return nil, err
	}
	return ch, nil
}

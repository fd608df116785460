package selector

import (
	"strings"

	"github.com/randalmurphal/logflow/pkg/logflow/channel"
	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/registry"
)

// Factory constructs an unconfigured selector.
type Factory func() Selector

var factories = registry.New[Factory]()

func init() {
	Register("replicating", func() Selector { return NewReplicating() })
	Register("multiplexing", func() Selector { return NewMultiplexing() })
}

// Register makes a selector type available to New.
func Register(typeName string, f Factory) {
	factories.Register(typeName, f)
}

// New creates a selector of the given type over channels and configures
// it. An empty type name selects "replicating".
func New(typeName string, channels []channel.Channel, cfg config.Config) (Selector, error) {
	if strings.TrimSpace(typeName) == "" {
		typeName = "replicating"
	}
	f, err := factories.Lookup(typeName)
	if err != nil {
		return nil, &lferrors.ConfigError{Component: "selector", Key: KeyType, Err: err}
	}
	s := f()
	s.SetChannels(channels)
	if err := s.Configure(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

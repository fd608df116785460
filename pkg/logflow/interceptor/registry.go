package interceptor

import (
	"log/slog"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/observability"
	"github.com/randalmurphal/logflow/pkg/logflow/registry"
)

// KeyType names the interceptor type in an interceptor's configuration.
const KeyType = "type"

// Built-in interceptor type names.
const (
	TypeTimestamp      = "timestamp"
	TypeHost           = "host"
	TypeStatic         = "static"
	TypeRegexFilter    = "regex_filter"
	TypeRegexExtractor = "regex_extractor"
	TypeSearchReplace  = "search_replace"
)

var builders = registry.New[BuilderFactory]()

func init() {
	Register(TypeTimestamp, func() Builder { return &TimestampBuilder{header: "timestamp"} })
	Register(TypeHost, func() Builder { return &HostBuilder{header: "host", useIP: true} })
	Register(TypeStatic, func() Builder { return &StaticBuilder{key: "key", value: "value", preserve: true} })
	Register(TypeRegexFilter, func() Builder { return &RegexFilterBuilder{pattern: ".*"} })
	Register(TypeRegexExtractor, func() Builder { return &RegexExtractorBuilder{} })
	Register(TypeSearchReplace, func() Builder { return &SearchReplaceBuilder{} })
}

// Register makes an interceptor type available to NewBuilder.
func Register(typeName string, f BuilderFactory) {
	builders.Register(typeName, f)
}

// Types returns the registered interceptor type names.
func Types() []string {
	return builders.Names()
}

// NewBuilder returns a builder for the named type. Unknown types are a
// *errors.ConfigError wrapping ErrUnknownType.
func NewBuilder(typeName string) (Builder, error) {
	f, err := builders.Lookup(typeName)
	if err != nil {
		return nil, &lferrors.ConfigError{Component: "interceptor", Key: KeyType, Err: err}
	}
	return f(), nil
}

// FromConfig builds the interceptor named name from cfg, which must hold
// a "type" key plus the type's own settings.
func FromConfig(name string, cfg config.Config, logger *slog.Logger) (Interceptor, error) {
	typeName, err := cfg.Require(KeyType)
	if err != nil {
		return nil, &lferrors.ConfigError{Component: "interceptor " + name, Key: KeyType, Err: err}
	}
	b, err := NewBuilder(typeName)
	if err != nil {
		return nil, err
	}
	if ls, ok := b.(LoggerSetter); ok {
		ls.SetLogger(logger)
	}
	if err := b.Configure(cfg); err != nil {
		return nil, err
	}
	ic, err := b.Build()
	if err != nil {
		return nil, err
	}
	observability.LogInterceptorCreated(logger, name, typeName)
	return ic, nil
}

package interceptor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/ncruces/go-strftime"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Regex interceptor configuration keys.
const (
	KeyRegex         = "regex"
	KeyExcludeEvents = "excludeEvents"
	KeySerializers   = "serializers"
	KeyName          = "name"
	KeyPattern       = "pattern"
)

// RegexFilter keeps or drops events whose body matches a regular
// expression.
type RegexFilter struct {
	noLifecycle
	regex   *regexp.Regexp
	exclude bool
}

// Intercept returns evt if it should pass, nil otherwise. With exclude
// unset only matching events pass; with exclude set only non-matching
// events pass.
func (f *RegexFilter) Intercept(evt *event.Event) *event.Event {
	if f.regex.Match(evt.Body) != f.exclude {
		return evt
	}
	return nil
}

// InterceptBatch filters the batch.
func (f *RegexFilter) InterceptBatch(evts []*event.Event) []*event.Event {
	return eachEvent(evts, f.Intercept)
}

// RegexFilterBuilder reads "regex" (default ".*") and "excludeEvents"
// (default false).
type RegexFilterBuilder struct {
	logging
	pattern string
	exclude bool
}

// Configure implements Builder.
func (b *RegexFilterBuilder) Configure(cfg config.Config) error {
	b.pattern = cfg.String(KeyRegex, ".*")
	b.exclude = cfg.Bool(KeyExcludeEvents, false)
	return nil
}

// Build compiles the expression.
func (b *RegexFilterBuilder) Build() (Interceptor, error) {
	re, err := regexp.Compile(b.pattern)
	if err != nil {
		return nil, &lferrors.ConfigError{Component: "interceptor " + TypeRegexFilter, Key: KeyRegex, Err: err}
	}
	b.log().Debug("creating regex filter interceptor",
		slog.String("regex", b.pattern),
		slog.Bool("exclude_events", b.exclude),
	)
	return &RegexFilter{regex: re, exclude: b.exclude}, nil
}

// Serializer turns a matched regex group into a header value.
type Serializer interface {
	Serialize(value string) (string, error)
}

// PassThroughSerializer returns the group unchanged.
type PassThroughSerializer struct{}

// Serialize implements Serializer.
func (PassThroughSerializer) Serialize(value string) (string, error) { return value, nil }

// MillisSerializer parses the group with a strftime pattern and returns
// epoch milliseconds.
type MillisSerializer struct {
	pattern string
}

// NewMillisSerializer validates pattern, e.g. "%Y-%m-%d %H:%M".
func NewMillisSerializer(pattern string) (*MillisSerializer, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("must configure with a valid pattern")
	}
	if _, err := strftime.Layout(pattern); err != nil {
		return nil, err
	}
	return &MillisSerializer{pattern: pattern}, nil
}

// Serialize implements Serializer.
func (s *MillisSerializer) Serialize(value string) (string, error) {
	t, err := strftime.Parse(s.pattern, value)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(t.UnixMilli(), 10), nil
}

type namedSerializer struct {
	header     string
	serializer Serializer
}

// RegexExtractor copies regex groups matched in the body into headers.
// Group i is written by the i-th configured serializer; groups without a
// serializer are skipped.
type RegexExtractor struct {
	noLifecycle
	regex       *regexp.Regexp
	serializers []namedSerializer
	logger      *slog.Logger
}

// Intercept sets headers from the first match, if any.
func (x *RegexExtractor) Intercept(evt *event.Event) *event.Event {
	m := x.regex.FindSubmatchIndex(evt.Body)
	if m == nil {
		return evt
	}
	groups := len(m)/2 - 1
	for g := 1; g <= groups; g++ {
		if g > len(x.serializers) {
			x.logger.Debug("skipping regex groups without serializer",
				slog.Int("from", g), slog.Int("to", groups))
			break
		}
		start, end := m[2*g], m[2*g+1]
		if start < 0 {
			continue
		}
		ns := x.serializers[g-1]
		v, err := ns.serializer.Serialize(string(evt.Body[start:end]))
		if err != nil {
			x.logger.Warn("regex extractor could not serialize group",
				slog.String("header", ns.header),
				slog.String("error", err.Error()))
			continue
		}
		evt.SetHeader(ns.header, v)
	}
	return evt
}

// InterceptBatch extracts headers for every event.
func (x *RegexExtractor) InterceptBatch(evts []*event.Event) []*event.Event {
	return eachEvent(evts, x.Intercept)
}

// RegexExtractorBuilder reads "regex" (required), "serializers" (a
// whitespace separated list of serializer ids, required) and for each id
// "serializers.<id>.name" (required), "serializers.<id>.type" ("default"
// or "millis") and, for millis, "serializers.<id>.pattern".
type RegexExtractorBuilder struct {
	logging
	regex       *regexp.Regexp
	serializers []namedSerializer
}

func extractorConfigError(key string, err error) error {
	return &lferrors.ConfigError{Component: "interceptor " + TypeRegexExtractor, Key: key, Err: err}
}

// Configure implements Builder.
func (b *RegexExtractorBuilder) Configure(cfg config.Config) error {
	pattern, err := cfg.Require(KeyRegex)
	if err != nil {
		return extractorConfigError(KeyRegex, err)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return extractorConfigError(KeyRegex, err)
	}

	ids := cfg.Fields(KeySerializers)
	if len(ids) == 0 {
		return extractorConfigError(KeySerializers, fmt.Errorf("must supply at least one name and serializer"))
	}
	all := cfg.Sub(KeySerializers)
	serializers := make([]namedSerializer, 0, len(ids))
	for _, id := range ids {
		sc := all.Sub(id)
		prefix := KeySerializers + "." + id + "."
		name, err := sc.Require(KeyName)
		if err != nil {
			return extractorConfigError(prefix+KeyName, err)
		}
		s, err := newSerializer(sc)
		if err != nil {
			return extractorConfigError(prefix+KeyType, err)
		}
		serializers = append(serializers, namedSerializer{header: name, serializer: s})
	}

	b.regex = re
	b.serializers = serializers
	return nil
}

func newSerializer(cfg config.Config) (Serializer, error) {
	typ := strings.TrimSpace(cfg.String(KeyType, "default"))
	switch {
	case strings.EqualFold(typ, "default"):
		return PassThroughSerializer{}, nil
	case strings.EqualFold(typ, "millis"), strings.HasSuffix(typ, "MillisSerializer"):
		return NewMillisSerializer(cfg.String(KeyPattern, ""))
	default:
		return nil, fmt.Errorf("unknown serializer type %q", typ)
	}
}

// Build implements Builder.
func (b *RegexExtractorBuilder) Build() (Interceptor, error) {
	if b.regex == nil {
		return nil, extractorConfigError(KeyRegex, fmt.Errorf("regex pattern was misconfigured"))
	}
	return &RegexExtractor{regex: b.regex, serializers: b.serializers, logger: b.log()}, nil
}

package interceptor

import (
	"fmt"
	"log/slog"
	"regexp"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/randalmurphal/logflow/pkg/logflow/config"
	lferrors "github.com/randalmurphal/logflow/pkg/logflow/errors"
	"github.com/randalmurphal/logflow/pkg/logflow/event"
)

// Search and replace configuration keys.
const (
	KeySearchPattern = "searchPattern"
	KeyReplaceString = "replaceString"
	KeyCharset       = "charset"
)

// DefaultCharset is used to decode and re-encode bodies when no charset
// is configured.
const DefaultCharset = "UTF-8"

// SearchReplace rewrites event bodies by replacing every match of a
// regular expression. The replacement may reference groups as $1 or ${name}.
type SearchReplace struct {
	noLifecycle
	search  *regexp.Regexp
	replace string
	enc     encoding.Encoding
	utf8    bool
	logger  *slog.Logger
}

// Intercept rewrites the body in place. A body that cannot be decoded or
// re-encoded in the configured charset is left unchanged.
func (s *SearchReplace) Intercept(evt *event.Event) *event.Event {
	if s.utf8 {
		evt.Body = s.search.ReplaceAll(evt.Body, []byte(s.replace))
		return evt
	}
	text, err := s.enc.NewDecoder().Bytes(evt.Body)
	if err != nil {
		s.logger.Warn("search and replace could not decode body", slog.String("error", err.Error()))
		return evt
	}
	out, err := s.enc.NewEncoder().String(s.search.ReplaceAllString(string(text), s.replace))
	if err != nil {
		s.logger.Warn("search and replace could not encode body", slog.String("error", err.Error()))
		return evt
	}
	evt.Body = []byte(out)
	return evt
}

// InterceptBatch rewrites every event.
func (s *SearchReplace) InterceptBatch(evts []*event.Event) []*event.Event {
	return eachEvent(evts, s.Intercept)
}

// SearchReplaceBuilder reads "searchPattern" (required), "replaceString"
// (default empty) and "charset" (default UTF-8).
type SearchReplaceBuilder struct {
	logging
	search  *regexp.Regexp
	replace string
	enc     encoding.Encoding
	utf8    bool
}

func searchReplaceConfigError(key string, err error) error {
	return &lferrors.ConfigError{Component: "interceptor " + TypeSearchReplace, Key: key, Err: err}
}

// Configure implements Builder.
func (b *SearchReplaceBuilder) Configure(cfg config.Config) error {
	pattern, err := cfg.Require(KeySearchPattern)
	if err != nil {
		return searchReplaceConfigError(KeySearchPattern, err)
	}
	if pattern == "" {
		return searchReplaceConfigError(KeySearchPattern, fmt.Errorf("must not be empty"))
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return searchReplaceConfigError(KeySearchPattern, err)
	}

	charset := cfg.String(KeyCharset, DefaultCharset)
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return searchReplaceConfigError(KeyCharset, fmt.Errorf("unsupported charset %q: %w", charset, err))
	}
	name, _ := htmlindex.Name(enc)

	b.search = re
	b.replace = cfg.String(KeyReplaceString, "")
	b.enc = enc
	b.utf8 = name == "utf-8"
	return nil
}

// Build implements Builder.
func (b *SearchReplaceBuilder) Build() (Interceptor, error) {
	if b.search == nil {
		return nil, searchReplaceConfigError(KeySearchPattern, fmt.Errorf("search pattern was not configured"))
	}
	return &SearchReplace{search: b.search, replace: b.replace, enc: b.enc, utf8: b.utf8, logger: b.log()}, nil
}

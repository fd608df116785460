package config

import (
	"errors"
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMissingKey is returned by Require when a key is absent or blank.
var ErrMissingKey = errors.New("missing required key")

// Config wraps a map[string]any for type-safe value extraction.
// All accessor methods return default values if the key is missing
// or the value cannot be converted to the requested type.
//
// Keys may be dotted paths. A lookup of "a.b" first tries the literal
// key "a.b" and then descends into a nested map stored under "a".
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

func (c Config) get(key string) (any, bool) {
	if v, ok := c.data[key]; ok {
		return v, true
	}
	for i := strings.IndexByte(key, '.'); i >= 0; {
		if nested, ok := asMap(c.data[key[:i]]); ok {
			if v, ok := New(nested).get(key[i+1:]); ok {
				return v, true
			}
		}
		next := strings.IndexByte(key[i+1:], '.')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Config:
		return m.data, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// Sub returns the configuration under prefix. Both a nested map stored at
// prefix and flat keys of the form "prefix.rest" contribute; flat keys win
// on conflict.
func (c Config) Sub(prefix string) Config {
	out := make(map[string]any)
	if v, ok := c.get(prefix); ok {
		if nested, ok := asMap(v); ok {
			maps.Copy(out, nested)
		}
	}
	p := prefix + "."
	for k, v := range c.data {
		if rest, ok := strings.CutPrefix(k, p); ok && rest != "" {
			out[rest] = v
		}
	}
	return New(out)
}

// String returns the string value for key, or defaultVal if missing or not a string.
func (c Config) String(key, defaultVal string) string {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	if s, ok := v.(string); ok {
		return s
	}
	return defaultVal
}

// Require returns the trimmed string value for key, or an error wrapping
// ErrMissingKey if it is absent or blank.
func (c Config) Require(key string) (string, error) {
	v, ok := c.get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, key)
	}
	return s, nil
}

// Duration returns the duration value for key, or defaultVal if missing or invalid.
//
// Accepts:
//   - string: parsed with time.ParseDuration, or as a number of seconds
//   - int, int64, float64: interpreted as seconds
//   - time.Duration: used directly
func (c Config) Duration(key string, defaultVal time.Duration) time.Duration {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal if missing or not convertible.
func (c Config) Bool(key string, defaultVal bool) bool {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal if missing or not convertible.
func (c Config) Int(key string, defaultVal int) int {
	return int(c.Int64(key, int64(defaultVal)))
}

// Int64 returns the int64 value for key, or defaultVal if missing or not convertible.
//
// Accepts:
//   - int, int64: used directly
//   - float64: only if there is no fractional part
//   - string: parsed as a base 10 integer
func (c Config) Int64(key string, defaultVal int64) int64 {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64); err == nil {
			return n
		}
	}
	return defaultVal
}

// Float returns the float64 value for key, or defaultVal if missing or not convertible.
func (c Config) Float(key string, defaultVal float64) float64 {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// StringSlice returns the string slice for key, or defaultVal if missing or not convertible.
//
// Accepts:
//   - []string: used directly
//   - []any: each element converted to string if possible
func (c Config) StringSlice(key string, defaultVal []string) []string {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, s)
		}
		return result
	}
	return defaultVal
}

// Fields returns a list value for key. A string is split on whitespace;
// a YAML or JSON list is returned element by element. Missing keys yield nil.
func (c Config) Fields(key string) []string {
	v, ok := c.get(key)
	if !ok {
		return nil
	}
	if s, ok := v.(string); ok {
		return strings.Fields(s)
	}
	return c.StringSlice(key, nil)
}

// Any returns the raw value for key, or defaultVal if missing.
func (c Config) Any(key string, defaultVal any) any {
	v, ok := c.get(key)
	if !ok {
		return defaultVal
	}
	return v
}

// Has returns true if the key exists in the config.
func (c Config) Has(key string) bool {
	_, ok := c.get(key)
	return ok
}

// Keys returns the top-level keys in sorted order.
func (c Config) Keys() []string {
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of top-level keys.
func (c Config) Len() int {
	return len(c.data)
}

// Raw returns the underlying map.
// The returned map should not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}

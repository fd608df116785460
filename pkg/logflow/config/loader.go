package config

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json, .properties, .conf
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	case ".properties", ".conf":
		return FromProperties(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromProperties parses "key = value" lines into a flat Config. Lines
// starting with '#' or '!' are comments, a trailing backslash continues
// the value on the next line, and ':' is accepted in place of '='.
// A key that appears twice is an error.
func FromProperties(data []byte) (Config, error) {
	m := make(map[string]any)
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	var pending string
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if pending == "" && (line == "" || line[0] == '#' || line[0] == '!') {
			continue
		}
		if cont, ok := strings.CutSuffix(line, `\`); ok {
			pending += cont
			continue
		}
		line = pending + line
		pending = ""

		i := strings.IndexAny(line, "=:")
		if i <= 0 {
			return Config{}, fmt.Errorf("parse properties: line %d: expected key = value", lineNo)
		}
		key := strings.TrimSpace(line[:i])
		if _, dup := m[key]; dup {
			return Config{}, fmt.Errorf("parse properties: line %d: %q configured twice", lineNo, key)
		}
		m[key] = strings.TrimSpace(line[i+1:])
	}
	if err := sc.Err(); err != nil {
		return Config{}, fmt.Errorf("parse properties: %w", err)
	}
	if pending != "" {
		return Config{}, fmt.Errorf("parse properties: unterminated continuation at line %d", lineNo)
	}
	return New(m), nil
}

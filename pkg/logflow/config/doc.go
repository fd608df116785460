/*
Package config provides type-safe configuration extraction from map[string]any.

# Overview

Config wraps a map and provides typed accessors that return defaults for
missing keys and type mismatches. Every logflow component is configured
from a Config: channels, selectors, interceptors and the channel processor
each read their own keys and hand sub-configurations to their children.

# Nested and Flat Keys

Agent configuration is traditionally written as flat properties:

	selector.type = multiplexing
	selector.header = state
	selector.mapping.CA = mem1

The same structure can be expressed as nested YAML:

	selector:
	  type: multiplexing
	  header: state
	  mapping:
	    CA: mem1

Sub("selector") returns the same view for both forms, and accessors accept
dotted paths either way.

# Type Coercion

Values loaded from properties files are always strings, so numeric and
boolean accessors also parse strings:

	cfg.Int("capacity", 100)        // 100, "100" or 100.0
	cfg.Bool("useIP", true)         // true or "true"
	cfg.Duration("keep-alive", 3*time.Second) // "3", "3s" or 3

Fields splits a whitespace-separated list ("c1 c2 c3") or returns a YAML list.

# File Loading

	cfg, err := config.FromFile("agent.yaml")
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)
	cfg, err = config.FromProperties(propBytes)

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config

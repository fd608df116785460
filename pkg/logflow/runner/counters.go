package runner

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
)

// Runner counter names.
const (
	CounterPolls               = "runner.polls"
	CounterBackoffs            = "runner.backoffs"
	CounterConsecutiveBackoffs = "runner.backoffs.consecutive"
	CounterDeliveryErrors      = "runner.deliveryErrors"
	CounterErrors              = "runner.errors"
	CounterInterruptions       = "runner.interruptions"
)

// CounterGroup is a named set of counters created on first use.
type CounterGroup struct {
	name string

	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

// NewCounterGroup returns an empty group.
func NewCounterGroup(name string) *CounterGroup {
	return &CounterGroup{name: name, counters: make(map[string]*atomic.Int64)}
}

// Name returns the group name.
func (g *CounterGroup) Name() string { return g.name }

func (g *CounterGroup) counter(name string) *atomic.Int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.counters[name]
	if !ok {
		c = new(atomic.Int64)
		g.counters[name] = c
	}
	return c
}

// Get returns the counter's value.
func (g *CounterGroup) Get(name string) int64 { return g.counter(name).Load() }

// Increment adds one and returns the new value.
func (g *CounterGroup) Increment(name string) int64 { return g.counter(name).Add(1) }

// Add adds delta and returns the new value.
func (g *CounterGroup) Add(name string, delta int64) int64 { return g.counter(name).Add(delta) }

// Set sets the counter.
func (g *CounterGroup) Set(name string, value int64) { g.counter(name).Store(value) }

// Merge adds every counter of other to g.
func (g *CounterGroup) Merge(other *CounterGroup) {
	for name, v := range other.Snapshot() {
		g.Add(name, v)
	}
}

// Snapshot returns a copy of the current values.
func (g *CounterGroup) Snapshot() map[string]int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int64, len(g.counters))
	for name, c := range g.counters {
		out[name] = c.Load()
	}
	return out
}

// String renders the counters in name order.
func (g *CounterGroup) String() string {
	snap := g.Snapshot()
	parts := make([]string, 0, len(snap))
	for _, name := range slices.Sorted(maps.Keys(snap)) {
		parts = append(parts, fmt.Sprintf("%s=%d", name, snap[name]))
	}
	return fmt.Sprintf("CounterGroup{name:%s counters:{%s}}", g.name, strings.Join(parts, ", "))
}

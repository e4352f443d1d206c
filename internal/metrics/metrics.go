// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics collects in-process run counters and stage timings.
// It has no export sink; the CLI prints a summary after a run.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Well-known counter names.
const (
	GenerationCalls = "generation_calls"
	SearchCalls     = "search_calls"
	CacheHits       = "cache_hits"
	CacheMisses     = "cache_misses"
	Errors          = "errors"
)

// Collector accumulates counters and timings. All methods are safe for
// concurrent use and tolerate a nil receiver, so components can run
// unmetered.
type Collector struct {
	mu       sync.Mutex
	counters map[string]int64
	timings  map[string]time.Duration
}

// New creates an empty Collector.
func New() *Collector {
	return &Collector{
		counters: make(map[string]int64),
		timings:  make(map[string]time.Duration),
	}
}

// Inc increments the named counter by one.
func (c *Collector) Inc(name string) {
	c.Add(name, 1)
}

// Add increments the named counter by delta.
func (c *Collector) Add(name string, delta int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name] += delta
	c.mu.Unlock()
}

// Time accumulates a duration under name.
func (c *Collector) Time(name string, d time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.timings[name] += d
	c.mu.Unlock()
}

// Count returns the current value of the named counter.
func (c *Collector) Count(name string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Counters returns a copy of all counters.
func (c *Collector) Counters() map[string]int64 {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.counters))
	for k, v := range c.counters {
		out[k] = v
	}
	return out
}

// WriteSummary prints counters and timings in stable order.
func (c *Collector) WriteSummary(w io.Writer) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.counters))
	for name := range c.counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %d\n", name, c.counters[name])
	}

	names = names[:0]
	for name := range c.timings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-18s %s\n", name, c.timings[name].Round(time.Millisecond))
	}
}

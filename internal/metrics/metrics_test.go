// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	c := New()
	c.Inc(CacheHits)
	c.Inc(CacheHits)
	c.Add(GenerationCalls, 3)

	assert.Equal(t, int64(2), c.Count(CacheHits))
	assert.Equal(t, int64(3), c.Count(GenerationCalls))
	assert.Equal(t, int64(0), c.Count(Errors))

	all := c.Counters()
	assert.Equal(t, int64(2), all[CacheHits])
	assert.Len(t, all, 2)
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.Inc(CacheHits)
	c.Add(Errors, 5)
	c.Time("x", time.Second)
	c.WriteSummary(&strings.Builder{})

	assert.Equal(t, int64(0), c.Count(CacheHits))
	assert.Nil(t, c.Counters())
}

func TestConcurrentIncrements(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc(SearchCalls)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Count(SearchCalls))
}

func TestWriteSummary(t *testing.T) {
	c := New()
	c.Inc(CacheHits)
	c.Time("search_time", 1500*time.Millisecond)

	var sb strings.Builder
	c.WriteSummary(&sb)

	out := sb.String()
	assert.Contains(t, out, "cache_hits")
	assert.Contains(t, out, "1")
	assert.Contains(t, out, "search_time")
	assert.Contains(t, out, "1.5s")
}

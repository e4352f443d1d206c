// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search wraps web-search providers with caching, retry, and a
// bounded multi-query batch mode. Each backend implements the Backend
// interface per the Strategy pattern.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/report-engine/internal/cache"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/internal/provider"
	"github.com/pdiddy/report-engine/pkg/types"
)

const defaultMaxConcurrent = 4

// Backend searches a single web-search API.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string) ([]types.SearchHit, error)
}

// Client is the search client. It follows the same
// cache-then-call-then-populate discipline as the generation client.
type Client struct {
	backend Backend
	cache   *cache.Cache
	cfg     types.SearchConfig
	metrics *metrics.Collector
}

// NewClient creates a search client. The cache may be nil to disable
// memoization; metrics may be nil to run unmetered.
func NewClient(b Backend, c *cache.Cache, cfg types.SearchConfig, m *metrics.Collector) *Client {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Client{backend: b, cache: c, cfg: cfg, metrics: m}
}

// Search returns the ordered hits for query, consulting the cache
// first. An empty hit list from the provider is retried once, then
// surfaced as an error.
func (c *Client) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	key := cache.Key("search", c.backend.Name(), query, strconv.Itoa(c.cfg.MaxResults))
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			var hits []types.SearchHit
			if err := json.Unmarshal(v, &hits); err == nil {
				c.metrics.Inc(metrics.CacheHits)
				return hits, nil
			}
		}
		c.metrics.Inc(metrics.CacheMisses)
	}

	var hits []types.SearchHit
	err := provider.Retry(ctx, c.cfg.MaxRetries, func(ctx context.Context) error {
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		c.metrics.Inc(metrics.SearchCalls)
		start := time.Now()
		out, err := c.backend.Search(ctx, query)
		c.metrics.Time("search_time", time.Since(start))
		if err != nil {
			c.metrics.Inc(metrics.Errors)
			return err
		}
		if len(out) == 0 {
			return provider.Errorf(provider.KindEmptyResult, c.backend.Name(),
				"no hits for %q", query)
		}
		if c.cfg.MaxResults > 0 && len(out) > c.cfg.MaxResults {
			out = out[:c.cfg.MaxResults]
		}
		hits = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	if c.cache != nil {
		if data, err := json.Marshal(hits); err == nil {
			c.cache.Set(key, data, 0)
		}
	}
	return hits, nil
}

// MultiResult aggregates a multi-query search. Every input query has an
// entry in Hits; a failed query maps to an empty list and an entry in
// Errors instead of failing the whole batch.
type MultiResult struct {
	Hits   map[string][]types.SearchHit
	Errors map[string]error
}

// SearchMultiple issues the queries concurrently, bounded by the
// configured cap, and aggregates per-query outcomes.
func (c *Client) SearchMultiple(ctx context.Context, queries []string) MultiResult {
	out := MultiResult{
		Hits:   make(map[string][]types.SearchHit, len(queries)),
		Errors: make(map[string]error),
	}

	sem := semaphore.NewWeighted(int64(c.cfg.MaxConcurrent))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, query := range queries {
		mu.Lock()
		_, dup := out.Hits[query]
		if !dup {
			out.Hits[query] = nil // reserve so duplicates collapse
		}
		mu.Unlock()
		if dup {
			continue
		}

		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				out.Hits[query] = []types.SearchHit{}
				out.Errors[query] = err
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			hits, err := c.Search(ctx, query)
			mu.Lock()
			if err != nil {
				out.Hits[query] = []types.SearchHit{}
				out.Errors[query] = err
			} else {
				out.Hits[query] = hits
			}
			mu.Unlock()
		}(query)
	}

	wg.Wait()
	return out
}

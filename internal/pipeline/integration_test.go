// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/report-engine/internal/cache"
	"github.com/pdiddy/report-engine/internal/search"
	"github.com/pdiddy/report-engine/pkg/types"
)

// countingBackend serves one hit per query and counts calls per query.
type countingBackend struct {
	mu    sync.Mutex
	calls map[string]int
}

func (b *countingBackend) Name() string { return "stub" }

func (b *countingBackend) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	b.mu.Lock()
	if b.calls == nil {
		b.calls = make(map[string]int)
	}
	b.calls[query]++
	b.mu.Unlock()

	return []types.SearchHit{{
		URL:     "https://example.com/" + strings.ReplaceAll(query, " ", "-"),
		Title:   "Result for " + query,
		Snippet: "Snippet.",
	}}, nil
}

func (b *countingBackend) count(query string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[query]
}

// A query shared by every section must reach the backend once; later
// sections are served from the cache.
func TestRunSharedQueryServedFromCache(t *testing.T) {
	backend := &countingBackend{}
	searcher := search.NewClient(backend, cache.New(types.CacheConfig{}, nil),
		types.SearchConfig{MaxResults: 3, MaxConcurrent: 1}, nil)

	gen := &scriptedGen{extraQuery: "shared follow-up query"}
	p := newTestPipeline(t, Deps{Generator: gen, Searcher: searcher},
		types.PipelineOptions{MaxSectionConcurrency: 1})

	state := p.Run(context.Background(), "topic")

	require.Equal(t, types.StatusDone, state.Status)
	require.Len(t, state.Outline, 3)
	for i := range state.Outline {
		assert.Contains(t, state.SectionQueries[i], "shared follow-up query")
	}
	assert.Equal(t, 1, backend.count("shared follow-up query"),
		"repeated query should be served from cache after the first call")
	assert.Equal(t, 1, backend.count("Alpha basics"))
}

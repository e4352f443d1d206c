// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/report-engine/internal/provider"
	"github.com/pdiddy/report-engine/pkg/types"
)

// tavilyBaseURL is overridable so tests can point at an httptest server.
var tavilyBaseURL = "https://api.tavily.com"

// Tavily queries the Tavily web-search API.
type Tavily struct {
	apiKey     string
	client     *http.Client
	userAgent  string
	maxResults int
	baseURL    string
}

var _ Backend = (*Tavily)(nil)

// NewTavily creates a Tavily backend from the search configuration.
func NewTavily(cfg types.SearchConfig) *Tavily {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	return &Tavily{
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout},
		userAgent:  cfg.UserAgent,
		maxResults: maxResults,
		baseURL:    tavilyBaseURL,
	}
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	Query      string `json:"query"`
	APIKey     string `json:"api_key"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search posts query to Tavily and maps the response to SearchHits.
func (t *Tavily) Search(ctx context.Context, query string) ([]types.SearchHit, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, provider.Errorf(provider.KindInvalidRequest, t.Name(), "API key is missing")
	}

	payload, err := json.Marshal(tavilyRequest{
		Query:      query,
		APIKey:     t.apiKey,
		MaxResults: t.maxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, provider.Errorf(provider.KindTimeout, t.Name(), "%v", err)
		}
		return nil, provider.Errorf(provider.KindProviderError, t.Name(), "%v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, provider.Errorf(provider.KindRateLimited, t.Name(), "http 429")
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		io.Copy(io.Discard, resp.Body)
		return nil, provider.Errorf(provider.KindInvalidRequest, t.Name(), "http %d", resp.StatusCode)
	default:
		io.Copy(io.Discard, resp.Body)
		return nil, provider.Errorf(provider.KindProviderError, t.Name(), "http %d", resp.StatusCode)
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, provider.Errorf(provider.KindProviderError, t.Name(), "decoding response: %v", err)
	}

	hits := make([]types.SearchHit, 0, len(out.Results))
	for _, r := range out.Results {
		hits = append(hits, types.SearchHit{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: r.Content,
			Score:   r.Score,
		})
	}
	return hits, nil
}

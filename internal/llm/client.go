// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm wraps language-model providers with caching, retry,
// fallback-model degradation, and order-preserving batch submission.
// Each backend (Anthropic, Gemini) implements the Provider interface
// per the Strategy pattern.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/report-engine/internal/cache"
	"github.com/pdiddy/report-engine/internal/metrics"
	"github.com/pdiddy/report-engine/internal/provider"
	"github.com/pdiddy/report-engine/pkg/types"
)

const (
	defaultMaxTokens     = 4096
	defaultMaxConcurrent = 4
)

// Provider generates text for a prompt against a named model.
type Provider interface {
	Name() string
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Client is the generation client. Every call checks the cache first;
// misses go to the provider under the shared retry policy and
// successful results are written back with a TTL.
type Client struct {
	provider Provider
	cache    *cache.Cache
	cfg      types.GenerationConfig
	metrics  *metrics.Collector
}

// NewClient creates a generation client. The cache may be nil to
// disable memoization; metrics may be nil to run unmetered.
func NewClient(p Provider, c *cache.Cache, cfg types.GenerationConfig, m *metrics.Collector) *Client {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Client{provider: p, cache: c, cfg: cfg, metrics: m}
}

// Generate produces text for prompt using the primary model. Failures
// surface to the caller after the retry budget is spent.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generateModel(ctx, c.cfg.Model, prompt)
}

// GenerateWithFallback produces text for prompt, degrading to the
// configured fallback model after the primary exhausts its retries.
func (c *Client) GenerateWithFallback(ctx context.Context, prompt string) (string, error) {
	text, err := c.generateModel(ctx, c.cfg.Model, prompt)
	if err == nil || c.cfg.FallbackModel == "" {
		return text, err
	}

	text, ferr := c.generateModel(ctx, c.cfg.FallbackModel, prompt)
	if ferr != nil {
		return "", fmt.Errorf("primary model %s failed (%v); fallback %s: %w",
			c.cfg.Model, err, c.cfg.FallbackModel, ferr)
	}
	return text, nil
}

// BatchItem is one slot of a GenerateBatch result. Exactly one of Text
// and Err is meaningful.
type BatchItem struct {
	Text string
	Err  error
}

// GenerateBatch produces text for every prompt, preserving input order
// in the output regardless of completion order. A failed item yields an
// error marker at its position rather than aborting the batch.
func (c *Client) GenerateBatch(ctx context.Context, prompts []string) []BatchItem {
	items := make([]BatchItem, len(prompts))

	g := &errgroup.Group{}
	g.SetLimit(c.cfg.MaxConcurrent)
	for i, prompt := range prompts {
		i, prompt := i, prompt
		g.Go(func() error {
			text, err := c.Generate(ctx, prompt)
			items[i] = BatchItem{Text: text, Err: err}
			return nil
		})
	}
	g.Wait()
	return items
}

// generateModel is the cache-then-call-then-populate path for one model.
func (c *Client) generateModel(ctx context.Context, model, prompt string) (string, error) {
	key := cache.Key("generate", c.provider.Name(), model, prompt)
	if c.cache != nil {
		if v, ok := c.cache.Get(key); ok {
			c.metrics.Inc(metrics.CacheHits)
			return string(v), nil
		}
		c.metrics.Inc(metrics.CacheMisses)
	}

	var text string
	err := provider.Retry(ctx, c.cfg.MaxRetries, func(ctx context.Context) error {
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		c.metrics.Inc(metrics.GenerationCalls)
		start := time.Now()
		out, err := c.provider.Generate(ctx, model, prompt)
		c.metrics.Time("generation_time", time.Since(start))
		if err != nil {
			c.metrics.Inc(metrics.Errors)
			return err
		}
		if strings.TrimSpace(out) == "" {
			return provider.Errorf(provider.KindEmptyResult, c.provider.Name(),
				"model %s returned no text", model)
		}
		text = strings.TrimSpace(out)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generating with model %s: %w", model, err)
	}

	if c.cache != nil {
		c.cache.Set(key, []byte(text), 0)
	}
	return text, nil
}

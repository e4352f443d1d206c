// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make
// network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "report-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// GenerationProvider identifies the language-model backend.
type GenerationProvider string

const (
	ProviderAnthropic GenerationProvider = "anthropic"
	ProviderGemini    GenerationProvider = "gemini"
)

// GenerationConfig holds settings for the generation client.
type GenerationConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Provider selects the backend: anthropic or gemini.
	Provider GenerationProvider `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the primary model identifier.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	// FallbackModel is a secondary, typically cheaper model tried after
	// the primary exhausts retries. Empty disables fallback.
	FallbackModel string `json:"fallback_model,omitempty" yaml:"fallback_model,omitempty" mapstructure:"fallback_model"`

	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxTokens bounds the response length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retry attempts for failed calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// MaxConcurrent bounds concurrent calls in batch mode (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// SearchConfig holds settings for the search client.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// APIKey authenticates against the search provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// MaxResults is the maximum number of hits per query (default 3).
	MaxResults int `json:"max_results" yaml:"max_results" mapstructure:"max_results"`

	// MaxConcurrent bounds concurrent queries in multi-query mode (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// MaxRetries is the number of retry attempts for failed queries (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// CacheConfig holds settings for the two-tier call cache.
type CacheConfig struct {
	// Dir is the directory holding the SQLite cache database.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// MemoryEntries bounds the in-process tier (default 1000).
	MemoryEntries int `json:"memory_entries" yaml:"memory_entries" mapstructure:"memory_entries"`

	// TTL is the default time-to-live for cached entries (default 1h).
	TTL time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// PipelineOptions configures a single pipeline run.
type PipelineOptions struct {
	// EnableValidation turns on the advisory per-section validation stage.
	EnableValidation bool `json:"enable_validation" yaml:"enable_validation" mapstructure:"enable_validation"`

	// StrictValidation excludes sections whose validation verdict failed
	// from the compiled report. With it off a failing verdict is recorded
	// but the section still compiles.
	StrictValidation bool `json:"strict_validation" yaml:"strict_validation" mapstructure:"strict_validation"`

	// MaxSectionConcurrency caps concurrent per-section workers (default 4).
	MaxSectionConcurrency int `json:"max_section_concurrency" yaml:"max_section_concurrency" mapstructure:"max_section_concurrency"`

	// PerCallTimeout bounds each external call made by a section worker
	// (default 30s).
	PerCallTimeout time.Duration `json:"per_call_timeout" yaml:"per_call_timeout" mapstructure:"per_call_timeout"`

	// MaxRetries is the retry budget for each section worker call (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
}

// PipelineConfig groups all component configurations.
type PipelineConfig struct {
	Generation GenerationConfig `json:"generation" yaml:"generation" mapstructure:"generation"`
	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" mapstructure:"cache"`
	Options    PipelineOptions  `json:"options" yaml:"options" mapstructure:"options"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "review-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call the generative AI API.
type AIConfig struct {
	// Model is the AI model identifier.
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxTokens bounds the generated output length (default 4096).
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature controls sampling randomness (default 0.3; the original
	// pipeline kept it low for consistent clinical prose).
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxRetries is the number of retry attempts for transient failures
	// (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// IntentConfig holds settings for the term-mapping stage.
type IntentConfig struct {
	AIConfig `yaml:",inline"`

	// CacheTTL is how long intent analyses are reused for identical input
	// (default 1h). Zero disables the cache.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// RetrievalConfig holds settings for the retrieval engine.
type RetrievalConfig struct {
	HTTPConfig `yaml:",inline"`

	// PageSize is the number of records requested per page (default 50).
	PageSize int `json:"page_size" yaml:"page_size"`

	// MaxResults caps the total records retrieved per query (default 200).
	MaxResults int `json:"max_results" yaml:"max_results"`

	// FanOut is the maximum number of pages fetched concurrently (default 4).
	FanOut int `json:"fan_out" yaml:"fan_out"`

	// RequestsPerSecond is the token-bucket rate ceiling for outbound
	// requests. NCBI permits 3 rps without an API key and 10 rps with one.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// APIKey is an optional NCBI API key for higher rate limits.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// CachePath is the location of the page-cache database
	// (default "cache/retrieval.db").
	CachePath string `json:"cache_path" yaml:"cache_path"`

	// CacheTTL is the freshness window for cached pages (default 24h).
	// Stale entries are refetched but kept until successfully replaced.
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// FilterConfig holds weights and thresholds for the filter/scoring stage.
// The three weights are non-negative and need not sum to 1; the composite
// rank is their weighted linear combination.
type FilterConfig struct {
	// RelevanceWeight scales the topic-similarity factor (default 0.5).
	RelevanceWeight float64 `json:"relevance_weight" yaml:"relevance_weight"`

	// RecencyWeight scales the recency factor (default 0.3).
	RecencyWeight float64 `json:"recency_weight" yaml:"recency_weight"`

	// QualityWeight scales the journal-quality factor (default 0.2).
	QualityWeight float64 `json:"quality_weight" yaml:"quality_weight"`

	// RecencyHorizonYears is where the linear recency decay reaches zero
	// (default 10).
	RecencyHorizonYears int `json:"recency_horizon_years" yaml:"recency_horizon_years"`

	// MinQuality drops items whose normalized journal-quality factor falls
	// below it. Zero disables the threshold.
	MinQuality float64 `json:"min_quality,omitempty" yaml:"min_quality,omitempty"`

	// MaxItems truncates the ranked output (default 50).
	MaxItems int `json:"max_items" yaml:"max_items"`

	// QualityTablePath locates the journal-quality YAML table.
	QualityTablePath string `json:"quality_table_path,omitempty" yaml:"quality_table_path,omitempty"`
}

// SynthesisConfig holds settings for outline and review generation.
type SynthesisConfig struct {
	AIConfig `yaml:",inline"`

	// TopItems is how many ranked items feed the outline prompt (default 30).
	TopItems int `json:"top_items" yaml:"top_items"`

	// SectionFanOut is the maximum number of sections generated
	// concurrently (default 3).
	SectionFanOut int `json:"section_fan_out" yaml:"section_fan_out"`

	// PlaceholderOnFailure substitutes a placeholder for a failed section
	// instead of failing the run (default true).
	PlaceholderOnFailure bool `json:"placeholder_on_failure" yaml:"placeholder_on_failure"`
}

// PipelineConfig groups all stage configurations for the pipeline.
type PipelineConfig struct {
	Intent    IntentConfig    `json:"intent" yaml:"intent"`
	Retrieval RetrievalConfig `json:"retrieval" yaml:"retrieval"`
	Filter    FilterConfig    `json:"filter" yaml:"filter"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`

	// RunsDir is where the orchestrator persists run artifacts
	// (default "runs").
	RunsDir string `json:"runs_dir" yaml:"runs_dir"`
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"net/http"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/review-engine/internal/genai"
	"github.com/pdiddy/review-engine/pkg/types"
)

const defaultUserAgent = "review-engine/0.1"

// buildConfig assembles the pipeline configuration from the config file,
// REVIEW_ENGINE_* environment variables, and .secrets/ keys.
func buildConfig() types.PipelineConfig {
	viper.SetDefault("ai.model", "claude-3-5-sonnet-latest")
	viper.SetDefault("ai.max_tokens", 4096)
	viper.SetDefault("ai.temperature", 0.3)
	viper.SetDefault("ai.max_retries", 3)
	viper.SetDefault("intent.cache_ttl", time.Hour)
	viper.SetDefault("retrieval.timeout", 30*time.Second)
	viper.SetDefault("retrieval.page_size", 50)
	viper.SetDefault("retrieval.max_results", 200)
	viper.SetDefault("retrieval.fan_out", 4)
	viper.SetDefault("retrieval.cache_path", "cache/retrieval.db")
	viper.SetDefault("retrieval.cache_ttl", 24*time.Hour)
	viper.SetDefault("filter.relevance_weight", 0.5)
	viper.SetDefault("filter.recency_weight", 0.3)
	viper.SetDefault("filter.quality_weight", 0.2)
	viper.SetDefault("filter.recency_horizon_years", 10)
	viper.SetDefault("filter.max_items", 50)
	viper.SetDefault("synthesis.top_items", 30)
	viper.SetDefault("synthesis.section_fan_out", 3)
	viper.SetDefault("synthesis.placeholder_on_failure", true)
	viper.SetDefault("runs_dir", "runs")

	ai := types.AIConfig{
		Model:       viper.GetString("ai.model"),
		APIKey:      secretDefault("anthropic-api-key", viper.GetString("ai.api_key")),
		MaxTokens:   viper.GetInt("ai.max_tokens"),
		Temperature: viper.GetFloat64("ai.temperature"),
		MaxRetries:  viper.GetInt("ai.max_retries"),
	}

	cfg := types.PipelineConfig{
		Intent: types.IntentConfig{
			AIConfig: ai,
			CacheTTL: viper.GetDuration("intent.cache_ttl"),
		},
		Retrieval: types.RetrievalConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   viper.GetDuration("retrieval.timeout"),
				UserAgent: defaultUserAgent,
			},
			PageSize:          viper.GetInt("retrieval.page_size"),
			MaxResults:        viper.GetInt("retrieval.max_results"),
			FanOut:            viper.GetInt("retrieval.fan_out"),
			RequestsPerSecond: viper.GetFloat64("retrieval.requests_per_second"),
			APIKey:            secretDefault("ncbi-api-key", viper.GetString("retrieval.api_key")),
			CachePath:         viper.GetString("retrieval.cache_path"),
			CacheTTL:          viper.GetDuration("retrieval.cache_ttl"),
		},
		Filter: types.FilterConfig{
			RelevanceWeight:     viper.GetFloat64("filter.relevance_weight"),
			RecencyWeight:       viper.GetFloat64("filter.recency_weight"),
			QualityWeight:       viper.GetFloat64("filter.quality_weight"),
			RecencyHorizonYears: viper.GetInt("filter.recency_horizon_years"),
			MinQuality:          viper.GetFloat64("filter.min_quality"),
			MaxItems:            viper.GetInt("filter.max_items"),
			QualityTablePath:    viper.GetString("filter.quality_table_path"),
		},
		Synthesis: types.SynthesisConfig{
			AIConfig:             ai,
			TopItems:             viper.GetInt("synthesis.top_items"),
			SectionFanOut:        viper.GetInt("synthesis.section_fan_out"),
			PlaceholderOnFailure: viper.GetBool("synthesis.placeholder_on_failure"),
		},
		RunsDir: viper.GetString("runs_dir"),
	}

	// NCBI permits 3 rps without an API key, 10 with one.
	if cfg.Retrieval.RequestsPerSecond <= 0 {
		if cfg.Retrieval.APIKey != "" {
			cfg.Retrieval.RequestsPerSecond = 10
		} else {
			cfg.Retrieval.RequestsPerSecond = 3
		}
	}
	return cfg
}

// newGenerator returns the Claude backend, or nil when no API key is
// configured; callers decide whether that means a fallback or an error.
func newGenerator(cfg types.AIConfig) genai.Generator {
	if cfg.APIKey == "" {
		return nil
	}
	return &genai.ClaudeBackend{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		Client: &http.Client{Timeout: 2 * time.Minute},
	}
}

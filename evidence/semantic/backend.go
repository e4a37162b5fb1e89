/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package semantic

import (
	"context"
	"fmt"
	"os"
	"strings"

	"chainguard.dev/rubriceval/metrics"
)

// Backend is the capability contract of an external model: a single-turn
// completion at temperature 0. Errors that retrying cannot fix are wrapped
// with evidence.Permanent.
type Backend interface {
	Model() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Provider names a backend implementation.
type Provider string

const (
	// OpenAI uses the Chat Completions API.
	OpenAI Provider = "openai"
	// Claude uses the Anthropic Messages API, directly or through Vertex AI.
	Claude Provider = "claude"
	// Gemini uses the Gemini API or Vertex AI.
	Gemini Provider = "gemini"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultClaudeModel = "claude-sonnet-4-5"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Provider Provider
	Model    string
	// APIKey authenticates against the provider's public API. When empty,
	// the provider's conventional environment variable is consulted, and
	// Claude and Gemini fall back to Vertex AI with Project and Region.
	APIKey  string
	Project string
	Region  string
	// BaseURL overrides the API endpoint.
	BaseURL string
	// MaxTokens bounds the reply length (default 4096).
	MaxTokens int64
	// Metrics records token usage and call outcomes. Optional.
	Metrics *metrics.GenAI
}

// NewBackend constructs the backend named by cfg.Provider.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch Provider(strings.ToLower(string(cfg.Provider))) {
	case OpenAI:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if cfg.Model == "" {
			cfg.Model = cmpOr(os.Getenv("OPENAI_MODEL"), DefaultOpenAIModel)
		}
		return NewOpenAI(cfg)
	case Claude:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if cfg.Model == "" {
			cfg.Model = DefaultClaudeModel
		}
		return NewClaude(ctx, cfg)
	case Gemini:
		if cfg.APIKey == "" {
			cfg.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if cfg.Model == "" {
			cfg.Model = DefaultGeminiModel
		}
		return NewGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown semantic provider %q (want openai, claude or gemini)", cfg.Provider)
	}
}

// withDefaults fills the settings every backend constructor relies on.
func (cfg BackendConfig) withDefaults(model string) BackendConfig {
	if cfg.Model == "" {
		cfg.Model = model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewGenAI(metrics.MeterName)
	}
	return cfg
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// retryableStatus reports whether an HTTP status is worth retrying.
func retryableStatus(code int) bool {
	switch code {
	case 408, 409, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

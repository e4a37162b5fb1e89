/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package semantic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/metrics"
	"google.golang.org/genai"
)

type gemini struct {
	client    *genai.Client
	model     string
	maxTokens int32
	metrics   *metrics.GenAI
}

// NewGemini creates a Gemini backend, using the Gemini API with an API key
// or Vertex AI with a project and region.
func NewGemini(ctx context.Context, cfg BackendConfig) (Backend, error) {
	cfg = cfg.withDefaults(DefaultGeminiModel)
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "" && cfg.Region != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Region
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, errors.New("gemini backend needs GEMINI_API_KEY or a Vertex AI project and region")
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &gemini{
		client:    client,
		model:     cfg.Model,
		maxTokens: int32(min(cfg.MaxTokens, 1<<20)),
		metrics:   cfg.Metrics,
	}, nil
}

// Model implements Backend
func (g *gemini) Model() string { return g.model }

// Complete implements Backend
func (g *gemini) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     ptr(float32(0)),
		MaxOutputTokens: g.maxTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
		ResponseMIMEType: "application/json",
	})
	g.metrics.RecordCall(ctx, g.model, err)
	if err != nil {
		if !isRetryableGeminiError(err) {
			err = evidence.Permanent(err)
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	if resp.UsageMetadata != nil {
		g.metrics.RecordTokens(ctx, g.model, int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount))
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no content generated - no candidates")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// isRetryableGeminiError reports rate limit, quota exhaustion and transient
// server errors.
func isRetryableGeminiError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.Code)
	}
	errStr := err.Error()
	return strings.Contains(errStr, "Resource exhausted") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "Overloaded") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "quota exceeded") ||
		strings.Contains(errStr, "Internal error") ||
		strings.Contains(errStr, "server error")
}

func ptr[T any](v T) *T {
	return &v
}

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
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
)

type claude struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	metrics   *metrics.GenAI
}

// NewClaude creates a Claude backend. Without an API key the client
// authenticates to Vertex AI with application default credentials.
func NewClaude(ctx context.Context, cfg BackendConfig) (Backend, error) {
	cfg = cfg.withDefaults(DefaultClaudeModel)
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	switch {
	case cfg.APIKey != "":
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	case cfg.Project != "" && cfg.Region != "":
		opts = append(opts, vertex.WithGoogleAuth(ctx, cfg.Region, cfg.Project))
	default:
		return nil, errors.New("claude backend needs ANTHROPIC_API_KEY or a Vertex AI project and region")
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &claude{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		metrics:   cfg.Metrics,
	}, nil
}

// Model implements Backend
func (c *claude) Model() string { return c.model }

// Complete implements Backend
func (c *claude) Complete(ctx context.Context, system, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{{
			Role:    anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(prompt)},
		}},
	})
	c.metrics.RecordCall(ctx, c.model, err)
	if err != nil {
		if !isRetryableClaudeError(err) {
			err = evidence.Permanent(err)
		}
		return "", fmt.Errorf("claude: %w", err)
	}
	if msg.Usage.InputTokens > 0 || msg.Usage.OutputTokens > 0 {
		c.metrics.RecordTokens(ctx, c.model, msg.Usage.InputTokens, msg.Usage.OutputTokens)
	}

	var sb strings.Builder
	for _, content := range msg.Content {
		if content.Type == "text" {
			sb.WriteString(content.Text)
		}
	}
	return sb.String(), nil
}

// isRetryableClaudeError reports rate limit, overloaded and transient server
// errors, and transport failures that never reached the API.
func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

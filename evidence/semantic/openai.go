/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package semantic

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/rubriceval/evidence"
	"chainguard.dev/rubriceval/metrics"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAI struct {
	client    openai.Client
	model     string
	maxTokens int64
	metrics   *metrics.GenAI
}

// NewOpenAI creates an OpenAI Chat Completions backend.
func NewOpenAI(cfg BackendConfig) (Backend, error) {
	cfg = cfg.withDefaults(DefaultOpenAIModel)
	if cfg.APIKey == "" {
		return nil, errors.New("openai backend needs OPENAI_API_KEY")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAI{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		metrics:   cfg.Metrics,
	}, nil
}

// Model implements Backend
func (o *openAI) Model() string { return o.model }

// Complete implements Backend
func (o *openAI) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(o.model),
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(o.maxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
	})
	o.metrics.RecordCall(ctx, o.model, err)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && !retryableStatus(apiErr.StatusCode) {
			err = evidence.Permanent(err)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	o.metrics.RecordTokens(ctx, o.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

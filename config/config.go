/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config holds the evaluation settings: aggregation weights and
// thresholds, extractor timeout and retry budget, concurrency and the
// semantic backend. Settings come from a YAML file and may be overridden by
// RUBRIC_* environment variables.
package config

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"time"

	"chainguard.dev/rubriceval/aggregate"
	"chainguard.dev/rubriceval/retry"
	"chainguard.dev/rubriceval/rubric"
	"chainguard.dev/rubriceval/source"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultTimeoutMS   = 30000
	DefaultRetryBudget = 2
)

// Config is the evaluation configuration.
type Config struct {
	Weights              map[string]float64 `yaml:"weights,omitempty" json:"weights,omitempty"`
	Thresholds           Thresholds         `yaml:"thresholds" json:"thresholds"`
	ExtractorTimeoutMS   int                `yaml:"extractor_timeout_ms" json:"extractor_timeout_ms"`
	ExtractorRetryBudget int                `yaml:"extractor_retry_budget" json:"extractor_retry_budget"`
	// Concurrency bounds parallel extractor and scorer workers. Zero means
	// one worker per CPU.
	Concurrency int      `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Strict      bool     `yaml:"strict,omitempty" json:"strict,omitempty"`
	Semantic    Semantic `yaml:"semantic,omitempty" json:"semantic,omitempty"`
}

// Semantic configures the optional model-backed matcher. It is disabled
// while Provider is empty.
type Semantic struct {
	Provider    string `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model       string `yaml:"model,omitempty" json:"model,omitempty"`
	Project     string `yaml:"project,omitempty" json:"project,omitempty"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	// BaseURL overrides the provider endpoint, for proxies and gateways.
	BaseURL     string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	ChunkTokens int    `yaml:"chunk_tokens,omitempty" json:"chunk_tokens,omitempty"`
	Parallelism int    `yaml:"parallelism,omitempty" json:"parallelism,omitempty"`
}

// Thresholds accepts either a list of {label, cutoff} items or a mapping
// from label to cutoff. A mapping is ordered by cutoff.
type Thresholds []aggregate.Threshold

// UnmarshalYAML implements yaml.Unmarshaler
func (t *Thresholds) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []aggregate.Threshold
		if err := node.Decode(&list); err != nil {
			return err
		}
		*t = list
		return nil
	case yaml.MappingNode:
		var m map[string]float64
		if err := node.Decode(&m); err != nil {
			return err
		}
		*t = thresholdsFromMap(m)
		return nil
	default:
		return fmt.Errorf("line %d: thresholds must be a list or a mapping", node.Line)
	}
}

func thresholdsFromMap(m map[string]float64) Thresholds {
	out := make(Thresholds, 0, len(m))
	for label, cutoff := range m {
		out = append(out, aggregate.Threshold{Label: label, Cutoff: cutoff})
	}
	slices.SortFunc(out, func(a, b aggregate.Threshold) int {
		if c := cmp.Compare(a.Cutoff, b.Cutoff); c != 0 {
			return c
		}
		return cmp.Compare(a.Label, b.Label)
	})
	return out
}

// Default returns a configuration with every optional field at its default
// and no thresholds.
func Default() Config {
	return Config{
		ExtractorTimeoutMS:   DefaultTimeoutMS,
		ExtractorRetryBudget: DefaultRetryBudget,
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Load reads and parses the configuration at uri.
func Load(ctx context.Context, uri string) (*Config, error) {
	data, err := source.Read(ctx, uri)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Env holds the RUBRIC_* overrides. Unset variables leave the file values
// alone.
type Env struct {
	Thresholds  map[string]float64 `env:"RUBRIC_THRESHOLDS"`
	Weights     map[string]float64 `env:"RUBRIC_WEIGHTS"`
	TimeoutMS   *int               `env:"RUBRIC_EXTRACTOR_TIMEOUT_MS,noinit"`
	RetryBudget *int               `env:"RUBRIC_EXTRACTOR_RETRY_BUDGET,noinit"`
	Concurrency *int               `env:"RUBRIC_CONCURRENCY,noinit"`
	Strict      *bool              `env:"RUBRIC_STRICT,noinit"`
	Provider    string             `env:"RUBRIC_SEMANTIC_PROVIDER"`
	Model       string             `env:"RUBRIC_SEMANTIC_MODEL"`
	Project     string             `env:"RUBRIC_SEMANTIC_PROJECT"`
	Region      string             `env:"RUBRIC_SEMANTIC_REGION"`
	BaseURL     string             `env:"RUBRIC_SEMANTIC_BASE_URL"`
	ChunkTokens *int               `env:"RUBRIC_SEMANTIC_CHUNK_TOKENS,noinit"`
}

// ApplyEnv overlays environment overrides read through l, or the process
// environment when l is nil.
func (c *Config) ApplyEnv(ctx context.Context, l envconfig.Lookuper) error {
	if l == nil {
		l = envconfig.OsLookuper()
	}
	var env Env
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: l}); err != nil {
		return fmt.Errorf("processing environment: %w", err)
	}

	if len(env.Thresholds) > 0 {
		c.Thresholds = thresholdsFromMap(env.Thresholds)
	}
	if len(env.Weights) > 0 {
		c.Weights = env.Weights
	}
	setIf(&c.ExtractorTimeoutMS, env.TimeoutMS)
	setIf(&c.ExtractorRetryBudget, env.RetryBudget)
	setIf(&c.Concurrency, env.Concurrency)
	setIf(&c.Strict, env.Strict)
	setIf(&c.Semantic.ChunkTokens, env.ChunkTokens)
	setString(&c.Semantic.Provider, env.Provider)
	setString(&c.Semantic.Model, env.Model)
	setString(&c.Semantic.Project, env.Project)
	setString(&c.Semantic.Region, env.Region)
	setString(&c.Semantic.BaseURL, env.BaseURL)
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate reports every problem with the configuration. When r is not nil
// weights and thresholds are checked against it.
func (c *Config) Validate(r *rubric.Rubric) error {
	var errs []error
	if c.ExtractorTimeoutMS <= 0 {
		errs = append(errs, fmt.Errorf("extractor_timeout_ms must be positive, got %d", c.ExtractorTimeoutMS))
	}
	if c.ExtractorRetryBudget < 0 || c.ExtractorRetryBudget > retry.MaxBudget {
		errs = append(errs, fmt.Errorf("extractor_retry_budget must be within [0, %d], got %d", retry.MaxBudget, c.ExtractorRetryBudget))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must not be negative, got %d", c.Concurrency))
	}
	if c.Semantic.ChunkTokens < 0 || c.Semantic.Parallelism < 0 {
		errs = append(errs, errors.New("semantic chunk_tokens and parallelism must not be negative"))
	}
	switch c.Semantic.Provider {
	case "", "openai", "claude", "gemini":
	default:
		errs = append(errs, fmt.Errorf("unknown semantic provider %q (want openai, claude or gemini)", c.Semantic.Provider))
	}
	if len(c.Thresholds) == 0 {
		errs = append(errs, errors.New("thresholds are required"))
	} else if r != nil {
		if err := c.AggregateOptions().Validate(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Timeout returns the per-call extractor timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.ExtractorTimeoutMS) * time.Millisecond
}

// AggregateOptions returns the aggregation settings.
func (c *Config) AggregateOptions() aggregate.Options {
	return aggregate.Options{Weights: c.Weights, Thresholds: slices.Clone([]aggregate.Threshold(c.Thresholds))}
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

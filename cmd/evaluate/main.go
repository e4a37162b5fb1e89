/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command evaluate scores planning documents against a rubric.
//
//	evaluate --rubric builtin:fmp --document plan.txt --out report.json
//
// With several --document flags, --out names a directory that receives one
// <name>.json report per document plus scores.json and scores.csv. When a
// semantic backend is configured, raw model replies are written as JSON
// lines to --replies, which defaults to replies.jsonl in the batch directory.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"chainguard.dev/rubriceval/aggregate"
	"chainguard.dev/rubriceval/config"
	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/engine"
	"chainguard.dev/rubriceval/evidence/semantic"
	"chainguard.dev/rubriceval/report"
	"chainguard.dev/rubriceval/rubric"
	"chainguard.dev/rubriceval/rubric/fmp"
	"chainguard.dev/rubriceval/schema"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Exit codes.
const (
	exitOK         = 0
	exitInternal   = 1
	exitUsage      = 2
	exitRubric     = 3
	exitExtraction = 4
	exitIncomplete = 5
	exitCancelled  = 6
)

const builtinPrefix = "builtin:"

type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

type options struct {
	rubric      string
	documents   multiFlag
	names       multiFlag
	hints       multiFlag
	out         string
	replies     string
	config      string
	format      string
	envFile     string
	logLevel    string
	printSchema bool
}

// exitError carries the exit code of a failure that has no typed error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("evaluate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.rubric, "rubric", builtinPrefix+fmp.ID, "rubric definition (file, gs:// or s3:// URI, or builtin:fmp)")
	fs.Var(&opts.documents, "document", "plain-text document to evaluate (repeatable)")
	fs.Var(&opts.names, "name", "display name for the document at the same position (repeatable)")
	fs.Var(&opts.hints, "hints", "structural hints for the document at the same position (repeatable)")
	fs.StringVar(&opts.out, "out", "-", "report file, or output directory for several documents")
	fs.StringVar(&opts.replies, "replies", "", "file receiving raw semantic backend replies as JSON lines")
	fs.StringVar(&opts.config, "config", "", "configuration file (defaults to the built-in rubric's settings)")
	fs.StringVar(&opts.format, "format", "json", "single report format: json, csv or table")
	fs.StringVar(&opts.envFile, "env-file", ".env", "file of environment variables to load when present")
	fs.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&opts.printSchema, "print-schema", false, "print the JSON Schema of the rubric definition and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		fmt.Fprintf(stderr, "invalid --log-level: %v\n", err)
		return exitUsage
	}
	logger := clog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	ctx = clog.WithLogger(ctx, logger)

	if err := evaluate(ctx, opts, stdout); err != nil {
		code := exitCode(err)
		if code == exitUsage {
			fmt.Fprintf(stderr, "evaluate: %v\n", err)
		} else {
			clog.ErrorContextf(ctx, "evaluate: %v", err)
		}
		return code
	}
	return exitOK
}

func exitCode(err error) int {
	var (
		exit       *exitError
		validation *rubric.ValidationError
		unreadable *document.UnreadableError
		extraction *engine.ExtractionError
		incomplete *aggregate.IncompleteAssessmentError
		cancelled  *engine.CancellationError
	)
	switch {
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return exitCancelled
	case errors.As(err, &validation):
		return exitRubric
	case errors.As(err, &unreadable), errors.As(err, &extraction):
		return exitExtraction
	case errors.As(err, &incomplete):
		return exitIncomplete
	case errors.As(err, &exit):
		return exit.code
	default:
		return exitInternal
	}
}

func evaluate(ctx context.Context, opts options, stdout io.Writer) error {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	if opts.printSchema {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(schema.Rubric())
	}
	if len(opts.documents) == 0 {
		return usageErr("at least one --document is required")
	}
	if len(opts.names) > len(opts.documents) || len(opts.hints) > len(opts.documents) {
		return usageErr("more --name or --hints flags than --document flags")
	}
	switch opts.format {
	case "json", "csv", "table":
	default:
		return usageErr("unknown --format %q (want json, csv or table)", opts.format)
	}
	batch := len(opts.documents) > 1
	if batch && (opts.out == "" || opts.out == "-") {
		return usageErr("--out must name a directory when evaluating several documents")
	}

	r, err := loadRubric(ctx, opts.rubric)
	if err != nil {
		return err
	}
	for _, w := range r.Warnings() {
		clog.FromContext(ctx).With("rubric", r.ID()).Warn(w.String())
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(r); err != nil {
		return &exitError{code: exitUsage, err: fmt.Errorf("invalid configuration: %w", err)}
	}

	replies := opts.replies
	if replies == "" && batch {
		replies = filepath.Join(opts.out, "replies.jsonl")
	}
	var sink io.Writer
	if cfg.Semantic.Provider != "" && replies != "" {
		if err := os.MkdirAll(filepath.Dir(replies), 0o755); err != nil {
			return err
		}
		f, err := os.Create(replies)
		if err != nil {
			return &exitError{code: exitUsage, err: err}
		}
		defer f.Close()
		sink = f
	}

	e, err := newEngine(ctx, cfg, sink)
	if err != nil {
		return err
	}

	reports := make([]*report.Report, len(opts.documents))
	eg, egCtx := errgroup.WithContext(ctx)
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	eg.SetLimit(limit)
	for i, uri := range opts.documents {
		eg.Go(func() error {
			doc, err := document.Load(egCtx, uri, document.LoadOptions{
				Name:     at(opts.names, i),
				HintsURI: at(opts.hints, i),
			})
			if err != nil {
				var unreadable *document.UnreadableError
				if errors.As(err, &unreadable) {
					return err
				}
				return &exitError{code: exitUsage, err: err}
			}
			ev, err := e.Evaluate(egCtx, r, doc)
			if err != nil {
				return fmt.Errorf("%s: %w", doc.Name(), err)
			}
			reports[i] = report.New(ev)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	if batch {
		return writeBatch(opts.out, reports, stdout)
	}
	return writeSingle(opts.out, opts.format, reports[0], stdout)
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

func loadRubric(ctx context.Context, uri string) (*rubric.Rubric, error) {
	if id, ok := strings.CutPrefix(uri, builtinPrefix); ok {
		if id != fmp.ID {
			return nil, usageErr("unknown built-in rubric %q", id)
		}
		return fmp.Rubric()
	}
	r, err := rubric.LoadFile(ctx, uri)
	if err != nil {
		var validation *rubric.ValidationError
		if errors.As(err, &validation) {
			return nil, err
		}
		return nil, &exitError{code: exitUsage, err: fmt.Errorf("loading rubric: %w", err)}
	}
	return r, nil
}

func loadConfig(ctx context.Context, opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.config != "":
		cfg, err = config.Load(ctx, opts.config)
	case opts.rubric == builtinPrefix+fmp.ID:
		cfg, err = config.Parse(fmp.Config())
	default:
		def := config.Default()
		cfg = &def
	}
	if err != nil {
		return nil, &exitError{code: exitUsage, err: err}
	}
	if err := cfg.ApplyEnv(ctx, nil); err != nil {
		return nil, &exitError{code: exitUsage, err: err}
	}
	return cfg, nil
}

func newEngine(ctx context.Context, cfg *config.Config, replies io.Writer) (*engine.Engine, error) {
	eopts := []engine.Option{
		engine.WithTimeout(cfg.Timeout()),
		engine.WithRetryBudget(cfg.ExtractorRetryBudget),
		engine.WithAggregateOptions(cfg.AggregateOptions()),
		engine.WithStrict(cfg.Strict),
		engine.WithConcurrency(cfg.Concurrency),
	}
	if cfg.Semantic.Provider != "" {
		backend, err := semantic.NewBackend(ctx, semantic.BackendConfig{
			Provider: semantic.Provider(cfg.Semantic.Provider),
			Model:    cfg.Semantic.Model,
			Project:  cfg.Semantic.Project,
			Region:   cfg.Semantic.Region,
			BaseURL:  cfg.Semantic.BaseURL,
		})
		if err != nil {
			return nil, &exitError{code: exitExtraction, err: fmt.Errorf("semantic backend: %w", err)}
		}
		clog.InfoContextf(ctx, "Using %s semantic backend with model %s", cfg.Semantic.Provider, backend.Model())
		eopts = append(eopts, engine.WithSemantic(semantic.New(backend,
			semantic.WithChunkTokens(cfg.Semantic.ChunkTokens),
			semantic.WithParallelism(cfg.Semantic.Parallelism),
			semantic.WithReplySink(replies))))
	}
	e, err := engine.New(eopts...)
	if err != nil {
		return nil, &exitError{code: exitUsage, err: err}
	}
	return e, nil
}

func writeSingle(out, format string, rep *report.Report, stdout io.Writer) (err error) {
	w := stdout
	if out != "" && out != "-" {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return err
		}
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	switch format {
	case "csv":
		return report.WriteCSV(w, []*report.Report{rep})
	case "table":
		return rep.Render(w)
	default:
		return rep.WriteJSON(w)
	}
}

func writeBatch(dir string, reports []*report.Report, stdout io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for i, name := range reportNames(reports) {
		if err := writeFile(filepath.Join(dir, name+".json"), reports[i].WriteJSON); err != nil {
			return err
		}
	}
	if err := writeFile(filepath.Join(dir, "scores.json"), func(w io.Writer) error {
		return report.WriteScoresJSON(w, reports)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "scores.csv"), func(w io.Writer) error {
		return report.WriteCSV(w, reports)
	}); err != nil {
		return err
	}
	return report.RenderSummary(stdout, reports)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

// reserved names are the batch outputs that reports must not overwrite.
var reserved = map[string]bool{"scores": true, "replies": true}

// reportNames returns a distinct file name stem per report. A stem that is
// reserved or already taken gets the first free _N suffix.
func reportNames(reports []*report.Report) []string {
	taken := make(map[string]bool, len(reports))
	for _, rep := range reports {
		taken[fileName(rep.Document)] = true
	}
	used := maps.Clone(reserved)
	out := make([]string, len(reports))
	for i, rep := range reports {
		stem := fileName(rep.Document)
		name := stem
		for n := 2; used[name] || (name != stem && taken[name]); n++ {
			name = fmt.Sprintf("%s_%d", stem, n)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// fileName turns a display name into a file name stem.
func fileName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case sb.Len() > 0 && !strings.HasSuffix(sb.String(), "_"):
			sb.WriteByte('_')
		}
	}
	out := strings.TrimSuffix(sb.String(), "_")
	if out == "" {
		return "document"
	}
	return out
}

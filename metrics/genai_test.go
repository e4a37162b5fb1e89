/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type recordingCounter struct {
	noop.Int64Counter
	total int64
	attrs []attribute.KeyValue
}

func (r *recordingCounter) Add(_ context.Context, incr int64, opts ...metric.AddOption) {
	r.total += incr
	set := metric.NewAddConfig(opts).Attributes()
	r.attrs = set.ToSlice()
}

func TestRecordTokens(t *testing.T) {
	prompt, completion := &recordingCounter{}, &recordingCounter{}
	m := NewGenAI(MeterName)
	m.promptTokens, m.completionTokens = prompt, completion
	m.SetAttributeEnricher(func(_ context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		return append(base, attribute.String("rubric", "fmp"))
	})

	m.RecordTokens(context.Background(), "claude-sonnet-4", 120, 30, attribute.String("signal", "funding_sources"))

	if prompt.total != 120 || completion.total != 30 {
		t.Errorf("tokens = %d/%d, wanted = 120/30", prompt.total, completion.total)
	}
	got := attribute.NewSet(prompt.attrs...)
	for _, kv := range []attribute.KeyValue{
		attribute.String("model", "claude-sonnet-4"),
		attribute.String("rubric", "fmp"),
		attribute.String("signal", "funding_sources"),
	} {
		if v, ok := got.Value(kv.Key); !ok || v != kv.Value {
			t.Errorf("attribute %s = %v, wanted = %v", kv.Key, v, kv.Value)
		}
	}
}

func TestRecordCall(t *testing.T) {
	calls := &recordingCounter{}
	m := NewGenAI(MeterName)
	m.calls = calls

	m.RecordCall(context.Background(), "gpt-4o", errors.New("503"))
	if calls.total != 1 {
		t.Fatalf("calls = %d, wanted = 1", calls.total)
	}
	set := attribute.NewSet(calls.attrs...)
	if v, _ := set.Value("outcome"); v.AsString() != "error" {
		t.Errorf("outcome = %q, wanted = error", v.AsString())
	}
}

func TestNilGenAI(t *testing.T) {
	var m *GenAI
	// Neither call may panic.
	m.RecordTokens(context.Background(), "gpt-4o", 1, 1)
	m.RecordCall(context.Background(), "gpt-4o", nil)
}

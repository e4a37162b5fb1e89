/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"

	"chainguard.dev/rubriceval/aggregate"
	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/engine"
	"chainguard.dev/rubriceval/report"
	"chainguard.dev/rubriceval/rubric/fmp"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const plan = `# Oakland Facilities Plan

A facility condition assessment scored every campus with a facility condition index.
HVAC replacement is due at three sites and the roof condition at Hoover is poor.
The enrollment projection uses the cohort survival method.
Funding sources include a general obligation bond of $300 million.
`

func evaluate(t *testing.T, name, text string) *report.Report {
	t.Helper()
	r, err := fmp.Rubric()
	require.NoError(t, err)
	doc, err := document.New(name, text, nil)
	require.NoError(t, err)
	e, err := engine.New(engine.WithAggregateOptions(aggregate.Options{Thresholds: []aggregate.Threshold{
		{Label: "Developing", Cutoff: 0},
		{Label: "Sufficient", Cutoff: 0.5},
	}}))
	require.NoError(t, err)
	ev, err := e.Evaluate(context.Background(), r, doc)
	require.NoError(t, err)
	return report.New(ev)
}

func TestNew(t *testing.T) {
	rep := evaluate(t, "Oakland", plan)

	if rep.Document != "Oakland" || rep.Rubric != fmp.ID || rep.RunID == "" {
		t.Errorf("report header = %q %q %q", rep.Document, rep.Rubric, rep.RunID)
	}
	require.Len(t, rep.Criteria, 7)
	require.Len(t, rep.Audit, 7)

	inv := rep.Criteria[0]
	if inv.ID != "facility_inventory" || inv.Score < 2 {
		t.Errorf("facility_inventory = %+v", inv)
	}
	// Rationale evidence carries snippets from the document.
	var snippets []string
	for _, cl := range inv.Rationale {
		for _, e := range cl.Evidence {
			snippets = append(snippets, e.Snippet)
		}
	}
	require.NotEmpty(t, snippets)
	for _, s := range snippets {
		if !strings.Contains(plan, s) {
			t.Errorf("snippet %q not from the document", s)
		}
	}
}

func TestWriteJSONStable(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, evaluate(t, "Oakland", plan).WriteJSON(&a))
	require.NoError(t, evaluate(t, "Oakland", plan).WriteJSON(&b))
	if diff := cmp.Diff(a.String(), b.String()); diff != "" {
		t.Errorf("reports differ (-first +second):\n%s", diff)
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(a.Bytes(), &decoded))
	for _, key := range []string{"run_id", "composite_score", "overall_label", "criteria", "statistics", "audit"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("JSON report has no %q", key)
		}
	}
}

func TestWriteCSV(t *testing.T) {
	reports := []*report.Report{
		evaluate(t, "Oakland", plan),
		evaluate(t, "Empty District", "Nothing to see here."),
	}
	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, reports))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	if got, want := len(rows[0]), 1+2*7+2; got != want {
		t.Fatalf("header has %d columns, wanted %d", got, want)
	}
	if rows[0][1] != "facility_inventory" || rows[0][2] != "facility_inventory - why" {
		t.Errorf("header = %v", rows[0][:3])
	}
	empty := rows[2]
	if empty[0] != "Empty District" || empty[1] != "1" || !strings.Contains(empty[2], "no band requirements met") {
		t.Errorf("empty row = %v", empty[:3])
	}
	if empty[len(empty)-2] != "0.0000" || empty[len(empty)-1] != "Developing" {
		t.Errorf("empty composite = %v", empty[len(empty)-2:])
	}

	if err := report.WriteCSV(&buf, nil); err == nil {
		t.Error("WriteCSV(nil) = nil error")
	}
}

func TestScores(t *testing.T) {
	rep := evaluate(t, "Oakland", plan)
	scores := report.Scores([]*report.Report{rep})
	require.Len(t, scores, 1)
	if scores[0].Scores["facility_inventory"] != rep.Criteria[0].Score {
		t.Errorf("Scores = %+v", scores[0])
	}
	var buf bytes.Buffer
	require.NoError(t, report.WriteScoresJSON(&buf, []*report.Report{rep}))
	require.Contains(t, buf.String(), `"document": "Oakland"`)
}

func TestRender(t *testing.T) {
	rep := evaluate(t, "Oakland", plan)
	var buf bytes.Buffer
	require.NoError(t, rep.Render(&buf))
	out := buf.String()
	for _, s := range []string{"## Oakland: K-12 Facility Master Plan Rubric", "Climate Risk & Mitigation", "**Composite:**"} {
		if !strings.Contains(out, s) {
			t.Errorf("Render() output does not contain %q:\n%s", s, out)
		}
	}

	buf.Reset()
	require.NoError(t, report.RenderSummary(&buf, []*report.Report{rep}))
	require.Contains(t, buf.String(), "Oakland")
}

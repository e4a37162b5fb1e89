/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

// newTable creates a markdown table with the formatting shared by every
// rendering.
func newTable(headers []string, w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 120,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{
				Left:   tw.On,
				Top:    tw.Off,
				Right:  tw.On,
				Bottom: tw.Off,
			},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// Render writes the per-criterion table of r followed by its composite.
func (r *Report) Render(w io.Writer) error {
	fmt.Fprintf(w, "## %s: %s\n\n", r.Document, r.RubricName)

	table := newTable([]string{"Criterion", "Score", "Label", "Confidence", "Normalized", "Notes"}, w)
	for _, c := range r.Criteria {
		var notes []string
		if c.Path != "" {
			notes = append(notes, "path "+c.Path)
		}
		if c.Borderline {
			notes = append(notes, "borderline")
		}
		if c.Fallback {
			notes = append(notes, "floor")
		}
		if len(c.Unavailable) > 0 {
			notes = append(notes, "⚠️ unavailable: "+strings.Join(c.Unavailable, ", "))
		}
		if err := table.Append([]string{
			c.Name,
			fmt.Sprintf("%d/%d", c.Score, c.Max),
			c.Label,
			fmt.Sprintf("%.2f", c.Confidence),
			fmt.Sprintf("%.2f", c.Normalized),
			strings.Join(notes, "; "),
		}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n**Composite:** %.3f (%s)\n", r.CompositeScore, r.OverallLabel)
	return err
}

// RenderSummary writes one row per report.
func RenderSummary(w io.Writer, reports []*Report) error {
	if len(reports) == 0 {
		return nil
	}
	headers := []string{"Document"}
	for _, c := range reports[0].Criteria {
		headers = append(headers, c.ID)
	}
	headers = append(headers, "Composite", "Label")

	table := newTable(headers, w)
	for _, r := range reports {
		row := []string{r.Document}
		for _, c := range r.Criteria {
			row = append(row, fmt.Sprintf("%d", c.Score))
		}
		row = append(row, fmt.Sprintf("%.3f", r.CompositeScore), r.OverallLabel)
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

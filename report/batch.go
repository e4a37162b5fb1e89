/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Score is one document's row of the batch summary.
type Score struct {
	Document       string         `json:"document"`
	RunID          string         `json:"run_id"`
	CompositeScore float64        `json:"composite_score"`
	OverallLabel   string         `json:"overall_label"`
	Scores         map[string]int `json:"scores"`
}

// Scores summarizes reports for the batch scores.json.
func Scores(reports []*Report) []Score {
	out := make([]Score, 0, len(reports))
	for _, r := range reports {
		s := Score{
			Document:       r.Document,
			RunID:          r.RunID,
			CompositeScore: r.CompositeScore,
			OverallLabel:   r.OverallLabel,
			Scores:         make(map[string]int, len(r.Criteria)),
		}
		for _, c := range r.Criteria {
			s.Scores[c.ID] = c.Score
		}
		out = append(out, s)
	}
	return out
}

// WriteScoresJSON writes the batch summary as indented JSON.
func WriteScoresJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Scores(reports))
}

// WriteCSV writes one row per report: the document, a score and a
// justification column per criterion, then the composite and label. All
// reports must come from the same rubric.
func WriteCSV(w io.Writer, reports []*Report) error {
	if len(reports) == 0 {
		return errors.New("no reports to write")
	}
	first := reports[0]
	header := []string{"document"}
	for _, c := range first.Criteria {
		header = append(header, c.ID, c.ID+" - why")
	}
	header = append(header, "composite_score", "overall_label")

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range reports {
		if r.RubricHash != first.RubricHash || len(r.Criteria) != len(first.Criteria) {
			return fmt.Errorf("report for %s uses a different rubric", r.Document)
		}
		row := []string{r.Document}
		for _, c := range r.Criteria {
			row = append(row, strconv.Itoa(c.Score), c.Justification())
		}
		row = append(row, strconv.FormatFloat(r.CompositeScore, 'f', 4, 64), r.OverallLabel)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Evaluation outcomes used as the outcome label.
const (
	OutcomeComplete   = "complete"
	OutcomeCancelled  = "cancelled"
	OutcomeIncomplete = "incomplete"
	OutcomeExtraction = "extraction_failed"
	OutcomeError      = "error"
)

var (
	evaluationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rubric_evaluations_total",
			Help: "Total number of rubric evaluations by outcome",
		},
		[]string{"outcome"},
	)

	unavailableCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rubric_extraction_unavailable_total",
			Help: "Signal categories whose extractor was unavailable after retries",
		},
		[]string{"signal"},
	)

	normalizedGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rubric_criterion_normalized_score",
			Help: "Most recent normalized score (0.0-1.0) per criterion",
		},
		[]string{"rubric", "criterion"},
	)
)

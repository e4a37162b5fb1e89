/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

// Definition is the serialized form of a rubric, as authored in YAML or JSON.
type Definition struct {
	// ID identifies the rubric, e.g. "fmp".
	ID string `yaml:"id" json:"id" jsonschema:"required"`

	// Name is the human-readable rubric title.
	Name string `yaml:"name" json:"name,omitempty"`

	// Signals is the catalog of signal categories descriptors may reference.
	Signals []SignalDefinition `yaml:"signals" json:"signals" jsonschema:"required"`

	// Criteria are the scored dimensions, in presentation order.
	Criteria []CriterionDefinition `yaml:"criteria" json:"criteria" jsonschema:"required"`
}

// SignalDefinition declares one signal category and how evidence for it is found.
type SignalDefinition struct {
	ID          string              `yaml:"id" json:"id" jsonschema:"required"`
	Description string              `yaml:"description" json:"description,omitempty"`
	Lexical     *LexicalDefinition  `yaml:"lexical,omitempty" json:"lexical,omitempty"`
	Numeric     *NumericDefinition  `yaml:"numeric,omitempty" json:"numeric,omitempty"`
	Semantic    *SemanticDefinition `yaml:"semantic,omitempty" json:"semantic,omitempty"`
}

// LexicalDefinition lists phrases per strength. A phrase prefixed with "re:"
// is used as a case-insensitive regular expression instead of a literal.
type LexicalDefinition struct {
	Strong   []string `yaml:"strong,omitempty" json:"strong,omitempty"`
	Moderate []string `yaml:"moderate,omitempty" json:"moderate,omitempty"`
	Weak     []string `yaml:"weak,omitempty" json:"weak,omitempty"`
}

// NumericDefinition describes quantified figures: a number followed by one of
// Units. Context terms near the figure upgrade it to strong evidence.
type NumericDefinition struct {
	Units   []string `yaml:"units" json:"units" jsonschema:"required"`
	Context []string `yaml:"context,omitempty" json:"context,omitempty"`
}

// SemanticDefinition is the query handed to an external semantic backend.
type SemanticDefinition struct {
	Query string `yaml:"query" json:"query" jsonschema:"required"`
}

// CriterionDefinition is one scored dimension.
type CriterionDefinition struct {
	ID    string           `yaml:"id" json:"id" jsonschema:"required"`
	Name  string           `yaml:"name" json:"name,omitempty"`
	Goal  string           `yaml:"goal" json:"goal,omitempty"`
	Scale []int            `yaml:"scale" json:"scale" jsonschema:"required"`
	Bands []BandDefinition `yaml:"bands" json:"bands" jsonschema:"required"`
}

// BandDefinition is one score level. Required and Paths are mutually
// exclusive: Required is shorthand for a single unnamed path.
type BandDefinition struct {
	Score       int              `yaml:"score" json:"score"`
	Label       string           `yaml:"label" json:"label" jsonschema:"required"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Required    []Descriptor     `yaml:"required,omitempty" json:"required,omitempty"`
	Paths       []PathDefinition `yaml:"paths,omitempty" json:"paths,omitempty"`
	Optional    []Descriptor     `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// PathDefinition is one alternative set of required descriptors.
type PathDefinition struct {
	Name     string       `yaml:"name" json:"name" jsonschema:"required"`
	Required []Descriptor `yaml:"required" json:"required" jsonschema:"required"`
}

// Descriptor is a testable requirement: at least MinEvidence counted pieces of
// evidence for the signal category.
type Descriptor struct {
	Signal      string `yaml:"signal_category" json:"signal_category" jsonschema:"required"`
	MinEvidence int    `yaml:"min_evidence" json:"min_evidence" jsonschema:"required,minimum=1"`
}

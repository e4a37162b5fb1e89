/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rubric

import (
	"fmt"
	"strings"
)

// Strength classifies how specific a piece of evidence is.
// The zero value is not a valid strength.
type Strength int

const (
	// Weak is a topical mention without supporting detail.
	Weak Strength = iota + 1
	// Moderate is a categorical keyword match without quantification.
	Moderate
	// Strong is an exact structural match such as a quantified figure with
	// units or a named methodology term.
	Strong
)

// Strengths lists every valid strength from weakest to strongest.
var Strengths = []Strength{Weak, Moderate, Strong}

// String implements fmt.Stringer
func (s Strength) String() string {
	switch s {
	case Weak:
		return "weak"
	case Moderate:
		return "moderate"
	case Strong:
		return "strong"
	default:
		return fmt.Sprintf("strength(%d)", int(s))
	}
}

// Valid reports whether s is one of the declared strengths.
func (s Strength) Valid() bool {
	return s >= Weak && s <= Strong
}

// ParseStrength parses the textual form of a strength, ignoring case.
func ParseStrength(s string) (Strength, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weak":
		return Weak, nil
	case "moderate":
		return Moderate, nil
	case "strong":
		return Strong, nil
	default:
		return 0, fmt.Errorf("unknown strength %q (expected weak, moderate or strong)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (s Strength) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid %s", s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Strength) UnmarshalText(text []byte) error {
	v, err := ParseStrength(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

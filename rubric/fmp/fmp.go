/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fmp ships the built-in rubric for scoring K-12 facility master
// plans along with its default evaluation settings.
package fmp

import (
	_ "embed"
	"sync"

	"chainguard.dev/rubriceval/rubric"
	"gopkg.in/yaml.v3"
)

// ID is the identifier the command line accepts as "builtin:fmp".
const ID = "fmp"

var (
	//go:embed fmp.yaml
	definition []byte

	//go:embed config.yaml
	config []byte

	load = sync.OnceValues(func() (*rubric.Rubric, error) {
		return rubric.Parse(definition)
	})
)

// Rubric returns the parsed built-in rubric. The result is shared.
func Rubric() (*rubric.Rubric, error) {
	return load()
}

// Definition returns a fresh decoded copy of the built-in definition.
func Definition() (rubric.Definition, error) {
	var def rubric.Definition
	err := yaml.Unmarshal(definition, &def)
	return def, err
}

// Source returns the raw definition bytes.
func Source() []byte {
	return append([]byte(nil), definition...)
}

// Config returns the raw default configuration for the rubric.
func Config() []byte {
	return append([]byte(nil), config...)
}

/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package schema derives JSON Schemas for the rubric definition format, the
// document hints format and the semantic backend response.
package schema

import (
	"chainguard.dev/rubriceval/document"
	"chainguard.dev/rubriceval/rubric"
	"github.com/invopop/jsonschema"
)

// Generator wraps jsonschema.Reflector with project defaults.
type Generator struct {
	reflector jsonschema.Reflector
}

// Option configures a Generator.
type Option func(*Generator)

// Strict rejects properties that are not declared, matching the strict
// decoding of rubric and hints files.
func Strict() Option {
	return func(g *Generator) { g.reflector.AllowAdditionalProperties = false }
}

// NewGenerator constructs a generator wired with the defaults we need for
// prompt and file schemas.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		reflector: jsonschema.Reflector{
			RequiredFromJSONSchemaTags: true,
			ExpandedStruct:             true,
			AllowAdditionalProperties:  true,
			DoNotReference:             true,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Reflect returns the JSON schema for the provided value.
func (g *Generator) Reflect(v any) *jsonschema.Schema {
	return g.reflector.Reflect(v)
}

// Reflect derives the JSON schema for the provided value using a default generator.
func Reflect(v any) *jsonschema.Schema {
	return NewGenerator().Reflect(v)
}

// ReflectType allocates a zero value of T and reflects it to a schema.
func ReflectType[T any]() *jsonschema.Schema {
	var zero T
	return Reflect(&zero)
}

// Rubric returns the schema of the rubric definition format.
func Rubric() *jsonschema.Schema {
	s := NewGenerator(Strict()).Reflect(&rubric.Definition{})
	s.Title = "Rubric definition"
	return s
}

// Hints returns the schema of the document hints format.
func Hints() *jsonschema.Schema {
	s := NewGenerator(Strict()).Reflect(&document.Hints{})
	s.Title = "Document hints"
	return s
}

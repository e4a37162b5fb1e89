/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package semantic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Response is the JSON document a backend must return for one chunk.
type Response struct {
	Matches []Match `json:"matches" jsonschema:"required,description=Passages from the excerpt that are evidence for the signal. Empty when there are none."`
}

// Match is one passage the backend considers evidence.
type Match struct {
	Quote    string `json:"quote" jsonschema:"required,description=The passage copied verbatim from the excerpt"`
	Strength string `json:"strength" jsonschema:"required,enum=strong,enum=moderate,enum=weak,description=strong for quantified or methodology-specific statements; moderate for specific but unquantified statements; weak for passing mentions"`
}

// ExtractJSON extracts the JSON object from a model reply. It accepts a
// ```json fenced block, a bare fenced block, or an object surrounded by
// prose, in which case the last balanced top-level object wins.
func ExtractJSON(reply string) string {
	lines := strings.Split(reply, "\n")
	var (
		buf     bytes.Buffer
		inBlock bool
		found   bool
	)
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !inBlock && (trimmed == "```json" || trimmed == "```JSON") {
			inBlock, found = true, true
			continue
		}
		if inBlock && trimmed == "```" {
			break
		}
		if inBlock {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
		}
	}
	if found {
		return strings.TrimSpace(buf.String())
	}

	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")
	reply = strings.TrimSpace(reply)
	if json.Valid([]byte(reply)) {
		return reply
	}
	if obj, ok := lastObject(reply); ok {
		return obj
	}
	return reply
}

// lastObject returns the last balanced {...} in s, honoring JSON strings.
func lastObject(s string) (string, bool) {
	var (
		depth    int
		start    = -1
		inString bool
		escaped  bool
		last     string
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				last = s[start : i+1]
			}
		}
	}
	return last, last != ""
}

// ParseResponse decodes a model reply into a Response.
func ParseResponse(reply string) (*Response, error) {
	content := ExtractJSON(reply)
	if content == "" {
		return nil, errors.New("model returned empty output")
	}
	var r Response
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return nil, fmt.Errorf("decoding model reply: %w", err)
	}
	return &r, nil
}

// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
)

type Severity string

const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

type Status string

const (
	StatusApproved         Status = "APPROVED"
	StatusNeedsImprovement Status = "NEEDS_IMPROVEMENT"
	StatusRejected         Status = "REJECTED"
)

const (
	MinScore = 0
	MaxScore = 100
)

type Issue struct {
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Critique is the parsed review of one artifact.
type Critique struct {
	TargetRole      role.Role `json:"target_role"`
	Strengths       []string  `json:"strengths"`
	Issues          []Issue   `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	Status          Status    `json:"status"`
	Score           int       `json:"score"`
}

// Count returns the number of issues with severity s.
func (c Critique) Count(s Severity) int {
	n := 0
	for _, is := range c.Issues {
		if is.Severity == s {
			n++
		}
	}
	return n
}

// payload is the JSON object the critic must answer with.
type payload struct {
	Strengths       []string       `json:"strengths" jsonschema:"description=Specific strengths of the output"`
	Issues          []issuePayload `json:"issues" jsonschema:"description=Problems found with their severity"`
	Recommendations []string       `json:"recommendations" jsonschema:"description=Specific and actionable recommendations"`
	Status          string         `json:"status" jsonschema:"enum=APPROVED,enum=NEEDS_IMPROVEMENT,enum=REJECTED"`
	Score           *int           `json:"score" jsonschema:"minimum=0,maximum=100,description=Overall quality score"`
}

type issuePayload struct {
	Severity    string `json:"severity" jsonschema:"enum=HIGH,enum=MEDIUM,enum=LOW"`
	Description string `json:"description" jsonschema:"minLength=1"`
}

// ParseCritique parses a critic answer. The answer must hold one JSON object,
// bare or in a fenced code block; any deviation is a malformed response.
func ParseCritique(target role.Role, text string) (Critique, error) {
	op := "parse critique of " + string(target)
	raw := extractJSON(text)
	if raw == "" {
		return Critique{}, llm.Errorf(llm.KindMalformedResponse, op, "no JSON object in critic output")
	}

	var p payload
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&p); err != nil {
		return Critique{}, llm.NewError(llm.KindMalformedResponse, op, err)
	}

	if p.Score == nil {
		return Critique{}, llm.Errorf(llm.KindMalformedResponse, op, "missing score")
	}
	if *p.Score < MinScore || *p.Score > MaxScore {
		return Critique{}, llm.Errorf(llm.KindMalformedResponse, op, "score %d out of range [%d,%d]", *p.Score, MinScore, MaxScore)
	}
	status, err := parseStatus(p.Status)
	if err != nil {
		return Critique{}, llm.NewError(llm.KindMalformedResponse, op, err)
	}
	if p.Strengths == nil || p.Issues == nil || p.Recommendations == nil {
		return Critique{}, llm.Errorf(llm.KindMalformedResponse, op, "strengths, issues and recommendations are required")
	}

	c := Critique{
		TargetRole:      target,
		Strengths:       nonEmpty(p.Strengths),
		Issues:          make([]Issue, 0, len(p.Issues)),
		Recommendations: nonEmpty(p.Recommendations),
		Status:          status,
		Score:           *p.Score,
	}
	for i, is := range p.Issues {
		sev, err := parseSeverity(is.Severity)
		if err != nil {
			return Critique{}, llm.Errorf(llm.KindMalformedResponse, op, "issue %d: %v", i, err)
		}
		desc := strings.TrimSpace(is.Description)
		if desc == "" {
			return Critique{}, llm.Errorf(llm.KindMalformedResponse, op, "issue %d: empty description", i)
		}
		c.Issues = append(c.Issues, Issue{Severity: sev, Description: desc})
	}
	return c, nil
}

func normalizeEnum(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func parseStatus(s string) (Status, error) {
	switch st := Status(normalizeEnum(s)); st {
	case StatusApproved, StatusNeedsImprovement, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

func parseSeverity(s string) (Severity, error) {
	switch sev := Severity(normalizeEnum(s)); sev {
	case SeverityHigh, SeverityMedium, SeverityLow:
		return sev, nil
	}
	return "", fmt.Errorf("invalid severity %q", s)
}

func nonEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// extractJSON returns the JSON object in text: the body of a ```json (or
// bare ```) fence, else the first balanced {...}. It returns "" if none.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			return objectIn(text[start : start+end])
		}
	}
	if idx := strings.Index(text, "```"); idx != -1 {
		start := idx + 3
		if nl := strings.Index(text[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(text[start:], "```"); end != -1 {
			return objectIn(text[start : start+end])
		}
	}
	return objectIn(text)
}

func objectIn(text string) string {
	idx := strings.IndexByte(text, '{')
	if idx == -1 {
		return ""
	}
	return balancedObject(text, idx)
}

// balancedObject returns the object starting at text[idx], skipping braces
// inside strings, or "" when it is not closed.
func balancedObject(text string, idx int) string {
	depth := 0
	inString := false
	escaped := false
	for i := idx; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[idx : i+1]
			}
		}
	}
	return ""
}

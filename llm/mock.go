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

package llm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
)

// Reply produces a scripted answer. n counts earlier calls for the same role.
type Reply func(n int, req Request) (string, error)

// Text always answers s.
func Text(s string) Reply {
	return func(int, Request) (string, error) { return s, nil }
}

// Fail always answers err.
func Fail(err error) Reply {
	return func(int, Request) (string, error) { return "", err }
}

// Sequence answers with the n-th reply, repeating the last one.
func Sequence(replies ...Reply) Reply {
	return func(n int, req Request) (string, error) {
		if len(replies) == 0 {
			return "", nil
		}
		if n >= len(replies) {
			n = len(replies) - 1
		}
		return replies[n](n, req)
	}
}

// AnyRole is the script key used when a role has no entry of its own.
const AnyRole = "*"

var _ Completer = (*ScriptedCompleter)(nil)

// ScriptedCompleter is a deterministic collaborator keyed by Request.Role.
// It records every request it receives.
type ScriptedCompleter struct {
	mu     sync.Mutex
	script map[string]Reply
	counts map[string]int
	calls  []Request
}

func NewScriptedCompleter(script map[string]Reply) *ScriptedCompleter {
	return &ScriptedCompleter{
		script: script,
		counts: make(map[string]int),
	}
}

func (s *ScriptedCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, Classify("scripted complete", err)
	}
	s.mu.Lock()
	reply, ok := s.script[req.Role]
	if !ok {
		reply, ok = s.script[AnyRole]
	}
	n := s.counts[req.Role]
	s.counts[req.Role]++
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	if !ok {
		return Response{}, fmt.Errorf("scripted complete: no reply for role %q", req.Role)
	}
	out, err := reply(n, req)
	if err != nil {
		return Response{}, err
	}
	return Response{Content: out, FinishReason: "stop"}, nil
}

// Calls returns the recorded requests in arrival order.
func (s *ScriptedCompleter) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}

// CallsFor returns the recorded requests issued by role.
func (s *ScriptedCompleter) CallsFor(role string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, c := range s.calls {
		if c.Role == role {
			out = append(out, c)
		}
	}
	return out
}

// DemoCritique is the critique the default script answers with.
const DemoCritique = `{
  "strengths": ["Clear structure", "Grounded in the stated idea"],
  "issues": [
    {"severity": "MEDIUM", "description": "Success metrics lack concrete targets"},
    {"severity": "LOW", "description": "Some sections could be more concise"}
  ],
  "recommendations": ["Add numeric targets to every metric", "Trim repeated background"],
  "status": "NEEDS_IMPROVEMENT",
  "score": 74
}`

// DefaultScript answers every built-in role with deterministic text, for
// offline runs and demos.
func DefaultScript() map[string]Reply {
	return map[string]Reply{
		"critic":   Text(DemoCritique),
		"improver": demoImprove,
		AnyRole:    demoProduce,
	}
}

func demoProduce(_ int, req Request) (string, error) {
	idea := lineAfter(req.User, "IDEA:")
	if idea == "" {
		idea = "the product"
	}
	title := fmt.Sprintf("%s deliverable", strings.ToUpper(req.Role))
	if req.Role == "ceo" {
		title = strings.TrimSuffix(idea, ".")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "Draft by the %s for: %s\n\n", req.Role, idea)
	fmt.Fprintf(&sb, "- Reference %x\n", sha256.Sum256([]byte(req.User)))
	return sb.String(), nil
}

func demoImprove(_ int, req Request) (string, error) {
	original := between(req.User, "ORIGINAL OUTPUT:", "CRITIC FEEDBACK:")
	if original == "" {
		original = "# Improved deliverable"
	}
	return original + "\n\n## Changes\n- Added numeric targets to the success metrics\n", nil
}

func lineAfter(s, marker string) string {
	for _, line := range strings.Split(s, "\n") {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), marker); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

func between(s, start, end string) string {
	_, rest, ok := strings.Cut(s, start)
	if !ok {
		return ""
	}
	body, _, _ := strings.Cut(rest, end)
	return strings.TrimSpace(body)
}

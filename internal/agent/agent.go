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

// Package agent binds a persona to the language model collaborator.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
	"github.com/cloudwego/flowmaster/llm/prompt"
	"github.com/cloudwego/flowmaster/llm/tool"
)

// RoleAgent is a persona bound to a shared collaborator. It holds no per-run
// state and may be used by concurrent runs.
type RoleAgent struct {
	persona   *persona.Persona
	completer llm.Completer
	tools     []tool.Tool
	now       func() time.Time
}

type Option func(*RoleAgent)

// WithTools lets the agent call tools, bounded by its max iterations.
func WithTools(tools ...tool.Tool) Option {
	return func(a *RoleAgent) { a.tools = append(a.tools, tools...) }
}

// WithClock overrides the artifact timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *RoleAgent) { a.now = now }
}

func New(p *persona.Persona, c llm.Completer, opts ...Option) *RoleAgent {
	a := &RoleAgent{
		persona:   p,
		completer: c,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *RoleAgent) Role() role.Role { return a.persona.Role }

func (a *RoleAgent) Persona() *persona.Persona { return a.persona }

func (a *RoleAgent) MemoryEnabled() bool { return a.persona.Memory }

func (a *RoleAgent) MaxIterations() int { return a.persona.MaxIterations }

// Invoke makes one collaborator call. Errors are classified; an empty
// answer is a malformed response.
func (a *RoleAgent) Invoke(ctx context.Context, p prompt.Prompt) (Artifact, error) {
	r := a.Role()
	op := "invoke " + string(r)
	start := a.now()
	resp, err := a.completer.Complete(ctx, llm.Request{
		Role:          string(r),
		System:        p.System,
		User:          p.User,
		MaxIterations: a.persona.MaxIterations,
		Tools:         a.tools,
	})
	if err != nil {
		return Artifact{}, llm.Classify(op, err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return Artifact{}, llm.Errorf(llm.KindMalformedResponse, op, "empty response")
	}
	at := a.now()
	log.Debug("[%s] produced %d bytes in %s (tokens in/out %d/%d)", r, len(content), at.Sub(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return NewArtifact(r, content, at), nil
}

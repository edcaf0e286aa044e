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

package pipeline

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/cloudwego/flowmaster/internal/agent"
	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
	"github.com/cloudwego/flowmaster/llm/prompt"
	"github.com/cloudwego/flowmaster/llm/tool"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDefinition []byte

// Definition is the data-driven description of a pipeline.
type Definition struct {
	Name        string      `yaml:"name"`
	Stages      []role.Role `yaml:"stages"`
	Critic      role.Role   `yaml:"critic"`
	Improver    role.Role   `yaml:"improver"`
	MaxAttempts int         `yaml:"max_attempts"`
}

// DefaultDefinition runs CEO, PM, Designer, Frontend, Backend and QA.
func DefaultDefinition() Definition {
	d, err := ParseDefinition(defaultDefinition)
	if err != nil {
		panic(err)
	}
	return d
}

func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read pipeline definition: %w", err)
	}
	d, err := ParseDefinition(data)
	if err != nil {
		return Definition{}, fmt.Errorf("pipeline definition %s: %w", path, err)
	}
	return d, nil
}

func ParseDefinition(data []byte) (Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Definition{}, err
	}
	if d.Critic == "" {
		d.Critic = role.Critic
	}
	if d.Improver == "" {
		d.Improver = role.Improver
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	if d.Name == "" {
		d.Name = "pipeline"
	}
	return d, d.Validate()
}

func (d Definition) Validate() error {
	if len(d.Stages) == 0 {
		return fmt.Errorf("no stages")
	}
	seen := make(map[role.Role]bool, len(d.Stages))
	for i, r := range d.Stages {
		if !r.Valid() {
			return fmt.Errorf("stage %d: unknown role %q", i, r)
		}
		if r.IsReviewer() {
			return fmt.Errorf("stage %d: %s can only review", i, r)
		}
		if seen[r] {
			return fmt.Errorf("stage %d: role %s appears twice", i, r)
		}
		seen[r] = true
	}
	if d.Critic != role.Critic && !d.Critic.Valid() {
		return fmt.Errorf("unknown critic role %q", d.Critic)
	}
	if d.Improver != role.Improver && !d.Improver.Valid() {
		return fmt.Errorf("unknown improver role %q", d.Improver)
	}
	if d.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", d.MaxAttempts)
	}
	return nil
}

// ToolResolver supplies the tools named by a persona's allowed-tools.
type ToolResolver interface {
	Resolve(ctx context.Context, entries []string) ([]tool.Tool, error)
}

// Build creates the agents of d from the registry and assembles the
// pipeline. tools may be nil, in which case personas run without tools.
func Build(ctx context.Context, d Definition, reg *persona.Registry, c llm.Completer, tools ToolResolver, opts ...Option) (*Pipeline, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	newAgent := func(r role.Role) (*agent.RoleAgent, error) {
		p, err := reg.Get(r)
		if err != nil {
			return nil, err
		}
		var aopts []agent.Option
		if len(p.AllowedTools) > 0 {
			if tools == nil {
				log.Info("persona %s allows tools %v but no tool servers are configured", p.Name, p.AllowedTools)
			} else {
				ts, err := tools.Resolve(ctx, p.AllowedTools)
				if err != nil {
					return nil, fmt.Errorf("tools of persona %s: %w", p.Name, err)
				}
				aopts = append(aopts, agent.WithTools(ts...))
			}
		}
		return agent.New(p, c, aopts...), nil
	}

	stages := make([]Producer, 0, len(d.Stages))
	for _, r := range d.Stages {
		a, err := newAgent(r)
		if err != nil {
			return nil, err
		}
		stages = append(stages, a)
	}
	critic, err := newAgent(d.Critic)
	if err != nil {
		return nil, err
	}
	improver, err := newAgent(d.Improver)
	if err != nil {
		return nil, err
	}

	unit := review.NewUnit(prompt.NewTemplates(reg.List()))
	all := append([]Option{
		WithName(d.Name),
		WithPolicy(DefaultPolicy{MaxAttempts: d.MaxAttempts}),
	}, opts...)
	return New(unit, stages, critic, improver, all...)
}

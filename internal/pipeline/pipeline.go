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

// Package pipeline runs an ordered list of review units, feeding each
// stage's improved artifact into the next one.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
)

// Producer is a stage agent.
type Producer interface {
	review.Invoker
	MemoryEnabled() bool
}

// Pipeline is an immutable stage list shared by concurrent runs.
type Pipeline struct {
	name       string
	stages     []Producer
	critic     review.Invoker
	improver   review.Invoker
	unit       *review.Unit
	policy     Policy
	newBackOff func() backoff.BackOff
	observers  []Observer
}

type Option func(*Pipeline)

func WithName(name string) Option {
	return func(p *Pipeline) { p.name = name }
}

func WithPolicy(policy Policy) Option {
	return func(p *Pipeline) { p.policy = policy }
}

// WithBackOff sets the factory of the per-stage retry schedule.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Pipeline) { p.newBackOff = newBackOff }
}

// WithObserver adds an observer notified of every run event.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observers = append(p.observers, o) }
}

func New(unit *review.Unit, stages []Producer, critic, improver review.Invoker, opts ...Option) (*Pipeline, error) {
	if unit == nil {
		return nil, errors.New("pipeline needs a review unit")
	}
	if len(stages) == 0 {
		return nil, errors.New("pipeline needs at least one stage")
	}
	if critic == nil || improver == nil {
		return nil, errors.New("pipeline needs a critic and an improver")
	}
	seen := make(map[role.Role]bool, len(stages))
	for i, s := range stages {
		if s == nil {
			return nil, fmt.Errorf("stage %d has no agent", i)
		}
		if seen[s.Role()] {
			return nil, fmt.Errorf("role %s appears twice", s.Role())
		}
		seen[s.Role()] = true
	}
	p := &Pipeline{
		name:       "pipeline",
		stages:     append([]Producer(nil), stages...),
		critic:     critic,
		improver:   improver,
		unit:       unit,
		policy:     DefaultPolicy{MaxAttempts: DefaultMaxAttempts},
		newBackOff: DefaultBackOff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) Name() string { return p.name }

func (p *Pipeline) Len() int { return len(p.stages) }

// Roles returns the stage roles in order.
func (p *Pipeline) Roles() []role.Role {
	out := make([]role.Role, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Role()
	}
	return out
}

// Stage returns the producer of role r.
func (p *Pipeline) Stage(r role.Role) (Producer, bool) {
	for _, s := range p.stages {
		if s.Role() == r {
			return s, true
		}
	}
	return nil, false
}

func (p *Pipeline) Critic() review.Invoker { return p.critic }

func (p *Pipeline) Improver() review.Invoker { return p.improver }

func (p *Pipeline) Unit() *review.Unit { return p.unit }

func (p *Pipeline) notify(ev Event) {
	for _, o := range p.observers {
		o(ev)
	}
}

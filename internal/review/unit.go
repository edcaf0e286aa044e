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

// Package review runs one role's work through produce, critique and improve.
package review

import (
	"context"

	"github.com/cloudwego/flowmaster/internal/agent"
	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm/prompt"
)

// Invoker is the part of a RoleAgent the unit needs.
type Invoker interface {
	Role() role.Role
	Invoke(ctx context.Context, p prompt.Prompt) (agent.Artifact, error)
}

// Result is one reviewed stage. Original, Critique and Improved all belong
// to Role.
type Result struct {
	Role         role.Role      `json:"role"`
	Original     agent.Artifact `json:"original"`
	Critique     Critique       `json:"critique"`
	CritiqueText string         `json:"critique_text"`
	Improved     agent.Artifact `json:"improved"`

	// Input is the context the producer was rendered with.
	Input map[string]string `json:"-"`
}

// Unit renders prompts for the three steps of a review. It is stateless.
type Unit struct {
	templates *prompt.Templates
}

func NewUnit(t *prompt.Templates) *Unit {
	return &Unit{templates: t}
}

// Run produces an artifact from input, critiques it and improves it. It
// returns a complete Result or an error, never a partial result. A rejected
// critique does not stop the improve step.
func (u *Unit) Run(ctx context.Context, producer, critic, improver Invoker, input map[string]string) (Result, error) {
	p, err := u.templates.Render(ctx, producer.Role(), input)
	if err != nil {
		return Result{}, err
	}
	original, err := producer.Invoke(ctx, p)
	if err != nil {
		return Result{}, err
	}
	res, err := u.Review(ctx, original, critic, improver, "")
	if err != nil {
		return Result{}, err
	}
	res.Input = input
	return res, nil
}

// Review critiques and improves an existing artifact. focus, when set, is
// extra guidance for the critic such as user feedback.
func (u *Unit) Review(ctx context.Context, original agent.Artifact, critic, improver Invoker, focus string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	target := original.Role
	cp, err := u.templates.Render(ctx, critic.Role(), map[string]string{
		prompt.KeyTargetRole:     target.Label(),
		prompt.KeyArtifact:       original.Content,
		prompt.KeyFocus:          focusText(focus),
		prompt.KeyCritiqueSchema: CritiqueSchema(),
	})
	if err != nil {
		return Result{}, err
	}
	answer, err := critic.Invoke(ctx, cp)
	if err != nil {
		return Result{}, err
	}
	critique, err := ParseCritique(target, answer.Content)
	if err != nil {
		return Result{}, err
	}
	log.Info("[%s] critique: %s, score %d, %d issue(s), %d high", target, critique.Status, critique.Score, len(critique.Issues), critique.Count(SeverityHigh))
	if critique.Status == StatusRejected && critique.Count(SeverityHigh) > 0 {
		log.Info("[%s] rejected with high severity issues, improving anyway", target)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	ip, err := u.templates.Render(ctx, improver.Role(), map[string]string{
		prompt.KeyTargetRole: target.Label(),
		prompt.KeyArtifact:   original.Content,
		prompt.KeyCritique:   answer.Content,
	})
	if err != nil {
		return Result{}, err
	}
	out, err := improver.Invoke(ctx, ip)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Role:         target,
		Original:     original,
		Critique:     critique,
		CritiqueText: answer.Content,
		Improved:     agent.NewArtifact(target, out.Content, out.ProducedAt),
	}, nil
}

// Regenerate asks producer to revise previous according to user feedback.
func (u *Unit) Regenerate(ctx context.Context, producer Invoker, input map[string]string, previous, feedback string) (agent.Artifact, error) {
	tpl, err := u.templates.Get(producer.Role())
	if err != nil {
		return agent.Artifact{}, err
	}
	p, err := tpl.RenderRevision(ctx, input, previous, feedback)
	if err != nil {
		return agent.Artifact{}, err
	}
	return producer.Invoke(ctx, p)
}

func focusText(focus string) string {
	if focus == "" {
		return ""
	}
	return "The user reviewed this output and gave the following feedback. Weigh it heavily:\n" + focus
}

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

// Package prompt renders persona task templates into model prompts.
package prompt

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
)

// Context keys shared by the built-in personas.
const (
	KeyIdea           = "idea"
	KeyUpstream       = "upstream"
	KeyUpstreamRole   = "upstream_role"
	KeyHistory        = "history"
	KeyTargetRole     = "target_role"
	KeyArtifact       = "artifact"
	KeyFocus          = "focus"
	KeyCritique       = "critique"
	KeyCritiqueSchema = "critique_schema"
	KeyPrevious       = "previous_output"
	KeyFeedback       = "feedback"
	keyTask           = "task"
)

// Prompt is a fully rendered instruction for one agent call.
type Prompt struct {
	Role   role.Role
	System string
	User   string
}

var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the sorted, distinct variables of an FString
// template. Escaped braces ("{{", "}}") are not variables.
func Placeholders(tpl string) []string {
	stripped := strings.NewReplacer("{{", "", "}}", "").Replace(tpl)
	seen := make(map[string]bool)
	var keys []string
	for _, m := range placeholder.FindAllStringSubmatch(stripped, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	sort.Strings(keys)
	return keys
}

// Template is one persona's prompt.
type Template struct {
	role   role.Role
	system string
	keys   []string
	tpl    *einoprompt.DefaultChatTemplate
}

func NewTemplate(p *persona.Persona) *Template {
	return &Template{
		role:   p.Role,
		system: SystemPrompt(p),
		keys:   Placeholders(p.Task),
		tpl:    einoprompt.FromMessages(schema.FString, schema.UserMessage(p.Task)),
	}
}

// Keys returns the context keys the template requires.
func (t *Template) Keys() []string {
	return append([]string(nil), t.keys...)
}

// Render fills the template. A missing key fails with a template error;
// extra keys are ignored.
func (t *Template) Render(ctx context.Context, vars map[string]string) (Prompt, error) {
	op := "render " + string(t.role)
	values, err := bind(op, t.keys, vars)
	if err != nil {
		return Prompt{}, err
	}
	user, err := format(ctx, op, t.tpl, values)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{Role: t.role, System: t.system, User: user}, nil
}

const revisionTask = `{task}

YOUR PREVIOUS OUTPUT:
{previous_output}

USER FEEDBACK:
{feedback}

Revise your previous output to address the feedback. Keep what already works.
Respond with the complete revised document in markdown and nothing else.`

var revisionTemplate = einoprompt.FromMessages(schema.FString, schema.UserMessage(revisionTask))

// RenderRevision renders the task and asks the agent to revise its previous
// output according to user feedback.
func (t *Template) RenderRevision(ctx context.Context, vars map[string]string, previous, feedback string) (Prompt, error) {
	p, err := t.Render(ctx, vars)
	if err != nil {
		return Prompt{}, err
	}
	op := "render revision " + string(t.role)
	user, err := format(ctx, op, revisionTemplate, map[string]any{
		keyTask:     p.User,
		KeyPrevious: previous,
		KeyFeedback: feedback,
	})
	if err != nil {
		return Prompt{}, err
	}
	p.User = user
	return p, nil
}

func bind(op string, keys []string, vars map[string]string) (map[string]any, error) {
	values := make(map[string]any, len(keys))
	var missing []string
	for _, k := range keys {
		v, ok := vars[k]
		if !ok {
			missing = append(missing, k)
			continue
		}
		values[k] = v
	}
	if len(missing) > 0 {
		return nil, llm.Errorf(llm.KindTemplate, op, "missing context key(s) %s", strings.Join(missing, ", "))
	}
	return values, nil
}

func format(ctx context.Context, op string, tpl *einoprompt.DefaultChatTemplate, values map[string]any) (string, error) {
	msgs, err := tpl.Format(ctx, values)
	if err != nil {
		return "", llm.NewError(llm.KindTemplate, op, err)
	}
	if len(msgs) != 1 {
		return "", llm.Errorf(llm.KindTemplate, op, "expected one message, got %d", len(msgs))
	}
	return msgs[0].Content, nil
}

// SystemPrompt describes the persona to the model.
func SystemPrompt(p *persona.Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s.", p.Title)
	if p.Goal != "" {
		fmt.Fprintf(&sb, "\n\nGoal: %s", p.Goal)
	}
	if p.Backstory != "" {
		fmt.Fprintf(&sb, "\n\nBackground:\n%s", p.Backstory)
	}
	if p.ExpectedOutput != "" {
		fmt.Fprintf(&sb, "\n\nExpected output: %s", p.ExpectedOutput)
	}
	return sb.String()
}

// Templates holds one template per role.
type Templates struct {
	byRole map[role.Role]*Template
}

func NewTemplates(personas []*persona.Persona) *Templates {
	t := &Templates{byRole: make(map[role.Role]*Template, len(personas))}
	for _, p := range personas {
		t.byRole[p.Role] = NewTemplate(p)
	}
	return t
}

// Get returns the template for r.
func (t *Templates) Get(r role.Role) (*Template, error) {
	tpl, ok := t.byRole[r]
	if !ok {
		return nil, llm.Errorf(llm.KindTemplate, "render "+string(r), "no template for role %s", r)
	}
	return tpl, nil
}

// Render renders the template of role r with vars.
func (t *Templates) Render(ctx context.Context, r role.Role, vars map[string]string) (Prompt, error) {
	tpl, err := t.Get(r)
	if err != nil {
		return Prompt{}, err
	}
	return tpl.Render(ctx, vars)
}

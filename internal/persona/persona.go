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

// Package persona loads the role personas (title, goal, backstory, task
// template) that agents are built from.
package persona

import "github.com/cloudwego/flowmaster/internal/role"

// Persona is one role's configuration. It is read-only once loaded.
type Persona struct {
	Name           string
	Role           role.Role
	Title          string
	Goal           string
	Backstory      string
	MaxIterations  int
	Memory         bool
	AllowedTools   []string
	ExpectedOutput string

	// Task is the prompt template body, with {placeholder} variables.
	Task string

	Source Source
	Path   string
}

// Source is where a persona was loaded from.
type Source int

const (
	SourceEmbedded Source = iota
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourceEmbedded:
		return "embedded"
	case SourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

const (
	defaultProducerIterations = 5
	defaultReviewerIterations = 3
)

func defaultIterations(r role.Role) int {
	if r.IsReviewer() {
		return defaultReviewerIterations
	}
	return defaultProducerIterations
}

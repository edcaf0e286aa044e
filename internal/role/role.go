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

// Package role enumerates the fixed set of personas a pipeline can use.
package role

import (
	"fmt"
	"strings"
)

// Role identifies a persona. The set is closed; personas and pipeline
// definitions refer to roles by their lowercase name.
type Role string

const (
	CEO      Role = "ceo"
	PM       Role = "pm"
	Designer Role = "designer"
	Frontend Role = "frontend"
	Backend  Role = "backend"
	QA       Role = "qa"
	Critic   Role = "critic"
	Improver Role = "improver"
)

var all = []Role{CEO, PM, Designer, Frontend, Backend, QA, Critic, Improver}

var labels = map[Role]string{
	CEO:      "CEO",
	PM:       "PM",
	Designer: "Designer",
	Frontend: "Frontend",
	Backend:  "Backend",
	QA:       "QA",
	Critic:   "Critic",
	Improver: "Improver",
}

var aliases = map[string]Role{
	"chief-executive-officer": CEO,
	"product-manager":         PM,
	"product":                 PM,
	"ux":                      Designer,
	"ux-designer":             Designer,
	"frontend-engineer":       Frontend,
	"backend-engineer":        Backend,
	"quality-assurance":       QA,
	"tester":                  QA,
	"quality-critic":          Critic,
	"output-improver":         Improver,
}

// All returns every role in canonical order.
func All() []Role {
	return append([]Role(nil), all...)
}

// Parse resolves a role name case-insensitively, accepting a few aliases
// such as "product-manager" or "UX Designer".
func Parse(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "-", "_", "-").Replace(key)
	if r := Role(key); r.Valid() {
		return r, nil
	}
	if r, ok := aliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) Valid() bool {
	_, ok := labels[r]
	return ok
}

// Label is the display name used in prompts and documents.
func (r Role) Label() string {
	if l, ok := labels[r]; ok {
		return l
	}
	return string(r)
}

// IsReviewer reports whether r only reviews other roles' work.
func (r Role) IsReviewer() bool {
	return r == Critic || r == Improver
}

func (r Role) String() string {
	return string(r)
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

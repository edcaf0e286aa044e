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
	"time"

	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
)

// Ledger is the ordered result of a completed run, one entry per stage.
type Ledger struct {
	RunID      string          `json:"run_id"`
	Idea       string          `json:"idea"`
	Results    []review.Result `json:"results"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

func (l Ledger) Len() int { return len(l.Results) }

// Get returns the result of role r.
func (l Ledger) Get(r role.Role) (review.Result, bool) {
	for _, res := range l.Results {
		if res.Role == r {
			return res, true
		}
	}
	return review.Result{}, false
}

// Roles returns the stage roles in execution order.
func (l Ledger) Roles() []role.Role {
	out := make([]role.Role, len(l.Results))
	for i, res := range l.Results {
		out[i] = res.Role
	}
	return out
}

func (l Ledger) Duration() time.Duration {
	return l.FinishedAt.Sub(l.StartedAt)
}

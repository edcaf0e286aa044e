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

package workflow

import (
	"time"

	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
)

const StatusCompleted = "completed"

// Response is the result of generate_workflow.
type Response struct {
	ID            string   `json:"id"`
	ProjectName   string   `json:"project_name"`
	Status        string   `json:"status"`
	Workflow      Workflow `json:"workflow"`
	ExecutionTime float64  `json:"execution_time"` // seconds
}

// Workflow is a ledger shaped for clients.
type Workflow struct {
	Idea    string                `json:"idea"`
	Stages  []Stage               `json:"stages"`
	History []pipeline.StepRecord `json:"history,omitempty"`
}

type Stage struct {
	Role       role.Role       `json:"role"`
	Title      string          `json:"title"`
	Original   string          `json:"original"`
	Critique   review.Critique `json:"critique"`
	Improved   string          `json:"improved"`
	Hash       string          `json:"hash"`
	ProducedAt time.Time       `json:"produced_at"`
}

func newWorkflow(l pipeline.Ledger, history []pipeline.StepRecord) Workflow {
	w := Workflow{
		Idea:    l.Idea,
		Stages:  make([]Stage, 0, l.Len()),
		History: history,
	}
	for _, res := range l.Results {
		w.Stages = append(w.Stages, Stage{
			Role:       res.Role,
			Title:      res.Role.Label(),
			Original:   res.Original.Content,
			Critique:   res.Critique,
			Improved:   res.Improved.Content,
			Hash:       res.Improved.Hash,
			ProducedAt: res.Improved.ProducedAt,
		})
	}
	return w
}

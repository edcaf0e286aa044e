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
	"context"
	"testing"
	"time"

	"github.com/cloudwego/flowmaster/internal/agent"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plantIdea = "A mobile app for tracking plant watering schedules"

func newService(t *testing.T, script map[string]llm.Reply) (*Service, *llm.ScriptedCompleter) {
	t.Helper()
	reg := persona.NewRegistry()
	require.NoError(t, reg.Load())
	stub := llm.NewScriptedCompleter(script)
	def := pipeline.Definition{Name: "test", Stages: []role.Role{role.CEO, role.PM}, Critic: role.Critic, Improver: role.Improver, MaxAttempts: 1}
	p, err := pipeline.Build(context.Background(), def, reg, stub, nil, pipeline.WithBackOff(pipeline.NoWait))
	require.NoError(t, err)
	return NewService(p, NewStore(10)), stub
}

func TestGenerateWorkflow(t *testing.T) {
	svc, _ := newService(t, llm.DefaultScript())

	resp, err := svc.GenerateWorkflow(context.Background(), "  "+plantIdea+"  ", true)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, plantIdea, resp.ProjectName)
	assert.NotEmpty(t, resp.ID)
	assert.GreaterOrEqual(t, resp.ExecutionTime, 0.0)

	require.Len(t, resp.Workflow.Stages, 2)
	assert.Equal(t, role.CEO, resp.Workflow.Stages[0].Role)
	assert.Equal(t, "PM", resp.Workflow.Stages[1].Title)
	assert.Equal(t, review.StatusNeedsImprovement, resp.Workflow.Stages[1].Critique.Status)
	assert.Contains(t, resp.Workflow.Stages[1].Improved, "## Changes")
	assert.Len(t, resp.Workflow.History, 2)

	rec, err := svc.Get(resp.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordCompleted, rec.Status)
	assert.Equal(t, "COMPLETED", rec.State)
	assert.Same(t, resp, rec.Response)
}

func TestGenerateWorkflowEmptyIdea(t *testing.T) {
	svc, stub := newService(t, llm.DefaultScript())
	_, err := svc.GenerateWorkflow(context.Background(), " \n", true)
	assert.ErrorIs(t, err, ErrEmptyIdea)
	assert.Empty(t, stub.Calls())
}

func TestGenerateWorkflowFailure(t *testing.T) {
	svc, _ := newService(t, map[string]llm.Reply{
		"critic":    llm.Text("I cannot score this."),
		llm.AnyRole: llm.Text("# Draft"),
	})
	resp, err := svc.GenerateWorkflow(context.Background(), plantIdea, true)
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)

	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Index)

	recs := svc.List()
	require.Len(t, recs, 1)
	assert.Equal(t, RecordFailed, recs[0].Status)
	assert.Contains(t, recs[0].Error, "stage 0 (ceo)")
	assert.Contains(t, recs[0].State, "FAILED(0")
	assert.Nil(t, recs[0].Response)
}

func TestGetUnknown(t *testing.T) {
	svc, _ := newService(t, llm.DefaultScript())
	_, err := svc.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegenerate(t *testing.T) {
	svc, stub := newService(t, map[string]llm.Reply{"pm": llm.Text("# PRD v2")})

	art, err := svc.Regenerate(context.Background(), RegenerateRequest{
		Role:           role.PM,
		Idea:           plantIdea,
		PreviousOutput: "# PRD v1",
		Feedback:       "Add offline mode",
		Context:        map[string]string{"upstream": "# Vision"},
	})
	require.NoError(t, err)
	assert.Equal(t, role.PM, art.Role)
	assert.Equal(t, "# PRD v2", art.Content)

	calls := stub.CallsFor("pm")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, "# Vision")
	assert.Contains(t, calls[0].User, "# PRD v1")
	assert.Contains(t, calls[0].User, "Add offline mode")

	_, err = svc.Regenerate(context.Background(), RegenerateRequest{Role: role.Critic, PreviousOutput: "x", Feedback: "y"})
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = svc.Regenerate(context.Background(), RegenerateRequest{Role: role.PM})
	assert.Error(t, err)
}

func TestReviewArtifact(t *testing.T) {
	svc, stub := newService(t, llm.DefaultScript())

	res, err := svc.ReviewArtifact(context.Background(), FeedbackRequest{
		Role:     role.PM,
		Content:  "# PRD\n\nFeatures.",
		Feedback: "Too vague about reminders",
	})
	require.NoError(t, err)
	assert.Equal(t, role.PM, res.Role)
	assert.Equal(t, role.PM, res.Improved.Role)
	assert.Contains(t, res.Improved.Content, "# PRD")
	assert.Contains(t, stub.CallsFor("critic")[0].User, "Too vague about reminders")

	_, err = svc.ReviewArtifact(context.Background(), FeedbackRequest{Role: role.Designer, Content: "x"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestProjectName(t *testing.T) {
	assert.Equal(t, DefaultProjectName, ProjectName(pipeline.Ledger{}))

	ledger := func(content string) pipeline.Ledger {
		return pipeline.Ledger{Results: []review.Result{{
			Role:     role.CEO,
			Improved: agent.NewArtifact(role.CEO, content, time.Now()),
		}}}
	}
	assert.Equal(t, "Plant Pal", ProjectName(ledger("Intro line\n\n# Plant Pal\n\n## Vision")))
	assert.Equal(t, "Plant Pal", ProjectName(ledger("## **Plant Pal**")))
	assert.Equal(t, DefaultProjectName, ProjectName(ledger("No headings at all.")))
}

func TestDocuments(t *testing.T) {
	svc, _ := newService(t, llm.DefaultScript())
	resp, err := svc.GenerateWorkflow(context.Background(), plantIdea, true)
	require.NoError(t, err)

	md := Markdown(resp)
	assert.Contains(t, md, "# "+plantIdea+"\n")
	assert.Contains(t, md, "## 1. CEO\n")
	assert.Contains(t, md, "## 2. PM\n")
	assert.Contains(t, md, "### "+plantIdea+"\n")
	assert.Contains(t, md, "### Review")
	assert.Contains(t, md, "**Score:** 74/100")

	page, err := HTML(resp)
	require.NoError(t, err)
	assert.Contains(t, page, "<title>"+plantIdea+"</title>")
	assert.Contains(t, page, "<h2>1. CEO</h2>")
}

func TestDemoteHeadings(t *testing.T) {
	in := "# Title\n#hashtag\n```\n# code\n```\n###### Deep"
	assert.Equal(t, "### Title\n#hashtag\n```\n# code\n```\n###### Deep", demoteHeadings(in, 2))
}

func TestStoreEviction(t *testing.T) {
	svc, _ := newService(t, llm.DefaultScript())
	svc.store = NewStore(2)

	var ids []string
	for i := 0; i < 3; i++ {
		resp, err := svc.GenerateWorkflow(context.Background(), plantIdea, false)
		require.NoError(t, err)
		ids = append(ids, resp.ID)
	}
	assert.Equal(t, 2, svc.store.Len())
	_, err := svc.Get(ids[2])
	assert.NoError(t, err)
}

func TestStoreEvictsFinishedBeforeRunning(t *testing.T) {
	svc, _ := newService(t, llm.DefaultScript())
	p := svc.Pipeline()
	store := NewStore(2)

	running := p.NewRun(plantIdea, pipeline.RunOptions{})
	store.begin(running, plantIdea)
	done := p.NewRun(plantIdea, pipeline.RunOptions{})
	store.begin(done, plantIdea)
	store.complete(done.ID(), &Response{ID: done.ID(), Status: StatusCompleted})

	next := p.NewRun(plantIdea, pipeline.RunOptions{})
	store.begin(next, plantIdea)

	assert.Equal(t, 2, store.Len())
	rec, ok := store.Get(running.ID())
	require.True(t, ok, "running record was evicted")
	assert.Equal(t, RecordRunning, rec.Status)
	_, ok = store.Get(done.ID())
	assert.False(t, ok)

	// with nothing finished, a running record has to go
	last := p.NewRun(plantIdea, pipeline.RunOptions{})
	store.begin(last, plantIdea)
	assert.Equal(t, 2, store.Len())
	_, ok = store.Get(last.ID())
	assert.True(t, ok)
}

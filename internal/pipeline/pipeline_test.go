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
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
	"github.com/cloudwego/flowmaster/llm/prompt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	plantIdea = "A mobile app for tracking plant watering schedules"
	approved  = `{"strengths":["Focused"],"issues":[],"recommendations":["Ship it"],"status":"APPROVED","score":90}`
)

func build(t *testing.T, stages []role.Role, script map[string]llm.Reply, opts ...Option) (*Pipeline, *llm.ScriptedCompleter) {
	t.Helper()
	reg := persona.NewRegistry()
	require.NoError(t, reg.Load())
	stub := llm.NewScriptedCompleter(script)
	def := Definition{Name: "test", Stages: stages, Critic: role.Critic, Improver: role.Improver, MaxAttempts: DefaultMaxAttempts}
	p, err := Build(context.Background(), def, reg, stub, nil, append([]Option{WithBackOff(NoWait)}, opts...)...)
	require.NoError(t, err)
	return p, stub
}

func TestExecute_PlantWatering(t *testing.T) {
	p, stub := build(t, []role.Role{role.CEO, role.PM}, map[string]llm.Reply{
		"ceo":      llm.Text("# Plant Pal\n\nORIGINAL-CEO"),
		"pm":       llm.Text("# PRD\n\nORIGINAL-PM"),
		"critic":   llm.Text(approved),
		"improver": llm.Sequence(llm.Text("# Plant Pal\n\nIMPROVED-CEO"), llm.Text("# PRD\n\nIMPROVED-PM")),
	})

	run := p.NewRun(plantIdea, RunOptions{EnableMemory: true})
	assert.Equal(t, PhasePending, run.State().Phase)

	ledger, err := run.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, ledger.Len())
	assert.Equal(t, []role.Role{role.CEO, role.PM}, ledger.Roles())
	assert.Equal(t, run.ID(), ledger.RunID)
	assert.Equal(t, plantIdea, ledger.Idea)

	for _, res := range ledger.Results {
		assert.Equal(t, res.Role, res.Original.Role)
		assert.Equal(t, res.Role, res.Improved.Role)
		assert.Equal(t, res.Role, res.Critique.TargetRole)
	}

	ceo, pm := ledger.Results[0], ledger.Results[1]
	assert.Equal(t, map[string]string{prompt.KeyIdea: plantIdea}, ceo.Input)
	assert.Equal(t, ceo.Improved.Content, pm.Input[prompt.KeyUpstream])
	assert.Equal(t, "CEO", pm.Input[prompt.KeyUpstreamRole])
	assert.Equal(t, noHistory, pm.Input[prompt.KeyHistory])

	pmCalls := stub.CallsFor("pm")
	require.Len(t, pmCalls, 1)
	assert.Contains(t, pmCalls[0].User, "IMPROVED-CEO")
	assert.NotContains(t, pmCalls[0].User, "ORIGINAL-CEO")
	assert.Contains(t, pmCalls[0].User, plantIdea)

	assert.Equal(t, State{Phase: PhaseCompleted, Stage: -1}, run.State())
	hist := run.History()
	require.Len(t, hist, 2)
	assert.Equal(t, StepOK, hist[1].Status)
	assert.Equal(t, role.PM, hist[1].Role)
}

func TestExecute_DefaultDefinition(t *testing.T) {
	reg := persona.NewRegistry()
	require.NoError(t, reg.Load())
	stub := llm.NewScriptedCompleter(llm.DefaultScript())
	p, err := Build(context.Background(), DefaultDefinition(), reg, stub, nil, WithBackOff(NoWait))
	require.NoError(t, err)

	ledger, err := p.Execute(context.Background(), plantIdea, RunOptions{EnableMemory: true})
	require.NoError(t, err)
	assert.Equal(t, []role.Role{role.CEO, role.PM, role.Designer, role.Frontend, role.Backend, role.QA}, ledger.Roles())

	qa, ok := ledger.Get(role.QA)
	require.True(t, ok)
	history := qa.Input[prompt.KeyHistory]
	for _, r := range []role.Role{role.CEO, role.PM, role.Designer, role.Frontend} {
		assert.Contains(t, history, "### "+r.Label())
	}
	assert.NotContains(t, history, "### Backend")
	assert.Len(t, stub.Calls(), 18)
}

func TestExecute_MemoryDisabled(t *testing.T) {
	p, _ := build(t, []role.Role{role.CEO, role.PM, role.Designer}, llm.DefaultScript())
	ledger, err := p.Execute(context.Background(), plantIdea, RunOptions{EnableMemory: false})
	require.NoError(t, err)
	assert.Equal(t, memoryDisabled, ledger.Results[2].Input[prompt.KeyHistory])
	assert.Equal(t, ledger.Results[1].Improved.Content, ledger.Results[2].Input[prompt.KeyUpstream])
}

func TestExecute_FailureDiscardsLedger(t *testing.T) {
	p, stub := build(t, []role.Role{role.CEO, role.PM, role.QA}, map[string]llm.Reply{
		"critic":    llm.Sequence(llm.Text(approved), llm.Text("Looks fine to me, 80/100")),
		"improver":  llm.Text("# Improved"),
		llm.AnyRole: llm.Text("# Draft"),
	})
	run := p.NewRun(plantIdea, RunOptions{EnableMemory: true})

	ledger, err := run.Execute(context.Background())
	require.Error(t, err)
	assert.Zero(t, ledger.Len())
	assert.Nil(t, ledger.Results)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, role.PM, se.Role)
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)

	st := run.State()
	assert.Equal(t, PhaseFailed, st.Phase)
	assert.Equal(t, 1, st.Stage)
	assert.ErrorIs(t, st.Err, llm.ErrMalformedResponse)

	assert.Empty(t, stub.CallsFor("qa"))
	hist := run.History()
	require.Len(t, hist, 2)
	assert.Equal(t, StepFailed, hist[1].Status)
}

func TestExecute_RetriesTransient(t *testing.T) {
	p, stub := build(t, []role.Role{role.CEO, role.PM}, map[string]llm.Reply{
		"pm": llm.Sequence(
			llm.Fail(errors.New("read tcp 10.0.0.2:443: connection reset by peer")),
			llm.Text("# PRD"),
		),
		"critic":    llm.Text(approved),
		llm.AnyRole: llm.Text("# Draft"),
	})
	run := p.NewRun(plantIdea, RunOptions{})
	ledger, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ledger.Len())
	assert.Len(t, stub.CallsFor("pm"), 2)

	hist := run.History()
	require.Len(t, hist, 3)
	assert.Equal(t, StepRetry, hist[1].Status)
	assert.Equal(t, 1, hist[1].Attempt)
	assert.Equal(t, StepOK, hist[2].Status)
	assert.Equal(t, 2, hist[2].Attempt)
}

func TestExecute_RetryLimit(t *testing.T) {
	p, stub := build(t, []role.Role{role.CEO}, map[string]llm.Reply{
		"ceo":       llm.Fail(errors.New("status code: 503")),
		llm.AnyRole: llm.Text("unused"),
	})
	run := p.NewRun(plantIdea, RunOptions{})
	_, err := run.Execute(context.Background())
	assert.ErrorIs(t, err, llm.ErrTransient)
	assert.Len(t, stub.CallsFor("ceo"), DefaultMaxAttempts)

	hist := run.History()
	require.Len(t, hist, DefaultMaxAttempts)
	assert.Equal(t, StepFailed, hist[len(hist)-1].Status)
}

func TestExecute_ContentPolicyNotRetried(t *testing.T) {
	p, stub := build(t, []role.Role{role.CEO}, map[string]llm.Reply{
		"ceo":       llm.Fail(errors.New("response blocked by content_filter")),
		llm.AnyRole: llm.Text("unused"),
	})
	_, err := p.Execute(context.Background(), plantIdea, RunOptions{})
	assert.ErrorIs(t, err, llm.ErrContentPolicy)
	assert.Len(t, stub.CallsFor("ceo"), 1)
}

func TestExecute_Canceled(t *testing.T) {
	p, stub := build(t, []role.Role{role.CEO, role.PM}, llm.DefaultScript())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := p.NewRun(plantIdea, RunOptions{})
	_, err := run.Execute(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseFailed, run.State().Phase)
	assert.Equal(t, 0, run.State().Stage)
	assert.Empty(t, stub.Calls())
}

func TestExecute_Once(t *testing.T) {
	p, _ := build(t, []role.Role{role.CEO}, llm.DefaultScript())
	run := p.NewRun(plantIdea, RunOptions{})
	_, err := run.Execute(context.Background())
	require.NoError(t, err)
	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestExecute_Concurrent(t *testing.T) {
	p, _ := build(t, []role.Role{role.CEO, role.PM, role.QA}, llm.DefaultScript())

	var wg sync.WaitGroup
	errs := make([]error, 4)
	ledgers := make([]Ledger, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ledgers[i], errs[i] = p.Execute(context.Background(), plantIdea, RunOptions{EnableMemory: true})
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i])
		assert.Equal(t, 3, ledgers[i].Len())
	}
	assert.NotEqual(t, ledgers[0].RunID, ledgers[1].RunID)
}

func TestObserver(t *testing.T) {
	var kinds []EventKind
	p, _ := build(t, []role.Role{role.CEO, role.PM}, llm.DefaultScript(), WithObserver(func(ev Event) {
		kinds = append(kinds, ev.Kind)
	}))
	_, err := p.Execute(context.Background(), plantIdea, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []EventKind{
		EventStageStarted, EventStageCompleted,
		EventStageStarted, EventStageCompleted,
		EventRunCompleted,
	}, kinds)
}

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	policy := DefaultPolicy{MaxAttempts: 2}
	transient := llm.Errorf(llm.KindTransient, "op", "timeout")

	t.Run("abort when not retryable", func(t *testing.T) {
		d := policy.OnStageFailure(ctx, 0, role.CEO, llm.Errorf(llm.KindMalformedResponse, "op", "x"), 1)
		assert.Equal(t, DecisionAbort, d)
	})
	t.Run("retry when transient and under max", func(t *testing.T) {
		assert.Equal(t, DecisionRetry, policy.OnStageFailure(ctx, 0, role.CEO, transient, 1))
	})
	t.Run("abort when transient and at max", func(t *testing.T) {
		assert.Equal(t, DecisionAbort, policy.OnStageFailure(ctx, 0, role.CEO, transient, 2))
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PENDING", State{Phase: PhasePending, Stage: -1}.String())
	assert.Equal(t, "RUNNING(2)", State{Phase: PhaseRunning, Stage: 2}.String())
	assert.Equal(t, "FAILED(1, boom)", State{Phase: PhaseFailed, Stage: 1, Err: errors.New("boom")}.String())
	assert.True(t, State{Phase: PhaseCompleted}.Terminal())
	assert.False(t, State{Phase: PhaseRunning}.Terminal())
}

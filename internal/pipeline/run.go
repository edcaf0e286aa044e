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
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/llm/prompt"
	"github.com/google/uuid"
)

const (
	memoryDisabled = "(memory disabled)"
	noHistory      = "(no earlier stages)"
)

var ErrAlreadyStarted = errors.New("run already started")

type RunOptions struct {
	// ID identifies the run; a random UUID is used when empty.
	ID           string
	EnableMemory bool
}

// Run is one execution of a pipeline. It can be executed once; a failed run
// is not resumed, a new one must be created.
type Run struct {
	id   string
	idea string
	opts RunOptions
	p    *Pipeline

	mu      sync.Mutex
	state   State
	history []StepRecord
}

func (p *Pipeline) NewRun(idea string, opts RunOptions) *Run {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Run{
		id:    id,
		idea:  idea,
		opts:  opts,
		p:     p,
		state: State{Phase: PhasePending, Stage: -1},
	}
}

// Execute runs a fresh pipeline execution for idea.
func (p *Pipeline) Execute(ctx context.Context, idea string, opts RunOptions) (Ledger, error) {
	return p.NewRun(idea, opts).Execute(ctx)
}

func (r *Run) ID() string { return r.id }

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// History returns every stage attempt so far, failed ones included.
func (r *Run) History() []StepRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]StepRecord(nil), r.history...)
}

// Execute runs the stages in order. On failure the run ends FAILED at the
// failing stage and no results are returned.
func (r *Run) Execute(ctx context.Context) (Ledger, error) {
	r.mu.Lock()
	if r.state.Phase != PhasePending {
		r.mu.Unlock()
		return Ledger{}, ErrAlreadyStarted
	}
	r.state = State{Phase: PhaseRunning, Stage: 0}
	r.mu.Unlock()

	total := r.p.Len()
	ledger := Ledger{RunID: r.id, Idea: r.idea, StartedAt: time.Now()}
	results := make([]review.Result, 0, total)
	log.Info("[run %s] %s started with %d stage(s)", r.id, r.p.name, total)

	for i, stage := range r.p.stages {
		if err := ctx.Err(); err != nil {
			return Ledger{}, r.fail(i, err)
		}
		r.setStage(i)
		r.p.notify(Event{RunID: r.id, Kind: EventStageStarted, Stage: i, Total: total, Role: stage.Role()})
		log.Info("[run %s] stage %d/%d: %s", r.id, i+1, total, stage.Role())

		res, err := r.runStage(ctx, i, stage, r.contextFor(i, stage, results))
		if err != nil {
			return Ledger{}, r.fail(i, err)
		}
		results = append(results, res)
		r.p.notify(Event{RunID: r.id, Kind: EventStageCompleted, Stage: i, Total: total, Role: stage.Role(), Result: &res})
	}

	ledger.Results = results
	ledger.FinishedAt = time.Now()
	r.mu.Lock()
	r.state = State{Phase: PhaseCompleted, Stage: -1}
	r.mu.Unlock()
	r.p.notify(Event{RunID: r.id, Kind: EventRunCompleted, Stage: total - 1, Total: total})
	log.Info("[run %s] completed in %s", r.id, ledger.Duration().Round(time.Millisecond))
	return ledger, nil
}

// contextFor builds the producer context of stage i from the improved
// artifacts of the stages before it.
func (r *Run) contextFor(i int, stage Producer, prior []review.Result) map[string]string {
	vars := map[string]string{prompt.KeyIdea: r.idea}
	if i == 0 {
		return vars
	}
	upstream := prior[i-1]
	vars[prompt.KeyUpstream] = upstream.Improved.Content
	vars[prompt.KeyUpstreamRole] = upstream.Role.Label()
	switch {
	case !r.opts.EnableMemory || !stage.MemoryEnabled():
		vars[prompt.KeyHistory] = memoryDisabled
	case i == 1:
		vars[prompt.KeyHistory] = noHistory
	default:
		vars[prompt.KeyHistory] = formatHistory(prior[:i-1])
	}
	return vars
}

func formatHistory(results []review.Result) string {
	var sb strings.Builder
	for i, res := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("### ")
		sb.WriteString(res.Role.Label())
		sb.WriteString("\n\n")
		sb.WriteString(res.Improved.Content)
	}
	return sb.String()
}

func (r *Run) runStage(ctx context.Context, i int, stage Producer, input map[string]string) (review.Result, error) {
	var b backoff.BackOff
	for attempt := 1; ; attempt++ {
		res, err := r.p.unit.Run(ctx, stage, r.p.critic, r.p.improver, input)
		if err == nil {
			r.record(i, stage, attempt, StepOK, nil)
			return res, nil
		}

		if ctx.Err() == nil && r.p.policy.OnStageFailure(ctx, i, stage.Role(), err, attempt) == DecisionRetry {
			if b == nil {
				b = r.p.newBackOff()
			}
			if wait := b.NextBackOff(); wait != backoff.Stop {
				r.record(i, stage, attempt, StepRetry, err)
				r.p.notify(Event{RunID: r.id, Kind: EventStageRetry, Stage: i, Total: r.p.Len(), Role: stage.Role(), Attempt: attempt, Err: err})
				log.Info("[run %s] stage %d %s failed (attempt %d), retrying in %s: %v", r.id, i, stage.Role(), attempt, wait, err)
				if err := sleep(ctx, wait); err != nil {
					return review.Result{}, err
				}
				continue
			}
		}
		r.record(i, stage, attempt, StepFailed, err)
		return review.Result{}, err
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (r *Run) setStage(i int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{Phase: PhaseRunning, Stage: i}
}

func (r *Run) record(i int, stage Producer, attempt int, status StepStatus, err error) {
	rec := StepRecord{
		Stage:   i,
		Role:    stage.Role(),
		Attempt: attempt,
		Status:  status,
		Time:    time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	r.mu.Lock()
	r.history = append(r.history, rec)
	r.mu.Unlock()
}

func (r *Run) fail(i int, err error) error {
	stage := r.p.stages[i]
	se := &StageError{Index: i, Role: stage.Role(), Err: err}
	r.mu.Lock()
	r.state = State{Phase: PhaseFailed, Stage: i, Err: se}
	r.mu.Unlock()
	r.p.notify(Event{RunID: r.id, Kind: EventRunFailed, Stage: i, Total: r.p.Len(), Role: stage.Role(), Err: se})
	log.Error("[run %s] failed: %v", r.id, se)
	return se
}

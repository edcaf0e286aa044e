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

// Package workflow exposes the pipeline as the generate_workflow operation
// and keeps recent runs for later retrieval.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/flowmaster/internal/agent"
	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/internal/utils"
	"github.com/cloudwego/flowmaster/llm/prompt"
)

var (
	ErrEmptyIdea    = errors.New("idea must not be empty")
	ErrUnknownRole  = errors.New("role is not a stage of the pipeline")
	ErrNotFound     = errors.New("workflow not found")
	ErrMissingField = errors.New("missing required field")
)

// placeholders used when a regeneration request omits upstream context.
const (
	missingUpstream = "(not provided)"
	missingHistory  = "(memory disabled)"
)

type Service struct {
	pipeline *pipeline.Pipeline
	store    *Store
}

func NewService(p *pipeline.Pipeline, store *Store) *Service {
	if store == nil {
		store = NewStore(DefaultCapacity)
	}
	return &Service{pipeline: p, store: store}
}

func (s *Service) Pipeline() *pipeline.Pipeline { return s.pipeline }

// GenerateWorkflow runs the pipeline for idea. On failure no partial
// workflow is returned.
func (s *Service) GenerateWorkflow(ctx context.Context, idea string, enableMemory bool) (*Response, error) {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		return nil, ErrEmptyIdea
	}
	start := time.Now()
	run := s.pipeline.NewRun(idea, pipeline.RunOptions{EnableMemory: enableMemory})
	s.store.begin(run, idea)
	log.Info("[run %s] generating workflow for %q (memory: %v)", run.ID(), utils.Truncate(idea, 80), enableMemory)

	ledger, err := run.Execute(ctx)
	if err != nil {
		s.store.fail(run.ID(), err)
		return nil, utils.WrapError(err, "generate workflow")
	}

	resp := &Response{
		ID:            run.ID(),
		ProjectName:   ProjectName(ledger),
		Status:        StatusCompleted,
		Workflow:      newWorkflow(ledger, run.History()),
		ExecutionTime: time.Since(start).Seconds(),
	}
	s.store.complete(run.ID(), resp)
	return resp, nil
}

// Get returns a stored run.
func (s *Service) Get(id string) (Record, error) {
	rec, ok := s.store.Get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (s *Service) List() []Record { return s.store.List() }

type RegenerateRequest struct {
	Role           role.Role         `json:"role"`
	Idea           string            `json:"idea"`
	PreviousOutput string            `json:"previous_output"`
	Feedback       string            `json:"feedback"`
	Context        map[string]string `json:"context,omitempty"`
}

// Regenerate asks a stage agent to revise its previous output according
// to user feedback. Upstream context not supplied in the request is
// replaced by placeholders.
func (s *Service) Regenerate(ctx context.Context, req RegenerateRequest) (agent.Artifact, error) {
	producer, ok := s.pipeline.Stage(req.Role)
	if !ok {
		return agent.Artifact{}, fmt.Errorf("%w: %q", ErrUnknownRole, req.Role)
	}
	if strings.TrimSpace(req.PreviousOutput) == "" || strings.TrimSpace(req.Feedback) == "" {
		return agent.Artifact{}, fmt.Errorf("%w: previous_output and feedback", ErrMissingField)
	}
	vars := map[string]string{
		prompt.KeyIdea:         req.Idea,
		prompt.KeyUpstream:     missingUpstream,
		prompt.KeyUpstreamRole: "previous stage",
		prompt.KeyHistory:      missingHistory,
	}
	for k, v := range req.Context {
		vars[k] = v
	}
	art, err := s.pipeline.Unit().Regenerate(ctx, producer, vars, req.PreviousOutput, req.Feedback)
	if err != nil {
		return agent.Artifact{}, utils.WrapError(err, "regenerate %s", req.Role)
	}
	return art, nil
}

type FeedbackRequest struct {
	Role     role.Role `json:"role"`
	Content  string    `json:"content"`
	Feedback string    `json:"feedback"`
}

// ReviewArtifact critiques a user-edited artifact, weighing the user's
// feedback, and improves it.
func (s *Service) ReviewArtifact(ctx context.Context, req FeedbackRequest) (review.Result, error) {
	if _, ok := s.pipeline.Stage(req.Role); !ok {
		return review.Result{}, fmt.Errorf("%w: %q", ErrUnknownRole, req.Role)
	}
	if strings.TrimSpace(req.Content) == "" {
		return review.Result{}, fmt.Errorf("%w: content", ErrMissingField)
	}
	original := agent.NewArtifact(req.Role, strings.TrimSpace(req.Content), time.Now())
	res, err := s.pipeline.Unit().Review(ctx, original, s.pipeline.Critic(), s.pipeline.Improver(), strings.TrimSpace(req.Feedback))
	if err != nil {
		return review.Result{}, utils.WrapError(err, "review %s artifact", req.Role)
	}
	return res, nil
}

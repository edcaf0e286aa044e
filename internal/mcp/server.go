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

// Package mcp exposes the FlowMaster pipeline as an MCP server.
package mcp

import (
	"context"
	"strings"

	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/internal/workflow"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ToolGenerateWorkflow = "generate_workflow"
	ToolListRoles        = "list_roles"
	ToolGetWorkflow      = "get_workflow"
	ToolReviewArtifact   = "review_artifact"
	PromptPlanProduct    = "plan_product"
)

type ServerOptions struct {
	ServerName    string
	ServerVersion string
	Verbose       bool
	Service       *workflow.Service
}

type Server struct {
	*server.MCPServer
	svc *workflow.Service
}

func NewServer(opts ServerOptions) *Server {
	hooks := &server.Hooks{}
	if opts.Verbose {
		hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
			log.Debug("call tool %s", req.Params.Name)
		})
	}
	s := &Server{
		MCPServer: server.NewMCPServer(opts.ServerName, opts.ServerVersion,
			server.WithToolCapabilities(false),
			server.WithPromptCapabilities(false),
			server.WithRecovery(),
			server.WithHooks(hooks),
		),
		svc: opts.Service,
	}
	for _, t := range s.tools() {
		s.AddTool(t.Tool, t.Handler)
	}
	s.AddPrompt(mcp.NewPrompt(PromptPlanProduct,
		mcp.WithPromptDescription("Plan a product idea through every pipeline stage"),
		mcp.WithArgument("idea", mcp.ArgumentDescription("The product idea"), mcp.RequiredArgument()),
	), handlePlanProductPrompt)
	return s
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer)
}

func (s *Server) tools() []Tool {
	return []Tool{
		NewTool(ToolGenerateWorkflow, "Run a product idea through every stage. Each stage output is critiqued and improved before the next stage sees it.", s.GenerateWorkflow),
		NewTool(ToolListRoles, "List the stages of the pipeline in execution order.", s.ListRoles),
		NewTool(ToolGetWorkflow, "Render a finished workflow as a markdown document.", s.GetWorkflow),
		NewTool(ToolReviewArtifact, "Critique and improve one artifact with reviewer feedback.", s.ReviewArtifact),
	}
}

type GenerateWorkflowReq struct {
	Idea         string `json:"idea" jsonschema:"description=The product idea to plan"`
	EnableMemory *bool  `json:"enable_memory,omitempty" jsonschema:"description=Give memory-enabled stages the outputs of every earlier stage (default true)"`
}

type GenerateWorkflowResp struct {
	ID            string  `json:"id"`
	ProjectName   string  `json:"project_name"`
	Status        string  `json:"status"`
	ExecutionTime float64 `json:"execution_time"`
	Document      string  `json:"document"`
}

func (s *Server) GenerateWorkflow(ctx context.Context, req GenerateWorkflowReq) (*GenerateWorkflowResp, error) {
	enableMemory := req.EnableMemory == nil || *req.EnableMemory
	resp, err := s.svc.GenerateWorkflow(ctx, req.Idea, enableMemory)
	if err != nil {
		return nil, err
	}
	return &GenerateWorkflowResp{
		ID:            resp.ID,
		ProjectName:   resp.ProjectName,
		Status:        resp.Status,
		ExecutionTime: resp.ExecutionTime,
		Document:      workflow.Markdown(resp),
	}, nil
}

type ListRolesReq struct{}

type RoleSummary struct {
	Role   role.Role `json:"role"`
	Title  string    `json:"title"`
	Goal   string    `json:"goal,omitempty"`
	Memory bool      `json:"memory"`
}

type ListRolesResp struct {
	Pipeline string        `json:"pipeline"`
	Stages   []RoleSummary `json:"stages"`
	Critic   role.Role     `json:"critic"`
	Improver role.Role     `json:"improver"`
}

func (s *Server) ListRoles(ctx context.Context, _ ListRolesReq) (*ListRolesResp, error) {
	p := s.svc.Pipeline()
	resp := &ListRolesResp{
		Pipeline: p.Name(),
		Critic:   p.Critic().Role(),
		Improver: p.Improver().Role(),
	}
	for _, r := range p.Roles() {
		st, _ := p.Stage(r)
		sum := RoleSummary{Role: r, Title: r.Label(), Memory: st.MemoryEnabled()}
		if pp, ok := st.(interface{ Persona() *persona.Persona }); ok {
			sum.Goal = pp.Persona().Goal
		}
		resp.Stages = append(resp.Stages, sum)
	}
	return resp, nil
}

type GetWorkflowReq struct {
	ID string `json:"id" jsonschema:"description=Workflow id returned by generate_workflow"`
}

type GetWorkflowResp struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	Document string `json:"document,omitempty"`
}

func (s *Server) GetWorkflow(ctx context.Context, req GetWorkflowReq) (*GetWorkflowResp, error) {
	rec, err := s.svc.Get(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, err
	}
	resp := &GetWorkflowResp{ID: rec.ID, Status: string(rec.Status), State: rec.State, Error: rec.Error}
	if rec.Response != nil {
		resp.Document = workflow.Markdown(rec.Response)
	}
	return resp, nil
}

type ReviewArtifactReq struct {
	Role     string `json:"role" jsonschema:"description=Stage role that produced the content"`
	Content  string `json:"content" jsonschema:"description=Artifact content to review"`
	Feedback string `json:"feedback,omitempty" jsonschema:"description=What the critic should focus on"`
}

type ReviewArtifactResp struct {
	Status   string `json:"status"`
	Score    int    `json:"score"`
	Critique string `json:"critique"`
	Improved string `json:"improved"`
}

func (s *Server) ReviewArtifact(ctx context.Context, req ReviewArtifactReq) (*ReviewArtifactResp, error) {
	r, err := role.Parse(req.Role)
	if err != nil {
		return nil, err
	}
	res, err := s.svc.ReviewArtifact(ctx, workflow.FeedbackRequest{Role: r, Content: req.Content, Feedback: req.Feedback})
	if err != nil {
		return nil, err
	}
	return &ReviewArtifactResp{
		Status:   string(res.Critique.Status),
		Score:    res.Critique.Score,
		Critique: res.Critique.Markdown(),
		Improved: res.Improved.Content,
	}, nil
}

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

package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	stdlog "log"
	"testing"

	"github.com/cloudwego/flowmaster/internal/persona"
	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/internal/workflow"
	"github.com/cloudwego/flowmaster/llm"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := persona.NewRegistry()
	require.NoError(t, reg.Load())
	def := pipeline.Definition{
		Name:        "test",
		Stages:      []role.Role{role.CEO, role.PM},
		Critic:      role.Critic,
		Improver:    role.Improver,
		MaxAttempts: 1,
	}
	p, err := pipeline.Build(context.Background(), def, reg, llm.NewScriptedCompleter(llm.DefaultScript()), nil,
		pipeline.WithBackOff(pipeline.NoWait))
	require.NoError(t, err)
	return NewServer(ServerOptions{
		ServerName:    "flowmaster",
		ServerVersion: "test",
		Service:       workflow.NewService(p, workflow.NewStore(10)),
	})
}

func sendAndRecv(t *testing.T, req any, w io.Writer, scanner *bufio.Scanner) map[string]any {
	t.Helper()
	js, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = w.Write(append(js, '\n'))
	require.NoError(t, err)
	require.True(t, scanner.Scan(), "failed to read response")
	var resp map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
	return resp
}

func TestStdioServer(t *testing.T) {
	svr := newTestServer(t)

	stdinReader, stdinWriter := io.Pipe()
	stdoutReader, stdoutWriter := io.Pipe()

	stdio := server.NewStdioServer(svr.MCPServer)
	stdio.SetErrorLogger(stdlog.New(io.Discard, "", 0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = stdio.Listen(ctx, stdinReader, stdoutWriter)
		stdoutWriter.Close()
		close(done)
	}()

	scanner := bufio.NewScanner(stdoutReader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	resp := sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "2024-11-05",
			"clientInfo":      map[string]any{"name": "test-client", "version": "1.0.0"},
		},
	}, stdinWriter, scanner)
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok, "%v", resp)
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "flowmaster", info["name"])

	resp = sendAndRecv(t, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	}, stdinWriter, scanner)
	tools := resp["result"].(map[string]any)["tools"].([]any)
	var names []string
	for _, tl := range tools {
		names = append(names, tl.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{ToolGenerateWorkflow, ToolListRoles, ToolGetWorkflow, ToolReviewArtifact}, names)

	cancel()
	stdinWriter.Close()
	<-done
}

func callTool(t *testing.T, cli *client.Client, name string, args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := cli.CallTool(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text, res.IsError
	case *mcp.TextContent:
		return c.Text, res.IsError
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return "", false
}

func newInProcessClient(t *testing.T) *client.Client {
	t.Helper()
	cli, err := client.NewInProcessClient(newTestServer(t).MCPServer)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, cli.Start(ctx))
	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "test", Version: "1.0.0"}
	_, err = cli.Initialize(ctx, init)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestGenerateAndGetWorkflowTools(t *testing.T) {
	cli := newInProcessClient(t)
	idea := "A mobile app for tracking plant watering schedules"

	text, isErr := callTool(t, cli, ToolGenerateWorkflow, map[string]any{"idea": idea})
	require.False(t, isErr, text)
	var gen GenerateWorkflowResp
	require.NoError(t, json.Unmarshal([]byte(text), &gen))
	assert.Equal(t, workflow.StatusCompleted, gen.Status)
	assert.Equal(t, idea, gen.ProjectName)
	assert.Contains(t, gen.Document, "## 2. PM")

	text, isErr = callTool(t, cli, ToolGetWorkflow, map[string]any{"id": gen.ID})
	require.False(t, isErr, text)
	var got GetWorkflowResp
	require.NoError(t, json.Unmarshal([]byte(text), &got))
	assert.Equal(t, "COMPLETED", got.State)
	assert.Equal(t, gen.Document, got.Document)

	text, isErr = callTool(t, cli, ToolGetWorkflow, map[string]any{"id": "nope"})
	assert.True(t, isErr)
	assert.Contains(t, text, "workflow not found")

	text, isErr = callTool(t, cli, ToolGenerateWorkflow, map[string]any{"idea": " "})
	assert.True(t, isErr)
	assert.Contains(t, text, "idea must not be empty")
}

func TestListRolesTool(t *testing.T) {
	cli := newInProcessClient(t)
	text, isErr := callTool(t, cli, ToolListRoles, map[string]any{})
	require.False(t, isErr, text)

	var resp ListRolesResp
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, "test", resp.Pipeline)
	assert.Equal(t, role.Critic, resp.Critic)
	assert.Equal(t, role.Improver, resp.Improver)
	require.Len(t, resp.Stages, 2)
	assert.Equal(t, role.CEO, resp.Stages[0].Role)
	assert.NotEmpty(t, resp.Stages[0].Goal)
}

func TestReviewArtifactTool(t *testing.T) {
	cli := newInProcessClient(t)
	text, isErr := callTool(t, cli, ToolReviewArtifact, map[string]any{
		"role":     "Product Manager",
		"content":  "# PRD\n\nUsers water plants.",
		"feedback": "add success metrics",
	})
	require.False(t, isErr, text)
	var resp ReviewArtifactResp
	require.NoError(t, json.Unmarshal([]byte(text), &resp))
	assert.Equal(t, "NEEDS_IMPROVEMENT", resp.Status)
	assert.Equal(t, 74, resp.Score)
	assert.Contains(t, resp.Improved, "## Changes")

	text, isErr = callTool(t, cli, ToolReviewArtifact, map[string]any{"role": "janitor", "content": "x"})
	assert.True(t, isErr)
	assert.Contains(t, text, "unknown role")
}

func TestPlanProductPrompt(t *testing.T) {
	cli := newInProcessClient(t)
	req := mcp.GetPromptRequest{}
	req.Params.Name = PromptPlanProduct
	req.Params.Arguments = map[string]string{"idea": "plant app"}
	res, err := cli.GetPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, mcp.RoleUser, res.Messages[0].Role)
}

func TestInputSchema(t *testing.T) {
	var s map[string]any
	require.NoError(t, json.Unmarshal(inputSchema[GenerateWorkflowReq](), &s))
	assert.Equal(t, "object", s["type"])
	assert.Equal(t, []any{"idea"}, s["required"])
	props := s["properties"].(map[string]any)
	assert.Contains(t, props, "enable_memory")
}

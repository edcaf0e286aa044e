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
	"context"
	"encoding/json"

	"github.com/cloudwego/flowmaster/internal/utils"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Tool struct {
	mcp.Tool
	Handler server.ToolHandlerFunc
}

// NewTool binds a typed handler to an MCP tool whose input schema is
// reflected from R. Handler errors become IsError results, not protocol errors.
func NewTool[R any, T any](name string, desc string, handler func(ctx context.Context, req R) (*T, error)) Tool {
	return Tool{
		Tool: mcp.NewToolWithRawSchema(name, desc, inputSchema[R]()),
		Handler: func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var req R
			if err := request.BindArguments(&req); err != nil {
				return nil, err
			}
			var final string
			var isError bool
			if resp, err := handler(ctx, req); err != nil {
				isError = true
				final = err.Error()
			} else if js, err := utils.MarshalJSONBytes(resp); err != nil {
				isError = true
				final = err.Error()
			} else {
				final = string(js)
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.NewTextContent(final),
				},
				IsError: isError,
			}, nil
		},
	}
}

func inputSchema[R any]() json.RawMessage {
	r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := r.Reflect(new(R))
	s.Version = ""
	js, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return js
}

func handlePlanProductPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	idea := request.Params.Arguments["idea"]
	return &mcp.GetPromptResult{
		Description: "Plan a product end to end with the FlowMaster pipeline",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: planProductPrompt + idea,
				},
			},
		},
	}, nil
}

const planProductPrompt = `Use the generate_workflow tool to turn the idea below into a reviewed product plan.
Call list_roles first if you need to know which stages will run, then present each stage's improved output.
If a stage needs rework, call review_artifact with the stage role, its content and your feedback.

Idea: `

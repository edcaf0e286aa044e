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

package tool

import (
	"context"
	"errors"

	emcp "github.com/cloudwego/eino-ext/components/tool/mcp"
	"github.com/cloudwego/flowmaster/version"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

type MCPConfig struct {
	Type    MCPType  `yaml:"type"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	Envs    []string `yaml:"envs"`
	SSEURL  string   `yaml:"sse_url"`
}

type MCPType string

const (
	MCPTypeStdio MCPType = "stdio"
	MCPTypeSSE   MCPType = "sse"
)

type MCPClient struct {
	cli *client.Client
}

func NewMCPClient(opts MCPConfig) (*MCPClient, error) {
	var cli *client.Client
	var err error
	switch opts.Type {
	case MCPTypeStdio, "":
		if opts.Command == "" {
			return nil, errors.New("command is empty")
		}
		cli, err = client.NewStdioMCPClient(opts.Command, opts.Envs, opts.Args...)
	case MCPTypeSSE:
		if opts.SSEURL == "" {
			return nil, errors.New("sse url is empty")
		}
		cli, err = client.NewSSEMCPClient(opts.SSEURL)
	default:
		return nil, errors.New("unsupported mcp type")
	}
	if err != nil {
		return nil, err
	}
	return &MCPClient{cli: cli}, nil
}

// WrapMCPClient adopts an already constructed client, e.g. an in-process one.
func WrapMCPClient(cli *client.Client) *MCPClient {
	return &MCPClient{cli: cli}
}

func (c *MCPClient) Start(ctx context.Context) error {
	if err := c.cli.Start(ctx); err != nil {
		return err
	}
	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "flowmaster",
		Version: version.Version,
	}
	_, err := c.cli.Initialize(ctx, initRequest)
	return err
}

// GetTools lists the server's tools as eino tools. A non-empty names list
// restricts the result to those tools.
func (c *MCPClient) GetTools(ctx context.Context, names ...string) ([]Tool, error) {
	mcpTools, err := emcp.GetTools(ctx, &emcp.Config{Cli: c.cli, ToolNameList: names})
	if err != nil {
		return nil, err
	}
	tools := make([]Tool, 0, len(mcpTools))
	for _, t := range mcpTools {
		tools = append(tools, t)
	}
	return tools, nil
}

func (c *MCPClient) Close() error {
	return c.cli.Close()
}

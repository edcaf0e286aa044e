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
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cloudwego/flowmaster/internal/log"
	"gopkg.in/yaml.v3"
)

// ServersFile is the YAML document listing MCP servers by name.
type ServersFile struct {
	Servers map[string]MCPConfig `yaml:"servers"`
}

// LoadServers reads an MCP servers file.
func LoadServers(path string) (map[string]MCPConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp servers %s: %w", path, err)
	}
	var f ServersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse mcp servers %s: %w", path, err)
	}
	return f.Servers, nil
}

// Toolbox resolves persona allowed-tools entries to tools. An entry is a
// server name, optionally followed by the tools to keep:
// "git" or "git(git_status git_log)". Servers are started on first use.
type Toolbox struct {
	mu      sync.Mutex
	configs map[string]MCPConfig
	clients map[string]*MCPClient
}

func NewToolbox(servers map[string]MCPConfig) *Toolbox {
	configs := make(map[string]MCPConfig, len(servers))
	for name, cfg := range servers {
		configs[name] = cfg
	}
	return &Toolbox{
		configs: configs,
		clients: make(map[string]*MCPClient),
	}
}

// Add registers a started client under name.
func (b *Toolbox) Add(name string, cli *MCPClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[name] = cli
}

// Resolve returns the tools named by entries, in entry order.
func (b *Toolbox) Resolve(ctx context.Context, entries []string) ([]Tool, error) {
	var out []Tool
	for _, entry := range entries {
		server, names, err := ParseEntry(entry)
		if err != nil {
			return nil, err
		}
		cli, err := b.client(ctx, server)
		if err != nil {
			return nil, err
		}
		tools, err := cli.GetTools(ctx, names...)
		if err != nil {
			return nil, fmt.Errorf("list tools of %s: %w", server, err)
		}
		out = append(out, tools...)
	}
	return out, nil
}

func (b *Toolbox) client(ctx context.Context, server string) (*MCPClient, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cli, ok := b.clients[server]; ok {
		return cli, nil
	}
	cfg, ok := b.configs[server]
	if !ok {
		return nil, fmt.Errorf("mcp server %q is not configured", server)
	}
	cli, err := NewMCPClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("mcp server %s: %w", server, err)
	}
	if err := cli.Start(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("start mcp server %s: %w", server, err)
	}
	log.Info("started mcp server %s", server)
	b.clients[server] = cli
	return cli, nil
}

// Close stops every started server.
func (b *Toolbox) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var first error
	for name, cli := range b.clients {
		if err := cli.Close(); err != nil && first == nil {
			first = fmt.Errorf("close mcp server %s: %w", name, err)
		}
		delete(b.clients, name)
	}
	return first
}

// ParseEntry splits "server(tool1 tool2)" into its server and tool names.
func ParseEntry(entry string) (server string, tools []string, err error) {
	entry = strings.TrimSpace(entry)
	open := strings.IndexByte(entry, '(')
	if open < 0 {
		if entry == "" {
			return "", nil, fmt.Errorf("empty tool entry")
		}
		return entry, nil, nil
	}
	if !strings.HasSuffix(entry, ")") || open == 0 {
		return "", nil, fmt.Errorf("malformed tool entry %q", entry)
	}
	server = entry[:open]
	tools = strings.Fields(entry[open+1 : len(entry)-1])
	return server, tools, nil
}

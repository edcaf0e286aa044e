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

package llm

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/flowmaster/llm/tool"
)

type ModelConfig struct {
	Name        string        `json:"name" yaml:"name"` // alias of the config, not endpoint!
	APIType     ModelType     `json:"type" yaml:"type"`
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	APIKey      string        `json:"-" yaml:"api_key"`
	ModelName   string        `json:"model_name" yaml:"model_name"` // the endpoint of the model, like `gpt-4o-mini`
	Temperature *float32      `json:"temperature" yaml:"temperature"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"` // per call, default: 600s
}

type ModelType string

func NewModelType(t string) ModelType {
	switch strings.ToLower(t) {
	case "ollama":
		return ModelTypeOllama
	case "ark", "doubao":
		return ModelTypeARK
	case "openai", "gpt":
		return ModelTypeOpenAI
	case "openai-sdk", "openai-go":
		return ModelTypeOpenAISDK
	case "claude", "anthropic":
		return ModelTypeClaude
	case "dashscope", "qwen", "tongyi":
		return ModelTypeDashScope
	case "deepseek":
		return ModelTypeDeepSeek
	case "mock", "stub":
		return ModelTypeMock
	}
	return ModelTypeUnknown
}

const (
	ModelTypeUnknown   ModelType = ""
	ModelTypeOllama    ModelType = "ollama"
	ModelTypeARK       ModelType = "ark"
	ModelTypeOpenAI    ModelType = "openai"
	ModelTypeOpenAISDK ModelType = "openai-sdk" // official openai-go client, no eino
	ModelTypeClaude    ModelType = "claude"
	ModelTypeDashScope ModelType = "dashscope"
	ModelTypeDeepSeek  ModelType = "deepseek"
	ModelTypeMock      ModelType = "mock" // scripted replies, no network
)

const (
	defaultMaxTokens = 16 * 1024
	defaultTimeout   = 600 * time.Second
)

func (m *ModelConfig) applyDefaults() {
	if m.MaxTokens == 0 {
		m.MaxTokens = defaultMaxTokens
	}
	if m.Timeout == 0 {
		m.Timeout = defaultTimeout
	}
	if m.Name == "" {
		m.Name = string(m.APIType)
	}
}

// Request is one completion call.
type Request struct {
	// Role is the persona issuing the call, used for logging and stubs.
	Role   string
	System string
	User   string
	// MaxIterations bounds reasoning/tool rounds. Collaborators without
	// tool use pass it through or ignore it.
	MaxIterations int
	Tools         []tool.Tool
}

type Response struct {
	Content      string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completer is the language model collaborator. Implementations must be
// safe for concurrent use and return errors classified by Classify.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// ChatModel is the interface for making LLM backend.
type ChatModel interface {
	model.ToolCallingChatModel
}

// NewCompleter builds the collaborator selected by cfg.APIType.
func NewCompleter(ctx context.Context, cfg ModelConfig) (Completer, error) {
	cfg.applyDefaults()
	switch cfg.APIType {
	case ModelTypeMock:
		return NewScriptedCompleter(DefaultScript()), nil
	case ModelTypeOpenAISDK:
		return NewOpenAICompleter(cfg)
	}
	m, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewChatCompleter(ctx, cfg.Name, m, cfg.Timeout)
}

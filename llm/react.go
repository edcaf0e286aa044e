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

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/flowmaster/internal/log"
)

const finalAnswerReminder = "The iteration limit has been reached. Stop calling tools and give your final answer now."

// generateWithTools runs req as a ReAct agent. Every iteration is one model
// step plus one tool step, so the graph step bound is twice the iteration cap.
func (c *ChatCompleter) generateWithTools(ctx context.Context, req Request) (*schema.Message, error) {
	maxStep := 0
	if req.MaxIterations > 0 {
		maxStep = req.MaxIterations*2 + 1
	}
	ra, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: c.model,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: req.Tools},
		MaxStep:          maxStep,
		MessageModifier:  newMessageModifier(req.System, req.Role, req.MaxIterations),
	})
	if err != nil {
		return nil, err
	}
	return ra.Generate(ctx, []*schema.Message{schema.UserMessage(req.User)},
		agent.WithComposeOptions(compose.WithCallbacks(CallbackHandler{})))
}

// newMessageModifier prepends the system prompt and, once the conversation
// reaches the iteration limit, asks the model to conclude.
func newMessageModifier(sysPrompt string, name string, limit int) func(ctx context.Context, input []*schema.Message) []*schema.Message {
	return func(ctx context.Context, input []*schema.Message) []*schema.Message {
		log.Debug("message modifier, name: %v, limit: %d, input: %v", name, limit, len(input))
		if limit > 0 && assistantTurns(input) >= limit-1 {
			input = append(input, schema.UserMessage(finalAnswerReminder))
		}
		return appendSysPrompt(sysPrompt, input)
	}
}

func assistantTurns(input []*schema.Message) int {
	n := 0
	for _, m := range input {
		if m.Role == schema.Assistant {
			n++
		}
	}
	return n
}

func appendSysPrompt(sysPrompt string, input []*schema.Message) []*schema.Message {
	res := make([]*schema.Message, 0, len(input)+1)
	res = append(res, schema.SystemMessage(sysPrompt))
	res = append(res, input...)
	return res
}

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
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/flowmaster/internal/log"
)

var _ Completer = (*ChatCompleter)(nil)

// ChatCompleter adapts an eino chat model to Completer. Plain requests run
// through a compiled single-node chain; requests that carry tools run as a
// ReAct agent bounded by the request's MaxIterations.
type ChatCompleter struct {
	name    string
	model   ChatModel
	chain   compose.Runnable[[]*schema.Message, *schema.Message]
	timeout time.Duration
}

func NewChatCompleter(ctx context.Context, name string, m ChatModel, timeout time.Duration) (*ChatCompleter, error) {
	chain, err := compose.NewChain[[]*schema.Message, *schema.Message]().
		AppendChatModel(m).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}
	return &ChatCompleter{
		name:    name,
		model:   m,
		chain:   chain,
		timeout: timeout,
	}, nil
}

func (c *ChatCompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	op := fmt.Sprintf("%s complete (%s)", c.name, req.Role)
	log.Debug("[%s] system: %d bytes, user: %d bytes, tools: %d", req.Role, len(req.System), len(req.User), len(req.Tools))

	var (
		out *schema.Message
		err error
	)
	if len(req.Tools) > 0 {
		out, err = c.generateWithTools(ctx, req)
	} else {
		msgs := []*schema.Message{
			schema.SystemMessage(req.System),
			schema.UserMessage(req.User),
		}
		out, err = c.chain.Invoke(ctx, msgs, compose.WithCallbacks(CallbackHandler{}))
	}
	if err != nil {
		return Response{}, Classify(op, err)
	}
	return responseFromMessage(op, out)
}

func responseFromMessage(op string, msg *schema.Message) (Response, error) {
	if msg == nil {
		return Response{}, Errorf(KindMalformedResponse, op, "no message returned")
	}
	var resp Response
	resp.Content = msg.Content
	if meta := msg.ResponseMeta; meta != nil {
		resp.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			resp.Usage = Usage{
				PromptTokens:     meta.Usage.PromptTokens,
				CompletionTokens: meta.Usage.CompletionTokens,
			}
		}
	}
	if err := ClassifyFinish(op, resp.FinishReason); err != nil {
		return Response{}, err
	}
	return resp, nil
}

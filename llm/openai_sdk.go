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
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var _ Completer = (*OpenAICompleter)(nil)

// ErrToolsUnsupported is returned for requests with tools by backends that
// cannot run them. Use an eino backend for personas with allowed-tools.
var ErrToolsUnsupported = errors.New("tool calling is not supported by this backend")

// OpenAICompleter calls the chat completions API through the official
// openai-go client. Retries are left to the pipeline.
type OpenAICompleter struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature *float32
	timeout     time.Duration
}

func NewOpenAICompleter(cfg ModelConfig) (*OpenAICompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; set API_KEY")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("openai model is required; set MODEL_NAME")
	}
	cfg.applyDefaults()
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAICompleter{
		client:      openai.NewClient(opts...),
		model:       cfg.ModelName,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

func (o *OpenAICompleter) Complete(ctx context.Context, req Request) (Response, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	op := fmt.Sprintf("openai complete (%s)", req.Role)
	if len(req.Tools) > 0 {
		return Response{}, fmt.Errorf("%s: %w", op, ErrToolsUnsupported)
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		MaxCompletionTokens: openai.Int(int64(o.maxTokens)),
	}
	if o.temperature != nil {
		params.Temperature = openai.Float(float64(*o.temperature))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, Classify(op, wrapAPIError(err))
	}
	if len(resp.Choices) == 0 {
		return Response{}, Errorf(KindMalformedResponse, op, "empty choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return Response{}, Errorf(KindContentPolicy, op, "model refused: %s", choice.Message.Refusal)
	}
	if err := ClassifyFinish(op, choice.FinishReason); err != nil {
		return Response{}, err
	}
	return Response{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// apiError exposes the status code of an openai API error to Classify.
type apiError struct {
	err *openai.Error
}

func (e apiError) Error() string { return e.err.Error() }

func (e apiError) HTTPStatus() int { return e.err.StatusCode }

func (e apiError) Unwrap() error { return e.err }

func wrapAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiError{err: apiErr}
	}
	return err
}

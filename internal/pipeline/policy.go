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

package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/llm"
)

// Policy decides what to do when a stage fails.
type Policy interface {
	OnStageFailure(ctx context.Context, stage int, r role.Role, err error, attempt int) Decision
}

// Decision is the action to take after a stage failure.
type Decision string

const (
	DecisionRetry Decision = "retry"
	DecisionAbort Decision = "abort"
)

const DefaultMaxAttempts = 3

// DefaultPolicy retries transient errors until MaxAttempts attempts have
// been made, and aborts on anything else.
type DefaultPolicy struct {
	MaxAttempts int
}

// OnStageFailure implements Policy.
func (p DefaultPolicy) OnStageFailure(ctx context.Context, stage int, r role.Role, err error, attempt int) Decision {
	if !llm.IsRetryable(err) {
		return DecisionAbort
	}
	if attempt >= p.MaxAttempts {
		return DecisionAbort
	}
	return DecisionRetry
}

// DefaultBackOff waits 1s, 2s, 4s... capped at 10s between attempts.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.Reset()
	return b
}

// NoWait retries immediately. Meant for tests and scripted runs.
func NoWait() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

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
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
)

type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventStageRetry     EventKind = "stage_retry"
	EventStageCompleted EventKind = "stage_completed"
	EventRunCompleted   EventKind = "run_completed"
	EventRunFailed      EventKind = "run_failed"
)

// Event reports progress of a run. Result is set for EventStageCompleted.
type Event struct {
	RunID   string
	Kind    EventKind
	Stage   int
	Total   int
	Role    role.Role
	Attempt int
	Err     error
	Result  *review.Result
}

// Observer receives run events synchronously, from the run's goroutine.
type Observer func(Event)

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
	"fmt"
	"time"

	"github.com/cloudwego/flowmaster/internal/role"
)

// Phase is the coarse state of a run.
type Phase string

const (
	PhasePending   Phase = "PENDING"
	PhaseRunning   Phase = "RUNNING"
	PhaseCompleted Phase = "COMPLETED"
	PhaseFailed    Phase = "FAILED"
)

// State is a run's position in PENDING -> RUNNING(i) -> COMPLETED | FAILED(i, err).
// Stage is the running or failed stage index, and -1 otherwise.
type State struct {
	Phase Phase
	Stage int
	Err   error
}

func (s State) String() string {
	switch s.Phase {
	case PhaseRunning:
		return fmt.Sprintf("%s(%d)", s.Phase, s.Stage)
	case PhaseFailed:
		return fmt.Sprintf("%s(%d, %v)", s.Phase, s.Stage, s.Err)
	default:
		return string(s.Phase)
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s.Phase == PhaseCompleted || s.Phase == PhaseFailed
}

// StepRecord is an immutable log entry for one stage attempt.
type StepRecord struct {
	Stage   int        `json:"stage"`
	Role    role.Role  `json:"role"`
	Attempt int        `json:"attempt"`
	Status  StepStatus `json:"status"`
	Error   string     `json:"error,omitempty"`
	Time    time.Time  `json:"time"`
}

// StepStatus is the outcome of a stage attempt.
type StepStatus string

const (
	StepOK     StepStatus = "ok"
	StepFailed StepStatus = "failed"
	StepRetry  StepStatus = "retry"
)

// StageError is a run failure annotated with the failing stage.
type StageError struct {
	Index int
	Role  role.Role
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Index, e.Role, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

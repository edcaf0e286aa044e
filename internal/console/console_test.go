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

package console

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/role"
	"github.com/cloudwego/flowmaster/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResponse() *workflow.Response {
	return &workflow.Response{
		ID:            "run-1",
		ProjectName:   "Plant Pal",
		Status:        workflow.StatusCompleted,
		ExecutionTime: 12.34,
		Workflow: workflow.Workflow{
			Idea: "plant app",
			Stages: []workflow.Stage{
				{
					Role:  role.CEO,
					Title: "CEO",
					Hash:  "0123456789abcdef0123",
					Critique: review.Critique{
						Status: review.StatusApproved,
						Score:  91,
						Issues: []review.Issue{{Severity: review.SeverityLow, Description: "typo"}},
					},
				},
				{
					Role:  role.Designer,
					Title: "UI/UX Designer",
					Hash:  "abc",
					Critique: review.Critique{
						Status: review.StatusNeedsImprovement,
						Score:  60,
						Issues: []review.Issue{
							{Severity: review.SeverityHigh, Description: "no flows"},
							{Severity: review.SeverityMedium, Description: "contrast"},
						},
					},
				},
			},
		},
	}
}

func TestSummary(t *testing.T) {
	out := Summary(sampleResponse())

	assert.Contains(t, out, "Plant Pal")
	assert.Contains(t, out, "run run-1 finished in 12.3s")

	var rows []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "APPROVED") || strings.Contains(line, "NEEDS_IMPROVEMENT") {
			rows = append(rows, line)
		}
	}
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0], "CEO")
	assert.Contains(t, rows[0], "91")
	assert.Contains(t, rows[0], "0/0/1")
	assert.Contains(t, rows[0], "0123456789ab")
	assert.NotContains(t, rows[0], "0123456789abc")
	assert.Contains(t, rows[1], "UI/UX Designer")
	assert.Contains(t, rows[1], "1/1/0")
}

func TestTableAlignsColumns(t *testing.T) {
	plain := lipgloss.NewStyle()
	rows := [][]string{{"a", "b"}, {"long", "x"}}
	out := table(rows, [][]lipgloss.Style{repeat(plain, 2), repeat(plain, 2)})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Index(lines[0], "b"), strings.Index(lines[1], "x"))
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	obs := Progress(&buf)

	res := &review.Result{Role: role.CEO, Critique: review.Critique{Status: review.StatusApproved, Score: 88}}
	obs(pipeline.Event{Kind: pipeline.EventStageStarted, Stage: 0, Total: 2, Role: role.CEO})
	obs(pipeline.Event{Kind: pipeline.EventStageRetry, Stage: 0, Total: 2, Role: role.CEO, Attempt: 1, Err: errors.New("503")})
	obs(pipeline.Event{Kind: pipeline.EventStageCompleted, Stage: 0, Total: 2, Role: role.CEO, Result: res})
	obs(pipeline.Event{Kind: pipeline.EventRunFailed, Err: errors.New("boom")})
	obs(pipeline.Event{Kind: pipeline.EventRunCompleted})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "[1/2] CEO working...")
	assert.Contains(t, lines[1], "retrying (attempt 2): 503")
	assert.Contains(t, lines[2], "[1/2] CEO done")
	assert.Contains(t, lines[2], "APPROVED 88/100")
	assert.Contains(t, lines[3], "run failed: boom")
	assert.Contains(t, lines[4], "run completed")
}

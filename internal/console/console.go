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

// Package console renders pipeline progress and results for the terminal.
package console

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/cloudwego/flowmaster/internal/review"
	"github.com/cloudwego/flowmaster/internal/workflow"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CCCCCC"))
	approvedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	improveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	cellStyle     = lipgloss.NewStyle().PaddingRight(2)
)

func statusStyle(s review.Status) lipgloss.Style {
	switch s {
	case review.StatusApproved:
		return approvedStyle
	case review.StatusRejected:
		return rejectedStyle
	default:
		return improveStyle
	}
}

// Summary renders one line per stage of a finished workflow.
func Summary(resp *workflow.Response) string {
	header := []string{"#", "ROLE", "STATUS", "SCORE", "ISSUES (H/M/L)", "HASH"}
	rows := [][]string{header}
	styles := [][]lipgloss.Style{repeat(headerStyle, len(header))}
	for i, st := range resp.Workflow.Stages {
		c := st.Critique
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			st.Title,
			string(c.Status),
			fmt.Sprintf("%d", c.Score),
			fmt.Sprintf("%d/%d/%d", c.Count(review.SeverityHigh), c.Count(review.SeverityMedium), c.Count(review.SeverityLow)),
			shortHash(st.Hash),
		})
		line := repeat(lipgloss.NewStyle(), len(header))
		line[2] = statusStyle(c.Status)
		line[5] = detailStyle
		styles = append(styles, line)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(resp.ProjectName))
	b.WriteString("\n")
	b.WriteString(table(rows, styles))
	b.WriteString(detailStyle.Render(fmt.Sprintf("run %s finished in %.1fs", resp.ID, resp.ExecutionTime)))
	b.WriteString("\n")
	return b.String()
}

// table left-aligns cells to the widest value of each column. Widths are
// measured before styling so escape sequences do not skew them.
func table(rows [][]string, styles [][]lipgloss.Style) string {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for j, cell := range row {
			widths[j] = max(widths[j], lipgloss.Width(cell))
		}
	}
	var b strings.Builder
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			pad := cell + strings.Repeat(" ", widths[j]-lipgloss.Width(cell))
			cells[j] = cellStyle.Render(styles[i][j].Render(pad))
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, cells...), " "))
		b.WriteString("\n")
	}
	return b.String()
}

func repeat(s lipgloss.Style, n int) []lipgloss.Style {
	out := make([]lipgloss.Style, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// Progress returns an observer that prints one line per run event to w.
func Progress(w io.Writer) pipeline.Observer {
	return func(ev pipeline.Event) {
		var line string
		switch ev.Kind {
		case pipeline.EventStageStarted:
			line = fmt.Sprintf("[%d/%d] %s working...", ev.Stage+1, ev.Total, ev.Role.Label())
		case pipeline.EventStageRetry:
			line = improveStyle.Render(fmt.Sprintf("[%d/%d] %s retrying (attempt %d): %v", ev.Stage+1, ev.Total, ev.Role.Label(), ev.Attempt+1, ev.Err))
		case pipeline.EventStageCompleted:
			line = fmt.Sprintf("[%d/%d] %s done", ev.Stage+1, ev.Total, ev.Role.Label())
			if ev.Result != nil {
				c := ev.Result.Critique
				line += " " + statusStyle(c.Status).Render(fmt.Sprintf("%s %d/100", c.Status, c.Score))
			}
		case pipeline.EventRunFailed:
			line = rejectedStyle.Render(fmt.Sprintf("run failed: %v", ev.Err))
		case pipeline.EventRunCompleted:
			line = approvedStyle.Render("run completed")
		default:
			return
		}
		fmt.Fprintln(w, line)
	}
}

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

package review

import (
	"fmt"
	"strings"
)

// Markdown renders the critique as a document section.
func (c Critique) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Status:** %s  \n**Score:** %d/%d\n", c.Status, c.Score, MaxScore)
	writeList(&sb, "Strengths", c.Strengths)
	if len(c.Issues) > 0 {
		sb.WriteString("\n**Issues**\n\n")
		for _, is := range c.Issues {
			fmt.Fprintf(&sb, "- [%s] %s\n", is.Severity, is.Description)
		}
	}
	writeList(&sb, "Recommendations", c.Recommendations)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "\n**%s**\n\n", title)
	for _, s := range items {
		fmt.Fprintf(sb, "- %s\n", s)
	}
}

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

package workflow

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/cloudwego/flowmaster/internal/pipeline"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const DefaultProjectName = "FlowMaster Project"

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// ProjectName is the first heading of the first stage's improved artifact.
func ProjectName(l pipeline.Ledger) string {
	if l.Len() == 0 {
		return DefaultProjectName
	}
	if name := firstHeading(l.Results[0].Improved.Content); name != "" {
		return name
	}
	return DefaultProjectName
}

func firstHeading(md string) string {
	src := []byte(md)
	doc := markdown.Parser().Parse(text.NewReader(src))
	var name string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if h, ok := n.(*ast.Heading); ok && entering {
			name = strings.TrimSpace(string(h.Text(src)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return name
}

// Markdown renders the planning documents of resp as one document.
func Markdown(resp *Response) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", resp.ProjectName)
	fmt.Fprintf(&sb, "> %s\n\n", resp.Workflow.Idea)
	for i, st := range resp.Workflow.Stages {
		fmt.Fprintf(&sb, "## %d. %s\n\n", i+1, st.Title)
		sb.WriteString(demoteHeadings(st.Improved, 2))
		sb.WriteString("\n\n### Review\n\n")
		sb.WriteString(st.Critique.Markdown())
		sb.WriteString("\n")
	}
	return sb.String()
}

// HTML renders resp as a standalone HTML page.
func HTML(resp *Response) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(Markdown(resp)), &buf); err != nil {
		return "", err
	}
	var page strings.Builder
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&page, "<title>%s</title>\n", html.EscapeString(resp.ProjectName))
	page.WriteString("</head>\n<body>\n")
	page.Write(buf.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.String(), nil
}

// demoteHeadings shifts ATX headings outside code fences down by n levels.
func demoteHeadings(md string, n int) string {
	lines := strings.Split(strings.TrimSpace(md), "\n")
	inFence := false
	prefix := strings.Repeat("#", n)
	for i, line := range lines {
		trimmed := strings.TrimLeft(line, " ")
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence || !strings.HasPrefix(trimmed, "#") {
			continue
		}
		level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
		if level+n > 6 || (len(trimmed) > level && trimmed[level] != ' ') {
			continue
		}
		lines[i] = prefix + trimmed
	}
	return strings.Join(lines, "\n")
}

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

package persona

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

const maxIterationsLimit = 50

// ValidateName checks the persona name: 1-64 characters of lowercase
// letters, digits and single hyphens, matching its directory name.
func ValidateName(name string, dirName string) error {
	if len(name) == 0 {
		return fmt.Errorf("persona name cannot be empty")
	}
	if len(name) > 64 {
		return fmt.Errorf("persona name must be 1-64 characters, got %d", len(name))
	}
	for _, r := range name {
		if !unicode.IsLower(r) && !unicode.IsDigit(r) && r != '-' {
			return fmt.Errorf("persona name can only contain lowercase letters, numbers, and hyphens, got '%c'", r)
		}
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return fmt.Errorf("persona name cannot start or end with hyphen")
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("persona name cannot contain consecutive hyphens")
	}
	if baseDir := filepath.Base(dirName); name != baseDir {
		return fmt.Errorf("persona name '%s' must match directory name '%s'", name, baseDir)
	}
	return nil
}

// ValidateGoal checks the goal is 1-1024 characters.
func ValidateGoal(goal string) error {
	if len(goal) == 0 {
		return fmt.Errorf("persona goal cannot be empty")
	}
	if len(goal) > 1024 {
		return fmt.Errorf("persona goal must be 1-1024 characters, got %d", len(goal))
	}
	return nil
}

func ValidateMaxIterations(n int) error {
	if n < 1 || n > maxIterationsLimit {
		return fmt.Errorf("persona max-iterations must be between 1 and %d, got %d", maxIterationsLimit, n)
	}
	return nil
}

func ValidateTask(task string) error {
	if strings.TrimSpace(task) == "" {
		return fmt.Errorf("persona task template cannot be empty")
	}
	return nil
}

// ParseAllowedTools splits a space separated tool list, keeping spaces
// inside parentheses: "git(status log) fetch" -> ["git(status log)", "fetch"].
func ParseAllowedTools(toolsStr string) []string {
	if toolsStr == "" {
		return nil
	}

	var tools []string
	var current strings.Builder
	parenDepth := 0

	for _, r := range toolsStr {
		switch r {
		case '(':
			parenDepth++
			current.WriteRune(r)
		case ')':
			parenDepth--
			current.WriteRune(r)
		case ' ':
			if parenDepth == 0 {
				if current.Len() > 0 {
					tools = append(tools, strings.TrimSpace(current.String()))
					current.Reset()
				}
			} else {
				current.WriteRune(r)
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tools = append(tools, strings.TrimSpace(current.String()))
	}
	return tools
}

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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/flowmaster/internal/role"
	"gopkg.in/yaml.v3"
)

const (
	PersonaFileName      = "PERSONA.md"
	FrontMatterDelimiter = "---"
)

// Loader parses PERSONA.md files.
type Loader struct{}

func NewLoader() *Loader {
	return &Loader{}
}

type frontmatter struct {
	Name           string `yaml:"name"`
	Role           string `yaml:"role"`
	Title          string `yaml:"title"`
	Goal           string `yaml:"goal"`
	Backstory      string `yaml:"backstory"`
	MaxIterations  int    `yaml:"max-iterations"`
	Memory         *bool  `yaml:"memory"`
	AllowedTools   any    `yaml:"allowed-tools"` // string or list
	ExpectedOutput string `yaml:"expected-output"`
}

// ParsePersona parses a PERSONA.md document. basePath is the persona
// directory, whose base name must equal the persona name.
func (l *Loader) ParsePersona(data []byte, source Source, basePath string) (*Persona, error) {
	head, body, err := l.extractFrontmatter(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to extract frontmatter: %w", err)
	}

	var meta frontmatter
	if err := yaml.Unmarshal([]byte(head), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse YAML frontmatter: %w", err)
	}

	if err := ValidateName(meta.Name, basePath); err != nil {
		return nil, err
	}
	r, err := role.Parse(meta.Role)
	if err != nil {
		return nil, fmt.Errorf("persona %s: %w", meta.Name, err)
	}
	if err := ValidateGoal(meta.Goal); err != nil {
		return nil, err
	}
	if meta.MaxIterations == 0 {
		meta.MaxIterations = defaultIterations(r)
	}
	if err := ValidateMaxIterations(meta.MaxIterations); err != nil {
		return nil, err
	}
	if err := ValidateTask(body); err != nil {
		return nil, err
	}

	memory := true
	if meta.Memory != nil {
		memory = *meta.Memory
	}

	var tools []string
	switch v := meta.AllowedTools.(type) {
	case string:
		tools = ParseAllowedTools(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				tools = append(tools, s)
			}
		}
	}

	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = r.Label()
	}

	return &Persona{
		Name:           meta.Name,
		Role:           r,
		Title:          title,
		Goal:           strings.TrimSpace(meta.Goal),
		Backstory:      strings.TrimSpace(meta.Backstory),
		MaxIterations:  meta.MaxIterations,
		Memory:         memory,
		AllowedTools:   tools,
		ExpectedOutput: strings.TrimSpace(meta.ExpectedOutput),
		Task:           strings.TrimSpace(body),
		Source:         source,
		Path:           filepath.Join(basePath, PersonaFileName),
	}, nil
}

// LoadFromDir loads dir/PERSONA.md.
func (l *Loader) LoadFromDir(dir string, source Source) (*Persona, error) {
	path := filepath.Join(dir, PersonaFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file %s: %w", path, err)
	}
	return l.ParsePersona(data, source, dir)
}

// LoadFromFS loads a persona from an fs.FS, path pointing at PERSONA.md.
func (l *Loader) LoadFromFS(fsys fs.FS, path string, source Source) (*Persona, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona %s: %w", path, err)
	}
	return l.ParsePersona(data, source, filepath.Dir(path))
}

// LoadAllFromDir walks rootDir and loads every directory holding a
// PERSONA.md. The first invalid persona aborts the walk.
func (l *Loader) LoadAllFromDir(rootDir string, source Source) ([]*Persona, error) {
	var personas []*Persona
	err := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, err := os.Stat(filepath.Join(path, PersonaFileName)); err != nil {
			return nil
		}
		p, err := l.LoadFromDir(path, source)
		if err != nil {
			return err
		}
		personas = append(personas, p)
		return nil
	})
	return personas, err
}

func (l *Loader) extractFrontmatter(content string) (head string, body string, err error) {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if !strings.HasPrefix(content, FrontMatterDelimiter) {
		return "", content, fmt.Errorf("no frontmatter found (expected '---' at start)")
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == FrontMatterDelimiter {
			head = strings.Join(lines[1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			return strings.TrimSpace(head), strings.TrimSpace(body), nil
		}
	}
	return "", content, fmt.Errorf("frontmatter not closed")
}

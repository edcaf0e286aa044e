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
	"os"
	"sync"

	"github.com/cloudwego/flowmaster/internal/log"
	"github.com/cloudwego/flowmaster/internal/persona/embedded"
	"github.com/cloudwego/flowmaster/internal/role"
)

// Registry holds one persona per role. Built-in personas are loaded first,
// then personas found under the local directory replace them role by role.
type Registry struct {
	mu       sync.RWMutex
	byRole   map[role.Role]*Persona
	localDir string
	loader   *Loader
}

func NewRegistry() *Registry {
	return &Registry{
		byRole: make(map[role.Role]*Persona),
		loader: NewLoader(),
	}
}

// SetLocalDir sets the directory searched for override personas.
func (r *Registry) SetLocalDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localDir = dir
}

// Load discovers all personas. It is meant to run once at startup.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, path := range embedded.PersonaPaths() {
		p, err := r.loader.LoadFromFS(embedded.EmbeddedFS, path, SourceEmbedded)
		if err != nil {
			return fmt.Errorf("embedded persona %s: %w", path, err)
		}
		r.byRole[p.Role] = p
	}

	if r.localDir == "" {
		return nil
	}
	if _, err := os.Stat(r.localDir); err != nil {
		return fmt.Errorf("persona directory %s: %w", r.localDir, err)
	}
	locals, err := r.loader.LoadAllFromDir(r.localDir, SourceLocal)
	if err != nil {
		return err
	}
	seen := make(map[role.Role]string, len(locals))
	for _, p := range locals {
		if prev, ok := seen[p.Role]; ok {
			return fmt.Errorf("personas %s and %s both define role %s", prev, p.Name, p.Role)
		}
		seen[p.Role] = p.Name
		log.Info("persona %s overrides role %s from %s", p.Name, p.Role, p.Path)
		r.byRole[p.Role] = p
	}
	return nil
}

// Get returns the persona for the role.
func (r *Registry) Get(ro role.Role) (*Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byRole[ro]
	if !ok {
		return nil, fmt.Errorf("no persona for role %s", ro)
	}
	return p, nil
}

// List returns the loaded personas in canonical role order.
func (r *Registry) List() []*Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Persona, 0, len(r.byRole))
	for _, ro := range role.All() {
		if p, ok := r.byRole[ro]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byRole)
}

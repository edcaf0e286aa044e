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

package embedded

import (
	"embed"
)

//go:embed */PERSONA.md
var EmbeddedFS embed.FS

// PersonaPaths returns the paths of all built-in personas.
func PersonaPaths() []string {
	return []string{
		"ceo/PERSONA.md",
		"pm/PERSONA.md",
		"designer/PERSONA.md",
		"frontend/PERSONA.md",
		"backend/PERSONA.md",
		"qa/PERSONA.md",
		"critic/PERSONA.md",
		"improver/PERSONA.md",
	}
}

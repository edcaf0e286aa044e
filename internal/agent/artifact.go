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

package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/cloudwego/flowmaster/internal/role"
)

// Artifact is the immutable output of one agent invocation.
type Artifact struct {
	Role       role.Role `json:"role"`
	Content    string    `json:"content"`
	ProducedAt time.Time `json:"produced_at"`
	Hash       string    `json:"hash"` // hex-encoded sha256 of Content
}

// NewArtifact stamps content with its role, time and hash.
func NewArtifact(r role.Role, content string, at time.Time) Artifact {
	h := sha256.Sum256([]byte(content))
	return Artifact{
		Role:       r,
		Content:    content,
		ProducedAt: at,
		Hash:       hex.EncodeToString(h[:]),
	}
}

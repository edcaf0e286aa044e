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

package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptedCompleter(t *testing.T) {
	boom := errors.New("boom")
	s := NewScriptedCompleter(map[string]Reply{
		"ceo":   Sequence(Text("first"), Text("second")),
		"pm":    Fail(boom),
		AnyRole: Text("fallback"),
	})
	ctx := context.Background()

	for _, want := range []string{"first", "second", "second"} {
		resp, err := s.Complete(ctx, Request{Role: "ceo", User: want})
		require.NoError(t, err)
		assert.Equal(t, want, resp.Content)
	}

	_, err := s.Complete(ctx, Request{Role: "pm"})
	assert.ErrorIs(t, err, boom)

	resp, err := s.Complete(ctx, Request{Role: "qa"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", resp.Content)

	assert.Len(t, s.Calls(), 5)
	assert.Len(t, s.CallsFor("ceo"), 3)
	assert.Equal(t, "second", s.CallsFor("ceo")[1].User)
}

func TestScriptedCompleterMissingRole(t *testing.T) {
	s := NewScriptedCompleter(map[string]Reply{"ceo": Text("x")})
	_, err := s.Complete(context.Background(), Request{Role: "pm"})
	assert.Error(t, err)
}

func TestScriptedCompleterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewScriptedCompleter(DefaultScript())
	_, err := s.Complete(ctx, Request{Role: "ceo"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Calls())
}

func TestDefaultScript(t *testing.T) {
	s := NewScriptedCompleter(DefaultScript())
	ctx := context.Background()

	resp, err := s.Complete(ctx, Request{Role: "ceo", User: "IDEA: Plant watering tracker."})
	require.NoError(t, err)
	assert.Contains(t, resp.Content, "# Plant watering tracker\n")

	improved, err := s.Complete(ctx, Request{
		Role: "improver",
		User: "ORIGINAL OUTPUT:\n" + resp.Content + "\nCRITIC FEEDBACK:\n{}",
	})
	require.NoError(t, err)
	assert.Contains(t, improved.Content, "# Plant watering tracker")
	assert.Contains(t, improved.Content, "## Changes")

	critique, err := s.Complete(ctx, Request{Role: "critic"})
	require.NoError(t, err)
	assert.Equal(t, DemoCritique, critique.Content)
}

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

package utils

import (
	"errors"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBase = errors.New("base")

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError(nil, "ignored"))

	err := WrapError(errBase, "stage %d", 2)
	require.Error(t, err)
	assert.Equal(t, "stage 2: base", err.Error())
	assert.True(t, errors.Is(err, errBase))
}

func TestMarshalJSONBytes(t *testing.T) {
	js, err := MarshalJSONBytes(map[string]string{"html": "<h1>a & b</h1>"})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<h1>a & b</h1>"}`, string(js))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab", Truncate("abcdefgh", 2))

	// é is two bytes; cutting at byte 2 would split it
	cut := Truncate("héllo wörld", 5)
	assert.Equal(t, "h...", cut)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, "", Truncate("日本語", 2))
	assert.Equal(t, "日...", Truncate("日本語の計画", 8))
}

// Copyright 2026 CoreOS, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreosfleet/deployer/internal/errs"
)

func TestAssembleInlinesHelpersAtMarker(t *testing.T) {
	l := New()

	assembled, err := l.Assemble("info")
	require.NoError(t, err)
	assert.Equal(t, "info", assembled.Name)
	assert.Contains(t, string(assembled.Script), "deployer_detect_distro() {")
	assert.NotContains(t, string(assembled.Script), includeMark)
	assert.NotContains(t, string(assembled.Script), sourceLine)
}

func TestAssembleIsDeterministic(t *testing.T) {
	l := New()

	first, err := l.Assemble("info")
	require.NoError(t, err)
	second, err := l.Assemble("info")
	require.NoError(t, err)

	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.Script, second.Script)
}

func TestAssembleUnknownPlaybookFails(t *testing.T) {
	l := New()

	_, err := l.Assemble("does-not-exist")
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnknownPlaybook, kind)
}

func TestInlineSplicesAtMarker(t *testing.T) {
	script := []byte(shebangBash + "\n" + pipefailLine + "\n\n" +
		includeMark + "\n" + sourceLine + "\n\necho hi\n")
	helpers := []byte("helper_fn() {\n\treturn 0\n}\n")

	out, err := inline(script, helpers)
	require.NoError(t, err)
	assert.Contains(t, string(out), "helper_fn() {")
	assert.NotContains(t, string(out), includeMark)
	assert.NotContains(t, string(out), sourceLine)
	assert.Contains(t, string(out), "echo hi")
}

func TestInlineSplicesAfterPreambleWhenNoMarker(t *testing.T) {
	script := []byte(shebangBash + "\n" + pipefailLine + "\necho hi\n")
	helpers := []byte("helper_fn() {\n\treturn 0\n}\n")

	out, err := inline(script, helpers)
	require.NoError(t, err)

	lines := []string{shebangBash, pipefailLine, "helper_fn() {", "\treturn 0", "}", "echo hi"}
	got := string(out)
	prevIdx := -1
	for _, line := range lines {
		idx := indexOf(got, line)
		require.GreaterOrEqual(t, idx, 0, "expected to find %q", line)
		require.Greater(t, idx, prevIdx, "expected %q to appear after previous line", line)
		prevIdx = idx
	}
}

func TestInlineSplicesAfterShebangOnlyWhenNoPipefail(t *testing.T) {
	script := []byte(shebangBash + "\necho hi\n")
	helpers := []byte("helper_fn() {\n\treturn 0\n}\n")

	out, err := inline(script, helpers)
	require.NoError(t, err)
	assert.Contains(t, string(out), shebangBash+"\nhelper_fn() {")
}

func TestInlineMarkerNotFollowedByExpectedSourceLineFails(t *testing.T) {
	script := []byte(shebangBash + "\n" + includeMark + "\necho not the source line\n")
	helpers := []byte("helper_fn() { return 0; }\n")

	_, err := inline(script, helpers)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnknownInclude, kind)
}

func TestRejectForeignIncludesAllowsHelpersReference(t *testing.T) {
	assembled := []byte(shebangBash + "\n" + sourceLine + "\nhelper_fn() { return 0; }\necho hi\n")
	require.NoError(t, rejectForeignIncludes(assembled))
}

func TestRejectForeignIncludesFailsOnForeignSource(t *testing.T) {
	assembled := []byte(shebangBash + "\nsource \"/etc/profile\"\necho hi\n")
	err := rejectForeignIncludes(assembled)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnknownInclude, kind)
}

func TestRejectForeignIncludesFailsOnDotDirective(t *testing.T) {
	assembled := []byte(shebangBash + "\n. \"/etc/profile\"\necho hi\n")
	err := rejectForeignIncludes(assembled)
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.UnknownInclude, kind)
}

func TestPreambleEndWithShebangAndPipefail(t *testing.T) {
	lines := []string{shebangBash, pipefailLine, "echo hi"}
	assert.Equal(t, 2, preambleEnd(lines))
}

func TestPreambleEndWithShebangOnly(t *testing.T) {
	lines := []string{shebangBash, "echo hi"}
	assert.Equal(t, 1, preambleEnd(lines))
}

func TestPreambleEndWithNeitherShebangNorPipefail(t *testing.T) {
	lines := []string{"echo hi"}
	assert.Equal(t, 0, preambleEnd(lines))
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

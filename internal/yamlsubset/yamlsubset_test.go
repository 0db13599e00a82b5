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

package yamlsubset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/coreosfleet/deployer/internal/errs"
)

func TestParseAcceptsScalarsSequencesAndNestedMaps(t *testing.T) {
	doc, err := Parse([]byte(`
status: success
count: 3
ready: true
name: "quoted value"
tags:
  - web
  - php
detail:
  distro: ubuntu
  version: 22.04
`))
	require.NoError(t, err)
	assert.Equal(t, "success", doc.Status())
	assert.Equal(t, int64(3), doc.Values["count"])
	assert.Equal(t, true, doc.Values["ready"])
	assert.Equal(t, "quoted value", doc.Values["name"])
	assert.Equal(t, []any{"web", "php"}, doc.Values["tags"])

	detail, ok := doc.Values["detail"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ubuntu", detail["distro"])
}

func TestParseAcceptsFlowSequence(t *testing.T) {
	doc, err := Parse([]byte("status: success\nitems: [a, b, c]\n"))
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, doc.Values["items"])
}

func TestParseAcceptsEmptyFlowMapping(t *testing.T) {
	doc, err := Parse([]byte("status: success\nextra: {}\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, doc.Values["extra"])
}

func TestParseRejectsMissingStatus(t *testing.T) {
	_, err := Parse([]byte("foo: bar\n"))
	assertMalformed(t, err)
}

func TestParseRejectsAnchorsAndAliases(t *testing.T) {
	_, err := Parse([]byte("status: success\nfoo: &anchor bar\nbaz: *anchor\n"))
	assertMalformed(t, err)
}

func TestParseRejectsExplicitTags(t *testing.T) {
	_, err := Parse([]byte("status: success\nfoo: !!binary gIGC\n"))
	assertMalformed(t, err)
}

func TestParseRejectsLiteralBlockScalar(t *testing.T) {
	_, err := Parse([]byte("status: success\nfoo: |\n  line one\n  line two\n"))
	assertMalformed(t, err)
}

func TestParseRejectsFoldedBlockScalar(t *testing.T) {
	_, err := Parse([]byte("status: success\nfoo: >\n  line one\n  line two\n"))
	assertMalformed(t, err)
}

func TestParseRejectsMultiDocumentStreams(t *testing.T) {
	_, err := Parse([]byte("status: success\n---\nstatus: success\n"))
	assertMalformed(t, err)
}

func TestParseRejectsDuplicateKeys(t *testing.T) {
	_, err := Parse([]byte("status: success\nfoo: 1\nfoo: 2\n"))
	assertMalformed(t, err)
}

func TestParseRejectsComplexMappingKeys(t *testing.T) {
	_, err := Parse([]byte("status: success\nweird:\n  ? [a, b]\n  : value\n"))
	assertMalformed(t, err)
}

func TestParseRejectsExcessiveDepth(t *testing.T) {
	var nested any = "leaf"
	for i := 0; i < MaxDepth+2; i++ {
		nested = map[string]any{"nested": nested}
	}
	doc := map[string]any{"status": "success", "deep": nested}
	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)

	_, parseErr := Parse(raw)
	assertMalformed(t, parseErr)
}

func TestParseRejectsOversizedDocument(t *testing.T) {
	big := strings.Repeat("a", MaxDocumentSize+1)
	_, err := Parse([]byte("status: success\nfoo: \"" + big + "\"\n"))
	assertMalformed(t, err)
}

func TestParseRejectsNonMappingTopLevel(t *testing.T) {
	_, err := Parse([]byte("- a\n- b\n"))
	assertMalformed(t, err)
}

func TestParseDiscardsComments(t *testing.T) {
	doc, err := Parse([]byte("status: success # trailing comment\n# full line comment\ncount: 1\n"))
	require.NoError(t, err)
	assert.Equal(t, "success", doc.Status())
	assert.Equal(t, int64(1), doc.Values["count"])
}

func assertMalformed(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.MalformedOutput, kind)
}

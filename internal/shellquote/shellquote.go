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

// Package shellquote provides the single POSIX shell-quoting routine
// used everywhere the engine interpolates a value into a remote
// command line (playbook environment values in internal/executor,
// paths and git arguments in internal/deploy). Centralized here so
// every caller gets the same shell-syntax-aware quoting rather than
// each package hand-rolling its own.
package shellquote

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Quote quotes s for safe interpolation into a shell command line
// (strings with no shell-special characters come back unchanged),
// grounded on mvdan.cc/sh/v3's syntax.Quote — the same
// shell-syntax-aware quoting library the corpus's invowk-invowk example
// depends on — rather than a hand-written escaping routine (naive
// quoting is a classic injection bug class).
func Quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		// syntax.Quote only rejects inputs it cannot represent (e.g. a
		// NUL byte); fall back to manual POSIX single-quoting rather
		// than panic if that ever occurs.
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return q
}

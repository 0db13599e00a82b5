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

// Package playbook resolves a playbook name to a single self-contained
// shell script by inlining its shared helpers from an embedded asset
// filesystem.
package playbook

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/coreosfleet/deployer/internal/errs"
)

//go:embed scripts/*.sh
var embeddedScripts embed.FS

const (
	helpersName  = "helpers.sh"
	includeMark  = "# DEPLOYER-INCLUDE helpers.sh"
	sourceLine   = `source "$(dirname "$0")/helpers.sh"`
	shebangBash  = "#!/bin/bash"
	pipefailLine = "set -o pipefail"
)

// Assembled is a playbook rendered into a single script, plus the
// deterministic hash of its bytes (no timestamps enter the assembly,
// so identical inputs always hash identically).
type Assembled struct {
	Name   string
	Script []byte
	Hash   string
}

// Loader reads playbook and helper scripts from an embedded filesystem
// and assembles them into self-contained units. It is pure: the same
// name always returns the same bytes.
type Loader struct {
	fs embed.FS
}

// New returns a Loader backed by the scripts embedded in this module.
func New() *Loader {
	return &Loader{fs: embeddedScripts}
}

// Assemble resolves name to "<name>.sh", inlines helpers.sh at its
// marker (or right after the shebang/pipefail preamble if no marker is
// present), and rejects any other source directive as UnknownInclude.
func (l *Loader) Assemble(name string) (Assembled, error) {
	raw, err := l.fs.ReadFile("scripts/" + name + ".sh")
	if err != nil {
		return Assembled{}, errs.New(errs.UnknownPlaybook, "playbook.Assemble",
			fmt.Errorf("playbook %q: %w", name, err))
	}

	helpers, err := l.fs.ReadFile("scripts/" + helpersName)
	if err != nil {
		return Assembled{}, errs.New(errs.UnknownInclude, "playbook.Assemble",
			fmt.Errorf("helpers.sh missing: %w", err))
	}

	assembled, err := inline(raw, helpers)
	if err != nil {
		return Assembled{}, err
	}

	if err := rejectForeignIncludes(raw); err != nil {
		return Assembled{}, err
	}

	sum := sha256.Sum256(assembled)
	return Assembled{
		Name:   name,
		Script: assembled,
		Hash:   hex.EncodeToString(sum[:]),
	}, nil
}

// inline splices helpers between the marker comment (or, absent one,
// right after the shebang/pipefail preamble) and the rest of the
// script, removing the literal "source helpers.sh" line it replaces.
func inline(script, helpers []byte) ([]byte, error) {
	lines := strings.Split(string(script), "\n")

	markerIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(line) == includeMark {
			markerIdx = i
			break
		}
	}

	var out []string
	if markerIdx >= 0 {
		sourceIdx := markerIdx + 1
		if sourceIdx >= len(lines) || strings.TrimSpace(lines[sourceIdx]) != sourceLine {
			return nil, errs.New(errs.UnknownInclude, "playbook.inline",
				fmt.Errorf("marker at line %d not followed by the expected source line", markerIdx+1))
		}
		out = append(out, lines[:markerIdx]...)
		out = append(out, strings.Split(strings.TrimRight(string(helpers), "\n"), "\n")...)
		out = append(out, lines[sourceIdx+1:]...)
	} else {
		insertAt := preambleEnd(lines)
		out = append(out, lines[:insertAt]...)
		out = append(out, strings.Split(strings.TrimRight(string(helpers), "\n"), "\n")...)
		out = append(out, lines[insertAt:]...)
	}

	return []byte(strings.Join(out, "\n")), nil
}

// preambleEnd returns the index just past the shebang line and, if
// present, an immediately following "set -o pipefail" line.
func preambleEnd(lines []string) int {
	idx := 0
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "#!") {
		idx = 1
	}
	if idx < len(lines) && strings.TrimSpace(lines[idx]) == pipefailLine {
		idx++
	}
	return idx
}

// rejectForeignIncludes fails closed if the given script contains any
// `source` directive that does not reference helpers.sh. Assemble runs
// it over the playbook's own lines, so source lines inside the spliced
// helpers.sh body (it sources /etc/os-release) are not checked.
func rejectForeignIncludes(assembled []byte) error {
	for _, line := range bytes.Split(assembled, []byte("\n")) {
		trimmed := strings.TrimSpace(string(line))
		if !strings.HasPrefix(trimmed, "source ") && !strings.HasPrefix(trimmed, ". ") {
			continue
		}
		if strings.Contains(trimmed, "helpers.sh") {
			// Already inlined above; a leftover literal reference to
			// helpers.sh itself is not a foreign include.
			continue
		}
		return errs.New(errs.UnknownInclude, "playbook.rejectForeignIncludes",
			fmt.Errorf("unexpected source directive: %q", trimmed))
	}
	return nil
}

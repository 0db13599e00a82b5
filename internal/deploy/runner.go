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

package deploy

import (
	"bytes"
	"text/template"
)

// RunnerParams bakes one release's paths and interpreter into the
// generated runner.sh. A later deployment overwrites the file with its
// own params.
type RunnerParams struct {
	CurrentPath string
	ReleasePath string
	SharedPath  string
	Domain      string
	Branch      string
	PHP         string
}

var runnerTemplate = template.Must(template.New("runner").Parse(`#!/bin/bash
set -euo pipefail

# Generated by the deployment orchestrator for {{.Domain}}; overwritten
# by every deploy. Dispatches a script-in-release safely from cron and
# supervisor contexts.

CURRENT_PATH={{.CurrentPath | printf "%q"}}
RELEASE_PATH={{.ReleasePath | printf "%q"}}
SHARED_PATH={{.SharedPath | printf "%q"}}
DOMAIN={{.Domain | printf "%q"}}
BRANCH={{.Branch | printf "%q"}}
PHP={{.PHP | printf "%q"}}

rel="${1:-}"
if [ -z "$rel" ]; then
	echo "usage: runner.sh <path-relative-to-current>" >&2
	exit 2
fi

case "$rel" in
	/*|*..*)
		echo "runner.sh: rejected path: $rel" >&2
		exit 2
		;;
esac

target="$CURRENT_PATH/$rel"
resolved="$(realpath -e "$target" 2>/dev/null)" || {
	echo "runner.sh: cannot resolve: $target" >&2
	exit 2
}

case "$resolved" in
	"$(realpath "$CURRENT_PATH")"/*) ;;
	*)
		echo "runner.sh: path escapes current release: $resolved" >&2
		exit 2
		;;
esac

if [ ! -f "$resolved" ]; then
	echo "runner.sh: not a regular file: $resolved" >&2
	exit 2
fi

[ -x "$resolved" ] || chmod +x "$resolved"

export RELEASE_PATH SHARED_PATH CURRENT_PATH DOMAIN BRANCH PHP
cd "$CURRENT_PATH"
exec "$resolved"
`))

// RunnerScript renders the generated runner.sh contents for one
// release. The format is frozen: callers treat it as an opaque
// artifact, not something to hand-edit on the remote host.
func RunnerScript(p RunnerParams) string {
	var buf bytes.Buffer
	if err := runnerTemplate.Execute(&buf, p); err != nil {
		// The template is a compile-time constant; a render failure
		// here means a programming error, not a runtime condition.
		panic("deploy: runner template: " + err.Error())
	}
	return buf.String()
}

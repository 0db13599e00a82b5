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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// cliReporter prints progress narration straight to the command's
// error stream. Real interactive rendering (spinners, a TUI) is left
// to whatever external collaborator implements this narrow interface.
type cliReporter struct {
	cmd *cobra.Command
}

func newCLIReporter(cmd *cobra.Command) *cliReporter {
	return &cliReporter{cmd: cmd}
}

func (r *cliReporter) Step(format string, args ...any) {
	fmt.Fprintf(r.cmd.ErrOrStderr(), "==> %s\n", fmt.Sprintf(format, args...))
}

func (r *cliReporter) Warnf(format string, args ...any) {
	fmt.Fprintf(r.cmd.ErrOrStderr(), "!!  %s\n", fmt.Sprintf(format, args...))
}

func (r *cliReporter) Stream(host, line string) {
	fmt.Fprintf(r.cmd.ErrOrStderr(), "[%s] %s\n", host, line)
}

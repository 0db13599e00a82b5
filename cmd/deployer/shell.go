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
	"github.com/spf13/cobra"
)

// newShellCmd opens an interactive shell on a named server, for
// investigating a playbook or hook failure by hand.
func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <server>",
		Short: "Open an interactive shell on a server in the inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, inv, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			server, ok := inv.servers[args[0]]
			if !ok {
				return validationErrorf("shell: unknown server %q", args[0])
			}
			return eng.Shell(cmd.Context(), server)
		},
	}
}

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

func newDeployCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "deploy [domain...]",
		Short: "Deploy one or more sites from the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return validationErrorf("deploy: pass one or more domains, or --all")
			}

			eng, inv, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			domains := args
			if all {
				domains = nil
				for domain := range inv.sites {
					domains = append(domains, domain)
				}
			}

			var failed bool
			for _, domain := range domains {
				site, ok := inv.sites[domain]
				if !ok {
					return validationErrorf("deploy: unknown site %q", domain)
				}
				server, err := inv.serverFor(site)
				if err != nil {
					return validationErrorf("deploy: %v", err)
				}

				result, err := eng.Deploy(cmd.Context(), site, server)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "deploy %s: FAILED: %v\n", domain, err)
					failed = true
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deploy %s: %s (release %s)\n", domain, result.Status, result.ReleaseName)
				for _, w := range result.Warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  warning: %s\n", w)
				}
			}

			if failed {
				return fmt.Errorf("one or more deployments failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "deploy every site in the inventory")
	return cmd
}

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

func newCronSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cron-sync <domain>",
		Short: "Reconcile a site's crontab entries without redeploying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, inv, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			site, ok := inv.sites[args[0]]
			if !ok {
				return validationErrorf("cron-sync: unknown site %q", args[0])
			}
			server, err := inv.serverFor(site)
			if err != nil {
				return validationErrorf("cron-sync: %v", err)
			}

			if err := eng.SyncCrons(cmd.Context(), site, server); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cron-sync %s: ok\n", site.Domain)
			return nil
		},
	}
}

func newSupervisorSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supervisor-sync <domain>",
		Short: "Reconcile a site's supervisor programs without redeploying",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, inv, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			site, ok := inv.sites[args[0]]
			if !ok {
				return validationErrorf("supervisor-sync: unknown site %q", args[0])
			}
			server, err := inv.serverFor(site)
			if err != nil {
				return validationErrorf("supervisor-sync: %v", err)
			}

			if err := eng.SyncSupervisors(cmd.Context(), site, server); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "supervisor-sync %s: ok\n", site.Domain)
			return nil
		},
	}
}

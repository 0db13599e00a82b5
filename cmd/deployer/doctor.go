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

	"github.com/coreosfleet/deployer/internal/serverinfo"
)

// newDoctorCmd builds a read-only diagnostic command: it runs the
// Server-Info Aggregator across the whole inventory and reports
// distro, permissions, and reachability per host without mutating
// anything.
func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check reachability, distro, and permissions for every server in the inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, inv, err := loadEngine(cmd)
			if err != nil {
				return err
			}
			defer eng.Close()

			servers := inv.allServers()
			infos, errs := eng.Gather(cmd.Context(), servers)

			var unhealthy int
			for _, srv := range servers {
				if err, failed := errs[srv.Name]; failed {
					fmt.Fprintf(cmd.OutOrStdout(), "%-20s UNREACHABLE: %v\n", srv.Name, err)
					unhealthy++
					continue
				}
				info := infos[srv.Name]
				webServer := "no"
				if serverinfo.HasWebServer(info) {
					webServer = "yes"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s distro=%-10s perms=%-6s cpu=%-3d ram=%-6dMB web=%s\n",
					srv.Name, info.Distro, info.Permissions, info.Hardware.CPUCores, info.Hardware.RAMMB, webServer)
			}

			if unhealthy > 0 || len(errs) > 0 {
				return fmt.Errorf("%d of %d servers unreachable or misconfigured", len(errs), len(servers))
			}
			return nil
		},
	}
}

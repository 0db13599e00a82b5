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

// Package serverinfo implements the Server-Info Aggregator: drives the
// info playbook, validates the family/permissions gate, and exposes
// pure query functions over the parsed result.
package serverinfo

import (
	"context"
	"fmt"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/internal/executor"
	"github.com/coreosfleet/deployer/internal/yamlsubset"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

// Aggregator drives the info playbook through an Executor.
type Aggregator struct {
	exec *executor.Executor
}

// New builds an Aggregator over exec.
func New(exec *executor.Executor) *Aggregator {
	return &Aggregator{exec: exec}
}

// Gather runs the info playbook against server and shapes its output
// into a ServerInfo, validating the family/permissions gate before
// returning successfully.
func (a *Aggregator) Gather(ctx context.Context, server *fleet.Server) (fleet.ServerInfo, error) {
	result, err := a.exec.Run(ctx, executor.Invocation{
		Playbook:   "info",
		Target:     server,
		Mode:       executor.ModeSilent,
		Idempotent: true,
	})
	if err != nil {
		return fleet.ServerInfo{}, err
	}

	info, err := fromPayload(result.Output)
	if err != nil {
		return fleet.ServerInfo{}, err
	}

	if err := validateGate(info); err != nil {
		return fleet.ServerInfo{}, err
	}
	return info, nil
}

func validateGate(info fleet.ServerInfo) error {
	if info.Family == fleet.FamilyUnknown {
		return errs.New(errs.DistroUnsupported, "serverinfo.validateGate",
			fmt.Errorf("distro %q is not in a supported family", info.Distro))
	}
	if !info.Permissions.CanMutate() {
		return errs.New(errs.PermissionsInsufficient, "serverinfo.validateGate",
			fmt.Errorf("connecting user has permissions %q, need root or sudo", info.Permissions))
	}
	return nil
}

func fromPayload(doc yamlsubset.Document) (fleet.ServerInfo, error) {
	distro := fleet.Distro(stringOf(doc.Values["distro"]))
	info := fleet.ServerInfo{
		Distro:      distro,
		Family:      familyOf(distro),
		Permissions: fleet.Permissions(stringOf(doc.Values["permissions"])),
		Ports:       map[int]string{},
		SitesConfig: map[string]fleet.SiteConfigSummary{},
	}

	if hw, ok := doc.Values["hardware"].(map[string]any); ok {
		info.Hardware = fleet.Hardware{
			CPUCores: intOf(hw["cpuCores"]),
			RAMMB:    intOf(hw["ramMB"]),
			DiskType: fleet.DiskType(stringOf(hw["diskType"])),
		}
	}

	if php, ok := doc.Values["php"].(map[string]any); ok {
		info.PHP.Default = stringOf(php["default"])
		if versions, ok := php["versions"].([]any); ok {
			for _, v := range versions {
				vm, ok := v.(map[string]any)
				if !ok {
					continue
				}
				var exts []string
				if raw, ok := vm["extensions"].([]any); ok {
					for _, e := range raw {
						exts = append(exts, stringOf(e))
					}
				}
				info.PHP.Versions = append(info.PHP.Versions, fleet.PHPRuntime{
					Version:    stringOf(vm["version"]),
					Extensions: exts,
				})
			}
		}
	}

	if ports, ok := doc.Values["ports"].(map[string]any); ok {
		for k, v := range ports {
			var port int
			fmt.Sscanf(k, "%d", &port)
			info.Ports[port] = stringOf(v)
		}
	}

	if sitesCfg, ok := doc.Values["sitesConfig"].(map[string]any); ok {
		for domain, v := range sitesCfg {
			vm, ok := v.(map[string]any)
			if !ok {
				continue
			}
			info.SitesConfig[domain] = fleet.SiteConfigSummary{
				PHPVersion:   stringOf(vm["phpVersion"]),
				WwwMode:      fleet.WwwMode(stringOf(vm["wwwMode"])),
				HTTPSEnabled: boolOf(vm["httpsEnabled"]),
			}
		}
	}

	return info, nil
}

func familyOf(d fleet.Distro) fleet.Family {
	switch d {
	case fleet.DistroUbuntu, fleet.DistroDebian:
		return fleet.FamilyDebian
	case fleet.DistroFedora:
		return fleet.FamilyFedora
	case fleet.DistroCentOS, fleet.DistroRocky, fleet.DistroAlma, fleet.DistroRHEL:
		return fleet.FamilyRedHat
	case fleet.DistroAmazon:
		return fleet.FamilyAmazon
	default:
		return fleet.FamilyUnknown
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

// HasWebServer reports whether any known web server process is bound
// to a port in info.
func HasWebServer(info fleet.ServerInfo) bool {
	for _, proc := range info.Ports {
		if proc == "nginx" || proc == "caddy" || proc == "apache2" || proc == "httpd" {
			return true
		}
	}
	return false
}

// PHPVersionsWithExtension returns every installed PHP version that
// reports ext as one of its extensions.
func PHPVersionsWithExtension(info fleet.ServerInfo, ext string) []string {
	var versions []string
	for _, v := range info.PHP.Versions {
		for _, e := range v.Extensions {
			if e == ext {
				versions = append(versions, v.Version)
				break
			}
		}
	}
	return versions
}

// SiteHTTPSEnabled reports whether the host's own observed
// configuration for domain has HTTPS enabled.
func SiteHTTPSEnabled(info fleet.ServerInfo, domain string) bool {
	cfg, ok := info.SitesConfig[domain]
	return ok && cfg.HTTPSEnabled
}

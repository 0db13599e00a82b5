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
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coreosfleet/deployer/pkg/fleet"
)

// inventoryFile is the on-disk shape a caller points --inventory at.
// Inventory storage stays external to the engine; this is the façade's
// own minimal loader, not a component of internal/.
type inventoryFile struct {
	Servers []inventoryServer `yaml:"servers"`
	Sites   []inventorySite   `yaml:"sites"`
}

type inventoryServer struct {
	Name           string `yaml:"name"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Username       string `yaml:"username"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
}

type inventorySite struct {
	Domain       string            `yaml:"domain"`
	ServerName   string            `yaml:"serverName"`
	Repo         string            `yaml:"repo"`
	Branch       string            `yaml:"branch"`
	PHPVersion   string            `yaml:"phpVersion"`
	KeepReleases int               `yaml:"keepReleases"`
	Crons        []fleet.Cron       `yaml:"crons"`
	Supervisors  []fleet.Supervisor `yaml:"supervisors"`
}

type inventory struct {
	servers map[string]*fleet.Server
	sites   map[string]*fleet.Site
}

func loadInventory(path string) (*inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory %s: %w", path, err)
	}

	var raw inventoryFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing inventory %s: %w", path, err)
	}

	inv := &inventory{
		servers: make(map[string]*fleet.Server, len(raw.Servers)),
		sites:   make(map[string]*fleet.Site, len(raw.Sites)),
	}

	for _, s := range raw.Servers {
		srv, err := fleet.NewServer(s.Name, s.Host, s.Username)
		if err != nil {
			return nil, err
		}
		if s.Port != 0 {
			srv.Port = s.Port
		}
		srv.PrivateKeyPath = s.PrivateKeyPath
		if _, dup := inv.servers[srv.Name]; dup {
			return nil, fmt.Errorf("inventory %s: duplicate server name %q", path, srv.Name)
		}
		inv.servers[srv.Name] = srv
	}

	for _, s := range raw.Sites {
		site, err := fleet.NewSite(s.Domain, s.ServerName)
		if err != nil {
			return nil, err
		}
		site.Repo = s.Repo
		site.Branch = s.Branch
		site.PHPVersion = s.PHPVersion
		site.KeepReleases = s.KeepReleases
		site.Crons = s.Crons
		site.Supervisors = s.Supervisors
		if _, ok := inv.servers[site.ServerName]; !ok {
			return nil, fmt.Errorf("inventory %s: site %q references unknown server %q", path, site.Domain, site.ServerName)
		}
		if _, dup := inv.sites[site.Domain]; dup {
			return nil, fmt.Errorf("inventory %s: duplicate site domain %q", path, site.Domain)
		}
		inv.sites[site.Domain] = site
	}

	return inv, nil
}

func (inv *inventory) allServers() []*fleet.Server {
	out := make([]*fleet.Server, 0, len(inv.servers))
	for _, s := range inv.servers {
		out = append(out, s)
	}
	return out
}

func (inv *inventory) serverFor(site *fleet.Site) (*fleet.Server, error) {
	srv, ok := inv.servers[site.ServerName]
	if !ok {
		return nil, fmt.Errorf("site %q references unknown server %q", site.Domain, site.ServerName)
	}
	return srv, nil
}

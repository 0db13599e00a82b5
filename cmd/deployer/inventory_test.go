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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadInventoryParsesServersAndSites(t *testing.T) {
	path := writeInventory(t, `
servers:
  - name: web1
    host: 10.0.0.1
    username: deployer
    privateKeyPath: /home/ops/.ssh/id_ed25519
sites:
  - domain: example.com
    serverName: web1
    repo: https://example.com/repo.git
    branch: main
    phpVersion: "8.2"
`)

	inv, err := loadInventory(path)
	require.NoError(t, err)

	require.Len(t, inv.servers, 1)
	srv, ok := inv.servers["web1"]
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", srv.Host)
	assert.Equal(t, 22, srv.Port)

	site, ok := inv.sites["example.com"]
	require.True(t, ok)
	assert.Equal(t, "main", site.Branch)
	assert.Equal(t, "8.2", site.PHPVersion)
}

func TestLoadInventoryAppliesExplicitPort(t *testing.T) {
	path := writeInventory(t, `
servers:
  - name: web1
    host: 10.0.0.1
    port: 2222
    username: deployer
`)
	inv, err := loadInventory(path)
	require.NoError(t, err)
	assert.Equal(t, 2222, inv.servers["web1"].Port)
}

func TestLoadInventoryRejectsDuplicateServerName(t *testing.T) {
	path := writeInventory(t, `
servers:
  - name: web1
    host: 10.0.0.1
    username: deployer
  - name: web1
    host: 10.0.0.2
    username: deployer
`)
	_, err := loadInventory(path)
	assert.Error(t, err)
}

func TestLoadInventoryRejectsDuplicateSiteDomain(t *testing.T) {
	path := writeInventory(t, `
servers:
  - name: web1
    host: 10.0.0.1
    username: deployer
sites:
  - domain: example.com
    serverName: web1
  - domain: example.com
    serverName: web1
`)
	_, err := loadInventory(path)
	assert.Error(t, err)
}

func TestLoadInventoryRejectsSiteWithUnknownServer(t *testing.T) {
	path := writeInventory(t, `
sites:
  - domain: example.com
    serverName: does-not-exist
`)
	_, err := loadInventory(path)
	assert.Error(t, err)
}

func TestLoadInventoryRejectsMissingFile(t *testing.T) {
	_, err := loadInventory(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInventoryRejectsMalformedYAML(t *testing.T) {
	path := writeInventory(t, "servers: [this is not valid: yaml:::")
	_, err := loadInventory(path)
	assert.Error(t, err)
}

func TestAllServersReturnsEveryServer(t *testing.T) {
	path := writeInventory(t, `
servers:
  - name: web1
    host: 10.0.0.1
    username: deployer
  - name: web2
    host: 10.0.0.2
    username: deployer
`)
	inv, err := loadInventory(path)
	require.NoError(t, err)
	assert.Len(t, inv.allServers(), 2)
}

func TestServerForResolvesSitesServer(t *testing.T) {
	path := writeInventory(t, `
servers:
  - name: web1
    host: 10.0.0.1
    username: deployer
sites:
  - domain: example.com
    serverName: web1
`)
	inv, err := loadInventory(path)
	require.NoError(t, err)

	site := inv.sites["example.com"]
	srv, err := inv.serverFor(site)
	require.NoError(t, err)
	assert.Equal(t, "web1", srv.Name)
}

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

package engine

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/coreosfleet/deployer/internal/config"
	"github.com/coreosfleet/deployer/internal/sshtest"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

func writeEd25519Key(t *testing.T, path string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
}

func testServer(t *testing.T, name, addr string) *fleet.Server {
	t.Helper()
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	writeEd25519Key(t, keyPath)

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	srv, err := fleet.NewServer(name, host, "deployer")
	require.NoError(t, err)
	srv.Port = port
	srv.PrivateKeyPath = keyPath
	return srv
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Transport.KnownHostsPath = filepath.Join(t.TempDir(), "known_hosts")
	cfg.Transport.ConnectTimeout = 2 * time.Second
	cfg.MaxParallelHosts = 4

	eng, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

var outputFileRe = regexp.MustCompile(`DEPLOYER_OUTPUT_FILE=(\S+)`)

// infoHandler answers the info playbook's bookkeeping commands and
// writes a successful (or gate-failing) payload to the requested
// output file.
func infoHandler(t *testing.T, payload string) sshtest.Handler {
	t.Helper()
	return func(cmd string) (string, string, int) {
		switch {
		case strings.HasPrefix(cmd, "mkdir"), strings.HasPrefix(cmd, "rm"):
			return "", "", 0
		default:
			if m := outputFileRe.FindStringSubmatch(cmd); len(m) == 2 {
				path := strings.Trim(m[1], `'"`)
				require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))
			}
			return "ok", "", 0
		}
	}
}

// deployHandler answers every remote command a deployment sequence
// issues, always succeeding.
func deployHandler(cmd string) (string, string, int) {
	if strings.Contains(cmd, "date +%Y%m%d_%H%M%S") {
		return "20260731_120000", "", 0
	}
	return "", "", 0
}

func TestGatherFansOutAcrossServersAndKeepsPerHostErrors(t *testing.T) {
	okFixture := sshtest.Start(t, infoHandler(t, "status: success\ndistro: fedora\npermissions: root\n"), true)
	badFixture := sshtest.Start(t, infoHandler(t, "status: success\ndistro: fedora\npermissions: none\n"), true)

	eng := testEngine(t)
	servers := []*fleet.Server{
		testServer(t, "good-host", okFixture.Addr),
		testServer(t, "bad-host", badFixture.Addr),
	}

	infos, errs := eng.Gather(context.Background(), servers)
	require.Len(t, infos, 1)
	require.Len(t, errs, 1)

	_, ok := infos["good-host"]
	assert.True(t, ok)
	_, ok = errs["bad-host"]
	assert.True(t, ok)
}

func TestGatherUnreachableHostClassifiesConnectFailed(t *testing.T) {
	eng := testEngine(t)
	srv, err := fleet.NewServer("unreachable", "127.0.0.1", "deployer")
	require.NoError(t, err)
	srv.Port = 1

	infos, errs := eng.Gather(context.Background(), []*fleet.Server{srv})
	assert.Empty(t, infos)
	require.Len(t, errs, 1)
	assert.Error(t, errs["unreachable"])
}

func TestDeployRunsFullSequenceAndReturnsResult(t *testing.T) {
	fixture := sshtest.Start(t, deployHandler, false)
	srv := testServer(t, "web1", fixture.Addr)

	eng := testEngine(t)
	site, err := fleet.NewSite("example.com", "web1")
	require.NoError(t, err)
	site.Repo = "https://example.com/repo.git"
	site.Branch = "main"

	result, err := eng.Deploy(context.Background(), site, srv)
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "20260731_120000", result.ReleaseName)
}

func TestDeployAppliesConfiguredDefaultKeepReleasesWhenSiteUnset(t *testing.T) {
	fixture := sshtest.Start(t, deployHandler, false)
	srv := testServer(t, "web1", fixture.Addr)

	cfg := config.Default()
	cfg.Transport.KnownHostsPath = filepath.Join(t.TempDir(), "known_hosts")
	cfg.Transport.ConnectTimeout = 2 * time.Second
	cfg.MaxParallelHosts = 4
	cfg.DefaultKeepReleases = 9

	eng, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(eng.Close)

	site, err := fleet.NewSite("example.com", "web1")
	require.NoError(t, err)
	site.Repo = "https://example.com/repo.git"
	site.Branch = "main"

	result, err := eng.Deploy(context.Background(), site, srv)
	require.NoError(t, err)
	assert.Equal(t, 9, result.KeepReleases)
}

func TestDeployFleetFansOutAcrossReplicas(t *testing.T) {
	fixtureA := sshtest.Start(t, deployHandler, false)
	fixtureB := sshtest.Start(t, deployHandler, false)
	srvA := testServer(t, "web1", fixtureA.Addr)
	srvB := testServer(t, "web2", fixtureB.Addr)

	eng := testEngine(t)
	site, err := fleet.NewSite("example.com", "web1")
	require.NoError(t, err)
	site.Repo = "https://example.com/repo.git"
	site.Branch = "main"

	results, errs := eng.DeployFleet(context.Background(), site, []*fleet.Server{srvA, srvB})
	assert.Empty(t, errs)
	require.Len(t, results, 2)
	assert.Equal(t, "success", results["web1"].Status)
	assert.Equal(t, "success", results["web2"].Status)
}

func TestSyncCronsDelegatesThroughAConnectedSession(t *testing.T) {
	var sawCrontabList bool
	fixture := sshtest.Start(t, func(cmd string) (string, string, int) {
		if strings.HasPrefix(cmd, "crontab -l") {
			sawCrontabList = true
		}
		return "", "", 0
	}, false)
	srv := testServer(t, "web1", fixture.Addr)

	eng := testEngine(t)
	site, err := fleet.NewSite("example.com", "web1")
	require.NoError(t, err)
	site.Crons = []fleet.Cron{{Script: "crons/scheduler.sh", Schedule: "*/5 * * * *"}}

	require.NoError(t, eng.SyncCrons(context.Background(), site, srv))
	assert.True(t, sawCrontabList)
}

func TestSyncSupervisorsDelegatesThroughAConnectedSession(t *testing.T) {
	var sawReread bool
	fixture := sshtest.Start(t, func(cmd string) (string, string, int) {
		if strings.Contains(cmd, "supervisorctl reread") {
			sawReread = true
		}
		return "", "", 0
	}, false)
	srv := testServer(t, "web1", fixture.Addr)

	eng := testEngine(t)
	site, err := fleet.NewSite("example.com", "web1")
	require.NoError(t, err)
	site.Supervisors = []fleet.Supervisor{{Program: "worker", Script: "crons/worker.sh"}}

	require.NoError(t, eng.SyncSupervisors(context.Background(), site, srv))
	assert.True(t, sawReread)
}

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
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/internal/sshtest"
	"github.com/coreosfleet/deployer/internal/supervisor"
	"github.com/coreosfleet/deployer/internal/transport"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

// fakeRemote answers every remote command the deployment sequence
// issues, recording each for later assertion and allowing a few
// commands to be scripted (the release timestamp, branch-ref check,
// and arbitrary substring failures).
type fakeRemote struct {
	mu         sync.Mutex
	commands   []string
	timestamp  string
	branchGone bool
	failOn     map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{timestamp: "20260731_120000", failOn: map[string]int{}}
}

func (f *fakeRemote) handler(cmd string) (string, string, int) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()

	switch {
	case strings.Contains(cmd, "date +%Y%m%d_%H%M%S"):
		return f.timestamp, "", 0
	case strings.Contains(cmd, "show-ref --verify --quiet refs/heads/"):
		if f.branchGone {
			return "", "", 1
		}
		return "", "", 0
	}
	for substr, code := range f.failOn {
		if strings.Contains(cmd, substr) {
			return "", "boom", code
		}
	}
	return "", "", 0
}

func (f *fakeRemote) ran(substr string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.commands {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func writeEd25519Key(t *testing.T, path string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
}

func testServer(t *testing.T, addr string) *fleet.Server {
	t.Helper()
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_ed25519")
	writeEd25519Key(t, keyPath)

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	srv, err := fleet.NewServer("test-server", host, "deployer")
	require.NoError(t, err)
	srv.Port = port
	srv.PrivateKeyPath = keyPath
	return srv
}

func testTransport(t *testing.T) *transport.Transport {
	t.Helper()
	cfg := transport.DefaultConfig()
	cfg.KnownHostsPath = filepath.Join(t.TempDir(), "known_hosts")
	cfg.ConnectTimeout = 2 * time.Second
	tr, err := transport.New(cfg)
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return tr
}

func testSite(t *testing.T) *fleet.Site {
	t.Helper()
	site, err := fleet.NewSite("example.com", "test-server")
	require.NoError(t, err)
	site.Repo = "https://example.com/repo.git"
	site.Branch = "main"
	site.PHPVersion = "8.2"
	return site
}

func TestRunFullSuccessSequence(t *testing.T) {
	remote := newFakeRemote()
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	sv := supervisor.New()
	site := testSite(t)

	d := New(tr, sv, site, srv, nil, 5)
	result, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "success", result.Status)
	assert.Equal(t, "example.com", result.Domain)
	assert.Equal(t, "20260731_120000", result.ReleaseName)
	assert.Equal(t, "/home/deployer/sites/example.com/releases/20260731_120000", result.ReleasePath)
	assert.Equal(t, "/home/deployer/sites/example.com/current", result.CurrentPath)
	assert.Equal(t, 5, result.KeepReleases)
	assert.Empty(t, result.Warnings)

	assert.True(t, remote.ran("git clone --bare"))
	assert.True(t, remote.ran("git archive"))
	assert.True(t, remote.ran("ln -sfn"))
	assert.True(t, remote.ran("systemctl reload php8.2-fpm"))
	assert.True(t, remote.ran("cat > "))
}

func TestRunSkipsKnownHostsStepForHTTPRepo(t *testing.T) {
	remote := newFakeRemote()
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	site := testSite(t)

	d := New(tr, supervisor.New(), site, srv, nil, 5)
	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, remote.ran("ssh-keyscan"))
}

func TestRunAddsKnownHostsForSSHRepo(t *testing.T) {
	remote := newFakeRemote()
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	site := testSite(t)
	site.Repo = "git@github.com:example/repo.git"

	d := New(tr, supervisor.New(), site, srv, nil, 5)
	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, remote.ran("ssh-keyscan -H"))
}

func TestRunBranchMissingFailsBeforeActivation(t *testing.T) {
	remote := newFakeRemote()
	remote.branchGone = true
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	site := testSite(t)

	d := New(tr, supervisor.New(), site, srv, nil, 5)
	_, err := d.Run(context.Background())
	require.Error(t, err)
	kind, ok := errs.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errs.BranchMissing, kind)

	assert.False(t, remote.ran("ln -sfn"), "activation must not run when the branch is missing")
}

func TestRunFailureBeforeActivationCleansUpPartialRelease(t *testing.T) {
	remote := newFakeRemote()
	remote.failOn["chmod +x"] = 1 // fail the 1-building hook step
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	site := testSite(t)

	d := New(tr, supervisor.New(), site, srv, nil, 5)
	_, err := d.Run(context.Background())
	require.Error(t, err)

	assert.False(t, remote.ran("ln -sfn"), "activation must not run when a pre-activation hook fails")
	assert.True(t, remote.ran("rm -rf /home/deployer/sites/example.com/releases/20260731_120000"), "a partial release must be cleaned up")
}

func TestRunFailureAfterActivationDowngradesToWarning(t *testing.T) {
	remote := newFakeRemote()
	remote.failOn["systemctl reload"] = 1
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	site := testSite(t)

	d := New(tr, supervisor.New(), site, srv, nil, 5)
	result, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", result.Status)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "PHP pool reload failed")
}

func TestRunRestartsEachDeclaredSupervisorProgram(t *testing.T) {
	remote := newFakeRemote()
	fixture := sshtest.Start(t, remote.handler, false)
	srv := testServer(t, fixture.Addr)
	tr := testTransport(t)
	site := testSite(t)
	site.Supervisors = []fleet.Supervisor{{Program: "worker", Script: "crons/worker.sh"}}

	d := New(tr, supervisor.New(), site, srv, nil, 5)
	_, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, remote.ran("supervisorctl restart"))
}

func TestGitRemoteHostFromSCPLikeURL(t *testing.T) {
	assert.Equal(t, "github.com", gitRemoteHost("git@github.com:example/repo.git"))
}

func TestGitRemoteHostFromSSHSchemeURL(t *testing.T) {
	assert.Equal(t, "github.com", gitRemoteHost("ssh://git@github.com/example/repo.git"))
}

func TestGitRemoteHostEmptyForHTTPURL(t *testing.T) {
	assert.Equal(t, "", gitRemoteHost("https://github.com/example/repo.git"))
}

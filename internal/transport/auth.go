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

package transport

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

// authMethods builds the signer list for a Server: an explicit private
// key file takes priority, then the running ssh-agent, then the
// user's default identity files. Signers are deduplicated by
// fingerprint, the same defensive step gangplank/internal/ocp/ssh.go
// takes before handing signers to ssh.PublicKeysCallback.
func authMethods(srv *fleet.Server) ([]ssh.AuthMethod, error) {
	var signers []ssh.Signer

	if srv.PrivateKeyPath != "" {
		s, err := signerFromFile(srv.PrivateKeyPath)
		if err != nil {
			return nil, errs.New(errs.AuthFailed, "transport.authMethods", err)
		}
		signers = append(signers, s)
	}

	if sock, ok := os.LookupEnv("SSH_AUTH_SOCK"); ok {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentSigners, err := agent.NewClient(conn).Signers()
			if err == nil {
				signers = append(signers, agentSigners...)
			}
		}
	}

	if srv.PrivateKeyPath == "" {
		for _, candidate := range defaultIdentityFiles() {
			if s, err := signerFromFile(candidate); err == nil {
				signers = append(signers, s)
			}
		}
	}

	signers = dedupeSigners(signers)
	if len(signers) == 0 {
		return nil, errs.New(errs.AuthFailed, "transport.authMethods",
			fmt.Errorf("no usable SSH key material for server %q", srv.Name))
	}

	return []ssh.AuthMethod{ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		return signers, nil
	})}, nil
}

func dedupeSigners(in []ssh.Signer) []ssh.Signer {
	seen := make(map[string]bool, len(in))
	out := make([]ssh.Signer, 0, len(in))
	for _, s := range in {
		fp := ssh.FingerprintSHA256(s.PublicKey())
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, s)
	}
	return out
}

func defaultIdentityFiles() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{
		home + "/.ssh/id_ed25519",
		home + "/.ssh/id_rsa",
		home + "/.ssh/id_ecdsa",
	}
}

func signerFromFile(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(data)
}

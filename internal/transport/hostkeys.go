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
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/coreosfleet/deployer/internal/errs"
)

// acceptNewHostKeyCallback implements an "accept-new" host key policy:
// first contact with a host records its key; a later mismatch is
// fatal. golang.org/x/crypto/ssh/knownhosts already speaks
// the known_hosts format and distinguishes "unknown host" from
// "key changed" via knownhosts.KeyError, so the policy is a thin
// wrapper rather than a hand-rolled known_hosts parser.
type acceptNewHostKeyCallback struct {
	path string
	mu   sync.Mutex
	cb   ssh.HostKeyCallback
}

func newAcceptNewHostKeyCallback(path string) (*acceptNewHostKeyCallback, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errs.New(errs.TransportError, "transport.hostkeys", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	if err := ensureFile(path); err != nil {
		return nil, errs.New(errs.TransportError, "transport.hostkeys", err)
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, errs.New(errs.TransportError, "transport.hostkeys", err)
	}

	return &acceptNewHostKeyCallback{path: path, cb: cb}, nil
}

func ensureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// HostKeyCallback returns an ssh.HostKeyCallback suitable for a
// ssh.ClientConfig. On a host never seen before it appends the offered
// key to the known_hosts file and accepts the connection. On a host
// whose key has changed it returns a HostKeyMismatch error.
func (a *acceptNewHostKeyCallback) HostKeyCallback() ssh.HostKeyCallback {
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		a.mu.Lock()
		defer a.mu.Unlock()

		err := a.cb(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if ok := asKeyError(err, &keyErr); !ok {
			return errs.New(errs.TransportError, "transport.HostKeyCallback", err)
		}

		if len(keyErr.Want) > 0 {
			// The host is known under a different key: a real mismatch.
			return errs.New(errs.HostKeyMismatch, "transport.HostKeyCallback",
				fmt.Errorf("host key for %s does not match known_hosts", hostname))
		}

		// Unknown host: accept-new records it and proceeds.
		line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
		f, openErr := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, 0600)
		if openErr != nil {
			return errs.New(errs.TransportError, "transport.HostKeyCallback", openErr)
		}
		defer f.Close()
		if _, writeErr := f.WriteString(line + "\n"); writeErr != nil {
			return errs.New(errs.TransportError, "transport.HostKeyCallback", writeErr)
		}

		// Reload so this process's in-memory callback recognizes the
		// host on subsequent connections within the same run.
		reloaded, reloadErr := knownhosts.New(a.path)
		if reloadErr == nil {
			a.cb = reloaded
		}
		return nil
	}
}

func asKeyError(err error, out **knownhosts.KeyError) bool {
	if ke, ok := err.(*knownhosts.KeyError); ok {
		*out = ke
		return true
	}
	return false
}

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

// Package transport implements SSH connection pooling, accept-new host
// key verification, command execution with timeout classification, and
// SFTP transfer.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/internal/retry"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

// idempotentRetryAttempts/idempotentRetryDelay bound the single retry
// ConnectIdempotent performs: one fresh connect attempt after a
// ConnectFailed or SSHTimeout, per the transport failure propagation
// policy for idempotent operations.
const (
	idempotentRetryAttempts = 2
	idempotentRetryDelay    = time.Second
)

// Transport is the shared entry point for reaching any Server in the
// fleet. One Transport is constructed per engine run and handed to
// every package that needs to talk to a remote host.
type Transport struct {
	cfg      Config
	hostKeys *acceptNewHostKeyCallback
	pool     *pool
}

// New builds a Transport from cfg, creating its known_hosts file if
// necessary.
func New(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()
	hk, err := newAcceptNewHostKeyCallback(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	return &Transport{
		cfg:      cfg,
		hostKeys: hk,
		pool:     newPool(cfg.PoolCapacityPerHost, cfg.IdleTimeout),
	}, nil
}

// Close releases pooled connections and stops the idle reaper.
func (t *Transport) Close() {
	t.pool.close()
}

// Connect returns a Session for srv, reusing a pooled connection when
// one is idle and under capacity, or dialing a fresh one otherwise.
// When the pool is at capacity for srv's endpoint, it dials and
// returns an unpooled connection rather than blocking — a host that is
// momentarily busy should not stall the whole deploy fan-out.
func (t *Transport) Connect(ctx context.Context, srv *fleet.Server) (*Session, error) {
	key := poolKey{host: srv.Host, port: srv.Port, user: srv.Username}

	if client := t.pool.acquire(key); client != nil {
		return &Session{client: client, host: srv.Host}, nil
	}

	client, err := t.dial(ctx, srv)
	if err != nil {
		return nil, err
	}

	if !t.pool.admit(key, client) {
		// Over capacity: hand back an unpooled session; the caller's
		// eventual session close just drops the client.
		return &Session{client: client, host: srv.Host}, nil
	}

	return &Session{client: client, host: srv.Host}, nil
}

// ConnectIdempotent is like Connect but retries once with a fresh dial
// when the failure is ConnectFailed or SSHTimeout. Only callers whose
// own operation is safe to retry from scratch — info queries, existence
// checks — should use this instead of Connect: a transient dial failure
// against an otherwise-healthy host should self-heal rather than mark
// the host unreachable.
func (t *Transport) ConnectIdempotent(ctx context.Context, srv *fleet.Server) (*Session, error) {
	var sess *Session
	err := retry.Do(ctx, idempotentRetryAttempts, idempotentRetryDelay, retryableConnectError, func(ctx context.Context) error {
		s, err := t.Connect(ctx, srv)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	return sess, err
}

func retryableConnectError(err error) bool {
	kind, ok := errs.KindOf(err)
	return ok && (kind == errs.ConnectFailed || kind == errs.SSHTimeout)
}

// Release returns a Session's underlying connection to the pool for
// reuse. Callers that obtained a Session via Connect should call
// Release when done with it instead of closing the client directly.
func (t *Transport) Release(srv *fleet.Server, s *Session) {
	key := poolKey{host: srv.Host, port: srv.Port, user: srv.Username}
	t.pool.release(key, s.client)
}

func (t *Transport) dial(ctx context.Context, srv *fleet.Server) (*ssh.Client, error) {
	auth, err := authMethods(srv)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port))
	clientConfig := &ssh.ClientConfig{
		User:            srv.Username,
		Auth:            auth,
		HostKeyCallback: t.hostKeys.HostKeyCallback(),
		Timeout:         t.cfg.ConnectTimeout,
	}

	type dialResult struct {
		client *ssh.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, clientConfig)
		resultCh <- dialResult{c, err}
	}()

	select {
	case <-ctx.Done():
		return nil, errs.New(errs.SSHTimeout, "transport.dial", ctx.Err())
	case res := <-resultCh:
		if res.err == nil {
			return res.client, nil
		}
		if kind, ok := errs.KindOf(res.err); ok && kind == errs.HostKeyMismatch {
			return nil, res.err
		}
		var netErr net.Error
		if asNetTimeoutError(res.err, &netErr) && netErr.Timeout() {
			return nil, errs.New(errs.SSHTimeout, "transport.dial", res.err)
		}
		if isAuthFailure(res.err) {
			return nil, errs.New(errs.AuthFailed, "transport.dial", res.err)
		}
		return nil, errs.New(errs.ConnectFailed, "transport.dial",
			fmt.Errorf("dial %s: %w", addr, res.err))
	}
}

func asNetTimeoutError(err error, out *net.Error) bool {
	if ne, ok := err.(net.Error); ok {
		*out = ne
		return true
	}
	return false
}

func isAuthFailure(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "handshake failed")
}

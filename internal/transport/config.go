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

import "time"

// Config bounds the transport's pooling and deadline behavior. It is
// supplied once at engine construction rather than read from globals.
type Config struct {
	// KnownHostsPath is the file accept-new host-key verification
	// reads from and appends to. Defaults to ~/.ssh/known_hosts.
	KnownHostsPath string

	// PoolCapacityPerHost bounds concurrent pooled connections to a
	// single (host,port,user) tuple. Default 8.
	PoolCapacityPerHost int

	// IdleTimeout closes pooled connections that have sat unused this
	// long. Default 60s.
	IdleTimeout time.Duration

	// ConnectTimeout bounds the TCP dial + SSH handshake. Default 30s.
	ConnectTimeout time.Duration

	// CommandTimeout is the default wall-clock deadline for a short
	// command when the caller does not supply one. Default 60s.
	CommandTimeout time.Duration

	// TransferTimeout bounds uploadFile/downloadFile. Default 5m.
	TransferTimeout time.Duration
}

// DefaultConfig returns the engine's default timeout/pool settings.
func DefaultConfig() Config {
	return Config{
		PoolCapacityPerHost: 8,
		IdleTimeout:         60 * time.Second,
		ConnectTimeout:      30 * time.Second,
		CommandTimeout:      60 * time.Second,
		TransferTimeout:     5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PoolCapacityPerHost <= 0 {
		c.PoolCapacityPerHost = d.PoolCapacityPerHost
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = d.CommandTimeout
	}
	if c.TransferTimeout <= 0 {
		c.TransferTimeout = d.TransferTimeout
	}
	return c
}

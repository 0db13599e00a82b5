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

// Package fleet holds the caller-facing data model: Server, Site,
// ServerInfo, Release, Cron, and Supervisor declarations. The engine
// reads these types but never persists them — inventory storage is an
// external collaborator's responsibility.
package fleet

import (
	"fmt"
	"strings"
)

// Server identifies a remote host the engine can reach over SSH.
// Immutable after creation except for Tags.
type Server struct {
	Name           string
	Host           string
	Port           int
	Username       string
	PrivateKeyPath string
	Provider       string
	InstanceID     string
	Tags           map[string]string
}

// NewServer validates and constructs a Server, filling in the default
// SSH port. Callers never build a Server by bare struct literal across
// a package boundary.
func NewServer(name, host, username string) (*Server, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("fleet: server name must not be empty")
	}
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("fleet: server %q: host must not be empty", name)
	}
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("fleet: server %q: username must not be empty", name)
	}
	return &Server{
		Name:     name,
		Host:     host,
		Port:     22,
		Username: username,
		Tags:     map[string]string{},
	}, nil
}

// Addr renders host:port for dialing.
func (s *Server) Addr() string {
	port := s.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}

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

// Package sshtest runs an in-process golang.org/x/crypto/ssh server so
// transport/executor/deploy/cron/supervisor tests exercise the real
// wire protocol instead of mocking the transport interface away.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Handler answers one "exec" request with captured stdout, stderr, and
// an exit code.
type Handler func(cmd string) (stdout, stderr string, exitCode int)

// Server is a minimal SSH daemon: it accepts any publickey/password
// and dispatches "exec" requests to Handler. If EnableSFTP is set, it
// also serves the "sftp" subsystem against the real local filesystem
// via github.com/pkg/sftp's Server.
type Server struct {
	Addr string

	t        *testing.T
	listener net.Listener
	config   *ssh.ServerConfig
	handler  Handler
	sftp     bool

	wg sync.WaitGroup
}

// Start listens on 127.0.0.1:0 and begins accepting connections in the
// background. Call Close (usually via t.Cleanup) to stop it.
func Start(t *testing.T, handler Handler, enableSFTP bool) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshtest: generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		t.Fatalf("sshtest: signer from key: %v", err)
	}

	config := &ssh.ServerConfig{
		NoClientAuth: false,
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			return nil, nil
		},
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			return nil, nil
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("sshtest: listen: %v", err)
	}

	s := &Server{
		Addr:     ln.Addr().String(),
		t:        t,
		listener: ln,
		config:   config,
		handler:  handler,
		sftp:     enableSFTP,
	}

	s.wg.Add(1)
	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// Close stops accepting new connections.
func (s *Server) Close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(nconn net.Conn) {
	sconn, chans, reqs, err := ssh.NewServerConn(nconn, s.config)
	if err != nil {
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(channel, requests)
	}
}

func (s *Server) handleSession(channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()
	for req := range requests {
		switch req.Type {
		case "exec":
			cmd := string(req.Payload[4:])
			req.Reply(true, nil)
			s.runExec(channel, cmd)
			return
		case "subsystem":
			name := string(req.Payload[4:])
			req.Reply(name == "sftp" && s.sftp, nil)
			if name == "sftp" && s.sftp {
				s.runSFTP(channel)
			}
			return
		default:
			req.Reply(false, nil)
		}
	}
}

func (s *Server) runExec(channel ssh.Channel, cmd string) {
	stdout, stderr, exitCode := s.handler(cmd)
	io.WriteString(channel, stdout)
	io.WriteString(channel.Stderr(), stderr)
	channel.SendRequest("exit-status", false, exitStatusPayload(exitCode))
}

func (s *Server) runSFTP(channel ssh.Channel) {
	server, err := sftp.NewServer(channel)
	if err != nil {
		return
	}
	defer server.Close()
	server.Serve()
}

func exitStatusPayload(code int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(code))
	return b
}

// Echo is a Handler that always succeeds with cmd as stdout, useful
// for tests that only assert a command was well-formed.
func Echo(cmd string) (string, string, int) {
	return cmd, "", 0
}

// Dial connects to addr as "testuser", accepting any host key — tests
// own both ends of the connection, so there is nothing to verify.
func Dial(addr string) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            "testuser",
		Auth:            []ssh.AuthMethod{ssh.Password("unused")},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	return ssh.Dial("tcp", addr, config)
}

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
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/term"

	"github.com/coreosfleet/deployer/internal/errs"
)

// CommandResult is the outcome of a non-streamed remote command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Session is one logical command/transfer channel against a pooled
// ssh.Client. It does not own the client's lifetime; Transport does.
type Session struct {
	client *ssh.Client
	host   string
}

// ExecuteCommand runs cmd to completion and captures its output. A
// non-zero remote exit classifies as errs.RemoteExitNonZero rather
// than a bare error, carrying the exit code and output tails so
// callers can report them without re-parsing.
func (s *Session) ExecuteCommand(ctx context.Context, cmd string) (CommandResult, error) {
	sess, err := s.client.NewSession()
	if err != nil {
		return CommandResult{}, errs.New(errs.TransportError, "transport.ExecuteCommand", err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return CommandResult{}, errs.New(errs.SSHTimeout, "transport.ExecuteCommand", ctx.Err())
	case runErr := <-done:
		result := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
		if runErr == nil {
			return result, nil
		}
		var exitErr *ssh.ExitError
		if asExitError(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, errs.NewRemoteExit("transport.ExecuteCommand", result.ExitCode, tail(result.Stdout), result.Stderr)
		}
		return result, errs.New(errs.TransportError, "transport.ExecuteCommand", runErr)
	}
}

// StreamCommand runs cmd, invoking onLine for each line of stdout and
// stderr as it arrives, for playbooks and deploy hooks that want live
// progress rather than a buffered result.
func (s *Session) StreamCommand(ctx context.Context, cmd string, onLine func(stream, line string)) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return errs.New(errs.TransportError, "transport.StreamCommand", err)
	}
	defer sess.Close()

	stdoutPipe, err := sess.StdoutPipe()
	if err != nil {
		return errs.New(errs.TransportError, "transport.StreamCommand", err)
	}
	stderrPipe, err := sess.StderrPipe()
	if err != nil {
		return errs.New(errs.TransportError, "transport.StreamCommand", err)
	}

	if err := sess.Start(cmd); err != nil {
		return errs.New(errs.TransportError, "transport.StreamCommand", err)
	}

	var wg lineWaitGroup
	wg.scan(stdoutPipe, func(line string) { onLine("stdout", line) })
	wg.scan(stderrPipe, func(line string) { onLine("stderr", line) })

	done := make(chan error, 1)
	go func() {
		wg.wait()
		done <- sess.Wait()
	}()

	select {
	case <-ctx.Done():
		sess.Signal(ssh.SIGKILL)
		return errs.New(errs.SSHTimeout, "transport.StreamCommand", ctx.Err())
	case runErr := <-done:
		if runErr == nil {
			return nil
		}
		var exitErr *ssh.ExitError
		if asExitError(runErr, &exitErr) {
			return errs.NewRemoteExit("transport.StreamCommand", exitErr.ExitStatus(), "", "")
		}
		return errs.New(errs.TransportError, "transport.StreamCommand", runErr)
	}
}

// Shell connects os.Stdin/Stdout/Stderr to an interactive remote shell
// and blocks until it exits. It puts the local terminal into raw mode
// for the duration and restores it on return. If stdin is not a TTY,
// Shell returns immediately with a nil error — this is the rare
// interactive path operators reach for when a one-off playbook or
// hook failure needs to be investigated by hand on the remote host.
func (s *Session) Shell() error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}

	prevState, err := term.MakeRaw(fd)
	if err != nil {
		return errs.New(errs.TransportError, "transport.Shell", err)
	}
	defer term.Restore(fd, prevState)

	sess, err := s.client.NewSession()
	if err != nil {
		return errs.New(errs.TransportError, "transport.Shell", err)
	}
	defer sess.Close()

	sess.Stdin = os.Stdin
	sess.Stdout = os.Stdout
	sess.Stderr = os.Stderr

	cols, lines, err := term.GetSize(fd)
	if err != nil {
		return errs.New(errs.TransportError, "transport.Shell", err)
	}

	modes := ssh.TerminalModes{
		ssh.TTY_OP_ISPEED: 115200,
		ssh.TTY_OP_OSPEED: 115200,
	}
	if err := sess.RequestPty(os.Getenv("TERM"), lines, cols, modes); err != nil {
		return errs.New(errs.TransportError, "transport.Shell", err)
	}
	if err := sess.Shell(); err != nil {
		return errs.New(errs.TransportError, "transport.Shell", err)
	}

	if err := sess.Wait(); err != nil {
		// A session torn down by a remote reboot or logout is normal,
		// not a failure of the shell request itself.
		var exitMissing *ssh.ExitMissingError
		if asExitMissing(err, &exitMissing) {
			return nil
		}
		return errs.New(errs.TransportError, "transport.Shell", err)
	}
	return nil
}

func asExitMissing(err error, out **ssh.ExitMissingError) bool {
	if em, ok := err.(*ssh.ExitMissingError); ok {
		*out = em
		return true
	}
	return false
}

func asExitError(err error, out **ssh.ExitError) bool {
	if ee, ok := err.(*ssh.ExitError); ok {
		*out = ee
		return true
	}
	return false
}

func tail(s string) string {
	const max = 4096
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

// lineWaitGroup scans one or more readers line-by-line concurrently
// and blocks until all have hit EOF.
type lineWaitGroup struct {
	wg sync.WaitGroup
}

func (l *lineWaitGroup) scan(r io.Reader, onLine func(string)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			onLine(scanner.Text())
		}
	}()
}

func (l *lineWaitGroup) wait() {
	l.wg.Wait()
}

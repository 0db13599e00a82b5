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

// Package errs defines the error taxonomy shared by every layer of the
// deployment engine (transport, playbook execution, deployment
// orchestration). Callers classify failures by Kind rather than by Go
// type, grouped into Transport/Invocation/Remote/Domain/State families.
package errs

import "fmt"

// Kind classifies a failure into one of the error families below.
type Kind string

const (
	// Transport family.
	ConnectFailed   Kind = "connect_failed"
	AuthFailed      Kind = "auth_failed"
	HostKeyMismatch Kind = "host_key_mismatch"
	SSHTimeout      Kind = "ssh_timeout"
	TransferFailed  Kind = "transfer_failed"
	TransportError  Kind = "transport_error"

	// Invocation family.
	MissingEnv      Kind = "missing_env"
	UnknownPlaybook Kind = "unknown_playbook"
	UnknownInclude  Kind = "unknown_include"

	// Remote family.
	RemoteExitNonZero Kind = "remote_exit_nonzero"
	MalformedOutput   Kind = "malformed_output"

	// Domain family.
	BranchMissing          Kind = "branch_missing"
	DistroUnsupported      Kind = "distro_unsupported"
	PermissionsInsufficient Kind = "permissions_insufficient"
	SiteAlreadyExists      Kind = "site_already_exists"
	SiteNotFound           Kind = "site_not_found"
	PHPVersionUnavailable  Kind = "php_version_unavailable"

	// State family.
	StaleInventory Kind = "stale_inventory"
)

// Error is the concrete error type produced across the engine. Op
// names the operation that failed (e.g. "transport.Connect",
// "deploy.Activate"); Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error

	// Remote-family context, populated for RemoteExitNonZero.
	ExitCode int
	Stderr   string
	StdoutTail string
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.Kind) style matching against a sentinel
// constructed with New(kind, "", nil).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Err == nil && t.Op == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op
}

// New builds a classified error for op, wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel returns a bare Error carrying only a Kind, suitable for use
// with errors.Is(err, errs.Sentinel(errs.SSHTimeout)).
func Sentinel(kind Kind) *Error {
	return &Error{Kind: kind}
}

// NewRemoteExit builds a RemoteExitNonZero error carrying the captured
// exit code, stderr, and a tail of stdout.
func NewRemoteExit(op string, exitCode int, stdoutTail, stderr string) *Error {
	return &Error{
		Kind:       RemoteExitNonZero,
		Op:         op,
		ExitCode:   exitCode,
		Stderr:     stderr,
		StdoutTail: stdoutTail,
	}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	type causer interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind, true
		}
		c, ok := err.(causer)
		if !ok {
			return "", false
		}
		err = c.Unwrap()
	}
	return "", false
}

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

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := New(ConnectFailed, "transport.dial", cause)
	assert.Equal(t, "transport.dial: connect_failed: dial tcp: connection refused", err.Error())
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := New(SiteNotFound, "deploy.Run", nil)
	assert.Equal(t, "deploy.Run: site_not_found", err.Error())
}

func TestErrorsIsMatchesSentinel(t *testing.T) {
	err := New(SSHTimeout, "transport.Connect", fmt.Errorf("i/o timeout"))
	assert.True(t, errors.Is(err, Sentinel(SSHTimeout)))
	assert.False(t, errors.Is(err, Sentinel(ConnectFailed)))
}

func TestErrorsIsMatchesSameKindAndOp(t *testing.T) {
	a := New(AuthFailed, "transport.dial", fmt.Errorf("x"))
	b := &Error{Kind: AuthFailed, Op: "transport.dial"}
	assert.True(t, errors.Is(a, b))

	c := &Error{Kind: AuthFailed, Op: "transport.other"}
	assert.False(t, errors.Is(a, c))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := New(TransferFailed, "transport.UploadFile", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestKindOfDirect(t *testing.T) {
	err := New(BranchMissing, "deploy.cloneOrUpdate", nil)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, BranchMissing, kind)
}

func TestKindOfWrapped(t *testing.T) {
	inner := New(DistroUnsupported, "serverinfo.validateGate", nil)
	wrapped := fmt.Errorf("gathering failed: %w", inner)
	kind, ok := KindOf(wrapped)
	assert.True(t, ok)
	assert.Equal(t, DistroUnsupported, kind)
}

func TestKindOfUnclassifiedError(t *testing.T) {
	_, ok := KindOf(fmt.Errorf("plain error"))
	assert.False(t, ok)
}

func TestNewRemoteExitCarriesContext(t *testing.T) {
	err := NewRemoteExit("executor.Run", 127, "stdout tail", "stderr output")
	assert.Equal(t, RemoteExitNonZero, err.Kind)
	assert.Equal(t, 127, err.ExitCode)
	assert.Equal(t, "stdout tail", err.StdoutTail)
	assert.Equal(t, "stderr output", err.Stderr)
}

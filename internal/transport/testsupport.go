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

import "golang.org/x/crypto/ssh"

// NewSessionFromClient builds a Session around an already-established
// ssh.Client, bypassing Transport's dial/pool machinery. It exists for
// other packages' tests to drive a Session against the in-process
// fixture in internal/sshtest without duplicating Session's private
// fields.
func NewSessionFromClient(client *ssh.Client, host string) *Session {
	return &Session{client: client, host: host}
}

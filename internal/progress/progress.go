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

// Package progress defines the narrow interface the engine uses to
// report work to whatever front end the caller chooses — an
// interactive spinner, a log file, or nothing at all. The terminal UI
// itself is out of scope; this is the seam it plugs into.
package progress

// Reporter receives progress narration from the engine. Implementations
// must be safe for concurrent use: the engine calls Reporter methods
// from one goroutine per host during fan-out.
type Reporter interface {
	// Step announces the start of a discrete unit of work.
	Step(format string, args ...any)
	// Warnf reports a non-fatal problem.
	Warnf(format string, args ...any)
	// Stream delivers one line of remote stdout/stderr during a
	// streamed playbook or deployment stage.
	Stream(host, line string)
}

// Noop discards everything. It is the default when no Reporter is
// supplied at engine construction.
type Noop struct{}

func (Noop) Step(string, ...any)       {}
func (Noop) Warnf(string, ...any)      {}
func (Noop) Stream(string, string)     {}

var _ Reporter = Noop{}

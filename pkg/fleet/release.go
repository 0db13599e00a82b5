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

package fleet

// ReleaseState is the lifecycle stage of a release directory on the
// remote host.
type ReleaseState string

const (
	ReleaseCreated   ReleaseState = "created"
	ReleaseExtracted ReleaseState = "extracted"
	ReleaseHooksRun  ReleaseState = "hooks_run"
	ReleaseActivated ReleaseState = "activated"
)

// Release is one timestamped deployment of a Site.
type Release struct {
	Name  string // YYYYMMDD_HHMMSS[_N]
	Site  string // domain
	State ReleaseState
}

// Result is the payload the engine returns for a successful
// deployment.
type Result struct {
	Status       string
	Domain       string
	Branch       string
	ReleaseName  string
	ReleasePath  string
	CurrentPath  string
	KeepReleases int
	Warnings     []string
}

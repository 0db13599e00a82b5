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

// Distro is the closed set of Linux distributions the info playbook
// can identify.
type Distro string

const (
	DistroUbuntu  Distro = "ubuntu"
	DistroDebian  Distro = "debian"
	DistroFedora  Distro = "fedora"
	DistroCentOS  Distro = "centos"
	DistroRocky   Distro = "rocky"
	DistroAlma    Distro = "alma"
	DistroRHEL    Distro = "rhel"
	DistroAmazon  Distro = "amazon"
	DistroUnknown Distro = "unknown"
)

// Family groups distros by packaging ecosystem.
type Family string

const (
	FamilyDebian  Family = "debian"
	FamilyFedora  Family = "fedora"
	FamilyRedHat  Family = "redhat"
	FamilyAmazon  Family = "amazon"
	FamilyUnknown Family = "unknown"
)

// Permissions describes how much the connecting user can do on the
// remote host.
type Permissions string

const (
	PermissionsRoot  Permissions = "root"
	PermissionsSudo  Permissions = "sudo"
	PermissionsNone  Permissions = "none"
)

// CanMutate reports whether permissions are sufficient for any
// mutating playbook.
func (p Permissions) CanMutate() bool {
	return p == PermissionsRoot || p == PermissionsSudo
}

// DiskType is hardware disk classification reported by the info
// playbook.
type DiskType string

const (
	DiskSSD DiskType = "ssd"
	DiskHDD DiskType = "hdd"
)

// Hardware summarizes the remote host's compute resources.
type Hardware struct {
	CPUCores int
	RAMMB    int
	DiskType DiskType
}

// PHPRuntime describes one installed PHP version and its extensions.
type PHPRuntime struct {
	Version    string
	Extensions []string
}

// PHPInfo is the full PHP runtime picture on a host.
type PHPInfo struct {
	Default  string
	Versions []PHPRuntime
}

// SiteConfigSummary is what the info playbook reports about a site it
// finds already configured on the host (independent of our own
// inventory's view of that site).
type SiteConfigSummary struct {
	PHPVersion   string
	WwwMode      WwwMode
	HTTPSEnabled bool
}

// ServerInfo is the transient structured result of the info playbook.
// It is never persisted by the engine.
type ServerInfo struct {
	Distro      Distro
	Family      Family
	Permissions Permissions
	Hardware    Hardware
	PHP         PHPInfo
	Ports       map[int]string
	SitesConfig map[string]SiteConfigSummary
}

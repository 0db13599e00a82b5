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

import (
	"fmt"
	"strings"
)

// WwwMode controls how the www/root redirect for a domain is handled.
type WwwMode string

const (
	WwwRedirectToRoot WwwMode = "redirect-to-root"
	WwwRedirectToWww  WwwMode = "redirect-to-www"
)

// Cron declares one scheduled script invocation for a site.
type Cron struct {
	Script   string // path relative to the site's deployed code
	Schedule string // crontab-style 5-field schedule
}

// Supervisor declares one long-running worker program for a site.
type Supervisor struct {
	Program       string
	Script        string // path relative to the site's deployed code
	Autostart     bool
	Autorestart   bool
	StopWaitSecs  int
	NumProcs      int
}

// Site declares one domain hosted on one server.
type Site struct {
	Domain      string
	ServerName  string
	Repo        string
	Branch      string
	PHPVersion  string
	WwwMode     WwwMode
	Crons       []Cron
	Supervisors []Supervisor

	// KeepReleases bounds retention for this site's deployments; zero
	// means the engine default (5).
	KeepReleases int
}

// NewSite validates and constructs a Site, matching the
// validating-constructor idiom used throughout this module.
func NewSite(domain, serverName string) (*Site, error) {
	if strings.TrimSpace(domain) == "" {
		return nil, fmt.Errorf("fleet: site domain must not be empty")
	}
	if strings.TrimSpace(serverName) == "" {
		return nil, fmt.Errorf("fleet: site %q: serverName must not be empty", domain)
	}
	return &Site{
		Domain:     domain,
		ServerName: serverName,
		WwwMode:    WwwRedirectToRoot,
	}, nil
}

// EffectiveKeepReleases applies the default-and-minimum retention rule:
// any non-positive KeepReleases falls back to fallback, the engine's
// configured DefaultKeepReleases.
func (s *Site) EffectiveKeepReleases(fallback int) int {
	if s.KeepReleases <= 0 {
		return fallback
	}
	return s.KeepReleases
}

// CronScriptBase returns the basename used in log/logrotate fragment
// names for a cron script, e.g. "crons/scheduler.sh" -> "scheduler".
func CronScriptBase(script string) string {
	base := script
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".sh")
}

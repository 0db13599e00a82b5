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

// Package supervisor implements the Supervisor Syncer: rendering
// per-program supervisord fragments, sweeping orphans, and triggering
// reread/update.
package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/coreosfleet/deployer/internal/shellquote"
	"github.com/coreosfleet/deployer/internal/transport"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

const confDir = "/etc/supervisor/conf.d"
const logrotateDir = "/etc/logrotate.d"

var fragmentTemplate = template.Must(template.New("supervisor").Parse(`[program:{{.Domain}}-{{.Program}}]
command={{.SiteRoot}}/runner.sh .deployer/supervisors/{{.Script}}
directory={{.SiteRoot}}/current
user=deployer
autostart={{.Autostart}}
autorestart={{.Autorestart}}
stopwaitsecs={{.StopWaitSecs}}
numprocs={{.NumProcs}}
process_name=%(program_name)s_%(process_num)02d
stdout_logfile={{.SiteRoot}}/shared/log/{{.Program}}.log
stdout_logfile_maxbytes=0
redirect_stderr=true
`))

var logrotateTemplate = template.Must(template.New("supervisor-logrotate").Parse(`{{.SiteRoot}}/shared/log/{{.Program}}.log {
	daily
	rotate 14
	missingok
	notifempty
	compress
	delaycompress
	copytruncate
}
`))

type fragmentData struct {
	Domain       string
	Program      string
	Script       string
	SiteRoot     string
	Autostart    bool
	Autorestart  bool
	StopWaitSecs int
	NumProcs     int
}

// Syncer reconciles a site's declared supervisor programs with the
// fragments on disk.
type Syncer struct{}

// New returns a Syncer. It carries no state: every call is handed the
// transport session and site it needs.
func New() *Syncer { return &Syncer{} }

// Sync writes a fragment per declared program, removes fragments for
// programs no longer declared, and triggers a supervisor reread+update.
func (s *Syncer) Sync(ctx context.Context, sess *transport.Session, site *fleet.Site) error {
	siteRoot := fmt.Sprintf("/home/deployer/sites/%s", site.Domain)
	wanted := make(map[string]bool, len(site.Supervisors))

	for _, sv := range site.Supervisors {
		wanted[sv.Program] = true
		data := fragmentData{
			Domain: site.Domain, Program: sv.Program, Script: sv.Script, SiteRoot: siteRoot,
			Autostart: sv.Autostart, Autorestart: sv.Autorestart,
			StopWaitSecs: sv.StopWaitSecs, NumProcs: max1(sv.NumProcs),
		}

		confPath := fmt.Sprintf("%s/%s-%s.conf", confDir, site.Domain, sv.Program)
		if err := writeRemoteFile(ctx, sess, confPath, render(fragmentTemplate, data)); err != nil {
			return err
		}

		logrotatePath := fmt.Sprintf("%s/supervisor-%s-%s.conf", logrotateDir, site.Domain, sv.Program)
		if err := writeRemoteFile(ctx, sess, logrotatePath, render(logrotateTemplate, data)); err != nil {
			return err
		}
	}

	if err := s.sweepOrphans(ctx, sess, site.Domain, wanted); err != nil {
		return err
	}

	if _, err := sess.ExecuteCommand(ctx, "supervisorctl reread"); err != nil {
		return err
	}
	if _, err := sess.ExecuteCommand(ctx, "supervisorctl update"); err != nil {
		return err
	}
	return nil
}

// RestartAll issues a supervisor restart for every declared program of
// site. Failures there are warnings, not fatal, per the caller's
// contract.
func (s *Syncer) RestartAll(ctx context.Context, sess *transport.Session, site *fleet.Site) error {
	var firstErr error
	for _, sv := range site.Supervisors {
		name := fmt.Sprintf("%s-%s", site.Domain, sv.Program)
		if _, err := sess.ExecuteCommand(ctx, "supervisorctl restart "+shellquote.Quote(name)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sweepOrphans removes any `<domain>-*.conf` fragment (and its
// matching logrotate fragment) whose program is not in wanted.
func (s *Syncer) sweepOrphans(ctx context.Context, sess *transport.Session, domain string, wanted map[string]bool) error {
	pattern := "^" + regexp.QuoteMeta(domain) + `-.*\.conf$`
	listCmd := fmt.Sprintf(`ls -1 %s 2>/dev/null | grep -E %s || true`, confDir, shellquote.Quote(pattern))
	result, err := sess.ExecuteCommand(ctx, listCmd)
	if err != nil {
		return err
	}

	prefix := domain + "-"
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if line == "" {
			continue
		}
		program := strings.TrimSuffix(strings.TrimPrefix(line, prefix), ".conf")
		if wanted[program] {
			continue
		}
		confPath := confDir + "/" + line
		logrotatePath := fmt.Sprintf("%s/supervisor-%s-%s.conf", logrotateDir, domain, program)
		cmd := fmt.Sprintf("rm -f %s %s", shellquote.Quote(confPath), shellquote.Quote(logrotatePath))
		if _, err := sess.ExecuteCommand(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func render(t *template.Template, data fragmentData) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		panic("supervisor: template render: " + err.Error())
	}
	return buf.String()
}

func writeRemoteFile(ctx context.Context, sess *transport.Session, remotePath, content string) error {
	cmd := fmt.Sprintf(`cat > %s <<'DEPLOYER_EOF'
%s
DEPLOYER_EOF`, shellquote.Quote(remotePath), content)
	_, err := sess.ExecuteCommand(ctx, cmd)
	return err
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

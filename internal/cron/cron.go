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

// Package cron implements the Cron Syncer: marker-delimited crontab
// block management plus matching logrotate fragments, via a generate
// → diff → write-back loop rendered with text/template for the
// one-line-per-cron format.
package cron

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/internal/shellquote"
	"github.com/coreosfleet/deployer/internal/transport"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

const logrotateDir = "/etc/logrotate.d"

var cronLineTemplate = template.Must(template.New("cron-line").Parse(
	`{{.Schedule}} {{.SiteRoot}}/runner.sh .deployer/crons/{{.Script}} >> /var/log/cron/{{.Domain}}-{{.ScriptBase}}.log 2>&1`,
))

var logrotateTemplate = template.Must(template.New("cron-logrotate").Parse(`/var/log/cron/{{.Domain}}-{{.ScriptBase}}.log {
	weekly
	rotate 8
	missingok
	notifempty
	compress
	delaycompress
	copytruncate
}
`))

func startMarker(domain string) string { return "# DEPLOYER-CRON-START " + domain }
func endMarker(domain string) string   { return "# DEPLOYER-CRON-END " + domain }

// Syncer reconciles a site's declared cron entries with the deployer
// user's crontab and matching logrotate fragments.
type Syncer struct{}

// New returns a Syncer.
func New() *Syncer { return &Syncer{} }

// ValidateSchedule checks that a cron schedule is syntactically a
// 5-field crontab expression. The engine never evaluates a schedule
// (it only places it verbatim into a crontab line), so this is a
// lightweight field-count/character check rather than a full
// scheduling-expression parser.
func ValidateSchedule(schedule string) error {
	fields := strings.Fields(schedule)
	if len(fields) != 5 {
		return errs.New(errs.MalformedOutput, "cron.ValidateSchedule",
			fmt.Errorf("schedule %q must have exactly 5 fields, got %d", schedule, len(fields)))
	}
	valid := regexp.MustCompile(`^[0-9*/,\-]+$`)
	for _, f := range fields {
		if !valid.MatchString(f) {
			return errs.New(errs.MalformedOutput, "cron.ValidateSchedule",
				fmt.Errorf("schedule %q: invalid field %q", schedule, f))
		}
	}
	return nil
}

// Sync reads the deployer user's current crontab, strips any existing
// block for site.Domain, and — if site.Crons is non-empty — appends a
// fresh marker-delimited block, then writes the crontab back. It also
// ensures per-script log files exist and prunes logrotate fragments
// for scripts no longer declared.
func (s *Syncer) Sync(ctx context.Context, sess *transport.Session, site *fleet.Site) error {
	for _, c := range site.Crons {
		if err := ValidateSchedule(c.Schedule); err != nil {
			return err
		}
	}

	current, err := s.readCrontab(ctx, sess)
	if err != nil {
		return err
	}

	stripped := stripBlock(current, site.Domain)
	next := stripped
	if len(site.Crons) > 0 {
		next = appendBlock(stripped, site, s.renderBlock(site))
	}
	if err := s.writeCrontab(ctx, sess, next); err != nil {
		return err
	}

	if err := s.ensureLogFiles(ctx, sess, site); err != nil {
		return err
	}
	return s.sweepOrphanLogrotate(ctx, sess, site)
}

func (s *Syncer) readCrontab(ctx context.Context, sess *transport.Session) (string, error) {
	result, err := sess.ExecuteCommand(ctx, "crontab -l -u deployer 2>/dev/null || true")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

func (s *Syncer) writeCrontab(ctx context.Context, sess *transport.Session, content string) error {
	cmd := fmt.Sprintf(`cat <<'DEPLOYER_EOF' | crontab -u deployer -
%s
DEPLOYER_EOF`, content)
	_, err := sess.ExecuteCommand(ctx, cmd)
	return err
}

func (s *Syncer) renderBlock(site *fleet.Site) []string {
	lines := make([]string, 0, len(site.Crons))
	for _, c := range site.Crons {
		var buf bytes.Buffer
		data := struct {
			Schedule, SiteRoot, Script, Domain, ScriptBase string
		}{
			Schedule:   c.Schedule,
			SiteRoot:   fmt.Sprintf("/home/deployer/sites/%s", site.Domain),
			Script:     c.Script,
			Domain:     site.Domain,
			ScriptBase: fleet.CronScriptBase(c.Script),
		}
		if err := cronLineTemplate.Execute(&buf, data); err != nil {
			panic("cron: template render: " + err.Error())
		}
		lines = append(lines, buf.String())
	}
	return lines
}

// stripBlock removes any existing `# DEPLOYER-CRON-START <domain>` ...
// `# DEPLOYER-CRON-END <domain>` block, exact marker match.
func stripBlock(crontab, domain string) string {
	start, end := startMarker(domain), endMarker(domain)
	lines := strings.Split(crontab, "\n")
	out := make([]string, 0, len(lines))
	inBlock := false
	for _, line := range lines {
		switch {
		case strings.TrimSpace(line) == start:
			inBlock = true
		case strings.TrimSpace(line) == end:
			inBlock = false
		case !inBlock:
			out = append(out, line)
		}
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}

func appendBlock(crontab string, site *fleet.Site, lines []string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(crontab, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(startMarker(site.Domain))
	b.WriteString("\n")
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(endMarker(site.Domain))
	b.WriteString("\n")
	return b.String()
}

func (s *Syncer) ensureLogFiles(ctx context.Context, sess *transport.Session, site *fleet.Site) error {
	if len(site.Crons) == 0 {
		return nil
	}
	var cmds []string
	cmds = append(cmds, "mkdir -p /var/log/cron")
	for _, c := range site.Crons {
		logPath := fmt.Sprintf("/var/log/cron/%s-%s.log", site.Domain, fleet.CronScriptBase(c.Script))
		cmds = append(cmds, fmt.Sprintf("touch %s && chmod 644 %[1]s && chown deployer:deployer %[1]s", shellquote.Quote(logPath)))

		logrotatePath := fmt.Sprintf("%s/cron-%s-%s.conf", logrotateDir, site.Domain, fleet.CronScriptBase(c.Script))
		var buf bytes.Buffer
		data := struct{ Domain, ScriptBase string }{site.Domain, fleet.CronScriptBase(c.Script)}
		if err := logrotateTemplate.Execute(&buf, data); err != nil {
			panic("cron: logrotate template render: " + err.Error())
		}
		writeCmd := fmt.Sprintf(`cat > %s <<'DEPLOYER_EOF'
%s
DEPLOYER_EOF`, shellquote.Quote(logrotatePath), buf.String())
		cmds = append(cmds, writeCmd)
	}
	if _, err := sess.ExecuteCommand(ctx, strings.Join(cmds, " && ")); err != nil {
		return err
	}
	return nil
}

// sweepOrphanLogrotate removes any `cron-<domain>-*.conf` fragment for
// a script no longer in site.Crons.
func (s *Syncer) sweepOrphanLogrotate(ctx context.Context, sess *transport.Session, site *fleet.Site) error {
	wanted := make(map[string]bool, len(site.Crons))
	for _, c := range site.Crons {
		wanted[fleet.CronScriptBase(c.Script)] = true
	}

	pattern := "^cron-" + regexp.QuoteMeta(site.Domain) + `-.*\.conf$`
	listCmd := fmt.Sprintf(`ls -1 %s 2>/dev/null | grep -E %s || true`, logrotateDir, shellquote.Quote(pattern))
	result, err := sess.ExecuteCommand(ctx, listCmd)
	if err != nil {
		return err
	}

	prefix := "cron-" + site.Domain + "-"
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if line == "" {
			continue
		}
		base := strings.TrimSuffix(strings.TrimPrefix(line, prefix), ".conf")
		if wanted[base] {
			continue
		}
		path := logrotateDir + "/" + line
		if _, err := sess.ExecuteCommand(ctx, "rm -f "+shellquote.Quote(path)); err != nil {
			return err
		}
	}
	return nil
}

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

package deploy

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/internal/shellquote"
)

func quote(s string) string { return shellquote.Quote(s) }

func (d *Deployment) run(ctx context.Context, cmd string) error {
	_, err := d.sess.ExecuteCommand(ctx, cmd)
	return err
}

// prepareDirectories is step 1: create releases/, shared/, repo/,
// owned by deployer:deployer; remove current only if present and not
// already a symlink.
func (d *Deployment) prepareDirectories(ctx context.Context) error {
	root := d.siteRoot()
	cmd := fmt.Sprintf(
		`mkdir -p %[1]s/releases %[1]s/shared %[1]s/repo && chown -R deployer:deployer %[1]s && `+
			`if [ -e %[1]s/current ] && [ ! -L %[1]s/current ]; then rm -rf %[1]s/current; fi`,
		quote(root),
	)
	return d.run(ctx, cmd)
}

// ensureGitHostKnown is step 2: if the repo URL is an SSH-style git
// remote, add its host key to the deployer's known_hosts via
// ssh-keyscan unless already present.
func (d *Deployment) ensureGitHostKnown(ctx context.Context) error {
	host := gitRemoteHost(d.Site.Repo)
	if host == "" {
		return nil
	}
	cmd := fmt.Sprintf(
		`mkdir -p ~deployer/.ssh && touch ~deployer/.ssh/known_hosts && `+
			`if ! ssh-keygen -F %[1]s -f ~deployer/.ssh/known_hosts >/dev/null 2>&1; then `+
			`ssh-keyscan -H %[1]s >> ~deployer/.ssh/known_hosts 2>/dev/null; fi`,
		quote(host),
	)
	return d.run(ctx, cmd)
}

// gitRemoteHost extracts the host from an scp-like ("git@host:path")
// or ssh:// git remote URL; returns "" for http(s)/file remotes, which
// need no known_hosts entry.
func gitRemoteHost(repo string) string {
	if strings.HasPrefix(repo, "ssh://") {
		if u, err := url.Parse(repo); err == nil {
			return u.Hostname()
		}
		return ""
	}
	if idx := strings.Index(repo, "@"); idx >= 0 {
		rest := repo[idx+1:]
		if colon := strings.Index(rest, ":"); colon >= 0 {
			return rest[:colon]
		}
	}
	return ""
}

// cloneOrUpdate is step 3: bare-clone if repo/objects is missing,
// otherwise re-point the remote and fetch with prune. Fails with
// BranchMissing if the requested branch does not exist afterward.
func (d *Deployment) cloneOrUpdate(ctx context.Context) error {
	repoPath := d.siteRoot() + "/repo"
	cmd := fmt.Sprintf(
		`if [ ! -d %[1]s/objects ]; then git clone --bare %[2]s %[1]s; `+
			`else git -C %[1]s remote set-url origin %[2]s && `+
			`git -C %[1]s fetch --prune origin '+refs/heads/*:refs/heads/*'; fi`,
		quote(repoPath), quote(d.Site.Repo),
	)
	if err := d.run(ctx, cmd); err != nil {
		return err
	}

	checkCmd := fmt.Sprintf(`git -C %s show-ref --verify --quiet refs/heads/%s`, quote(repoPath), d.Site.Branch)
	if err := d.run(ctx, checkCmd); err != nil {
		return errs.New(errs.BranchMissing, "deploy.cloneOrUpdate",
			fmt.Errorf("branch %q not found in %s", d.Site.Branch, d.Site.Repo))
	}
	return nil
}

// buildRelease is step 4: compute a monotonic timestamp, create the
// release directory, and export the branch into it via
// `git archive | tar -x` run entirely on the remote host.
func (d *Deployment) buildRelease(ctx context.Context) (string, error) {
	root := d.siteRoot()
	repoPath := root + "/repo"

	for attempt := 1; attempt <= 100; attempt++ {
		name, err := d.candidateReleaseName(ctx, attempt)
		if err != nil {
			return "", err
		}
		releasePath := root + "/releases/" + name

		// mkdir fails if the directory already exists, which is how a
		// same-second collision is detected and retried with a suffix.
		mkdirCmd := fmt.Sprintf("mkdir %s", quote(releasePath))
		if err := d.run(ctx, mkdirCmd); err != nil {
			continue
		}

		exportCmd := fmt.Sprintf(
			`git -C %s archive %s | tar -x -C %s && chown -R deployer:deployer %s && find %s -type d -exec chmod 755 {} +`,
			quote(repoPath), quote(d.Site.Branch), quote(releasePath), quote(releasePath), quote(releasePath),
		)
		if err := d.run(ctx, exportCmd); err != nil {
			return "", err
		}
		return name, nil
	}
	return "", errs.New(errs.TransportError, "deploy.buildRelease",
		fmt.Errorf("could not allocate a unique release name for %s", d.Site.Domain))
}

// candidateReleaseName asks the remote host for its local time (the
// timestamp is authoritative on the server, not the controller) and
// appends a "_N" suffix for attempt > 1 to resolve a collision.
func (d *Deployment) candidateReleaseName(ctx context.Context, attempt int) (string, error) {
	result, err := d.sess.ExecuteCommand(ctx, `date +%Y%m%d_%H%M%S`)
	if err != nil {
		return "", err
	}
	ts := strings.TrimSpace(result.Stdout)
	if attempt == 1 {
		return ts, nil
	}
	return fmt.Sprintf("%s_%d", ts, attempt), nil
}

// runHook runs an optional hook script inside the release if present.
// Hooks run as the deployer user (via sudo -u when the session is
// logged in as someone else) with the deployment's environment
// variables exported.
func (d *Deployment) runHook(ctx context.Context, releasePath, hookName string) error {
	hookPath := releasePath + "/.deployer/hooks/" + hookName + ".sh"
	env := d.hookEnv(releasePath)

	cmd := fmt.Sprintf(
		`if [ -f %[1]s ]; then chmod +x %[1]s && cd %[2]s && if [ "$(id -un)" = %[4]s ]; then %[3]s %[1]s; else sudo -u %[4]s %[3]s %[1]s; fi; fi`,
		quote(hookPath), quote(releasePath), env, deployUser,
	)
	return d.run(ctx, cmd)
}

func (d *Deployment) hookEnv(releasePath string) string {
	root := d.siteRoot()
	vars := map[string]string{
		"DEPLOYER_RELEASE_PATH": releasePath,
		"DEPLOYER_SHARED_PATH":  root + "/shared",
		"DEPLOYER_CURRENT_PATH": root + "/current",
		"DEPLOYER_REPO_PATH":    root + "/repo",
		"DEPLOYER_DOMAIN":       d.Site.Domain,
		"DEPLOYER_BRANCH":       d.Site.Branch,
		"DEPLOYER_PHP_VERSION":  d.Site.PHPVersion,
		"DEPLOYER_PHP":          phpInterpreter(d.Site.PHPVersion),
		"DEPLOYER_KEEP_RELEASES": fmt.Sprintf("%d", d.effectiveKeepReleases()),
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("env")
	for _, k := range keys {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(quote(vars[k]))
	}
	return b.String()
}

// linkShared is step 6: for every entry under shared/, remove the
// equivalent path in the release if present, then symlink it in.
func (d *Deployment) linkShared(ctx context.Context, releasePath string) error {
	sharedPath := d.siteRoot() + "/shared"
	cmd := fmt.Sprintf(
		`for entry in %[1]s/* %[1]s/.[!.]*; do `+
			`[ -e "$entry" ] || continue; `+
			`name="$(basename "$entry")"; `+
			`target=%[2]s/"$name"; `+
			`rm -rf "$target"; `+
			`ln -s "$entry" "$target"; `+
			`done`,
		quote(sharedPath), quote(releasePath),
	)
	return d.run(ctx, cmd)
}

// activate is step 8: the atomic `ln -sfn` symlink flip, the
// deployment's linearization point.
func (d *Deployment) activate(ctx context.Context, releasePath string) error {
	current := d.siteRoot() + "/current"
	cmd := fmt.Sprintf("ln -sfn %s %s", quote(releasePath), quote(current))
	return d.run(ctx, cmd)
}

// reloadPHP is step 10: signal the site's PHP-FPM pool to reload so
// the opcode cache is cleared. Grounded on
// other_examples/.../magebox/internal/php-pool.go's FPMController.Reload,
// adapted to run over the transport instead of a local os/exec call.
func (d *Deployment) reloadPHP(ctx context.Context) error {
	if d.Site.PHPVersion == "" {
		return nil
	}
	cmd := fmt.Sprintf("systemctl reload php%s-fpm", d.Site.PHPVersion)
	return d.run(ctx, cmd)
}

// cleanupReleases is step 11: prune releases beyond keepReleases,
// oldest first, never removing the one `current` points to.
func (d *Deployment) cleanupReleases(ctx context.Context) error {
	root := d.siteRoot()
	keep := d.effectiveKeepReleases()
	cmd := fmt.Sprintf(
		`current_target="$(readlink -f %[1]s/current 2>/dev/null)"; `+
			`ls -1 %[1]s/releases | sort | while read -r rel; do echo "$rel"; done | `+
			`head -n -%[2]d | while read -r rel; do `+
			`path=%[1]s/releases/"$rel"; `+
			`[ "$path" = "$current_target" ] && continue; `+
			`rm -rf "$path"; `+
			`done`,
		quote(root), keep,
	)
	return d.run(ctx, cmd)
}

// writeRunner is step 12: write the generated runner.sh (see
// runner.go) owned by deployer:deployer, mode 755.
func (d *Deployment) writeRunner(ctx context.Context, releaseName string) error {
	root := d.siteRoot()
	releasePath := root + "/releases/" + releaseName
	script := RunnerScript(RunnerParams{
		CurrentPath: root + "/current",
		ReleasePath: releasePath,
		SharedPath:  root + "/shared",
		Domain:      d.Site.Domain,
		Branch:      d.Site.Branch,
		PHP:         phpInterpreter(d.Site.PHPVersion),
	})

	remotePath := root + "/runner.sh"
	return d.writeRemoteFile(ctx, remotePath, script, "755")
}

// writeRemoteFile heredocs content to remotePath. The delimiter is a
// fresh uuid per call rather than a fixed token: a fixed token could
// appear as a literal line inside a hook-generated runner.sh and
// truncate the write silently, where a random delimiter can't.
func (d *Deployment) writeRemoteFile(ctx context.Context, remotePath, content, mode string) error {
	delim := "DEPLOYER_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	cmd := fmt.Sprintf(
		`cat > %[1]s <<'%[4]s'
%[2]s
%[4]s
chmod %[3]s %[1]s && chown deployer:deployer %[1]s`,
		quote(remotePath), content, mode, delim,
	)
	return d.run(ctx, cmd)
}

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

// Package deploy implements the Deployment Orchestrator: the atomic,
// release-based deployment sequence that builds a release tree
// server-side via `git archive | tar -x`, runs the
// 1-building/2-releasing/3-finishing hooks in order, and flips the
// current symlink over a transport session.
package deploy

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/pkg/errors"

	"github.com/coreosfleet/deployer/internal/progress"
	"github.com/coreosfleet/deployer/internal/supervisor"
	"github.com/coreosfleet/deployer/internal/transport"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

const (
	baseDir    = "/home/deployer/sites"
	deployUser = "deployer"
	phpBinFmt  = "/usr/bin/php%s"
)

// Deployment performs one atomic release for a single site on its
// server. Each step of the deployment sequence is a method; Run
// sequences them and applies the pre/post-activation failure-handling
// split.
type Deployment struct {
	Site   *fleet.Site
	Server *fleet.Server

	transport  *transport.Transport
	supervisor *supervisor.Syncer
	reporter   progress.Reporter

	// defaultKeepReleases is the engine-wide EngineConfig.DefaultKeepReleases,
	// applied as Site.EffectiveKeepReleases' fallback when the site
	// itself declares no KeepReleases.
	defaultKeepReleases int

	// set during Run
	sess        *transport.Session
	releaseName string
	activated   bool
	warnings    []string
}

// New constructs a Deployment. reporter may be nil. defaultKeepReleases
// is the engine's configured retention fallback, applied when site.KeepReleases
// is zero.
func New(t *transport.Transport, sv *supervisor.Syncer, site *fleet.Site, server *fleet.Server, reporter progress.Reporter, defaultKeepReleases int) *Deployment {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	return &Deployment{
		Site:                site,
		Server:              server,
		transport:           t,
		supervisor:          sv,
		reporter:            reporter,
		defaultKeepReleases: defaultKeepReleases,
	}
}

func (d *Deployment) effectiveKeepReleases() int {
	return d.Site.EffectiveKeepReleases(d.defaultKeepReleases)
}

func (d *Deployment) siteRoot() string {
	return baseDir + "/" + d.Site.Domain
}

// Run executes the full 13-step sequence. Errors raised before step 8
// (the symlink flip) trigger cleanup of the partial release and are
// returned as-is. Errors raised after step 8 are downgraded to
// warnings collected on the successful Result.
func (d *Deployment) Run(ctx context.Context) (fleet.Result, error) {
	entry := log.WithFields(log.Fields{"domain": d.Site.Domain, "server": d.Server.Name})

	sess, err := d.transport.Connect(ctx, d.Server)
	if err != nil {
		return fleet.Result{}, err
	}
	d.sess = sess
	defer d.transport.Release(d.Server, sess)

	d.reporter.Step("preparing directories for %s", d.Site.Domain)
	if err := d.prepareDirectories(ctx); err != nil {
		return fleet.Result{}, errors.Wrap(err, "prepare directories")
	}

	if err := d.ensureGitHostKnown(ctx); err != nil {
		return fleet.Result{}, errors.Wrap(err, "ensure git host known")
	}

	d.reporter.Step("updating git cache for %s", d.Site.Domain)
	if err := d.cloneOrUpdate(ctx); err != nil {
		return fleet.Result{}, errors.Wrap(err, "clone or update")
	}

	releaseName, err := d.buildRelease(ctx)
	if err != nil {
		return fleet.Result{}, errors.Wrap(err, "build release")
	}
	d.releaseName = releaseName
	releasePath := d.siteRoot() + "/releases/" + releaseName

	if err := d.runHook(ctx, releasePath, "1-building"); err != nil {
		d.cleanupPartialRelease(entry, releaseName)
		return fleet.Result{}, errors.Wrap(err, "hook 1-building")
	}

	if err := d.linkShared(ctx, releasePath); err != nil {
		d.cleanupPartialRelease(entry, releaseName)
		return fleet.Result{}, errors.Wrap(err, "link shared")
	}

	if err := d.runHook(ctx, releasePath, "2-releasing"); err != nil {
		d.cleanupPartialRelease(entry, releaseName)
		return fleet.Result{}, errors.Wrap(err, "hook 2-releasing")
	}

	d.reporter.Step("activating release %s", releaseName)
	if err := d.activate(ctx, releasePath); err != nil {
		d.cleanupPartialRelease(entry, releaseName)
		return fleet.Result{}, errors.Wrap(err, "activate")
	}
	d.activated = true

	// Everything from here on is a warning, not a fatal error: the
	// deployment has committed.
	if err := d.runHook(ctx, releasePath, "3-finishing"); err != nil {
		d.warn(entry, "hook 3-finishing failed: %v", err)
	}

	if err := d.reloadPHP(ctx); err != nil {
		d.warn(entry, "PHP pool reload failed: %v", err)
	}

	if err := d.cleanupReleases(ctx); err != nil {
		d.warn(entry, "release retention cleanup failed: %v", err)
	}

	if err := d.writeRunner(ctx, releaseName); err != nil {
		d.warn(entry, "runner.sh generation failed: %v", err)
	}

	if d.supervisor != nil {
		if err := d.supervisor.RestartAll(ctx, d.sess, d.Site); err != nil {
			d.warn(entry, "supervisor restart failed: %v", err)
		}
	}

	return fleet.Result{
		Status:       "success",
		Domain:       d.Site.Domain,
		Branch:       d.Site.Branch,
		ReleaseName:  releaseName,
		ReleasePath:  releasePath,
		CurrentPath:  d.siteRoot() + "/current",
		KeepReleases: d.effectiveKeepReleases(),
		Warnings:     d.warnings,
	}, nil
}

func (d *Deployment) warn(entry *log.Entry, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	entry.Warn(msg)
	d.reporter.Warnf("%s", msg)
	d.warnings = append(d.warnings, msg)
}

// cleanupPartialRelease removes a release directory created before
// activation. Best-effort: failures are logged, never escalated,
// since the original error is what the caller needs to see.
func (d *Deployment) cleanupPartialRelease(entry *log.Entry, releaseName string) {
	if releaseName == "" {
		return
	}
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	path := d.siteRoot() + "/releases/" + releaseName
	if _, err := d.sess.ExecuteCommand(cleanupCtx, "rm -rf "+quote(path)); err != nil {
		entry.WithError(err).Warn("failed to clean up partial release")
	}
}

func phpInterpreter(version string) string {
	return fmt.Sprintf(phpBinFmt, version)
}

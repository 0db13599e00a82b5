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

// Package engine wires together the transport, executor, orchestrator,
// and syncers into the top-level entry point the CLI façade calls.
// Fan-out across hosts uses golang.org/x/sync/errgroup: one goroutine
// per host, cooperative cancellation via errgroup.WithContext, results
// collected into a map keyed by server name.
package engine

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/coreosfleet/deployer/internal/config"
	"github.com/coreosfleet/deployer/internal/cron"
	"github.com/coreosfleet/deployer/internal/deploy"
	"github.com/coreosfleet/deployer/internal/executor"
	"github.com/coreosfleet/deployer/internal/progress"
	"github.com/coreosfleet/deployer/internal/serverinfo"
	"github.com/coreosfleet/deployer/internal/supervisor"
	"github.com/coreosfleet/deployer/internal/transport"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

// Engine is the single stateful object the CLI façade constructs and
// drives. No package-level state exists anywhere in the module;
// everything the engine needs is reached through this struct.
type Engine struct {
	cfg        config.EngineConfig
	transport  *transport.Transport
	executor   *executor.Executor
	serverinfo *serverinfo.Aggregator
	cron       *cron.Syncer
	supervisor *supervisor.Syncer
	reporter   progress.Reporter
}

// New constructs an Engine from cfg. reporter may be nil, in which
// case progress narration is discarded.
func New(cfg config.EngineConfig, reporter progress.Reporter) (*Engine, error) {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	t, err := transport.New(cfg.Transport)
	if err != nil {
		return nil, err
	}
	exec := executor.New(t, reporter)
	return &Engine{
		cfg:        cfg,
		transport:  t,
		executor:   exec,
		serverinfo: serverinfo.New(exec),
		cron:       cron.New(),
		supervisor: supervisor.New(),
		reporter:   reporter,
	}, nil
}

// Close releases pooled connections.
func (e *Engine) Close() {
	e.transport.Close()
}

// Gather runs the Server-Info Aggregator against every server, in
// parallel bounded by MaxParallelHosts, and returns an ordered result
// map keyed by server name.
func (e *Engine) Gather(ctx context.Context, servers []*fleet.Server) (map[string]fleet.ServerInfo, map[string]error) {
	infos := make(map[string]fleet.ServerInfo, len(servers))
	errs := make(map[string]error, len(servers))

	type outcome struct {
		name string
		info fleet.ServerInfo
		err  error
	}
	results := make(chan outcome, len(servers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallelHosts)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			info, err := e.serverinfo.Gather(gctx, srv)
			results <- outcome{name: srv.Name, info: info, err: err}
			return nil // per-host errors are collected, not fatal to the group
		})
	}
	_ = g.Wait()
	close(results)

	for r := range results {
		if r.err != nil {
			errs[r.name] = r.err
			continue
		}
		infos[r.name] = r.info
	}
	return infos, errs
}

// Deploy performs one atomic deployment of site on its server.
func (e *Engine) Deploy(ctx context.Context, site *fleet.Site, server *fleet.Server) (fleet.Result, error) {
	d := deploy.New(e.transport, e.supervisor, site, server, e.reporter, e.cfg.DefaultKeepReleases)
	return d.Run(ctx)
}

// SyncCrons reconciles site's declared cron entries on server.
func (e *Engine) SyncCrons(ctx context.Context, site *fleet.Site, server *fleet.Server) error {
	sess, err := e.transport.Connect(ctx, server)
	if err != nil {
		return err
	}
	defer e.transport.Release(server, sess)
	return e.cron.Sync(ctx, sess, site)
}

// SyncSupervisors reconciles site's declared supervisor programs on
// server.
func (e *Engine) SyncSupervisors(ctx context.Context, site *fleet.Site, server *fleet.Server) error {
	sess, err := e.transport.Connect(ctx, server)
	if err != nil {
		return err
	}
	defer e.transport.Release(server, sess)
	return e.supervisor.Sync(ctx, sess, site)
}

// Shell opens an interactive shell on server and blocks until it
// exits, for the rare case an operator needs to investigate a
// playbook or hook failure by hand.
func (e *Engine) Shell(ctx context.Context, server *fleet.Server) error {
	sess, err := e.transport.Connect(ctx, server)
	if err != nil {
		return err
	}
	defer e.transport.Release(server, sess)
	return sess.Shell()
}

// DeployFleet fans a deployment of site out across every server it
// names (normally one, but callers may pass several replicas of the
// same site), collecting results keyed by server name.
func (e *Engine) DeployFleet(ctx context.Context, site *fleet.Site, servers []*fleet.Server) (map[string]fleet.Result, map[string]error) {
	results := make(map[string]fleet.Result, len(servers))
	errs := make(map[string]error, len(servers))

	type outcome struct {
		name   string
		result fleet.Result
		err    error
	}
	out := make(chan outcome, len(servers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxParallelHosts)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			log.WithFields(log.Fields{"domain": site.Domain, "server": srv.Name}).Info("starting deployment")
			result, err := e.Deploy(gctx, site, srv)
			out <- outcome{name: srv.Name, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()
	close(out)

	for o := range out {
		if o.err != nil {
			errs[o.name] = o.err
			continue
		}
		results[o.name] = o.result
	}
	return results, errs
}

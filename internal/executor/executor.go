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

// Package executor drives one playbook invocation end to end: it
// assembles the script, stages it on the remote host, runs it, and
// parses its result.
package executor

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/coreosfleet/deployer/internal/errs"
	"github.com/coreosfleet/deployer/internal/playbook"
	"github.com/coreosfleet/deployer/internal/progress"
	"github.com/coreosfleet/deployer/internal/shellquote"
	"github.com/coreosfleet/deployer/internal/transport"
	"github.com/coreosfleet/deployer/internal/yamlsubset"
	"github.com/coreosfleet/deployer/pkg/fleet"
)

// Mode selects whether a run's output is buffered or streamed live.
type Mode string

const (
	ModeSilent    Mode = "silent"
	ModeStreaming Mode = "streaming"
)

// Invocation is one request to run a named playbook against a server.
type Invocation struct {
	Playbook    string
	Env         map[string]string
	RequiredEnv []string // beyond the three mandatory variables
	Target      *fleet.Server
	Distro      fleet.Distro
	Perms       fleet.Permissions
	Mode        Mode
	Timeout     time.Duration

	// Idempotent marks an invocation whose effect is safe to retry from
	// a fresh connection — info queries and existence checks — so a
	// transient ConnectFailed/SSHTimeout is retried once instead of
	// failing the caller outright.
	Idempotent bool
}

// Result is the outcome of a completed invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Output   yamlsubset.Document
}

// Executor wires the Loader and Transport together.
type Executor struct {
	loader    *playbook.Loader
	transport *transport.Transport
	reporter  progress.Reporter
}

// New builds an Executor. reporter may be nil, in which case progress
// narration is discarded.
func New(t *transport.Transport, reporter progress.Reporter) *Executor {
	if reporter == nil {
		reporter = progress.Noop{}
	}
	return &Executor{loader: playbook.New(), transport: t, reporter: reporter}
}

// Run assembles, stages, and executes the playbook, then parses its
// result.
func (e *Executor) Run(ctx context.Context, inv Invocation) (Result, error) {
	assembled, err := e.loader.Assemble(inv.Playbook)
	if err != nil {
		return Result{}, err
	}

	env, err := e.buildEnv(inv)
	if err != nil {
		return Result{}, err
	}

	workdir, err := randomWorkdir()
	if err != nil {
		return Result{}, errs.New(errs.TransportError, "executor.Run", err)
	}
	outputPath := workdir + "/output.yaml"
	env["DEPLOYER_OUTPUT_FILE"] = outputPath

	timeout := inv.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	connect := e.transport.Connect
	if inv.Idempotent {
		connect = e.transport.ConnectIdempotent
	}
	sess, err := connect(runCtx, inv.Target)
	if err != nil {
		return Result{}, err
	}
	defer e.transport.Release(inv.Target, sess)

	entry := log.WithFields(log.Fields{
		"playbook": inv.Playbook,
		"host":     inv.Target.Host,
		"workdir":  workdir,
	})

	if _, err := sess.ExecuteCommand(runCtx, fmt.Sprintf("mkdir -p %s", shellquote.Quote(workdir))); err != nil {
		return Result{}, err
	}

	localScript, err := writeTempFile(assembled.Script)
	if err != nil {
		return Result{}, errs.New(errs.TransferFailed, "executor.Run", err)
	}
	defer os.Remove(localScript)

	runPath := workdir + "/run.sh"
	if err := sess.UploadFile(runCtx, localScript, runPath, 0o755); err != nil {
		return Result{}, err
	}

	cmd := buildCommand(runPath, env)
	e.reporter.Step("running playbook %q on %s", inv.Playbook, inv.Target.Name)

	var result Result
	if inv.Mode == ModeStreaming {
		err = sess.StreamCommand(runCtx, cmd, func(stream, line string) {
			e.reporter.Stream(inv.Target.Host, line)
			entry.Tracef("%s: %s", stream, line)
		})
	} else {
		var cmdResult transport.CommandResult
		cmdResult, err = sess.ExecuteCommand(runCtx, cmd)
		result.Stdout, result.Stderr = cmdResult.Stdout, cmdResult.Stderr
		result.ExitCode = cmdResult.ExitCode
	}

	defer e.cleanupWorkdir(context.Background(), sess, workdir, entry)

	if err != nil {
		return Result{}, err
	}

	localOutput, derr := downloadToTemp(runCtx, sess, outputPath)
	if derr != nil {
		return Result{}, errs.New(errs.MalformedOutput, "executor.Run",
			fmt.Errorf("output file missing on exit 0: %w", derr))
	}
	defer os.Remove(localOutput)

	raw, rerr := os.ReadFile(localOutput)
	if rerr != nil {
		return Result{}, errs.New(errs.MalformedOutput, "executor.Run", rerr)
	}
	doc, perr := yamlsubset.Parse(raw)
	if perr != nil {
		return Result{}, perr
	}
	result.Output = doc

	return result, nil
}

func (e *Executor) buildEnv(inv Invocation) (map[string]string, error) {
	env := make(map[string]string, len(inv.Env)+3)
	for k, v := range inv.Env {
		env[k] = v
	}
	env["DEPLOYER_DISTRO"] = string(inv.Distro)
	env["DEPLOYER_PERMS"] = string(inv.Perms)

	var missing []string
	for _, required := range inv.RequiredEnv {
		if _, ok := env[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, errs.New(errs.MissingEnv, "executor.buildEnv",
			fmt.Errorf("missing required environment variables: %v", missing))
	}
	return env, nil
}

func (e *Executor) cleanupWorkdir(ctx context.Context, sess *transport.Session, workdir string, entry *log.Entry) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := sess.ExecuteCommand(cleanupCtx, fmt.Sprintf("rm -rf %s", shellquote.Quote(workdir))); err != nil {
		entry.WithError(err).Warn("failed to remove remote working directory")
		e.reporter.Warnf("could not clean up %s: %v", workdir, err)
	}
}

func randomWorkdir() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "/tmp/deployer-" + hex.EncodeToString(buf), nil
}

func buildCommand(runPath string, env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	assignments := make([]string, 0, len(keys))
	for _, k := range keys {
		assignments = append(assignments, k+"="+shellquote.Quote(env[k]))
	}

	cmd := "env"
	for _, a := range assignments {
		cmd += " " + a
	}
	return cmd + " " + shellquote.Quote(runPath)
}

func writeTempFile(data []byte) (string, error) {
	f, err := os.CreateTemp("", "deployer-playbook-*.sh")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func downloadToTemp(ctx context.Context, sess *transport.Session, remotePath string) (string, error) {
	f, err := os.CreateTemp("", "deployer-output-*.yaml")
	if err != nil {
		return "", err
	}
	localPath := f.Name()
	f.Close()

	if err := sess.DownloadFile(ctx, remotePath, localPath); err != nil {
		os.Remove(localPath)
		return "", err
	}
	return localPath, nil
}

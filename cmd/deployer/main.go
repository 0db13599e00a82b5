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

// Command deployer is the thin CLI façade over internal/engine: a
// cobra.Command tree with persistent flags that delegates immediately
// into engine packages and contains no business logic of its own.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coreosfleet/deployer/internal/config"
	"github.com/coreosfleet/deployer/internal/engine"
)

const (
	exitSuccess         = 0
	exitFailure         = 1
	exitValidationError = 2
	exitCancelled       = 130
)

var (
	inventoryPath string
	configPath    string
	logLevel      string

	root = &cobra.Command{
		Use:           "deployer",
		Short:         "Fleet deployment engine for PHP sites over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func main() {
	root.PersistentFlags().StringVar(&inventoryPath, "inventory", "inventory.yaml", "path to the servers/sites inventory file")
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional engine config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	config.BindFlags(root.PersistentFlags())

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
		}
		log.SetLevel(level)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		return nil
	}

	root.AddCommand(newDeployCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newCronSyncCmd())
	root.AddCommand(newSupervisorSyncCmd())
	root.AddCommand(newShellCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(exitCodeFor(ctx, err))
	}
	os.Exit(exitSuccess)
}

// exitCodeFor maps a façade error to the process's exit-code contract.
func exitCodeFor(ctx context.Context, err error) int {
	if ctx.Err() != nil {
		return exitCancelled
	}
	if errors.Is(err, errValidation) {
		log.WithError(err).Error("deployer: validation error")
		return exitValidationError
	}
	log.WithError(err).Error("deployer: command failed")
	return exitFailure
}

// errValidation wraps a façade-side problem (bad flags, malformed
// inventory, unknown domain/server name) detected before any remote
// work starts.
var errValidation = errors.New("validation error")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errValidation)
}

func loadEngine(cmd *cobra.Command) (*engine.Engine, *inventory, error) {
	cfg, err := config.Load(cmd.Flags(), configPath)
	if err != nil {
		return nil, nil, validationErrorf("loading config: %v", err)
	}

	inv, err := loadInventory(inventoryPath)
	if err != nil {
		return nil, nil, validationErrorf("loading inventory: %v", err)
	}

	eng, err := engine.New(cfg, newCLIReporter(cmd))
	if err != nil {
		return nil, nil, err
	}
	return eng, inv, nil
}

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

// Package config binds engine construction defaults (pool size,
// timeouts, retention) from flags/env/config file into a single
// EngineConfig, passed explicitly at construction rather than read from
// global state, via github.com/spf13/viper and github.com/spf13/pflag.
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/coreosfleet/deployer/internal/transport"
)

// EngineConfig is the full set of tunables the engine needs at
// construction time. It is passed by value into engine.New; nothing
// in the engine reads global state afterward.
type EngineConfig struct {
	Transport        transport.Config
	MaxParallelHosts int
	DefaultKeepReleases int
	KnownHostsPath   string
}

// Default returns the engine's built-in defaults.
func Default() EngineConfig {
	return EngineConfig{
		Transport:           transport.DefaultConfig(),
		MaxParallelHosts:    8,
		DefaultKeepReleases: 5,
	}
}

// BindFlags registers the engine's tunables on fs with their defaults,
// the way cmd/ore/ore.go registers cluster flags on its root command's
// PersistentFlags.
func BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("pool-capacity-per-host", d.Transport.PoolCapacityPerHost, "max pooled SSH connections per host")
	fs.Duration("idle-timeout", d.Transport.IdleTimeout, "idle timeout before a pooled connection is closed")
	fs.Duration("connect-timeout", d.Transport.ConnectTimeout, "SSH connect timeout")
	fs.Duration("command-timeout", d.Transport.CommandTimeout, "default timeout for a short remote command")
	fs.Duration("transfer-timeout", d.Transport.TransferTimeout, "file transfer timeout")
	fs.Int("max-parallel-hosts", d.MaxParallelHosts, "maximum hosts to fan out to concurrently")
	fs.Int("keep-releases", d.DefaultKeepReleases, "default number of releases to retain per site")
	fs.String("known-hosts", "", "path to the known_hosts file (defaults to ~/.ssh/known_hosts)")
}

// Load resolves an EngineConfig from fs (already parsed), environment
// variables prefixed DEPLOYER_, and an optional config file, via
// viper — the same flag+env+file layering cmd/ore and cmd/kola use,
// generalized here from flags alone.
func Load(fs *pflag.FlagSet, configFile string) (EngineConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("DEPLOYER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return EngineConfig{}, err
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return EngineConfig{}, err
	}

	cfg := Default()
	cfg.Transport.PoolCapacityPerHost = v.GetInt("pool-capacity-per-host")
	cfg.Transport.IdleTimeout = v.GetDuration("idle-timeout")
	cfg.Transport.ConnectTimeout = v.GetDuration("connect-timeout")
	cfg.Transport.CommandTimeout = v.GetDuration("command-timeout")
	cfg.Transport.TransferTimeout = v.GetDuration("transfer-timeout")
	cfg.Transport.KnownHostsPath = v.GetString("known-hosts")
	cfg.KnownHostsPath = cfg.Transport.KnownHostsPath
	cfg.MaxParallelHosts = v.GetInt("max-parallel-hosts")
	cfg.DefaultKeepReleases = v.GetInt("keep-releases")

	return cfg, nil
}

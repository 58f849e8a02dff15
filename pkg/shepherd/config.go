/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package shepherd

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/carverauto/shepherd/pkg/api"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/monitor"
	"github.com/carverauto/shepherd/pkg/reconcile"
	"github.com/carverauto/shepherd/pkg/reset"
	"github.com/carverauto/shepherd/pkg/scanner"
	"github.com/carverauto/shepherd/pkg/snapshot"
	"github.com/carverauto/shepherd/pkg/store"
)

const (
	defaultDataDir      = "shepherd_data"
	defaultDatabaseFile = "shepherd.db"
	defaultSnapshotFile = "device_state.json"
)

var errNoDataDir = errors.New("cannot determine data directory")

// Config is the full daemon configuration. Every section fills its own
// defaults through ApplyDefaults.
type Config struct {
	Logging      *logger.Config       `json:"logging" yaml:"logging"`
	DataDir      string               `json:"data_dir" yaml:"data_dir"`
	DatabasePath string               `json:"database_path" yaml:"database_path"`
	SnapshotPath string               `json:"snapshot_path" yaml:"snapshot_path"`
	NATS         *snapshot.NATSConfig `json:"nats,omitempty" yaml:"nats,omitempty"`
	Scanner      scanner.Config       `json:"scanner" yaml:"scanner"`
	Store        store.Config         `json:"store" yaml:"store"`
	Monitor      monitor.Config       `json:"monitor" yaml:"monitor"`
	Reconcile    reconcile.Config     `json:"reconcile" yaml:"reconcile"`
	Reset        reset.Config         `json:"reset" yaml:"reset"`
	API          api.Config           `json:"api" yaml:"api"`
}

// Validate fills defaults and rejects an unusable API listen address.
// Relative database and snapshot paths resolve against DataDir, which
// defaults to ~/shepherd_data.
func (c *Config) Validate() error {
	if c.Logging == nil {
		c.Logging = logger.DefaultConfig()
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Join(errNoDataDir, err)
		}

		c.DataDir = filepath.Join(home, defaultDataDir)
	}

	c.DatabasePath = resolvePath(c.DataDir, c.DatabasePath, defaultDatabaseFile)
	c.SnapshotPath = resolvePath(c.DataDir, c.SnapshotPath, defaultSnapshotFile)

	if c.NATS.Enabled() && c.NATS.Subject == "" {
		c.NATS.Subject = snapshot.DefaultSubject
	}

	// Resets open the port with the same line settings as the monitors.
	if c.Reset.BaudRate <= 0 {
		c.Reset.BaudRate = c.Monitor.BaudRate
	}

	c.Store.ApplyDefaults()
	c.Monitor.ApplyDefaults()
	c.Reconcile.ApplyDefaults()
	c.Reset.ApplyDefaults()

	return c.API.Validate()
}

func resolvePath(dir, path, fallback string) string {
	if path == "" {
		path = fallback
	}

	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}

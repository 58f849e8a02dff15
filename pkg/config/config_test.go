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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleSection struct {
	BaudRate int             `json:"baud_rate" yaml:"baud_rate"`
	Timeout  models.Duration `json:"timeout" yaml:"timeout"`
}

type sampleConfig struct {
	Name      string        `json:"name" yaml:"name"`
	Vendors   []string      `json:"vendors" yaml:"vendors"`
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	Monitor   sampleSection `json:"monitor" yaml:"monitor"`
	validated bool
}

func (c *sampleConfig) Validate() error {
	if c.Monitor.BaudRate == 0 {
		c.Monitor.BaudRate = 115200
	}

	c.validated = true

	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateJSON(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeFile(t, "shepherd.json", `{"name":"rack-a","monitor":{"timeout":"500ms"}}`)

	var cfg sampleConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "rack-a", cfg.Name)
	assert.Equal(t, 500*time.Millisecond, cfg.Monitor.Timeout.Std())
	assert.Equal(t, 115200, cfg.Monitor.BaudRate)
	assert.True(t, cfg.validated)
}

func TestLoadAndValidateYAML(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeFile(t, "shepherd.yaml", "name: rack-b\nvendors: [10c4, 303a]\nmonitor:\n  baud_rate: 9600\n  timeout: 1s\n")

	var cfg sampleConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "rack-b", cfg.Name)
	assert.Equal(t, []string{"10c4", "303a"}, cfg.Vendors)
	assert.Equal(t, 9600, cfg.Monitor.BaudRate)
	assert.Equal(t, time.Second, cfg.Monitor.Timeout.Std())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "")
	t.Setenv("SHEPHERD_NAME", "rack-c")
	t.Setenv("SHEPHERD_ENABLED", "true")
	t.Setenv("SHEPHERD_VENDORS", "10c4, 1a86")
	t.Setenv("SHEPHERD_MONITOR_TIMEOUT", "250ms")
	t.Setenv("SHEPHERD_MONITOR_BAUD_RATE", "not-a-number")

	var cfg sampleConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, "rack-c", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []string{"10c4", "1a86"}, cfg.Vendors)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.Timeout.Std())
	assert.Equal(t, 115200, cfg.Monitor.BaudRate, "invalid override is ignored and the default applies")
}

func TestLoadAndValidateErrors(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg sampleConfig

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "x.json", &cfg)
	require.ErrorIs(t, err, errInvalidConfigSource)

	t.Setenv("CONFIG_SOURCE", "file")

	err = NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg)
	require.Error(t, err)

	err = NewEnvConfigLoader(logger.NewTestLogger(), "X_").Load(context.Background(), "", cfg)
	require.ErrorIs(t, err, ErrDstMustBeNonNilPointer)
}

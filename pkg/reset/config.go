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

package reset

import (
	"time"

	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/serialport"
)

const (
	defaultSettle       = 3 * time.Second
	defaultBootDelay    = 1500 * time.Millisecond
	defaultCapture      = 30 * time.Second
	defaultConfigBytes  = 4096
	defaultBusyBudget   = 3 * time.Second
	defaultBusyInterval = 500 * time.Millisecond
	defaultFinalize     = 10 * time.Second
)

type Config struct {
	ToolPath       string          `json:"tool_path" yaml:"tool_path"`
	ToolTimeout    models.Duration `json:"tool_timeout" yaml:"tool_timeout"`
	SettleInterval models.Duration `json:"settle_interval" yaml:"settle_interval"`
	BootDelay      models.Duration `json:"boot_delay" yaml:"boot_delay"`
	CaptureWindow  models.Duration `json:"capture_window" yaml:"capture_window"`
	ConfigMaxBytes int             `json:"config_max_bytes" yaml:"config_max_bytes"`
	BusyBudget     models.Duration `json:"busy_budget" yaml:"busy_budget"`
	BusyInterval   models.Duration `json:"busy_interval" yaml:"busy_interval"`
	BaudRate       int             `json:"baud_rate" yaml:"baud_rate"`
	ReadTimeout    models.Duration `json:"read_timeout" yaml:"read_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ToolPath == "" {
		c.ToolPath = DefaultToolPath
	}

	if c.ToolTimeout <= 0 {
		c.ToolTimeout = models.Duration(DefaultToolTimeout)
	}

	if c.SettleInterval <= 0 {
		c.SettleInterval = models.Duration(defaultSettle)
	}

	if c.BootDelay <= 0 {
		c.BootDelay = models.Duration(defaultBootDelay)
	}

	if c.CaptureWindow <= 0 {
		c.CaptureWindow = models.Duration(defaultCapture)
	}

	if c.ConfigMaxBytes <= 0 {
		c.ConfigMaxBytes = defaultConfigBytes
	}

	if c.BusyBudget <= 0 {
		c.BusyBudget = models.Duration(defaultBusyBudget)
	}

	if c.BusyInterval <= 0 {
		c.BusyInterval = models.Duration(defaultBusyInterval)
	}

	if c.BaudRate <= 0 {
		c.BaudRate = serialport.DefaultBaudRate
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = models.Duration(serialport.DefaultReadTimeout)
	}
}

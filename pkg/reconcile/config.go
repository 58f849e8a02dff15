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

package reconcile

import (
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

const (
	defaultTickInterval    = 5 * time.Second
	defaultStaleThreshold  = 5 * time.Minute
	defaultShutdownTimeout = 5 * time.Second
)

type Config struct {
	TickInterval    models.Duration `json:"tick_interval" yaml:"tick_interval"`
	StaleThreshold  models.Duration `json:"stale_threshold" yaml:"stale_threshold"`
	ShutdownTimeout models.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = models.Duration(defaultTickInterval)
	}

	if c.StaleThreshold <= 0 {
		c.StaleThreshold = models.Duration(defaultStaleThreshold)
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = models.Duration(defaultShutdownTimeout)
	}
}

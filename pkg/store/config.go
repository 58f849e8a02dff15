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

package store

import (
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

const (
	defaultBatchSize     = 200
	defaultFlushInterval = time.Second
	defaultRetryBackoff  = 5 * time.Second
	defaultDrainAttempts = 3
	defaultDrainTimeout  = 5 * time.Second
)

// Config tunes the writer.
type Config struct {
	BatchSize     int             `json:"batch_size" yaml:"batch_size"`
	FlushInterval models.Duration `json:"flush_interval" yaml:"flush_interval"`
	RetryBackoff  models.Duration `json:"retry_backoff" yaml:"retry_backoff"`
	DrainAttempts int             `json:"drain_attempts" yaml:"drain_attempts"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = models.Duration(defaultFlushInterval)
	}

	if c.RetryBackoff <= 0 {
		c.RetryBackoff = models.Duration(defaultRetryBackoff)
	}

	if c.DrainAttempts <= 0 {
		c.DrainAttempts = defaultDrainAttempts
	}
}

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

package monitor

import (
	"time"

	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/serialport"
)

const (
	defaultReconnectInterval = 5 * time.Second
	defaultFlushInterval     = 2 * time.Second
	defaultMinRateInterval   = 2 * time.Second
	defaultRateScale         = 100.0
)

// Config controls serial access and telemetry derivation for every monitor.
type Config struct {
	BaudRate          int             `json:"baud_rate" yaml:"baud_rate"`
	ReadTimeout       models.Duration `json:"read_timeout" yaml:"read_timeout"`
	ReconnectInterval models.Duration `json:"reconnect_interval" yaml:"reconnect_interval"`
	FlushInterval     models.Duration `json:"flush_interval" yaml:"flush_interval"`
	MinRateInterval   models.Duration `json:"min_rate_interval" yaml:"min_rate_interval"`
	RateScale         float64         `json:"rate_scale" yaml:"rate_scale"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = serialport.DefaultBaudRate
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = models.Duration(serialport.DefaultReadTimeout)
	}

	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = models.Duration(defaultReconnectInterval)
	}

	if c.FlushInterval <= 0 {
		c.FlushInterval = models.Duration(defaultFlushInterval)
	}

	if c.MinRateInterval <= 0 {
		c.MinRateInterval = models.Duration(defaultMinRateInterval)
	}

	if c.RateScale <= 0 {
		c.RateScale = defaultRateScale
	}
}

func (c *Config) serial() serialport.Config {
	return serialport.Config{
		BaudRate:    c.BaudRate,
		ReadTimeout: c.ReadTimeout.Std(),
	}
}

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

package api

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

const (
	DefaultListenAddr     = "127.0.0.1:8420"
	defaultRequestTimeout = 90 * time.Second
)

var errInvalidListenAddr = errors.New("invalid api listen address")

// Config controls the admin HTTP surface.
type Config struct {
	ListenAddr     string          `json:"listen_addr" yaml:"listen_addr"`
	APIKey         string          `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	AllowedOrigins []string        `json:"allowed_origins,omitempty" yaml:"allowed_origins,omitempty"`
	RequestTimeout models.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}

	// A reset can hold a request for boot delay plus the capture window.
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = models.Duration(defaultRequestTimeout)
	}
}

// Validate applies defaults and checks the listen address.
func (c *Config) Validate() error {
	c.ApplyDefaults()

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("%w %q: %w", errInvalidListenAddr, c.ListenAddr, err)
	}

	return nil
}

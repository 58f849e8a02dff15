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

// Package serialport opens miner serial ports and reads newline-delimited
// output with a bounded read timeout.
package serialport

//go:generate mockgen -destination=mock_serialport.go -package=serialport github.com/carverauto/shepherd/pkg/serialport Opener,Port

import (
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 500 * time.Millisecond
)

var errInvalidBaudRate = errors.New("baud rate must be positive")

// Port is the subset of serial.Port used by the monitor and reset workflow.
type Port interface {
	Read(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	Close() error
}

// Opener opens a device node.
type Opener interface {
	Open(path string, cfg Config) (Port, error)
}

type Config struct {
	BaudRate    int
	ReadTimeout time.Duration
}

func (c *Config) normalize() error {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}

	if c.BaudRate < 0 {
		return errInvalidBaudRate
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}

	return nil
}

// SystemOpener opens real ports through go.bug.st/serial.
type SystemOpener struct{}

func (SystemOpener) Open(path string, cfg Config) (Port, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	p, err := serial.Open(path, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()

		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}

	return p, nil
}

// IsBusy reports whether an open error came from another process holding the port.
func IsBusy(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortBusy
	}

	return false
}

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

// Package scanner enumerates USB serial devices attached to the host.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
	"go.bug.st/serial/enumerator"
)

// DefaultVendorIDs are the USB vendors whose serial-less devices still get a
// placeholder identity (CP210x, Espressif native USB, CH340).
var DefaultVendorIDs = []string{"10c4", "303a", "1a86"}

// Enumerator lists serial ports known to the OS.
type Enumerator interface {
	Ports() ([]*enumerator.PortDetails, error)
}

// PortResolver maps a device node (e.g. /dev/ttyUSB0) to its physical USB
// port path (e.g. 1-1.2).
type PortResolver interface {
	PortPath(nodePath string) (string, bool)
}

// Scanner produces full snapshots of attached devices. It has no side effects.
type Scanner struct {
	enum     Enumerator
	resolver PortResolver
	vendors  map[string]struct{}
	logger   logger.Logger
}

// Config controls which devices are reported.
type Config struct {
	VendorIDs []string `json:"vendor_ids" yaml:"vendor_ids"`
	SysfsRoot string   `json:"sysfs_root" yaml:"sysfs_root"`
	// DisableHints turns off the Linux uevent listener; the loop then
	// relies on its tick alone.
	DisableHints bool `json:"disable_hints" yaml:"disable_hints"`
}

func New(cfg *Config, enum Enumerator, resolver PortResolver, log logger.Logger) *Scanner {
	vendorIDs := DefaultVendorIDs
	if cfg != nil && len(cfg.VendorIDs) > 0 {
		vendorIDs = cfg.VendorIDs
	}

	vendors := make(map[string]struct{}, len(vendorIDs))
	for _, v := range vendorIDs {
		vendors[strings.ToLower(v)] = struct{}{}
	}

	return &Scanner{
		enum:     enum,
		resolver: resolver,
		vendors:  vendors,
		logger:   log,
	}
}

// NewSystem builds a Scanner over the OS enumerator and sysfs.
func NewSystem(cfg *Config, log logger.Logger) *Scanner {
	root := DefaultSysfsRoot
	if cfg != nil && cfg.SysfsRoot != "" {
		root = cfg.SysfsRoot
	}

	return New(cfg, systemEnumerator{}, NewSysfsResolver(root), log)
}

type systemEnumerator struct{}

func (systemEnumerator) Ports() ([]*enumerator.PortDetails, error) {
	return enumerator.GetDetailedPortsList()
}

// Scan enumerates attached devices keyed by (port, serial), sorted by key.
// Devices without a resolvable port path are skipped, as are serial-less
// devices from vendors outside the configured set.
func (s *Scanner) Scan(ctx context.Context) ([]models.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := s.enum.Ports()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	seen := make(map[models.DeviceKey]struct{}, len(ports))
	devices := make([]models.Device, 0, len(ports))

	for _, p := range ports {
		dev, ok := s.toDevice(p)
		if !ok {
			continue
		}

		if _, dup := seen[dev.Key()]; dup {
			continue
		}

		seen[dev.Key()] = struct{}{}
		devices = append(devices, dev)
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].PortPath != devices[j].PortPath {
			return devices[i].PortPath < devices[j].PortPath
		}

		return devices[i].Serial < devices[j].Serial
	})

	return devices, nil
}

func (s *Scanner) toDevice(p *enumerator.PortDetails) (models.Device, bool) {
	if p == nil || !p.IsUSB {
		return models.Device{}, false
	}

	vid := strings.ToLower(p.VID)
	serial := strings.TrimSpace(p.SerialNumber)

	if serial == "" {
		if _, ok := s.vendors[vid]; !ok {
			return models.Device{}, false
		}

		serial = models.PlaceholderSerial(vid)
	}

	portPath, ok := s.resolver.PortPath(p.Name)
	if !ok {
		s.logger.Debug().Str("device", p.Name).Msg("No physical port path, skipping device")

		return models.Device{}, false
	}

	return models.Device{
		PortPath:  portPath,
		Serial:    serial,
		VendorID:  vid,
		ProductID: strings.ToLower(p.PID),
		NodePath:  p.Name,
	}, true
}

// Find returns the attached device with the given key.
func (s *Scanner) Find(ctx context.Context, key models.DeviceKey) (models.Device, error) {
	devices, err := s.Scan(ctx)
	if err != nil {
		return models.Device{}, err
	}

	for _, d := range devices {
		if d.Key() == key {
			return d, nil
		}
	}

	return models.Device{}, fmt.Errorf("device %s: %w", key, models.ErrNotFound)
}

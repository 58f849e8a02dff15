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

package models

import "time"

// KnownMiner is an operator-named device with a durable identity.
type KnownMiner struct {
	ID              int64       `json:"id"`
	MinerID         string      `json:"miner_id"`
	PortPath        string      `json:"port_path"`
	USBSerial       string      `json:"usb_serial"`
	DevPath         string      `json:"dev_path,omitempty"`
	VendorID        string      `json:"vendor_id,omitempty"`
	ProductID       string      `json:"product_id,omitempty"`
	MACAddress      string      `json:"mac_address,omitempty"`
	Chipset         string      `json:"chipset,omitempty"`
	PoolURL         string      `json:"pool_url,omitempty"`
	WalletAddress   string      `json:"wallet_address,omitempty"`
	FirmwareVersion string      `json:"firmware_version,omitempty"`
	LocationNotes   string      `json:"location_notes,omitempty"`
	Status          MinerStatus `json:"status"`
	State           string      `json:"state"`
	LastSeen        *time.Time  `json:"last_seen,omitempty"`
}

func (m *KnownMiner) Key() DeviceKey {
	return DeviceKey{PortPath: m.PortPath, Serial: m.USBSerial}
}

// StrayDevice is an observed device that has not been onboarded yet. It may
// carry data captured by the reset workflow.
type StrayDevice struct {
	ID              int64       `json:"id"`
	PortPath        string      `json:"port_path"`
	Serial          string      `json:"serial_number"`
	DevPath         string      `json:"dev_path,omitempty"`
	VendorID        string      `json:"vendor_id,omitempty"`
	ProductID       string      `json:"product_id,omitempty"`
	MACAddress      string      `json:"mac_address,omitempty"`
	Chipset         string      `json:"chipset,omitempty"`
	PoolURL         string      `json:"pool_url,omitempty"`
	WalletAddress   string      `json:"wallet_address,omitempty"`
	FirmwareVersion string      `json:"firmware_version,omitempty"`
	Status          MinerStatus `json:"status"`
	State           string      `json:"state"`
	DiscoveredAt    time.Time   `json:"discovered_at"`
}

func (s *StrayDevice) Key() DeviceKey {
	return DeviceKey{PortPath: s.PortPath, Serial: s.Serial}
}

// HasCapturedData reports whether any side-channel capture landed on the row.
func (s *StrayDevice) HasCapturedData() bool {
	return s.MACAddress != "" || s.Chipset != "" || s.PoolURL != "" ||
		s.WalletAddress != "" || s.FirmwareVersion != ""
}

// OnboardRequest promotes a stray to a KnownMiner.
type OnboardRequest struct {
	PortPath      string `json:"port_path"`
	Serial        string `json:"serial_number"`
	MinerID       string `json:"miner_id"`
	LocationNotes string `json:"location_notes,omitempty"`
}

// MinerEdit changes the operator-owned fields of a KnownMiner. Nil fields
// keep their stored value.
type MinerEdit struct {
	ID              int64   `json:"-"`
	MinerID         *string `json:"miner_id,omitempty"`
	Chipset         *string `json:"chipset,omitempty"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`
	LocationNotes   *string `json:"location_notes,omitempty"`
}

// Empty reports whether the edit changes nothing.
func (e *MinerEdit) Empty() bool {
	return e.MinerID == nil && e.Chipset == nil && e.FirmwareVersion == nil && e.LocationNotes == nil
}

// BootConfig is the configuration a miner prints on boot.
type BootConfig struct {
	PoolURL         string `json:"pool_url"`
	WalletAddress   string `json:"wallet_address"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// Complete reports whether the capture carries the minimum accepted fields.
func (c *BootConfig) Complete() bool {
	return c != nil && c.PoolURL != "" && c.WalletAddress != ""
}

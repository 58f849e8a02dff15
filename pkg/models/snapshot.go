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

// ViewModel types.
const (
	ViewTypeMiner = "miner"
	ViewTypeStray = "stray"
)

// Display statuses.
const (
	DisplayOnline           = "Online"
	DisplayStale            = "Stale"
	DisplayInactive         = "Inactive"
	DisplayOffline          = "Offline"
	DisplayDBOffline        = "Connected (DB Offline)"
	DisplayUnconfigured     = "Unconfigured"
	DisplayCaptured         = "Unconfigured (Captured)"
	DisplayCaptureFailed    = "Capture Failed"
	DisplayUnknownStrayStat = "Unknown"
)

// ViewModel is one entry of the published DeviceStateSnapshot.
type ViewModel struct {
	Type          string            `json:"type"`
	ID            *int64            `json:"id"`
	MinerID       *string           `json:"miner_id"`
	PortPath      string            `json:"port_path"`
	Serial        string            `json:"serial_number"`
	MACAddress    string            `json:"mac_address,omitempty"`
	DevPath       string            `json:"dev_path,omitempty"`
	VendorID      string            `json:"vendor_id,omitempty"`
	ProductID     string            `json:"product_id,omitempty"`
	Status        string            `json:"status"`
	StateMsg      string            `json:"state_msg"`
	DisplayStatus string            `json:"display_status"`
	PoolURL       string            `json:"pool_url,omitempty"`
	WalletAddress string            `json:"wallet_address,omitempty"`
	Version       string            `json:"version,omitempty"`
	Chipset       string            `json:"chipset,omitempty"`
	LocationNotes string            `json:"location_notes,omitempty"`
	LastSeen      *time.Time        `json:"last_seen,omitempty"`
	Summary       map[string]string `json:"summary,omitempty"`
}

// Snapshot is the document written each tick. Error is set only when the
// tick ran degraded, in which case the document is wrapped as
// {"error": ..., "devices": [...]}.
type Snapshot struct {
	Error       string      `json:"error,omitempty"`
	Devices     []ViewModel `json:"devices"`
	GeneratedAt time.Time   `json:"-"`
}

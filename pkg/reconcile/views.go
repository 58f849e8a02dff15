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
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

const (
	strayStatusUnknown = "Unknown"
	strayStateNotInDB  = "Detected - Not in DB"
)

// connectedMinerView renders a known miner whose device is attached.
func connectedMinerView(m *models.KnownMiner, dev models.Device, now time.Time, stale time.Duration) models.ViewModel {
	v := minerBase(m)
	v.PortPath = dev.PortPath
	v.Serial = dev.Serial
	v.DevPath = dev.NodePath
	v.VendorID = dev.VendorID
	v.ProductID = dev.ProductID
	v.Status = string(m.Status)

	state := m.State

	switch m.Status {
	case models.StatusActive:
		if m.LastSeen != nil && !m.LastSeen.Before(now.Add(-stale)) {
			v.DisplayStatus = models.DisplayOnline
			v.StateMsg = orDefault(state, "Actively Mining")
		} else {
			v.DisplayStatus = models.DisplayStale
			v.StateMsg = "Never seen (Stale)"

			if m.LastSeen != nil {
				v.StateMsg = "Last seen " + formatSeen(m.LastSeen)
			}
		}
	case models.StatusInactive:
		v.DisplayStatus = models.DisplayInactive
		v.StateMsg = orDefault(state, "Set to Inactive")
	case models.StatusOffline:
		v.DisplayStatus = models.DisplayDBOffline
		v.StateMsg = orDefault(state, "Device connected, DB Offline")
	default:
		v.DisplayStatus = string(m.Status)
		v.StateMsg = orDefault(state, fmt.Sprintf("DB Status: %s", m.Status))
	}

	return v
}

// disconnectedMinerView renders a known miner with no attached device.
func disconnectedMinerView(m *models.KnownMiner) models.ViewModel {
	v := minerBase(m)
	v.PortPath = m.PortPath
	v.Serial = m.USBSerial
	v.Status = string(models.StatusOffline)
	v.DisplayStatus = models.DisplayOffline
	v.StateMsg = fmt.Sprintf("Disconnected (Last seen: %s)", formatSeenOr(m.LastSeen, "Never"))

	return v
}

func minerBase(m *models.KnownMiner) models.ViewModel {
	id := m.ID
	minerID := m.MinerID

	return models.ViewModel{
		Type:          models.ViewTypeMiner,
		ID:            &id,
		MinerID:       &minerID,
		MACAddress:    m.MACAddress,
		PoolURL:       m.PoolURL,
		WalletAddress: m.WalletAddress,
		Version:       m.FirmwareVersion,
		Chipset:       m.Chipset,
		LocationNotes: m.LocationNotes,
		LastSeen:      m.LastSeen,
	}
}

// strayView renders an unmatched device, enriched with its stray row if any.
func strayView(dev models.Device, stray *models.StrayDevice) models.ViewModel {
	v := models.ViewModel{
		Type:          models.ViewTypeStray,
		PortPath:      dev.PortPath,
		Serial:        dev.Serial,
		DevPath:       dev.NodePath,
		VendorID:      dev.VendorID,
		ProductID:     dev.ProductID,
		Status:        strayStatusUnknown,
		StateMsg:      strayStateNotInDB,
		DisplayStatus: models.DisplayUnconfigured,
	}

	if stray == nil {
		return v
	}

	v.MACAddress = stray.MACAddress
	v.Chipset = stray.Chipset
	v.PoolURL = stray.PoolURL
	v.WalletAddress = stray.WalletAddress
	v.Version = stray.FirmwareVersion
	v.Status = orDefault(string(stray.Status), strayStatusUnknown)
	v.StateMsg = orDefault(stray.State, "Detected - In Stray Table")
	v.DisplayStatus = strayDisplay(v.StateMsg)

	return v
}

func strayDisplay(state string) string {
	s := strings.ToLower(state)

	switch {
	case strings.Contains(s, "captured"):
		return models.DisplayCaptured
	case strings.Contains(s, "error"), strings.Contains(s, "failed"):
		return models.DisplayCaptureFailed
	default:
		return models.DisplayUnconfigured
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}

	return s
}

func formatSeen(t *time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatSeenOr(t *time.Time, def string) string {
	if t == nil {
		return def
	}

	return formatSeen(t)
}

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

// Package identity maps observed devices to known miners or strays.
package identity

import (
	"strings"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
)

// MatchKind records how a device was resolved.
type MatchKind int

const (
	Unmatched MatchKind = iota
	MatchedBySerial
	MatchedByMAC
)

func (k MatchKind) String() string {
	switch k {
	case MatchedBySerial:
		return "serial"
	case MatchedByMAC:
		return "mac"
	default:
		return "unmatched"
	}
}

// Tables are the read-only lookups a tick resolves against.
type Tables struct {
	ByKey  map[models.DeviceKey]*models.KnownMiner
	ByMAC  map[string]*models.KnownMiner
	Strays map[models.DeviceKey]*models.StrayDevice
	Miners []*models.KnownMiner
}

// NewTables indexes the given rows. Miners keep their input order.
func NewTables(miners []models.KnownMiner, strays []models.StrayDevice) *Tables {
	t := &Tables{
		ByKey:  make(map[models.DeviceKey]*models.KnownMiner, len(miners)),
		ByMAC:  make(map[string]*models.KnownMiner, len(miners)),
		Strays: make(map[models.DeviceKey]*models.StrayDevice, len(strays)),
		Miners: make([]*models.KnownMiner, 0, len(miners)),
	}

	for i := range miners {
		m := &miners[i]
		t.Miners = append(t.Miners, m)
		t.ByKey[m.Key()] = m

		if m.MACAddress != "" {
			t.ByMAC[NormalizeMAC(m.MACAddress)] = m
		}
	}

	for i := range strays {
		s := &strays[i]
		t.Strays[s.Key()] = s
	}

	return t
}

// NormalizeMAC lower-cases a MAC for comparison.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}

// Resolution is the outcome for one device. Stray is set whenever a stray row
// exists for the device key, including for MAC matches.
type Resolution struct {
	Kind  MatchKind
	Miner *models.KnownMiner
	Stray *models.StrayDevice
}

type Resolver struct {
	logger logger.Logger
}

func NewResolver(log logger.Logger) *Resolver {
	return &Resolver{logger: log}
}

// Resolve matches dev by (port, serial) first, then by a MAC captured on its
// stray row. A MAC candidate recorded on a different port is rejected.
func (r *Resolver) Resolve(dev models.Device, t *Tables) Resolution {
	key := dev.Key()
	stray := t.Strays[key]

	if m, ok := t.ByKey[key]; ok {
		return Resolution{Kind: MatchedBySerial, Miner: m, Stray: stray}
	}

	if stray == nil || stray.MACAddress == "" {
		return Resolution{Kind: Unmatched, Stray: stray}
	}

	candidate, ok := t.ByMAC[NormalizeMAC(stray.MACAddress)]
	if !ok {
		return Resolution{Kind: Unmatched, Stray: stray}
	}

	if candidate.PortPath != dev.PortPath {
		r.logger.Warn().
			Str("mac", stray.MACAddress).
			Str("miner_id", candidate.MinerID).
			Str("port", dev.PortPath).
			Str("miner_port", candidate.PortPath).
			Msg("MAC matches a known miner on another port, ignoring MAC match")

		return Resolution{Kind: Unmatched, Stray: stray}
	}

	r.logger.Info().
		Str("mac", stray.MACAddress).
		Str("miner_id", candidate.MinerID).
		Str("port", dev.PortPath).
		Str("serial", dev.Serial).
		Msg("Matched device to known miner by captured MAC")

	return Resolution{Kind: MatchedByMAC, Miner: candidate, Stray: stray}
}

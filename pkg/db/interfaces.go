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

// Package db is the SQLite-backed miner registry.
package db

import (
	"context"

	"github.com/carverauto/shepherd/pkg/models"
)

//go:generate mockgen -destination=mock_db.go -package=db github.com/carverauto/shepherd/pkg/db Service

// Service represents all registry operations. Writes are expected to come
// from a single caller (the store writer); reads may run concurrently.
type Service interface {
	Close() error

	// Reads.

	ReadKnownMiners(ctx context.Context) ([]models.KnownMiner, error)
	ReadStrayDevices(ctx context.Context) ([]models.StrayDevice, error)
	ReadSummaries(ctx context.Context) (map[int64]models.SummaryMetrics, error)
	GetMiner(ctx context.Context, id int64) (*models.KnownMiner, error)
	GetStray(ctx context.Context, key models.DeviceKey) (*models.StrayDevice, error)

	// Writes.

	ApplyBatch(ctx context.Context, batch *Batch) error
	OnboardStray(ctx context.Context, req *models.OnboardRequest) (*models.KnownMiner, error)
}

// Guard restricts when a status update applies.
type Guard int

const (
	// GuardNone always applies.
	GuardNone Guard = iota
	// GuardManaged applies only while the miner is Active or Offline.
	GuardManaged
	// GuardResetting applies only while the miner is Resetting.
	GuardResetting
)

// StatusUpdate changes a miner's status and state message.
type StatusUpdate struct {
	MinerID int64
	Status  models.MinerStatus
	State   string
	Guard   Guard
	// Touch also bumps last_seen.
	Touch bool
}

// MinerCapture records reset workflow results on a known miner. Empty fields
// leave stored values untouched; Config is applied only when non-nil.
type MinerCapture struct {
	MinerID int64
	MAC     string
	Chipset string
	Config  *models.BootConfig
}

// StrayCapture records reset workflow results on a stray, creating the row
// when it does not exist yet.
type StrayCapture struct {
	Device  models.Device
	MAC     string
	Chipset string
	Config  *models.BootConfig
	Status  models.MinerStatus
	State   string
}

// StrayState updates only the state message of a stray.
type StrayState struct {
	Key   models.DeviceKey
	State string
}

// Batch is a set of writes committed in one transaction.
type Batch struct {
	Strays        []models.StrayDevice
	Miners        []models.KnownMiner
	MinerEdits    []models.MinerEdit
	MinerDeletes  []int64
	Statuses      []StatusUpdate
	MinerCaptures []MinerCapture
	StrayCaptures []StrayCapture
	StrayStates   []StrayState
	StrayDeletes  []models.DeviceKey
	Telemetry     []models.TelemetrySample
	Summaries     []models.SummaryMetrics
}

// Len is the number of intents in the batch.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}

	return len(b.Strays) + len(b.Miners) + len(b.MinerEdits) + len(b.MinerDeletes) +
		len(b.Statuses) + len(b.MinerCaptures) +
		len(b.StrayCaptures) + len(b.StrayStates) + len(b.StrayDeletes) +
		len(b.Telemetry) + len(b.Summaries)
}

// Reset empties the batch while keeping its capacity.
func (b *Batch) Reset() {
	b.Strays = b.Strays[:0]
	b.Miners = b.Miners[:0]
	b.MinerEdits = b.MinerEdits[:0]
	b.MinerDeletes = b.MinerDeletes[:0]
	b.Statuses = b.Statuses[:0]
	b.MinerCaptures = b.MinerCaptures[:0]
	b.StrayCaptures = b.StrayCaptures[:0]
	b.StrayStates = b.StrayStates[:0]
	b.StrayDeletes = b.StrayDeletes[:0]
	b.Telemetry = b.Telemetry[:0]
	b.Summaries = b.Summaries[:0]
}

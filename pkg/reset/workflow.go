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

// Package reset implements the on-demand hard-reset and re-identification
// workflow: quiesce, reset and read MAC, capture boot config, persist, restore.
package reset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/carverauto/shepherd/pkg/db"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/metrics"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/serialport"
)

var (
	ErrInvalidRequest = errors.New("port_path and serial_number are required")
	errResetPanic     = errors.New("reset workflow panicked")
)

// Store is the persistence surface the workflow needs. *store.Store
// implements it.
type Store interface {
	GetMiner(ctx context.Context, id int64) (*models.KnownMiner, error)
	SetStatusSync(ctx context.Context, u db.StatusUpdate) error
	SetStrayState(ctx context.Context, key models.DeviceKey, state string) error
	RecordMinerCapture(ctx context.Context, c db.MinerCapture) error
	RecordStrayCapture(ctx context.Context, c db.StrayCapture) error
	FinalizeMinerReset(ctx context.Context, minerID int64, status models.MinerStatus, state string) error
}

// DeviceFinder resolves a device key to the currently attached node.
type DeviceFinder interface {
	Find(ctx context.Context, key models.DeviceKey) (models.Device, error)
}

// Quiescer stops the monitor that owns a miner's port.
type Quiescer interface {
	Release(ctx context.Context, minerID int64) error
}

// Request identifies the device to reset. MinerDBID is set for known miners.
type Request struct {
	PortPath  string `json:"port_path"`
	Serial    string `json:"serial_number"`
	MinerDBID *int64 `json:"miner_db_id,omitempty"`
}

// Result is returned to the caller of a reset.
type Result struct {
	ResetID     string             `json:"reset_id"`
	Success     bool               `json:"success"`
	Message     string             `json:"message"`
	MACAddress  string             `json:"mac_address,omitempty"`
	Chipset     string             `json:"chipset,omitempty"`
	ConfigFound bool               `json:"config_found"`
	Config      *models.BootConfig `json:"config,omitempty"`
}

type Deps struct {
	Store    Store
	Devices  DeviceFinder
	Quiescer Quiescer
	Tool     ToolRunner
	Probe    BusyProbe
	Opener   serialport.Opener
	Metrics  *metrics.Metrics
}

type Workflow struct {
	cfg    Config
	deps   Deps
	sem    *semaphore.Weighted
	logger logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, deps Deps, log logger.Logger) *Workflow {
	cfg.ApplyDefaults()

	if deps.Tool == nil {
		deps.Tool = &ESPTool{Path: cfg.ToolPath, Timeout: cfg.ToolTimeout.Std()}
	}

	if deps.Probe == nil {
		deps.Probe = &ProcessProbe{Self: int32(os.Getpid())} //nolint:gosec // pids fit in int32
	}

	if deps.Opener == nil {
		deps.Opener = serialport.SystemOpener{}
	}

	return &Workflow{
		cfg:    cfg,
		deps:   deps,
		sem:    semaphore.NewWeighted(1),
		logger: log,
		sleep:  sleepCtx,
	}
}

// target is the record a reset writes to.
type target struct {
	key   models.DeviceKey
	dev   models.Device
	miner *models.KnownMiner
	prior models.MinerStatus
}

// outcome is what finalization applies.
type outcome struct {
	status models.MinerStatus
	state  string
	label  string
}

// Reset runs one workflow. Invocations are serialized. Once the device has
// been resolved, the final status is applied exactly once on every return path.
func (w *Workflow) Reset(ctx context.Context, req Request) (res *Result, err error) {
	if req.PortPath == "" || req.Serial == "" {
		return nil, ErrInvalidRequest
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer w.sem.Release(1)

	resetID := uuid.NewString()
	log := logger.New(w.logger.WithFields(map[string]interface{}{
		"reset_id": resetID,
		"port":     req.PortPath,
		"serial":   req.Serial,
	}))

	t, err := w.resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	res = &Result{ResetID: resetID}
	fin := outcome{status: t.prior, state: models.StateActionError, label: metrics.ResetError}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Reset workflow panicked")

			fin = outcome{status: t.prior, state: models.StateActionError, label: metrics.ResetError}
			res.Success = false
			res.Message = "Unexpected error during reset."
			err = errResetPanic
		}

		w.finalize(ctx, t, fin)
		w.deps.Metrics.ResetFinished(fin.label)
	}()

	// The Resetting write may commit even when it reports an error, so the
	// finalizer above is already armed.
	if err := w.markResetting(ctx, t); err != nil {
		res.Message = fmt.Sprintf("Could not prepare reset: %v", err)

		return res, fmt.Errorf("prepare reset: %w", err)
	}

	if err := w.settle(ctx, t); err != nil {
		res.Message = err.Error()

		return res, err
	}

	log.Info().Str("device", t.dev.NodePath).Msg("Starting reset")

	if err := w.waitForPort(ctx, t.dev.NodePath); err != nil {
		fin = failureOutcome(t, err)
		res.Message = err.Error()

		return res, err
	}

	id, err := w.deps.Tool.HardReset(ctx, t.dev.NodePath)
	if err != nil {
		log.Warn().Err(err).Msg("Hard reset failed")

		fin = failureOutcome(t, err)
		res.Message = fmt.Sprintf("Reset of %s failed: %v", t.dev.NodePath, err)

		return res, err
	}

	res.MACAddress = id.MAC
	res.Chipset = id.Chipset

	if err := w.sleep(ctx, w.cfg.BootDelay.Std()); err != nil {
		res.Message = err.Error()

		return res, err
	}

	cfg := w.capture(ctx, log, t.dev.NodePath)
	res.Config = cfg
	res.ConfigFound = cfg != nil

	if err := w.persist(ctx, t, id, cfg); err != nil {
		log.Error().Err(err).Msg("Persisting reset results failed")

		res.Message = fmt.Sprintf("Reset %s but could not store results: %v", t.dev.NodePath, err)

		return res, err
	}

	fin = successOutcome(t, cfg)
	res.Success = res.ConfigFound || id.MAC != "" || id.Chipset != ""
	res.Message = resultMessage(t.dev.NodePath, res)

	log.Info().
		Str("mac", id.MAC).
		Str("chipset", id.Chipset).
		Bool("config_found", res.ConfigFound).
		Msg("Reset finished")

	return res, nil
}

func (w *Workflow) resolve(ctx context.Context, req Request) (*target, error) {
	key := models.DeviceKey{PortPath: req.PortPath, Serial: req.Serial}

	dev, err := w.deps.Devices.Find(ctx, key)
	if err != nil {
		return nil, err
	}

	t := &target{key: key, dev: dev, prior: models.StatusInactive}

	if req.MinerDBID == nil {
		return t, nil
	}

	m, err := w.deps.Store.GetMiner(ctx, *req.MinerDBID)
	if err != nil {
		return nil, err
	}

	t.miner = m
	t.prior = m.Status

	// A miner left Resetting by a crash is restored as Offline so the
	// loop manages it again.
	if t.prior == models.StatusResetting {
		t.prior = models.StatusOffline
	}

	return t, nil
}

func (w *Workflow) markResetting(ctx context.Context, t *target) error {
	if t.miner == nil {
		return w.deps.Store.SetStrayState(ctx, t.key, models.StateAwaitingReset)
	}

	return w.deps.Store.SetStatusSync(ctx, db.StatusUpdate{
		MinerID: t.miner.ID,
		Status:  models.StatusResetting,
		State:   models.StateAwaitingReset,
	})
}

// settle waits until the miner's monitor has released the port. Strays have
// no monitor.
func (w *Workflow) settle(ctx context.Context, t *target) error {
	if t.miner == nil {
		return nil
	}

	settle := w.cfg.SettleInterval.Std()

	if w.deps.Quiescer != nil {
		releaseCtx, cancel := context.WithTimeout(ctx, settle)
		err := w.deps.Quiescer.Release(releaseCtx, t.miner.ID)
		cancel()

		if err == nil {
			return nil
		}

		w.logger.Warn().Err(err).Int64("miner_id", t.miner.ID).Msg("Monitor release not confirmed, waiting settle interval")
	}

	return w.sleep(ctx, settle)
}

// waitForPort fails with ErrPortBusy when another process keeps the node open
// past the probe budget.
func (w *Workflow) waitForPort(ctx context.Context, devPath string) error {
	deadline := time.Now().Add(w.cfg.BusyBudget.Std())

	for {
		holders, err := w.deps.Probe.Holders(ctx, devPath)
		if err != nil {
			w.logger.Debug().Err(err).Msg("Busy probe unavailable, continuing")

			return nil
		}

		if len(holders) == 0 {
			return nil
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s held by pid %v", models.ErrPortBusy, devPath, holders)
		}

		if err := w.sleep(ctx, w.cfg.BusyInterval.Std()); err != nil {
			return err
		}
	}
}

func (w *Workflow) capture(ctx context.Context, log logger.Logger, devPath string) *models.BootConfig {
	port, err := w.deps.Opener.Open(devPath, serialport.Config{
		BaudRate:    w.cfg.BaudRate,
		ReadTimeout: w.cfg.ReadTimeout.Std(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("Could not open port for config capture")

		return nil
	}

	defer func() {
		if err := port.Close(); err != nil {
			log.Debug().Err(err).Msg("Close after capture failed")
		}
	}()

	reader := serialport.NewLineReader(port, w.cfg.ConfigMaxBytes)

	cfg, err := captureConfig(ctx, reader, w.cfg.CaptureWindow.Std(), w.cfg.ConfigMaxBytes)
	if err != nil {
		log.Info().Err(err).Msg("Boot config not captured")

		return nil
	}

	return cfg
}

func (w *Workflow) persist(ctx context.Context, t *target, id Identity, cfg *models.BootConfig) error {
	if t.miner != nil {
		return w.deps.Store.RecordMinerCapture(ctx, db.MinerCapture{
			MinerID: t.miner.ID,
			MAC:     id.MAC,
			Chipset: id.Chipset,
			Config:  cfg,
		})
	}

	state := models.StateCaptureFailed
	if cfg != nil {
		state = models.StateCaptured
	}

	return w.deps.Store.RecordStrayCapture(ctx, db.StrayCapture{
		Device:  t.dev,
		MAC:     id.MAC,
		Chipset: id.Chipset,
		Config:  cfg,
		Status:  models.StatusInactive,
		State:   state,
	})
}

// finalize restores a sane status. It runs on a context detached from the
// caller so a cancelled request still leaves the device out of Resetting.
func (w *Workflow) finalize(ctx context.Context, t *target, fin outcome) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultFinalize)
	defer cancel()

	var err error

	if t.miner != nil {
		err = w.deps.Store.FinalizeMinerReset(fctx, t.miner.ID, fin.status, fin.state)
	} else if fin.state != "" {
		err = w.deps.Store.SetStrayState(fctx, t.key, fin.state)
	}

	if err != nil {
		w.logger.Error().Err(err).
			Str("port", t.key.PortPath).
			Str("serial", t.key.Serial).
			Msg("Reset finalization failed")
	}
}

func successOutcome(t *target, cfg *models.BootConfig) outcome {
	if cfg != nil {
		if t.miner != nil {
			return outcome{status: models.StatusActive, state: models.StateSynced, label: metrics.ResetSynced}
		}

		return outcome{status: t.prior, state: models.StateCaptured, label: metrics.ResetSynced}
	}

	return outcome{status: t.prior, state: models.StateCaptureFailed, label: metrics.ResetCaptureFailed}
}

func failureOutcome(t *target, err error) outcome {
	label := metrics.ResetError
	if errors.Is(err, models.ErrTool) {
		label = metrics.ResetToolError
	}

	return outcome{status: t.prior, state: ErrorState(err), label: label}
}

// ErrorState maps a workflow failure to the state message stored on the row.
func ErrorState(err error) string {
	switch {
	case errors.Is(err, models.ErrToolTimeout), errors.Is(err, context.DeadlineExceeded):
		return models.StateActionTimeout
	case errors.Is(err, models.ErrPortBusy):
		return models.StatePortBusy
	case errors.Is(err, models.ErrToolNotFound):
		return models.StateToolNotFound
	case errors.Is(err, models.ErrToolFailed):
		return models.StateToolError
	default:
		return models.StateActionError
	}
}

func resultMessage(devPath string, res *Result) string {
	switch {
	case res.ConfigFound:
		return fmt.Sprintf("Reset %s, captured MAC/Chipset. Config found.", devPath)
	case res.MACAddress != "" || res.Chipset != "":
		return fmt.Sprintf("Reset %s, captured MAC/Chipset. Failed to capture Config.", devPath)
	default:
		return fmt.Sprintf("Reset %s, failed capture (No Config, MAC, or Chipset found).", devPath)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

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

// Package store is the persistence facade: every mutation is queued for a
// single writer goroutine, reads go straight to the database.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/shepherd/pkg/db"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/metrics"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/cenkalti/backoff/v5"
)

var ErrWriterClosed = errors.New("store writer closed")

// intent is one queued mutation. Exactly one of merge and sync is set.
type intent struct {
	merge func(p *pendingBatch)
	sync  *syncRequest
}

type syncRequest struct {
	ctx   context.Context
	name  string
	run   func(ctx context.Context) (interface{}, error)
	reply chan syncResult
}

type syncResult struct {
	value interface{}
	err   error
}

// Store serializes all writes through one goroutine (Run) and batches the
// asynchronous ones.
type Store struct {
	svc     db.Service
	cfg     Config
	logger  logger.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	queue   []intent
	closed  bool
	running bool
	signal  chan struct{}

	pending *pendingBatch
}

func New(svc db.Service, cfg Config, log logger.Logger, m *metrics.Metrics) *Store {
	cfg.ApplyDefaults()

	return &Store{
		svc:     svc,
		cfg:     cfg,
		logger:  log,
		metrics: m,
		signal:  make(chan struct{}, 1),
		pending: newPendingBatch(),
	}
}

// Reads bypass the writer.

func (s *Store) ReadKnownMiners(ctx context.Context) ([]models.KnownMiner, error) {
	return s.svc.ReadKnownMiners(ctx)
}

func (s *Store) ReadStrayDevices(ctx context.Context) ([]models.StrayDevice, error) {
	return s.svc.ReadStrayDevices(ctx)
}

func (s *Store) ReadSummaries(ctx context.Context) (map[int64]models.SummaryMetrics, error) {
	return s.svc.ReadSummaries(ctx)
}

func (s *Store) GetMiner(ctx context.Context, id int64) (*models.KnownMiner, error) {
	return s.svc.GetMiner(ctx, id)
}

func (s *Store) GetStray(ctx context.Context, key models.DeviceKey) (*models.StrayDevice, error) {
	return s.svc.GetStray(ctx, key)
}

// Asynchronous intents.

// AppendTelemetry queues raw samples; each sample also bumps last_seen.
func (s *Store) AppendTelemetry(samples ...models.TelemetrySample) {
	if len(samples) == 0 {
		return
	}

	cp := append([]models.TelemetrySample(nil), samples...)

	s.enqueueAsync("append_telemetry", func(p *pendingBatch) { p.addTelemetry(cp) })
}

// UpsertSummary queues a summary update; absent keys keep stored values.
func (s *Store) UpsertSummary(summary models.SummaryMetrics) {
	s.enqueueAsync("upsert_summary", func(p *pendingBatch) { p.addSummary(summary) })
}

// SetStatus queues a monitor-originated status transition. It applies only
// while the miner is Active or Offline and also bumps last_seen.
func (s *Store) SetStatus(minerID int64, status models.MinerStatus, state string) {
	u := db.StatusUpdate{MinerID: minerID, Status: status, State: state, Guard: db.GuardManaged, Touch: true}

	s.enqueueAsync("set_status", func(p *pendingBatch) { p.addStatus(u) })
}

// RegisterStray records an unmatched device if no stray row exists for it.
func (s *Store) RegisterStray(dev models.Device) {
	if dev.PortPath == "" || dev.Serial == "" {
		s.logger.Warn().Str("device", dev.NodePath).Msg("Refusing to register stray without port and serial")
		return
	}

	stray := models.StrayDevice{
		PortPath:  dev.PortPath,
		Serial:    dev.Serial,
		DevPath:   dev.NodePath,
		VendorID:  dev.VendorID,
		ProductID: dev.ProductID,
		Status:    models.StatusInactive,
		State:     models.StateDetected,
	}

	s.enqueueAsync("register_stray", func(p *pendingBatch) { p.addStray(stray) })
}

// Synchronous intents. Each flushes the pending batch, then commits in its
// own transaction and returns the result.

func (s *Store) SetStatusSync(ctx context.Context, u db.StatusUpdate) error {
	return s.applySync(ctx, "set_status_sync", &db.Batch{Statuses: []db.StatusUpdate{u}})
}

// FinalizeMinerReset restores a miner's status only if it is still Resetting.
func (s *Store) FinalizeMinerReset(ctx context.Context, minerID int64, status models.MinerStatus, state string) error {
	u := db.StatusUpdate{MinerID: minerID, Status: status, State: state, Guard: db.GuardResetting}

	return s.applySync(ctx, "finalize_reset", &db.Batch{Statuses: []db.StatusUpdate{u}})
}

func (s *Store) RecordMinerCapture(ctx context.Context, c db.MinerCapture) error {
	return s.applySync(ctx, "record_miner_capture", &db.Batch{MinerCaptures: []db.MinerCapture{c}})
}

func (s *Store) RecordStrayCapture(ctx context.Context, c db.StrayCapture) error {
	return s.applySync(ctx, "record_stray_capture", &db.Batch{StrayCaptures: []db.StrayCapture{c}})
}

func (s *Store) SetStrayState(ctx context.Context, key models.DeviceKey, state string) error {
	return s.applySync(ctx, "set_stray_state", &db.Batch{StrayStates: []db.StrayState{{Key: key, State: state}}})
}

// UpsertMiners creates or updates miners keyed by miner_id in one
// transaction. Existing rows keep their status.
func (s *Store) UpsertMiners(ctx context.Context, miners []models.KnownMiner) error {
	if len(miners) == 0 {
		return nil
	}

	return s.applySync(ctx, "upsert_miners", &db.Batch{Miners: miners})
}

// EditMiner applies an operator edit and returns the updated row.
func (s *Store) EditMiner(ctx context.Context, edit models.MinerEdit) (*models.KnownMiner, error) {
	if err := s.applySync(ctx, "edit_miner", &db.Batch{MinerEdits: []models.MinerEdit{edit}}); err != nil {
		return nil, err
	}

	return s.svc.GetMiner(ctx, edit.ID)
}

// DeleteMiner removes a miner with its telemetry. A still attached device
// shows up as a stray on the next tick.
func (s *Store) DeleteMiner(ctx context.Context, id int64) error {
	return s.applySync(ctx, "delete_miner", &db.Batch{MinerDeletes: []int64{id}})
}

// DeleteStray dismisses a stray row. A still attached device is registered
// again on the next tick.
func (s *Store) DeleteStray(ctx context.Context, key models.DeviceKey) error {
	if _, err := s.svc.GetStray(ctx, key); err != nil {
		return err
	}

	return s.applySync(ctx, "delete_stray", &db.Batch{StrayDeletes: []models.DeviceKey{key}})
}

// OnboardStray promotes a stray to a KnownMiner.
func (s *Store) OnboardStray(ctx context.Context, req *models.OnboardRequest) (*models.KnownMiner, error) {
	v, err := s.submitSync(ctx, "onboard_stray", func(ctx context.Context) (interface{}, error) {
		return s.svc.OnboardStray(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.KnownMiner), nil
}

func (s *Store) applySync(ctx context.Context, name string, b *db.Batch) error {
	_, err := s.submitSync(ctx, name, func(ctx context.Context) (interface{}, error) {
		return nil, s.svc.ApplyBatch(ctx, b)
	})

	return err
}

func (s *Store) submitSync(
	ctx context.Context, name string, run func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	req := &syncRequest{ctx: ctx, name: name, run: run, reply: make(chan syncResult, 1)}

	if err := s.enqueue(intent{sync: req}); err != nil {
		return nil, err
	}

	select {
	case res := <-req.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) enqueueAsync(name string, merge func(p *pendingBatch)) {
	if err := s.enqueue(intent{merge: merge}); err != nil {
		s.logger.Warn().Str("intent", name).Err(err).Msg("Dropping write intent")
	}
}

func (s *Store) enqueue(it intent) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrWriterClosed
	}

	s.queue = append(s.queue, it)
	depth := len(s.queue)
	s.mu.Unlock()

	s.metrics.IntentAccepted()
	s.metrics.SetQueueDepth(depth)

	select {
	case s.signal <- struct{}{}:
	default:
	}

	return nil
}

func (s *Store) takeQueue() []intent {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.queue
	s.queue = nil

	return q
}

// Run is the single writer loop. It returns after ctx is cancelled and the
// remaining intents have been drained.
func (s *Store) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.closed {
		s.mu.Unlock()
		return ErrWriterClosed
	}

	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.FlushInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return nil
		case <-s.signal:
			s.process(ctx, s.takeQueue())
		case <-ticker.C:
			s.flush(ctx)
		}
	}
}

func (s *Store) process(ctx context.Context, items []intent) {
	for _, it := range items {
		if it.merge != nil {
			it.merge(s.pending)

			if s.pending.batch.Len() >= s.cfg.BatchSize {
				s.flush(ctx)
			}

			continue
		}

		s.flush(ctx)
		s.runSync(ctx, it.sync)
	}

	s.metrics.SetQueueDepth(s.queueLen())
}

func (s *Store) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// flush commits the pending batch, retrying with a fixed backoff until it
// succeeds or ctx ends. On ctx end the batch stays pending for drain.
func (s *Store) flush(ctx context.Context) {
	if s.pending.empty() {
		return
	}

	size := s.pending.batch.Len()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.svc.ApplyBatch(ctx, &s.pending.batch)
		if err == nil {
			return struct{}{}, nil
		}

		s.metrics.BatchFailed()

		if permanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}

		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.RetryBackoff.Std())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn().
				Err(err).
				Int("batch_size", size).
				Dur("retry_in", next).
				Msg("Batch commit failed, retrying")
		}),
	)

	switch {
	case err == nil:
		s.metrics.BatchCommitted()
		s.logger.Debug().Int("batch_size", size).Msg("Committed batch")
		s.pending.reset()
	case permanent(err):
		s.logger.Error().Err(err).Int("batch_size", size).Msg("Discarding batch that can never commit")
		s.pending.reset()
	}
}

func (s *Store) runSync(writerCtx context.Context, req *syncRequest) {
	ctx, cancel := mergeCancel(req.ctx, writerCtx)
	defer cancel()

	attempt := 0

	value, err := backoff.Retry(ctx, func() (interface{}, error) {
		attempt++

		v, err := req.run(ctx)
		if err != nil && permanent(err) {
			return nil, backoff.Permanent(err)
		}

		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.RetryBackoff.Std())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn().
				Err(err).
				Str("intent", req.name).
				Int("attempt", attempt).
				Dur("retry_in", next).
				Msg("Write failed, retrying")
		}),
	)

	req.reply <- syncResult{value: value, err: err}
}

// drain stops intake and commits what is left with a bounded number of attempts.
func (s *Store) drain() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, it := range s.takeQueue() {
		if it.merge != nil {
			it.merge(s.pending)
			continue
		}

		it.sync.reply <- syncResult{err: ErrWriterClosed}
	}

	if s.pending.empty() {
		return
	}

	size := s.pending.batch.Len()

	for attempt := 1; attempt <= s.cfg.DrainAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), defaultDrainTimeout)
		err := s.svc.ApplyBatch(ctx, &s.pending.batch)
		cancel()

		if err == nil {
			s.metrics.BatchCommitted()
			s.logger.Info().Int("batch_size", size).Msg("Drained pending writes")
			s.pending.reset()

			return
		}

		s.metrics.BatchFailed()
		s.logger.Warn().Err(err).Int("attempt", attempt).Int("batch_size", size).Msg("Drain commit failed")

		if permanent(err) {
			break
		}
	}

	s.logger.Error().Int("batch_size", size).Msg("Lost pending writes on shutdown")
	s.pending.reset()
}

// permanent reports errors that retrying cannot fix.
func permanent(err error) bool {
	return errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, db.ErrDeviceKeyMissing) ||
		errors.Is(err, db.ErrMinerIDRequired) ||
		errors.Is(err, db.ErrUnknownGuard) ||
		errors.Is(err, db.ErrEmptyEdit)
}

// mergeCancel returns a context cancelled when either parent is done. Values
// come from a.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(fmt.Errorf("%w: %w", ErrWriterClosed, context.Cause(b))) })

	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

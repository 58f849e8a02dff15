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

// Package monitor runs one telemetry worker per connected known miner.
package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/metrics"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/serialport"
)

// State is the monitor's position in its connection state machine.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOnline
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Sink receives everything a monitor persists. *store.Store implements it.
type Sink interface {
	AppendTelemetry(samples ...models.TelemetrySample)
	UpsertSummary(summary models.SummaryMetrics)
	SetStatus(minerID int64, status models.MinerStatus, state string)
}

// Clock supplies sample timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Target identifies the miner and the device node a monitor owns.
type Target struct {
	MinerDBID int64
	MinerID   string
	NodePath  string
}

type Option func(*Monitor)

func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Monitor) { m.metrics = mt }
}

// Monitor owns one serial port. The reconciliation loop holds the handle and
// is the only caller of Start and RequestStop.
type Monitor struct {
	target  Target
	cfg     Config
	opener  serialport.Opener
	sink    Sink
	clock   Clock
	metrics *metrics.Metrics
	logger  logger.Logger

	state   atomic.Int32
	running atomic.Bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	batch pending
	rate  rateTracker
}

func New(target Target, cfg Config, opener serialport.Opener, sink Sink, log logger.Logger, opts ...Option) *Monitor {
	cfg.ApplyDefaults()

	m := &Monitor{
		target: target,
		cfg:    cfg,
		opener: opener,
		sink:   sink,
		clock:  systemClock{},
		logger: log,
		done:   make(chan struct{}),
		batch:  pending{minerID: target.MinerDBID},
		rate: rateTracker{
			minInterval: cfg.MinRateInterval.Std(),
			scale:       cfg.RateScale,
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

func (m *Monitor) Target() Target { return m.target }

func (m *Monitor) State() State { return State(m.state.Load()) }

// IsRunning reports whether the worker goroutine has not yet exited.
func (m *Monitor) IsRunning() bool { return m.running.Load() }

// Done is closed once the worker has flushed and emitted its final status.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Start launches the worker. Later calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}

	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.running.Store(true)

	go m.run(ctx)
}

// RequestStop asks the worker to stop; it returns immediately.
func (m *Monitor) RequestStop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		m.started = true
		m.state.Store(int32(StateStopped))
		close(m.done)

		return
	}

	m.cancel()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	defer m.running.Store(false)

	log := m.logger

	log.Info().
		Int64("miner_id", m.target.MinerDBID).
		Str("device", m.target.NodePath).
		Msg("Monitor started")

	retry := backoff.NewConstantBackOff(m.cfg.ReconnectInterval.Std())

	m.state.Store(int32(StateConnecting))

	for ctx.Err() == nil {
		port, err := m.opener.Open(m.target.NodePath, m.cfg.serial())
		if err != nil {
			log.Debug().Err(err).Str("device", m.target.NodePath).Msg("Open failed, retrying")

			if !sleep(ctx, retry.NextBackOff()) {
				break
			}

			continue
		}

		m.sink.SetStatus(m.target.MinerDBID, models.StatusActive, models.StateConnected)
		m.state.Store(int32(StateOnline))

		log.Info().Str("device", m.target.NodePath).Msg("Connected")

		readErr := m.readLoop(ctx, port)

		if err := port.Close(); err != nil {
			log.Debug().Err(err).Msg("Close failed")
		}

		m.flush()

		if ctx.Err() != nil {
			break
		}

		log.Warn().Err(readErr).Str("device", m.target.NodePath).Msg("Device disconnected, reconnecting")

		m.sink.SetStatus(m.target.MinerDBID, models.StatusOffline, models.StateDisconnected)
		m.state.Store(int32(StateReconnecting))

		if !sleep(ctx, retry.NextBackOff()) {
			break
		}
	}

	m.flush()
	m.sink.SetStatus(m.target.MinerDBID, models.StatusOffline, models.StateStopped)
	m.state.Store(int32(StateStopped))

	log.Info().Int64("miner_id", m.target.MinerDBID).Msg("Monitor stopped")
}

// readLoop returns the read error that ended the session, or nil on stop.
func (m *Monitor) readLoop(ctx context.Context, port serialport.Port) error {
	reader := serialport.NewLineReader(port, 0)

	ticker := time.NewTicker(m.cfg.FlushInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.flush()
		default:
		}

		line, ok, err := reader.ReadLine()
		if err != nil {
			return err
		}

		if ok {
			m.processLine(line)
		}
	}
}

func (m *Monitor) processLine(line string) {
	key, value, ok := ParseLine(line)
	if !ok {
		return
	}

	now := m.clock.Now()

	m.metrics.TelemetryLine()
	m.batch.add(models.TelemetrySample{
		MinerID:   m.target.MinerDBID,
		Key:       key,
		Value:     value,
		Timestamp: now,
	})

	if key != models.KeyTotalMHashes {
		return
	}

	counter, ok := parseCounter(value)
	if !ok {
		m.logger.Debug().Str("value", value).Msg("Unparseable MHashes counter")

		return
	}

	rate, emit := m.rate.observe(counter, now)
	m.batch.noteCounter(counter, now)

	if emit {
		m.batch.add(models.TelemetrySample{
			MinerID:   m.target.MinerDBID,
			Key:       models.KeyHashRate,
			Value:     FormatRate(rate),
			Timestamp: now,
		})
	}
}

func (m *Monitor) flush() {
	if len(m.batch.samples) == 0 {
		return
	}

	summary, ok := m.batch.summary(m.clock.Now())

	m.sink.AppendTelemetry(m.batch.samples...)

	if ok {
		m.sink.UpsertSummary(summary)
	}

	m.batch.reset()
}

// sleep waits for d or until ctx ends; it reports whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

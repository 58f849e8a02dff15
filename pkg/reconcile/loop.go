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

// Package reconcile drives the periodic comparison of attached devices with
// the persisted registry. It owns the set of running monitors.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/carverauto/shepherd/pkg/identity"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/metrics"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/monitor"
	"github.com/carverauto/shepherd/pkg/snapshot"
)

var errLoopNotRunning = errors.New("reconciliation loop is not running")

// DeviceScanner enumerates attached devices.
type DeviceScanner interface {
	Scan(ctx context.Context) ([]models.Device, error)
}

// Registry is the store surface the loop reads and the one intent it emits.
type Registry interface {
	ReadKnownMiners(ctx context.Context) ([]models.KnownMiner, error)
	ReadStrayDevices(ctx context.Context) ([]models.StrayDevice, error)
	ReadSummaries(ctx context.Context) (map[int64]models.SummaryMetrics, error)
	RegisterStray(dev models.Device)
}

// SnapshotWriter persists the published document.
type SnapshotWriter interface {
	Write(snap *models.Snapshot) error
}

// Handle is the supervised monitor task the loop starts and stops.
type Handle interface {
	Start(ctx context.Context)
	RequestStop()
	IsRunning() bool
	Done() <-chan struct{}
}

// MonitorFactory builds an unstarted monitor for a target.
type MonitorFactory func(target monitor.Target) Handle

type entry struct {
	handle   Handle
	nodePath string
}

// cache holds the last successful registry read.
type cache struct {
	miners    []models.KnownMiner
	strays    []models.StrayDevice
	summaries map[int64]models.SummaryMetrics
}

type releaseRequest struct {
	minerID int64
	reply   chan (<-chan struct{})
}

type Loop struct {
	cfg       Config
	scanner   DeviceScanner
	registry  Registry
	resolver  *identity.Resolver
	factory   MonitorFactory
	writer    SnapshotWriter
	publisher snapshot.Sink
	hints     <-chan struct{}
	metrics   *metrics.Metrics
	logger    logger.Logger
	now       func() time.Time

	// Owned by the Run goroutine.
	monitors map[int64]*entry
	stopping map[int64]Handle
	last     cache
	tick     uint64
	observed int

	releases chan releaseRequest
}

type Option func(*Loop)

// WithPublisher adds a second snapshot destination.
func WithPublisher(p snapshot.Sink) Option {
	return func(l *Loop) { l.publisher = p }
}

// WithHints lets device add/remove events start the next tick early.
func WithHints(h <-chan struct{}) Option {
	return func(l *Loop) { l.hints = h }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

func New(
	cfg Config,
	scanner DeviceScanner,
	registry Registry,
	factory MonitorFactory,
	writer SnapshotWriter,
	log logger.Logger,
	opts ...Option,
) *Loop {
	cfg.ApplyDefaults()

	l := &Loop{
		cfg:      cfg,
		scanner:  scanner,
		registry: registry,
		resolver: identity.NewResolver(log),
		factory:  factory,
		writer:   writer,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
		monitors: make(map[int64]*entry),
		stopping: make(map[int64]Handle),
		releases: make(chan releaseRequest),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Run ticks until ctx is cancelled, then stops every monitor.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Dur("interval", l.cfg.TickInterval.Std()).Msg("Starting reconciliation loop")

	defer l.shutdown()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info().Msg("Reconciliation loop stopping due to context cancellation")

			return nil
		case req := <-l.releases:
			req.reply <- l.release(req.minerID)

			continue
		case _, ok := <-l.hints:
			if !ok {
				l.hints = nil

				continue
			}

			l.logger.Debug().Msg("Device event hint, ticking early")
		case <-timer.C:
		}

		start := time.Now()
		err := l.safeTick(ctx)
		elapsed := time.Since(start)

		if err != nil {
			l.logger.Error().Err(err).Uint64("tick", l.tick).Msg("Reconciliation tick failed")
		}

		l.metrics.ObserveTick(elapsed, l.observed, len(l.monitors), err)

		timer.Stop()

		select {
		case <-timer.C:
		default:
		}

		// Overrun ticks proceed immediately.
		timer.Reset(max(l.cfg.TickInterval.Std()-elapsed, 0))
	}
}

// Release stops the monitor for minerID, if one is running, and waits for it
// to exit. The reset workflow calls it before touching the port.
func (l *Loop) Release(ctx context.Context, minerID int64) error {
	req := releaseRequest{minerID: minerID, reply: make(chan (<-chan struct{}), 1)}

	select {
	case l.releases <- req:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", errLoopNotRunning, ctx.Err())
	}

	var done <-chan struct{}

	select {
	case done = <-req.reply:
	case <-ctx.Done():
		return ctx.Err()
	}

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) release(minerID int64) <-chan struct{} {
	if e, ok := l.monitors[minerID]; ok {
		l.stop(minerID, e, "released for reset")
	}

	if h, ok := l.stopping[minerID]; ok {
		return h.Done()
	}

	return nil
}

func (l *Loop) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	return l.Tick(ctx)
}

// Tick runs one reconciliation pass. It must only be called from the
// goroutine that owns the loop.
func (l *Loop) Tick(ctx context.Context) error {
	l.tick++
	l.reap()

	devices, err := l.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan devices: %w", err)
	}

	l.observed = len(devices)

	degraded := l.refresh(ctx)
	now := l.now()
	tables := identity.NewTables(l.last.miners, l.last.strays)

	var (
		views   = make([]models.ViewModel, 0, len(devices)+len(tables.Miners))
		seen    = make(map[int64]bool, len(tables.Miners))
		desired = make(map[int64]string)
	)

	for _, dev := range devices {
		res := l.resolver.Resolve(dev, tables)

		if res.Kind == identity.Unmatched {
			if res.Stray == nil && degraded == nil {
				l.registry.RegisterStray(dev)
			}

			views = append(views, strayView(dev, res.Stray))

			continue
		}

		m := res.Miner
		if seen[m.ID] {
			l.logger.Warn().
				Str("miner_id", m.MinerID).
				Str("port", dev.PortPath).
				Str("serial", dev.Serial).
				Msg("Known miner matched by more than one device, ignoring duplicate")

			continue
		}

		seen[m.ID] = true

		if m.Status.Managed() {
			desired[m.ID] = dev.NodePath
		}

		v := connectedMinerView(m, dev, now, l.cfg.StaleThreshold.Std())
		v.Summary = l.summaryFor(m.ID)
		views = append(views, v)
	}

	for _, m := range tables.Miners {
		if seen[m.ID] {
			continue
		}

		v := disconnectedMinerView(m)
		v.Summary = l.summaryFor(m.ID)
		views = append(views, v)
	}

	l.apply(ctx, desired, tables)

	snap := &models.Snapshot{Devices: views, GeneratedAt: now}
	if degraded != nil {
		snap.Error = degraded.Error()
	}

	return l.publish(ctx, snap)
}

// refresh re-reads the registry; on failure it keeps the previous maps and
// returns the error so the snapshot is marked degraded.
func (l *Loop) refresh(ctx context.Context) error {
	miners, err := l.registry.ReadKnownMiners(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Reading known miners failed, using cached registry")

		return fmt.Errorf("DB Query Error: %w", err)
	}

	strays, err := l.registry.ReadStrayDevices(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Reading stray devices failed, using cached registry")

		return fmt.Errorf("DB Query Error: %w", err)
	}

	l.last.miners = miners
	l.last.strays = strays

	summaries, err := l.registry.ReadSummaries(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("Reading summaries failed, using cached values")
	} else {
		l.last.summaries = summaries
	}

	return nil
}

func (l *Loop) summaryFor(minerID int64) map[string]string {
	s, ok := l.last.summaries[minerID]
	if !ok || len(s.Values) == 0 {
		return nil
	}

	return s.Values
}

// apply converges the running monitors onto desired (miner id -> node path).
func (l *Loop) apply(ctx context.Context, desired map[int64]string, tables *identity.Tables) {
	for id, e := range l.monitors {
		node, ok := desired[id]

		switch {
		case !ok:
			l.stop(id, e, "device vanished or miner no longer managed")
		case node != e.nodePath:
			l.stop(id, e, "device node changed")
		}
	}

	for _, m := range tables.Miners {
		node, ok := desired[m.ID]
		if !ok {
			continue
		}

		if _, running := l.monitors[m.ID]; running {
			continue
		}

		// The previous monitor must release the port first.
		if old, ok := l.stopping[m.ID]; ok && old.IsRunning() {
			continue
		}

		delete(l.stopping, m.ID)

		h := l.factory(monitor.Target{MinerDBID: m.ID, MinerID: m.MinerID, NodePath: node})
		h.Start(ctx)

		l.monitors[m.ID] = &entry{handle: h, nodePath: node}

		l.logger.Info().
			Str("miner_id", m.MinerID).
			Str("device", node).
			Msg("Started monitor")
	}
}

func (l *Loop) stop(id int64, e *entry, reason string) {
	e.handle.RequestStop()

	delete(l.monitors, id)
	l.stopping[id] = e.handle

	l.logger.Info().
		Int64("miner_id", id).
		Str("device", e.nodePath).
		Str("reason", reason).
		Msg("Stopping monitor")
}

// reap forgets monitors that finished stopping.
func (l *Loop) reap() {
	for id, h := range l.stopping {
		if !h.IsRunning() {
			delete(l.stopping, id)
		}
	}
}

func (l *Loop) publish(ctx context.Context, snap *models.Snapshot) error {
	if l.publisher != nil {
		if err := l.publisher.Publish(ctx, snap); err != nil {
			l.logger.Warn().Err(err).Msg("Snapshot publish failed")
		}
	}

	if err := l.writer.Write(snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	return nil
}

// running returns the sorted ids of miners with a registered monitor. Only
// the goroutine driving Tick may call it.
func (l *Loop) running() []int64 {
	ids := make([]int64, 0, len(l.monitors))
	for id := range l.monitors {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

func (l *Loop) shutdown() {
	for id, e := range l.monitors {
		l.stop(id, e, "shutdown")
	}

	deadline := time.NewTimer(l.cfg.ShutdownTimeout.Std())
	defer deadline.Stop()

	for id, h := range l.stopping {
		select {
		case <-h.Done():
			delete(l.stopping, id)
		case <-deadline.C:
			l.logger.Warn().Int("pending", len(l.stopping)).Msg("Monitors did not stop before shutdown timeout")

			return
		}
	}
}

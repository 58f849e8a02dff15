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

// Package shepherd assembles the fleet controller: registry, writer,
// scanner, reconciliation loop, reset workflow and admin API.
package shepherd

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/shepherd/pkg/api"
	"github.com/carverauto/shepherd/pkg/db"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/metrics"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/monitor"
	"github.com/carverauto/shepherd/pkg/reconcile"
	"github.com/carverauto/shepherd/pkg/reset"
	"github.com/carverauto/shepherd/pkg/scanner"
	"github.com/carverauto/shepherd/pkg/serialport"
	"github.com/carverauto/shepherd/pkg/snapshot"
	"github.com/carverauto/shepherd/pkg/store"
)

var errAlreadyRunning = errors.New("server already running")

// DeviceSource is the scanner surface shared by the loop and the reset
// workflow.
type DeviceSource interface {
	Scan(ctx context.Context) ([]models.Device, error)
	Find(ctx context.Context, key models.DeviceKey) (models.Device, error)
}

type Server struct {
	cfg       *Config
	db        *db.DB
	store     *store.Store
	loop      *reconcile.Loop
	resets    *reset.Workflow
	api       *api.Server
	publisher *snapshot.Publisher
	metrics   *metrics.Metrics
	logger    logger.Logger

	running atomic.Bool
}

type options struct {
	devices DeviceSource
	opener  serialport.Opener
	tool    reset.ToolRunner
	probe   reset.BusyProbe
	hints   <-chan struct{}
}

type Option func(*options)

// WithDeviceSource replaces the system USB scanner.
func WithDeviceSource(d DeviceSource) Option {
	return func(o *options) { o.devices = d }
}

// WithOpener replaces the serial port opener used by monitors and resets.
func WithOpener(op serialport.Opener) Option {
	return func(o *options) { o.opener = op }
}

// WithResetTool replaces the external flashing tool and busy-port probe.
func WithResetTool(tool reset.ToolRunner, probe reset.BusyProbe) Option {
	return func(o *options) {
		o.tool = tool
		o.probe = probe
	}
}

// NewServer opens the registry and wires every component. ctx bounds the
// background helpers started here (device hints, NATS connection setup).
func NewServer(ctx context.Context, cfg *Config, log logger.Logger, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	o := &options{opener: serialport.SystemOpener{}}
	for _, opt := range opts {
		opt(o)
	}

	if o.devices == nil {
		o.devices = scanner.NewSystem(&cfg.Scanner, logger.Component(log, "scanner"))

		if !cfg.Scanner.DisableHints {
			o.hints = scanner.Hints(ctx, logger.Component(log, "hints"))
		}
	}

	m := metrics.New()

	database, err := db.New(ctx, cfg.DatabasePath, logger.Component(log, "db"))
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		db:      database,
		metrics: m,
		logger:  log,
	}

	s.store = store.New(database, cfg.Store, logger.Component(log, "store"), m)

	loopOpts := []reconcile.Option{
		reconcile.WithMetrics(m),
		reconcile.WithHints(o.hints),
	}

	if cfg.NATS.Enabled() {
		pub, err := snapshot.NewPublisher(ctx, cfg.NATS, logger.Component(log, "publisher"))
		if err != nil {
			_ = database.Close()

			return nil, err
		}

		s.publisher = pub
		loopOpts = append(loopOpts, reconcile.WithPublisher(pub))
	}

	monitorLog := logger.Component(log, "monitor")
	factory := func(t monitor.Target) reconcile.Handle {
		return monitor.New(t, cfg.Monitor, o.opener, s.store, monitorLog, monitor.WithMetrics(m))
	}

	s.loop = reconcile.New(
		cfg.Reconcile,
		o.devices,
		s.store,
		factory,
		snapshot.NewWriter(cfg.SnapshotPath, logger.Component(log, "snapshot")),
		logger.Component(log, "reconcile"),
		loopOpts...,
	)

	s.resets = reset.New(cfg.Reset, reset.Deps{
		Store:    s.store,
		Devices:  o.devices,
		Quiescer: s.loop,
		Tool:     o.tool,
		Probe:    o.probe,
		Opener:   o.opener,
		Metrics:  m,
	}, logger.Component(log, "reset"))

	s.api = api.NewServer(
		cfg.API,
		s.store,
		s.resets,
		api.FileSnapshot(cfg.SnapshotPath),
		logger.Component(log, "api"),
		api.WithMetricsHandler(m.Handler()),
		api.WithReadiness(s.running.Load),
	)

	return s, nil
}

// API exposes the admin API, mostly for tests.
func (s *Server) API() *api.Server {
	return s.api
}

// Run serves until ctx is cancelled or a component fails. The writer keeps
// running until the loop and the API have stopped, then drains its queue
// before the registry is closed.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}

	defer s.running.Store(false)

	s.logger.Info().
		Str("database", s.cfg.DatabasePath).
		Str("snapshot", s.cfg.SnapshotPath).
		Str("api", s.cfg.API.ListenAddr).
		Msg("Starting shepherd")

	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	writerDone := make(chan error, 1)

	go func() { writerDone <- s.store.Run(writerCtx) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.loop.Run(gctx) })
	g.Go(func() error { return s.api.ListenAndServe(gctx) })

	runErr := g.Wait()

	stopWriter()

	writerErr := <-writerDone

	s.close()

	s.logger.Info().Msg("Shepherd stopped")

	return errors.Join(runErr, writerErr)
}

func (s *Server) close() {
	if s.publisher != nil {
		s.publisher.Close()
	}

	if err := s.db.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Closing registry failed")
	}
}

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

// Package api serves the shepherd admin HTTP surface: onboarding and miner
// registry edits, resets, the current device snapshot, health and Prometheus
// metrics.
package api

//go:generate mockgen -destination=mock_api.go -package=api github.com/carverauto/shepherd/pkg/api Registry,Resetter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/reset"
	"github.com/carverauto/shepherd/pkg/snapshot"
)

const (
	maxBodyBytes    = 64 << 10
	maxImportBytes  = 4 << 20
	shutdownTimeout = 5 * time.Second
)

// Registry is the operator-facing side of the miner registry.
type Registry interface {
	OnboardStray(ctx context.Context, req *models.OnboardRequest) (*models.KnownMiner, error)
	EditMiner(ctx context.Context, edit models.MinerEdit) (*models.KnownMiner, error)
	DeleteMiner(ctx context.Context, id int64) error
	DeleteStray(ctx context.Context, key models.DeviceKey) error
	UpsertMiners(ctx context.Context, miners []models.KnownMiner) error
}

// Resetter runs the reset workflow.
type Resetter interface {
	Reset(ctx context.Context, req reset.Request) (*reset.Result, error)
}

// SnapshotSource returns the most recent published snapshot.
type SnapshotSource interface {
	Load() (*models.Snapshot, error)
}

// FileSnapshot reads the snapshot document the reconciliation loop writes.
type FileSnapshot string

func (f FileSnapshot) Load() (*models.Snapshot, error) {
	return snapshot.ReadFile(string(f))
}

type Server struct {
	cfg       Config
	registry  Registry
	resetter  Resetter
	snapshots SnapshotSource
	metrics   http.Handler
	ready     func() bool
	logger    logger.Logger
	router    chi.Router
}

type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithReadiness makes /healthz report 503 while ready returns false.
func WithReadiness(ready func() bool) Option {
	return func(s *Server) { s.ready = ready }
}

func NewServer(
	cfg Config, registry Registry, resetter Resetter, snapshots SnapshotSource, log logger.Logger, opts ...Option,
) *Server {
	cfg.ApplyDefaults()

	s := &Server{
		cfg:       cfg,
		registry:  registry,
		resetter:  resetter,
		snapshots: snapshots,
		logger:    log,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router = s.routes()

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/healthz", s.handleHealth)

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(s.cfg.APIKey, s.logger))
		}

		r.Use(middleware.Timeout(s.cfg.RequestTimeout.Std()))

		r.Get("/devices", s.handleDevices)
		r.Post("/miners/onboard", s.handleOnboard)
		r.Post("/miners/import", s.handleImport)
		r.Put("/miners/{id}", s.handleEditMiner)
		r.Delete("/miners/{id}", s.handleDeleteMiner)
		r.Post("/strays/dismiss", s.handleDismissStray)
		r.Post("/devices/reset", s.handleReset)
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}

	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Admin API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Admin API shutdown incomplete")

		return err
	}

	return nil
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "starting"})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	snap, err := s.snapshots.Load()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			writeErr(w, http.StatusServiceUnavailable, "no snapshot written yet")
			return
		}

		s.logger.Error().Err(err).Msg("Reading snapshot failed")
		writeErr(w, http.StatusInternalServerError, "failed to read snapshot")

		return
	}

	body, err := snapshot.Encode(snap)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to encode snapshot")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req models.OnboardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	miner, err := s.registry.OnboardStray(r.Context(), &req)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("miner_id", req.MinerID).
			Str("port", req.PortPath).
			Str("serial", req.Serial).
			Msg("Onboarding rejected")
		writeError(w, err)

		return
	}

	s.logger.Info().
		Str("miner_id", miner.MinerID).
		Str("port", miner.PortPath).
		Str("status", string(miner.Status)).
		Msg("Miner onboarded")

	writeJSON(w, http.StatusCreated, miner)
}

func (s *Server) handleEditMiner(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var edit models.MinerEdit
	if err := decodeBody(r, &edit); err != nil {
		writeError(w, err)
		return
	}

	edit.ID = id

	miner, err := s.registry.EditMiner(r.Context(), edit)
	if err != nil {
		s.logger.Warn().Err(err).Int64("id", id).Msg("Miner edit rejected")
		writeError(w, err)

		return
	}

	s.logger.Info().Int64("id", id).Str("miner_id", miner.MinerID).Msg("Miner updated")

	writeJSON(w, http.StatusOK, miner)
}

func (s *Server) handleDeleteMiner(w http.ResponseWriter, r *http.Request) {
	id, err := minerParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.registry.DeleteMiner(r.Context(), id); err != nil {
		s.logger.Warn().Err(err).Int64("id", id).Msg("Miner delete rejected")
		writeError(w, err)

		return
	}

	s.logger.Info().Int64("id", id).Msg("Miner deleted")

	w.WriteHeader(http.StatusNoContent)
}

// dismissRequest names the stray to forget. A device that is still plugged
// in is detected again on the next cycle.
type dismissRequest struct {
	PortPath string `json:"port_path"`
	Serial   string `json:"serial_number"`
}

func (s *Server) handleDismissStray(w http.ResponseWriter, r *http.Request) {
	var req dismissRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.PortPath == "" || req.Serial == "" {
		writeError(w, fmt.Errorf("%w: port_path and serial_number are required", errInvalidBody))
		return
	}

	key := models.DeviceKey{PortPath: req.PortPath, Serial: req.Serial}
	if err := s.registry.DeleteStray(r.Context(), key); err != nil {
		writeError(w, err)
		return
	}

	s.logger.Info().Str("port", key.PortPath).Str("serial", key.Serial).Msg("Stray dismissed")

	w.WriteHeader(http.StatusNoContent)
}

type importResponse struct {
	Imported int `json:"imported"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	miners, err := ParseMinerCSV(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}

	if err := s.registry.UpsertMiners(r.Context(), miners); err != nil {
		s.logger.Warn().Err(err).Int("rows", len(miners)).Msg("Miner import rejected")
		writeError(w, err)

		return
	}

	s.logger.Info().Int("rows", len(miners)).Msg("Miners imported")

	writeJSON(w, http.StatusOK, importResponse{Imported: len(miners)})
}

func minerParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad miner id %q", errInvalidBody, chi.URLParam(r, "id"))
	}

	return id, nil
}

// resetResponse carries the workflow result, plus the error when the
// workflow failed after producing one.
type resetResponse struct {
	*reset.Result
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req reset.Request
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.resetter.Reset(r.Context(), req)
	if err != nil {
		if res == nil {
			writeError(w, err)
			return
		}

		status, code := statusFor(err)
		writeJSON(w, status, resetResponse{Result: res, Error: err.Error(), Code: code})

		return
	}

	writeJSON(w, http.StatusOK, resetResponse{Result: res})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}

	return nil
}

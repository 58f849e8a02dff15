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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/shepherd/pkg/db"
	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/metrics"
	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/reset"
	"github.com/carverauto/shepherd/pkg/snapshot"
)

type staticSnapshot struct {
	snap *models.Snapshot
	err  error
}

func (s staticSnapshot) Load() (*models.Snapshot, error) {
	return s.snap, s.err
}

func minerID(s string) *string { return &s }

func sampleSnapshot() *models.Snapshot {
	id := int64(7)

	return &models.Snapshot{Devices: []models.ViewModel{{
		Type:          "miner",
		ID:            &id,
		MinerID:       minerID("rig-7"),
		PortPath:      "1-1.2",
		Serial:        "A1",
		Status:        "Active",
		StateMsg:      "Actively Mining",
		DisplayStatus: "Online",
	}}}
}

type fixture struct {
	registry *MockRegistry
	resetter *MockResetter
	server   *Server
}

func newFixture(t *testing.T, cfg Config, snaps SnapshotSource, opts ...Option) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		registry: NewMockRegistry(ctrl),
		resetter: NewMockResetter(ctrl),
	}

	if snaps == nil {
		snaps = staticSnapshot{snap: sampleSnapshot()}
	}

	f.server = NewServer(cfg, f.registry, f.resetter, snaps, logger.NewTestLogger(), opts...)

	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var er errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))

	return er
}

func TestHealth(t *testing.T) {
	ready := false
	f := newFixture(t, Config{}, nil, WithReadiness(func() bool { return ready }))

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestOnboard(t *testing.T) {
	req := &models.OnboardRequest{PortPath: "1-1.2", Serial: "A1", MinerID: "rig-7", LocationNotes: "rack 2"}

	tests := []struct {
		name     string
		result   *models.KnownMiner
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "created",
			result:   &models.KnownMiner{ID: 7, MinerID: "rig-7", PortPath: "1-1.2", USBSerial: "A1", Status: models.StatusActive},
			wantCode: http.StatusCreated,
		},
		{
			name:     "stray missing",
			err:      fmt.Errorf("stray 1-1.2/A1: %w", models.ErrNotFound),
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name:     "duplicate miner id",
			err:      &db.ConflictError{Field: "miner_id", Value: "rig-7", Existing: "rig-7"},
			wantCode: http.StatusConflict,
			wantErr:  "conflict",
		},
		{
			name:     "missing miner id",
			err:      db.ErrMinerIDRequired,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
		{
			name:     "store unavailable",
			err:      fmt.Errorf("onboard: %w", models.ErrTransient),
			wantCode: http.StatusServiceUnavailable,
			wantErr:  "transient",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, nil)
			f.registry.EXPECT().OnboardStray(gomock.Any(), req).Return(tt.result, tt.err)

			rec := f.do(t, http.MethodPost, "/api/v1/miners/onboard", req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeErr(t, rec).Code)
				return
			}

			var got models.KnownMiner
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "rig-7", got.MinerID)
		})
	}
}

func TestOnboardRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/miners/onboard", map[string]string{"port": "1-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeErr(t, rec).Code)
}

func TestReset(t *testing.T) {
	dbID := int64(7)
	req := reset.Request{PortPath: "1-1.2", Serial: "A1", MinerDBID: &dbID}

	t.Run("success", func(t *testing.T) {
		f := newFixture(t, Config{}, nil)
		f.resetter.EXPECT().Reset(gomock.Any(), req).Return(&reset.Result{
			ResetID:     "r-1",
			Success:     true,
			MACAddress:  "aa:bb:cc:dd:ee:ff",
			ConfigFound: true,
			Config:      &models.BootConfig{PoolURL: "stratum+tcp://pool:3333", WalletAddress: "bc1q"},
		}, nil)

		rec := f.do(t, http.MethodPost, "/api/v1/devices/reset", req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got reset.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.True(t, got.Success)
		assert.Equal(t, "stratum+tcp://pool:3333", got.Config.PoolURL)
	})

	failures := []struct {
		name     string
		err      error
		result   *reset.Result
		wantCode int
		wantErr  string
	}{
		{name: "invalid", err: reset.ErrInvalidRequest, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		{name: "device gone", err: fmt.Errorf("device 1-1.2/A1: %w", models.ErrNotFound), wantCode: http.StatusNotFound, wantErr: "not_found"},
		{
			name:     "port busy",
			err:      fmt.Errorf("%w: held by pid 42", models.ErrPortBusy),
			result:   &reset.Result{ResetID: "r-2", Message: "serial port busy"},
			wantCode: http.StatusConflict,
			wantErr:  "port_busy",
		},
		{
			name:     "tool timeout",
			err:      fmt.Errorf("%w: after 15s", models.ErrToolTimeout),
			result:   &reset.Result{ResetID: "r-3"},
			wantCode: http.StatusBadGateway,
			wantErr:  "tool_timeout",
		},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, nil)
			f.resetter.EXPECT().Reset(gomock.Any(), req).Return(tt.result, tt.err)

			rec := f.do(t, http.MethodPost, "/api/v1/devices/reset", req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			var body resetResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantErr, body.Code)

			if tt.result != nil {
				require.NotNil(t, body.Result)
				assert.Equal(t, tt.result.ResetID, body.ResetID)
			}
		})
	}
}

func TestDevices(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "devices.json")
		require.NoError(t, snapshot.NewWriter(path, logger.NewTestLogger()).Write(sampleSnapshot()))

		f := newFixture(t, Config{}, FileSnapshot(path))
		rec := f.do(t, http.MethodGet, "/api/v1/devices", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		snap, err := snapshot.Decode(rec.Body.Bytes())
		require.NoError(t, err)
		require.Len(t, snap.Devices, 1)
		assert.Equal(t, "Online", snap.Devices[0].DisplayStatus)
	})

	t.Run("degraded shape passes through", func(t *testing.T) {
		snap := sampleSnapshot()
		snap.Error = "DB Query Error: database is locked"

		f := newFixture(t, Config{}, staticSnapshot{snap: snap})
		rec := f.do(t, http.MethodGet, "/api/v1/devices", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
		assert.Contains(t, doc, "error")
		assert.Contains(t, doc, "devices")
	})

	t.Run("not written yet", func(t *testing.T) {
		f := newFixture(t, Config{}, FileSnapshot(filepath.Join(t.TempDir(), "missing.json")))
		rec := f.do(t, http.MethodGet, "/api/v1/devices", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unreadable", func(t *testing.T) {
		f := newFixture(t, Config{}, staticSnapshot{err: errors.New("garbled")})
		rec := f.do(t, http.MethodGet, "/api/v1/devices", nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestAPIKeyGuardsActions(t *testing.T) {
	f := newFixture(t, Config{APIKey: "s3cret"}, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/devices", nil, apiKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/devices", nil, apiKeyHeader, "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/devices?api_key=s3cret", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{AllowedOrigins: []string{"http://ops.local"}}, nil)

	rec := f.do(t, http.MethodOptions, "/api/v1/devices", nil, "Origin", "http://ops.local")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ops.local", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(t, http.MethodOptions, "/api/v1/devices", nil, "Origin", "http://elsewhere")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ResetFinished(metrics.ResetSynced)

	f := newFixture(t, Config{}, nil, WithMetricsHandler(m.Handler()))

	rec := f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shepherd_resets_total")
}

func TestClientRoundTrip(t *testing.T) {
	f := newFixture(t, Config{APIKey: "k"}, nil)
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)

	client, err := NewClient(ts.URL, "k")
	require.NoError(t, err)

	ctx := context.Background()

	onboard := &models.OnboardRequest{PortPath: "1-1.2", Serial: "A1", MinerID: "rig-7"}
	f.registry.EXPECT().OnboardStray(gomock.Any(), onboard).
		Return(nil, &db.ConflictError{Field: "miner_id", Value: "rig-7", Existing: "rig-7"})

	_, err = client.Onboard(ctx, onboard)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConflict)

	req := reset.Request{PortPath: "1-1.2", Serial: "A1"}
	f.resetter.EXPECT().Reset(gomock.Any(), req).
		Return(&reset.Result{ResetID: "r-9", Chipset: "ESP32-S3"}, fmt.Errorf("%w: exit 2", models.ErrToolFailed))

	res, err := client.Reset(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTool)
	require.NotNil(t, res)
	assert.Equal(t, "ESP32-S3", res.Chipset)

	snap, err := client.Devices(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Devices, 1)
	assert.Equal(t, "rig-7", *snap.Devices[0].MinerID)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("", "")
	require.ErrorIs(t, err, errEmptyBaseURL)

	c, err := NewClient("localhost:8420/", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8420", c.baseURL)
}

func (f *fixture) raw(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	return rec
}

func TestOnboardTwiceIsConflict(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	first := &models.OnboardRequest{PortPath: "1-1.2", Serial: "A1", MinerID: "rig-7"}
	second := &models.OnboardRequest{PortPath: "1-1.2", Serial: "A1", MinerID: "rig-8"}

	gomock.InOrder(
		f.registry.EXPECT().OnboardStray(gomock.Any(), first).
			Return(&models.KnownMiner{ID: 7, MinerID: "rig-7", PortPath: "1-1.2", USBSerial: "A1"}, nil),
		f.registry.EXPECT().OnboardStray(gomock.Any(), second).
			Return(nil, &db.ConflictError{Field: "port_path/usb_serial", Value: "1-1.2|A1", Existing: "rig-7"}),
	)

	rec := f.do(t, http.MethodPost, "/api/v1/miners/onboard", first)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/miners/onboard", second)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeErr(t, rec).Code)
}

func TestEditMiner(t *testing.T) {
	loc := "rack 4"
	name := "rig-9"

	tests := []struct {
		name     string
		path     string
		body     interface{}
		expect   bool
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "updated",
			path:     "/api/v1/miners/7",
			body:     models.MinerEdit{MinerID: &name, LocationNotes: &loc},
			expect:   true,
			wantCode: http.StatusOK,
		},
		{
			name:     "duplicate miner id",
			path:     "/api/v1/miners/7",
			body:     models.MinerEdit{MinerID: &name},
			expect:   true,
			err:      &db.ConflictError{Field: "miner_id", Value: "rig-9", Existing: "rig-9"},
			wantCode: http.StatusConflict,
			wantErr:  "conflict",
		},
		{
			name:     "unknown miner",
			path:     "/api/v1/miners/7",
			body:     models.MinerEdit{LocationNotes: &loc},
			expect:   true,
			err:      fmt.Errorf("%w: miner 7", models.ErrNotFound),
			wantCode: http.StatusNotFound,
			wantErr:  "not_found",
		},
		{
			name:     "nothing to change",
			path:     "/api/v1/miners/7",
			body:     models.MinerEdit{},
			expect:   true,
			err:      db.ErrEmptyEdit,
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
		{
			name:     "bad id",
			path:     "/api/v1/miners/abc",
			body:     models.MinerEdit{LocationNotes: &loc},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
		{
			name:     "unknown field",
			path:     "/api/v1/miners/7",
			body:     map[string]string{"status": "Active"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{}, nil)

			if tt.expect {
				f.registry.EXPECT().EditMiner(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, edit models.MinerEdit) (*models.KnownMiner, error) {
						assert.Equal(t, int64(7), edit.ID)

						if tt.err != nil {
							return nil, tt.err
						}

						return &models.KnownMiner{ID: 7, MinerID: *edit.MinerID, LocationNotes: *edit.LocationNotes}, nil
					})
			}

			rec := f.do(t, http.MethodPut, tt.path, tt.body)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeErr(t, rec).Code)
				return
			}

			var got models.KnownMiner
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, "rig-9", got.MinerID)
			assert.Equal(t, "rack 4", got.LocationNotes)
		})
	}
}

func TestDeleteMiner(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	gomock.InOrder(
		f.registry.EXPECT().DeleteMiner(gomock.Any(), int64(7)).Return(nil),
		f.registry.EXPECT().DeleteMiner(gomock.Any(), int64(7)).
			Return(fmt.Errorf("%w: miner 7", models.ErrNotFound)),
	)

	rec := f.do(t, http.MethodDelete, "/api/v1/miners/7", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/v1/miners/7", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/miners/0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDismissStray(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	key := models.DeviceKey{PortPath: "1-1.4", Serial: "B2"}
	gomock.InOrder(
		f.registry.EXPECT().DeleteStray(gomock.Any(), key).Return(nil),
		f.registry.EXPECT().DeleteStray(gomock.Any(), key).
			Return(fmt.Errorf("%w: stray %s", models.ErrNotFound, key)),
	)

	body := dismissRequest{PortPath: "1-1.4", Serial: "B2"}

	rec := f.do(t, http.MethodPost, "/api/v1/strays/dismiss", body)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/strays/dismiss", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/strays/dismiss", dismissRequest{PortPath: "1-1.4"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportMiners(t *testing.T) {
	f := newFixture(t, Config{}, nil)

	f.registry.EXPECT().UpsertMiners(gomock.Any(), []models.KnownMiner{
		{MinerID: "rig-1", PortPath: "1-1.1", USBSerial: "S1", Chipset: "ESP32"},
		{MinerID: "rig-2", PortPath: "1-1.2", USBSerial: "S2"},
	}).Return(nil)

	rec := f.raw(t, http.MethodPost, "/api/v1/miners/import",
		"miner_id,port_path,usb_serial,chipset\nrig-1,1-1.1,S1,ESP32\nrig-2,1-1.2,S2,\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"imported":2}`, rec.Body.String())

	rec = f.raw(t, http.MethodPost, "/api/v1/miners/import", "miner_id,chipset\nrig-1,ESP32\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeErr(t, rec).Code)
}

func TestClientRegistryActions(t *testing.T) {
	f := newFixture(t, Config{APIKey: "k"}, nil)
	ts := httptest.NewServer(f.server.Handler())
	t.Cleanup(ts.Close)

	client, err := NewClient(ts.URL, "k")
	require.NoError(t, err)

	ctx := context.Background()
	loc := "shelf 3"

	f.registry.EXPECT().EditMiner(gomock.Any(), models.MinerEdit{ID: 7, LocationNotes: &loc}).
		Return(&models.KnownMiner{ID: 7, MinerID: "rig-7", LocationNotes: loc}, nil)
	f.registry.EXPECT().DeleteMiner(gomock.Any(), int64(8)).Return(nil)
	f.registry.EXPECT().DeleteStray(gomock.Any(), models.DeviceKey{PortPath: "1-1.4", Serial: "B2"}).Return(nil)
	f.registry.EXPECT().UpsertMiners(gomock.Any(), gomock.Len(1)).Return(nil)

	miner, err := client.EditMiner(ctx, models.MinerEdit{ID: 7, LocationNotes: &loc})
	require.NoError(t, err)
	assert.Equal(t, "shelf 3", miner.LocationNotes)

	require.NoError(t, client.DeleteMiner(ctx, 8))
	require.NoError(t, client.DismissStray(ctx, models.DeviceKey{PortPath: "1-1.4", Serial: "B2"}))

	n, err := client.ImportMiners(ctx, strings.NewReader("miner_id,port_path,attrs_serial\nrig-3,1-1.3,S3\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

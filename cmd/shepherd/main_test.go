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

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/reset"
)

func ptr[T any](v T) *T { return &v }

func sampleSnapshot() *models.Snapshot {
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	return &models.Snapshot{Devices: []models.ViewModel{
		{
			Type:          models.ViewTypeMiner,
			ID:            ptr(int64(1)),
			MinerID:       ptr("rig-01"),
			PortPath:      "1-1.2",
			Serial:        "A1",
			Status:        "Active",
			StateMsg:      "Actively Mining",
			DisplayStatus: models.DisplayOnline,
			LastSeen:      &seen,
			Summary:       map[string]string{models.KeyHashRate: "512.40", "Temperature": "41"},
		},
		{
			Type:          models.ViewTypeStray,
			PortPath:      "1-1.3",
			Serial:        "VID_303a_NOSERIAL",
			Status:        "Inactive",
			StateMsg:      "Detected",
			DisplayStatus: models.DisplayUnconfigured,
		},
	}}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := rootCmd()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return out.String(), err
}

func TestDeviceRows(t *testing.T) {
	rows := deviceRows(sampleSnapshot())
	require.Len(t, rows, 2)

	assert.Equal(t, "rig-01", rows[0][1])
	assert.Equal(t, "512.40", rows[0][6])
	assert.Equal(t, "41", rows[0][7])

	assert.Equal(t, "-", rows[1][1])
	assert.Equal(t, "-", rows[1][6])
	assert.Equal(t, "-", rows[1][8])
}

func TestRenderSnapshotShowsDegradedError(t *testing.T) {
	snap := sampleSnapshot()
	snap.Error = "DB Query Error: disk I/O error"

	out := renderSnapshot(snap)
	assert.Contains(t, out, "DB Query Error: disk I/O error")
	assert.Contains(t, out, "rig-01")
	assert.Contains(t, out, "VID_303a_NOSERIAL")

	assert.Contains(t, renderSnapshot(&models.Snapshot{}), "no devices attached")
}

func TestStatusReadsBothSnapshotShapes(t *testing.T) {
	dir := t.TempDir()

	bare, err := json.Marshal(sampleSnapshot().Devices)
	require.NoError(t, err)

	wrapped, err := json.Marshal(map[string]interface{}{
		"error":   "DB Connection Error: locked",
		"devices": sampleSnapshot().Devices,
	})
	require.NoError(t, err)

	for name, body := range map[string][]byte{"bare.json": bare, "wrapped.json": wrapped} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, body, 0o600))

		out, err := execute(t, "status", "--snapshot", path)
		require.NoError(t, err, name)
		assert.Contains(t, out, "rig-01", name)
	}
}

func TestStatusMissingSnapshot(t *testing.T) {
	_, err := execute(t, "status", "--snapshot", filepath.Join(t.TempDir(), "none.json"))
	require.Error(t, err)
}

func TestResetCommandPrintsPartialResult(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req reset.Request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "1-1.2", req.PortPath)
		if assert.NotNil(t, req.MinerDBID) {
			assert.Equal(t, int64(4), *req.MinerDBID)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"reset_id":     "r-1",
			"success":      false,
			"message":      "Reset of /dev/ttyACM0 failed",
			"chipset":      "ESP32",
			"config_found": false,
			"error":        "flashing tool timed out",
			"code":         "tool_timeout",
		})
	}))
	t.Cleanup(ts.Close)

	out, err := execute(t, "reset", "--api", ts.URL, "--port", "1-1.2", "--serial", "A1", "--miner-db-id", "4")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrTool)
	assert.Contains(t, out, "ESP32")
	assert.Contains(t, out, "r-1")
}

func TestOnboardRequiresFlags(t *testing.T) {
	_, err := execute(t, "onboard", "--port", "1-1.2")
	require.Error(t, err)
}

func TestMinersEditSendsOnlyChangedFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/miners/3", r.URL.Path)

		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"location_notes": ""}, body)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.KnownMiner{ID: 3, MinerID: "rig-03"})
	}))
	t.Cleanup(ts.Close)

	out, err := execute(t, "miners", "edit", "3", "--api", ts.URL, "--location", "")
	require.NoError(t, err)
	assert.Contains(t, out, "updated rig-03")
}

func TestMinersEditNeedsAChange(t *testing.T) {
	_, err := execute(t, "miners", "edit", "3", "--api", "127.0.0.1:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to change")

	_, err = execute(t, "miners", "edit", "x", "--location", "a")
	require.Error(t, err)
}

func TestMinersDeleteMapsNotFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"miner 9: not found","code":"not_found"}`))
	}))
	t.Cleanup(ts.Close)

	_, err := execute(t, "miners", "delete", "9", "--api", ts.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMinersImportUploadsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.csv")
	require.NoError(t, os.WriteFile(path, []byte("miner_id,port_path,usb_serial\nrig-1,1-1.1,S1\n"), 0o600))

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/miners/import", r.URL.Path)
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"imported":1}`))
	}))
	t.Cleanup(ts.Close)

	out, err := execute(t, "miners", "import", path, "--api", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 miners")
}

func TestStraysDismiss(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"port_path": "1-1.3", "serial_number": "B2"}, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)

	out, err := execute(t, "strays", "dismiss", "--api", ts.URL, "--port", "1-1.3", "--serial", "B2")
	require.NoError(t, err)
	assert.Contains(t, out, "1-1.3")
}

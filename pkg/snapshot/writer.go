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

// Package snapshot publishes the DeviceStateSnapshot: an atomically replaced
// JSON file and an optional NATS subject.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
)

var errEmptySnapshot = errors.New("snapshot document is empty")

// Encode renders the snapshot as a bare array, or as {error, devices} when
// the snapshot is degraded.
func Encode(snap *models.Snapshot) ([]byte, error) {
	devices := snap.Devices
	if devices == nil {
		devices = []models.ViewModel{}
	}

	if snap.Error == "" {
		return json.MarshalIndent(devices, "", "  ")
	}

	return json.MarshalIndent(&models.Snapshot{Error: snap.Error, Devices: devices}, "", "  ")
}

// Decode accepts either snapshot shape.
func Decode(data []byte) (*models.Snapshot, error) {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			var devices []models.ViewModel
			if err := json.Unmarshal(data, &devices); err != nil {
				return nil, fmt.Errorf("decode snapshot: %w", err)
			}

			return &models.Snapshot{Devices: devices}, nil
		default:
			var snap models.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("decode snapshot: %w", err)
			}

			return &snap, nil
		}
	}

	return nil, errEmptySnapshot
}

// Writer replaces the snapshot file with write-to-temp then rename, so
// readers never observe a partial document.
type Writer struct {
	path   string
	logger logger.Logger
}

func NewWriter(path string, log logger.Logger) *Writer {
	return &Writer{path: path, logger: log}
}

func (w *Writer) Path() string { return w.path }

func (w *Writer) Write(snap *models.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}

	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()

		return fmt.Errorf("write temp snapshot: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()

		return fmt.Errorf("sync temp snapshot: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		w.logger.Debug().Err(err).Msg("Could not chmod snapshot")
	}

	if err := os.Rename(tmpName, w.path); err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("replace snapshot: %w", err)
	}

	return nil
}

// ReadFile loads a published snapshot.
func ReadFile(path string) (*models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Decode(data)
}

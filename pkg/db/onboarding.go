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

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

// OnboardStray promotes the stray at req's key to a KnownMiner and deletes
// the stray row, all in one transaction. Captured stray data is copied over.
func (db *DB) OnboardStray(ctx context.Context, req *models.OnboardRequest) (*models.KnownMiner, error) {
	minerID := strings.TrimSpace(req.MinerID)
	if minerID == "" {
		return nil, ErrMinerIDRequired
	}

	if req.PortPath == "" || req.Serial == "" {
		return nil, ErrDeviceKeyMissing
	}

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", ErrDatabaseError, classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	key := models.DeviceKey{PortPath: req.PortPath, Serial: req.Serial}

	stray, err := getStray(ctx, tx, key)
	if errors.Is(err, models.ErrNotFound) {
		// An already onboarded device has no stray row left.
		if cerr := keyConflict(ctx, tx, key); cerr != nil {
			return nil, cerr
		}
	}

	if err != nil {
		return nil, err
	}

	if err := checkOnboardConflicts(ctx, tx, minerID, key, stray.MACAddress); err != nil {
		return nil, err
	}

	miner := &models.KnownMiner{
		MinerID:         minerID,
		PortPath:        stray.PortPath,
		USBSerial:       stray.Serial,
		DevPath:         stray.DevPath,
		VendorID:        stray.VendorID,
		ProductID:       stray.ProductID,
		MACAddress:      stray.MACAddress,
		Chipset:         stray.Chipset,
		PoolURL:         stray.PoolURL,
		WalletAddress:   stray.WalletAddress,
		FirmwareVersion: stray.FirmwareVersion,
		LocationNotes:   strings.TrimSpace(req.LocationNotes),
		Status:          models.StatusInactive,
		State:           models.StateOnboardedInactive,
	}

	if stray.HasCapturedData() {
		miner.Status = models.StatusActive
		miner.State = models.StateOnboardedActive
	}

	now := time.Now().UTC()
	miner.LastSeen = &now

	res, err := tx.ExecContext(ctx, `
		INSERT INTO miners (miner_id, port_path, usb_serial, dev_path, vendor_id, product_id, mac_address,
			chipset, pool_url, wallet_address, firmware_version, location_notes, status, state, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		miner.MinerID, miner.PortPath, miner.USBSerial, nullString(miner.DevPath), nullString(miner.VendorID),
		nullString(miner.ProductID), nullString(miner.MACAddress), nullString(miner.Chipset),
		nullString(miner.PoolURL), nullString(miner.WalletAddress), nullString(miner.FirmwareVersion),
		nullString(miner.LocationNotes), string(miner.Status), miner.State, formatTime(now))
	if err != nil {
		return nil, uniqueConflict(err, miner)
	}

	if miner.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedToInsert, err)
	}

	if err := deleteStrays(ctx, tx, []models.DeviceKey{key}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrDatabaseError, classify(err))
	}

	db.logger.Info().
		Str("miner_id", miner.MinerID).
		Int64("id", miner.ID).
		Str("port", miner.PortPath).
		Str("serial", miner.USBSerial).
		Str("status", string(miner.Status)).
		Msg("Onboarded stray device")

	return miner, nil
}

func checkOnboardConflicts(ctx context.Context, q queryRower, minerID string, key models.DeviceKey, mac string) error {
	if err := existingMiner(ctx, q, "miner_id", minerID,
		`SELECT miner_id FROM miners WHERE miner_id = ?`, minerID); err != nil {
		return err
	}

	if err := keyConflict(ctx, q, key); err != nil {
		return err
	}

	if mac == "" {
		return nil
	}

	return existingMiner(ctx, q, "mac_address", mac,
		`SELECT miner_id FROM miners WHERE mac_address = ?`, mac)
}

func keyConflict(ctx context.Context, q queryRower, key models.DeviceKey) error {
	return existingMiner(ctx, q, "port_path/usb_serial", key.String(),
		`SELECT miner_id FROM miners WHERE port_path = ? AND usb_serial = ?`, key.PortPath, key.Serial)
}

// existingMiner returns a ConflictError naming the miner matched by query,
// or nil when no row matches.
func existingMiner(ctx context.Context, q queryRower, field, value, query string, args ...interface{}) error {
	var existing string

	err := q.QueryRowContext(ctx, query, args...).Scan(&existing)
	if err == nil {
		return &ConflictError{Field: field, Value: value, Existing: existing}
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", ErrFailedToQuery, classify(err))
	}

	return nil
}

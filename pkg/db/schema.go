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
	"fmt"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS miners (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		miner_id TEXT NOT NULL UNIQUE,
		port_path TEXT NOT NULL,
		usb_serial TEXT NOT NULL,
		dev_path TEXT,
		vendor_id TEXT,
		product_id TEXT,
		mac_address TEXT UNIQUE,
		chipset TEXT,
		pool_url TEXT,
		wallet_address TEXT,
		firmware_version TEXT,
		location_notes TEXT,
		status TEXT NOT NULL DEFAULT 'Inactive',
		state TEXT NOT NULL DEFAULT '',
		last_seen TEXT,
		UNIQUE (port_path, usb_serial)
	)`,
	`CREATE TABLE IF NOT EXISTS stray_devices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		port_path TEXT NOT NULL,
		serial_number TEXT NOT NULL,
		dev_path TEXT,
		vendor_id TEXT,
		product_id TEXT,
		mac_address TEXT,
		chipset TEXT,
		pool_url TEXT,
		wallet_address TEXT,
		firmware_version TEXT,
		status TEXT NOT NULL DEFAULT 'Inactive',
		state TEXT NOT NULL DEFAULT '',
		discovered_at TEXT NOT NULL,
		UNIQUE (port_path, serial_number)
	)`,
	`CREATE TABLE IF NOT EXISTS miner_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		miner_id INTEGER NOT NULL REFERENCES miners(id) ON DELETE CASCADE,
		log_key TEXT NOT NULL,
		log_value TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_miner_logs_miner_created ON miner_logs (miner_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS miner_summary (
		miner_id INTEGER PRIMARY KEY REFERENCES miners(id) ON DELETE CASCADE,
		khs TEXT,
		temperature TEXT,
		valid_blocks TEXT,
		best_difficulty TEXT,
		total_mhashes TEXT,
		submits TEXT,
		shares TEXT,
		time_mining TEXT,
		block_templates TEXT,
		last_mhashes_cumulative REAL,
		last_mhashes_timestamp TEXT,
		last_updated TEXT
	)`,
}

// summaryColumns maps tracked telemetry keys to miner_summary columns.
var summaryColumns = map[string]string{
	"KH/s":            "khs",
	"Temperature":     "temperature",
	"Valid blocks":    "valid_blocks",
	"Best difficulty": "best_difficulty",
	"Total MHashes":   "total_mhashes",
	"Submits":         "submits",
	"Shares":          "shares",
	"Time mining":     "time_mining",
	"Block templates": "block_templates",
}

func migrate(ctx context.Context, conn *sql.DB) error {
	var version int
	if err := conn.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("%w: read schema version: %w", ErrFailedToInit, err)
	}

	if version >= schemaVersion {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %w", ErrFailedToInit, err)
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return fmt.Errorf("%w: set schema version: %w", ErrFailedToInit, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToInit, err)
	}

	return nil
}

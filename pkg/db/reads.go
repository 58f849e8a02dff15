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

	"github.com/carverauto/shepherd/pkg/models"
)

const minerColumns = `id, miner_id, port_path, usb_serial, dev_path, vendor_id, product_id,
	mac_address, chipset, pool_url, wallet_address, firmware_version, location_notes,
	status, state, last_seen`

const strayColumns = `id, port_path, serial_number, dev_path, vendor_id, product_id,
	mac_address, chipset, pool_url, wallet_address, firmware_version, status, state, discovered_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMiner(row rowScanner) (models.KnownMiner, error) {
	var (
		m                                            models.KnownMiner
		devPath, vendor, product, mac, chipset, pool sql.NullString
		wallet, firmware, notes, lastSeen            sql.NullString
		status                                       string
	)

	err := row.Scan(&m.ID, &m.MinerID, &m.PortPath, &m.USBSerial, &devPath, &vendor, &product,
		&mac, &chipset, &pool, &wallet, &firmware, &notes, &status, &m.State, &lastSeen)
	if err != nil {
		return m, err
	}

	m.DevPath = devPath.String
	m.VendorID = vendor.String
	m.ProductID = product.String
	m.MACAddress = mac.String
	m.Chipset = chipset.String
	m.PoolURL = pool.String
	m.WalletAddress = wallet.String
	m.FirmwareVersion = firmware.String
	m.LocationNotes = notes.String
	m.Status = models.MinerStatus(status)
	m.LastSeen = parseTime(lastSeen)

	return m, nil
}

func scanStray(row rowScanner) (models.StrayDevice, error) {
	var (
		s                                            models.StrayDevice
		devPath, vendor, product, mac, chipset, pool sql.NullString
		wallet, firmware, discovered                 sql.NullString
		status                                       string
	)

	err := row.Scan(&s.ID, &s.PortPath, &s.Serial, &devPath, &vendor, &product,
		&mac, &chipset, &pool, &wallet, &firmware, &status, &s.State, &discovered)
	if err != nil {
		return s, err
	}

	s.DevPath = devPath.String
	s.VendorID = vendor.String
	s.ProductID = product.String
	s.MACAddress = mac.String
	s.Chipset = chipset.String
	s.PoolURL = pool.String
	s.WalletAddress = wallet.String
	s.FirmwareVersion = firmware.String
	s.Status = models.MinerStatus(status)

	if t := parseTime(discovered); t != nil {
		s.DiscoveredAt = *t
	}

	return s, nil
}

func (db *DB) ReadKnownMiners(ctx context.Context) ([]models.KnownMiner, error) {
	rows, err := db.reader.QueryContext(ctx, `SELECT `+minerColumns+` FROM miners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: miners: %w", ErrFailedToQuery, classify(err))
	}
	defer func() { _ = rows.Close() }()

	var miners []models.KnownMiner

	for rows.Next() {
		m, err := scanMiner(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: miner: %w", ErrFailedToScan, err)
		}

		miners = append(miners, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: miners: %w", ErrFailedToQuery, classify(err))
	}

	return miners, nil
}

func (db *DB) ReadStrayDevices(ctx context.Context) ([]models.StrayDevice, error) {
	rows, err := db.reader.QueryContext(ctx, `SELECT `+strayColumns+` FROM stray_devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: strays: %w", ErrFailedToQuery, classify(err))
	}
	defer func() { _ = rows.Close() }()

	var strays []models.StrayDevice

	for rows.Next() {
		s, err := scanStray(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: stray: %w", ErrFailedToScan, err)
		}

		strays = append(strays, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: strays: %w", ErrFailedToQuery, classify(err))
	}

	return strays, nil
}

func (db *DB) GetMiner(ctx context.Context, id int64) (*models.KnownMiner, error) {
	row := db.reader.QueryRowContext(ctx, `SELECT `+minerColumns+` FROM miners WHERE id = ?`, id)

	m, err := scanMiner(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("miner %d: %w", id, models.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: miner %d: %w", ErrFailedToQuery, id, classify(err))
	}

	return &m, nil
}

func (db *DB) GetStray(ctx context.Context, key models.DeviceKey) (*models.StrayDevice, error) {
	return getStray(ctx, db.reader, key)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getStray(ctx context.Context, q queryRower, key models.DeviceKey) (*models.StrayDevice, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+strayColumns+` FROM stray_devices WHERE port_path = ? AND serial_number = ?`,
		key.PortPath, key.Serial)

	s, err := scanStray(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stray %s: %w", key, models.ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: stray %s: %w", ErrFailedToQuery, key, classify(err))
	}

	return &s, nil
}

// ReadSummaries returns the summary row of every miner that has one.
func (db *DB) ReadSummaries(ctx context.Context) (map[int64]models.SummaryMetrics, error) {
	keys := make([]string, 0, len(models.TrackedKeys))
	cols := make([]string, 0, len(models.TrackedKeys))

	for _, k := range models.TrackedKeys {
		keys = append(keys, k)
		cols = append(cols, summaryColumns[k])
	}

	query := `SELECT miner_id, ` + strings.Join(cols, ", ") +
		`, last_mhashes_cumulative, last_mhashes_timestamp, last_updated FROM miner_summary`

	rows, err := db.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: summaries: %w", ErrFailedToQuery, classify(err))
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int64]models.SummaryMetrics)

	for rows.Next() {
		var (
			minerID       int64
			values        = make([]sql.NullString, len(cols))
			lastMHashes   sql.NullFloat64
			lastMHashesAt sql.NullString
			lastUpdated   sql.NullString
		)

		dest := make([]interface{}, 0, len(cols)+4)
		dest = append(dest, &minerID)

		for i := range values {
			dest = append(dest, &values[i])
		}

		dest = append(dest, &lastMHashes, &lastMHashesAt, &lastUpdated)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: summary: %w", ErrFailedToScan, err)
		}

		summary := models.SummaryMetrics{MinerID: minerID, Values: make(map[string]string, len(keys))}

		for i, k := range keys {
			if values[i].Valid {
				summary.Values[k] = values[i].String
			}
		}

		if lastMHashes.Valid {
			v := lastMHashes.Float64
			summary.LastMHashes = &v
		}

		summary.LastMHashesAt = parseTime(lastMHashesAt)

		if t := parseTime(lastUpdated); t != nil {
			summary.LastUpdated = *t
		}

		out[minerID] = summary
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: summaries: %w", ErrFailedToQuery, classify(err))
	}

	return out, nil
}

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

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ApplyBatch commits every intent in batch inside one transaction. Either all
// intents apply or none do.
func (db *DB) ApplyBatch(ctx context.Context, batch *Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrDatabaseError, classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()

	steps := []func() error{
		func() error { return registerStrays(ctx, tx, batch.Strays, now) },
		func() error { return upsertMiners(ctx, tx, batch.Miners) },
		func() error { return editMiners(ctx, tx, batch.MinerEdits) },
		func() error { return updateStatuses(ctx, tx, batch.Statuses, now) },
		func() error { return recordMinerCaptures(ctx, tx, batch.MinerCaptures) },
		func() error { return recordStrayCaptures(ctx, tx, batch.StrayCaptures, now) },
		func() error { return updateStrayStates(ctx, tx, batch.StrayStates) },
		func() error { return deleteStrays(ctx, tx, batch.StrayDeletes) },
		func() error { return appendTelemetry(ctx, tx, batch.Telemetry) },
		func() error { return upsertSummaries(ctx, tx, batch.Summaries, now) },
		func() error { return deleteMiners(ctx, tx, batch.MinerDeletes) },
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrDatabaseError, classify(err))
	}

	return nil
}

func registerStrays(ctx context.Context, tx execer, strays []models.StrayDevice, now time.Time) error {
	for i := range strays {
		s := &strays[i]

		if s.PortPath == "" || s.Serial == "" {
			return ErrDeviceKeyMissing
		}

		discovered := s.DiscoveredAt
		if discovered.IsZero() {
			discovered = now
		}

		status := s.Status
		if status == "" {
			status = models.StatusInactive
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO stray_devices (port_path, serial_number, dev_path, vendor_id, product_id, status, state, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (port_path, serial_number) DO UPDATE SET dev_path = excluded.dev_path`,
			s.PortPath, s.Serial, nullString(s.DevPath), nullString(s.VendorID), nullString(s.ProductID),
			string(status), s.State, formatTime(discovered))
		if err != nil {
			return fmt.Errorf("%w: stray %s: %w", ErrFailedToInsert, s.Key(), classify(err))
		}
	}

	return nil
}

// upsertMiners inserts or updates miners keyed by miner_id. An existing row
// keeps its status and state; empty optional fields keep stored values.
func upsertMiners(ctx context.Context, tx execer, miners []models.KnownMiner) error {
	for i := range miners {
		m := &miners[i]

		if m.MinerID == "" {
			return ErrMinerIDRequired
		}

		if m.PortPath == "" || m.USBSerial == "" {
			return ErrDeviceKeyMissing
		}

		status := m.Status
		if status == "" {
			status = models.StatusInactive
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO miners (miner_id, port_path, usb_serial, dev_path, vendor_id, product_id,
				mac_address, chipset, pool_url, wallet_address, firmware_version, location_notes, status, state)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (miner_id) DO UPDATE SET
				port_path = excluded.port_path,
				usb_serial = excluded.usb_serial,
				dev_path = COALESCE(excluded.dev_path, dev_path),
				vendor_id = COALESCE(excluded.vendor_id, vendor_id),
				product_id = COALESCE(excluded.product_id, product_id),
				mac_address = COALESCE(excluded.mac_address, mac_address),
				chipset = COALESCE(excluded.chipset, chipset),
				pool_url = COALESCE(excluded.pool_url, pool_url),
				wallet_address = COALESCE(excluded.wallet_address, wallet_address),
				firmware_version = COALESCE(excluded.firmware_version, firmware_version),
				location_notes = COALESCE(excluded.location_notes, location_notes)`,
			m.MinerID, m.PortPath, m.USBSerial, nullString(m.DevPath), nullString(m.VendorID), nullString(m.ProductID),
			nullString(m.MACAddress), nullString(m.Chipset), nullString(m.PoolURL), nullString(m.WalletAddress),
			nullString(m.FirmwareVersion), nullString(m.LocationNotes), string(status), m.State)
		if err != nil {
			return uniqueConflict(err, m)
		}
	}

	return nil
}

// editMiners applies operator edits by row id. A rename is rejected when
// another miner already uses the id.
func editMiners(ctx context.Context, tx *sql.Tx, edits []models.MinerEdit) error {
	for _, e := range edits {
		var (
			sets []string
			args []interface{}
		)

		if e.MinerID != nil {
			minerID := strings.TrimSpace(*e.MinerID)
			if minerID == "" {
				return ErrMinerIDRequired
			}

			if err := existingMiner(ctx, tx, "miner_id", minerID,
				`SELECT miner_id FROM miners WHERE miner_id = ? AND id != ?`, minerID, e.ID); err != nil {
				return err
			}

			sets = append(sets, "miner_id = ?")
			args = append(args, minerID)
		}

		for _, f := range []struct {
			column string
			value  *string
		}{
			{"chipset", e.Chipset},
			{"firmware_version", e.FirmwareVersion},
			{"location_notes", e.LocationNotes},
		} {
			if f.value != nil {
				sets = append(sets, f.column+" = ?")
				args = append(args, nullString(strings.TrimSpace(*f.value)))
			}
		}

		if len(sets) == 0 {
			return ErrEmptyEdit
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE miners SET `+strings.Join(sets, ", ")+` WHERE id = ?`, append(args, e.ID)...)
		if err != nil {
			return fmt.Errorf("%w: edit miner %d: %w", ErrDatabaseError, e.ID, classify(err))
		}

		if err := requireRow(res, "miner", e.ID); err != nil {
			return err
		}
	}

	return nil
}

// deleteMiners removes miners together with their telemetry and summary.
func deleteMiners(ctx context.Context, tx execer, ids []int64) error {
	for _, id := range ids {
		for _, table := range []string{"miner_logs", "miner_summary"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE miner_id = ?`, id); err != nil {
				return fmt.Errorf("%w: delete %s of miner %d: %w", ErrDatabaseError, table, id, classify(err))
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM miners WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("%w: delete miner %d: %w", ErrDatabaseError, id, classify(err))
		}

		if err := requireRow(res, "miner", id); err != nil {
			return err
		}
	}

	return nil
}

func requireRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDatabaseError, err)
	}

	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, models.ErrNotFound)
	}

	return nil
}

// uniqueConflict turns a UNIQUE violation into a ConflictError naming the field.
func uniqueConflict(err error, m *models.KnownMiner) error {
	err = classify(err)
	if !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("%w: miner %s: %w", ErrFailedToInsert, m.MinerID, err)
	}

	msg := err.Error()

	switch {
	case strings.Contains(msg, "miners.mac_address"):
		return &ConflictError{Field: "mac_address", Value: m.MACAddress}
	case strings.Contains(msg, "miners.port_path"), strings.Contains(msg, "miners.usb_serial"):
		return &ConflictError{Field: "port_path/usb_serial", Value: m.Key().String()}
	default:
		return &ConflictError{Field: "miner_id", Value: m.MinerID}
	}
}

func guardClause(g Guard) (string, []interface{}, error) {
	switch g {
	case GuardNone:
		return "", nil, nil
	case GuardManaged:
		return ` AND status IN (?, ?)`, []interface{}{string(models.StatusActive), string(models.StatusOffline)}, nil
	case GuardResetting:
		return ` AND status = ?`, []interface{}{string(models.StatusResetting)}, nil
	default:
		return "", nil, ErrUnknownGuard
	}
}

func updateStatuses(ctx context.Context, tx execer, updates []StatusUpdate, now time.Time) error {
	for _, u := range updates {
		guard, guardArgs, err := guardClause(u.Guard)
		if err != nil {
			return err
		}

		query := `UPDATE miners SET status = ?, state = ?`
		args := []interface{}{string(u.Status), u.State}

		if u.Touch {
			query += `, last_seen = ?`

			args = append(args, formatTime(now))
		}

		query += ` WHERE id = ?` + guard
		args = append(args, u.MinerID)
		args = append(args, guardArgs...)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: status for miner %d: %w", ErrDatabaseError, u.MinerID, classify(err))
		}
	}

	return nil
}

func recordMinerCaptures(ctx context.Context, tx execer, captures []MinerCapture) error {
	for _, c := range captures {
		query := `UPDATE miners SET
			mac_address = COALESCE(?, mac_address),
			chipset = COALESCE(?, chipset)`
		args := []interface{}{nullString(c.MAC), nullString(c.Chipset)}

		if c.Config != nil {
			query += `, pool_url = COALESCE(?, pool_url),
				wallet_address = COALESCE(?, wallet_address),
				firmware_version = COALESCE(?, firmware_version)`

			args = append(args, nullString(c.Config.PoolURL), nullString(c.Config.WalletAddress),
				nullString(c.Config.FirmwareVersion))
		}

		query += ` WHERE id = ?`
		args = append(args, c.MinerID)

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			err = classify(err)
			if errors.Is(err, models.ErrConflict) {
				return &ConflictError{Field: "mac_address", Value: c.MAC}
			}

			return fmt.Errorf("%w: capture for miner %d: %w", ErrDatabaseError, c.MinerID, err)
		}
	}

	return nil
}

func recordStrayCaptures(ctx context.Context, tx execer, captures []StrayCapture, now time.Time) error {
	for _, c := range captures {
		dev := c.Device
		if dev.PortPath == "" || dev.Serial == "" {
			return ErrDeviceKeyMissing
		}

		var pool, wallet, firmware sql.NullString
		if c.Config != nil {
			pool = nullString(c.Config.PoolURL)
			wallet = nullString(c.Config.WalletAddress)
			firmware = nullString(c.Config.FirmwareVersion)
		}

		status := c.Status
		if status == "" {
			status = models.StatusInactive
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO stray_devices (port_path, serial_number, dev_path, vendor_id, product_id,
				mac_address, chipset, pool_url, wallet_address, firmware_version, status, state, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (port_path, serial_number) DO UPDATE SET
				dev_path = COALESCE(excluded.dev_path, dev_path),
				mac_address = COALESCE(excluded.mac_address, mac_address),
				chipset = COALESCE(excluded.chipset, chipset),
				pool_url = COALESCE(excluded.pool_url, pool_url),
				wallet_address = COALESCE(excluded.wallet_address, wallet_address),
				firmware_version = COALESCE(excluded.firmware_version, firmware_version),
				status = excluded.status,
				state = excluded.state`,
			dev.PortPath, dev.Serial, nullString(dev.NodePath), nullString(dev.VendorID), nullString(dev.ProductID),
			nullString(c.MAC), nullString(c.Chipset), pool, wallet, firmware,
			string(status), c.State, formatTime(now))
		if err != nil {
			return fmt.Errorf("%w: capture for stray %s: %w", ErrDatabaseError, dev.Key(), classify(err))
		}
	}

	return nil
}

func updateStrayStates(ctx context.Context, tx execer, states []StrayState) error {
	for _, s := range states {
		_, err := tx.ExecContext(ctx,
			`UPDATE stray_devices SET state = ? WHERE port_path = ? AND serial_number = ?`,
			s.State, s.Key.PortPath, s.Key.Serial)
		if err != nil {
			return fmt.Errorf("%w: state for stray %s: %w", ErrDatabaseError, s.Key, classify(err))
		}
	}

	return nil
}

func deleteStrays(ctx context.Context, tx execer, keys []models.DeviceKey) error {
	for _, k := range keys {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM stray_devices WHERE port_path = ? AND serial_number = ?`, k.PortPath, k.Serial)
		if err != nil {
			return fmt.Errorf("%w: delete stray %s: %w", ErrDatabaseError, k, classify(err))
		}
	}

	return nil
}

// appendTelemetry inserts the samples and bumps last_seen of each miner to
// its newest sample.
func appendTelemetry(ctx context.Context, tx execer, samples []models.TelemetrySample) error {
	latest := make(map[int64]time.Time)

	for _, s := range samples {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO miner_logs (miner_id, log_key, log_value, created_at) VALUES (?, ?, ?, ?)`,
			s.MinerID, s.Key, s.Value, formatTime(s.Timestamp))
		if err != nil {
			return fmt.Errorf("%w: telemetry for miner %d: %w", ErrFailedToInsert, s.MinerID, classify(err))
		}

		if s.Timestamp.After(latest[s.MinerID]) {
			latest[s.MinerID] = s.Timestamp
		}
	}

	for minerID, ts := range latest {
		_, err := tx.ExecContext(ctx,
			`UPDATE miners SET last_seen = ? WHERE id = ? AND (last_seen IS NULL OR last_seen < ?)`,
			formatTime(ts), minerID, formatTime(ts))
		if err != nil {
			return fmt.Errorf("%w: last_seen for miner %d: %w", ErrDatabaseError, minerID, classify(err))
		}
	}

	return nil
}

// upsertSummaries ensures a summary row exists and overwrites only the
// columns present in each update.
func upsertSummaries(ctx context.Context, tx execer, summaries []models.SummaryMetrics, now time.Time) error {
	for _, s := range summaries {
		updated := s.LastUpdated
		if updated.IsZero() {
			updated = now
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO miner_summary (miner_id, last_updated) VALUES (?, ?) ON CONFLICT (miner_id) DO NOTHING`,
			s.MinerID, formatTime(updated)); err != nil {
			return fmt.Errorf("%w: summary for miner %d: %w", ErrFailedToInsert, s.MinerID, classify(err))
		}

		sets := []string{"last_updated = ?"}
		args := []interface{}{formatTime(updated)}

		for _, key := range models.TrackedKeys {
			value, ok := s.Values[key]
			if !ok {
				continue
			}

			sets = append(sets, summaryColumns[key]+" = ?")
			args = append(args, value)
		}

		if s.LastMHashes != nil {
			sets = append(sets, "last_mhashes_cumulative = ?")
			args = append(args, *s.LastMHashes)
		}

		if s.LastMHashesAt != nil {
			sets = append(sets, "last_mhashes_timestamp = ?")
			args = append(args, formatTime(*s.LastMHashesAt))
		}

		args = append(args, s.MinerID)

		if _, err := tx.ExecContext(ctx,
			`UPDATE miner_summary SET `+strings.Join(sets, ", ")+` WHERE miner_id = ?`, args...); err != nil {
			return fmt.Errorf("%w: summary for miner %d: %w", ErrDatabaseError, s.MinerID, classify(err))
		}
	}

	return nil
}

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
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/carverauto/shepherd/pkg/logger"
	"github.com/carverauto/shepherd/pkg/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	busyTimeoutMillis = 5000
	readerConns       = 2
	timeLayout        = "2006-01-02T15:04:05.000000000Z07:00"
)

// Config locates the registry database.
type Config struct {
	Path string `json:"path" yaml:"path"`
}

// DB is the SQLite registry. Writes go through a single-connection handle;
// reads use a separate pool so they never wait on the writer (WAL mode).
type DB struct {
	writer *sql.DB
	reader *sql.DB
	logger logger.Logger
}

var _ Service = (*DB)(nil)

// New opens (creating if needed) the database at path and applies the schema.
func New(ctx context.Context, path string, log logger.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create store directory: %w", ErrFailedOpenDB, err)
	}

	writer, err := openHandle(path, true)
	if err != nil {
		return nil, err
	}

	writer.SetMaxOpenConns(1)

	if err := migrate(ctx, writer); err != nil {
		_ = writer.Close()

		return nil, err
	}

	reader, err := openHandle(path, false)
	if err != nil {
		_ = writer.Close()

		return nil, err
	}

	reader.SetMaxOpenConns(readerConns)

	log.Info().Str("path", path).Msg("Opened miner registry")

	return &DB{writer: writer, reader: reader, logger: log}, nil
}

func openHandle(path string, write bool) (*sql.DB, error) {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")

	if write {
		q.Set("_txlock", "immediate")
	}

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedOpenDB, err)
	}

	return db, nil
}

func (db *DB) Close() error {
	if db == nil {
		return nil
	}

	return errors.Join(db.reader.Close(), db.writer.Close())
}

// classify maps driver errors onto the shared result codes.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}

	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_FULL:
		return fmt.Errorf("%w: %w", models.ErrTransient, err)
	case sqlite3.SQLITE_CONSTRAINT:
		if se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return fmt.Errorf("%w: %w", models.ErrConflict, err)
		}
	}

	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}

	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return nil
	}

	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

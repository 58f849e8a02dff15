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
	"errors"
	"fmt"

	"github.com/carverauto/shepherd/pkg/models"
)

var (

	// Core database errors.

	ErrDatabaseError = errors.New("database error")
	ErrFailedOpenDB  = errors.New("failed to open database")
	ErrFailedToInit  = errors.New("failed to initialize schema")

	// Operation errors.

	ErrFailedToScan   = errors.New("failed to scan")
	ErrFailedToQuery  = errors.New("failed to query")
	ErrFailedToInsert = errors.New("failed to insert")

	// Validation errors.

	ErrMinerIDRequired  = errors.New("miner id is required")
	ErrDeviceKeyMissing = errors.New("port path and serial number are required")
	ErrUnknownGuard     = errors.New("unknown status guard")
	ErrEmptyEdit        = errors.New("miner edit changes no fields")
)

// ConflictError reports a uniqueness violation on onboarding or miner upsert.
type ConflictError struct {
	Field    string
	Value    string
	Existing string
}

func (e *ConflictError) Error() string {
	if e.Existing == "" {
		return fmt.Sprintf("%s %q already in use", e.Field, e.Value)
	}

	return fmt.Sprintf("%s %q already in use by miner %q", e.Field, e.Value, e.Existing)
}

func (*ConflictError) Unwrap() error {
	return models.ErrConflict
}

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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/carverauto/shepherd/pkg/models"
)

var (
	errCSVEmpty        = errors.New("csv has no header row")
	errCSVMissingField = errors.New("csv header is missing a required column")
)

// minerColumns maps accepted CSV header names to KnownMiner fields. The
// attrs_* and nerdminer_vrs names are the udev attribute spellings older
// inventory exports use.
var minerColumns = map[string]func(m *models.KnownMiner, v string){
	"miner_id":         func(m *models.KnownMiner, v string) { m.MinerID = v },
	"port_path":        func(m *models.KnownMiner, v string) { m.PortPath = v },
	"usb_serial":       func(m *models.KnownMiner, v string) { m.USBSerial = v },
	"attrs_serial":     func(m *models.KnownMiner, v string) { m.USBSerial = v },
	"vendor_id":        func(m *models.KnownMiner, v string) { m.VendorID = v },
	"attrs_idvendor":   func(m *models.KnownMiner, v string) { m.VendorID = v },
	"product_id":       func(m *models.KnownMiner, v string) { m.ProductID = v },
	"attrs_idproduct":  func(m *models.KnownMiner, v string) { m.ProductID = v },
	"chipset":          func(m *models.KnownMiner, v string) { m.Chipset = v },
	"firmware_version": func(m *models.KnownMiner, v string) { m.FirmwareVersion = v },
	"nerdminer_vrs":    func(m *models.KnownMiner, v string) { m.FirmwareVersion = v },
	"location_notes":   func(m *models.KnownMiner, v string) { m.LocationNotes = v },
	"mac_address":      func(m *models.KnownMiner, v string) { m.MACAddress = v },
}

var requiredColumns = [][]string{
	{"miner_id"},
	{"port_path"},
	{"usb_serial", "attrs_serial"},
}

// ParseMinerCSV reads a header-keyed miner inventory. Unknown columns are
// ignored and blank lines skipped.
func ParseMinerCSV(r io.Reader) ([]models.KnownMiner, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errCSVEmpty
	}

	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	setters := make([]func(*models.KnownMiner, string), len(header))
	seen := make(map[string]bool, len(header))

	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		seen[name] = true
		setters[i] = minerColumns[name]
	}

	for _, alts := range requiredColumns {
		if !anySeen(seen, alts) {
			return nil, fmt.Errorf("%w: %s", errCSVMissingField, alts[0])
		}
	}

	var miners []models.KnownMiner

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}

		var m models.KnownMiner

		for i, v := range rec {
			if i < len(setters) && setters[i] != nil {
				setters[i](&m, strings.TrimSpace(v))
			}
		}

		if m.MinerID == "" && m.PortPath == "" && m.USBSerial == "" {
			continue
		}

		line, _ := cr.FieldPos(0)
		if m.MinerID == "" || m.PortPath == "" || m.USBSerial == "" {
			return nil, fmt.Errorf("line %d: miner_id, port_path and usb_serial must be set", line)
		}

		miners = append(miners, m)
	}

	return miners, nil
}

func anySeen(seen map[string]bool, names []string) bool {
	for _, n := range names {
		if seen[n] {
			return true
		}
	}

	return false
}

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

package reset

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
	"github.com/carverauto/shepherd/pkg/serialport"
)

var errNoConfig = errors.New("no boot config captured")

var (
	trailingObjectComma = regexp.MustCompile(`,\s*}`)
	trailingArrayComma  = regexp.MustCompile(`,\s*]`)
)

// bootJSON is the firmware's boot-time configuration dump.
type bootJSON struct {
	PoolString      string `json:"poolString"`
	BTCString       string `json:"btcString"`
	NMVersion       string `json:"nmVersion"`
	FirmwareVersion string `json:"FirmwareVersion"`
}

// configScanner finds one JSON object delimited by standalone `{` and `}`
// lines in boot output.
type configScanner struct {
	maxBytes int
	inObject bool
	buf      strings.Builder
}

// feed consumes one line and returns a config once a complete, acceptable
// object has been seen. Rejected objects reset the scanner.
func (s *configScanner) feed(line string) (*models.BootConfig, bool) {
	line = strings.TrimSpace(line)

	if !s.inObject {
		if line == "{" {
			s.inObject = true
			s.buf.Reset()
			s.buf.WriteString("{\n")
		}

		return nil, false
	}

	s.buf.WriteString(line)
	s.buf.WriteByte('\n')

	if line != "}" {
		if s.buf.Len() > s.maxBytes {
			s.inObject = false
			s.buf.Reset()
		}

		return nil, false
	}

	s.inObject = false
	cfg, ok := parseBootConfig(s.buf.String())
	s.buf.Reset()

	return cfg, ok
}

func parseBootConfig(raw string) (*models.BootConfig, bool) {
	clean := trailingObjectComma.ReplaceAllString(raw, "}")
	clean = trailingArrayComma.ReplaceAllString(clean, "]")

	var doc bootJSON
	if err := json.Unmarshal([]byte(clean), &doc); err != nil {
		return nil, false
	}

	cfg := &models.BootConfig{
		PoolURL:         doc.PoolString,
		WalletAddress:   doc.BTCString,
		FirmwareVersion: doc.NMVersion,
	}

	if cfg.FirmwareVersion == "" {
		cfg.FirmwareVersion = doc.FirmwareVersion
	}

	if !cfg.Complete() {
		return nil, false
	}

	return cfg, true
}

// captureConfig reads boot output until a config is found, the window closes,
// or ctx ends. It returns errNoConfig when the window closes empty.
func captureConfig(ctx context.Context, reader *serialport.LineReader, window time.Duration, maxBytes int) (*models.BootConfig, error) {
	deadline := time.Now().Add(window)
	scanner := &configScanner{maxBytes: maxBytes}

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line, ok, err := reader.ReadLine()
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		if cfg, found := scanner.feed(line); found {
			return cfg, nil
		}
	}

	return nil, errNoConfig
}

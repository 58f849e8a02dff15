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

package models

import "time"

// TelemetrySample is one parsed `>>> key: value` line.
type TelemetrySample struct {
	MinerID   int64     `json:"miner_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Telemetry keys with special meaning.
const (
	KeyHashRate     = "KH/s"
	KeyTotalMHashes = "Total MHashes"
	keySharesAlias  = "32Bit shares"
	KeyShares       = "Shares"
)

// TrackedKeys are the telemetry keys that feed the per-miner summary.
var TrackedKeys = []string{
	KeyHashRate,
	"Temperature",
	"Valid blocks",
	"Best difficulty",
	KeyTotalMHashes,
	"Submits",
	KeyShares,
	"Time mining",
	"Block templates",
}

var trackedSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(TrackedKeys))
	for _, k := range TrackedKeys {
		set[k] = struct{}{}
	}

	return set
}()

// SummaryKey maps a telemetry key to its summary column key; ok is false for
// keys that are not tracked.
func SummaryKey(key string) (string, bool) {
	if key == keySharesAlias {
		return KeyShares, true
	}

	_, ok := trackedSet[key]

	return key, ok
}

// SummaryMetrics holds the latest value per tracked key for one miner.
// Keys missing from Values keep their stored value on upsert.
type SummaryMetrics struct {
	MinerID       int64             `json:"miner_id"`
	Values        map[string]string `json:"values"`
	LastMHashes   *float64          `json:"last_mhashes_cumulative,omitempty"`
	LastMHashesAt *time.Time        `json:"last_mhashes_timestamp,omitempty"`
	LastUpdated   time.Time         `json:"last_updated"`
}

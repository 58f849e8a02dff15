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

package store

import (
	"github.com/carverauto/shepherd/pkg/db"
	"github.com/carverauto/shepherd/pkg/models"
)

// pendingBatch accumulates async intents. Status updates and summaries are
// coalesced per miner so only the latest value is written.
type pendingBatch struct {
	batch     db.Batch
	statusIdx map[int64]int
	summIdx   map[int64]int
	intents   int
}

func newPendingBatch() *pendingBatch {
	return &pendingBatch{
		statusIdx: make(map[int64]int),
		summIdx:   make(map[int64]int),
	}
}

func (p *pendingBatch) empty() bool {
	return p.batch.Len() == 0
}

func (p *pendingBatch) addStatus(u db.StatusUpdate) {
	p.intents++

	if i, ok := p.statusIdx[u.MinerID]; ok {
		p.batch.Statuses[i] = u
		return
	}

	p.statusIdx[u.MinerID] = len(p.batch.Statuses)
	p.batch.Statuses = append(p.batch.Statuses, u)
}

func (p *pendingBatch) addSummary(s models.SummaryMetrics) {
	p.intents++

	i, ok := p.summIdx[s.MinerID]
	if !ok {
		values := make(map[string]string, len(s.Values))
		for k, v := range s.Values {
			values[k] = v
		}

		s.Values = values
		p.summIdx[s.MinerID] = len(p.batch.Summaries)
		p.batch.Summaries = append(p.batch.Summaries, s)

		return
	}

	cur := &p.batch.Summaries[i]
	for k, v := range s.Values {
		cur.Values[k] = v
	}

	if s.LastMHashes != nil {
		cur.LastMHashes = s.LastMHashes
		cur.LastMHashesAt = s.LastMHashesAt
	}

	if s.LastUpdated.After(cur.LastUpdated) {
		cur.LastUpdated = s.LastUpdated
	}
}

func (p *pendingBatch) addTelemetry(samples []models.TelemetrySample) {
	p.intents += len(samples)
	p.batch.Telemetry = append(p.batch.Telemetry, samples...)
}

func (p *pendingBatch) addStray(s models.StrayDevice) {
	p.intents++
	p.batch.Strays = append(p.batch.Strays, s)
}

func (p *pendingBatch) reset() {
	p.batch.Reset()
	clear(p.statusIdx)
	clear(p.summIdx)
	p.intents = 0
}

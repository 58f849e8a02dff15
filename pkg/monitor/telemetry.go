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

package monitor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/shepherd/pkg/models"
)

var linePattern = regexp.MustCompile(`^>>>\s*(?P<key>.+?):\s*(?P<value>.+)`)

// ParseLine extracts the key and value from a `>>> key: value` line.
func ParseLine(line string) (key, value string, ok bool) {
	m := linePattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}

	key = strings.TrimSpace(m[1])
	value = strings.TrimSpace(m[2])

	if key == "" || value == "" {
		return "", "", false
	}

	return key, value, true
}

// rateTracker derives KH/s from the cumulative Total MHashes counter.
type rateTracker struct {
	minInterval time.Duration
	scale       float64

	last   *float64
	lastAt time.Time
}

// observe records a counter reading and returns the derived rate when the
// interval is long enough and the counter grew.
func (r *rateTracker) observe(value float64, at time.Time) (float64, bool) {
	var (
		rate float64
		ok   bool
	)

	if r.last != nil {
		elapsed := at.Sub(r.lastAt)
		if value > *r.last && elapsed >= r.minInterval && elapsed > 0 {
			rate = (value - *r.last) * r.scale / elapsed.Seconds()
			ok = true
		}
	}

	v := value
	r.last = &v
	r.lastAt = at

	return rate, ok
}

// FormatRate renders a hash rate the way the summary stores it.
func FormatRate(rate float64) string {
	return fmt.Sprintf("%.2f", rate)
}

// pending accumulates samples between flushes.
type pending struct {
	minerID int64
	samples []models.TelemetrySample

	counter   *float64
	counterAt time.Time
}

func (p *pending) add(s models.TelemetrySample) {
	p.samples = append(p.samples, s)
}

func (p *pending) noteCounter(value float64, at time.Time) {
	v := value
	p.counter = &v
	p.counterAt = at
}

// summary collapses the pending samples to the latest value per tracked key.
func (p *pending) summary(now time.Time) (models.SummaryMetrics, bool) {
	values := make(map[string]string)

	for _, s := range p.samples {
		if key, ok := models.SummaryKey(s.Key); ok {
			values[key] = s.Value
		}
	}

	if len(values) == 0 {
		return models.SummaryMetrics{}, false
	}

	summary := models.SummaryMetrics{
		MinerID:     p.minerID,
		Values:      values,
		LastUpdated: now,
	}

	if p.counter != nil {
		at := p.counterAt
		summary.LastMHashes = p.counter
		summary.LastMHashesAt = &at
	}

	return summary, true
}

func (p *pending) reset() {
	p.samples = nil
	p.counter = nil
}

func parseCounter(value string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}

	return f, true
}

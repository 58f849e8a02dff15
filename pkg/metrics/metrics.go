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

// Package metrics exposes Prometheus collectors for the shepherd daemon.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reset outcomes.
const (
	ResetSynced        = "synced"
	ResetCaptureFailed = "capture_failed"
	ResetToolError     = "tool_error"
	ResetError         = "error"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ticks           prometheus.Counter
	tickErrors      prometheus.Counter
	tickDuration    prometheus.Histogram
	devicesObserved prometheus.Gauge
	monitorsActive  prometheus.Gauge
	queueDepth      prometheus.Gauge
	batches         prometheus.Counter
	batchFailures   prometheus.Counter
	intents         prometheus.Counter
	telemetryLines  prometheus.Counter
	resets          *prometheus.CounterVec
}

// New builds the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_reconcile_ticks_total",
			Help: "Reconciliation ticks run.",
		}),
		tickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_reconcile_tick_errors_total",
			Help: "Reconciliation ticks that hit an error.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shepherd_reconcile_tick_seconds",
			Help:    "Wall time of one reconciliation tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		devicesObserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shepherd_devices_observed",
			Help: "Serial devices seen in the last scan.",
		}),
		monitorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shepherd_monitors_active",
			Help: "Telemetry monitors currently registered.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shepherd_writer_queue_depth",
			Help: "Intents waiting for the store writer.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_writer_batches_total",
			Help: "Batches committed by the store writer.",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_writer_batch_failures_total",
			Help: "Failed batch commit attempts.",
		}),
		intents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_writer_intents_total",
			Help: "Intents accepted by the store writer.",
		}),
		telemetryLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shepherd_telemetry_lines_total",
			Help: "Telemetry lines parsed from miners.",
		}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shepherd_resets_total",
			Help: "Reset workflow runs by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.ticks, m.tickErrors, m.tickDuration, m.devicesObserved, m.monitorsActive,
		m.queueDepth, m.batches, m.batchFailures, m.intents, m.telemetryLines, m.resets,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

func (m *Metrics) ObserveTick(elapsed time.Duration, devices, monitors int, err error) {
	if m == nil {
		return
	}

	m.ticks.Inc()
	m.tickDuration.Observe(elapsed.Seconds())
	m.devicesObserved.Set(float64(devices))
	m.monitorsActive.Set(float64(monitors))

	if err != nil {
		m.tickErrors.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}

	m.queueDepth.Set(float64(n))
}

func (m *Metrics) IntentAccepted() {
	if m == nil {
		return
	}

	m.intents.Inc()
}

func (m *Metrics) BatchCommitted() {
	if m == nil {
		return
	}

	m.batches.Inc()
}

func (m *Metrics) BatchFailed() {
	if m == nil {
		return
	}

	m.batchFailures.Inc()
}

func (m *Metrics) TelemetryLine() {
	if m == nil {
		return
	}

	m.telemetryLines.Inc()
}

func (m *Metrics) ResetFinished(outcome string) {
	if m == nil {
		return
	}

	m.resets.WithLabelValues(outcome).Inc()
}

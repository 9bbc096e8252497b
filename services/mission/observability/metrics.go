// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics for the mission vault.
//
// # Description
//
// Prometheus metrics for mission tool operations:
//   - Tool call counters and latency (by tool and envelope status)
//   - Artifact upsert outcomes
//   - Final report gate verdicts
//   - Ledger size after each evidence merge
//   - Human-in-the-loop checkpoints and rate-limited requests
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "missionvault"

// Metrics holds the Prometheus collectors of one process.
//
// # Fields
//
//   - ToolCallsTotal: Counter of tool calls by tool and status
//   - ToolDurationSeconds: Histogram of tool call latency
//   - UpsertsTotal: Counter of upsert outcomes
//   - GateResultsTotal: Counter of gate verdicts
//   - LedgerSources: Gauge of sources in the last merged ledger
//   - CheckpointsTotal: Counter of human approval checkpoints
//   - RateLimitedTotal: Counter of requests rejected by the limiter
type Metrics struct {
	// ToolCallsTotal counts tool calls.
	// Labels: tool, status (ok, error, pass, fail)
	ToolCallsTotal *prometheus.CounterVec

	// ToolDurationSeconds measures tool call latency.
	// Labels: tool
	ToolDurationSeconds *prometheus.HistogramVec

	// UpsertsTotal counts artifact writes by outcome.
	// Labels: outcome (created, updated, unchanged)
	UpsertsTotal *prometheus.CounterVec

	// GateResultsTotal counts final report gate runs.
	// Labels: status (pass, fail), repaired (true, false)
	GateResultsTotal *prometheus.CounterVec

	// LedgerSources is the source count of the most recently merged ledger.
	LedgerSources prometheus.Gauge

	// CheckpointsTotal counts human-in-the-loop checkpoints.
	// Labels: checkpoint
	CheckpointsTotal *prometheus.CounterVec

	// RateLimitedTotal counts HTTP requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates and registers all collectors on reg.
//
// # Inputs
//
//   - reg: Target registerer. Use prometheus.NewRegistry() in tests.
//
// # Limitations
//
//   - Panics if called twice with the same registerer (duplicate registration).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ToolCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "tool_calls_total",
				Help:      "Total mission tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),

		ToolDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "tool_duration_seconds",
				Help:      "Mission tool call duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"tool"},
		),

		UpsertsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "upserts_total",
				Help:      "Total artifact upserts by outcome",
			},
			[]string{"outcome"},
		),

		GateResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "gate_results_total",
				Help:      "Total final report gate runs by status and repair",
			},
			[]string{"status", "repaired"},
		),

		LedgerSources: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "ledger_sources",
				Help:      "Number of sources in the most recently merged citation ledger",
			},
		),

		CheckpointsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "checkpoints_total",
				Help:      "Total human-in-the-loop checkpoints reached",
			},
			[]string{"checkpoint"},
		),

		RateLimitedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rate_limited_total",
				Help:      "Total HTTP requests rejected by the per-tenant rate limiter",
			},
		),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordToolCall records one tool call. Nil receivers are no-ops.
func (m *Metrics) RecordToolCall(tool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordUpsert records one upsert outcome.
func (m *Metrics) RecordUpsert(outcome string) {
	if m == nil {
		return
	}
	m.UpsertsTotal.WithLabelValues(outcome).Inc()
}

// RecordGate records one gate verdict.
func (m *Metrics) RecordGate(status string, repaired bool) {
	if m == nil {
		return
	}
	m.GateResultsTotal.WithLabelValues(status, strconv.FormatBool(repaired)).Inc()
}

// SetLedgerSources records the size of a merged ledger.
func (m *Metrics) SetLedgerSources(n int) {
	if m == nil {
		return
	}
	m.LedgerSources.Set(float64(n))
}

// RecordCheckpoint records a human-in-the-loop checkpoint.
func (m *Metrics) RecordCheckpoint(name string) {
	if m == nil {
		return
	}
	m.CheckpointsTotal.WithLabelValues(name).Inc()
}

// RecordRateLimited records a rejected request.
func (m *Metrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

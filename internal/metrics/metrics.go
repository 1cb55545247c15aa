// Adscope - Ad Platform Insights Collection and Warehousing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adscope

// Package metrics declares the Prometheus collectors for Adscope:
// remote Graph API calls, rate-governor state, decomposition and leaf
// execution outcomes, warehouse inserts, and queue traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API metrics
	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_call_duration_seconds",
			Help:    "Duration of Graph API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "status"},
	)

	RemoteCallPages = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graph_call_pages",
			Help:    "Pages followed per logical Graph API call",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100},
		},
		[]string{"endpoint"},
	)

	RemoteCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_call_errors_total",
			Help: "Total Graph API call errors by error kind",
		},
		[]string{"endpoint", "kind"},
	)

	// Rate governor metrics
	GovernorState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_governor_state",
			Help: "Rate governor state (0 = open, 1 = blocked)",
		},
	)

	GovernorWindowCost = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_governor_window_cost",
			Help: "Summed cost of the decaying rate window",
		},
	)

	GovernorBlocks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_governor_blocks_total",
			Help: "Total transitions into the blocked state",
		},
		[]string{"cause"}, // "window" or "forced"
	)

	GovernorWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_governor_waits_total",
			Help: "Total admissions that had to wait out a block",
		},
	)

	// Decomposition and leaf execution metrics
	LeafRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insights_leaf_requests_total",
			Help: "Total leaf requests by outcome",
		},
		[]string{"outcome"}, // "ok", "api_error", "store_error", "config_error"
	)

	LeafDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "insights_leaf_duration_seconds",
			Help:    "Duration of leaf request execution in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// Warehouse metrics
	TableProvisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_table_provisions_total",
			Help: "Table provisioning operations by result",
		},
		[]string{"result"}, // "ok" or "error"
	)

	RowInserts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warehouse_row_inserts_total",
			Help: "Rows appended to insight tables",
		},
		[]string{"table"},
	)

	// Queue metrics
	QueuePublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_leaf_publishes_total",
			Help: "Leaf jobs published to the queue by result",
		},
		[]string{"result"},
	)

	QueueConsumes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_leaf_consumes_total",
			Help: "Leaf jobs consumed from the queue by result",
		},
		[]string{"result"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 = closed, 1 = half-open, 2 = open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Circuit breaker request outcomes",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)

// ObserveRemoteCall records one completed HTTP exchange against the platform.
func ObserveRemoteCall(endpoint, status string, elapsed time.Duration) {
	RemoteCallDuration.WithLabelValues(endpoint, status).Observe(elapsed.Seconds())
}

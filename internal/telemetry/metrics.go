/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_api_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_api_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "heimdall_api_active_connections",
		Help: "Number of in-flight HTTP requests",
	})

	// SweepTicksTotal counts expiry/restore sweep passes.
	SweepTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_sweep_ticks_total",
		Help: "Total number of sweep passes executed",
	})

	// SweepErrorsTotal counts failed sweep passes.
	SweepErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_sweep_errors_total",
		Help: "Total number of sweep passes that returned an error",
	})

	// WindowsExpiredTotal counts windows deactivated by the sweep.
	WindowsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_windows_expired_total",
		Help: "Total number of windows expired by the sweep",
	})

	// ItemsRestoredTotal counts suppressed items reactivated by the sweep.
	ItemsRestoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_items_restored_total",
		Help: "Total number of suppressed items restored by the sweep",
	})

	// ItemsDeactivatedTotal counts stale items deactivated by the sweep.
	ItemsDeactivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_items_deactivated_total",
		Help: "Total number of stale items deactivated by the sweep",
	})

	// OverridesTotal counts items or windows suppressed during override
	// resolution, labelled by kind (immediate, scheduled).
	OverridesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_overrides_total",
		Help: "Total number of override suppressions applied",
	}, []string{"kind"})

	// DatabaseQueryDuration observes GORM operation latency per table.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "heimdall_db_query_duration_seconds",
		Help:    "Duration of database operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed database operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_db_errors_total",
		Help: "Total number of failed database operations",
	}, []string{"operation", "reason"})

	// CacheHitsTotal counts resolution cache hits.
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_cache_hits_total",
		Help: "Total resolution cache hits",
	})

	// CacheMissesTotal counts resolution cache misses.
	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "heimdall_cache_misses_total",
		Help: "Total resolution cache misses",
	})

	// LeaderElectionStatus reports whether this instance holds the
	// sweeper lease (1) or not (0).
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "heimdall_leader_election_status",
		Help: "Whether this instance is the sweep leader",
	}, []string{"instance_id"})

	// LeaderElectionChanges counts leadership transitions.
	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "heimdall_leader_election_changes_total",
		Help: "Total leadership transitions",
	}, []string{"instance_id", "transition"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

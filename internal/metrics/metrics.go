// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package metrics provides Prometheus instrumentation for:
//   - Cache store operations (Redis) and fail-open degradation
//   - User cache efficiency (hits, misses, evictions)
//   - Cache/durable-store synchronization and drift detection
//   - Cleanup job passes
//   - Database query performance (DuckDB)
//   - API endpoint latency and throughput
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache Store Metrics
	CacheStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_store_operations_total",
			Help: "Total number of cache store operations",
		},
		[]string{"operation", "outcome"}, // outcome: "ok", "error", "disconnected"
	)

	CacheStoreConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_store_connected",
			Help: "Whether the cache store connection is established (1) or down (0)",
		},
	)

	CacheStoreReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_store_reconnects_total",
			Help: "Total number of cache store reconnect attempts",
		},
	)

	// User Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"}, // "user", "api_response"
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache_type", "reason"}, // reason: "inactive", "manual", "invalidated"
	)

	CacheCorruptPayloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_corrupt_payloads_total",
			Help: "Total number of cached payloads that failed to decode and were treated as misses",
		},
	)

	CacheActivityDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_activity_updates_dropped_total",
			Help: "Total number of last-accessed updates dropped because the tracking queue was full",
		},
	)

	CacheActivityErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_activity_update_errors_total",
			Help: "Total number of asynchronous last-accessed update failures",
		},
	)

	// Sync Metrics
	SyncValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_sync_validations_total",
			Help: "Total number of cache consistency validations",
		},
		[]string{"result"}, // "consistent", "drift", "cache_miss", "error"
	)

	SyncDriftDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_sync_drift_total",
			Help: "Total number of drifted fields detected during validation",
		},
		[]string{"field"},
	)

	SyncResyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_sync_resyncs_total",
			Help: "Total number of cache resyncs from the durable store",
		},
		[]string{"trigger"}, // "stale", "drift", "balance", "bulk", "manual"
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_sync_duration_seconds",
			Help:    "Duration of cache sync operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "get", "update", "balance", "validate", "bulk"
	)

	BulkSyncBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cache_bulk_sync_batch_size",
			Help:    "Number of users in bulk sync batches",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	// Cleanup Job Metrics
	CleanupPasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_cleanup_passes_total",
			Help: "Total number of cleanup passes",
		},
		[]string{"outcome"}, // "completed", "skipped_overlap", "skipped_store_down", "failed"
	)

	CleanupEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_cleanup_evicted_total",
			Help: "Total number of inactive users evicted by cleanup passes",
		},
	)

	CleanupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cache_cleanup_duration_seconds",
			Help:    "Duration of cleanup passes in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	CleanupLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cache_cleanup_last_success_timestamp",
			Help: "Unix timestamp of the last successful cleanup pass",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	APIResponseCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_response_cache_hits_total",
			Help: "Total number of GET responses served from the response cache",
		},
	)

	APIResponseCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_response_cache_misses_total",
			Help: "Total number of GET requests that bypassed or missed the response cache",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	// Auth Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"}, // "success", "invalid_credentials", "throttled"
	)

	// System Metrics
	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordStoreOp records a cache store operation outcome.
func RecordStoreOp(operation string, err error, connected bool) {
	switch {
	case !connected:
		CacheStoreOps.WithLabelValues(operation, "disconnected").Inc()
	case err != nil:
		CacheStoreOps.WithLabelValues(operation, "error").Inc()
	default:
		CacheStoreOps.WithLabelValues(operation, "ok").Inc()
	}
}

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordCleanupPass records the outcome of a cleanup pass.
func RecordCleanupPass(outcome string, evicted int, duration time.Duration) {
	CleanupPasses.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		CleanupEvicted.Add(float64(evicted))
		CleanupDuration.Observe(duration.Seconds())
		CleanupLastSuccess.Set(float64(time.Now().Unix()))
	}
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

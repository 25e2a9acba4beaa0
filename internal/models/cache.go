// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package models

import "time"

// CachedUser is the denormalized user snapshot stored in the cache under
// user:{id}. CachedAt records when the snapshot was taken from the durable
// store; it drives the sync service's freshness-window revalidation.
//
// A present CachedUser must equal the durable record as of the last write
// or read-through population that touched it.
type CachedUser struct {
	User     User      `json:"user"`
	CachedAt time.Time `json:"cached_at"`
}

// Age returns how long ago the snapshot was taken.
func (c *CachedUser) Age(now time.Time) time.Duration {
	return now.Sub(c.CachedAt)
}

// APIResponseCacheEntry is a whole-response cache payload stored under
// api_cache:{url}. Only successful (2xx) JSON responses are cached.
type APIResponseCacheEntry struct {
	StatusCode  int       `json:"status_code"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CachedAt    time.Time `json:"cached_at"`
}

// AuthLogEntry is one element of the bounded auth_logs:{userId} list.
type AuthLogEntry struct {
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Success   bool      `json:"success"`
	At        time.Time `json:"at"`
}

// SessionMarker is the session:{userId} payload written on login.
type SessionMarker struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CacheStats reports user-cache occupancy for observability.
type CacheStats struct {
	Connected    bool  `json:"connected"`
	CachedUsers  int64 `json:"cached_users"`
	TrackedUsers int64 `json:"tracked_users"`
	MemoryBytes  int64 `json:"memory_bytes,omitempty"`
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
}

// SyncStats extends CacheStats with sync-specific counters.
type SyncStats struct {
	CacheStats
	Validations   int64 `json:"validations"`
	DriftDetected int64 `json:"drift_detected"`
	Resyncs       int64 `json:"resyncs"`
}

// ConsistencyReport is the result of comparing cache and durable state
// for one user.
type ConsistencyReport struct {
	UserID         string    `json:"user_id"`
	Consistent     bool      `json:"consistent"`
	CachePresent   bool      `json:"cache_present"`
	DurablePresent bool      `json:"durable_present"`
	DriftFields    []string  `json:"drift_fields,omitempty"`
	CheckedAt      time.Time `json:"checked_at"`
}

// BulkSyncOutcome is the per-id result of a bulk resynchronization.
type BulkSyncOutcome struct {
	UserID string `json:"user_id"`
	Synced bool   `json:"synced"`
	Error  string `json:"error,omitempty"`
}

// BulkSyncResult aggregates a bulk resynchronization batch.
type BulkSyncResult struct {
	Total    int               `json:"total"`
	Synced   int               `json:"synced"`
	Failed   int               `json:"failed"`
	Outcomes []BulkSyncOutcome `json:"outcomes"`
}

// CleanupStatus reports the cleanup job's scheduler state.
type CleanupStatus struct {
	Armed       bool          `json:"armed"`
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	LastRunAt   *time.Time    `json:"last_run_at,omitempty"`
	LastEvicted int           `json:"last_evicted"`
	TotalRuns   int64         `json:"total_runs"`
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package cache provides the Redis-backed cache store adapter.
//
// Every operation is fail-open: when the store is not connected, reads
// return zero values and writes report false, and no error ever escapes
// to the caller. Callers fall back to the durable store; the cache is
// never the sole copy of any data.
package cache

import (
	"context"
	"time"
)

// Store is the key/value contract the cache consumers depend on.
//
// All methods follow the fail-open discipline: a disconnected or failing
// store yields zero values and false success flags, never errors. The
// boolean returns report whether the write reached the store, letting
// callers count degradation without branching on errors.
type Store interface {
	// Ready reports whether the underlying store connection is established.
	Ready() bool

	// Get returns the string value at key. The second return is false on
	// miss, disconnection, or any store error.
	Get(ctx context.Context, key string) (string, bool)

	// Set stores value at key with the given TTL. A zero ttl stores
	// without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) bool

	// Del removes the given keys. Returns false if the store is down or
	// the command failed; deleting absent keys still reports true.
	Del(ctx context.Context, keys ...string) bool

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) bool

	// HSet sets a hash field.
	HSet(ctx context.Context, key, field, value string) bool

	// HGet returns a hash field value; false on miss or failure.
	HGet(ctx context.Context, key, field string) (string, bool)

	// HGetAll returns all fields of a hash; empty map on miss or failure.
	HGetAll(ctx context.Context, key string) map[string]string

	// HDel removes hash fields.
	HDel(ctx context.Context, key string, fields ...string) bool

	// Incr increments the counter at key and returns the new value.
	// The TTL is applied only when the increment creates the key, so a
	// counter's window starts at its first hit. Returns 0 on failure.
	Incr(ctx context.Context, key string, ttl time.Duration) int64

	// LPush prepends value to the list at key and trims the list to
	// maxLen entries, bounding memory for log-like keys.
	LPush(ctx context.Context, key, value string, maxLen int64) bool

	// LRange returns list elements in [start, stop]; nil on failure.
	LRange(ctx context.Context, key string, start, stop int64) []string

	// Keys returns all keys matching a glob pattern. Intended for
	// operational paths (cleanup, pattern invalidation, stats), not per
	// request use.
	Keys(ctx context.Context, pattern string) []string

	// DelPattern removes every key matching the glob pattern and returns
	// the number of keys deleted.
	DelPattern(ctx context.Context, pattern string) int64

	// MemoryUsed returns the store's approximate memory footprint in
	// bytes, or 0 when unavailable.
	MemoryUsed(ctx context.Context) int64
}

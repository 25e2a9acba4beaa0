// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ludex-market/ludex/internal/config"
	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
)

// Reconnect backoff bounds.
const (
	reconnectBaseDelay  = 1 * time.Second
	reconnectMaxDelay   = 30 * time.Second
	reconnectMaxRetries = 10
)

// RedisStore is the Redis-backed Store implementation.
//
// Lifecycle is explicit: construct with NewRedisStore, call Connect once
// during startup, Close during shutdown. A lost connection flips Ready to
// false and starts a single background reconnect loop with capped
// exponential backoff; while down, all operations fail open.
type RedisStore struct {
	client *redis.Client
	cfg    config.CacheConfig

	connected    atomic.Bool
	reconnecting atomic.Bool
	closed       atomic.Bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis store adapter. No connection is attempted
// until Connect is called.
func NewRedisStore(cfg config.CacheConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.ConnectTimeout,
		MaxRetries:   cfg.MaxRetries,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	return &RedisStore{
		client: client,
		cfg:    cfg,
	}
}

// Connect establishes the Redis connection with a bounded timeout.
// A failed initial connect is not fatal: the store starts degraded and a
// background reconnect loop keeps trying, so the application can boot
// while Redis is still coming up.
func (s *RedisStore) Connect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	if err := s.client.Ping(pingCtx).Err(); err != nil {
		logging.Warn().Err(err).
			Str("addr", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)).
			Msg("Cache store unreachable, starting in degraded mode")
		s.connected.Store(false)
		metrics.CacheStoreConnected.Set(0)
		go s.reconnectLoop()
		return err
	}

	s.connected.Store(true)
	metrics.CacheStoreConnected.Set(1)
	logging.Info().
		Str("addr", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)).
		Int("db", s.cfg.DB).
		Msg("Cache store connected")
	return nil
}

// Close shuts down the Redis connection. Safe to call once during
// application shutdown; operations after Close fail open.
func (s *RedisStore) Close() error {
	s.closed.Store(true)
	s.connected.Store(false)
	metrics.CacheStoreConnected.Set(0)
	return s.client.Close()
}

// Ready reports whether the store connection is established.
func (s *RedisStore) Ready() bool {
	return s.connected.Load()
}

// markDown flips the store to degraded mode and kicks off the reconnect
// loop. Called on errors that indicate a lost connection rather than a
// per-command failure.
func (s *RedisStore) markDown(err error) {
	if !s.connected.CompareAndSwap(true, false) {
		return
	}
	metrics.CacheStoreConnected.Set(0)
	logging.Error().Err(err).Msg("Cache store connection lost, failing open")
	go s.reconnectLoop()
}

// reconnectLoop retries the connection with capped exponential backoff.
// Only one loop runs at a time; it gives up after reconnectMaxRetries
// attempts and stays down until the next explicit Connect.
func (s *RedisStore) reconnectLoop() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer s.reconnecting.Store(false)

	delay := reconnectBaseDelay
	for attempt := 1; attempt <= reconnectMaxRetries; attempt++ {
		if s.closed.Load() {
			return
		}

		time.Sleep(delay)
		metrics.CacheStoreReconnects.Inc()

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
		err := s.client.Ping(ctx).Err()
		cancel()

		if err == nil {
			s.connected.Store(true)
			metrics.CacheStoreConnected.Set(1)
			logging.Info().Int("attempt", attempt).Msg("Cache store reconnected")
			return
		}

		logging.Warn().Err(err).
			Int("attempt", attempt).
			Dur("next_delay", delay).
			Msg("Cache store reconnect failed")

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}

	logging.Error().
		Int("attempts", reconnectMaxRetries).
		Msg("Cache store reconnect attempts exhausted, staying degraded")
}

// isConnErr reports whether an error looks like a lost connection rather
// than a per-command failure. redis.Nil (key absent) is never a
// connection error.
func isConnErr(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "closed")
}

// fail handles a command error: records metrics, logs, and downgrades the
// connection when the error indicates a lost link.
func (s *RedisStore) fail(op, key string, err error) {
	metrics.RecordStoreOp(op, err, true)
	logging.Warn().Err(err).Str("op", op).Str("key", key).Msg("Cache store operation failed")
	if isConnErr(err) {
		s.markDown(err)
	}
}

// Get returns the string value at key; false on miss or failure.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	if !s.Ready() {
		metrics.RecordStoreOp("get", nil, false)
		return "", false
	}
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.RecordStoreOp("get", nil, true)
		return "", false
	}
	if err != nil {
		s.fail("get", key, err)
		return "", false
	}
	metrics.RecordStoreOp("get", nil, true)
	return val, true
}

// Set stores value at key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) bool {
	if !s.Ready() {
		metrics.RecordStoreOp("set", nil, false)
		return false
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.fail("set", key, err)
		return false
	}
	metrics.RecordStoreOp("set", nil, true)
	return true
}

// Del removes the given keys.
func (s *RedisStore) Del(ctx context.Context, keys ...string) bool {
	if len(keys) == 0 {
		return true
	}
	if !s.Ready() {
		metrics.RecordStoreOp("del", nil, false)
		return false
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.fail("del", keys[0], err)
		return false
	}
	metrics.RecordStoreOp("del", nil, true)
	return true
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) bool {
	if !s.Ready() {
		metrics.RecordStoreOp("exists", nil, false)
		return false
	}
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.fail("exists", key, err)
		return false
	}
	metrics.RecordStoreOp("exists", nil, true)
	return n > 0
}

// HSet sets a hash field.
func (s *RedisStore) HSet(ctx context.Context, key, field, value string) bool {
	if !s.Ready() {
		metrics.RecordStoreOp("hset", nil, false)
		return false
	}
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		s.fail("hset", key, err)
		return false
	}
	metrics.RecordStoreOp("hset", nil, true)
	return true
}

// HGet returns a hash field value; false on miss or failure.
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool) {
	if !s.Ready() {
		metrics.RecordStoreOp("hget", nil, false)
		return "", false
	}
	val, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		metrics.RecordStoreOp("hget", nil, true)
		return "", false
	}
	if err != nil {
		s.fail("hget", key, err)
		return "", false
	}
	metrics.RecordStoreOp("hget", nil, true)
	return val, true
}

// HGetAll returns all fields of a hash; empty map on miss or failure.
func (s *RedisStore) HGetAll(ctx context.Context, key string) map[string]string {
	if !s.Ready() {
		metrics.RecordStoreOp("hgetall", nil, false)
		return map[string]string{}
	}
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		s.fail("hgetall", key, err)
		return map[string]string{}
	}
	metrics.RecordStoreOp("hgetall", nil, true)
	return vals
}

// HDel removes hash fields.
func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) bool {
	if len(fields) == 0 {
		return true
	}
	if !s.Ready() {
		metrics.RecordStoreOp("hdel", nil, false)
		return false
	}
	if err := s.client.HDel(ctx, key, fields...).Err(); err != nil {
		s.fail("hdel", key, err)
		return false
	}
	metrics.RecordStoreOp("hdel", nil, true)
	return true
}

// Incr increments the counter at key, applying the TTL only when the
// increment created the key. This gives rate-limit counters a window that
// starts at their first hit.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) int64 {
	if !s.Ready() {
		metrics.RecordStoreOp("incr", nil, false)
		return 0
	}
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		s.fail("incr", key, err)
		return 0
	}
	if n == 1 && ttl > 0 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			s.fail("incr", key, err)
		}
	}
	metrics.RecordStoreOp("incr", nil, true)
	return n
}

// LPush prepends value to the list at key and trims it to maxLen entries.
func (s *RedisStore) LPush(ctx context.Context, key, value string, maxLen int64) bool {
	if !s.Ready() {
		metrics.RecordStoreOp("lpush", nil, false)
		return false
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, value)
	if maxLen > 0 {
		pipe.LTrim(ctx, key, 0, maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.fail("lpush", key, err)
		return false
	}
	metrics.RecordStoreOp("lpush", nil, true)
	return true
}

// LRange returns list elements in [start, stop]; nil on failure.
func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) []string {
	if !s.Ready() {
		metrics.RecordStoreOp("lrange", nil, false)
		return nil
	}
	vals, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		s.fail("lrange", key, err)
		return nil
	}
	metrics.RecordStoreOp("lrange", nil, true)
	return vals
}

// Keys returns all keys matching a glob pattern using SCAN, so large
// keyspaces are walked without blocking the store.
func (s *RedisStore) Keys(ctx context.Context, pattern string) []string {
	if !s.Ready() {
		metrics.RecordStoreOp("keys", nil, false)
		return nil
	}
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.fail("keys", pattern, err)
		return nil
	}
	metrics.RecordStoreOp("keys", nil, true)
	return keys
}

// DelPattern removes every key matching the glob pattern.
func (s *RedisStore) DelPattern(ctx context.Context, pattern string) int64 {
	keys := s.Keys(ctx, pattern)
	if len(keys) == 0 {
		return 0
	}
	if !s.Del(ctx, keys...) {
		return 0
	}
	return int64(len(keys))
}

// MemoryUsed returns Redis used_memory in bytes, or 0 when unavailable.
func (s *RedisStore) MemoryUsed(ctx context.Context) int64 {
	if !s.Ready() {
		return 0
	}
	info, err := s.client.Info(ctx, "memory").Result()
	if err != nil {
		s.fail("info", "memory", err)
		return 0
	}
	for _, line := range strings.Split(info, "\r\n") {
		if rest, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64); err == nil {
				return n
			}
		}
	}
	return 0
}

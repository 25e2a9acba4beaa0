// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package cache

import (
	"context"
	"path"
	"strconv"
	"sync"
	"time"
)

// MemoryStore is an in-process Store implementation with TTL support.
// It backs unit tests across the cache consumers and doubles as a
// zero-dependency store for local development. Semantics mirror the
// Redis adapter, including the fail-open behavior when SetReady(false)
// simulates a lost connection.
type MemoryStore struct {
	mu     sync.RWMutex
	ready  bool
	now    func() time.Time
	values map[string]memoryEntry
	hashes map[string]map[string]string
	lists  map[string][]string
}

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty, ready in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ready:  true,
		now:    time.Now,
		values: make(map[string]memoryEntry),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string][]string),
	}
}

// SetReady toggles the simulated connection state. While not ready every
// operation fails open exactly like the Redis adapter.
func (s *MemoryStore) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// SetClock overrides the store's time source. Tests use this to age
// entries past their TTL without sleeping.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Ready reports the simulated connection state.
func (s *MemoryStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

func (s *MemoryStore) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

// Get returns the value at key; false on miss, expiry, or not-ready.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return "", false
	}
	e, ok := s.values[key]
	if !ok {
		return "", false
	}
	if s.expired(e) {
		delete(s.values, key)
		return "", false
	}
	return e.value, true
}

// Set stores value at key with the given TTL.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = e
	return true
}

// Del removes the given keys.
func (s *MemoryStore) Del(_ context.Context, keys ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	for _, k := range keys {
		delete(s.values, k)
		delete(s.hashes, k)
		delete(s.lists, k)
	}
	return true
}

// Exists reports whether key is present and unexpired.
func (s *MemoryStore) Exists(ctx context.Context, key string) bool {
	_, ok := s.Get(ctx, key)
	if ok {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return false
	}
	if _, ok := s.hashes[key]; ok {
		return true
	}
	_, ok = s.lists[key]
	return ok
}

// HSet sets a hash field.
func (s *MemoryStore) HSet(_ context.Context, key, field, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return true
}

// HGet returns a hash field value.
func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return "", false
	}
	h, ok := s.hashes[key]
	if !ok {
		return "", false
	}
	v, ok := h[field]
	return v, ok
}

// HGetAll returns a copy of all hash fields.
func (s *MemoryStore) HGetAll(_ context.Context, key string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[string]string{}
	if !s.ready {
		return out
	}
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out
}

// HDel removes hash fields.
func (s *MemoryStore) HDel(_ context.Context, key string, fields ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	h, ok := s.hashes[key]
	if !ok {
		return true
	}
	for _, f := range fields {
		delete(h, f)
	}
	return true
}

// Incr increments the counter at key, applying the TTL only on creation.
func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return 0
	}
	e, ok := s.values[key]
	if ok && s.expired(e) {
		ok = false
	}
	var n int64
	if ok {
		// Existing counter keeps its window.
		n = parseCounter(e.value) + 1
		e.value = formatCounter(n)
		s.values[key] = e
		return n
	}
	n = 1
	ne := memoryEntry{value: formatCounter(n)}
	if ttl > 0 {
		ne.expiresAt = s.now().Add(ttl)
	}
	s.values[key] = ne
	return n
}

// LPush prepends value and trims the list to maxLen.
func (s *MemoryStore) LPush(_ context.Context, key, value string, maxLen int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return false
	}
	l := append([]string{value}, s.lists[key]...)
	if maxLen > 0 && int64(len(l)) > maxLen {
		l = l[:maxLen]
	}
	s.lists[key] = l
	return true
}

// LRange returns list elements in [start, stop].
func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil
	}
	l := s.lists[key]
	n := int64(len(l))
	if n == 0 {
		return nil
	}
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out
}

// Keys returns all keys matching a glob pattern.
func (s *MemoryStore) Keys(_ context.Context, pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ready {
		return nil
	}
	var keys []string
	match := func(k string) {
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	for k, e := range s.values {
		if !s.expired(e) {
			match(k)
		}
	}
	for k := range s.hashes {
		match(k)
	}
	for k := range s.lists {
		match(k)
	}
	return keys
}

// DelPattern removes every key matching the glob pattern.
func (s *MemoryStore) DelPattern(ctx context.Context, pattern string) int64 {
	keys := s.Keys(ctx, pattern)
	if len(keys) == 0 {
		return 0
	}
	if !s.Del(ctx, keys...) {
		return 0
	}
	return int64(len(keys))
}

// MemoryUsed returns a rough footprint: the sum of stored value sizes.
func (s *MemoryStore) MemoryUsed(_ context.Context) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for k, e := range s.values {
		n += int64(len(k) + len(e.value))
	}
	for k, h := range s.hashes {
		n += int64(len(k))
		for f, v := range h {
			n += int64(len(f) + len(v))
		}
	}
	for k, l := range s.lists {
		n += int64(len(k))
		for _, v := range l {
			n += int64(len(v))
		}
	}
	return n
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatCounter(n int64) string {
	return strconv.FormatInt(n, 10)
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package usercache implements read-through and write-through caching of
// the user entity on top of the cache store adapter.
//
// The durable store is always the source of truth. Write-through order is
// strict: the durable write must commit before any cache mutation; a
// durable failure aborts without touching the cache. Cache failures never
// surface to callers; the worst case is a slower durable read.
package usercache

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
	"github.com/ludex-market/ludex/internal/models"
)

// ErrNotFound is returned when a user exists in neither store.
var ErrNotFound = errors.New("user not found")

// DurableStore is the slice of the database layer the cache service
// depends on. Unit tests substitute an in-memory fake.
type DurableStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// NotFoundChecker reports whether an error from a DurableStore means the
// row is absent. Implementations return their own sentinel; the service
// only needs the predicate.
type NotFoundChecker func(error) bool

// Config holds the cache service tuning knobs.
type Config struct {
	// UserTTL is the TTL applied to cached user snapshots.
	UserTTL time.Duration

	// InactivityThreshold is how long a user may go untracked before a
	// cleanup pass evicts their cache entry. Default 30 days.
	InactivityThreshold time.Duration

	// ActivityQueueSize bounds the non-blocking last-accessed queue.
	ActivityQueueSize int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		UserTTL:             30 * time.Minute,
		InactivityThreshold: 30 * 24 * time.Hour,
		ActivityQueueSize:   1024,
	}
}

// Service provides the user cache operations.
type Service struct {
	store      cache.Store
	db         DurableStore
	isNotFound NotFoundChecker
	cfg        Config

	hits   atomic.Int64
	misses atomic.Int64

	now func() time.Time

	// Last-accessed tracking runs on a single background worker fed by
	// a bounded channel, so request paths never block on it.
	activityCh chan string
	stopOnce   sync.Once
	done       chan struct{}
}

// New creates the service. Call Start to launch the activity worker and
// Stop during shutdown.
func New(store cache.Store, db DurableStore, isNotFound NotFoundChecker, cfg Config) *Service {
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = DefaultConfig().UserTTL
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = DefaultConfig().InactivityThreshold
	}
	if cfg.ActivityQueueSize <= 0 {
		cfg.ActivityQueueSize = DefaultConfig().ActivityQueueSize
	}
	if isNotFound == nil {
		isNotFound = func(error) bool { return false }
	}
	return &Service{
		store:      store,
		db:         db,
		isNotFound: isNotFound,
		cfg:        cfg,
		now:        time.Now,
		activityCh: make(chan string, cfg.ActivityQueueSize),
		done:       make(chan struct{}),
	}
}

// Start launches the background last-accessed worker.
func (s *Service) Start() {
	go s.activityWorker()
}

// Stop drains and stops the activity worker. Safe to call once.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.activityCh)
		<-s.done
	})
}

// activityWorker applies queued last-accessed updates. Failures are
// routed to metrics and logs rather than to the requests that queued
// them. Activity tracking is advisory, never authoritative.
func (s *Service) activityWorker() {
	defer close(s.done)
	for id := range s.activityCh {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ok := s.store.HSet(ctx, cache.ActivityKey(), id, strconv.FormatInt(s.now().Unix(), 10))
		cancel()
		if !ok {
			metrics.CacheActivityErrors.Inc()
			logging.Debug().Str("user_id", id).Msg("Last-accessed update failed")
		}
	}
}

// TrackAccess queues a last-accessed refresh for the user. Non-blocking:
// when the queue is full the update is dropped and counted.
func (s *Service) TrackAccess(id string) {
	select {
	case s.activityCh <- id:
	default:
		metrics.CacheActivityDropped.Inc()
	}
}

// decode parses a cached user payload. A payload that fails to decode is
// never trusted: the entry is dropped and the caller treats it as a miss.
func (s *Service) decode(ctx context.Context, id, raw string) (*models.CachedUser, bool) {
	var cu models.CachedUser
	if err := json.Unmarshal([]byte(raw), &cu); err != nil || cu.User.ID == "" {
		metrics.CacheCorruptPayloads.Inc()
		logging.Warn().Str("user_id", id).Msg("Corrupt cached user payload, treating as miss")
		s.store.Del(ctx, cache.UserKey(id))
		return nil, false
	}
	return &cu, true
}

// GetCached returns the cached snapshot without falling through to the
// durable store. Used by the sync service and the admin surface.
func (s *Service) GetCached(ctx context.Context, id string) (*models.CachedUser, bool) {
	raw, ok := s.store.Get(ctx, cache.UserKey(id))
	if !ok {
		return nil, false
	}
	return s.decode(ctx, id, raw)
}

// GetUser is the read-through read. On a cache hit it refreshes the
// user's last-accessed marker and returns the snapshot. On a miss it
// loads from the durable store, populates the cache, and returns the
// record. An absent durable row returns ErrNotFound and is never cached
// as a negative result, so subsequent creates are not masked.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	if cu, ok := s.GetCached(ctx, id); ok {
		s.hits.Add(1)
		metrics.CacheHits.WithLabelValues("user").Inc()
		s.TrackAccess(id)
		u := cu.User
		return &u, nil
	}

	s.misses.Add(1)
	metrics.CacheMisses.WithLabelValues("user").Inc()

	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		if s.isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.PrimeUser(ctx, u)
	return u, nil
}

// PrimeUser stores a fresh snapshot of u and records last-accessed.
// Only ever called after a durable read or committed durable write; it
// is never the sole persistence action. Returns whether the snapshot
// reached the store.
func (s *Service) PrimeUser(ctx context.Context, u *models.User) bool {
	payload, err := json.Marshal(models.CachedUser{User: *u, CachedAt: s.now()})
	if err != nil {
		// Marshal of a plain struct cannot realistically fail; guard anyway.
		logging.Error().Err(err).Str("user_id", u.ID).Msg("Failed to encode user snapshot")
		return false
	}
	if !s.store.Set(ctx, cache.UserKey(u.ID), string(payload), s.cfg.UserTTL) {
		return false
	}
	s.store.HSet(ctx, cache.ActivityKey(), u.ID, strconv.FormatInt(s.now().Unix(), 10))
	return true
}

// UpdateUser is the write-through update: durable store first, then the
// cache entry is overwritten (not merged) with the resulting durable
// record. A durable failure aborts before any cache mutation and is
// surfaced to the caller unchanged.
func (s *Service) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	u, err := s.db.UpdateUser(ctx, id, patch)
	if err != nil {
		if s.isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	s.PrimeUser(ctx, u)
	return u, nil
}

// DeleteUser removes the user from the durable store, then drops the
// cache entry and its last-accessed marker.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.db.DeleteUser(ctx, id); err != nil {
		if s.isNotFound(err) {
			return ErrNotFound
		}
		return err
	}

	s.dropEntry(ctx, id, "manual")
	return nil
}

// InvalidateUser removes only the cache entry and last-accessed marker,
// leaving the durable store untouched. The next read repopulates.
func (s *Service) InvalidateUser(ctx context.Context, id string) {
	s.dropEntry(ctx, id, "invalidated")
}

// ForceEvictUser is the administrative eviction; reports whether the
// delete reached the store.
func (s *Service) ForceEvictUser(ctx context.Context, id string) bool {
	ok := s.store.Del(ctx, cache.UserKey(id))
	s.store.HDel(ctx, cache.ActivityKey(), id)
	if ok {
		metrics.CacheEvictions.WithLabelValues("user", "manual").Inc()
	}
	return ok
}

func (s *Service) dropEntry(ctx context.Context, id, reason string) {
	s.store.Del(ctx, cache.UserKey(id))
	s.store.HDel(ctx, cache.ActivityKey(), id)
	metrics.CacheEvictions.WithLabelValues("user", reason).Inc()
}

// CleanupInactiveUsers evicts every cache entry whose last access
// predates the inactivity threshold. Returns the eviction count and
// whether the pass actually ran; when the store is down the pass is
// skipped (false), which is not an error.
func (s *Service) CleanupInactiveUsers(ctx context.Context) (int, bool) {
	if !s.store.Ready() {
		logging.Warn().Msg("Cache store unavailable, skipping inactive-user cleanup")
		return 0, false
	}

	cutoff := s.now().Add(-s.cfg.InactivityThreshold).Unix()
	tracked := s.store.HGetAll(ctx, cache.ActivityKey())

	evicted := 0
	for id, tsRaw := range tracked {
		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			// Unreadable marker: drop it along with the entry.
			s.dropEntry(ctx, id, "inactive")
			evicted++
			continue
		}
		if ts < cutoff {
			s.dropEntry(ctx, id, "inactive")
			evicted++
		}
	}

	return evicted, true
}

// Stats reports cache occupancy and hit counters.
func (s *Service) Stats(ctx context.Context) models.CacheStats {
	stats := models.CacheStats{
		Connected: s.store.Ready(),
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
	}
	if !stats.Connected {
		return stats
	}
	stats.CachedUsers = int64(len(s.store.Keys(ctx, cache.UserKeyPattern())))
	stats.TrackedUsers = int64(len(s.store.HGetAll(ctx, cache.ActivityKey())))
	stats.MemoryBytes = s.store.MemoryUsed(ctx)
	return stats
}

// SetClock overrides the service time source for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

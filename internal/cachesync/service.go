// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package cachesync coordinates the user cache with the durable store:
// freshness-window revalidation on reads, resync after balance mutations,
// field-level consistency validation, and paced bulk resynchronization.
//
// The durable store always wins a disagreement. The sync service never
// merges: a resync overwrites the cached snapshot wholesale with the
// durable row.
package cachesync

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
	"github.com/ludex-market/ludex/internal/models"
	"github.com/ludex-market/ludex/internal/usercache"
)

const breakerName = "durable-store"

// DurableStore is the slice of the database layer the sync service uses
// directly, in addition to what it reaches through the user cache service.
type DurableStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	AdjustBalance(ctx context.Context, id string, delta float64, reason string) (*models.User, error)
}

// Config holds the sync service tuning knobs.
type Config struct {
	// FreshnessWindow is how old a cached snapshot may be before a read
	// revalidates it against the durable store. Default 30s.
	FreshnessWindow time.Duration

	// BulkRate and BulkBurst pace durable reads during bulk resyncs so a
	// large batch cannot saturate the database. Defaults 50/s, burst 10.
	BulkRate  rate.Limit
	BulkBurst int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		FreshnessWindow: 30 * time.Second,
		BulkRate:        rate.Limit(50),
		BulkBurst:       10,
	}
}

// Service layers consistency management on top of the user cache service.
type Service struct {
	users      *usercache.Service
	db         DurableStore
	isNotFound usercache.NotFoundChecker
	cfg        Config

	// Revalidation probes go through a circuit breaker so a failing
	// durable store degrades hit reads to stale-but-served instead of
	// adding load to a database that is already in trouble. Write paths
	// bypass the breaker: their durable errors must surface unchanged.
	breaker *gobreaker.CircuitBreaker[*models.User]
	limiter *rate.Limiter

	validations atomic.Int64
	drift       atomic.Int64
	resyncs     atomic.Int64

	now func() time.Time
}

// New creates the sync service on top of an already-started user cache
// service.
func New(users *usercache.Service, db DurableStore, isNotFound usercache.NotFoundChecker, cfg Config) *Service {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultConfig().FreshnessWindow
	}
	if cfg.BulkRate <= 0 {
		cfg.BulkRate = DefaultConfig().BulkRate
	}
	if cfg.BulkBurst <= 0 {
		cfg.BulkBurst = DefaultConfig().BulkBurst
	}
	if isNotFound == nil {
		isNotFound = func(error) bool { return false }
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	breaker := gobreaker.NewCircuitBreaker[*models.User](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", stateString(from)).
				Str("to", stateString(to)).
				Msg("Durable-store circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Service{
		users:      users,
		db:         db,
		isNotFound: isNotFound,
		cfg:        cfg,
		breaker:    breaker,
		limiter:    rate.NewLimiter(cfg.BulkRate, cfg.BulkBurst),
		now:        time.Now,
	}
}

// probe reads the durable row through the circuit breaker. A not-found
// error counts as a success for breaker accounting; the store answered.
func (s *Service) probe(ctx context.Context, id string) (*models.User, error) {
	u, err := s.breaker.Execute(func() (*models.User, error) {
		u, err := s.db.GetUser(ctx, id)
		if err != nil && s.isNotFound(err) {
			return nil, nil
		}
		return u, err
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
	}
	if err == nil && u == nil {
		return nil, usercache.ErrNotFound
	}
	return u, err
}

func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// GetUserWithSync returns the user, revalidating the cached snapshot
// against the durable store when it is older than the freshness window.
// A fresh hit is served as-is. A stale hit is compared to the durable
// row; drift triggers a resync. When the breaker rejects the probe the
// stale snapshot is served rather than failing the read.
func (s *Service) GetUserWithSync(ctx context.Context, id string) (*models.User, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	cu, ok := s.users.GetCached(ctx, id)
	if ok && cu.Age(s.now()) <= s.cfg.FreshnessWindow {
		s.users.TrackAccess(id)
		u := cu.User
		return &u, nil
	}

	if !ok {
		// Plain read-through; nothing to revalidate.
		return s.users.GetUser(ctx, id)
	}

	durable, err := s.probe(ctx, id)
	if err != nil {
		if errors.Is(err, usercache.ErrNotFound) {
			// The durable row is gone; the cached snapshot is a ghost.
			s.users.InvalidateUser(ctx, id)
			return nil, usercache.ErrNotFound
		}
		if breakerRejected(err) {
			logging.Warn().
				Str("user_id", id).
				Dur("snapshot_age", cu.Age(s.now())).
				Msg("Revalidation rejected by circuit breaker, serving stale snapshot")
		} else {
			logging.Warn().Err(err).Str("user_id", id).Msg("Revalidation probe failed, serving stale snapshot")
		}
		s.users.TrackAccess(id)
		u := cu.User
		return &u, nil
	}

	if fields := diffUsers(&cu.User, durable); len(fields) > 0 {
		for _, f := range fields {
			metrics.SyncDriftDetected.WithLabelValues(f).Inc()
		}
		s.drift.Add(int64(len(fields)))
		logging.Warn().Str("user_id", id).Strs("fields", fields).Msg("Cache drift detected on revalidation")
		s.resync(ctx, durable, "drift")
	} else {
		// Identical content, but the snapshot clock restarts.
		s.resync(ctx, durable, "stale")
	}

	s.users.TrackAccess(id)
	return durable, nil
}

// UpdateUserWithSync applies the patch write-through and counts the
// cache overwrite as a resync.
func (s *Service) UpdateUserWithSync(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	start := time.Now()
	u, err := s.users.UpdateUser(ctx, id, patch)
	metrics.SyncDuration.WithLabelValues("update").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	s.resyncs.Add(1)
	metrics.SyncResyncs.WithLabelValues("manual").Inc()
	return u, nil
}

// UpdateBalanceWithSync applies an atomic balance adjustment on the
// durable store and immediately overwrites the cached snapshot with the
// returned row, so a subsequent cached read can never observe the
// pre-adjustment balance. Durable errors (insufficient funds, absent
// user) surface unchanged; the cache is not touched on failure.
func (s *Service) UpdateBalanceWithSync(ctx context.Context, id string, delta float64, reason string) (*models.User, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("balance").Observe(time.Since(start).Seconds())
	}()

	u, err := s.db.AdjustBalance(ctx, id, delta, reason)
	if err != nil {
		if s.isNotFound(err) {
			return nil, usercache.ErrNotFound
		}
		return nil, err
	}

	s.resync(ctx, u, "balance")
	return u, nil
}

// ValidateConsistency compares the cached snapshot to the durable row
// field by field and reports the result without repairing anything.
// Repair is a separate, explicit action (ResyncUser) so an operator can
// inspect drift before overwriting evidence of it.
func (s *Service) ValidateConsistency(ctx context.Context, id string) (*models.ConsistencyReport, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("validate").Observe(time.Since(start).Seconds())
	}()
	s.validations.Add(1)

	report := &models.ConsistencyReport{UserID: id, CheckedAt: s.now()}

	cu, cached := s.users.GetCached(ctx, id)
	report.CachePresent = cached

	durable, err := s.db.GetUser(ctx, id)
	switch {
	case err == nil:
		report.DurablePresent = true
	case s.isNotFound(err):
		report.DurablePresent = false
	default:
		metrics.SyncValidations.WithLabelValues("error").Inc()
		return nil, err
	}

	switch {
	case !cached && !report.DurablePresent:
		// Absent everywhere is a consistent state.
		report.Consistent = true
		metrics.SyncValidations.WithLabelValues("consistent").Inc()
	case !cached:
		// A cold cache is not drift; the next read populates it.
		report.Consistent = true
		metrics.SyncValidations.WithLabelValues("cache_miss").Inc()
	case !report.DurablePresent:
		report.Consistent = false
		report.DriftFields = []string{"existence"}
		metrics.SyncValidations.WithLabelValues("drift").Inc()
		metrics.SyncDriftDetected.WithLabelValues("existence").Inc()
		s.drift.Add(1)
	default:
		report.DriftFields = diffUsers(&cu.User, durable)
		report.Consistent = len(report.DriftFields) == 0
		if report.Consistent {
			metrics.SyncValidations.WithLabelValues("consistent").Inc()
		} else {
			metrics.SyncValidations.WithLabelValues("drift").Inc()
			for _, f := range report.DriftFields {
				metrics.SyncDriftDetected.WithLabelValues(f).Inc()
			}
			s.drift.Add(int64(len(report.DriftFields)))
		}
	}

	return report, nil
}

// ResyncUser forces a fresh durable read and overwrites the cached
// snapshot. An absent durable row drops the cache entry and returns
// usercache.ErrNotFound.
func (s *Service) ResyncUser(ctx context.Context, id string) (*models.User, error) {
	u, err := s.db.GetUser(ctx, id)
	if err != nil {
		if s.isNotFound(err) {
			s.users.InvalidateUser(ctx, id)
			return nil, usercache.ErrNotFound
		}
		return nil, err
	}
	s.resync(ctx, u, "manual")
	return u, nil
}

// InvalidateUserCache drops the cache entry, leaving the durable store
// untouched.
func (s *Service) InvalidateUserCache(ctx context.Context, id string) {
	s.users.InvalidateUser(ctx, id)
}

// BulkSyncUsers resyncs a batch of users, pacing durable reads with the
// rate limiter. Per-id failures are recorded in the outcome list and do
// not abort the batch; only context cancellation stops it early.
func (s *Service) BulkSyncUsers(ctx context.Context, ids []string) (*models.BulkSyncResult, error) {
	start := time.Now()
	defer func() {
		metrics.SyncDuration.WithLabelValues("bulk").Observe(time.Since(start).Seconds())
	}()
	metrics.BulkSyncBatchSize.Observe(float64(len(ids)))

	result := &models.BulkSyncResult{
		Total:    len(ids),
		Outcomes: make([]models.BulkSyncOutcome, 0, len(ids)),
	}

	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return result, err
		}

		outcome := models.BulkSyncOutcome{UserID: id}
		u, err := s.db.GetUser(ctx, id)
		switch {
		case err == nil:
			s.resync(ctx, u, "bulk")
			outcome.Synced = true
			result.Synced++
		case s.isNotFound(err):
			s.users.InvalidateUser(ctx, id)
			outcome.Error = usercache.ErrNotFound.Error()
			result.Failed++
		default:
			logging.Error().Err(err).Str("user_id", id).Msg("Bulk sync durable read failed")
			outcome.Error = err.Error()
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	logging.Info().
		Int("total", result.Total).
		Int("synced", result.Synced).
		Int("failed", result.Failed).
		Msg("Bulk sync completed")
	return result, nil
}

// Stats combines the user cache counters with the sync counters.
func (s *Service) Stats(ctx context.Context) models.SyncStats {
	return models.SyncStats{
		CacheStats:    s.users.Stats(ctx),
		Validations:   s.validations.Load(),
		DriftDetected: s.drift.Load(),
		Resyncs:       s.resyncs.Load(),
	}
}

// resync overwrites the cached snapshot with the durable row.
func (s *Service) resync(ctx context.Context, u *models.User, trigger string) {
	s.users.PrimeUser(ctx, u)
	s.resyncs.Add(1)
	metrics.SyncResyncs.WithLabelValues(trigger).Inc()
}

// diffUsers returns the names of fields where the cached copy disagrees
// with the durable row. Timestamps are excluded: updated_at moves on
// every durable write and would flag every stale-but-correct snapshot.
func diffUsers(cached, durable *models.User) []string {
	var fields []string
	if cached.Email != durable.Email {
		fields = append(fields, "email")
	}
	if cached.Username != durable.Username {
		fields = append(fields, "username")
	}
	if cached.Role != durable.Role {
		fields = append(fields, "role")
	}
	if cached.Banned != durable.Banned {
		fields = append(fields, "banned")
	}
	if cached.Balance != durable.Balance {
		fields = append(fields, "balance")
	}
	if cached.Hold != durable.Hold {
		fields = append(fields, "hold")
	}
	if cached.SalesCount != durable.SalesCount {
		fields = append(fields, "sales_count")
	}
	if cached.PurchaseCount != durable.PurchaseCount {
		fields = append(fields, "purchase_count")
	}
	if cached.Rating != durable.Rating {
		fields = append(fields, "rating")
	}
	return fields
}

// SetClock overrides the service time source for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

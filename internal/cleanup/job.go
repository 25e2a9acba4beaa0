// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package cleanup runs the periodic eviction of inactive users from the
// cache. One pass at a time: a compare-and-swap guard makes overlapping
// passes (timer firing while a manual trigger runs, or vice versa) skip
// instead of stacking.
package cleanup

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
	"github.com/ludex-market/ludex/internal/models"
)

var _ suture.Service = (*Job)(nil)

// Sweeper is the slice of the user cache service the job drives.
type Sweeper interface {
	CleanupInactiveUsers(ctx context.Context) (int, bool)
}

// Job is the interval scheduler for inactive-user eviction. It
// implements suture.Service; the supervisor owns its lifecycle.
type Job struct {
	sweeper  Sweeper
	interval time.Duration

	// running is the reentrancy guard. Only a successful CAS false→true
	// may run a pass; everyone else skips.
	running atomic.Bool
	armed   atomic.Bool

	mu          sync.Mutex
	lastRunAt   *time.Time
	lastEvicted int
	totalRuns   atomic.Int64

	passTimeout time.Duration
}

// New creates the job. A non-positive interval falls back to 6 hours.
func New(sweeper Sweeper, interval time.Duration) *Job {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Job{
		sweeper:     sweeper,
		interval:    interval,
		passTimeout: 5 * time.Minute,
	}
}

// Serve implements suture.Service: an immediate first pass, then one per
// interval until the context is canceled. Pass failures are absorbed
// here; only context cancellation ends the service.
func (j *Job) Serve(ctx context.Context) error {
	j.armed.Store(true)
	defer j.armed.Store(false)

	logging.Info().Dur("interval", j.interval).Msg("Cache cleanup job started")

	j.runPass(ctx, "scheduled")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Cache cleanup job stopping")
			return ctx.Err()
		case <-ticker.C:
			j.runPass(ctx, "scheduled")
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (j *Job) String() string {
	return "cache-cleanup"
}

// Trigger runs a pass outside the schedule. Returns the eviction count
// and whether a pass actually ran; a pass already in flight or a down
// store reports false.
func (j *Job) Trigger(ctx context.Context) (int, bool) {
	return j.runPass(ctx, "manual")
}

// runPass executes one guarded cleanup pass.
func (j *Job) runPass(ctx context.Context, trigger string) (evicted int, ran bool) {
	if !j.running.CompareAndSwap(false, true) {
		logging.Warn().Str("trigger", trigger).Msg("Cleanup pass already running, skipping")
		metrics.RecordCleanupPass("skipped_overlap", 0, 0)
		return 0, false
	}
	defer j.running.Store(false)

	// A panicking pass must not take the scheduler loop down with it.
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Interface("panic", r).Msg("Cleanup pass panicked")
			metrics.RecordCleanupPass("failed", 0, 0)
			evicted, ran = 0, false
		}
	}()

	passCtx, cancel := context.WithTimeout(ctx, j.passTimeout)
	defer cancel()

	start := time.Now()
	evicted, ran = j.sweeper.CleanupInactiveUsers(passCtx)
	elapsed := time.Since(start)

	if !ran {
		metrics.RecordCleanupPass("skipped_store_down", 0, elapsed)
		return 0, false
	}

	now := time.Now()
	j.mu.Lock()
	j.lastRunAt = &now
	j.lastEvicted = evicted
	j.mu.Unlock()
	j.totalRuns.Add(1)

	metrics.RecordCleanupPass("completed", evicted, elapsed)
	logging.Info().
		Str("trigger", trigger).
		Int("evicted", evicted).
		Dur("elapsed", elapsed).
		Msg("Cleanup pass completed")
	return evicted, true
}

// Status reports the scheduler state for the admin surface.
func (j *Job) Status() models.CleanupStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return models.CleanupStatus{
		Armed:       j.armed.Load(),
		Running:     j.running.Load(),
		Interval:    j.interval,
		LastRunAt:   j.lastRunAt,
		LastEvicted: j.lastEvicted,
		TotalRuns:   j.totalRuns.Load(),
	}
}

// SetPassTimeout overrides the per-pass deadline, for tests.
func (j *Job) SetPassTimeout(d time.Duration) {
	if d > 0 {
		j.passTimeout = d
	}
}

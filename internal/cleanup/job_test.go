// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package cleanup

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSweeper counts passes and can block or report the store as down.
type fakeSweeper struct {
	mu      sync.Mutex
	passes  int
	evict   int
	down    bool
	block   chan struct{} // when non-nil, passes wait here
	started chan struct{} // signaled once a blocked pass has begun
}

func (f *fakeSweeper) CleanupInactiveUsers(_ context.Context) (int, bool) {
	f.mu.Lock()
	f.passes++
	down := f.down
	evict := f.evict
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if down {
		return 0, false
	}
	return evict, true
}

func (f *fakeSweeper) passCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passes
}

func TestTriggerRunsPass(t *testing.T) {
	sw := &fakeSweeper{evict: 3}
	job := New(sw, time.Hour)

	evicted, ran := job.Trigger(context.Background())
	if !ran {
		t.Fatal("trigger did not run a pass")
	}
	if evicted != 3 {
		t.Errorf("evicted = %d, want 3", evicted)
	}

	status := job.Status()
	if status.LastEvicted != 3 || status.TotalRuns != 1 {
		t.Errorf("status = %+v, want lastEvicted 3, totalRuns 1", status)
	}
	if status.LastRunAt == nil {
		t.Error("last run time not recorded")
	}
}

func TestOverlappingPassSkips(t *testing.T) {
	sw := &fakeSweeper{
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	job := New(sw, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		job.Trigger(context.Background())
	}()
	<-sw.started

	// A second trigger while the first is in flight must skip, not queue.
	evicted, ran := job.Trigger(context.Background())
	if ran {
		t.Error("overlapping pass ran instead of skipping")
	}
	if evicted != 0 {
		t.Errorf("evicted = %d, want 0", evicted)
	}

	close(sw.block)
	<-done

	if got := sw.passCount(); got != 1 {
		t.Errorf("sweeper passes = %d, want 1", got)
	}
	if job.Status().TotalRuns != 1 {
		t.Errorf("total runs = %d, want 1", job.Status().TotalRuns)
	}
}

func TestStoreDownPassNotCountedAsRun(t *testing.T) {
	sw := &fakeSweeper{down: true}
	job := New(sw, time.Hour)

	evicted, ran := job.Trigger(context.Background())
	if ran || evicted != 0 {
		t.Errorf("pass with down store = (%d, %v), want (0, false)", evicted, ran)
	}
	if job.Status().TotalRuns != 0 {
		t.Error("skipped pass counted as a run")
	}
	if job.Status().LastRunAt != nil {
		t.Error("skipped pass recorded a run time")
	}
}

func TestServeRunsImmediateFirstPass(t *testing.T) {
	sw := &fakeSweeper{}
	job := New(sw, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Serve(ctx) }()

	// The first pass happens on start, not after the first interval.
	deadline := time.After(2 * time.Second)
	for sw.passCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no immediate first pass within 2s")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if !job.Status().Armed {
		t.Error("job not armed while serving")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Serve returned %v, want context.Canceled", err)
	}
	if job.Status().Armed {
		t.Error("job still armed after shutdown")
	}
}

func TestServeTicksOnInterval(t *testing.T) {
	sw := &fakeSweeper{}
	job := New(sw, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Serve(ctx) }()

	deadline := time.After(2 * time.Second)
	for sw.passCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d passes within 2s, want >= 3", sw.passCount())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestDefaultInterval(t *testing.T) {
	job := New(&fakeSweeper{}, 0)
	if job.Status().Interval != 6*time.Hour {
		t.Errorf("interval = %v, want 6h", job.Status().Interval)
	}
}

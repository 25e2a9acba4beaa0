// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ludex-market/ludex/internal/models"
)

func TestCacheEndpointsRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.seedUser(t, models.RoleUser, 0)

	if rec := env.do(t, http.MethodGet, "/api/v1/cache/stats", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated stats status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/cache/stats", userToken, nil); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin stats status = %d, want 403", rec.Code)
	}
}

func TestCacheStats(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 0)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)

	// One miss-then-populate so the counters are non-trivial.
	env.do(t, http.MethodGet, "/api/v1/users/"+u.ID, adminToken, nil)

	rec := env.do(t, http.MethodGet, "/api/v1/cache/stats", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Cache   models.SyncStats     `json:"cache"`
			Cleanup models.CleanupStatus `json:"cleanup"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if !resp.Data.Cache.Connected {
		t.Error("stats report cache disconnected")
	}
	if resp.Data.Cache.CachedUsers != 1 {
		t.Errorf("cached_users = %d, want 1", resp.Data.Cache.CachedUsers)
	}
	if resp.Data.Cleanup.TotalRuns != 0 {
		t.Errorf("cleanup total_runs = %d, want 0", resp.Data.Cleanup.TotalRuns)
	}
}

func TestTriggerCleanup(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/cache/cleanup", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data struct {
			Ran     bool `json:"ran"`
			Evicted int  `json:"evicted"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode cleanup response: %v", err)
	}
	if !resp.Data.Ran {
		t.Error("manual cleanup pass did not run")
	}
	if resp.Data.Evicted != 0 {
		t.Errorf("evicted = %d, want 0 on a fresh cache", resp.Data.Evicted)
	}
}

func TestTriggerCleanupStoreDown(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)
	env.store.SetReady(false)

	rec := env.do(t, http.MethodPost, "/api/v1/cache/cleanup", adminToken, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("cleanup with store down status = %d, want 202", rec.Code)
	}
	var resp struct {
		Data struct {
			Ran bool `json:"ran"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode cleanup response: %v", err)
	}
	if resp.Data.Ran {
		t.Error("pass reported as run with the store down")
	}
}

func TestCachedUserLifecycle(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 0)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)
	ctx := context.Background()

	// Cold cache: no snapshot to inspect.
	rec := env.do(t, http.MethodGet, "/api/v1/cache/user/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cold snapshot status = %d, want 404", rec.Code)
	}

	// A user read populates it.
	env.do(t, http.MethodGet, "/api/v1/users/"+u.ID, adminToken, nil)

	rec = env.do(t, http.MethodGet, "/api/v1/cache/user/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.CachedUser `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if resp.Data.User.ID != u.ID || resp.Data.CachedAt.IsZero() {
		t.Errorf("unexpected snapshot: %+v", resp.Data)
	}

	// Force eviction drops it again.
	rec = env.do(t, http.MethodDelete, "/api/v1/cache/user/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("evict status = %d", rec.Code)
	}
	if _, ok := env.users.GetCached(ctx, u.ID); ok {
		t.Error("snapshot survived eviction")
	}

	env.store.SetReady(false)
	rec = env.do(t, http.MethodDelete, "/api/v1/cache/user/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("evict with store down status = %d, want 503", rec.Code)
	}
}

func TestInvalidateCachedUser(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 0)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)

	env.do(t, http.MethodGet, "/api/v1/users/"+u.ID, adminToken, nil)

	rec := env.do(t, http.MethodPost, "/api/v1/cache/invalidate/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("invalidate status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, ok := env.users.GetCached(context.Background(), u.ID); ok {
		t.Error("snapshot survived invalidation")
	}
}

func TestValidateAndSyncCachedUser(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 100)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)
	ctx := context.Background()

	// Prime, then mutate the durable store behind the cache's back.
	env.do(t, http.MethodGet, "/api/v1/users/"+u.ID, adminToken, nil)
	if _, err := env.db.AdjustBalance(ctx, u.ID, 50, "out of band credit"); err != nil {
		t.Fatalf("out-of-band adjust failed: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/cache/validate/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("validate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.ConsistencyReport `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if resp.Data.Consistent {
		t.Fatal("drifted snapshot reported consistent")
	}
	if len(resp.Data.DriftFields) != 1 || resp.Data.DriftFields[0] != "balance" {
		t.Errorf("drift_fields = %v, want [balance]", resp.Data.DriftFields)
	}

	// Validation is read-only; resync repairs.
	rec = env.do(t, http.MethodPost, "/api/v1/cache/sync/"+u.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeUser(t, rec); got.Balance != 150 {
		t.Errorf("synced balance = %v, want 150", got.Balance)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/cache/validate/"+u.ID, adminToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if !resp.Data.Consistent {
		t.Errorf("report after resync = %+v, want consistent", resp.Data)
	}
}

func TestSyncCachedUserNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/cache/sync/"+uuid.New().String(), adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("sync of missing user status = %d, want 404", rec.Code)
	}
}

func TestBulkSync(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.seedUser(t, models.RoleUser, 0)
	b, _ := env.seedUser(t, models.RoleUser, 0)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)

	missing := uuid.New().String()
	rec := env.do(t, http.MethodPost, "/api/v1/cache/bulk-sync", adminToken, models.BulkSyncRequest{
		UserIDs: []string{a.ID, b.ID, missing},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk sync status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.BulkSyncResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode bulk result: %v", err)
	}
	if resp.Data.Total != 3 || resp.Data.Synced != 2 || resp.Data.Failed != 1 {
		t.Errorf("bulk result = %+v, want total 3 synced 2 failed 1", resp.Data)
	}

	ctx := context.Background()
	if _, ok := env.users.GetCached(ctx, a.ID); !ok {
		t.Error("bulk sync did not cache first user")
	}
	if _, ok := env.users.GetCached(ctx, b.ID); !ok {
		t.Error("bulk sync did not cache second user")
	}
}

func TestBulkSyncValidation(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.seedUser(t, models.RoleAdmin, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/cache/bulk-sync", adminToken, models.BulkSyncRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty bulk sync status = %d, want 400", rec.Code)
	}
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/models"
)

// fakeUserCache records pipeline adapter calls.
type fakeUserCache struct {
	mu          sync.Mutex
	cached      map[string]*models.CachedUser
	tracked     []string
	primed      []*models.User
	invalidated []string
}

func newFakeUserCache() *fakeUserCache {
	return &fakeUserCache{cached: make(map[string]*models.CachedUser)}
}

func (f *fakeUserCache) GetCached(_ context.Context, id string) (*models.CachedUser, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cu, ok := f.cached[id]
	return cu, ok
}

func (f *fakeUserCache) TrackAccess(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, id)
}

func (f *fakeUserCache) PrimeUser(_ context.Context, u *models.User) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primed = append(f.primed, u)
	return true
}

func (f *fakeUserCache) InvalidateUser(_ context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, id)
}

func userRoute(mw func(http.Handler) http.Handler, method string, handler http.HandlerFunc) *chi.Mux {
	router := chi.NewRouter()
	router.With(mw).Method(method, "/users/{userID}", handler)
	return router
}

func TestCachePopulatePutsSnapshotInContext(t *testing.T) {
	fc := newFakeUserCache()
	fc.cached["u1"] = &models.CachedUser{User: models.User{ID: "u1", Username: "alice"}}

	var got *models.CachedUser
	router := userRoute(CachePopulate(fc), http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		got = CachedUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
	if got == nil || got.User.Username != "alice" {
		t.Errorf("cached user in context = %+v", got)
	}
}

func TestCachePopulateMissLeavesContextEmpty(t *testing.T) {
	fc := newFakeUserCache()

	var got *models.CachedUser
	router := userRoute(CachePopulate(fc), http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		got = CachedUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on cache miss", rec.Code)
	}
	if got != nil {
		t.Errorf("expected nil snapshot on miss, got %+v", got)
	}
}

func TestTrackActivityOnSuccessOnly(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   int
	}{
		{"success tracked", http.StatusOK, 1},
		{"client error not tracked", http.StatusNotFound, 0},
		{"server error not tracked", http.StatusInternalServerError, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := newFakeUserCache()
			router := userRoute(TrackActivity(fc), http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/u1", nil))
			if len(fc.tracked) != tc.want {
				t.Errorf("tracked %d times, want %d", len(fc.tracked), tc.want)
			}
		})
	}
}

func TestInvalidateOnWriteGatedOn2xx(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   int
	}{
		{"2xx invalidates", http.StatusOK, 1},
		{"4xx leaves cache", http.StatusBadRequest, 0},
		{"5xx leaves cache", http.StatusInternalServerError, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := newFakeUserCache()
			router := userRoute(InvalidateOnWrite(fc), http.MethodDelete, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/users/u1", nil))
			if len(fc.invalidated) != tc.want {
				t.Errorf("invalidated %d times, want %d", len(fc.invalidated), tc.want)
			}
		})
	}
}

func TestWriteThroughOnWritePrimesFromEnvelope(t *testing.T) {
	fc := newFakeUserCache()
	router := userRoute(WriteThroughOnWrite(fc, nil), http.MethodPatch, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    models.User{ID: "u1", Username: "renamed", Balance: 50},
		})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/users/u1", nil))

	if len(fc.primed) != 1 {
		t.Fatalf("primed %d users, want 1", len(fc.primed))
	}
	if fc.primed[0].Username != "renamed" || fc.primed[0].Balance != 50 {
		t.Errorf("primed user = %+v", fc.primed[0])
	}
}

func TestWriteThroughOnWriteSkipsFailures(t *testing.T) {
	fc := newFakeUserCache()
	router := userRoute(WriteThroughOnWrite(fc, nil), http.MethodPatch, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "conflict"})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/users/u1", nil))
	if len(fc.primed) != 0 {
		t.Errorf("primed on a failed response")
	}
}

func TestResponseCacheHitAndMiss(t *testing.T) {
	store := cache.NewMemoryStore()
	calls := 0

	router := chi.NewRouter()
	router.With(ResponseCache(store, time.Minute)).Get("/api/v1/users/{userID}", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	// First request misses and stores.
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil))
	if got := rec.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("first X-Cache = %q, want MISS", got)
	}

	// Second request is served from cache without invoking the handler.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1", nil))
	if got := rec.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("second X-Cache = %q, want HIT", got)
	}
	if rec.Body.String() != `{"success":true}` {
		t.Errorf("cached body = %q", rec.Body.String())
	}
	if calls != 1 {
		t.Errorf("handler invoked %d times, want 1", calls)
	}

	// A different query string is a different cache key.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/u1?full=1", nil))
	if calls != 2 {
		t.Errorf("handler invoked %d times, want 2 for distinct query", calls)
	}
}

func TestResponseCacheSkipsErrorsAndNonJSON(t *testing.T) {
	store := cache.NewMemoryStore()

	router := chi.NewRouter()
	router.With(ResponseCache(store, time.Minute)).Get("/error", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"success":false}`))
	})
	router.With(ResponseCache(store, time.Minute)).Get("/text", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("hello"))
	})

	for _, path := range []string{"/error", "/text"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if store.Exists(context.Background(), cache.APICacheKey(path)) {
			t.Errorf("response for %s was cached", path)
		}
	}
}

func TestResponseCacheIgnoresNonGET(t *testing.T) {
	store := cache.NewMemoryStore()

	router := chi.NewRouter()
	router.With(ResponseCache(store, time.Minute)).Post("/submit", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/submit", nil))
	if store.Exists(context.Background(), cache.APICacheKey("/submit")) {
		t.Error("POST response was cached")
	}
}

func TestInvalidateResponseCacheDropsPrefix(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()

	// Seed two cached reads under the prefix and one outside it.
	for _, url := range []string{"/api/v1/users/u1", "/api/v1/users/u1?full=1", "/api/v1/other"} {
		entry, _ := json.Marshal(models.APIResponseCacheEntry{StatusCode: 200, Body: []byte("{}")})
		store.Set(ctx, cache.APICacheKey(url), string(entry), 0)
	}

	router := chi.NewRouter()
	router.With(InvalidateResponseCache(store, "/api/v1/users/")).
		Patch("/api/v1/users/{userID}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/users/u1", nil))

	if store.Exists(ctx, cache.APICacheKey("/api/v1/users/u1")) ||
		store.Exists(ctx, cache.APICacheKey("/api/v1/users/u1?full=1")) {
		t.Error("prefixed entries survived invalidation")
	}
	if !store.Exists(ctx, cache.APICacheKey("/api/v1/other")) {
		t.Error("unrelated entry was invalidated")
	}
}

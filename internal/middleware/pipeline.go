// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
	"github.com/ludex-market/ludex/internal/models"
	"github.com/ludex-market/ludex/internal/usercache"
)

// UserCacheReader is the slice of the user cache service the pipeline
// adapters read through.
type UserCacheReader interface {
	GetCached(ctx context.Context, id string) (*models.CachedUser, bool)
	TrackAccess(id string)
}

// UserCacheWriter is the slice the write-side adapters use.
type UserCacheWriter interface {
	PrimeUser(ctx context.Context, u *models.User) bool
	InvalidateUser(ctx context.Context, id string)
}

var _ UserCacheReader = (*usercache.Service)(nil)
var _ UserCacheWriter = (*usercache.Service)(nil)

// CachePopulate loads the cached user snapshot for the {userID} route
// parameter into the request context before the handler runs. A miss is
// not an error; the handler falls through to the read-through path.
func CachePopulate(users UserCacheReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "userID")
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			if cu, ok := users.GetCached(r.Context(), id); ok {
				ctx := context.WithValue(r.Context(), cachedUserContextKey, cu)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CachedUserFromContext returns the snapshot placed by CachePopulate,
// or nil when the request missed the cache.
func CachedUserFromContext(ctx context.Context) *models.CachedUser {
	cu, _ := ctx.Value(cachedUserContextKey).(*models.CachedUser)
	return cu
}

// TrackActivity queues a last-accessed refresh for the {userID} route
// parameter after the handler completes successfully. Never blocks the
// response.
func TrackActivity(users UserCacheReader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if id := chi.URLParam(r, "userID"); id != "" && sw.status < 400 {
				users.TrackAccess(id)
			}
		})
	}
}

// InvalidateOnWrite drops the cache entry for the {userID} route
// parameter after a successful (2xx) mutating response. Failed requests
// leave the cache alone: the durable store did not change.
func InvalidateOnWrite(users UserCacheWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if id := chi.URLParam(r, "userID"); id != "" && is2xx(sw.status) {
				users.InvalidateUser(r.Context(), id)
			}
		})
	}
}

// UserExtractor pulls the updated user record out of a successful
// response body so WriteThroughOnWrite can prime the cache with it.
type UserExtractor func(body []byte) (*models.User, bool)

// EnvelopeUserExtractor decodes the standard {"success":true,"data":{...user}}
// response envelope.
func EnvelopeUserExtractor(body []byte) (*models.User, bool) {
	var envelope struct {
		Success bool        `json:"success"`
		Data    models.User `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || !envelope.Success || envelope.Data.ID == "" {
		return nil, false
	}
	return &envelope.Data, true
}

// bufferingWriter tees the response body so a post-handler adapter can
// inspect it.
type bufferingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	buf         bytes.Buffer
}

func (w *bufferingWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *bufferingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

// WriteThroughOnWrite primes the cache with the user record embedded in
// a successful mutating response. Used on routes whose handlers write
// the durable store directly; the cache overwrite happens only after
// the handler has committed and responded 2xx.
func WriteThroughOnWrite(users UserCacheWriter, extract UserExtractor) func(http.Handler) http.Handler {
	if extract == nil {
		extract = EnvelopeUserExtractor
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bw := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(bw, r)

			if !is2xx(bw.status) {
				return
			}
			if u, ok := extract(bw.buf.Bytes()); ok {
				users.PrimeUser(r.Context(), u)
			}
		})
	}
}

// ResponseCache serves successful GET responses from the api_cache:
// namespace. Only 2xx JSON responses are stored; everything else passes
// through untouched. The key is the request path plus query string, so
// distinct filters cache separately.
func ResponseCache(store cache.Store, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := cache.APICacheKey(r.URL.RequestURI())
			if raw, ok := store.Get(r.Context(), key); ok {
				var entry models.APIResponseCacheEntry
				if err := json.Unmarshal([]byte(raw), &entry); err == nil {
					metrics.APIResponseCacheHits.Inc()
					metrics.CacheHits.WithLabelValues("api_response").Inc()
					w.Header().Set("Content-Type", entry.ContentType)
					w.Header().Set("X-Cache", "HIT")
					w.WriteHeader(entry.StatusCode)
					_, _ = w.Write(entry.Body)
					return
				}
				// Corrupt entry: drop and fall through to the handler.
				metrics.CacheCorruptPayloads.Inc()
				store.Del(r.Context(), key)
			}
			metrics.APIResponseCacheMisses.Inc()
			metrics.CacheMisses.WithLabelValues("api_response").Inc()

			bw := &bufferingWriter{ResponseWriter: w, status: http.StatusOK}
			bw.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(bw, r)

			if !is2xx(bw.status) || !isJSON(bw.Header().Get("Content-Type")) {
				return
			}
			entry := models.APIResponseCacheEntry{
				StatusCode:  bw.status,
				ContentType: bw.Header().Get("Content-Type"),
				Body:        bw.buf.Bytes(),
				CachedAt:    time.Now(),
			}
			payload, err := json.Marshal(entry)
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response cache entry")
				return
			}
			store.Set(r.Context(), key, string(payload), ttl)
		})
	}
}

// InvalidateResponseCache drops cached GET responses whose URL starts
// with the given prefix after a successful mutating request. Wire it on
// write routes that would otherwise serve stale reads for up to a TTL.
func InvalidateResponseCache(store cache.Store, urlPrefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			if is2xx(sw.status) {
				n := store.DelPattern(r.Context(), cache.APICachePattern(urlPrefix))
				if n > 0 {
					logging.Ctx(r.Context()).Debug().
						Int64("entries", n).
						Str("prefix", urlPrefix).
						Msg("Response cache invalidated")
				}
			}
		})
	}
}

func is2xx(status int) bool {
	return status >= 200 && status < 300
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(contentType, "application/json")
}

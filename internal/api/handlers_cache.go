// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ludex-market/ludex/internal/models"
	"github.com/ludex-market/ludex/internal/usercache"
)

// CacheStats reports combined cache, sync, and cleanup observability.
// GET /api/v1/cache/stats
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(map[string]interface{}{
		"cache":   h.sync.Stats(r.Context()),
		"cleanup": h.cleanup.Status(),
	})
}

// TriggerCleanup runs a cleanup pass outside the schedule.
// POST /api/v1/cache/cleanup
func (h *Handler) TriggerCleanup(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	evicted, ran := h.cleanup.Trigger(r.Context())
	if !ran {
		// Either a pass is already in flight or the store is down; the
		// status payload tells the operator which.
		rw.writeJSON(http.StatusAccepted, APIResponse{
			Success: true,
			Data: map[string]interface{}{
				"ran":     false,
				"evicted": 0,
				"status":  h.cleanup.Status(),
			},
			Meta: rw.meta(),
		})
		return
	}
	rw.Success(map[string]interface{}{
		"ran":     true,
		"evicted": evicted,
	})
}

// GetCachedUser returns the raw cached snapshot without touching the
// durable store. GET /api/v1/cache/user/{userID}
func (h *Handler) GetCachedUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	cu, ok := h.users.GetCached(r.Context(), id)
	if !ok {
		rw.NotFound("no cached snapshot for user")
		return
	}
	rw.Success(cu)
}

// EvictCachedUser force-removes a user's cache entry.
// DELETE /api/v1/cache/user/{userID}
func (h *Handler) EvictCachedUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	if !h.users.ForceEvictUser(r.Context(), id) {
		rw.ServiceUnavailable("cache store unavailable")
		return
	}
	rw.NoContent()
}

// InvalidateCachedUser drops the cache entry so the next read
// repopulates from the durable store.
// POST /api/v1/cache/invalidate/{userID}
func (h *Handler) InvalidateCachedUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	h.sync.InvalidateUserCache(r.Context(), id)
	rw.Success(map[string]string{"user_id": id, "state": "invalidated"})
}

// ValidateCachedUser compares cache and durable state for one user.
// POST /api/v1/cache/validate/{userID}
func (h *Handler) ValidateCachedUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	report, err := h.sync.ValidateConsistency(r.Context(), id)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(report)
}

// SyncCachedUser forces a resync of one user from the durable store.
// POST /api/v1/cache/sync/{userID}
func (h *Handler) SyncCachedUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	u, err := h.sync.ResyncUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, usercache.ErrNotFound) {
			rw.NotFound("user not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	rw.Success(u)
}

// BulkSync resyncs a batch of users. Partial failures are reported in
// the per-id outcomes, not as an HTTP error.
// POST /api/v1/cache/bulk-sync
func (h *Handler) BulkSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.BulkSyncRequest
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	result, err := h.sync.BulkSyncUsers(r.Context(), req.UserIDs)
	if err != nil {
		// Context cancellation mid-batch; return what completed.
		rw.writeJSON(http.StatusRequestTimeout, APIResponse{
			Success: false,
			Data:    result,
			Error:   &APIError{Code: ErrCodeInternalError, Message: "bulk sync interrupted"},
			Meta:    rw.meta(),
		})
		return
	}
	rw.Success(result)
}

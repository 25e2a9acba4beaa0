// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/ludex-market/ludex/internal/auth"
	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/cachesync"
	"github.com/ludex-market/ludex/internal/cleanup"
	"github.com/ludex-market/ludex/internal/config"
	"github.com/ludex-market/ludex/internal/database"
	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
	"github.com/ludex-market/ludex/internal/middleware"
	"github.com/ludex-market/ludex/internal/models"
	"github.com/ludex-market/ludex/internal/usercache"
)

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	cfg      *config.Config
	db       *database.DB
	store    cache.Store
	users    *usercache.Service
	sync     *cachesync.Service
	cleanup  *cleanup.Job
	jwt      *auth.JWTManager
	validate *validator.Validate
}

// NewHandler creates the handler set.
func NewHandler(
	cfg *config.Config,
	db *database.DB,
	store cache.Store,
	users *usercache.Service,
	syncSvc *cachesync.Service,
	cleanupJob *cleanup.Job,
	jwtManager *auth.JWTManager,
) *Handler {
	return &Handler{
		cfg:      cfg,
		db:       db,
		store:    store,
		users:    users,
		sync:     syncSvc,
		cleanup:  cleanupJob,
		jwt:      jwtManager,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// decodeAndValidate parses the request body into v and runs struct
// validation. Writes the error response itself and reports success.
func (h *Handler) decodeAndValidate(rw *ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		rw.BadRequest("invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			rw.ValidationError("request validation failed", details)
			return false
		}
		rw.BadRequest(err.Error())
		return false
	}
	return true
}

// clientIP extracts the caller address, trusting X-Forwarded-For when
// present (first hop).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if ip, _, ok := strings.Cut(fwd, ","); ok {
			return strings.TrimSpace(ip)
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Health reports liveness of the durable store and the cache store.
// The cache being down degrades service but does not fail the check;
// the durable store being down does.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	payload := map[string]interface{}{
		"cache_connected": h.store.Ready(),
	}
	if err := h.db.Ping(r.Context()); err != nil {
		payload["database"] = "down"
		rw.writeJSON(http.StatusServiceUnavailable, APIResponse{Success: false, Data: payload})
		return
	}
	payload["database"] = "up"
	rw.Success(payload)
}

// CreateUser registers a new account.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var req models.CreateUserRequest
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		rw.InternalError("failed to process password")
		return
	}

	u := &models.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         models.RoleUser,
	}
	if err := h.db.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, database.ErrDuplicateUser) {
			rw.Conflict("email or username already taken")
			return
		}
		rw.DatabaseError(err)
		return
	}

	h.users.PrimeUser(r.Context(), u)
	rw.Created(u)
}

// GetUser returns one user. A snapshot placed in the context by the
// cache-populate adapter short-circuits the read; otherwise the sync
// service's revalidating read runs.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	if cu := middleware.CachedUserFromContext(r.Context()); cu != nil {
		u := cu.User
		rw.Success(&u)
		return
	}

	u, err := h.sync.GetUserWithSync(r.Context(), id)
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

// UpdateUser applies a partial update write-through.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	var patch models.UserPatch
	if !h.decodeAndValidate(rw, r, &patch) {
		return
	}

	u, err := h.sync.UpdateUserWithSync(r.Context(), id, &patch)
	if err != nil {
		switch {
		case errors.Is(err, usercache.ErrNotFound):
			rw.NotFound("user not found")
		case errors.Is(err, database.ErrDuplicateUser):
			rw.Conflict("email or username already taken")
		default:
			rw.DatabaseError(err)
		}
		return
	}
	rw.Success(u)
}

// DeleteUser removes the account from both stores.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, usercache.ErrNotFound) {
			rw.NotFound("user not found")
			return
		}
		rw.DatabaseError(err)
		return
	}
	// Session and auth-log entries go with the account.
	h.store.Del(r.Context(), cache.SessionKey(id), cache.AuthLogsKey(id))
	rw.NoContent()
}

// ListUsers returns users matching the query filters. Admin only.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	filter := models.UserFilter{Role: r.URL.Query().Get("role"), Limit: 100}
	if v := r.URL.Query().Get("banned"); v != "" {
		banned := v == "true"
		filter.Banned = &banned
	}

	users, err := h.db.ListUsers(r.Context(), filter)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	rw.Success(users)
}

// AdjustBalance applies an atomic balance change and resyncs the cache.
// Admin only.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "userID")

	var req models.BalanceAdjustmentRequest
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	u, err := h.sync.UpdateBalanceWithSync(r.Context(), id, req.Delta, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, usercache.ErrNotFound):
			rw.NotFound("user not found")
		case errors.Is(err, database.ErrInsufficientFunds):
			rw.Error(http.StatusConflict, ErrCodeInsufficientFunds, "adjustment would overdraw the balance")
		default:
			rw.DatabaseError(err)
		}
		return
	}
	rw.Success(u)
}

// Login authenticates by username and password, throttled per IP via
// the rate_limit: counters. Successful logins write a session marker
// and an auth-log entry; failures log the attempt too.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	ip := clientIP(r)

	var req models.LoginRequest
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	limit := int64(h.cfg.Security.LoginAttemptLimit)
	if limit > 0 {
		attempts := h.store.Incr(ctx, cache.RateLimitKey("login", ip), h.cfg.Security.LoginAttemptWindow())
		if attempts > limit {
			metrics.AuthAttempts.WithLabelValues("throttled").Inc()
			metrics.APIRateLimitHits.WithLabelValues("/api/v1/auth/login").Inc()
			rw.TooManyRequests("too many login attempts, try again later")
			return
		}
	}

	u, err := h.db.GetUserByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, database.ErrUserNotFound) {
		rw.DatabaseError(err)
		return
	}
	if err != nil || !auth.CheckPassword(u.PasswordHash, req.Password) {
		if u != nil {
			h.recordAuthLog(ctx, u.ID, ip, r.UserAgent(), false)
		}
		metrics.AuthAttempts.WithLabelValues("invalid_credentials").Inc()
		rw.Unauthorized("invalid username or password")
		return
	}
	if u.Banned {
		h.recordAuthLog(ctx, u.ID, ip, r.UserAgent(), false)
		rw.Forbidden("account is banned")
		return
	}

	token, expiresAt, err := h.jwt.GenerateToken(u.ID, u.Username, u.Role)
	if err != nil {
		rw.InternalError("failed to issue token")
		return
	}

	// Session marker and auth log are best-effort cache writes.
	marker, merr := json.Marshal(models.SessionMarker{
		UserID:    u.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	})
	if merr == nil {
		h.store.Set(ctx, cache.SessionKey(u.ID), string(marker), h.jwt.SessionTimeout())
	}
	h.recordAuthLog(ctx, u.ID, ip, r.UserAgent(), true)
	h.users.PrimeUser(ctx, u)
	h.users.TrackAccess(u.ID)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	rw.Success(models.LoginResponse{Token: token, User: *u})
}

// authLogMaxEntries bounds the per-user auth log list.
const authLogMaxEntries = 20

func (h *Handler) recordAuthLog(ctx context.Context, userID, ip, userAgent string, success bool) {
	entry, err := json.Marshal(models.AuthLogEntry{
		IP:        ip,
		UserAgent: userAgent,
		Success:   success,
		At:        time.Now(),
	})
	if err != nil {
		logging.Error().Err(err).Msg("Failed to encode auth log entry")
		return
	}
	h.store.LPush(ctx, cache.AuthLogsKey(userID), string(entry), authLogMaxEntries)
}

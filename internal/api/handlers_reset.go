// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package api

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ludex-market/ludex/internal/auth"
	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/database"
	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/models"
)

const (
	resetCodeType = "password_reset"
	resetCodeTTL  = 15 * time.Minute
)

// RequestPasswordReset issues a short-lived reset code under the
// temp_code: namespace. The response never reveals whether the email
// exists; delivery of the code is out of scope (it is logged only).
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	var req models.PasswordResetRequest
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	// Per-IP throttle shared with login, so code requests cannot be used
	// to probe for registered emails at volume.
	limit := int64(h.cfg.Security.LoginAttemptLimit)
	if limit > 0 {
		attempts := h.store.Incr(ctx, cache.RateLimitKey("reset", clientIP(r)), h.cfg.Security.LoginAttemptWindow())
		if attempts > limit {
			rw.TooManyRequests("too many reset requests, try again later")
			return
		}
	}

	accepted := map[string]string{"state": "accepted"}

	u, err := h.db.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			rw.Success(accepted)
			return
		}
		rw.DatabaseError(err)
		return
	}

	code, err := generateResetCode()
	if err != nil {
		rw.InternalError("failed to generate reset code")
		return
	}
	if !h.store.Set(ctx, cache.TempCodeKey(resetCodeType, req.Email), code, resetCodeTTL) {
		// Without the store there is nowhere to hold the code.
		rw.ServiceUnavailable("password reset temporarily unavailable")
		return
	}

	logging.Ctx(ctx).Info().
		Str("user_id", u.ID).
		Str("code", code).
		Msg("Password reset code issued")
	rw.Success(accepted)
}

// ConfirmPasswordReset exchanges a valid reset code for a new password.
// The code is single use; the user's session marker is dropped so open
// sessions must log in again.
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	var req models.PasswordResetConfirm
	if !h.decodeAndValidate(rw, r, &req) {
		return
	}

	key := cache.TempCodeKey(resetCodeType, req.Email)
	stored, ok := h.store.Get(ctx, key)
	if !ok || subtle.ConstantTimeCompare([]byte(stored), []byte(req.Code)) != 1 {
		rw.Unauthorized("invalid or expired reset code")
		return
	}

	u, err := h.db.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			rw.Unauthorized("invalid or expired reset code")
			return
		}
		rw.DatabaseError(err)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		rw.InternalError("failed to process password")
		return
	}
	if err := h.db.UpdatePassword(ctx, u.ID, hash); err != nil {
		rw.DatabaseError(err)
		return
	}

	// Durable write committed: burn the code and the session marker.
	h.store.Del(ctx, key, cache.SessionKey(u.ID))

	logging.Ctx(ctx).Info().Str("user_id", u.ID).Msg("Password reset completed")
	rw.Success(map[string]string{"state": "password_updated"})
}

// generateResetCode returns a 6-digit numeric code.
func generateResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

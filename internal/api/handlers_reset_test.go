// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/models"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 0)
	ctx := context.Background()

	// Simulate an open session that the reset must revoke.
	env.store.Set(ctx, cache.SessionKey(u.ID), `{"user_id":"`+u.ID+`"}`, time.Hour)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/reset-request", "", models.PasswordResetRequest{Email: u.Email})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset request status = %d, body %s", rec.Code, rec.Body.String())
	}

	code, ok := env.store.Get(ctx, cache.TempCodeKey("password_reset", u.Email))
	if !ok || len(code) != 6 {
		t.Fatalf("stored reset code = %q, want 6-digit code", code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/reset-confirm", "", models.PasswordResetConfirm{
		Email: u.Email, Code: code, NewPassword: "newpassword456",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset confirm status = %d, body %s", rec.Code, rec.Body.String())
	}

	if env.store.Exists(ctx, cache.TempCodeKey("password_reset", u.Email)) {
		t.Error("reset code survived confirmation")
	}
	if env.store.Exists(ctx, cache.SessionKey(u.ID)) {
		t.Error("session marker survived password reset")
	}

	// Old password is dead, new one works.
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{
		Username: u.Username, Password: "password123",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("old password login status = %d, want 401", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{
		Username: u.Username, Password: "newpassword456",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("new password login status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestPasswordResetUnknownEmail(t *testing.T) {
	env := newTestEnv(t)

	// Response must not reveal whether the account exists.
	rec := env.do(t, http.MethodPost, "/api/v1/auth/reset-request", "", models.PasswordResetRequest{
		Email: "nobody@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("unknown email status = %d, want 200", rec.Code)
	}
	if env.store.Exists(context.Background(), cache.TempCodeKey("password_reset", "nobody@example.com")) {
		t.Error("reset code stored for unknown email")
	}
}

func TestPasswordResetWrongCode(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 0)

	env.store.Set(context.Background(), cache.TempCodeKey("password_reset", u.Email), "123456", time.Minute)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/reset-confirm", "", models.PasswordResetConfirm{
		Email: u.Email, Code: "654321", NewPassword: "newpassword456",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong code status = %d, want 401", rec.Code)
	}
}

func TestPasswordResetStoreDown(t *testing.T) {
	env := newTestEnv(t)
	u, _ := env.seedUser(t, models.RoleUser, 0)
	env.store.SetReady(false)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/reset-request", "", models.PasswordResetRequest{Email: u.Email})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("reset request with store down status = %d, want 503", rec.Code)
	}
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package cache

import "testing"

func TestKeyConstruction(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"user key", UserKey("u-42"), "user:u-42"},
		{"session key", SessionKey("u-42"), "session:u-42"},
		{"temp code key", TempCodeKey("email_verify", "a@b.c"), "temp_code:email_verify:a@b.c"},
		{"rate limit key", RateLimitKey("login", "10.0.0.1"), "rate_limit:login:10.0.0.1"},
		{"auth logs key", AuthLogsKey("u-42"), "auth_logs:u-42"},
		{"api cache key", APICacheKey("/api/v1/users/u-42?full=1"), "api_cache:/api/v1/users/u-42?full=1"},
		{"api cache pattern", APICachePattern("/api/v1/users"), "api_cache:/api/v1/users*"},
		{"user pattern", UserKeyPattern(), "user:*"},
		{"activity key", ActivityKey(), "user_activity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ludex-market/ludex/internal/config"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Host:           "localhost",
		Port:           6379,
		ConnectTimeout: time.Second,
		MaxRetries:     1,
		UserTTLMinutes: 30,
		APITTLSeconds:  60,
	}
}

// A never-connected store must fail open on every operation: zero values
// and false success flags, no panics, no errors surfacing.
func TestRedisStoreFailOpenWhenDisconnected(t *testing.T) {
	s := NewRedisStore(testCacheConfig())
	ctx := context.Background()

	if s.Ready() {
		t.Fatal("expected store to start not ready")
	}

	if v, ok := s.Get(ctx, "user:x"); ok || v != "" {
		t.Errorf("Get = (%q, %v), want (\"\", false)", v, ok)
	}
	if s.Set(ctx, "user:x", "v", time.Minute) {
		t.Error("Set should report false while disconnected")
	}
	if s.Del(ctx, "user:x") {
		t.Error("Del should report false while disconnected")
	}
	if s.Exists(ctx, "user:x") {
		t.Error("Exists should report false while disconnected")
	}
	if s.HSet(ctx, "h", "f", "v") {
		t.Error("HSet should report false while disconnected")
	}
	if v, ok := s.HGet(ctx, "h", "f"); ok || v != "" {
		t.Errorf("HGet = (%q, %v), want (\"\", false)", v, ok)
	}
	if m := s.HGetAll(ctx, "h"); len(m) != 0 {
		t.Errorf("HGetAll = %v, want empty", m)
	}
	if n := s.Incr(ctx, "c", time.Minute); n != 0 {
		t.Errorf("Incr = %d, want 0", n)
	}
	if s.LPush(ctx, "l", "v", 10) {
		t.Error("LPush should report false while disconnected")
	}
	if vals := s.LRange(ctx, "l", 0, -1); vals != nil {
		t.Errorf("LRange = %v, want nil", vals)
	}
	if keys := s.Keys(ctx, "*"); keys != nil {
		t.Errorf("Keys = %v, want nil", keys)
	}
	if n := s.DelPattern(ctx, "user:*"); n != 0 {
		t.Errorf("DelPattern = %d, want 0", n)
	}
	if n := s.MemoryUsed(ctx); n != 0 {
		t.Errorf("MemoryUsed = %d, want 0", n)
	}
}

func TestIsConnErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"redis nil", redis.Nil, false},
		{"deadline", context.DeadlineExceeded, false},
		{"refused", errors.New("dial tcp 127.0.0.1:6379: connect: connection refused"), true},
		{"reset", errors.New("read tcp: connection reset by peer"), true},
		{"io timeout", errors.New("i/o timeout"), true},
		{"client closed", errors.New("redis: client is closed"), true},
		{"wrong type", errors.New("WRONGTYPE Operation against a key holding the wrong kind of value"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnErr(tt.err); got != tt.want {
				t.Errorf("isConnErr(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRedisStoreCloseIsIdempotentForReadiness(t *testing.T) {
	s := NewRedisStore(testCacheConfig())
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Ready() {
		t.Error("expected store not ready after Close")
	}
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package config provides centralized configuration management for Ludex.
//
// Configuration is loaded in three layers with clear precedence:
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config File: optional YAML config file (config.yaml)
//  3. Environment Variables: override any setting (highest priority)
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import "time"

// Config holds all application configuration.
//
// Categories:
//   - Cache: Redis cache store connection and TTL policy
//   - Database: DuckDB durable store
//   - Cleanup: background cache cleanup job
//   - Server: HTTP server settings
//   - Security: JWT auth, admin bootstrap credentials, rate limiting
//   - Logging: log level and output format
type Config struct {
	Cache    CacheConfig    `koanf:"cache"`
	Database DatabaseConfig `koanf:"database"`
	Cleanup  CleanupConfig  `koanf:"cleanup"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// CacheConfig holds Redis cache store settings.
//
// Environment Variables:
//   - REDIS_HOST: Redis host (default: localhost)
//   - REDIS_PORT: Redis port (default: 6379)
//   - REDIS_PASSWORD: Redis password (default: empty)
//   - REDIS_DB: Redis logical database index (default: 0)
//   - REDIS_CONNECT_TIMEOUT: initial connect timeout (default: 5s)
//   - REDIS_MAX_RETRIES: per-command retry budget (default: 3)
//   - USER_CACHE_TTL_MINUTES: user snapshot TTL in minutes (default: 30)
//   - API_CACHE_TTL_SECONDS: GET response cache TTL in seconds (default: 60)
//
// The cache is optional infrastructure: when Redis is unreachable the
// application runs degraded against the durable store alone.
type CacheConfig struct {
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	Password       string        `koanf:"password"`
	DB             int           `koanf:"db"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	MaxRetries     int           `koanf:"max_retries"`

	// UserTTLMinutes is the TTL applied to cached user snapshots.
	UserTTLMinutes int `koanf:"user_ttl_minutes"`

	// APITTLSeconds is the TTL applied to cached GET responses.
	APITTLSeconds int `koanf:"api_ttl_seconds"`
}

// UserTTL returns the user snapshot TTL as a duration.
func (c CacheConfig) UserTTL() time.Duration {
	return time.Duration(c.UserTTLMinutes) * time.Minute
}

// APITTL returns the response cache TTL as a duration.
func (c CacheConfig) APITTL() time.Duration {
	return time.Duration(c.APITTLSeconds) * time.Second
}

// DatabaseConfig holds DuckDB durable store settings.
//
// Environment Variables:
//   - DUCKDB_PATH: database file path (default: /data/ludex.duckdb)
//   - DUCKDB_MAX_MEMORY: DuckDB memory limit (default: 2GB)
//
// An empty Path opens an in-memory database (used by tests).
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// CleanupConfig holds cache cleanup job settings.
//
// Environment Variables:
//   - CACHE_CLEANUP_INTERVAL_HOURS: pass interval in hours (default: 6)
//   - CACHE_INACTIVITY_DAYS: eviction threshold in days (default: 30)
type CleanupConfig struct {
	Enabled        bool `koanf:"enabled"`
	IntervalHours  int  `koanf:"interval_hours"`
	InactivityDays int  `koanf:"inactivity_days"`
}

// Interval returns the cleanup pass interval as a duration.
func (c CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}

// InactivityThreshold returns the eviction threshold as a duration.
func (c CleanupConfig) InactivityThreshold() time.Duration {
	return time.Duration(c.InactivityDays) * 24 * time.Hour
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: listen port (default: 8080)
//   - HTTP_HOST: bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: read/write timeout (default: 30s)
//   - ENVIRONMENT: development or production (default: development)
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// SecurityConfig holds authentication and rate limiting settings.
//
// Environment Variables:
//   - JWT_SECRET: HS256 signing secret (required outside development)
//   - SESSION_TIMEOUT: JWT validity window (default: 24h)
//   - ADMIN_USERNAME / ADMIN_PASSWORD: bootstrap admin credentials
//   - RATE_LIMIT_REQUESTS: requests per window per IP (default: 100)
//   - RATE_LIMIT_WINDOW: rate limit window (default: 1m)
//   - DISABLE_RATE_LIMIT: disable endpoint rate limiting (default: false)
//   - CORS_ORIGINS: comma-separated allowed origins (default: *)
//   - LOGIN_ATTEMPT_LIMIT: failed logins per IP per window (default: 5)
//   - LOGIN_ATTEMPT_WINDOW_MINUTES: login attempt window (default: 15)
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	AdminUsername     string        `koanf:"admin_username"`
	AdminPassword     string        `koanf:"admin_password"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// Login throttling uses the cache store's rate_limit: counters.
	LoginAttemptLimit         int `koanf:"login_attempt_limit"`
	LoginAttemptWindowMinutes int `koanf:"login_attempt_window_minutes"`
}

// LoginAttemptWindow returns the login throttle window as a duration.
func (c SecurityConfig) LoginAttemptWindow() time.Duration {
	return time.Duration(c.LoginAttemptWindowMinutes) * time.Minute
}

// LoggingConfig holds logging settings.
//
// Environment Variables:
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

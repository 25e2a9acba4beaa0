// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package config

import (
	"fmt"
	"strings"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}

	if err := c.validateCleanup(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateCache validates cache store settings.
func (c *Config) validateCache() error {
	if c.Cache.Host == "" {
		return fmt.Errorf("REDIS_HOST must not be empty")
	}
	if c.Cache.Port < 1 || c.Cache.Port > 65535 {
		return fmt.Errorf("REDIS_PORT must be between 1 and 65535, got %d", c.Cache.Port)
	}
	if c.Cache.DB < 0 || c.Cache.DB > 15 {
		return fmt.Errorf("REDIS_DB must be between 0 and 15, got %d", c.Cache.DB)
	}
	if c.Cache.ConnectTimeout <= 0 {
		return fmt.Errorf("REDIS_CONNECT_TIMEOUT must be positive")
	}
	if c.Cache.MaxRetries < 0 {
		return fmt.Errorf("REDIS_MAX_RETRIES must not be negative")
	}
	if c.Cache.UserTTLMinutes < 1 {
		return fmt.Errorf("USER_CACHE_TTL_MINUTES must be at least 1, got %d", c.Cache.UserTTLMinutes)
	}
	if c.Cache.APITTLSeconds < 1 {
		return fmt.Errorf("API_CACHE_TTL_SECONDS must be at least 1, got %d", c.Cache.APITTLSeconds)
	}
	return nil
}

// validateCleanup validates cleanup job settings (only if enabled).
func (c *Config) validateCleanup() error {
	if !c.Cleanup.Enabled {
		return nil
	}
	if c.Cleanup.IntervalHours < 1 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL_HOURS must be at least 1, got %d", c.Cleanup.IntervalHours)
	}
	if c.Cleanup.InactivityDays < 1 {
		return fmt.Errorf("CACHE_INACTIVITY_DAYS must be at least 1, got %d", c.Cleanup.InactivityDays)
	}
	return nil
}

// validateServer validates HTTP server settings.
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	switch c.Server.Environment {
	case "development", "production", "test":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, production or test, got %q", c.Server.Environment)
	}
	return nil
}

// validateSecurity validates authentication settings.
// Production deployments require a real JWT secret and admin credentials.
func (c *Config) validateSecurity() error {
	if c.IsProduction() {
		if len(c.Security.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Security.AdminUsername == "" || c.Security.AdminPassword == "" {
			return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required in production")
		}
	}
	if c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got %d", c.Security.RateLimitReqs)
	}
	if c.Security.LoginAttemptLimit < 1 {
		return fmt.Errorf("LOGIN_ATTEMPT_LIMIT must be at least 1, got %d", c.Security.LoginAttemptLimit)
	}
	if c.Security.LoginAttemptWindowMinutes < 1 {
		return fmt.Errorf("LOGIN_ATTEMPT_WINDOW_MINUTES must be at least 1, got %d", c.Security.LoginAttemptWindowMinutes)
	}
	return nil
}

// validateLogging validates logging settings.
func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

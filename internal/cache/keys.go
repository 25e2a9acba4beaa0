// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package cache

import "fmt"

// Key namespaces. All cache keys are colon-delimited strings; every
// namespace has a single constructor here so key shapes never drift
// between writers and readers.
const (
	userKeyPrefix      = "user:"
	sessionKeyPrefix   = "session:"
	tempCodeKeyPrefix  = "temp_code:"
	rateLimitKeyPrefix = "rate_limit:"
	authLogsKeyPrefix  = "auth_logs:"
	apiCacheKeyPrefix  = "api_cache:"

	// activityKey is the single hash holding per-user last-accessed
	// timestamps (field = user id, value = unix seconds). Kept in one
	// hash so cleanup passes can scan it with a single HGETALL.
	activityKey = "user_activity"
)

// UserKey returns the cache key for a user snapshot.
func UserKey(userID string) string {
	return userKeyPrefix + userID
}

// UserKeyPattern matches all user snapshot keys.
func UserKeyPattern() string {
	return userKeyPrefix + "*"
}

// SessionKey returns the cache key for a session marker.
func SessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// TempCodeKey returns the cache key for a short-lived verification code.
func TempCodeKey(codeType, email string) string {
	return fmt.Sprintf("%s%s:%s", tempCodeKeyPrefix, codeType, email)
}

// RateLimitKey returns the cache key for a sliding-window counter.
func RateLimitKey(action, ip string) string {
	return fmt.Sprintf("%s%s:%s", rateLimitKeyPrefix, action, ip)
}

// AuthLogsKey returns the cache key for a user's bounded activity list.
func AuthLogsKey(userID string) string {
	return authLogsKeyPrefix + userID
}

// APICacheKey returns the cache key for a whole-response cache entry.
// url must be the normalized request path including the query string.
func APICacheKey(url string) string {
	return apiCacheKeyPrefix + url
}

// APICachePattern returns a glob matching response-cache entries whose
// URL starts with the given prefix. Used to invalidate read endpoints
// after a mutating request.
func APICachePattern(urlPrefix string) string {
	return apiCacheKeyPrefix + urlPrefix + "*"
}

// ActivityKey returns the hash key holding last-accessed timestamps.
func ActivityKey() string {
	return activityKey
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package main is the entry point for the Ludex server.
//
// Ludex is a gaming account marketplace backend. The durable user store
// is DuckDB; Redis sits in front of it as an optional cache layer for
// user snapshots, sessions, login throttling, auth logs, and GET
// response caching. When Redis is unreachable the server boots and runs
// degraded against the durable store alone.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables over config.yaml over
//     defaults (Koanf v2)
//  2. Database: DuckDB durable user store
//  3. Cache store: Redis adapter with background reconnect
//  4. User cache: read-through / write-through user snapshots
//  5. Cache sync: freshness revalidation behind a circuit breaker
//  6. Cleanup job: periodic eviction of inactive users' cache entries
//  7. HTTP server: chi REST API under a suture supervision tree
//
// # Configuration
//
// See internal/config for the full variable reference. The minimum
// production configuration:
//
//	export JWT_SECRET=$(openssl rand -base64 32)
//	export ADMIN_USERNAME=admin
//	export ADMIN_PASSWORD=secure-password
//	export DUCKDB_PATH=/data/ludex.duckdb
//	export REDIS_HOST=redis
//	./ludex
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the HTTP server drains
// in-flight requests (10s timeout), the supervision tree stops the
// cleanup job, then the cache connection and database are closed.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ludex-market/ludex/internal/api"
	"github.com/ludex-market/ludex/internal/auth"
	"github.com/ludex-market/ludex/internal/cache"
	"github.com/ludex-market/ludex/internal/cachesync"
	"github.com/ludex-market/ludex/internal/cleanup"
	"github.com/ludex-market/ludex/internal/config"
	"github.com/ludex-market/ludex/internal/database"
	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/models"
	"github.com/ludex-market/ludex/internal/supervisor"
	"github.com/ludex-market/ludex/internal/supervisor/services"
	"github.com/ludex-market/ludex/internal/usercache"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("redis_host", cfg.Cache.Host).
		Str("environment", cfg.Server.Environment).
		Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	if err := ensureAdminUser(ctx, db, cfg.Security); err != nil {
		logging.Fatal().Err(err).Msg("Failed to bootstrap admin user")
	}

	// The cache store is optional infrastructure: a failed connect logs a
	// warning and the adapter keeps retrying in the background while every
	// read falls through to DuckDB.
	store := cache.NewRedisStore(cfg.Cache)
	if err := store.Connect(ctx); err != nil {
		logging.Warn().Err(err).Msg("Cache store unavailable, running degraded")
	} else {
		logging.Info().Msg("Cache store connected")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing cache store")
		}
	}()

	isNotFound := func(err error) bool { return errors.Is(err, database.ErrUserNotFound) }

	users := usercache.New(store, db, isNotFound, usercache.Config{
		UserTTL:             cfg.Cache.UserTTL(),
		InactivityThreshold: cfg.Cleanup.InactivityThreshold(),
	})
	users.Start()
	defer users.Stop()

	syncSvc := cachesync.New(users, db, isNotFound, cachesync.DefaultConfig())

	cleanupJob := cleanup.New(users, cfg.Cleanup.Interval())

	jwtManager, err := auth.NewJWTManager(cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize JWT manager")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	handler := api.NewHandler(cfg, db, store, users, syncSvc, cleanupJob, jwtManager)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewTree(slogLogger, supervisor.DefaultTreeConfig())

	if cfg.Cleanup.Enabled {
		tree.AddJobService(cleanupJob)
		logging.Info().
			Dur("interval", cfg.Cleanup.Interval()).
			Int("inactivity_days", cfg.Cleanup.InactivityDays).
			Msg("Cache cleanup job added to supervisor tree")
	} else {
		logging.Info().Msg("Cache cleanup job disabled (CACHE_CLEANUP_ENABLED=false)")
	}

	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
}

// ensureAdminUser creates the bootstrap admin account on first start.
// Skipped entirely when ADMIN_USERNAME / ADMIN_PASSWORD are not set; an
// existing account with the configured username is left untouched.
func ensureAdminUser(ctx context.Context, db *database.DB, sec config.SecurityConfig) error {
	if sec.AdminUsername == "" || sec.AdminPassword == "" {
		logging.Info().Msg("Admin bootstrap credentials not configured, skipping")
		return nil
	}

	_, err := db.GetUserByUsername(ctx, sec.AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrUserNotFound) {
		return err
	}

	hash, err := auth.HashPassword(sec.AdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := &models.User{
		ID:           uuid.New().String(),
		Email:        sec.AdminUsername + "@ludex.local",
		Username:     sec.AdminUsername,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.CreateUser(ctx, admin); err != nil {
		return err
	}

	logging.Info().Str("username", sec.AdminUsername).Msg("Bootstrap admin user created")
	return nil
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ludex-market/ludex/internal/middleware"
)

const usersRoutePrefix = "/api/v1/users/"

// NewRouter builds the chi router with the full middleware chain and
// all routes. The cache pipeline adapters are wired per route group:
// reads get populate + response caching, writes get invalidation.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))
	if !h.cfg.Security.RateLimitDisabled {
		r.Use(httprate.LimitByIP(h.cfg.Security.RateLimitReqs, h.cfg.Security.RateLimitWindow))
	}

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	authenticate := middleware.Authenticate(h.jwt)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Login carries its own per-IP throttle through the cache
			// store; this limiter is the outer guard.
			if !h.cfg.Security.RateLimitDisabled {
				r.Use(httprate.LimitByIP(10, time.Minute))
			}
			r.Post("/login", h.Login)
			r.Post("/reset-request", h.RequestPasswordReset)
			r.Post("/reset-confirm", h.ConfirmPasswordReset)
		})

		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.CreateUser)

			r.Group(func(r chi.Router) {
				r.Use(authenticate)

				r.With(
					middleware.CachePopulate(h.users),
					middleware.ResponseCache(h.store, h.cfg.Cache.APITTL()),
					middleware.TrackActivity(h.users),
				).Get("/{userID}", h.GetUser)

				r.With(
					middleware.InvalidateResponseCache(h.store, usersRoutePrefix),
				).Patch("/{userID}", h.UpdateUser)

				r.With(
					middleware.InvalidateResponseCache(h.store, usersRoutePrefix),
				).Delete("/{userID}", h.DeleteUser)
			})

			r.Group(func(r chi.Router) {
				r.Use(authenticate)
				r.Use(middleware.RequireAdmin)

				r.Get("/", h.ListUsers)
				r.With(
					middleware.InvalidateResponseCache(h.store, usersRoutePrefix),
				).Post("/{userID}/balance", h.AdjustBalance)
			})
		})

		r.Route("/cache", func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.RequireAdmin)

			r.Get("/stats", h.CacheStats)
			r.Post("/cleanup", h.TriggerCleanup)
			r.Get("/user/{userID}", h.GetCachedUser)
			r.Delete("/user/{userID}", h.EvictCachedUser)
			r.Post("/invalidate/{userID}", h.InvalidateCachedUser)
			r.Post("/validate/{userID}", h.ValidateCachedUser)
			r.Post("/sync/{userID}", h.SyncCachedUser)
			r.Post("/bulk-sync", h.BulkSync)
		})
	})

	return r
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package database provides the DuckDB-backed durable store holding the
// authoritative user record. The cache layer only ever holds derived
// copies of what lives here.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/ludex-market/ludex/internal/config"
	"github.com/ludex-market/ludex/internal/logging"
)

// Sentinel errors surfaced to callers as business errors.
var (
	// ErrUserNotFound is returned when no user row matches the given id.
	ErrUserNotFound = errors.New("user not found")

	// ErrInsufficientFunds is returned when a balance adjustment would
	// take the spendable balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateUser is returned when a create collides on email or
	// username uniqueness.
	ErrDuplicateUser = errors.New("email or username already taken")
)

// DB wraps the DuckDB connection and exposes the user store operations.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens the DuckDB database, configures the connection pool, and
// creates the schema. An empty cfg.Path opens an in-memory database,
// which is what the tests use.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	connStr := cfg.Path
	if connStr != "" {
		threads := cfg.Threads
		if threads <= 0 {
			threads = runtime.NumCPU()
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, threads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(runtime.NumCPU())
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	db := &DB{conn: conn, cfg: cfg}
	if err := db.initialize(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("Database opened")
	return db, nil
}

// initialize creates the schema if it does not exist.
func (db *DB) initialize(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS users (
			id             VARCHAR PRIMARY KEY,
			email          VARCHAR NOT NULL UNIQUE,
			username       VARCHAR NOT NULL UNIQUE,
			password_hash  VARCHAR NOT NULL,
			avatar_url     VARCHAR NOT NULL DEFAULT '',
			role           VARCHAR NOT NULL DEFAULT 'user',
			banned         BOOLEAN NOT NULL DEFAULT false,
			balance        DOUBLE  NOT NULL DEFAULT 0,
			hold           DOUBLE  NOT NULL DEFAULT 0,
			sales_count    INTEGER NOT NULL DEFAULT 0,
			purchase_count INTEGER NOT NULL DEFAULT 0,
			rating         DOUBLE  NOT NULL DEFAULT 0,
			online         BOOLEAN NOT NULL DEFAULT false,
			last_seen_at   TIMESTAMP,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		)`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return err
	}

	const auditSchema = `
		CREATE TABLE IF NOT EXISTS balance_audit (
			user_id    VARCHAR NOT NULL,
			delta      DOUBLE  NOT NULL,
			balance    DOUBLE  NOT NULL,
			reason     VARCHAR NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`

	_, err := db.conn.ExecContext(ctx, auditSchema)
	return err
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close shuts down the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// isDuplicateError reports whether an error is a uniqueness violation.
func isDuplicateError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "violates unique constraint")
}

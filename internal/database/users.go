// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ludex-market/ludex/internal/logging"
	"github.com/ludex-market/ludex/internal/metrics"
	"github.com/ludex-market/ludex/internal/models"
)

const userColumns = `id, email, username, password_hash, avatar_url, role, banned,
	balance, hold, sales_count, purchase_count, rating, online, last_seen_at,
	created_at, updated_at`

// scanUser reads one user row in userColumns order.
func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	var lastSeen sql.NullTime
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.AvatarURL, &u.Role, &u.Banned,
		&u.Balance, &u.Hold, &u.SalesCount, &u.PurchaseCount, &u.Rating, &u.Online, &lastSeen,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		u.LastSeenAt = &t
	}
	return u, nil
}

// CreateUser inserts a new user row. The caller supplies the id and
// password hash; timestamps are set here.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	start := time.Now()
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = models.RoleUser
	}

	const query = `
		INSERT INTO users (id, email, username, password_hash, avatar_url, role, banned,
			balance, hold, sales_count, purchase_count, rating, online, last_seen_at,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		u.ID, u.Email, u.Username, u.PasswordHash, u.AvatarURL, u.Role, u.Banned,
		u.Balance, u.Hold, u.SalesCount, u.PurchaseCount, u.Rating, u.Online, u.LastSeenAt,
		u.CreatedAt, u.UpdatedAt,
	)
	metrics.RecordDBQuery("insert", "users", time.Since(start), err)
	if err != nil {
		if isDuplicateError(err) {
			return ErrDuplicateUser
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser returns the user with the given id, or ErrUserNotFound.
func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, id))
	metrics.RecordDBQuery("select", "users", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the user with the given username, or
// ErrUserNotFound. Used by the login path.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ?`

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, username))
	metrics.RecordDBQuery("select", "users", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by username: %w", err)
	}
	return u, nil
}

// GetUserByEmail returns the user with the given email, or
// ErrUserNotFound. Used by the password reset path.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, email))
	metrics.RecordDBQuery("select", "users", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return u, nil
}

// UpdatePassword replaces the user's password hash. Returns
// ErrUserNotFound when no row matches.
func (db *DB) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	metrics.RecordDBQuery("update", "users", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUser applies a partial update and returns the resulting row.
// Callers must treat the returned record, not their patch, as the new
// truth. Returns ErrUserNotFound when no row matches.
func (db *DB) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (*models.User, error) {
	if patch == nil || patch.IsEmpty() {
		return db.GetUser(ctx, id)
	}

	start := time.Now()
	set := "updated_at = ?"
	args := []any{time.Now().UTC()}

	if patch.Email != nil {
		set += ", email = ?"
		args = append(args, *patch.Email)
	}
	if patch.Username != nil {
		set += ", username = ?"
		args = append(args, *patch.Username)
	}
	if patch.AvatarURL != nil {
		set += ", avatar_url = ?"
		args = append(args, *patch.AvatarURL)
	}
	if patch.Banned != nil {
		set += ", banned = ?"
		args = append(args, *patch.Banned)
	}
	if patch.Online != nil {
		set += ", online = ?, last_seen_at = ?"
		args = append(args, *patch.Online, time.Now().UTC())
	}
	if patch.Rating != nil {
		set += ", rating = ?"
		args = append(args, *patch.Rating)
	}
	args = append(args, id)

	query := "UPDATE users SET " + set + " WHERE id = ? RETURNING " + userColumns

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, args...))
	metrics.RecordDBQuery("update", "users", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		if isDuplicateError(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// DeleteUser removes the user row. Returns ErrUserNotFound when no row
// matches.
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	start := time.Now()
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	metrics.RecordDBQuery("delete", "users", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListUsers returns users matching the filter, newest first.
func (db *DB) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	start := time.Now()
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any

	if filter.Role != "" {
		query += " AND role = ?"
		args = append(args, filter.Role)
	}
	if filter.Banned != nil {
		query += " AND banned = ?"
		args = append(args, *filter.Banned)
	}
	if filter.Online != nil {
		query += " AND online = ?"
		args = append(args, *filter.Online)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "users", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// AdjustBalance atomically applies delta to the user's spendable balance
// and returns the resulting row. The overdraw guard lives in the UPDATE
// predicate so the check and the write are a single statement; reason is
// recorded in the balance audit log only.
//
// Returns ErrInsufficientFunds when the adjustment would take the balance
// below zero, ErrUserNotFound when the id does not exist.
func (db *DB) AdjustBalance(ctx context.Context, id string, delta float64, reason string) (*models.User, error) {
	start := time.Now()
	query := `
		UPDATE users
		SET balance = balance + ?, updated_at = ?
		WHERE id = ? AND balance + ? >= 0
		RETURNING ` + userColumns

	u, err := scanUser(db.conn.QueryRowContext(ctx, query, delta, time.Now().UTC(), id, delta))
	metrics.RecordDBQuery("update", "users", time.Since(start), ignoreNoRows(err))
	if errors.Is(err, sql.ErrNoRows) {
		// Distinguish an absent user from a rejected overdraw.
		if _, getErr := db.GetUser(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("failed to adjust balance: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO balance_audit (user_id, delta, balance, reason, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, delta, u.Balance, reason, time.Now().UTC(),
	); err != nil {
		// The balance change has committed; a lost audit row is logged,
		// not surfaced.
		logging.Error().Err(err).Str("user_id", id).Msg("Failed to record balance audit entry")
	}

	return u, nil
}

// ignoreNoRows keeps sql.ErrNoRows out of the error metrics; an absent
// row is an expected outcome, not a query failure.
func ignoreNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

package database

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ludex-market/ludex/internal/config"
	"github.com/ludex-market/ludex/internal/models"
)

// newTestDB opens an in-memory DuckDB instance.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), config.DatabaseConfig{Path: ""})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestUser(balance float64) *models.User {
	id := uuid.New().String()
	return &models.User{
		ID:           id,
		Email:        id + "@example.com",
		Username:     "u_" + id[:8],
		PasswordHash: "$2a$10$fakehashfakehashfakehash",
		Role:         models.RoleUser,
		Balance:      balance,
	}
}

func TestCreateAndGetUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(100)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := db.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != u.Email || got.Username != u.Username {
		t.Errorf("GetUser returned wrong record: %+v", got)
	}
	if got.Balance != 100 {
		t.Errorf("balance = %v, want 100", got.Balance)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set on create")
	}
}

func TestGetUserNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUser(context.Background(), "no-such-id")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(0)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	dup := newTestUser(0)
	dup.Email = u.Email
	if err := db.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("expected ErrDuplicateUser on email collision, got %v", err)
	}
}

func TestUpdateUserPatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(0)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	newName := "renamed_user"
	banned := true
	got, err := db.UpdateUser(ctx, u.ID, &models.UserPatch{Username: &newName, Banned: &banned})
	if err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if got.Username != newName {
		t.Errorf("username = %q, want %q", got.Username, newName)
	}
	if !got.Banned {
		t.Error("banned flag not applied")
	}
	// Untouched fields survive.
	if got.Email != u.Email {
		t.Errorf("email changed unexpectedly: %q", got.Email)
	}
}

func TestUpdateUserEmptyPatchReturnsCurrentRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(42)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := db.UpdateUser(ctx, u.ID, &models.UserPatch{})
	if err != nil {
		t.Fatalf("UpdateUser with empty patch failed: %v", err)
	}
	if got.Balance != 42 {
		t.Errorf("balance = %v, want 42", got.Balance)
	}
}

func TestUpdateUserNotFound(t *testing.T) {
	db := newTestDB(t)

	name := "x"
	_, err := db.UpdateUser(context.Background(), "no-such-id", &models.UserPatch{Username: &name})
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(0)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := db.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := db.GetUser(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound after delete, got %v", err)
	}
	if err := db.DeleteUser(ctx, u.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound on double delete, got %v", err)
	}
}

func TestAdjustBalance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(1000)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := db.AdjustBalance(ctx, u.ID, -500, "withdrawal")
	if err != nil {
		t.Fatalf("AdjustBalance failed: %v", err)
	}
	if got.Balance != 500 {
		t.Errorf("balance after -500 = %v, want 500", got.Balance)
	}

	got, err = db.AdjustBalance(ctx, u.ID, 250, "deposit")
	if err != nil {
		t.Fatalf("AdjustBalance failed: %v", err)
	}
	if got.Balance != 750 {
		t.Errorf("balance after +250 = %v, want 750", got.Balance)
	}
}

func TestAdjustBalanceRejectsOverdraw(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := newTestUser(100)
	if err := db.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if _, err := db.AdjustBalance(ctx, u.ID, -101, "withdrawal"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The rejected adjustment must not have touched the row.
	got, err := db.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Balance != 100 {
		t.Errorf("balance after rejected overdraw = %v, want 100", got.Balance)
	}
}

func TestAdjustBalanceUserNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.AdjustBalance(context.Background(), "no-such-id", 10, "deposit")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestListUsersFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	admin := newTestUser(0)
	admin.Role = models.RoleAdmin
	if err := db.CreateUser(ctx, admin); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := db.CreateUser(ctx, newTestUser(0)); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	admins, err := db.ListUsers(ctx, models.UserFilter{Role: models.RoleAdmin})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(admins) != 1 {
		t.Errorf("admin count = %d, want 1", len(admins))
	}

	all, err := db.ListUsers(ctx, models.UserFilter{})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("total count = %d, want 4", len(all))
	}

	limited, err := db.ListUsers(ctx, models.UserFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited count = %d, want 2", len(limited))
	}
}

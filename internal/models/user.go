// Ludex - Gaming Account Marketplace Backend
// Copyright 2026 Ludex Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ludex-market/ludex

// Package models defines the domain entities and cache payload schemas
// shared across the database, cache, and API layers.
package models

import "time"

// User is the authoritative marketplace user record owned by the durable
// store. The cache only ever holds derived, disposable snapshots of it.
type User struct {
	ID           string `json:"id" db:"id"`
	Email        string `json:"email" db:"email"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
	AvatarURL    string `json:"avatar_url,omitempty" db:"avatar_url"`
	Role         string `json:"role" db:"role"` // "user" or "admin"
	Banned       bool   `json:"banned" db:"banned"`

	// Wallet. Balance is spendable funds; Hold is funds frozen by
	// in-flight transactions (pending withdrawals, escrowed purchases).
	Balance float64 `json:"balance" db:"balance"`
	Hold    float64 `json:"hold" db:"hold"`

	// Marketplace stats.
	SalesCount    int     `json:"sales_count" db:"sales_count"`
	PurchaseCount int     `json:"purchase_count" db:"purchase_count"`
	Rating        float64 `json:"rating" db:"rating"`

	// Presence markers.
	Online     bool       `json:"online" db:"online"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// UserPatch is a partial update applied to a user record. Nil fields are
// left untouched. Wallet fields are deliberately absent: balance changes
// go through the atomic balance adjustment path only.
type UserPatch struct {
	Email     *string  `json:"email,omitempty" validate:"omitempty,email"`
	Username  *string  `json:"username,omitempty" validate:"omitempty,min=3,max=32"`
	AvatarURL *string  `json:"avatar_url,omitempty" validate:"omitempty,url"`
	Banned    *bool    `json:"banned,omitempty"`
	Online    *bool    `json:"online,omitempty"`
	Rating    *float64 `json:"rating,omitempty" validate:"omitempty,gte=0,lte=5"`
}

// IsEmpty reports whether the patch changes nothing.
func (p *UserPatch) IsEmpty() bool {
	return p.Email == nil && p.Username == nil && p.AvatarURL == nil &&
		p.Banned == nil && p.Online == nil && p.Rating == nil
}

// UserFilter selects users in durable-store list queries.
type UserFilter struct {
	Role   string
	Banned *bool
	Online *bool
	Limit  int
	Offset int
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// User is the account row. A user is TOTP-enabled only when both
// TwoFactorEnabled is set and an encrypted secret row exists.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID               int64     `db:"id" json:"id"`
	Email            string    `db:"email" json:"email"`
	PasswordHash     string    `db:"password_hash" json:"-"`
	IsAdmin          bool      `db:"is_admin" json:"is_admin"`
	TwoFactorEnabled bool      `db:"two_factor_enabled" json:"two_factor_enabled"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether the user has a password set at all.
// OAuth-federated accounts may not.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

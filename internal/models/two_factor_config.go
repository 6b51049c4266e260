// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// TwoFactorConfig holds the per-user TOTP state, at most one row per user.
// The secret is stored AES-GCM encrypted and only unwrapped in memory for
// the duration of a verification. A nil EnabledAt means the secret was set
// up but the first code has not been confirmed yet.
type TwoFactorConfig struct { //nolint:govet // fieldalignment: readability over optimization
	UserID          int64      `db:"user_id" json:"user_id"`
	EncryptedSecret string     `db:"encrypted_secret" json:"-"`
	LastUsedStep    *int64     `db:"last_used_step" json:"-"`
	EnabledAt       *time.Time `db:"enabled_at" json:"enabled_at,omitempty"`
	LastVerifiedAt  *time.Time `db:"last_verified_at" json:"last_verified_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Confirmed reports whether the user finished TOTP enrollment.
func (c *TwoFactorConfig) Confirmed() bool {
	return c.EnabledAt != nil
}

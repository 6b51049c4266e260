// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// RecoveryCode stores the digest of one single-use recovery code.
// A code is usable only while both ConsumedAt and RevokedAt are nil.
type RecoveryCode struct { //nolint:govet // fieldalignment: readability over optimization
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	CodeHash   string     `db:"code_hash" json:"-"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	ConsumedAt *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	RevokedAt  *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// Usable reports whether the code can still be consumed.
func (c *RecoveryCode) Usable() bool {
	return c.ConsumedAt == nil && c.RevokedAt == nil
}

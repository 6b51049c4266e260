// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import "time"

// StepUpChallenge is one outstanding or resolved verification attempt.
// The raw challenge token is never persisted; only its SHA-256 digest.
// A non-nil ConsumedAt is terminal.
type StepUpChallenge struct { //nolint:govet // fieldalignment: readability over optimization
	ID             string     `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Action         Action     `db:"action" json:"action"`
	TokenHash      string     `db:"token_hash" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	ExpiresAt      time.Time  `db:"expires_at" json:"expires_at"`
	ConsumedAt     *time.Time `db:"consumed_at" json:"consumed_at,omitempty"`
	VerifiedAt     *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedMethod *Method    `db:"verified_method" json:"verified_method,omitempty"`
	FailedAttempts int64      `db:"failed_attempts" json:"failed_attempts"`
	LockedUntil    *time.Time `db:"locked_until" json:"locked_until,omitempty"`
}

// Consumed reports whether the challenge has been terminally resolved.
func (c *StepUpChallenge) Consumed() bool {
	return c.ConsumedAt != nil
}

// Locked reports whether the challenge is under a failed-attempt lock at now.
func (c *StepUpChallenge) Locked(now time.Time) bool {
	return c.LockedUntil != nil && c.LockedUntil.After(now)
}

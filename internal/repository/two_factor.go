// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
)

// GetTwoFactorConfig retrieves the per-user TOTP config.
func (r *Repository) GetTwoFactorConfig(ctx context.Context, userID int64) (*models.TwoFactorConfig, error) {
	var cfg models.TwoFactorConfig
	if err := r.db.GetContext(ctx, &cfg, `SELECT * FROM two_factor_configs WHERE user_id = ?`, userID); err != nil {
		return nil, wrapError(err)
	}
	return &cfg, nil
}

// UpsertTwoFactorSecret stores a fresh encrypted secret for a user.
// Setting a new secret before confirmation overwrites any previous
// unconfirmed one and resets the replay tracking.
func (r *Repository) UpsertTwoFactorSecret(ctx context.Context, userID int64, encryptedSecret string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO two_factor_configs (user_id, encrypted_secret)
		 VALUES (?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		     encrypted_secret = excluded.encrypted_secret,
		     last_used_step = NULL,
		     enabled_at = NULL,
		     last_verified_at = NULL`,
		userID, encryptedSecret)
	return err
}

// EnableTwoFactor marks the config as confirmed at now.
func (r *Repository) EnableTwoFactor(ctx context.Context, userID int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE two_factor_configs SET enabled_at = ? WHERE user_id = ?`, now, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordTwoFactorUsage stores the matched time step of a successful TOTP
// verification so the same step cannot be replayed.
func (r *Repository) RecordTwoFactorUsage(ctx context.Context, userID int64, step int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE two_factor_configs SET last_used_step = ?, last_verified_at = ? WHERE user_id = ?`,
		step, now, userID)
	return err
}

// DeleteTwoFactorConfig removes the per-user TOTP config.
func (r *Repository) DeleteTwoFactorConfig(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM two_factor_configs WHERE user_id = ?`, userID)
	return err
}

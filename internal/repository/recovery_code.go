// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
)

// CreateRecoveryCodes inserts a batch of code digests for a user.
func (r *Repository) CreateRecoveryCodes(ctx context.Context, userID int64, codeHashes []string, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, hash := range codeHashes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recovery_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
			userID, hash, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ConsumeRecoveryCode marks one code consumed as a single conditional
// update. Of two concurrent requests presenting the same code at most
// one observes true.
func (r *Repository) ConsumeRecoveryCode(ctx context.Context, userID int64, codeHash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recovery_codes
		 SET consumed_at = ?
		 WHERE user_id = ? AND code_hash = ? AND consumed_at IS NULL AND revoked_at IS NULL`,
		now, userID, codeHash)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// RevokeRecoveryCodes marks every currently-usable code for the user as
// revoked at now and returns the count affected.
func (r *Repository) RevokeRecoveryCodes(ctx context.Context, userID int64, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recovery_codes
		 SET revoked_at = ?
		 WHERE user_id = ? AND consumed_at IS NULL AND revoked_at IS NULL`,
		now, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountUsableRecoveryCodes returns how many codes remain consumable.
func (r *Repository) CountUsableRecoveryCodes(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = ? AND consumed_at IS NULL AND revoked_at IS NULL`,
		userID)
	return count, err
}

// GetRecoveryCodes returns all code rows for a user, newest first.
func (r *Repository) GetRecoveryCodes(ctx context.Context, userID int64) ([]models.RecoveryCode, error) {
	var codes []models.RecoveryCode
	err := r.db.SelectContext(ctx, &codes,
		`SELECT * FROM recovery_codes WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

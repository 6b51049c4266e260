// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"database/sql"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
)

// CreateChallenge persists a new step-up challenge row. The row carries
// only the token digest, never the raw token.
func (r *Repository) CreateChallenge(ctx context.Context, ch *models.StepUpChallenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO step_up_challenges (id, user_id, action, token_hash, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.UserID, ch.Action, ch.TokenHash, ch.CreatedAt, ch.ExpiresAt)
	return err
}

// GetChallengeByTokenHash performs an exact lookup by token digest.
func (r *Repository) GetChallengeByTokenHash(ctx context.Context, tokenHash string) (*models.StepUpChallenge, error) {
	var ch models.StepUpChallenge
	if err := r.db.GetContext(ctx, &ch, `SELECT * FROM step_up_challenges WHERE token_hash = ?`, tokenHash); err != nil {
		return nil, wrapError(err)
	}
	return &ch, nil
}

// GetChallengeByID retrieves a challenge by its ID.
func (r *Repository) GetChallengeByID(ctx context.Context, id string) (*models.StepUpChallenge, error) {
	var ch models.StepUpChallenge
	if err := r.db.GetContext(ctx, &ch, `SELECT * FROM step_up_challenges WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &ch, nil
}

// IncrementFailedAttempts applies one failed attempt as a single atomic
// update and sets the lock once the counter reaches threshold. Two
// concurrent failures both land; neither can under-count the other.
func (r *Repository) IncrementFailedAttempts(ctx context.Context, id string, threshold int64, lockedUntil time.Time) (int64, *time.Time, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE step_up_challenges
		 SET failed_attempts = failed_attempts + 1,
		     locked_until = CASE WHEN failed_attempts + 1 >= ? THEN ? ELSE locked_until END
		 WHERE id = ?
		 RETURNING failed_attempts, locked_until`,
		threshold, lockedUntil, id)

	var attempts int64
	var locked sql.NullTime
	if err := row.Scan(&attempts, &locked); err != nil {
		return 0, nil, wrapError(err)
	}
	if locked.Valid {
		t := locked.Time
		return attempts, &t, nil
	}
	return attempts, nil, nil
}

// ConsumeChallenge marks a challenge terminally consumed and clears its
// failed-attempt state. The update is conditional on the row not already
// being consumed; it reports whether this call won.
func (r *Repository) ConsumeChallenge(ctx context.Context, id string, method models.Method, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE step_up_challenges
		 SET consumed_at = ?, verified_at = ?, verified_method = ?, failed_attempts = 0, locked_until = NULL
		 WHERE id = ? AND consumed_at IS NULL`,
		now, now, method, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteChallenge removes a challenge row, used by callers that spend a
// verified proof strictly once.
func (r *Repository) DeleteChallenge(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM step_up_challenges WHERE id = ?`, id)
	return err
}

// DeleteExpiredChallenges removes unconsumed challenges whose TTL passed.
func (r *Repository) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM step_up_challenges WHERE consumed_at IS NULL AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"

	"codeberg.org/habitloop/stepup-engine/internal/models"
)

// CreateUser creates a new user and fills in its generated ID.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (email, password_hash, is_admin, two_factor_enabled) VALUES (?, ?, ?, ?)`,
		user.Email, user.PasswordHash, user.IsAdmin, user.TwoFactorEnabled)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE email = ?`, email); err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UpdateUserPassword updates a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, id)
	return err
}

// SetUserAdmin sets or removes admin status for a user.
func (r *Repository) SetUserAdmin(ctx context.Context, id int64, isAdmin bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_admin = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		isAdmin, id)
	return err
}

// SetUserTwoFactorEnabled flips the user-level 2FA flag. A user counts as
// TOTP-enabled only when this flag is set and a confirmed secret exists.
func (r *Repository) SetUserTwoFactorEnabled(ctx context.Context, id int64, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET two_factor_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		enabled, id)
	return err
}

// DeleteUser deletes a user and all dependent rows. The dependents are
// removed explicitly because foreign key enforcement is per-connection
// in SQLite and cannot be relied on across the pool.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		`DELETE FROM recovery_codes WHERE user_id = ?`,
		`DELETE FROM two_factor_configs WHERE user_id = ?`,
		`DELETE FROM step_up_challenges WHERE user_id = ?`,
		`DELETE FROM users WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

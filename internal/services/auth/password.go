// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth provides the password check used for password-based
// step-up on accounts without 2FA.
package auth

import (
	"fmt"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when the user has no password so the
// call takes the same time either way.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the user's stored
// hash. Users without a password always fail.
func VerifyPassword(user *models.User, password string) bool {
	if !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

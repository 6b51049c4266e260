// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"testing"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/services/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyPassword(t *testing.T) {
	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	user := &models.User{PasswordHash: hash}

	assert.True(t, auth.VerifyPassword(user, "correct horse battery staple"))
	assert.False(t, auth.VerifyPassword(user, "wrong password"))
}

func TestVerifyPassword_NoPasswordSet(t *testing.T) {
	user := &models.User{}

	assert.False(t, auth.VerifyPassword(user, "anything"))
	assert.False(t, auth.VerifyPassword(user, ""))
}

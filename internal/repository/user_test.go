// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRoundTrip(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()

	user := testutil.NewTestUser(t, repo, "user@example.com")
	require.NotZero(t, user.ID)

	byID, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", byID.Email)
	assert.False(t, byID.IsAdmin)
	assert.False(t, byID.TwoFactorEnabled)

	byEmail, err := repo.GetUserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSetUserTwoFactorEnabled(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "flag@example.com")

	require.NoError(t, repo.SetUserTwoFactorEnabled(ctx, user.ID, true))

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, got.TwoFactorEnabled)

	require.NoError(t, repo.SetUserTwoFactorEnabled(ctx, user.ID, false))
	got, err = repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, got.TwoFactorEnabled)
}

func TestDeleteUserCascades(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "cascade@example.com")

	require.NoError(t, repo.UpsertTwoFactorSecret(ctx, user.ID, "secret"))
	require.NoError(t, repo.CreateRecoveryCodes(ctx, user.ID, []string{"h1"}, now))

	require.NoError(t, repo.DeleteUser(ctx, user.ID))

	_, err := repo.GetUserByID(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetTwoFactorConfig(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	codes, err := repo.GetRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, codes)
}

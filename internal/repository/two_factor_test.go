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

func TestUpsertTwoFactorSecretResetsState(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "upsert@example.com")

	require.NoError(t, repo.UpsertTwoFactorSecret(ctx, user.ID, "first-secret"))
	require.NoError(t, repo.EnableTwoFactor(ctx, user.ID, now))
	require.NoError(t, repo.RecordTwoFactorUsage(ctx, user.ID, 12345, now))

	cfg, err := repo.GetTwoFactorConfig(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, cfg.Confirmed())
	require.NotNil(t, cfg.LastUsedStep)
	assert.Equal(t, int64(12345), *cfg.LastUsedStep)

	// Re-enrolling replaces the secret and drops confirmation and replay
	// tracking in the same statement.
	require.NoError(t, repo.UpsertTwoFactorSecret(ctx, user.ID, "second-secret"))

	cfg, err = repo.GetTwoFactorConfig(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "second-secret", cfg.EncryptedSecret)
	assert.False(t, cfg.Confirmed())
	assert.Nil(t, cfg.LastUsedStep)
	assert.Nil(t, cfg.LastVerifiedAt)
}

func TestEnableTwoFactorWithoutConfig(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "noconfig@example.com")

	err := repo.EnableTwoFactor(ctx, user.ID, time.Now().UTC())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDeleteTwoFactorConfig(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "delete2fa@example.com")

	require.NoError(t, repo.UpsertTwoFactorSecret(ctx, user.ID, "secret"))
	require.NoError(t, repo.DeleteTwoFactorConfig(ctx, user.ID))

	_, err := repo.GetTwoFactorConfig(ctx, user.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

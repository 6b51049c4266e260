// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/testutil"
	"codeberg.org/habitloop/stepup-engine/internal/token"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChallenge(t *testing.T, repo *repository.Repository, userID int64, now time.Time) *models.StepUpChallenge {
	t.Helper()
	ch := &models.StepUpChallenge{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    models.ActionEmailChange,
		TokenHash: token.Hash(uuid.New().String()),
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Minute),
	}
	require.NoError(t, repo.CreateChallenge(context.Background(), ch))
	return ch
}

func TestChallengeRoundTrip(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "challenge@example.com")

	ch := newChallenge(t, repo, user.ID, now)

	got, err := repo.GetChallengeByTokenHash(ctx, ch.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, got.ID)
	assert.Equal(t, user.ID, got.UserID)
	assert.Nil(t, got.ConsumedAt)
	assert.Zero(t, got.FailedAttempts)

	_, err = repo.GetChallengeByTokenHash(ctx, token.Hash("unknown"))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestIncrementFailedAttempts(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "attempts@example.com")
	ch := newChallenge(t, repo, user.ID, now)

	lockUntil := now.Add(5 * time.Minute)

	// Below the threshold no lock is set.
	for i := int64(1); i < 3; i++ {
		attempts, locked, err := repo.IncrementFailedAttempts(ctx, ch.ID, 3, lockUntil)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.Nil(t, locked)
	}

	// The third failure crosses the threshold and locks.
	attempts, locked, err := repo.IncrementFailedAttempts(ctx, ch.ID, 3, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), attempts)
	require.NotNil(t, locked)
	assert.WithinDuration(t, lockUntil, *locked, time.Second)

	_, _, err = repo.IncrementFailedAttempts(ctx, "missing", 3, lockUntil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConsumeChallengeIsSingleUse(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "consume@example.com")
	ch := newChallenge(t, repo, user.ID, now)

	won, err := repo.ConsumeChallenge(ctx, ch.ID, models.MethodTOTP, now)
	require.NoError(t, err)
	assert.True(t, won)

	// The second consume loses against the conditional update.
	won, err = repo.ConsumeChallenge(ctx, ch.ID, models.MethodPassword, now)
	require.NoError(t, err)
	assert.False(t, won)

	got, err := repo.GetChallengeByID(ctx, ch.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ConsumedAt)
	require.NotNil(t, got.VerifiedMethod)
	assert.Equal(t, models.MethodTOTP, *got.VerifiedMethod)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)
}

func TestConsumeClearsLockState(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "clearlock@example.com")
	ch := newChallenge(t, repo, user.ID, now)

	_, _, err := repo.IncrementFailedAttempts(ctx, ch.ID, 1, now.Add(5*time.Minute))
	require.NoError(t, err)

	won, err := repo.ConsumeChallenge(ctx, ch.ID, models.MethodRecoveryCode, now)
	require.NoError(t, err)
	require.True(t, won)

	got, err := repo.GetChallengeByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedAttempts)
	assert.Nil(t, got.LockedUntil)
}

func TestDeleteExpiredChallenges(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	user := testutil.NewTestUser(t, repo, "expired@example.com")

	fresh := newChallenge(t, repo, user.ID, now)
	stale := newChallenge(t, repo, user.ID, now.Add(-time.Hour))

	// A consumed challenge survives the purge even once its TTL passes.
	consumed := newChallenge(t, repo, user.ID, now.Add(-time.Hour))
	won, err := repo.ConsumeChallenge(ctx, consumed.ID, models.MethodTOTP, now.Add(-time.Hour))
	require.NoError(t, err)
	require.True(t, won)

	purged, err := repo.DeleteExpiredChallenges(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.GetChallengeByID(ctx, stale.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetChallengeByID(ctx, fresh.ID)
	assert.NoError(t, err)
	_, err = repo.GetChallengeByID(ctx, consumed.ID)
	assert.NoError(t, err)
}

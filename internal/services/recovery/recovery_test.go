// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package recovery_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/services/recovery"
	"codeberg.org/habitloop/stepup-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVault(t *testing.T) (*recovery.Vault, *repository.Repository) {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	return recovery.NewVault(repo), repo
}

func TestGenerate_Format(t *testing.T) {
	vault := recovery.NewVault(nil)

	codes, err := vault.Generate(1)

	require.NoError(t, err)
	code := codes[0]
	// 20 hex chars in 5 dash-separated groups of 4.
	assert.Len(t, code, 24)
	groups := strings.Split(code, "-")
	assert.Len(t, groups, 5)
	for _, g := range groups {
		assert.Len(t, g, 4)
	}
	assert.Equal(t, strings.ToUpper(code), code)
}

func TestGenerate_DefaultCount(t *testing.T) {
	vault := recovery.NewVault(nil)

	codes, err := vault.Generate(0)

	require.NoError(t, err)
	assert.Len(t, codes, recovery.DefaultBatchSize)
}

func TestGenerate_Unique(t *testing.T) {
	vault := recovery.NewVault(nil)

	codes, err := vault.Generate(100)

	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code: %s", code)
		seen[code] = true
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1A2B-3C4D-5E6F-7A8B-9C0D", "1A2B3C4D5E6F7A8B9C0D"},
		{"1a2b 3c4d 5e6f 7a8b 9c0d", "1A2B3C4D5E6F7A8B9C0D"},
		{"1a2b3c4d5e6f7a8b9c0d", "1A2B3C4D5E6F7A8B9C0D"},
		{"", ""},
		{"----", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, recovery.Normalize(tt.input))
		})
	}
}

func TestHashCode(t *testing.T) {
	withDashes, err := recovery.HashCode("1A2B-3C4D-5E6F-7A8B-9C0D")
	require.NoError(t, err)
	withoutDashes, err := recovery.HashCode("1a2b3c4d5e6f7a8b9c0d")
	require.NoError(t, err)

	assert.Equal(t, withDashes, withoutDashes)
	assert.Len(t, withDashes, 64)
}

func TestHashCode_RejectsWrongLength(t *testing.T) {
	_, err := recovery.HashCode("1A2B-3C4D")

	assert.ErrorIs(t, err, recovery.ErrMalformedCode)
}

func TestRotate(t *testing.T) {
	vault, repo := newVault(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := testutil.NewTestUser(t, repo, "rotate@example.com")

	// Seed an initial batch of 3 usable codes.
	initial, err := vault.Rotate(ctx, user.ID, 3, now)
	require.NoError(t, err)
	require.Len(t, initial.Codes, 3)

	result, err := vault.Rotate(ctx, user.ID, 10, now.Add(time.Minute))

	require.NoError(t, err)
	assert.Equal(t, int64(3), result.RevokedCount)
	assert.Equal(t, 10, result.CreatedCount)
	assert.Len(t, result.Codes, 10)

	count, err := repo.CountUsableRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)

	// Every pre-rotation code now fails consumption.
	for _, code := range initial.Codes {
		ok, err := vault.Consume(ctx, user.ID, code, now.Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestConsume_ExactlyOnce(t *testing.T) {
	vault, repo := newVault(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := testutil.NewTestUser(t, repo, "consume@example.com")

	result, err := vault.Rotate(ctx, user.ID, 5, now)
	require.NoError(t, err)
	code := result.Codes[0]

	ok, err := vault.Consume(ctx, user.ID, code, now)
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := vault.Consume(ctx, user.ID, code, now)
	require.NoError(t, err)
	assert.False(t, again)
}

func TestConsume_AcceptsUnformattedInput(t *testing.T) {
	vault, repo := newVault(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := testutil.NewTestUser(t, repo, "normalize@example.com")

	result, err := vault.Rotate(ctx, user.ID, 1, now)
	require.NoError(t, err)

	stripped := strings.ToLower(strings.ReplaceAll(result.Codes[0], "-", ""))
	ok, err := vault.Consume(ctx, user.ID, stripped, now)

	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsume_MalformedInput(t *testing.T) {
	vault, repo := newVault(t)
	ctx := context.Background()
	user := testutil.NewTestUser(t, repo, "malformed@example.com")

	ok, err := vault.Consume(ctx, user.ID, "nope", time.Now().UTC())

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAll(t *testing.T) {
	vault, repo := newVault(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := testutil.NewTestUser(t, repo, "revoke@example.com")

	_, err := vault.Rotate(ctx, user.ID, 4, now)
	require.NoError(t, err)

	revoked, err := vault.RevokeAll(ctx, user.ID, now.Add(time.Second))

	require.NoError(t, err)
	assert.Equal(t, int64(4), revoked)

	count, err := repo.CountUsableRecoveryCodes(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestConsume_RevokedButUnconsumedFails(t *testing.T) {
	vault, repo := newVault(t)
	ctx := context.Background()
	now := time.Now().UTC()
	user := testutil.NewTestUser(t, repo, "revoked@example.com")

	result, err := vault.Rotate(ctx, user.ID, 2, now)
	require.NoError(t, err)
	_, err = vault.RevokeAll(ctx, user.ID, now)
	require.NoError(t, err)

	ok, err := vault.Consume(ctx, user.ID, result.Codes[0], now)

	require.NoError(t, err)
	assert.False(t, ok)
}

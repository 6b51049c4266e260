// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"codeberg.org/habitloop/stepup-engine/internal/database"
	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/services/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
)

// SecretKeyHex is a fixed 32-byte key for tests that need a secretbox.
const SecretKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	repo := repository.New(db)
	return db, repo
}

// NewTestUser creates a test user with a known password ("test-password").
func NewTestUser(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword("test-password")
	require.NoError(t, err)

	user := &models.User{Email: email, PasswordHash: hash}
	require.NoError(t, repo.CreateUser(ctx, user))
	return user
}

// NewTestAdmin creates a test user flagged as admin.
func NewTestAdmin(t *testing.T, repo *repository.Repository, email string) *models.User {
	t.Helper()
	ctx := context.Background()

	user := NewTestUser(t, repo, email)
	require.NoError(t, repo.SetUserAdmin(ctx, user.ID, true))
	user.IsAdmin = true
	return user
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

// NewEchoContextWithHeaders creates an Echo context with custom headers.
func NewEchoContextWithHeaders(e *echo.Echo, method, path string, body io.Reader, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

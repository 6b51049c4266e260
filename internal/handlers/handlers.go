// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers exposes the step-up engine's payload contracts as
// JSON endpoints. The fronting session layer authenticates the caller
// and passes the account id in the X-User-ID header; everything here
// assumes that header is trustworthy.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/ratelimit"
	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
	"codeberg.org/habitloop/stepup-engine/internal/services/twofactor"
	"github.com/labstack/echo/v4"
)

// UserIDHeader carries the authenticated account id set by the session layer.
const UserIDHeader = "X-User-ID"

// Handlers contains all HTTP handlers.
type Handlers struct {
	repo      *repository.Repository
	twofactor *twofactor.Service
	limiter   *ratelimit.Store
	policy    ratelimit.Policy
	now       func() time.Time
}

// New creates a new Handlers instance. The limiter store is the shared
// process-wide table created at startup.
func New(repo *repository.Repository, tf *twofactor.Service, limiter *ratelimit.Store, policy ratelimit.Policy) *Handlers {
	return &Handlers{
		repo:      repo,
		twofactor: tf,
		limiter:   limiter,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests.
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	return h
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// currentUserID reads the authenticated account id from the request.
func currentUserID(c echo.Context) (int64, error) {
	raw := c.Request().Header.Get(UserIDHeader)
	if raw == "" {
		return 0, stepup.ErrUnauthorized("no session")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, stepup.ErrUnauthorized("no session")
	}
	return id, nil
}

// checkRateLimit consumes one request from the caller's quota for a
// route. It runs before any persistence lookup so brute-force cost is
// bounded by the limiter, not the database.
func (h *Handlers) checkRateLimit(c echo.Context, route string) error {
	caller := c.Request().Header.Get(UserIDHeader)
	if caller == "" {
		caller = c.RealIP()
	}

	decision := h.limiter.Consume(ratelimit.Key(route, caller), h.policy, h.now())
	if decision.Limited {
		return stepup.ErrRateLimited(decision.RetryAfterSeconds)
	}
	return nil
}

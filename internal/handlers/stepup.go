// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
	"github.com/labstack/echo/v4"
)

type createChallengeRequest struct {
	Action     string `json:"action"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// CreateChallenge issues a step-up challenge for the calling user.
func (h *Handlers) CreateChallenge(c echo.Context) error {
	if err := h.checkRateLimit(c, "stepup.create"); err != nil {
		return writeError(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req createChallengeRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, stepup.ErrInvalidRequest("malformed request body"))
	}

	action := models.Action(req.Action)
	if !action.Valid() {
		return writeError(c, stepup.ErrInvalidRequest("unknown action"))
	}

	// The TTL range check happens here so an out-of-range client value is
	// a 400, not a server error.
	cfg := h.twofactor.Challenges().Config()
	ttl := time.Duration(req.TTLSeconds) * time.Second
	if ttl != 0 && (ttl < cfg.MinTTL || ttl > cfg.MaxTTL) {
		return writeError(c, stepup.ErrInvalidRequest("ttl_seconds out of range"))
	}

	offer, err := h.twofactor.StartChallenge(c.Request().Context(), userID, action, ttl, h.now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, offer)
}

type verifyChallengeRequest struct {
	ChallengeToken string `json:"challenge_token"`
	Method         string `json:"method"`
	Code           string `json:"code"`
}

// VerifyChallenge resolves a challenge token against a submitted
// credential. The limiter runs before any persistence lookup so token
// guessing is bounded regardless of whether the token exists.
func (h *Handlers) VerifyChallenge(c echo.Context) error {
	if err := h.checkRateLimit(c, "stepup.verify"); err != nil {
		return writeError(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req verifyChallengeRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, stepup.ErrInvalidRequest("malformed request body"))
	}
	if req.ChallengeToken == "" || req.Code == "" {
		return writeError(c, stepup.ErrInvalidRequest("challenge_token and code are required"))
	}

	result, err := h.twofactor.VerifyChallenge(
		c.Request().Context(),
		userID,
		req.ChallengeToken,
		models.Method(req.Method),
		req.Code,
		h.now(),
	)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type proofRequest struct {
	ChallengeToken string `json:"challenge_token"`
}

// DeleteAccount removes the calling user's account. It requires a
// recently verified challenge for the account_delete action.
func (h *Handlers) DeleteAccount(c echo.Context) error {
	if err := h.checkRateLimit(c, "account.delete"); err != nil {
		return writeError(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req proofRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, stepup.ErrInvalidRequest("malformed request body"))
	}

	ctx := c.Request().Context()
	manager := h.twofactor.Challenges()

	ch, err := manager.RequireFreshProof(ctx, userID, models.ActionAccountDelete, req.ChallengeToken, manager.Config().ProofMaxAge, h.now())
	if err != nil {
		return writeError(c, err)
	}

	if err := h.repo.DeleteUser(ctx, userID); err != nil {
		return writeError(c, err)
	}
	// The proof is single-purpose; drop it once the action went through.
	if err := manager.Delete(ctx, ch.ID); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

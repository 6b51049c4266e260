// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
	"github.com/labstack/echo/v4"
)

// SetupTwoFactor starts authenticator enrollment and returns the secret
// plus the otpauth provisioning URI for the QR code.
func (h *Handlers) SetupTwoFactor(c echo.Context) error {
	if err := h.checkRateLimit(c, "twofactor.setup"); err != nil {
		return writeError(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	enrollment, err := h.twofactor.BeginEnrollment(c.Request().Context(), userID, h.now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, enrollment)
}

type confirmTwoFactorRequest struct {
	Code string `json:"code"`
}

// ConfirmTwoFactor verifies the first authenticator code and switches
// two-factor on. The response carries the one-time recovery code batch.
func (h *Handlers) ConfirmTwoFactor(c echo.Context) error {
	if err := h.checkRateLimit(c, "twofactor.confirm"); err != nil {
		return writeError(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req confirmTwoFactorRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, stepup.ErrInvalidRequest("malformed request body"))
	}
	if req.Code == "" {
		return writeError(c, stepup.ErrInvalidRequest("code is required"))
	}

	result, err := h.twofactor.ConfirmEnrollment(c.Request().Context(), userID, req.Code, h.now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// DisableTwoFactor turns two-factor off for the calling user. Because
// this weakens the account it is gated behind a fresh step-up proof.
func (h *Handlers) DisableTwoFactor(c echo.Context) error {
	if err := h.checkRateLimit(c, "twofactor.disable"); err != nil {
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

	ch, err := manager.RequireFreshProof(ctx, userID, models.ActionPasswordChange, req.ChallengeToken, manager.Config().ProofMaxAge, h.now())
	if err != nil {
		return writeError(c, err)
	}

	if err := h.twofactor.Disable(ctx, userID, h.now()); err != nil {
		return writeError(c, err)
	}
	if err := manager.Delete(ctx, ch.ID); err != nil {
		return writeError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RotateRecoveryCodes revokes the user's remaining recovery codes and
// returns a fresh batch.
func (h *Handlers) RotateRecoveryCodes(c echo.Context) error {
	if err := h.checkRateLimit(c, "twofactor.rotate"); err != nil {
		return writeError(c, err)
	}

	userID, err := currentUserID(c)
	if err != nil {
		return writeError(c, err)
	}

	result, err := h.twofactor.RotateRecoveryCodes(c.Request().Context(), userID, h.now())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"recovery_codes": result.Codes,
		"revoked_count":  result.RevokedCount,
	})
}

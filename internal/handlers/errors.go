// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError renders a service error as a JSON response. Known error
// kinds map to stable HTTP statuses; anything else is a 500 with the
// detail withheld from the body.
func writeError(c echo.Context, err error) error {
	var serr *stepup.Error
	if !errors.As(err, &serr) {
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "internal",
			Message: "internal server error",
		})
	}

	status := http.StatusInternalServerError
	switch serr.Kind {
	case stepup.KindInvalidRequest:
		status = http.StatusBadRequest
	case stepup.KindUnauthorized:
		status = http.StatusUnauthorized
	case stepup.KindTokenExpired:
		status = http.StatusGone
	case stepup.KindRateLimited:
		status = http.StatusTooManyRequests
		if serr.RetryAfterSeconds > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(serr.RetryAfterSeconds))
		}
	case stepup.KindForbidden:
		status = http.StatusForbidden
	}

	return c.JSON(status, errorResponse{
		Error:   string(serr.Kind),
		Message: serr.Message,
	})
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package stepup

import "time"

// Kind classifies a step-up failure for the caller. Credential failures
// are reported uniformly as KindUnauthorized so responses never leak
// which specific check failed.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindUnauthorized   Kind = "unauthorized"
	KindTokenExpired   Kind = "token_expired"
	KindRateLimited    Kind = "rate_limited"
	KindForbidden      Kind = "forbidden"
)

// Error is a typed step-up failure. RetryAfterSeconds is only set for
// rate limiting, LockedUntil only when a challenge lock applies; neither
// ever hints at how close a submitted code was.
type Error struct { //nolint:govet // fieldalignment: readability over optimization
	Kind              Kind
	Message           string
	RetryAfterSeconds int
	LockedUntil       *time.Time
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewError creates a typed failure.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// ErrInvalidRequest reports a malformed input shape, always a caller bug.
func ErrInvalidRequest(message string) *Error {
	return NewError(KindInvalidRequest, message)
}

// ErrUnauthorized reports a failed or unmatched verification.
func ErrUnauthorized(message string) *Error {
	return NewError(KindUnauthorized, message)
}

// ErrTokenExpired reports an elapsed challenge TTL or stale proof.
func ErrTokenExpired(message string) *Error {
	return NewError(KindTokenExpired, message)
}

// ErrRateLimited reports a tripped limiter with machine-readable retry timing.
func ErrRateLimited(retryAfterSeconds int) *Error {
	return &Error{
		Kind:              KindRateLimited,
		Message:           "too many requests",
		RetryAfterSeconds: retryAfterSeconds,
	}
}

// ErrForbidden reports a policy denial independent of credential correctness.
func ErrForbidden(message string) *Error {
	return NewError(KindForbidden, message)
}

// ErrLocked reports a challenge under failed-attempt lockout.
func ErrLocked(lockedUntil time.Time) *Error {
	return &Error{
		Kind:        KindForbidden,
		Message:     "challenge is temporarily locked",
		LockedUntil: &lockedUntil,
	}
}

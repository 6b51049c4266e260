// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package twofactor routes step-up verification requests to the TOTP
// engine, the recovery code vault or the password check, and enforces
// which methods an account may use. It also owns the TOTP enrollment
// lifecycle.
package twofactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/secretbox"
	"codeberg.org/habitloop/stepup-engine/internal/services/auth"
	"codeberg.org/habitloop/stepup-engine/internal/services/recovery"
	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
	"codeberg.org/habitloop/stepup-engine/internal/services/totp"
)

// Config holds the policy tunables.
type Config struct {
	// RequireAdminTwoFactor blocks admin-gated step-up for admin accounts
	// without confirmed TOTP.
	RequireAdminTwoFactor bool
	// RecoveryBatchSize is the number of recovery codes per batch.
	RecoveryBatchSize int
}

// DefaultConfig returns the canonical policy defaults.
func DefaultConfig() Config {
	return Config{
		RequireAdminTwoFactor: true,
		RecoveryBatchSize:     recovery.DefaultBatchSize,
	}
}

// Service is the verification dispatcher plus its policy layer.
type Service struct {
	repo       *repository.Repository
	challenges *stepup.Manager
	engine     *totp.Engine
	box        *secretbox.Box
	vault      *recovery.Vault
	cfg        Config
}

// NewService wires the dispatcher.
func NewService(repo *repository.Repository, challenges *stepup.Manager, engine *totp.Engine, box *secretbox.Box, vault *recovery.Vault, cfg Config) *Service {
	if cfg.RecoveryBatchSize <= 0 {
		cfg.RecoveryBatchSize = recovery.DefaultBatchSize
	}
	return &Service{
		repo:       repo,
		challenges: challenges,
		engine:     engine,
		box:        box,
		vault:      vault,
		cfg:        cfg,
	}
}

// Challenges exposes the underlying challenge manager for proof checks.
func (s *Service) Challenges() *stepup.Manager {
	return s.challenges
}

// enabledFor reports whether the user counts as TOTP-enabled: user-level
// flag set and a confirmed secret present.
func (s *Service) enabledFor(ctx context.Context, user *models.User) (bool, *models.TwoFactorConfig, error) {
	if !user.TwoFactorEnabled {
		return false, nil, nil
	}
	cfg, err := s.repo.GetTwoFactorConfig(ctx, user.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return cfg.Confirmed(), cfg, nil
}

// AllowedMethods returns the verification methods offered to a user.
// TOTP-enabled users must use TOTP or a recovery code and may not fall
// back to password; everyone else gets password-only, and only if a
// password is set at all.
func (s *Service) AllowedMethods(ctx context.Context, user *models.User) ([]models.Method, error) {
	enabled, _, err := s.enabledFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if enabled {
		return []models.Method{models.MethodTOTP, models.MethodRecoveryCode}, nil
	}
	if user.HasPassword() {
		return []models.Method{models.MethodPassword}, nil
	}
	return nil, nil
}

// checkAdminGate enforces the admin 2FA policy for admin-gated actions.
func (s *Service) checkAdminGate(action models.Action, user *models.User, enabled bool) *stepup.Error {
	if action != models.ActionAdminAccess {
		return nil
	}
	if s.cfg.RequireAdminTwoFactor && user.IsAdmin && !enabled {
		return stepup.ErrForbidden("two-factor authentication is required for admin access")
	}
	return nil
}

// ChallengeOffer is returned from StartChallenge.
type ChallengeOffer struct {
	ChallengeToken string          `json:"challenge_token"`
	ExpiresAt      time.Time       `json:"expires_at"`
	AllowedMethods []models.Method `json:"allowed_methods"`
}

// StartChallenge issues a step-up challenge for (user, action) and
// reports which methods the user may verify it with.
func (s *Service) StartChallenge(ctx context.Context, userID int64, action models.Action, ttl time.Duration, now time.Time) (*ChallengeOffer, error) {
	if !action.Valid() {
		return nil, stepup.ErrInvalidRequest("unknown action")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, stepup.ErrUnauthorized("unknown user")
		}
		return nil, err
	}

	enabled, _, err := s.enabledFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if perr := s.checkAdminGate(action, user, enabled); perr != nil {
		return nil, perr
	}

	methods, err := s.AllowedMethods(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(methods) == 0 {
		return nil, stepup.ErrForbidden("no verification methods available")
	}

	created, err := s.challenges.Create(ctx, userID, action, ttl, now)
	if err != nil {
		return nil, err
	}

	return &ChallengeOffer{
		ChallengeToken: created.Token,
		ExpiresAt:      created.ExpiresAt,
		AllowedMethods: methods,
	}, nil
}

// VerificationResult reports a successful step-up verification.
type VerificationResult struct {
	Verified   bool          `json:"verified"`
	Method     models.Method `json:"method"`
	VerifiedAt time.Time     `json:"verified_at"`
}

// VerifyChallenge resolves a presented challenge token against a
// submitted credential. Every failed credential check increments the
// challenge's failed-attempt counter before the error is returned.
func (s *Service) VerifyChallenge(ctx context.Context, userID int64, rawToken string, method models.Method, code string, now time.Time) (*VerificationResult, error) {
	if !method.Valid() {
		return nil, stepup.ErrInvalidRequest("unknown verification method")
	}
	if rawToken == "" || code == "" {
		return nil, stepup.ErrInvalidRequest("missing challenge token or code")
	}

	ch, err := s.challenges.Lookup(ctx, rawToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, stepup.ErrUnauthorized("challenge not found")
		}
		return nil, err
	}
	if ch.UserID != userID {
		return nil, stepup.ErrUnauthorized("challenge not found")
	}

	if ok, reason := stepup.Consumability(ch, now); !ok {
		return nil, stepup.ConsumabilityError(ch, reason)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	enabled, tfCfg, err := s.enabledFor(ctx, user)
	if err != nil {
		return nil, err
	}
	if perr := s.checkAdminGate(ch.Action, user, enabled); perr != nil {
		return nil, perr
	}
	if perr := checkMethodPolicy(method, user, enabled); perr != nil {
		return nil, perr
	}

	valid, err := s.verifyCredential(ctx, user, tfCfg, method, code, now)
	if err != nil {
		return nil, err
	}
	if !valid {
		attempts, lockedUntil, err := s.challenges.RecordFailedAttempt(ctx, ch.ID, now)
		if err != nil {
			return nil, err
		}
		slog.Warn("stepup_verify_failed",
			"challenge_id", ch.ID, "user_id", userID, "action", ch.Action,
			"method", method, "failed_attempts", attempts, "locked", lockedUntil != nil)
		ferr := stepup.ErrUnauthorized("verification failed")
		ferr.LockedUntil = lockedUntil
		return nil, ferr
	}

	// The credential check may have taken time; make sure the challenge
	// did not expire or get resolved underneath us before consuming.
	ch, err = s.repo.GetChallengeByID(ctx, ch.ID)
	if err != nil {
		return nil, wrapLookupErr(err)
	}
	if ok, reason := stepup.Consumability(ch, now); !ok {
		return nil, stepup.ConsumabilityError(ch, reason)
	}
	if err := s.challenges.Consume(ctx, ch.ID, method, now); err != nil {
		if errors.Is(err, stepup.ErrAlreadyConsumed) {
			return nil, stepup.ErrUnauthorized("challenge cannot be verified")
		}
		return nil, err
	}

	slog.Info("stepup_verified",
		"challenge_id", ch.ID, "user_id", userID, "action", ch.Action, "method", method)

	return &VerificationResult{Verified: true, Method: method, VerifiedAt: now}, nil
}

func wrapLookupErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return stepup.ErrUnauthorized("challenge not found")
	}
	return err
}

// checkMethodPolicy validates the submitted method against account
// state: a wrong method for the state is a caller bug, not a failed
// credential.
func checkMethodPolicy(method models.Method, user *models.User, enabled bool) *stepup.Error {
	switch method {
	case models.MethodTOTP, models.MethodRecoveryCode:
		if !enabled {
			return stepup.ErrInvalidRequest("two-factor authentication is not enabled")
		}
	case models.MethodPassword:
		if enabled {
			return stepup.ErrInvalidRequest("password step-up is not available with two-factor enabled")
		}
		if !user.HasPassword() {
			return stepup.ErrInvalidRequest("no password set")
		}
	}
	return nil
}

// verifyCredential checks the submitted code without touching challenge
// state. Secrets are unwrapped in memory for the duration of the check
// only.
func (s *Service) verifyCredential(ctx context.Context, user *models.User, tfCfg *models.TwoFactorConfig, method models.Method, code string, now time.Time) (bool, error) {
	switch method {
	case models.MethodTOTP:
		secret, err := s.box.Decrypt(tfCfg.EncryptedSecret)
		if err != nil {
			return false, fmt.Errorf("twofactor: failed to unwrap secret: %w", err)
		}
		res, err := s.engine.Verify(secret, code, now)
		if err != nil || !res.Valid {
			return false, err
		}
		// Reject replays of an already-used time step.
		if tfCfg.LastUsedStep != nil && res.Step <= *tfCfg.LastUsedStep {
			return false, nil
		}
		if err := s.repo.RecordTwoFactorUsage(ctx, user.ID, res.Step, now); err != nil {
			return false, err
		}
		return true, nil

	case models.MethodRecoveryCode:
		return s.vault.Consume(ctx, user.ID, code, now)

	case models.MethodPassword:
		return auth.VerifyPassword(user, code), nil
	}
	return false, nil
}

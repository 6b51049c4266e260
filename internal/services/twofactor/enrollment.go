// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package twofactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/services/recovery"
	"codeberg.org/habitloop/stepup-engine/internal/services/stepup"
)

// Enrollment is returned from BeginEnrollment. Secret is shown to the
// user once for manual entry; the provisioning URI is rendered as a QR
// code by the caller.
type Enrollment struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// BeginEnrollment generates a fresh TOTP secret for a user and stores it
// encrypted and unconfirmed. Starting over before confirmation simply
// overwrites the previous secret.
func (s *Service) BeginEnrollment(ctx context.Context, userID int64, now time.Time) (*Enrollment, error) {
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
	if enabled {
		return nil, stepup.ErrInvalidRequest("two-factor authentication is already enabled")
	}

	secret, err := s.engine.GenerateSecret()
	if err != nil {
		return nil, err
	}
	uri, err := s.engine.ProvisioningURI(secret, user.Email)
	if err != nil {
		return nil, err
	}

	sealed, err := s.box.Encrypt(secret)
	if err != nil {
		return nil, fmt.Errorf("twofactor: failed to seal secret: %w", err)
	}
	if err := s.repo.UpsertTwoFactorSecret(ctx, userID, sealed); err != nil {
		return nil, fmt.Errorf("twofactor: failed to store secret: %w", err)
	}

	slog.Info("twofactor_enrollment_started", "user_id", userID)

	return &Enrollment{Secret: secret, ProvisioningURI: uri}, nil
}

// EnrollmentResult is returned from ConfirmEnrollment. RecoveryCodes are
// the initial batch, shown exactly once.
type EnrollmentResult struct {
	RecoveryCodes []string  `json:"recovery_codes"`
	EnabledAt     time.Time `json:"enabled_at"`
}

// ConfirmEnrollment verifies the first code from the authenticator app,
// turns the feature on and mints the initial recovery code batch.
func (s *Service) ConfirmEnrollment(ctx context.Context, userID int64, code string, now time.Time) (*EnrollmentResult, error) {
	tfCfg, err := s.repo.GetTwoFactorConfig(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, stepup.ErrInvalidRequest("two-factor enrollment has not been started")
		}
		return nil, err
	}
	if tfCfg.Confirmed() {
		return nil, stepup.ErrInvalidRequest("two-factor authentication is already enabled")
	}

	secret, err := s.box.Decrypt(tfCfg.EncryptedSecret)
	if err != nil {
		return nil, fmt.Errorf("twofactor: failed to unwrap secret: %w", err)
	}
	res, err := s.engine.Verify(secret, code, now)
	if err != nil {
		return nil, stepup.ErrInvalidRequest("malformed code")
	}
	if !res.Valid {
		return nil, stepup.ErrUnauthorized("verification failed")
	}

	if err := s.repo.EnableTwoFactor(ctx, userID, now); err != nil {
		return nil, err
	}
	if err := s.repo.SetUserTwoFactorEnabled(ctx, userID, true); err != nil {
		return nil, err
	}
	if err := s.repo.RecordTwoFactorUsage(ctx, userID, res.Step, now); err != nil {
		return nil, err
	}

	rotation, err := s.vault.Rotate(ctx, userID, s.cfg.RecoveryBatchSize, now)
	if err != nil {
		return nil, err
	}

	slog.Info("twofactor_enabled", "user_id", userID, "recovery_codes", rotation.CreatedCount)

	return &EnrollmentResult{RecoveryCodes: rotation.Codes, EnabledAt: now}, nil
}

// Disable turns the feature off: the config row is deleted, the
// user-level flag cleared and all recovery codes revoked. Callers gate
// this behind a fresh step-up proof.
func (s *Service) Disable(ctx context.Context, userID int64, now time.Time) error {
	if err := s.repo.DeleteTwoFactorConfig(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.SetUserTwoFactorEnabled(ctx, userID, false); err != nil {
		return err
	}
	if _, err := s.vault.RevokeAll(ctx, userID, now); err != nil {
		return err
	}

	slog.Info("twofactor_disabled", "user_id", userID)
	return nil
}

// RotateRecoveryCodes revokes all usable codes and issues a fresh batch.
// Only TOTP-enabled users hold recovery codes.
func (s *Service) RotateRecoveryCodes(ctx context.Context, userID int64, now time.Time) (*recovery.RotationResult, error) {
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
	if !enabled {
		return nil, stepup.ErrForbidden("two-factor authentication is not enabled")
	}

	return s.vault.Rotate(ctx, userID, s.cfg.RecoveryBatchSize, now)
}

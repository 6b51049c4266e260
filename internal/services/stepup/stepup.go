// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package stepup manages the lifecycle of step-up challenges: short-lived,
// single-use proof requests tied to one user and one sensitive action.
//
// A challenge moves Pending -> Consumed (terminal), Pending -> Expired
// (terminal, time-based), or Pending -> Locked -> Pending once the lock
// elapses.
package stepup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/models"
	"codeberg.org/habitloop/stepup-engine/internal/repository"
	"codeberg.org/habitloop/stepup-engine/internal/token"
	"github.com/google/uuid"
)

// Config holds the challenge lifecycle tunables. Zero values fall back
// to the documented defaults via Normalized.
type Config struct {
	DefaultTTL       time.Duration // challenge lifetime when the caller passes none
	MinTTL           time.Duration // lower bound for caller-supplied TTLs
	MaxTTL           time.Duration // upper bound for caller-supplied TTLs
	LockoutThreshold int64         // failed attempts before a lock is set
	LockoutDuration  time.Duration // how long a lock holds
	ProofMaxAge      time.Duration // freshness window for RequireFreshProof
}

// DefaultConfig returns the canonical defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:       10 * time.Minute,
		MinTTL:           30 * time.Second,
		MaxTTL:           time.Hour,
		LockoutThreshold: 5,
		LockoutDuration:  5 * time.Minute,
		ProofMaxAge:      10 * time.Minute,
	}
}

// Normalized fills zero fields from DefaultConfig.
func (c Config) Normalized() Config {
	d := DefaultConfig()
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	if c.MinTTL <= 0 {
		c.MinTTL = d.MinTTL
	}
	if c.MaxTTL <= 0 {
		c.MaxTTL = d.MaxTTL
	}
	if c.LockoutThreshold <= 0 {
		c.LockoutThreshold = d.LockoutThreshold
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = d.LockoutDuration
	}
	if c.ProofMaxAge <= 0 {
		c.ProofMaxAge = d.ProofMaxAge
	}
	return c
}

// Store is the persistence surface the manager needs.
type Store interface {
	CreateChallenge(ctx context.Context, ch *models.StepUpChallenge) error
	GetChallengeByTokenHash(ctx context.Context, tokenHash string) (*models.StepUpChallenge, error)
	GetChallengeByID(ctx context.Context, id string) (*models.StepUpChallenge, error)
	IncrementFailedAttempts(ctx context.Context, id string, threshold int64, lockedUntil time.Time) (int64, *time.Time, error)
	ConsumeChallenge(ctx context.Context, id string, method models.Method, now time.Time) (bool, error)
	DeleteChallenge(ctx context.Context, id string) error
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

// Manager issues and resolves step-up challenges.
type Manager struct {
	store Store
	cfg   Config
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, cfg Config) *Manager {
	return &Manager{store: store, cfg: cfg.Normalized()}
}

// Config returns the manager's normalized configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// CreatedChallenge is returned from Create. Token is the raw challenge
// token, handed to the caller exactly once and never recoverable from
// storage.
type CreatedChallenge struct {
	ChallengeID string
	Token       string
	ExpiresAt   time.Time
}

// Create issues a challenge for (user, action). A zero ttl uses the
// default; out-of-range TTLs are a programming error, not a user-facing
// one.
func (m *Manager) Create(ctx context.Context, userID int64, action models.Action, ttl time.Duration, now time.Time) (*CreatedChallenge, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("stepup: unknown action %q", action)
	}
	if ttl == 0 {
		ttl = m.cfg.DefaultTTL
	}
	if ttl < m.cfg.MinTTL || ttl > m.cfg.MaxTTL {
		return nil, fmt.Errorf("stepup: ttl %s outside [%s, %s]", ttl, m.cfg.MinTTL, m.cfg.MaxTTL)
	}

	raw, err := token.Generate(token.DefaultByteLength)
	if err != nil {
		return nil, err
	}

	ch := &models.StepUpChallenge{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		TokenHash: token.Hash(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := m.store.CreateChallenge(ctx, ch); err != nil {
		return nil, fmt.Errorf("stepup: failed to create challenge: %w", err)
	}

	return &CreatedChallenge{ChallengeID: ch.ID, Token: raw, ExpiresAt: ch.ExpiresAt}, nil
}

// Lookup hashes the presented token and performs an exact lookup by
// digest. A missing challenge surfaces as repository.ErrNotFound.
func (m *Manager) Lookup(ctx context.Context, rawToken string) (*models.StepUpChallenge, error) {
	return m.store.GetChallengeByTokenHash(ctx, token.Hash(rawToken))
}

// Reason explains why a challenge is not consumable.
type Reason string

const (
	ReasonConsumed Reason = "consumed"
	ReasonExpired  Reason = "expired"
	ReasonLocked   Reason = "locked"
)

// Consumability checks whether a challenge can still be verified at now.
// Consumed takes priority over expired, which takes priority over
// locked: a consumed-but-since-expired challenge is already resolved and
// must not look retryable.
func Consumability(ch *models.StepUpChallenge, now time.Time) (bool, Reason) {
	if ch.Consumed() {
		return false, ReasonConsumed
	}
	if token.IsExpired(ch.ExpiresAt, now) {
		return false, ReasonExpired
	}
	if ch.Locked(now) {
		return false, ReasonLocked
	}
	return true, ""
}

// ConsumabilityError maps a non-consumable reason onto the failure
// taxonomy: consumed and locked read as unauthorized or forbidden,
// expired tells the caller to re-issue.
func ConsumabilityError(ch *models.StepUpChallenge, reason Reason) *Error {
	switch reason {
	case ReasonExpired:
		return ErrTokenExpired("challenge has expired")
	case ReasonLocked:
		return ErrLocked(*ch.LockedUntil)
	default:
		return ErrUnauthorized("challenge cannot be verified")
	}
}

// RecordFailedAttempt applies one failed verification as an atomic
// increment and reports the new counter plus any lock that resulted.
func (m *Manager) RecordFailedAttempt(ctx context.Context, challengeID string, now time.Time) (int64, *time.Time, error) {
	return m.store.IncrementFailedAttempts(ctx, challengeID, m.cfg.LockoutThreshold, now.Add(m.cfg.LockoutDuration))
}

// ErrAlreadyConsumed is returned by Consume when another verification won.
var ErrAlreadyConsumed = errors.New("stepup: challenge already consumed")

// Consume marks the challenge terminally resolved with the method that
// verified it. Once Consume returns nil the challenge can never leave
// the consumed state.
func (m *Manager) Consume(ctx context.Context, challengeID string, method models.Method, now time.Time) error {
	won, err := m.store.ConsumeChallenge(ctx, challengeID, method, now)
	if err != nil {
		return fmt.Errorf("stepup: failed to consume challenge: %w", err)
	}
	if !won {
		return ErrAlreadyConsumed
	}
	return nil
}

// RequireFreshProof loads the challenge behind rawToken and requires it
// to belong to (userID, action), to be consumed and verified, not
// locked, and verified within maxAge of now. A zero maxAge uses the
// configured freshness window. Callers wanting strict single-use proof
// call Delete immediately after accepting it.
func (m *Manager) RequireFreshProof(ctx context.Context, userID int64, action models.Action, rawToken string, maxAge time.Duration, now time.Time) (*models.StepUpChallenge, error) {
	if maxAge <= 0 {
		maxAge = m.cfg.ProofMaxAge
	}

	ch, err := m.Lookup(ctx, rawToken)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthorized("step-up proof not found")
		}
		return nil, err
	}

	if ch.UserID != userID || ch.Action != action {
		return nil, ErrUnauthorized("step-up proof does not match")
	}
	if !ch.Consumed() || ch.VerifiedAt == nil {
		return nil, ErrUnauthorized("step-up proof is not verified")
	}
	if ch.Locked(now) {
		return nil, ErrLocked(*ch.LockedUntil)
	}
	if now.Sub(*ch.VerifiedAt) > maxAge {
		return nil, ErrTokenExpired("step-up proof is stale")
	}

	return ch, nil
}

// Delete removes a challenge row outright, spending a proof permanently.
func (m *Manager) Delete(ctx context.Context, challengeID string) error {
	return m.store.DeleteChallenge(ctx, challengeID)
}

// PurgeExpired removes unconsumed challenges whose TTL has passed.
func (m *Manager) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return m.store.DeleteExpiredChallenges(ctx, now)
}

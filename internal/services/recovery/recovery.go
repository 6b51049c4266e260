// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package recovery manages the one-time recovery code set. Codes are
// returned in plaintext exactly once at generation; storage only ever
// sees their SHA-256 digests.
package recovery

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// CodeBytes is the entropy per code; rendered as 2*CodeBytes hex chars.
	CodeBytes = 10
	// GroupSize is the number of characters per dash-separated group.
	GroupSize = 4
	// DefaultBatchSize is the number of codes in a fresh batch.
	DefaultBatchSize = 10

	normalizedLength = CodeBytes * 2
)

// ErrMalformedCode is returned when an input cannot be a recovery code.
var ErrMalformedCode = errors.New("recovery: malformed code")

// Store is the persistence surface the vault needs.
type Store interface {
	CreateRecoveryCodes(ctx context.Context, userID int64, codeHashes []string, now time.Time) error
	ConsumeRecoveryCode(ctx context.Context, userID int64, codeHash string, now time.Time) (bool, error)
	RevokeRecoveryCodes(ctx context.Context, userID int64, now time.Time) (int64, error)
	CountUsableRecoveryCodes(ctx context.Context, userID int64) (int64, error)
}

// Vault generates, consumes and rotates recovery codes.
type Vault struct {
	store Store
}

// NewVault creates a Vault over the given store.
func NewVault(store Store) *Vault {
	return &Vault{store: store}
}

// Generate produces count unique plaintext codes, dash-grouped uppercase
// hex (e.g. "1A2B-3C4D-5E6F-7A8B-9C0D").
func (v *Vault) Generate(count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBatchSize
	}

	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		buf := make([]byte, CodeBytes)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, formatCode(code))
	}
	return codes, nil
}

// Normalize strips all non-alphanumeric characters and upper-cases, so a
// code can be re-entered with or without separators.
func Normalize(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		}
	}
	return b.String()
}

// HashCode normalizes then digests a code. Inputs that do not normalize
// to the fixed code length are rejected before hashing.
func HashCode(input string) (string, error) {
	normalized := Normalize(input)
	if len(normalized) != normalizedLength {
		return "", ErrMalformedCode
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Consume attempts to spend one code. The underlying store applies a
// single conditional update, so at most one concurrent caller succeeds.
func (v *Vault) Consume(ctx context.Context, userID int64, code string, now time.Time) (bool, error) {
	hash, err := HashCode(code)
	if err != nil {
		return false, nil // malformed input is just an incorrect code
	}
	return v.store.ConsumeRecoveryCode(ctx, userID, hash, now)
}

// RevokeAll marks every usable code for the user as revoked at now.
func (v *Vault) RevokeAll(ctx context.Context, userID int64, now time.Time) (int64, error) {
	return v.store.RevokeRecoveryCodes(ctx, userID, now)
}

// RotationResult reports the outcome of a Rotate call. Codes holds the
// plaintexts; they cannot be recovered after this value is dropped.
type RotationResult struct {
	Codes        []string
	CreatedCount int
	RevokedCount int64
}

// Rotate revokes all usable codes and issues a fresh batch. Revocation
// and creation are one logical operation even though they are two
// storage calls; a failure between them leaves the user with no usable
// codes rather than with stale ones.
func (v *Vault) Rotate(ctx context.Context, userID int64, count int, now time.Time) (*RotationResult, error) {
	if count <= 0 {
		count = DefaultBatchSize
	}

	revoked, err := v.store.RevokeRecoveryCodes(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to revoke recovery codes: %w", err)
	}

	codes, err := v.Generate(count)
	if err != nil {
		return nil, err
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		hash, err := HashCode(code)
		if err != nil {
			return nil, err
		}
		hashes[i] = hash
	}

	if err := v.store.CreateRecoveryCodes(ctx, userID, hashes, now); err != nil {
		return nil, fmt.Errorf("failed to persist recovery codes: %w", err)
	}

	return &RotationResult{Codes: codes, CreatedCount: len(codes), RevokedCount: revoked}, nil
}

func formatCode(code string) string {
	parts := make([]string, 0, len(code)/GroupSize)
	for i := 0; i < len(code); i += GroupSize {
		parts = append(parts, code[i:i+GroupSize])
	}
	return strings.Join(parts, "-")
}

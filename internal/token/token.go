// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token generates and digests the opaque secrets used for
// step-up challenges and recovery codes. Raw tokens are handed to the
// caller exactly once; storage only ever sees the SHA-256 digest.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultByteLength is the entropy of a challenge token in bytes.
const DefaultByteLength = 32

// Generate returns a cryptographically random token rendered as a
// fixed-width lowercase hex string (two characters per byte).
func Generate(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = DefaultByteLength
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// Hash returns the hex-encoded SHA-256 digest of a raw token. The digest
// is deterministic and is what gets persisted and looked up.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IsExpired reports whether expiresAt has passed at now. The boundary is
// exclusive on the valid side: a token expiring exactly at now is expired.
func IsExpired(expiresAt, now time.Time) bool {
	return !expiresAt.After(now)
}

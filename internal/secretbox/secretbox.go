// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package secretbox wraps TOTP secrets with AES-256-GCM before they
// reach storage. The server-held key is supplied as 64 hex characters.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

var (
	// ErrInvalidKey is returned when the key is not 32 bytes of hex.
	ErrInvalidKey = errors.New("secretbox: key must be 32 bytes hex-encoded")
	// ErrCiphertextTooShort is returned when the ciphertext cannot hold a nonce.
	ErrCiphertextTooShort = errors.New("secretbox: ciphertext too short")
)

// Box encrypts and decrypts short secrets with a fixed key.
type Box struct {
	aead cipher.AEAD
}

// New creates a Box from a hex-encoded 32-byte key.
func New(keyHex string) (*Box, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}

	return &Box{aead: aead}, nil
}

// Encrypt seals plaintext and returns base64(nonce || ciphertext || tag).
func (b *Box) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("secretbox: failed to generate nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64(nonce || ciphertext || tag) and returns the plaintext.
func (b *Box) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("secretbox: invalid base64: %w", err)
	}

	nonceSize := b.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := b.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("secretbox: failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package totp verifies time-based one-time codes against a shared
// secret with bounded clock-skew tolerance.
package totp

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// Period is the length of one TOTP time step in seconds.
	Period = 30
	// SecretSize is the raw secret entropy in bytes (160 bits for SHA1).
	SecretSize = 20
	// DefaultSkew is the number of steps tolerated on either side of now.
	DefaultSkew = 1
)

// Engine generates secrets and verifies submitted codes.
type Engine struct {
	issuer string
	skew   int
}

// NewEngine creates an Engine for the given issuer name. Skew defaults
// to DefaultSkew.
func NewEngine(issuer string) *Engine {
	if strings.TrimSpace(issuer) == "" {
		issuer = "Habitloop"
	}
	return &Engine{issuer: issuer, skew: DefaultSkew}
}

// NewEngineWithSkew creates an Engine with an explicit skew window.
func NewEngineWithSkew(issuer string, skew int) *Engine {
	e := NewEngine(issuer)
	if skew >= 0 {
		e.skew = skew
	}
	return e
}

// GenerateSecret returns a fresh base32-encoded secret compatible with
// authenticator apps.
func (e *Engine) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.issuer,
		AccountName: "pending", // label is rebuilt per user in ProvisioningURI
		Period:      Period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  SecretSize,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}
	return key.Secret(), nil
}

// ProvisioningURI builds the otpauth:// URI for an existing secret. The
// caller renders it as a QR code; the engine never does.
func (e *Engine) ProvisioningURI(secret, accountName string) (string, error) {
	if strings.TrimSpace(accountName) == "" {
		return "", fmt.Errorf("account name cannot be empty")
	}
	if strings.ContainsRune(accountName, ':') || strings.ContainsRune(e.issuer, ':') {
		return "", fmt.Errorf("issuer and account name cannot contain a colon")
	}

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", e.issuer)
	v.Set("algorithm", otp.AlgorithmSHA1.String())
	v.Set("digits", otp.DigitsSix.String())
	v.Set("period", fmt.Sprintf("%d", Period))

	u := url.URL{
		Scheme:   "otpauth",
		Host:     "totp",
		Path:     "/" + e.issuer + ":" + accountName,
		RawQuery: v.Encode(),
	}
	return u.String(), nil
}

// Result reports the outcome of a code verification. Step is the
// absolute time-step counter that matched, so callers can reject replays
// of the same step.
type Result struct {
	Valid      bool
	StepOffset int
	Step       int64
}

// Verify checks a submitted code against the current time step and
// e.skew steps on either side. The comparison is constant-time per
// candidate step.
func (e *Engine) Verify(secret, code string, now time.Time) (Result, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Result{}, fmt.Errorf("code cannot be empty")
	}
	if strings.TrimSpace(secret) == "" {
		return Result{}, fmt.Errorf("secret cannot be empty")
	}

	current := now.Unix() / Period
	for offset := -e.skew; offset <= e.skew; offset++ {
		step := current + int64(offset)
		at := time.Unix(step*Period, 0).UTC()
		expected, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
			Period:    Period,
			Skew:      0,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return Result{}, fmt.Errorf("failed to compute TOTP code: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return Result{Valid: true, StepOffset: offset, Step: step}, nil
		}
	}

	return Result{}, nil
}

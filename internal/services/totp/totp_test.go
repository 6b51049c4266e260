// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package totp_test

import (
	"strings"
	"testing"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/services/totp"
	"github.com/pquerna/otp"
	pqtotp "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := pqtotp.GenerateCodeCustom(secret, at.UTC(), pqtotp.ValidateOpts{
		Period:    totp.Period,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestGenerateSecret(t *testing.T) {
	e := totp.NewEngine("Habitloop")

	secret, err := e.GenerateSecret()

	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	// base32 without padding
	assert.NotContains(t, secret, "=")
}

func TestGenerateSecret_Unique(t *testing.T) {
	e := totp.NewEngine("Habitloop")

	a, err := e.GenerateSecret()
	require.NoError(t, err)
	b, err := e.GenerateSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestProvisioningURI(t *testing.T) {
	e := totp.NewEngine("Habitloop")
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	uri, err := e.ProvisioningURI(secret, "user@example.com")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "otpauth://totp/"), uri)
	assert.Contains(t, uri, "secret="+secret)
	assert.Contains(t, uri, "issuer=Habitloop")
	assert.Contains(t, uri, "period=30")
}

func TestProvisioningURI_RejectsColonInAccount(t *testing.T) {
	e := totp.NewEngine("Habitloop")

	_, err := e.ProvisioningURI("SECRET", "bad:label")

	assert.Error(t, err)
}

func TestProvisioningURI_RejectsEmptyAccount(t *testing.T) {
	e := totp.NewEngine("Habitloop")

	_, err := e.ProvisioningURI("SECRET", "  ")

	assert.Error(t, err)
}

func TestVerify_CurrentStep(t *testing.T) {
	e := totp.NewEngine("Habitloop")
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_015, 0)
	res, err := e.Verify(secret, codeAt(t, secret, now), now)

	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, 0, res.StepOffset)
	assert.Equal(t, now.Unix()/totp.Period, res.Step)
}

func TestVerify_SkewWindow(t *testing.T) {
	e := totp.NewEngine("Habitloop")
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_015, 0)

	prev, err := e.Verify(secret, codeAt(t, secret, now.Add(-totp.Period*time.Second)), now)
	require.NoError(t, err)
	assert.True(t, prev.Valid)
	assert.Equal(t, -1, prev.StepOffset)

	next, err := e.Verify(secret, codeAt(t, secret, now.Add(totp.Period*time.Second)), now)
	require.NoError(t, err)
	assert.True(t, next.Valid)
	assert.Equal(t, 1, next.StepOffset)
}

func TestVerify_OutsideSkewFails(t *testing.T) {
	e := totp.NewEngine("Habitloop")
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	now := time.Unix(1_700_000_015, 0)
	res, err := e.Verify(secret, codeAt(t, secret, now.Add(-2*totp.Period*time.Second)), now)

	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestVerify_WrongCodeFails(t *testing.T) {
	e := totp.NewEngine("Habitloop")
	secret, err := e.GenerateSecret()
	require.NoError(t, err)

	res, err := e.Verify(secret, "000000", time.Unix(1_700_000_015, 0))

	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestVerify_EmptyInputs(t *testing.T) {
	e := totp.NewEngine("Habitloop")

	_, err := e.Verify("", "123456", time.Now())
	assert.Error(t, err)

	_, err = e.Verify("SECRET", "", time.Now())
	assert.Error(t, err)
}

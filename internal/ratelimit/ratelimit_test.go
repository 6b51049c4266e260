// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package ratelimit_test

import (
	"testing"
	"time"

	"codeberg.org/habitloop/stepup-engine/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

var policy = ratelimit.Policy{
	Window: time.Second,
	Max:    2,
	Block:  2 * time.Second,
}

func TestConsume_WithinWindow(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	first := s.Consume("verify:1", policy, now)
	assert.False(t, first.Limited)
	assert.Equal(t, 1, first.Remaining)

	second := s.Consume("verify:1", policy, now)
	assert.False(t, second.Limited)
	assert.Equal(t, 0, second.Remaining)
}

func TestConsume_ExceedingMaxBlocks(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	s.Consume("verify:1", policy, now)
	s.Consume("verify:1", policy, now)
	third := s.Consume("verify:1", policy, now)

	assert.True(t, third.Limited)
	assert.Equal(t, 0, third.Remaining)
	assert.Equal(t, 2, third.RetryAfterSeconds)
	assert.Equal(t, now.Add(2*time.Second), third.ResetAt)
}

func TestConsume_BlockedDoesNotMutateCounter(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	for range 3 {
		s.Consume("verify:1", policy, now)
	}

	// Repeated calls while blocked keep reporting the remaining cooldown.
	blocked := s.Consume("verify:1", policy, now.Add(500*time.Millisecond))
	assert.True(t, blocked.Limited)
	assert.Equal(t, 2, blocked.RetryAfterSeconds)
}

func TestConsume_BlockOutlivesWindowReset(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	for range 3 {
		s.Consume("verify:1", policy, now)
	}

	// Window length has elapsed but the cooldown has not.
	stillBlocked := s.Consume("verify:1", policy, now.Add(1500*time.Millisecond))
	assert.True(t, stillBlocked.Limited)
}

func TestConsume_FreshWindowAfterBlockExpires(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	for range 3 {
		s.Consume("verify:1", policy, now)
	}

	after := s.Consume("verify:1", policy, now.Add(2100*time.Millisecond))
	assert.False(t, after.Limited)
	assert.Equal(t, 1, after.Remaining)
}

func TestConsume_WindowReset(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	s.Consume("verify:1", policy, now)
	s.Consume("verify:1", policy, now)

	next := s.Consume("verify:1", policy, now.Add(1100*time.Millisecond))
	assert.False(t, next.Limited)
	assert.Equal(t, 1, next.Remaining)
}

func TestConsume_KeysAreIndependent(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	for range 3 {
		s.Consume("verify:1", policy, now)
	}

	other := s.Consume("verify:2", policy, now)
	assert.False(t, other.Limited)
}

func TestKey_CaseNormalized(t *testing.T) {
	assert.Equal(t, "stepup-verify:10.0.0.1", ratelimit.Key("StepUp-Verify", "10.0.0.1"))
}

func TestReset(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	for range 3 {
		s.Consume("verify:1", policy, now)
	}
	s.Reset("verify:1")

	fresh := s.Consume("verify:1", policy, now)
	assert.False(t, fresh.Limited)
}

func TestPurge(t *testing.T) {
	s := ratelimit.NewStore()
	now := time.Unix(1_700_000_000, 0)

	s.Consume("verify:1", policy, now)
	assert.Equal(t, 1, s.Len())

	removed := s.Purge(now.Add(2 * time.Hour))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, s.Len())
}

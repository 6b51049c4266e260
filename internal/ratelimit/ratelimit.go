// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit implements a fixed-window counter with a cooldown
// block. The store is process-wide, shared by all requests, and is
// constructed once at startup and passed by reference so a distributed
// implementation can be swapped in without touching call sites.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Policy is the per-route tuning for a limited operation.
type Policy struct {
	Window time.Duration // length of the counting window
	Max    int           // requests allowed per window
	Block  time.Duration // cooldown once Max is exceeded
}

// Decision is the outcome of one Consume call.
type Decision struct {
	Limited           bool
	Limit             int
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int
}

type entry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

// Store holds the in-memory limiter table. Increments are serialized per
// store; a multi-instance deployment needs a shared backend instead.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewStore creates an empty limiter table.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Key combines a route identifier and a caller identifier into a
// case-normalized limiter key.
func Key(route, caller string) string {
	return strings.ToLower(route + ":" + caller)
}

// Consume records one request against key and reports whether it is
// allowed. While a key is blocked no counter mutation occurs.
func (s *Store) Consume(key string, p Policy, now time.Time) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entries[key]

	// A blocked key reports zero remaining quota until the cooldown passes.
	if e != nil && e.blockedUntil.After(now) {
		return Decision{
			Limited:           true,
			Limit:             p.Max,
			Remaining:         0,
			ResetAt:           e.blockedUntil,
			RetryAfterSeconds: retryAfter(e.blockedUntil, now),
		}
	}

	if e == nil || e.windowStart.Add(p.Window).Before(now) {
		e = &entry{windowStart: now}
		s.entries[key] = e
	}

	e.count++

	if e.count > p.Max {
		e.blockedUntil = now.Add(p.Block)
		return Decision{
			Limited:           true,
			Limit:             p.Max,
			Remaining:         0,
			ResetAt:           e.blockedUntil,
			RetryAfterSeconds: retryAfter(e.blockedUntil, now),
		}
	}

	return Decision{
		Limit:     p.Max,
		Remaining: p.Max - e.count,
		ResetAt:   e.windowStart.Add(p.Window),
	}
}

// Reset drops the entry for key, clearing any block.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Purge removes entries whose window and block have both passed and
// returns how many were dropped. Callers may run it periodically to
// bound memory.
func (s *Store) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		// Windows older than an hour are certainly stale for any sane policy.
		if e.blockedUntil.Before(now) && e.windowStart.Add(time.Hour).Before(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func retryAfter(until, now time.Time) int {
	secs := int((until.Sub(now) + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Package ratelimit provides a sliding-window in-memory limiter for the
// operational HTTP endpoints.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrLimitExceeded is returned when a key has exhausted its window budget.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Result describes the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces a per-key sliding-window limit. Buckets are kept in
// memory; an idle key's bucket is dropped by the periodic cleanup.
type Limiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	buckets map[string][]time.Time
}

// NewLimiter allows limit requests per key within window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:   limit,
		window:  window,
		buckets: make(map[string][]time.Time),
	}
}

// Check records a request for key and reports whether it is within budget.
func (l *Limiter) Check(key string) (*Result, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	recent := keepRecent(l.buckets[key], windowStart)
	allowed := len(recent) < l.limit
	if allowed {
		recent = append(recent, now)
	}
	l.buckets[key] = recent

	remaining := l.limit - len(recent)
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   now.Add(l.window),
	}

	if !allowed {
		return result, ErrLimitExceeded
	}

	return result, nil
}

// Cleanup drops buckets whose newest entry is older than maxAge.
func (l *Limiter) Cleanup(maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}

	cutoff := time.Now().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, requests := range l.buckets {
		if len(requests) == 0 || requests[len(requests)-1].Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func keepRecent(requests []time.Time, windowStart time.Time) []time.Time {
	first := 0
	for first < len(requests) && requests[first].Before(windowStart) {
		first++
	}

	if first == 0 {
		return requests
	}
	if first >= len(requests) {
		return requests[:0]
	}

	copy(requests, requests[first:])
	return requests[:len(requests)-first]
}

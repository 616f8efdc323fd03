// ABOUTME: Per-key sliding-window counters with lazy reset.
// ABOUTME: Check-then-increment is atomic per key under the limiter mutex.

package rules

import (
	"sync"
	"time"
)

type bucketKey struct {
	agentType   string
	requestType ActionType
	window      Window
}

type bucket struct {
	count   int
	resetAt time.Time
}

// limiter owns the rate-limit buckets. Buckets are created on first use and
// live for the process lifetime.
type limiter struct {
	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

func newLimiter() *limiter {
	return &limiter{buckets: make(map[bucketKey]*bucket)}
}

// check evaluates and, when allowed, consumes one unit of budget for the
// key. The limit is evaluated against the count before incrementing, so a
// denied attempt never consumes budget. A limit of 0 means unlimited.
func (l *limiter) check(key bucketKey, limit int, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	if limit <= 0 {
		return 0, time.Time{}, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{resetAt: now.Add(key.window.Duration())}
		l.buckets[key] = b
	}
	if !now.Before(b.resetAt) {
		b.count = 0
		b.resetAt = now.Add(key.window.Duration())
	}

	if b.count >= limit {
		return 0, b.resetAt, false
	}
	b.count++
	return limit - b.count, b.resetAt, true
}

// peek evaluates the limit for a key without consuming budget. Used when
// another rule already failed: the rate check still contributes its
// violation, but a denied attempt must not advance the counter.
func (l *limiter) peek(key bucketKey, limit int, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	if limit <= 0 {
		return 0, time.Time{}, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		return limit, now.Add(key.window.Duration()), true
	}
	if b.count >= limit {
		return 0, b.resetAt, false
	}
	return limit - b.count, b.resetAt, true
}

package safety

import (
	"sync"
	"time"
)

// tokenBucket is a per-user token bucket. Tokens refill continuously at
// refillRate per second up to maxTokens.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// maxRefillSeconds caps the elapsed time used for refill so a long idle
// period (system sleep, stale entry) fills the bucket to capacity instead of
// minting an unbounded burst.
const maxRefillSeconds = 120.0

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > maxRefillSeconds {
		elapsed = maxRefillSeconds
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// tryConsume takes one token if available and reports whether it succeeded.
// On failure it returns the wait until the next token.
func (b *tokenBucket) tryConsume(now time.Time) (bool, time.Duration) {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.refillRate <= 0 {
		return false, time.Minute
	}
	deficit := 1 - b.tokens
	return false, time.Duration(deficit / b.refillRate * float64(time.Second))
}

// RateLimiter tracks a token bucket per user id.
type RateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*tokenBucket
	maxTokens  float64
	refillRate float64
}

// NewRateLimiter allows perMinute sustained requests with a burst allowance.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		buckets:    make(map[string]*tokenBucket),
		maxTokens:  float64(burst),
		refillRate: float64(perMinute) / 60.0,
	}
}

// Allow consumes one token for the user. When denied, retryAfter estimates
// how long until a token is available.
func (r *RateLimiter) Allow(userID string) (allowed bool, retryAfter time.Duration) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[userID]
	if !ok {
		b = &tokenBucket{
			tokens:     r.maxTokens,
			maxTokens:  r.maxTokens,
			refillRate: r.refillRate,
			lastRefill: now,
		}
		r.buckets[userID] = b
	}
	return b.tryConsume(now)
}

// Reset refills the user's bucket. Used by tests and admin paths.
func (r *RateLimiter) Reset(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buckets[userID]; ok {
		b.tokens = b.maxTokens
		b.lastRefill = time.Now()
	}
}

package web

import (
	"context"
	"sync"
	"time"
)

const (
	// MaxChatRequestsPerMinute limits chat turns per user.
	MaxChatRequestsPerMinute = 10

	// cleanupInterval is how often to check for stale users
	cleanupInterval = 5 * time.Minute

	// maxIdleAge is the maximum idle time before a user's bucket is dropped
	maxIdleAge = 30 * time.Minute
)

// tokenBucket implements a simple token bucket rate limiter.
type tokenBucket struct {
	capacity   int
	tokens     int
	lastRefill time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

// newTokenBucket creates a full bucket. Tokens refill at a rate of
// capacity per minute.
func newTokenBucket(capacity int, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		lastRefill: now,
		lastAccess: now,
	}
}

// allow consumes a token if one is available.
func (tb *tokenBucket) allow(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	elapsed := now.Sub(tb.lastRefill)
	tokensToAdd := int(elapsed.Minutes() * float64(tb.capacity))
	if tokensToAdd > 0 {
		tb.tokens = min(tb.tokens+tokensToAdd, tb.capacity)
		tb.lastRefill = now
	}
	tb.lastAccess = now

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// rateLimiter tracks chat rate limits per user.
type rateLimiter struct {
	mu    sync.Mutex
	chat  map[string]*tokenBucket
	limit int
	now   func() time.Time
}

func newRateLimiter(now func() time.Time) *rateLimiter {
	return &rateLimiter{
		chat:  make(map[string]*tokenBucket),
		limit: MaxChatRequestsPerMinute,
		now:   now,
	}
}

// allowChat checks if a chat turn is allowed for userID.
func (rl *rateLimiter) allowChat(userID string) bool {
	now := rl.now()
	rl.mu.Lock()
	bucket, ok := rl.chat[userID]
	if !ok {
		bucket = newTokenBucket(rl.limit, now)
		rl.chat[userID] = bucket
	}
	rl.mu.Unlock()

	return bucket.allow(now)
}

// cleanup removes rate limit state for a reset user.
func (rl *rateLimiter) cleanup(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.chat, userID)
}

// cleanupStale drops buckets idle for longer than maxAge.
// SECURITY: Prevents unbounded growth of the bucket map.
func (rl *rateLimiter) cleanupStale(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for userID, bucket := range rl.chat {
		bucket.mu.Lock()
		stale := now.Sub(bucket.lastAccess) > maxAge
		bucket.mu.Unlock()
		if stale {
			delete(rl.chat, userID)
		}
	}
}

// startCleanup periodically drops stale buckets until ctx is cancelled.
func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.cleanupStale(maxIdleAge)
			case <-ctx.Done():
				return
			}
		}
	}()
}

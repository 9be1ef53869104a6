package redis

import (
	"context"
	"time"
)

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	RetryIn   time.Duration
}

// RateLimiter provides fixed-window rate limiting using Redis. It guards
// the PIN login and assignment endpoints, where the 4-digit PIN doubles as
// the player's credential.
type RateLimiter struct {
	client    *Client
	keyPrefix string
	limit     int64
	window    time.Duration
}

// NewRateLimiter creates a new RateLimiter. client may be nil, in which
// case every request is allowed.
func NewRateLimiter(client *Client, keyPrefix string, limit int64, window time.Duration) *RateLimiter {
	if keyPrefix == "" {
		keyPrefix = "ratelimit:"
	}
	return &RateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// Allow counts a hit against the key's current window and reports whether
// the caller is still within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (*RateLimitResult, error) {
	if r == nil || r.client == nil {
		return &RateLimitResult{Allowed: true, Remaining: -1}, nil
	}

	fullKey := r.keyPrefix + key

	count, err := r.client.Incr(ctx, fullKey)
	if err != nil {
		return nil, err
	}

	// First hit opens the window
	if count == 1 {
		if err := r.client.Expire(ctx, fullKey, r.window); err != nil {
			return nil, err
		}
	}

	if count > r.limit {
		ttl, err := r.client.TTL(ctx, fullKey)
		if err != nil {
			ttl = r.window
		}
		if ttl < 0 {
			ttl = 0
		}
		return &RateLimitResult{Allowed: false, Remaining: 0, RetryIn: ttl}, nil
	}

	return &RateLimitResult{Allowed: true, Remaining: r.limit - count}, nil
}

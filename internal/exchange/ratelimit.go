// ratelimit.go implements token-bucket rate limiting for the exchange's
// REST boundary. There are two request categories — the read-only /info
// endpoint and the mutating /exchange endpoint — each throttled by its
// own continuously-refilling bucket.
package exchange

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous
// refill. Callers block in Wait() until a token is available or the
// context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens refilled per second
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups the two token buckets the REST boundary needs.
type RateLimiter struct {
	Info     *TokenBucket // POST /info — market data, account state, open orders
	Exchange *TokenBucket // POST /exchange — order placement, cancellation
}

// NewRateLimiter creates rate limiters tuned to a generous default burst
// allowance; production deployments tune these via the exchange's
// published limits.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Info:     NewTokenBucket(100, 20),
		Exchange: NewTokenBucket(50, 10),
	}
}

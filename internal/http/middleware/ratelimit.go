// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a token-bucket rate limiter with one bucket per
// account (or client IP for routes without an account) built on
// golang.org/x/time/rate. Buckets live in a bounded LRU, so memory stays flat
// however many distinct callers show up; an evicted caller simply starts
// again with a full bucket.
//
// The limiter is process-local; it is edge abuse control, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"
)

// DefaultMaxBuckets bounds the number of tracked callers.
const DefaultMaxBuckets = 10_000

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByAccountOrIP keys buckets by the :userId path parameter
// ("user:<id>") and falls back to the client IP ("ip:<addr>").
func KeyByAccountOrIP() keyFunc {
	return identity
}

// RateLimiter implements a per-key token-bucket rate limiter. It is safe for
// concurrent use.
type RateLimiter struct {
	rps     rate.Limit
	burst   int
	keyFn   keyFunc
	buckets *lru.Cache
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn and tracking at most DefaultMaxBuckets
// callers. Burst values <= 0 are coerced to 1.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	return newRateLimiter(rps, burst, keyFn, DefaultMaxBuckets)
}

func newRateLimiter(rps float64, burst int, keyFn keyFunc, maxBuckets int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = identity
	}
	if maxBuckets <= 0 {
		maxBuckets = DefaultMaxBuckets
	}
	buckets, _ := lru.New(maxBuckets) // only fails for a non-positive size
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: buckets,
	}
}

// bucket returns the limiter for key, creating it if absent.
func (rl *RateLimiter) bucket(key string) *rate.Limiter {
	if v, ok := rl.buckets.Get(key); ok {
		return v.(*rate.Limiter)
	}
	fresh := rate.NewLimiter(rl.rps, rl.burst)
	if prev, ok, _ := rl.buckets.PeekOrAdd(key, fresh); ok {
		// Lost a creation race; share the winner's bucket.
		return prev.(*rate.Limiter)
	}
	return fresh
}

// IsRateBypass reports whether Idempotency marked this request as a replay.
func IsRateBypass(c *gin.Context) bool {
	return c.GetBool(ctxKeyRateBypass)
}

// Handler returns a Gin middleware that enforces per-key limits. Denied
// requests get 429 with a Retry-After header in whole seconds (at least 1).
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		res := rl.bucket(rl.keyFn(c)).Reserve()
		if res.OK() && res.Delay() == 0 {
			c.Next()
			return
		}

		retry := 1
		if res.OK() {
			retry = max(1, int(math.Ceil(res.Delay().Seconds())))
			res.Cancel()
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"error":      "rate limit exceeded",
		})
	}
}

package web

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter hands out a per-client-IP token bucket. Federation
// endpoints (inbox, shared inbox) get a stricter limiter than the rest
// of the site, per spec §4.C3's "rate limiting per remote origin".
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// getLimiter returns the bucket for ip, creating one on first sight.
// The map is never keyed by anything other than IP, so it grows
// unbounded over a long-lived process; cleanupIfNeeded keeps that in
// check without needing a separate sweep goroutine.
func (rl *RateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupIfNeeded()

	limiter, ok := rl.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[ip] = limiter
	}
	return limiter
}

// cleanupIfNeeded drops the entire map past 10000 distinct IPs rather
// than tracking per-entry last-seen times; a forgotten IP just gets a
// fresh bucket next time it shows up.
func (rl *RateLimiter) cleanupIfNeeded() {
	if len(rl.limiters) > 10000 {
		rl.limiters = make(map[string]*rate.Limiter)
	}
}

// RateLimitMiddleware rejects requests once the caller's IP has
// exhausted its token bucket.
func RateLimitMiddleware(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// MaxBytesMiddleware rejects requests whose declared Content-Length
// exceeds maxBytes and wraps the body reader so an under-reported
// Content-Length can't be used to smuggle a larger payload past the
// check (spec §4.C3's bounded-size parse starts here, at the transport
// boundary, before JSON decoding ever begins).
func MaxBytesMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Request body too large (max %d bytes)", maxBytes),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/pulsewatch/backend/internal/logging"
	"golang.org/x/time/rate"
)

// reporter tracks rate limiting state for a single client IP.
type reporter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter implements per-IP rate limiting using a token bucket algorithm.
// Heartbeats arrive every few seconds per tab, so the bucket is sized from
// the per-minute budget. Idle reporters are cleaned up after 3 minutes.
type RateLimiter struct {
	reporters map[string]*reporter
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
}

// NewRateLimiter creates a rate limiter with the specified requests per minute.
// Starts a background goroutine to clean up idle reporters.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		reporters: make(map[string]*reporter),
		rate:      rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:     requestsPerMinute,
	}

	go rl.cleanupReporters()

	return rl
}

// getReporter returns the rate limiter for an IP, creating one if needed.
func (rl *RateLimiter) getReporter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.reporters[ip]
	if !exists {
		limiter := rate.NewLimiter(rl.rate, rl.burst)
		rl.reporters[ip] = &reporter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanupReporters removes reporters that haven't been seen in 3 minutes.
func (rl *RateLimiter) cleanupReporters() {
	for {
		time.Sleep(time.Minute)

		rl.mu.Lock()
		for ip, v := range rl.reporters {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(rl.reporters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware returns the HTTP middleware that enforces rate limiting.
// Returns 429 Too Many Requests when the limit is exceeded.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getReporter(logging.ExtractClientIP(r))
		if !limiter.Allow() {
			logging.LogSecurityEvent(r.Context(), logging.SecurityEventRateLimited, "rate limit exceeded")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

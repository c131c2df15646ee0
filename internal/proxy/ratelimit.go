package proxy

import (
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// visitor holds the rate limiter and last seen time for a client IP.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	now      func() time.Time

	exemptLoopback bool
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// ExemptLoopback lets callers on a loopback address through unlimited. The session
// core calls the proxy over loopback on behalf of every user.
func ExemptLoopback() LimiterOption {
	return func(l *RateLimiter) {
		l.exemptLoopback = true
	}
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
func NewRateLimiter(perSecond float64, burst int, opts ...LimiterOption) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	l := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether a request from ip may proceed.
func (l *RateLimiter) Allow(ip string) bool {
	if l.exemptLoopback {
		if addr := net.ParseIP(ip); addr != nil && addr.IsLoopback() {
			return true
		}
	}
	return l.limiter(ip).Allow()
}

func (l *RateLimiter) limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = l.now()
	return v.limiter
}

// Middleware rejects requests over the limit with 429.
func (l *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !l.Allow(c.IP()) {
			return errorJSON(c, fiber.StatusTooManyRequests, "Too many requests")
		}
		return c.Next()
	}
}

// Sweep removes visitors idle for longer than maxIdle and returns how many were removed.
func (l *RateLimiter) Sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked visitors.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

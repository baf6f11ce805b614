package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity of its token bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys authenticated callers by user id and everyone else by
// client IP. The prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid, ok := UserID(c); ok {
			return "user:" + strconv.FormatUint(uint64(uid), 10)
		}
		return "ip:" + c.ClientIP()
	}
}

// KeyByIP keys every caller by client IP. Used on login and registration,
// where there is no identity yet to key by.
func KeyByIP() keyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// RateLimitOptions configures a RateLimiter.
type RateLimitOptions struct {
	// Scope labels rejections in metrics and logs ("api", "auth").
	Scope string
	RPS   float64
	// Burst is coerced to at least 1.
	Burst int
	// Key defaults to KeyByUserOrIP.
	Key keyFunc
	// IdleTTL is how long an unused bucket is kept. Default 10m.
	IdleTTL time.Duration
	// SweepEvery is the number of lookups between idle sweeps. Default 5000.
	SweepEvery uint64
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local, per-key token bucket. Idle buckets are
// dropped opportunistically to bound memory. Safe for concurrent use.
type RateLimiter struct {
	scope string
	rps   rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	ttl      time.Duration
	every    uint64
	lookups  uint64
}

// NewRateLimiter builds a limiter from opts, filling defaults.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	rl := &RateLimiter{
		scope:    opts.Scope,
		rps:      rate.Limit(opts.RPS),
		burst:    opts.Burst,
		keyFn:    opts.Key,
		now:      time.Now,
		visitors: make(map[string]*visitor),
		ttl:      opts.IdleTTL,
		every:    opts.SweepEvery,
	}
	if rl.scope == "" {
		rl.scope = "api"
	}
	if rl.burst <= 0 {
		rl.burst = 1
	}
	if rl.keyFn == nil {
		rl.keyFn = KeyByUserOrIP()
	}
	if rl.ttl <= 0 {
		rl.ttl = 10 * time.Minute
	}
	if rl.every == 0 {
		rl.every = 5000
	}
	return rl
}

// getVisitor returns the bucket for key. Every SweepEvery lookups it drops
// idle buckets first, so a stale bucket is evicted even when it is the one
// asked for.
func (rl *RateLimiter) getVisitor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.every {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// retryAfter is the whole number of seconds until lim holds one token.
// A limiter that never refills reports 1.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	if lim.Limit() <= 0 {
		return 1
	}
	missing := 1 - lim.TokensAt(now)
	secs := int(math.Ceil(missing / float64(lim.Limit())))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// IsRateBypass reports whether IdempotencyValidator flagged this request as
// a replay of a completed purchase.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit, answering 429 with Retry-After when the bucket
// is empty. Replays skip limiting and consume no tokens.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		now := rl.now()
		key := rl.keyFn(c)
		lim := rl.getVisitor(key, now)
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(rl.scope).Inc()
		LoggerFrom(c).Debug().Str("scope", rl.scope).Str("bucket", key).Msg("rate limited")
		c.Header("Retry-After", strconv.Itoa(retryAfter(lim, now)))
		abortJSON(c, http.StatusTooManyRequests, "too_many_requests", "rate limit exceeded")
	}
}

package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"golang.org/x/time/rate"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	if key := KeyByUserOrIP()(c); !strings.HasPrefix(key, "ip:") || !strings.Contains(key, "203.0.113.9") {
		t.Fatalf("expected ip-based key; got %q", key)
	}
	c.Set(userIDKey, uint(123))
	if key := KeyByUserOrIP()(c); key != "user:123" {
		t.Fatalf("expected user-based key; got %q", key)
	}
	if key := KeyByIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("KeyByIP must ignore the user; got %q", key)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 2})
	if rl.burst != 1 || rl.scope != "api" || rl.ttl != 10*time.Minute || rl.every != 5000 || rl.keyFn == nil {
		t.Fatalf("defaults not applied: %+v", rl)
	}
	now := time.Now()
	lim := rl.getVisitor("k1", now)
	if got := rl.getVisitor("k1", now); got != lim {
		t.Fatalf("expected same limiter instance to be reused")
	}
	if rl.Len() != 1 {
		t.Fatalf("Len = %d; want 1", rl.Len())
	}
}

func TestRateLimiter_getVisitor_SweepsIdle(t *testing.T) {
	rl := NewRateLimiter(RateLimitOptions{RPS: 1, Burst: 1, IdleTTL: time.Minute, SweepEvery: 3})
	now := time.Now()
	old := rl.getVisitor("old", now.Add(-time.Hour))
	rl.getVisitor("fresh", now)

	// third lookup triggers the sweep before "old" is resolved
	if got := rl.getVisitor("old", now); got == old {
		t.Fatalf("idle bucket should have been evicted and recreated")
	}
	if rl.lookups != 0 {
		t.Fatalf("lookup counter not reset: %d", rl.lookups)
	}
	if rl.Len() != 2 {
		t.Fatalf("Len = %d; want 2 (fresh + recreated old)", rl.Len())
	}
}

func TestRetryAfter(t *testing.T) {
	now := time.Now()

	lim := rate.NewLimiter(0.5, 1) // one token every 2s
	lim.AllowN(now, 1)
	if got := retryAfter(lim, now); got != 2 {
		t.Fatalf("retryAfter = %d; want 2", got)
	}
	if got := retryAfter(lim, now.Add(1500*time.Millisecond)); got != 1 {
		t.Fatalf("retryAfter after partial refill = %d; want 1", got)
	}
	if got := retryAfter(rate.NewLimiter(0, 1), now); got != 1 {
		t.Fatalf("non-refilling limiter = %d; want 1", got)
	}
}

func TestRateLimiter_HandlerLimitsAndBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(RateLimitOptions{
		Scope: "test",
		RPS:   0.1,
		Burst: 1,
		Key:   func(*gin.Context) string { return "same" },
	})
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-Replay") == "1" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	base := testutil.ToFloat64(rateLimited.WithLabelValues("test"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") != "10" {
		t.Fatalf("second request: %d retry=%q", w.Code, w.Header().Get("Retry-After"))
	}
	if b := decodeEnvelope(t, w); b["code"] != "too_many_requests" || b["request_id"] == "" {
		t.Fatalf("envelope: %v", b)
	}
	if got := testutil.ToFloat64(rateLimited.WithLabelValues("test")); got != base+1 {
		t.Fatalf("rejection counter = %v; want %v", got, base+1)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Replay", "1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("replay must bypass limiting, got %d", w.Code)
	}

	// ten seconds later the bucket holds a token again
	fixed = fixed.Add(10 * time.Second)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("after refill: %d", w.Code)
	}
}

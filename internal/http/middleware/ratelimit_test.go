package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByAccountOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var keys []string
	capture := func(c *gin.Context) { keys = append(keys, KeyByAccountOrIP()(c)) }
	r.GET("/user/:userId", capture)
	r.GET("/cases", capture)

	for _, path := range []string{"/user/1001", "/cases"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if len(keys) != 2 || keys[0] != "user:1001" {
		t.Fatalf("expected account key first, got %v", keys)
	}
	if !strings.HasPrefix(keys[1], "ip:") || !strings.Contains(keys[1], "203.0.113.9") {
		t.Fatalf("expected ip-based key, got %q", keys[1])
	}
}

func TestRateLimiter_BucketsAreReusedAndBounded(t *testing.T) {
	rl := newRateLimiter(2.0, 0, nil, 2)
	if rl.burst != 1 || rl.keyFn == nil {
		t.Fatalf("defaults not applied: burst=%d keyFn nil=%v", rl.burst, rl.keyFn == nil)
	}

	a := rl.bucket("a")
	if rl.bucket("a") != a {
		t.Fatalf("expected the same bucket for a repeated key")
	}
	rl.bucket("b")
	rl.bucket("a")
	rl.bucket("c") // evicts the least recently used key, "b"

	if rl.buckets.Len() != 2 {
		t.Fatalf("expected 2 tracked buckets, got %d", rl.buckets.Len())
	}
	if !rl.buckets.Contains("a") || rl.buckets.Contains("b") {
		t.Fatalf("expected b evicted and a kept, keys=%v", rl.buckets.Keys())
	}
}

func TestRateLimiter_EvictedCallerStartsFresh(t *testing.T) {
	rl := newRateLimiter(0.001, 1, nil, 1)

	if !rl.bucket("a").Allow() {
		t.Fatal("first token for a should be available")
	}
	if rl.bucket("a").Allow() {
		t.Fatal("a should be exhausted")
	}
	rl.bucket("b")
	if !rl.bucket("a").Allow() {
		t.Fatal("a should get a fresh bucket after eviction")
	}
}

func TestIsRateBypass(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("expected IsRateBypass=false when non-bool stored")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// rps=0.5, burst=1: first request allowed, second denied for ~2s.
	rl := NewRateLimiter(0.5, 1, KeyByAccountOrIP())

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header("X-Request-ID", "rid-1"); c.Next() })
	r.Use(rl.Handler())
	r.GET("/user/:userId", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	do := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	if w := do("/user/1"); w.Code != http.StatusOK {
		t.Fatalf("first request should be allowed, got %d", w.Code)
	}
	w2 := do("/user/1")
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request should be rate-limited, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After=2, got %q", got)
	}
	var body map[string]any
	if err := json.Unmarshal(w2.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "too_many_requests" || body["error"] != "rate limit exceeded" || body["request_id"] != "rid-1" {
		t.Fatalf("unexpected JSON body: %v", body)
	}

	if w := do("/user/2"); w.Code != http.StatusOK {
		t.Fatalf("other account should be allowed, got %d", w.Code)
	}

	// Idempotent replays skip the limiter.
	bypass := gin.New()
	bypass.Use(func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() })
	bypass.Use(rl.Handler())
	bypass.GET("/user/:userId", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w3 := httptest.NewRecorder()
	bypass.ServeHTTP(w3, httptest.NewRequest(http.MethodGet, "/user/1", nil))
	if w3.Code != http.StatusOK {
		t.Fatalf("bypass request should be allowed, got %d", w3.Code)
	}
}

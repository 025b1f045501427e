package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsRoutesAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/user/:userId", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/statusonly", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/user/:userId", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, p := range []string{"/user/1", "/user/2", "/does-not-exist", "/statusonly"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
	}

	// Distinct user ids share one series.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/user/:userId", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != base404+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("inflight = %v; want 0", inFlight)
	}
}

func TestMetrics_CountsIdempotentReplays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemIdemStore()
	r := gin.New()
	r.Use(Metrics())
	r.Use(Idempotency(IdempotencyOptions{Now: func() time.Time { return time.Unix(1_700_000_000, 0) }}, store))
	r.POST("/user", func(c *gin.Context) { c.JSON(http.StatusCreated, gin.H{"ok": true}) })

	base := testutil.ToFloat64(httpReplays.WithLabelValues("/user"))
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/user", strings.NewReader(`{}`))
		req.Header.Set(HeaderIdempotencyKey, "metrics-key")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	if got := testutil.ToFloat64(httpReplays.WithLabelValues("/user")); got != base+2 {
		t.Fatalf("replays = %v; want %v", got, base+2)
	}
}

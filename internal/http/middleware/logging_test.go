package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf) // plain JSON lines
	return &buf
}

type errSentinel struct{}

func (e errSentinel) Error() string { return "boom" }

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/user/:userId", func(c *gin.Context) {
		c.String(http.StatusOK, RequestIDFrom(c))
	})

	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"missing is generated", "", false},
		{"well-formed is kept", "abc-123", true},
		{"proxy style is kept", "Root=1-5f84c7a1-abcdef:edge.7", true},
		{"oversized is replaced", strings.Repeat("x", maxRequestIDLength+1), false},
		{"spaces are replaced", "abc 123", false},
		{"quotes are replaced", `abc"123`, false},
		{"non-ascii is replaced", "запрос-1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/user/7", nil)
			if tc.incoming != "" {
				req.Header.Set(requestIDHeader, tc.incoming)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != w.Body.String() {
				t.Fatalf("header %q and context %q must match and be non-empty", got, w.Body.String())
			}
			if (got == tc.incoming) != tc.keep {
				t.Fatalf("incoming %q -> %q (keep=%v)", tc.incoming, got, tc.keep)
			}
		})
	}
}

func TestRequestIDFrom_FallsBackToHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Header(requestIDHeader, "from-header"); c.Next() })
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if w.Body.String() != "from-header" {
		t.Fatalf("RequestIDFrom = %q", w.Body.String())
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("panic before write returns JSON 500", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
		r.POST("/user/:userId/quests/:kind/claim", func(c *gin.Context) { panic("kaboom") })

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/user/1/quests/subscribe/claim", nil)
		req.Header.Set(requestIDHeader, "rid-panic")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d", w.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid json body: %v", err)
		}
		if body["code"] != "internal_error" || body["error"] != "Server error" || body["request_id"] != "rid-panic" {
			t.Fatalf("unexpected body: %v", body)
		}
		out := buf.String()
		if !strings.Contains(out, `"message":"panic recovered"`) || !strings.Contains(out, `"stack"`) {
			t.Fatalf("expected panic log with stack, got:\n%s", out)
		}
	})

	t.Run("panic after write keeps the partial body", func(t *testing.T) {
		buf := captureLogger(t)
		r := gin.New()
		r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
		r.GET("/cases", func(c *gin.Context) {
			c.String(http.StatusOK, "partial-body")
			panic("late kaboom")
		})

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cases", nil))

		if strings.Contains(w.Body.String(), "Server error") {
			t.Fatalf("unexpected JSON error body after write: %q", w.Body.String())
		}
		if !strings.Contains(buf.String(), "panic recovered") {
			t.Fatalf("expected panic log, got:\n%s", buf.String())
		}
	})
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Fallback: global logger without request fields.
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("fallback")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	if !strings.Contains(buf.String(), `"message":"fallback"`) || strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger output: %s", buf.String())
	}

	// Scoped: RedactingLogger attaches request fields.
	buf = captureLogger(t)
	r = gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r.GET("/user/:userId", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("scoped")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/user/99", nil))
	out := buf.String()
	if !strings.Contains(out, `"message":"scoped"`) || !strings.Contains(out, `"request_id"`) || !strings.Contains(out, `"user_id":"99"`) {
		t.Fatalf("scoped logger output: %s", out)
	}
}

func Test_truncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("truncate(%q,%d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

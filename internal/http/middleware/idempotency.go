// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency for unsafe HTTP methods. A request that
// carries an Idempotency-Key header is executed once; its successful response
// is stored and replayed verbatim for retries with the same key, account and
// route until the record expires.
package middleware

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header that carries the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotentReplay is set to "true" on replayed responses.
const HeaderIdempotentReplay = "Idempotent-Replay"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay" // bool: true when a stored response was replayed
	ctxKeyRateBypass = "rate.bypass" // bool: true to skip rate limiting
)

// GetIdempotencyKey returns the validated idempotency key stored in the Gin
// context by Idempotency. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the response was served from the idempotency store.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// StoredResponse is a response kept for replay.
type StoredResponse struct {
	Status int
	Body   []byte
}

// IdempotencyStore persists responses by (account, scope, key).
//
// Lookup returns (nil, nil) when nothing unexpired is stored. Save may be
// called concurrently for the same key; implementations keep the first.
type IdempotencyStore interface {
	Lookup(ctx context.Context, account, scope, key string, now time.Time) (*StoredResponse, error)
	Save(ctx context.Context, account, scope, key string, resp StoredResponse) error
}

// IdempotencyOptions configures Idempotency.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Defaults to ^[A-Za-z0-9._~\-:]+$
	Pattern *regexp.Regexp
	// MaxBody caps the stored response size. Larger responses are not stored.
	// Values <= 0 default to 1 MiB.
	MaxBody int
	// Now is the clock used for lookups; defaults to time.Now.
	Now func() time.Time
}

// Idempotency validates the Idempotency-Key header on POST, PUT and PATCH,
// replays a stored response when one exists, and otherwise stores the 2xx
// response produced by the handler chain.
//
// Behavior:
//   - Safe methods and requests without the header pass through untouched.
//   - An invalid key is rejected with 400.
//   - Store failures are logged and never fail the request.
func Idempotency(opts IdempotencyOptions, store IdempotencyStore) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}
	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": RequestIDFrom(c),
				"code":       "bad_idempotency_key",
				"error":      "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if store == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		account := identity(c)
		scope := c.Request.Method + " " + routeOf(c)

		prev, err := store.Lookup(ctx, account, scope, key, now().UTC())
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency lookup failed")
		}
		if prev != nil {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(prev.Status, "application/json; charset=utf-8", prev.Body)
			c.Abort()
			return
		}

		cw := &captureWriter{ResponseWriter: c.Writer, limit: maxBody}
		c.Writer = cw
		c.Next()

		status := cw.Status()
		if status < 200 || status >= 300 || cw.overflow {
			return
		}
		resp := StoredResponse{Status: status, Body: bytes.Clone(cw.buf.Bytes())}
		if err := store.Save(ctx, account, scope, key, resp); err != nil {
			LoggerFrom(c).Warn().Err(err).Str("scope", scope).Msg("idempotency save failed")
		}
	}
}

// identity names the caller for idempotency and rate limiting: the :userId
// path parameter when present, else the client IP.
func identity(c *gin.Context) string {
	if id := strings.TrimSpace(c.Param("userId")); id != "" {
		return "user:" + id
	}
	return "ip:" + c.ClientIP()
}

func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// captureWriter tees the response body into buf up to limit bytes.
type captureWriter struct {
	gin.ResponseWriter
	buf      bytes.Buffer
	limit    int
	overflow bool
}

func (w *captureWriter) capture(p []byte) {
	if w.overflow {
		return
	}
	if w.buf.Len()+len(p) > w.limit {
		w.overflow = true
		w.buf.Reset()
		return
	}
	w.buf.Write(p)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.capture(p)
	return w.ResponseWriter.Write(p)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.capture([]byte(s))
	return w.ResponseWriter.WriteString(s)
}

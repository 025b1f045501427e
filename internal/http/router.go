// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, idempotency, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/rewards-backend/docs"
	"github.com/tbourn/rewards-backend/internal/catalog"
	"github.com/tbourn/rewards-backend/internal/config"
	"github.com/tbourn/rewards-backend/internal/http/handlers"
	"github.com/tbourn/rewards-backend/internal/http/middleware"
	"github.com/tbourn/rewards-backend/internal/repo"
	"github.com/tbourn/rewards-backend/internal/services"
)

// Telegram is the Bot API surface used by the quest and notification
// services.
type Telegram interface {
	services.MembershipChecker
	services.Sender
}

// Integrations are the optional external collaborators. Nil fields disable
// the features that depend on them.
type Integrations struct {
	Telegram Telegram
	Hints    services.CooldownHints
	Catalog  *catalog.Catalog
}

// idempotencyStore adapts the repository idempotency helpers to
// middleware.IdempotencyStore.
type idempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup proxies repo.GetIdempotency; a missing record is not an error.
func (s idempotencyStore) Lookup(ctx context.Context, account, scope, key string, now time.Time) (*middleware.StoredResponse, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, account, scope, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &middleware.StoredResponse{Status: rec.Status, Body: rec.Body}, nil
}

// Save proxies repo.CreateIdempotency; a concurrent duplicate keeps the first.
func (s idempotencyStore) Save(ctx context.Context, account, scope, key string, resp middleware.StoredResponse) error {
	_, err := repo.CreateIdempotency(ctx, s.db, account, scope, key, resp.Status, resp.Body, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and builds the application services from db, ext and cfg.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with scrubbing, request-scoped logger
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. gzip
//  7. Metrics
//  8. Idempotency (replays short-circuit before the rate limiter)
//  9. Rate limiter (per account/IP)
//  10. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, ext Integrations, cfg config.Config) error {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{handlers.HeaderAdminToken},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit
	r.Use(limitBody(cfg.BodyLimitBytes))

	// 6) Compression (Prometheus negotiates its own)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency with stored response replay
	r.Use(middleware.Idempotency(
		middleware.IdempotencyOptions{MaxLen: 200},
		idempotencyStore{db: db, ttl: cfg.IdempotencyTTL},
	))

	// 9) Token-bucket rate limiter per account/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAccountOrIP())
	r.Use(rl.Handler())

	// 10) CORS posture (allow all if none configured)
	allowHeaders := []string{
		"Origin", "Content-Type", "Accept", "Authorization",
		middleware.HeaderIdempotencyKey, handlers.HeaderAdminToken,
	}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "Retry-After", middleware.HeaderIdempotentReplay}
	methods := []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     methods,
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS). Account
	// data is not cacheable; the catalog sets its own Cache-Control.
	base := strings.TrimSuffix(cfg.APIBasePath, "/")
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
		PublicRoutes: []string{base + "/cases", base + "/cases/:id", base + "/raffles"},
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness plus store reachability
	r.GET("/health", func(c *gin.Context) {
		if err := repo.Ping(db); err != nil {
			_ = c.Error(err)
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/integrations
	h, err := buildHandlers(db, ext, cfg)
	if err != nil {
		return err
	}

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		// Accounts
		api.POST("/user", h.CreateUser)
		api.GET("/user/:userId", h.GetUser)
		api.PATCH("/user/:userId", h.UpdateUser)
		api.GET("/user/:userId/profile", h.GetProfile)
		api.PUT("/user/:userId/balance", h.SetBalance)
		api.POST("/user/:userId/inventory", h.AddItem)
		api.GET("/user/:userId/ledger", h.ListLedger)
		api.POST("/user/:userId/notify", h.Notify)

		// Quests
		api.PUT("/user/:userId/quests", h.SaveQuests)
		api.POST("/user/:userId/quests/:kind/claim", h.ClaimQuest)

		// Catalog
		api.GET("/cases", h.ListCases)
		api.GET("/cases/:id", h.GetCase)
		api.GET("/raffles", h.ListRaffles)
	}

	// Admin
	if h.AdminEnabled() {
		r.POST("/admin/reset", h.ResetAll)
	}
	return nil
}

// buildHandlers constructs the services and binds them to handlers.
func buildHandlers(db *gorm.DB, ext Integrations, cfg config.Config) (*handlers.Handlers, error) {
	referrals, err := services.NewReferralService(db, cfg.Rewards.ReferralBonus, cfg.Rewards.ReferralCodeCache)
	if err != nil {
		return nil, err
	}

	quests := &services.QuestService{
		DB:       db,
		Hints:    ext.Hints,
		Cooldown: cfg.Rewards.QuestCooldown,
		Rewards: services.QuestRewards{
			Subscribe: cfg.Rewards.Subscribe,
			BotName:   cfg.Rewards.BotName,
			RefLink:   cfg.Rewards.RefLink,
		},
		BotUsername: cfg.Telegram.BotUsername,
	}
	notifier := &services.NotificationService{DB: db}
	if ext.Telegram != nil {
		quests.Checker = ext.Telegram
		notifier.Sender = ext.Telegram
	}

	return handlers.New(handlers.Deps{
		Accounts:   &services.AccountService{DB: db},
		Referrals:  referrals,
		Quests:     quests,
		Notifier:   notifier,
		Admin:      &services.AdminService{DB: db, Referrals: referrals, Hints: ext.Hints},
		Catalog:    ext.Catalog,
		AdminToken: cfg.AdminToken,
	}), nil
}

// limitBody caps the request body size using http.MaxBytesReader. Values
// <= 0 disable the cap.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

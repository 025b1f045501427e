// Package config provides application configuration loaded from environment
// variables (and an optional .env file) with defaults and validation. It
// centralizes server timeouts, logging, storage, rate limiting, Telegram and
// Redis integration, reward rules and observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects and configures the relational store.
type DBConfig struct {
	Driver         string // sqlite|postgres
	Path           string // SQLite file path
	URL            string // Postgres DSN
	MigrateOnStart bool
}

// TelegramConfig configures the Bot API client. An empty Token disables it.
type TelegramConfig struct {
	Token       string
	BotUsername string // without "@", searched for in user bios
	Channel     string // "@channel" checked for subscription quests
}

// RedisConfig configures the optional cooldown marker cache.
// An empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RewardsConfig holds fixed rewards and the claim cooldown.
type RewardsConfig struct {
	QuestCooldown     time.Duration
	ReferralBonus     int64
	Subscribe         int64
	BotName           int64
	RefLink           int64
	ReferralCodeCache int
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	BodyLimitBytes    int64         // request body cap; inline avatars can be large
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DB DBConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL        time.Duration // how long a given Idempotency-Key is valid
	IdempotencyPurgeEvery time.Duration // cron interval for deleting expired keys

	// Integrations
	Telegram    TelegramConfig
	Redis       RedisConfig
	CatalogPath string // optional TOML override of the embedded catalog
	AdminToken  string // enables POST /admin/reset when set

	Rewards RewardsConfig

	// Observability
	OTEL OTELConfig
}

// Load reads an optional .env file, then configuration from environment
// variables, applies defaults, normalizes values, and validates the result.
// Variables already present in the environment win over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load(str("ENV_FILE", ".env"))

	cfg := fromEnv()
	cfg.normalize()
	return cfg, cfg.Validate()
}

func fromEnv() Config {
	return Config{
		Port:              str("PORT", "8080"),
		ReadTimeout:       env("READ_TIMEOUT", 15*time.Second, time.ParseDuration),
		ReadHeaderTimeout: env("READ_HEADER_TIMEOUT", 10*time.Second, time.ParseDuration),
		WriteTimeout:      env("WRITE_TIMEOUT", 20*time.Second, time.ParseDuration),
		IdleTimeout:       env("IDLE_TIMEOUT", 60*time.Second, time.ParseDuration),
		MaxHeaderBytes:    env("MAX_HEADER_BYTES", 1<<20, strconv.Atoi),
		BodyLimitBytes:    env("BODY_LIMIT_BYTES", int64(2<<20), parseInt64),
		GinMode:           str("GIN_MODE", "release"),

		LogLevel:       str("LOG_LEVEL", "info"),
		LogPretty:      env("LOG_PRETTY", false, parseBool),
		SwaggerEnabled: env("SWAGGER_ENABLED", false, parseBool),
		APIBasePath:    str("API_BASE_PATH", "/api"),

		DB: DBConfig{
			Driver:         str("DB_DRIVER", "sqlite"),
			Path:           str("DB_PATH", "rewards.db"),
			URL:            str("DATABASE_URL", ""),
			MigrateOnStart: env("MIGRATE_ON_START", false, parseBool),
		},

		RateRPS:   env("RATE_RPS", 10.0, parseFloat),
		RateBurst: env("RATE_BURST", 20, strconv.Atoi),

		CORS: CORSConfig{AllowedOrigins: splitCSV(str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: env("ENABLE_HSTS", false, parseBool),
			HSTSMaxAge: env("HSTS_MAX_AGE", 180*24*time.Hour, time.ParseDuration),
		},

		IdempotencyTTL:        env("IDEMPOTENCY_TTL", 24*time.Hour, time.ParseDuration),
		IdempotencyPurgeEvery: env("IDEMPOTENCY_PURGE_EVERY", time.Hour, time.ParseDuration),

		Telegram: TelegramConfig{
			Token:       str("BOT_TOKEN", ""),
			BotUsername: str("BOT_USERNAME", ""),
			Channel:     str("TELEGRAM_CHANNEL", ""),
		},
		Redis: RedisConfig{
			Addr:     str("REDIS_ADDR", ""),
			Password: str("REDIS_PASSWORD", ""),
			DB:       env("REDIS_DB", 0, strconv.Atoi),
		},
		CatalogPath: str("CATALOG_PATH", ""),
		AdminToken:  str("ADMIN_TOKEN", ""),

		Rewards: RewardsConfig{
			QuestCooldown:     env("QUEST_COOLDOWN", 60*time.Second, time.ParseDuration),
			ReferralBonus:     env("REFERRAL_BONUS", int64(10), parseInt64),
			Subscribe:         env("REWARD_SUBSCRIBE", int64(100), parseInt64),
			BotName:           env("REWARD_BOT_NAME", int64(50), parseInt64),
			RefLink:           env("REWARD_REF_LINK", int64(20), parseInt64),
			ReferralCodeCache: env("REFERRAL_CODE_CACHE", 4096, strconv.Atoi),
		},

		OTEL: OTELConfig{
			Enabled:     env("OTEL_ENABLED", false, parseBool),
			Endpoint:    str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    env("OTEL_EXPORTER_OTLP_INSECURE", true, parseBool),
			ServiceName: str("OTEL_SERVICE_NAME", "rewards-backend"),
			SampleRatio: env("OTEL_TRACES_SAMPLER_ARG", 1.0, parseFloat),
		},
	}
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "warning" {
		c.LogLevel = "warn"
	}
	switch c.GinMode = strings.ToLower(c.GinMode); c.GinMode {
	case "debug", "release", "test":
	default:
		c.GinMode = "release"
	}
	switch c.DB.Driver = strings.ToLower(c.DB.Driver); c.DB.Driver {
	case "postgresql", "pg":
		c.DB.Driver = "postgres"
	}
	c.APIBasePath = normalizeBasePath(c.APIBasePath)
	c.Telegram.BotUsername = strings.TrimPrefix(strings.TrimSpace(c.Telegram.BotUsername), "@")
	c.Telegram.Channel = normalizeChannel(c.Telegram.Channel)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL %q must be one of: debug, info, warn, error, fatal, panic", c.LogLevel))
	}
	check(strings.TrimSpace(c.Port) != "", "PORT must not be empty")
	check(c.ReadTimeout > 0 && c.ReadHeaderTimeout > 0 && c.WriteTimeout > 0 && c.IdleTimeout > 0,
		"timeouts must be positive durations")
	check(c.MaxHeaderBytes > 0, "MAX_HEADER_BYTES must be > 0")
	check(c.BodyLimitBytes > 0, "BODY_LIMIT_BYTES must be > 0")

	switch c.DB.Driver {
	case "sqlite":
		check(strings.TrimSpace(c.DB.Path) != "", "DB_PATH must not be empty")
	case "postgres":
		check(strings.TrimSpace(c.DB.URL) != "", "DATABASE_URL is required for DB_DRIVER=postgres")
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q must be one of: sqlite, postgres", c.DB.Driver))
	}

	check(c.RateRPS >= 0, "RATE_RPS must be >= 0")
	check(c.RateBurst >= 1, "RATE_BURST must be >= 1")
	check(c.Security.HSTSMaxAge >= 0, "HSTS_MAX_AGE must be >= 0")
	check(c.IdempotencyTTL > 0, "IDEMPOTENCY_TTL must be > 0")
	check(c.IdempotencyPurgeEvery >= time.Second, "IDEMPOTENCY_PURGE_EVERY must be >= 1s")

	r := c.Rewards
	check(r.QuestCooldown > 0, "QUEST_COOLDOWN must be > 0")
	check(r.ReferralBonus >= 0 && r.Subscribe >= 0 && r.BotName >= 0 && r.RefLink >= 0, "rewards must be >= 0")
	check(r.ReferralCodeCache >= 1, "REFERRAL_CODE_CACHE must be >= 1")

	check(c.OTEL.SampleRatio >= 0 && c.OTEL.SampleRatio <= 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]")

	return errors.Join(errs...)
}

// env parses the variable k with parse, falling back to def when it is unset,
// empty or malformed.
func env[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	out, err := parse(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return out
}

func str(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func parseInt64(s string) (int64, error)   { return strconv.ParseInt(s, 10, 64) }
func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

var errNotBool = errors.New("not a boolean")

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, errNotBool
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures a leading '/' and strips trailing ones (except root).
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}

// normalizeChannel prefixes public channel usernames with '@'. Numeric chat
// ids (e.g. -100123) are kept as-is.
func normalizeChannel(ch string) string {
	ch = strings.TrimSpace(ch)
	if ch == "" || strings.HasPrefix(ch, "@") || strings.HasPrefix(ch, "-") {
		return ch
	}
	if _, err := strconv.ParseInt(ch, 10, 64); err == nil {
		return ch
	}
	return "@" + ch
}

package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	RedisURL    string

	DBMaxConns int
	DBMinConns int

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	CORSAllowedOrigins []string
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     http.SameSite
	AccessCookieName   string
	RefreshCookieName  string
	CSRFCookieName     string

	RateLimitWindow time.Duration
	RateLimitMax    int
	CredentialRate  string
	IdempotencyTTL  time.Duration
	CheckoutLockTTL time.Duration
	BodyLimitBytes  int64

	DefaultCurrency     string
	DefaultRegion       string
	GuestCartTTL        time.Duration
	CatalogCacheTTL     time.Duration
	DiscountCodeRefresh time.Duration

	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	PaymentProvider   string
	PaymentGatewayURL string
	PaymentGatewayKey string
	OutboundTimeout   time.Duration

	QueueConcurrency  int
	GuestPurgeCron    string
	WorkerMetricsAddr string
	LogFormat         string
	LogLevel          string
	OTELExporter      string
	OTELEndpoint      string
	OTELSampleRatio   float64
	MetricsBuckets    string
	PprofUser         string
	PprofPassword     string
	ShutdownTimeout   time.Duration
	RunMigrationsBoot bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		DBMaxConns: parseInt(k.String("DB_MAX_CONNS"), 10),
		DBMinConns: parseInt(k.String("DB_MIN_CONNS"), 0),

		JWTSecret:       k.String("JWT_SECRET"),
		JWTIssuer:       valueOrDefault(k.String("JWT_ISSUER"), "bookwise-api"),
		JWTAudience:     valueOrDefault(k.String("JWT_AUDIENCE"), "bookwise-web"),
		AccessTokenTTL:  parseDuration(k.String("ACCESS_TOKEN_TTL"), "15m"),
		RefreshTokenTTL: parseDuration(k.String("REFRESH_TOKEN_TTL"), "720h"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CookieDomain:       strings.TrimSpace(k.String("COOKIE_DOMAIN")),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:     parseSameSite(k.String("COOKIE_SAMESITE")),
		AccessCookieName:   valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "bw_at"),
		RefreshCookieName:  valueOrDefault(k.String("REFRESH_COOKIE_NAME"), "bw_rt"),
		CSRFCookieName:     valueOrDefault(k.String("CSRF_COOKIE_NAME"), "bw_csrf"),

		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1h"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 100),
		CredentialRate:  valueOrDefault(k.String("CREDENTIAL_RATE"), "10-M"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CheckoutLockTTL: parseDuration(k.String("CHECKOUT_LOCK_TTL"), "15s"),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),

		DefaultCurrency:     strings.ToUpper(valueOrDefault(k.String("DEFAULT_CURRENCY"), "ETB")),
		DefaultRegion:       strings.ToUpper(valueOrDefault(k.String("DEFAULT_REGION"), "ET")),
		GuestCartTTL:        parseDuration(k.String("GUEST_CART_TTL"), "720h"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		DiscountCodeRefresh: parseDuration(k.String("DISCOUNT_CODE_REFRESH"), "5m"),

		SendGridAPIKey: strings.TrimSpace(k.String("SENDGRID_API_KEY")),
		EmailFrom:      valueOrDefault(k.String("EMAIL_FROM"), "orders@bookwise.pro"),
		EmailFromName:  valueOrDefault(k.String("EMAIL_FROM_NAME"), "BookWise Pro"),

		PaymentProvider:   strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "simulated")),
		PaymentGatewayURL: strings.TrimSpace(k.String("PAYMENT_GATEWAY_URL")),
		PaymentGatewayKey: strings.TrimSpace(k.String("PAYMENT_GATEWAY_KEY")),
		OutboundTimeout:   parseDuration(k.String("OUTBOUND_TIMEOUT"), "5s"),

		QueueConcurrency:  parseInt(k.String("QUEUE_CONCURRENCY"), 10),
		GuestPurgeCron:    valueOrDefault(k.String("GUEST_PURGE_CRON"), "@hourly"),
		WorkerMetricsAddr: valueOrDefault(k.String("WORKER_METRICS_ADDR"), ":9091"),
		LogFormat:         valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:          valueOrDefault(k.String("LOG_LEVEL"), "info"),
		OTELExporter:      valueOrDefault(k.String("OTEL_EXPORTER"), "none"),
		OTELEndpoint:      strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRatio:   parseFloat(k.String("OTEL_SAMPLE_RATIO"), 1),
		MetricsBuckets:    k.String("METRICS_BUCKETS_MS"),
		PprofUser:         strings.TrimSpace(k.String("PPROF_USER")),
		PprofPassword:     k.String("PPROF_PASSWORD"),
		ShutdownTimeout:   parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		RunMigrationsBoot: parseBool(k.String("MIGRATE_ON_BOOT")),
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.RateLimitMax <= 0 {
		return nil, errors.New("RATE_LIMIT_MAX must be positive")
	}
	if cfg.PaymentProvider == "gateway" && cfg.PaymentGatewayURL == "" {
		return nil, errors.New("PAYMENT_GATEWAY_URL is required for the gateway provider")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests sets env for the duration of Load and restores the previous
// values afterwards.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/obs"
)

// Default window applied to the public API.
const (
	DefaultWindow = time.Hour
	DefaultMax    = 100
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// Handler enforces rate limits before delegating to the next handler. When
// the store fails the request is let through.
type Handler struct {
	Limiter Limiter
	Config  Config
	Scope   string
	Logger  zerolog.Logger
}

// ByClientIP keys requests by the caller's address, honouring X-Forwarded-For.
func ByClientIP(r *http.Request) string {
	return "ip:" + common.ClientIP(r)
}

// Middleware implements the http.Handler middleware interface.
func (h Handler) Middleware(next http.Handler) http.Handler {
	cfg := h.Config
	if cfg.Key == nil {
		cfg.Key = ByClientIP
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	scope := h.Scope
	if scope == "" {
		scope = "api"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := scope + ":" + cfg.Key(r)
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, cfg.Window, cfg.Max)
		if err != nil {
			h.Logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(resetAt.Sub(h.Limiter.now()).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			obs.Inc(obs.RateLimitRejectedTotal, scope)
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too Many Requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/obs"
)

// DefaultCredentialRate bounds login and registration attempts per client.
const DefaultCredentialRate = "10-M"

// Credentials is a fixed-window limiter for credential endpoints.
type Credentials struct {
	Limiter *limiter.Limiter
	Logger  zerolog.Logger
}

// NewCredentials builds a Redis-backed limiter. rate uses the
// "<limit>-<period>" format, e.g. "10-M".
func NewCredentials(rdb *redis.Client, rate string, logger zerolog.Logger) (*Credentials, error) {
	if rate == "" {
		rate = DefaultCredentialRate
	}
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "bookwise:credlimit"})
	if err != nil {
		return nil, err
	}
	return &Credentials{Limiter: limiter.New(store, parsed), Logger: logger}, nil
}

// Middleware counts one attempt per client and path. Store failures let the
// request through.
func (c *Credentials) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c == nil || c.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		lctx, err := c.Limiter.Get(r.Context(), ByClientIP(r)+":"+r.URL.Path)
		if err != nil {
			c.Logger.Warn().Err(err).Str("path", r.URL.Path).Msg("credential limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		headers.Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))
		if lctx.Reached {
			obs.Inc(obs.RateLimitRejectedTotal, "credentials")
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too Many Requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

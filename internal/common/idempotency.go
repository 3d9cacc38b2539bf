package common

import (
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Idem provides an Idempotency-Key middleware backed by Redis. Keys are scoped
// to the authenticated user and route so clients cannot collide.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

type idemRecorder struct {
	http.ResponseWriter
	status int
}

func (r *idemRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (i Idem) key(r *http.Request, header string) string {
	user, _ := UserID(r.Context())
	return "idem:" + Sha256Hex(user+"|"+r.Method+"|"+r.URL.Path+"|"+header)
}

// Middleware enforces idempotency semantics for write endpoints. A key whose
// request failed with a server error is released so the client may retry.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ctx := r.Context()
		key := i.key(r, header)
		ok, err := i.R.SetNX(ctx, key, "locked", ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, "INTERNAL", "idempotency store error", nil)
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, "IDEMPOTENT_REPLAY", "duplicate request", nil)
			return
		}
		rec := &idemRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			_ = i.R.Del(ctx, key).Err()
		}
	})
}

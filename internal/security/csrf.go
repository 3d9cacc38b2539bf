package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/bookwise-api/internal/common"
)

// CSRF protects cookie-authenticated writes with the double-submit technique:
// the script-readable Cookie must be echoed in Header.
type CSRF struct {
	Header string
	Cookie string
	// SessionCookies lists the cookies that carry ambient credentials. Requests
	// carrying none of them have nothing to forge and pass through.
	SessionCookies []string
}

// Middleware enforces the token on non-idempotent requests.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}
	cookieName := strings.TrimSpace(c.Cookie)
	if cookieName == "" {
		cookieName = "bw_csrf"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") || !c.hasSession(r) {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF", "missing csrf token", nil)
			return
		}
		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF", "missing csrf cookie", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c CSRF) hasSession(r *http.Request) bool {
	if len(c.SessionCookies) == 0 {
		return true
	}
	for _, name := range c.SessionCookies {
		if cookie, err := r.Cookie(name); err == nil && cookie.Value != "" {
			return true
		}
	}
	return false
}

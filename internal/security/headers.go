package security

import (
	"net/http"
	"strconv"
	"strings"
)

const defaultHSTSMaxAge = 31536000

// Headers sets browser hardening headers on every response.
type Headers struct {
	Enable                bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	ContentSecurityPolicy string
	// TrustForwardedProto treats X-Forwarded-Proto: https as TLS for HSTS.
	TrustForwardedProto bool
	// NoStorePrefixes lists path prefixes whose responses are per user and
	// must not be cached, such as carts and orders.
	NoStorePrefixes []string
}

// Middleware attaches the configured headers before calling next.
func (h Headers) Middleware(next http.Handler) http.Handler {
	if !h.Enable {
		return next
	}
	hsts := h.hstsValue()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "no-referrer")
		headers.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")
		if h.ContentSecurityPolicy != "" {
			headers.Set("Content-Security-Policy", h.ContentSecurityPolicy)
		}
		if h.EnableHSTS && h.secure(r) {
			headers.Set("Strict-Transport-Security", hsts)
		}
		if h.private(r.URL.Path) {
			headers.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

func (h Headers) hstsValue() string {
	maxAge := h.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	value := "max-age=" + strconv.Itoa(maxAge)
	if h.HSTSIncludeSubdomains {
		value += "; includeSubDomains"
	}
	return value
}

func (h Headers) secure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return h.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func (h Headers) private(path string) bool {
	for _, prefix := range h.NoStorePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

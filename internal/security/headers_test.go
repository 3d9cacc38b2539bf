package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	middleware := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 31536000, HSTSIncludeSubdomains: true}
	handler := middleware.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "https://example.com", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	headers := rr.Result().Header
	if got := headers.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff header, got %q", got)
	}
	if got := headers.Get("Strict-Transport-Security"); got == "" {
		t.Fatal("expected hsts header to be set")
	}
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	middleware := Headers{Enable: false, EnableHSTS: true}
	handler := middleware.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rr.Header().Get("X-Content-Type-Options") != "" {
		t.Fatal("expected no security headers when disabled")
	}
}

func TestHeadersMiddlewareSetsCSPWhenConfigured(t *testing.T) {
	middleware := Headers{Enable: true, ContentSecurityPolicy: "default-src 'none'"}
	handler := middleware.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/books", nil))
	if got := rr.Header().Get("Content-Security-Policy"); got != "default-src 'none'" {
		t.Fatalf("unexpected csp header: %q", got)
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected no hsts header over plain http")
	}
}

func TestHeadersMiddlewareNoStoreAndForwardedProto(t *testing.T) {
	middleware := Headers{
		Enable:              true,
		EnableHSTS:          true,
		TrustForwardedProto: true,
		NoStorePrefixes:     []string{"/api/v1/cart", "/api/v1/orders"},
	}
	handler := middleware.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/cart", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store on cart, got %q", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); got != "max-age=31536000" {
		t.Fatalf("unexpected hsts header: %q", got)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/books", nil))
	if rr.Header().Get("Cache-Control") != "" {
		t.Fatal("catalog responses should stay cacheable")
	}
	if rr.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("expected no hsts header without forwarded https")
	}
}

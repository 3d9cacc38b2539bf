package main

import (
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/auth"
	"github.com/noah-isme/bookwise-api/internal/cart"
	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/config"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/pricing"
	"github.com/noah-isme/bookwise-api/internal/ratelimit"
	"github.com/noah-isme/bookwise-api/internal/security"
)

func newRouter(cfg *config.Config, logger zerolog.Logger, app *application) http.Handler {
	httpMetrics := obs.NewHTTPMetrics(obs.DefaultNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(obs.TracingMiddleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                true,
		EnableHSTS:            cfg.IsProduction(),
		HSTSMaxAge:            31536000,
		HSTSIncludeSubdomains: true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		TrustForwardedProto:   true,
		NoStorePrefixes:       []string{"/api/v1/auth", "/api/v1/cart", "/api/v1/orders", "/api/v1/wishlist", "/api/v1/admin"},
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	if cfg.PprofUser != "" {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPassword))
	}
	r.Get("/health/live", app.health.Live)
	r.Get("/health/ready", app.health.Ready)

	idem := common.Idem{R: app.redis, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: app.redis, Prefix: "bookwise:rl"},
		Config: ratelimit.Config{
			Key:    ratelimit.ByClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		Scope:  "api",
		Logger: logger,
	}
	csrf := security.CSRF{
		Header:         "X-CSRF-Token",
		Cookie:         cfg.CSRFCookieName,
		SessionCookies: []string{cfg.AccessCookieName, cfg.RefreshCookieName},
	}
	requireAuth := app.authMW.RequireAuth

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(csrf.Middleware)
		v.Use(cart.GuestMiddleware)
		v.Use(app.authMW.Authenticate)

		v.Get("/pricing/currencies", pricing.CurrenciesHandler)

		v.Get("/categories", app.catalog.Categories)
		v.Get("/books", app.catalog.Books)
		v.Route("/books/{id}", func(b chi.Router) {
			b.Get("/", app.catalog.Book)
			b.Get("/reviews", app.reviews.List)
			b.With(requireAuth).Post("/reviews", app.reviews.Create)
		})

		v.Route("/auth", func(a chi.Router) {
			a.With(app.credentials.Middleware).Post("/register", app.auth.Register)
			a.With(app.credentials.Middleware).Post("/login", app.auth.Login)
			a.Post("/refresh", app.auth.Refresh)
			a.Post("/logout", app.auth.Logout)
			a.With(requireAuth).Get("/me", app.auth.Me)
		})

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", app.cart.Get)
			c.Delete("/", app.cart.Clear)
			c.Post("/items", app.cart.AddItem)
			c.Put("/items/{bookId}", app.cart.SetQuantity)
			c.Delete("/items/{bookId}", app.cart.RemoveItem)
			c.Post("/items/{bookId}/toggle", app.cart.ToggleSelected)
			c.Post("/select-all", app.cart.SelectAll)
			c.Delete("/selected", app.cart.RemoveSelected)
			c.With(requireAuth).Post("/merge", app.cart.Merge)
		})

		v.Post("/discounts/validate", app.discounts.Validate)

		v.Route("/wishlist", func(wl chi.Router) {
			wl.Use(requireAuth)
			wl.Get("/", app.wishlist.List)
			wl.Post("/", app.wishlist.Add)
			wl.Delete("/{bookId}", app.wishlist.Remove)
		})

		v.Route("/orders", func(o chi.Router) {
			o.Use(requireAuth)
			o.With(idem.Middleware).Post("/", app.orders.Create)
			o.Get("/", app.orders.List)
			o.Get("/{orderId}", app.orders.Get)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAuth)
			admin.Use(auth.RequireRole("admin"))
			admin.Get("/discounts", app.discounts.List)
			admin.Post("/discounts", app.discounts.Create)
		})
	})

	return r
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"http://localhost:5173"}
	}
	return cfg.CORSAllowedOrigins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	return http.StripPrefix("/debug/pprof", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	}))
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/auth"
	"github.com/noah-isme/bookwise-api/internal/cart"
	"github.com/noah-isme/bookwise-api/internal/catalog"
	"github.com/noah-isme/bookwise-api/internal/config"
	"github.com/noah-isme/bookwise-api/internal/db"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/discount"
	"github.com/noah-isme/bookwise-api/internal/events"
	"github.com/noah-isme/bookwise-api/internal/health"
	"github.com/noah-isme/bookwise-api/internal/lock"
	"github.com/noah-isme/bookwise-api/internal/notify"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/order"
	"github.com/noah-isme/bookwise-api/internal/payment"
	"github.com/noah-isme/bookwise-api/internal/queue"
	"github.com/noah-isme/bookwise-api/internal/ratelimit"
	"github.com/noah-isme/bookwise-api/internal/resilience"
	"github.com/noah-isme/bookwise-api/internal/reviews"
	"github.com/noah-isme/bookwise-api/internal/wishlist"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	if *migrateOnly || cfg.RunMigrationsBoot {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
		if *migrateOnly {
			return
		}
	}

	obs.MustRegisterDomainMetrics(obs.DefaultNamespace, nil)
	for _, register := range []func(prometheus.Registerer) error{resilience.RegisterMetrics, queue.RegisterMetrics} {
		if err := register(prometheus.DefaultRegisterer); err != nil {
			logger.Fatal().Err(err).Msg("register metrics")
		}
	}

	shutdownTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
		ServiceName:   "bookwise-api",
		Endpoint:      cfg.OTELEndpoint,
		Exporter:      cfg.OTELExporter,
		SamplingRatio: cfg.OTELSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, "bookwise-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse asynq redis url")
	}
	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	app, err := buildApp(ctx, cfg, logger, pool, redisClient, taskClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise services")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(cfg, logger, app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go app.discounts.Svc.RefreshKnownCodes(sigCtx, cfg.DiscountCodeRefresh)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-sigCtx.Done():
		logger.Info().Msg("shutdown requested")
	}

	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown tracer")
	}
}

type application struct {
	auth        *auth.Handler
	authMW      auth.Middleware
	catalog     *catalog.Handler
	reviews     *reviews.Handler
	wishlist    *wishlist.Handler
	cart        *cart.Handler
	discounts   *discount.Handler
	orders      *order.Handler
	health      health.Handler
	redis       *redis.Client
	credentials *ratelimit.Credentials
}

func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, rdb *redis.Client, tasks *asynq.Client) (*application, error) {
	queries := dbgen.New(pool)

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      queries,
		Cache:        catalog.NewCache(rdb, cfg.CatalogCacheTTL),
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	if err != nil {
		return nil, err
	}

	authService, err := auth.NewService(auth.Config{
		Queries:         queries,
		Secret:          cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Issuer:          cfg.JWTIssuer,
		Audience:        cfg.JWTAudience,
		ClockSkew:       30 * time.Second,
	})
	if err != nil {
		return nil, err
	}

	bus := events.NewBus()
	bus.Subscribe(events.TopicOrderCreated, notify.OrderCreatedNotifier{
		Publisher: queue.Publisher{Client: tasks},
	})
	bus.Subscribe(events.TopicBookReviewed, events.NotifierFunc(func(ctx context.Context, ev events.Event) error {
		var p struct {
			BookID int64 `json:"bookId"`
		}
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return err
		}
		return catalogService.InvalidateBook(ctx, p.BookID)
	}))

	cartService := &cart.Service{
		Q:      queries,
		Tx:     db.Transactor(pool, func(q *dbgen.Queries) cart.Querier { return q }),
		TTL:    cfg.GuestCartTTL,
		Logger: logger,
	}
	discountService := &discount.Service{
		Q:      queries,
		Gen:    discount.RedisGeneration{R: rdb},
		Logger: logger,
	}
	if err := discountService.LoadKnownCodes(ctx); err != nil {
		return nil, err
	}

	reviewService := &reviews.Service{
		Q:  queries,
		Tx: db.Transactor(pool, func(q *dbgen.Queries) reviews.Querier { return q }),
		OnChange: func(ctx context.Context, bookID int64) {
			if _, err := bus.Emit(ctx, events.TopicBookReviewed, strconv.FormatInt(bookID, 10), map[string]int64{"bookId": bookID}); err != nil {
				logger.Warn().Err(err).Int64("book_id", bookID).Msg("emit book.reviewed")
			}
		},
	}

	var provider payment.Provider = payment.Simulated{}
	if cfg.PaymentProvider == "gateway" {
		provider = payment.NewGateway(cfg.PaymentGatewayURL, cfg.PaymentGatewayKey, cfg.OutboundTimeout, logger)
	}

	orderService := &order.Service{
		Q:         queries,
		Tx:        db.Transactor(pool, func(q *dbgen.Queries) order.TxQuerier { return q }),
		Carts:     cartService,
		Discounts: discountService,
		Payments:  &payment.Service{Provider: provider},
		Locker:    &lock.Locker{R: rdb, Prefix: "bookwise:lock", RetryBackoff: 50 * time.Millisecond, MaxWait: 2 * time.Second},
		LockTTL:   cfg.CheckoutLockTTL,
		Events:    bus,
		Logger:    logger,
	}

	cartHandler := &cart.Handler{
		Svc:             cartService,
		Discounts:       discountService,
		Logger:          logger,
		DefaultCurrency: cfg.DefaultCurrency,
		DefaultRegion:   cfg.DefaultRegion,
		SecureCookies:   cfg.CookieSecure,
	}

	credentials, err := ratelimit.NewCredentials(rdb, cfg.CredentialRate, logger)
	if err != nil {
		return nil, err
	}

	return &application{
		auth: &auth.Handler{
			Service:           authService,
			Carts:             cartService,
			Logger:            logger,
			AccessCookieName:  cfg.AccessCookieName,
			RefreshCookieName: cfg.RefreshCookieName,
			CSRFCookieName:    cfg.CSRFCookieName,
			CookieDomain:      cfg.CookieDomain,
			CookieSecure:      cfg.CookieSecure,
			CookieSameSite:    cfg.CookieSameSite,
		},
		authMW:    auth.Middleware{Service: authService, AccessCookie: cfg.AccessCookieName},
		catalog:   catalog.NewHandler(catalog.HandlerConfig{Service: catalogService}),
		reviews:   &reviews.Handler{Svc: reviewService, Logger: logger},
		wishlist:  &wishlist.Handler{Svc: &wishlist.Service{Q: queries}, Logger: logger},
		cart:      cartHandler,
		discounts: &discount.Handler{Svc: discountService, Logger: logger, CartSubtotal: cartHandler.CartSubtotal},
		orders:    &order.Handler{Svc: orderService, Logger: logger},
		health: health.Handler{
			Probes: map[string]health.Probe{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			Timeout: 500 * time.Millisecond,
		},
		redis:       rdb,
		credentials: credentials,
	}, nil
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bookwise-api/internal/cart"
	"github.com/noah-isme/bookwise-api/internal/common"
	"github.com/noah-isme/bookwise-api/internal/config"
	"github.com/noah-isme/bookwise-api/internal/db"
	dbgen "github.com/noah-isme/bookwise-api/internal/db/gen"
	"github.com/noah-isme/bookwise-api/internal/notify"
	"github.com/noah-isme/bookwise-api/internal/obs"
	"github.com/noah-isme/bookwise-api/internal/queue"
	"github.com/noah-isme/bookwise-api/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs.MustRegisterDomainMetrics(obs.DefaultNamespace, nil)
	for _, register := range []func(prometheus.Registerer) error{resilience.RegisterMetrics, queue.RegisterMetrics} {
		if err := register(prometheus.DefaultRegisterer); err != nil {
			logger.Fatal().Err(err).Msg("register metrics")
		}
	}

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "bookwise-worker",
		Endpoint:      cfg.OTELEndpoint,
		Exporter:      cfg.OTELExporter,
		SamplingRatio: cfg.OTELSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(flushCtx)
	}()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.NewPool(connectCtx, cfg.DatabaseURL, "bookwise-worker")
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	handlers := queue.Handlers{
		Mailer: notify.Mailer{
			Sender:  emailSender(cfg, logger),
			Breaker: resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("sendgrid").WithLogger(logger),
			Logger:  logger,
		},
		Carts:  &cart.Service{Q: dbgen.New(pool), TTL: cfg.GuestCartTTL, Logger: logger},
		Logger: logger,
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     cfg.QueueConcurrency,
		Queues:          queue.Priorities,
		ShutdownTimeout: cfg.ShutdownTimeout,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("type", task.Type()).Msg("task failed")
		}),
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC})
	entryID, err := scheduler.Register(cfg.GuestPurgeCron, queue.NewPurgeGuestCartsTask())
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.GuestPurgeCron).Msg("schedule guest cart purge")
	}
	logger.Info().Str("entry_id", entryID).Str("cron", cfg.GuestPurgeCron).Msg("guest cart purge scheduled")

	metricsSrv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	if err := srv.Start(handlers.Mux()); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.QueueConcurrency).Msg("worker started")

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
	srv.Shutdown()
	scheduler.Shutdown()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics server shutdown")
	}
	logger.Info().Msg("worker shutdown complete")
}

func emailSender(cfg *config.Config, logger zerolog.Logger) common.EmailSender {
	if cfg.SendGridAPIKey == "" {
		logger.Warn().Msg("SENDGRID_API_KEY not set; confirmation emails are discarded")
		return common.NopEmailSender{}
	}
	return common.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailFromName)
}

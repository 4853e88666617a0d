package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"castline/internal/core/ports"
	"castline/internal/core/services"
	httphandlers "castline/internal/handlers/http"
	"castline/internal/infrastructure/distributed"
	"castline/internal/infrastructure/middleware"
	"castline/internal/infrastructure/monitoring"
	"castline/internal/infrastructure/repositories"
	"castline/pkg/circuitbreaker"
	"castline/pkg/config"
	"castline/pkg/logger"
	"castline/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(config.Find(
		os.Getenv("CASTLINE_CONFIG"),
		"configs/config.yaml",
		"/etc/castline/config.yaml",
		"config.yaml",
	))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	if err := run(cfg, zapLogger); err != nil {
		zapLogger.Sugar().Fatalw("ingest server failed", "error", err)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName + "-ingest",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	defer repoFactory.Close()

	streamRepo := repoFactory.CreateStreamRepository()

	// This process only publishes; nobody subscribes here, so the Redis bus
	// loop is not started.
	hub := distributed.NewHub(cfg.Signal.HubBuffer, log)
	var bus ports.Bus
	if client := repoFactory.Client(); client != nil {
		bus = distributed.NewRedisBus(client, cfg.Redis.KeyPrefix, hub, log)
	} else {
		log.Warnw("running on memory stores: lifecycle changes stay inside this process")
		bus = distributed.NewLocalBus(hub, log)
	}

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	lifecycle := services.NewLifecycleService(
		repoFactory.CreateProfileRepository(),
		streamRepo,
		repoFactory.CreateSessionStore(),
		bus,
		repoFactory.CreateLocker(),
		collector,
		log,
		services.LifecycleOptions{
			LockTTL:       cfg.Lifecycle.LockTTL,
			SampleTimeout: cfg.Lifecycle.SampleTimeout,
			Breaker: circuitbreaker.Config{
				FailureThreshold:    cfg.Lifecycle.Breaker.FailureThreshold,
				SuccessThreshold:    cfg.Lifecycle.Breaker.SuccessThreshold,
				Timeout:             cfg.Lifecycle.Breaker.Timeout,
				MaxRequestsHalfOpen: cfg.Lifecycle.Breaker.MaxRequestsHalfOpen,
			},
		},
	)
	if cfg.Ingest.Secret == "" {
		log.Warnw("ingest.secret is empty: callbacks are accepted from anyone who can reach the port")
	}

	health := monitoring.NewHealthChecker()
	if client := repoFactory.Client(); client != nil {
		health.AddRedisCheck(client, 2*time.Second)
	}
	health.AddStreamCheck(streamRepo, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestLoggingMiddleware(zapLogger),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(log),
	)

	httphandlers.NewIngestHandler(lifecycle, cfg.Ingest.Secret, log).SetupRoutes(router)

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		gatherer = prometheus.DefaultGatherer
	}
	httphandlers.NewHealthHandler(health, gatherer).SetupRoutes(router, cfg.Monitoring.MetricsPath)

	srv := &http.Server{
		Addr:         cfg.Ingest.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("starting ingest callback server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server %s failed: %w", srv.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down ingest server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingest.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during server shutdown", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Errorw("error force closing server", "error", closeErr)
			}
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("error flushing traces", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("ingest server stopped")
	return nil
}

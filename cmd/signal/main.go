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

	"castline/internal/core/domain"
	"castline/internal/core/ports"
	"castline/internal/core/services"
	httphandlers "castline/internal/handlers/http"
	"castline/internal/infrastructure/distributed"
	"castline/internal/infrastructure/middleware"
	"castline/internal/infrastructure/monitoring"
	"castline/internal/infrastructure/repositories"
	signalgw "castline/internal/infrastructure/signal"
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
		zapLogger.Sugar().Fatalw("signal server failed", "error", err)
	}
}

func run(cfg *config.Config, zapLogger *zap.Logger) error {
	log := zapLogger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
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

	profileRepo := repoFactory.CreateProfileRepository()
	messageRepo := repoFactory.CreateMessageRepository()
	streamRepo := repoFactory.CreateStreamRepository()
	sessionStore := repoFactory.CreateSessionStore()

	g, gctx := errgroup.WithContext(ctx)

	hub := distributed.NewHub(cfg.Signal.HubBuffer, log)
	var bus ports.Bus
	if client := repoFactory.Client(); client != nil {
		redisBus := distributed.NewRedisBus(client, cfg.Redis.KeyPrefix, hub, log)
		g.Go(func() error { return redisBus.Run(gctx) })
		bus = redisBus
	} else {
		bus = distributed.NewLocalBus(hub, log)
	}

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	bot := domain.Identity{ID: domain.UserID(cfg.Chat.Bot.ID), Name: cfg.Chat.Bot.Name, Image: cfg.Chat.Bot.Image}
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	profileService := services.NewProfileService(profileRepo, log)
	streamService := services.NewStreamService(profileRepo, streamRepo, sessionStore, log)
	settingsService := services.NewSettingsService(profileRepo, repoFactory.CreateChatSettingsRepository(), cfg.Chat.SettingsCacheTTL, log)
	defer settingsService.Close()

	registry := services.NewCommandRegistry()
	if err := services.RegisterBuiltinCommands(registry, streamService); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	chatService := services.NewChatService(profileRepo, messageRepo, streamRepo, sessionStore, settingsService, registry, bus, collector, log,
		services.ChatOptions{
			MaxContentLength: cfg.Chat.MaxContentLength,
			JoinMarkerTTL:    cfg.Chat.JoinMarkerTTL,
			Bot:              bot,
		})
	moderationService := services.NewModerationService(profileRepo, messageRepo, streamRepo, bus, collector, log,
		services.ModerationOptions{
			Placeholder: cfg.Chat.Placeholder,
			Bot:         bot,
		})

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
		middleware.OptionalAuthMiddleware(authService),
		middleware.NewHTTPRateLimitMiddleware(cfg),
	)

	requireAuth := middleware.AuthMiddleware(authService)
	httphandlers.NewChatHandler(chatService).SetupRoutes(router, requireAuth)
	httphandlers.NewModerationHandler(moderationService).SetupRoutes(router, requireAuth)
	httphandlers.NewStreamHandler(streamService).SetupRoutes(router, requireAuth)
	httphandlers.NewSettingsHandler(settingsService).SetupRoutes(router, requireAuth)
	httphandlers.NewProfileHandler(profileService).SetupRoutes(router, requireAuth)

	var gatherer prometheus.Gatherer
	if cfg.Monitoring.PrometheusEnabled {
		gatherer = prometheus.DefaultGatherer
	}
	httphandlers.NewHealthHandler(health, gatherer).SetupRoutes(router, cfg.Monitoring.MetricsPath)

	// Memory stores are process-local, so the ingest callbacks have to land
	// in this process too.
	if repoFactory.Client() == nil {
		lifecycle := services.NewLifecycleService(profileRepo, streamRepo, sessionStore, bus, repoFactory.CreateLocker(), collector, log,
			lifecycleOptions(cfg))
		httphandlers.NewIngestHandler(lifecycle, cfg.Ingest.Secret, log).SetupRoutes(router)
		log.Infow("ingest callbacks served by the signal process")
	}

	gatewayOpts := signalgw.DefaultGatewayOptions()
	gatewayOpts.PingInterval = cfg.Signal.PingInterval
	gatewayOpts.PongTimeout = cfg.Signal.PongTimeout
	gatewayOpts.WriteTimeout = cfg.Signal.WriteTimeout
	gatewayOpts.WriteBuffer = cfg.Signal.WriteBuffer
	gatewayOpts.AllowedOrigins = cfg.Auth.AllowedOrigins
	if cfg.RateLimiting.Enabled {
		gatewayOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		gatewayOpts.Burst = cfg.RateLimiting.WebSocket.Burst
		gatewayOpts.MaxConnections = cfg.RateLimiting.WebSocket.MaxConcurrent
		gatewayOpts.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}
	gateway := signalgw.NewGateway(bus, authService, profileService, collector, log, gatewayOpts)

	wsMux := http.NewServeMux()
	wsMux.Handle("/ws", gateway)

	apiSrv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	wsSrv := &http.Server{
		Addr:              cfg.Signal.Address,
		Handler:           wsMux,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	g.Go(func() error {
		log.Infow("starting API server", "address", apiSrv.Addr)
		return serve(apiSrv)
	})
	g.Go(func() error {
		log.Infow("starting websocket gateway", "address", wsSrv.Addr)
		return serve(wsSrv)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down signal server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Signal.ShutdownTimeout)
		defer cancel()

		if err := gateway.Shutdown(shutdownCtx); err != nil {
			log.Warnw("gateway did not drain", "error", err, "connections", gateway.Connections())
		}
		if err := wsSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during websocket server shutdown", "error", err)
		}
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error during API server shutdown", "error", err)
		}
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warnw("error flushing traces", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("signal server stopped")
	return nil
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server %s failed: %w", srv.Addr, err)
	}
	return nil
}

func lifecycleOptions(cfg *config.Config) services.LifecycleOptions {
	return services.LifecycleOptions{
		LockTTL:       cfg.Lifecycle.LockTTL,
		SampleTimeout: cfg.Lifecycle.SampleTimeout,
		Breaker: circuitbreaker.Config{
			FailureThreshold:    cfg.Lifecycle.Breaker.FailureThreshold,
			SuccessThreshold:    cfg.Lifecycle.Breaker.SuccessThreshold,
			Timeout:             cfg.Lifecycle.Breaker.Timeout,
			MaxRequestsHalfOpen: cfg.Lifecycle.Breaker.MaxRequestsHalfOpen,
		},
	}
}

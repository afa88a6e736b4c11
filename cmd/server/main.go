package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livestream/internal/core/services"
	httphandlers "livestream/internal/handlers/http"
	"livestream/internal/infrastructure/chat"
	"livestream/internal/infrastructure/media"
	"livestream/internal/infrastructure/middleware"
	"livestream/internal/infrastructure/monitoring"
	"livestream/internal/infrastructure/repositories"
	"livestream/pkg/circuitbreaker"
	"livestream/pkg/config"
	"livestream/pkg/logger"
	"livestream/pkg/retry"
	"livestream/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info").Sugar().Fatalw("failed to load configuration", "path", *configPath, "error", err)
	}

	zapLogger := logger.NewWithFormat(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "livestream",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		Environment: os.Getenv("LIVESTREAM_ENV"),
		SampleRate:  cfg.Tracing.SamplingRate,
	})
	if err != nil {
		log.Fatalw("failed to initialise tracing", "error", err)
	}

	// Storage first: chat rooms are restored from it below.
	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}

	collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)

	hub := chat.NewHub(chat.Config{
		PingInterval:   cfg.Chat.PingInterval,
		PongTimeout:    cfg.Chat.PongTimeout,
		MaxMessageSize: cfg.Chat.MaxMessageSize,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
	}, log.Named("chat"))
	hub.Run()
	collector.TrackOpenRooms(hub.RoomCount)

	mediaClient := media.NewClient(media.Config{
		Host:     cfg.MediaServer.Host,
		Username: cfg.MediaServer.Username,
		Password: cfg.MediaServer.Password,
		Timeout:  cfg.MediaServer.Timeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.MediaServer.Retry.MaxAttempts,
			InitialDelay: cfg.MediaServer.Retry.InitialDelay,
			MaxDelay:     cfg.MediaServer.Retry.MaxDelay,
			Multiplier:   2,
			Jitter:       true,
		},
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.MediaServer.CircuitBreaker.FailureThreshold,
			Timeout:          cfg.MediaServer.CircuitBreaker.OpenTimeout,
		},
	}, log.Named("media"))

	binding := services.NewChatRoomBinding(hub, hub, collector, log.Named("chat_binding"))
	streamService := services.NewStreamService(
		repoFactory.CreateStreamRepository(),
		binding,
		mediaClient,
		repoFactory.CreateLocker(),
		collector,
		log.Named("streams"),
	)
	userService := services.NewUserService(repoFactory.CreateUserRepository(), log.Named("users"))

	restoreCtx, cancelRestore := context.WithTimeout(context.Background(), 30*time.Second)
	rooms := streamService.CreateChatRoomsForLiveStreams(restoreCtx)
	cancelRestore()
	log.Infow("chat rooms restored", "rooms", rooms, "storage", repoFactory.Driver())

	streamService = services.NewCachedStreamService(streamService, cfg.Cache.StreamTTL)

	health := monitoring.NewHealthChecker()
	health.AddStorageCheck(repoFactory.HealthCheck, 2*time.Second)
	health.AddChatCheck(hub)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	requestLog := logger.NewContextLogger(zapLogger)
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(requestLog),
		middleware.RequestLoggerMiddleware(requestLog),
		middleware.TracingMiddleware(),
		middleware.MetricsMiddleware(collector),
		middleware.ErrorHandlerMiddleware(requestLog),
		middleware.IdentityMiddleware(),
	)

	api := router.Group("/api/v1")
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	httphandlers.NewStreamHandler(streamService).SetupRoutes(api)
	httphandlers.NewUserHandler(userService).SetupRoutes(api)

	router.GET("/chat/ws", gin.WrapF(hub.HandleWebSocket))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    monitoring.StatusHealthy,
			"timestamp": time.Now(),
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting livestream server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	}

	if err := hub.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error stopping chat hub", "error", err)
	}
	if cached, ok := streamService.(*services.CachedStreamService); ok {
		cached.Stop()
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error flushing traces", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("livestream server stopped")
}

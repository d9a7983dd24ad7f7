package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/sharifulalam-dev/todoserver/internal/auth"
	"github.com/sharifulalam-dev/todoserver/internal/config"
	"github.com/sharifulalam-dev/todoserver/internal/handler"
	"github.com/sharifulalam-dev/todoserver/internal/ordering"
	"github.com/sharifulalam-dev/todoserver/internal/realtime"
	"github.com/sharifulalam-dev/todoserver/internal/repository"
	"github.com/sharifulalam-dev/todoserver/internal/service"
	"github.com/sharifulalam-dev/todoserver/internal/telemetry"
)

func main() {
	// Create a basic logger for startup (before OTel is initialized)
	startupLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		startupLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	startupLogger.Info("starting application",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("store", cfg.StoreBackend),
		slog.Bool("telemetry", cfg.TelemetryEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, logger, err := telemetry.Setup(ctx, telemetry.Options{
		Enabled:      cfg.TelemetryEnabled,
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.OTLPEndpoint,
		Environment:  cfg.Environment,
		Level:        cfg.SlogLevel(),
	})
	if err != nil {
		startupLogger.Error("failed to initialize telemetry", slog.Any("error", err))
		os.Exit(1)
	}

	code := 0
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		code = 1
	}

	if err := providers.Shutdown(context.Background()); err != nil {
		startupLogger.Error("failed to shutdown telemetry providers", slog.Any("error", err))
	}
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := closeStore(closeCtx); err != nil {
			logger.Error("failed to close store", slog.Any("error", err))
		}
	}()

	hub := realtime.NewHub()

	// Create metrics instruments
	metrics, err := telemetry.NewMetrics(otel.Meter(cfg.ServiceName), telemetry.Gauges{
		TaskCount:   store.Count,
		ClientCount: func() int64 { return int64(hub.Len()) },
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	hub.SetPublishCounter(metrics.EventsPublished)

	var rc *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rc = redis.NewClient(opts)
		defer rc.Close()
	}

	bgCtx, cancelBackground := context.WithCancel(ctx)
	background := conc.NewWaitGroup()
	defer func() {
		cancelBackground()
		background.Wait()
	}()

	var publisher service.EventPublisher = hub
	if rc != nil {
		relay := realtime.NewRedisRelay(rc, cfg.RedisChannel, hub, logger)
		publisher = relay
		background.Go(func() {
			_ = relay.Run(bgCtx)
		})
	}

	var authOpts []auth.Option
	if cfg.JWKSURL != "" {
		jwks, err := auth.FetchJWKS(cfg.JWKSURL)
		if err != nil {
			return err
		}
		defer jwks.EndBackground()
		authOpts = append(authOpts, auth.WithJWKS(jwks))
	}
	authn := auth.NewAuthenticator(cfg.AccessTokenSecret, authOpts...)

	engine := ordering.NewEngine(store)
	svc := service.NewTaskService(store, engine, publisher, logger)

	// Initialize handlers
	taskHandler := handler.NewTaskHandler(svc, logger, metrics)
	streams := realtime.NewStreamHandler(hub, authn, cfg.RealtimeScopeByOwner, cfg.CORSAllowedOrigins, logger)
	r := handler.NewRouter(taskHandler, streams, authn.Middleware(taskHandler.Unauthorized))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Wrap router with OpenTelemetry HTTP instrumentation
	otelHandler := otelhttp.NewHandler(corsHandler, "http-server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			// Skip tracing for health checks
			return r.URL.Path != "/health"
		}),
	)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      otelHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		// Open streams end when the process is signalled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", slog.Any("error", err))
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (repository.TaskStore, func(context.Context) error, error) {
	switch cfg.StoreBackend {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := repository.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return repository.NewMemoryStore(), func(context.Context) error { return nil }, nil
	}
}

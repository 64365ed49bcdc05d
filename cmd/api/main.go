package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookfront/internal/api"
	"bookfront/internal/config"
	"bookfront/internal/domain"
	"bookfront/internal/events"
	"bookfront/internal/logging"
	"bookfront/internal/metrics"
	"bookfront/internal/pricing"
	"bookfront/internal/repository"
	"bookfront/internal/service"
	"bookfront/internal/upstream"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	services, err := initServices(cfg, redisClient, &logger)
	if err != nil {
		return err
	}

	grpcServer, err := api.NewGRPCServer(&cfg.API, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("create grpc server")
		return err
	}
	httpServer := api.NewHTTPServer(&cfg.API, services, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)
	go grpcServer.MonitorReadiness(ctx, services.Ready, 15*time.Second)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initServices(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) (api.Services, error) {
	tenants, err := service.NewTenantDirectory(cfg.Tenants)
	if err != nil {
		return api.Services{}, fmt.Errorf("init tenants: %w", err)
	}

	engine, err := pricing.NewEngineFromConfig(cfg.Pricing)
	if err != nil {
		return api.Services{}, fmt.Errorf("init pricing: %w", err)
	}

	cacheTTL := time.Duration(cfg.Upstream.CacheTTL) * time.Second
	newClient := func(name, baseURL string) *upstream.Client {
		c := upstream.NewClient(name, baseURL, cfg.Upstream, logging.Component(logger, "upstream-"+name))
		if redisClient != nil {
			c.UseRedisCache(redisClient, cacheTTL)
		}
		return c
	}

	var catalogSource domain.CatalogSource
	if cfg.Upstream.CatalogFile != "" {
		static, err := upstream.LoadStaticCatalog(cfg.Upstream.CatalogFile)
		if err != nil {
			return api.Services{}, err
		}
		logger.Info().Str("catalog_file", cfg.Upstream.CatalogFile).Msg("using static catalog")
		catalogSource = static
	} else {
		catalogSource = upstream.NewCatalogClient(newClient("catalog", cfg.Upstream.CatalogURL))
	}
	booking := upstream.NewBookingClient(newClient("booking", cfg.Upstream.BookingURL))
	calendar := upstream.NewCalendarClient(newClient("calendar", cfg.Upstream.CalendarURL))

	sessionTTL := time.Duration(cfg.Wizard.SessionTTL) * time.Second
	var sessions domain.SessionRepository = repository.NewMemorySessionRepository(sessionTTL)
	if redisClient != nil {
		sessions = repository.NewFailoverSessionRepository(
			repository.NewRedisSessionRepository(redisClient, sessionTTL),
			sessions,
			logging.Component(logger, "sessions"),
		)
	}

	eventBus := events.NewEventBus()
	eventBus.Subscribe(events.AllEvents, events.LogHandler(logging.Component(logger, "events")))

	catalog := service.NewCatalogService(catalogSource, tenants, engine, nil, logging.Component(logger, "catalog"))
	wizard := service.NewWizardService(sessions, catalog, booking, eventBus, cfg.Wizard, logging.Component(logger, "wizard"))
	cal := service.NewCalendarService(calendar, tenants, eventBus, cfg.Calendar, cfg.Exports.Path, nil, logging.Component(logger, "calendar"))

	ready := func(ctx context.Context) error {
		if redisClient == nil {
			return nil
		}
		return repository.Ping(ctx, redisClient)
	}

	return api.Services{Catalog: catalog, Wizard: wizard, Calendar: cal, Ready: ready}, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	go func() {
		if !cfg.API.GRPC.Enabled {
			return
		}
		if err := grpcServer.Serve(); err != nil {
			logger.Error().Err(err).Msg("grpc server stopped")
		}
	}()

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Str("grpc_addr", grpcServer.Addr()).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grpcServer.Shutdown(shutdownCtx)
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

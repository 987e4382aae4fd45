package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/verida/notification-server/config"
	"github.com/verida/notification-server/internal/application"
	"github.com/verida/notification-server/internal/domain/registry"
	"github.com/verida/notification-server/internal/infrastructure/cache/redis"
	"github.com/verida/notification-server/internal/infrastructure/did"
	"github.com/verida/notification-server/internal/infrastructure/metrics/influxdb"
	"github.com/verida/notification-server/internal/infrastructure/persistence"
	pushprovider "github.com/verida/notification-server/internal/infrastructure/push"
	apphttp "github.com/verida/notification-server/internal/interfaces/http"
	"github.com/verida/notification-server/internal/interfaces/http/handlers"
	"github.com/verida/notification-server/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func run(configPath string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Environment: cfg.Logging.Environment,
		Service:     "notification-server",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	log.Info("Starting notification server...",
		logger.Component("main"),
		logger.String("store", cfg.Store.Backend),
		logger.String("push_provider", cfg.Push.Provider),
	)

	store, err := initStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	redisClient, err := initRedis(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	provider, err := pushprovider.NewProvider(&cfg.Push, log)
	if err != nil {
		return err
	}
	defer provider.Close()

	recorder, err := initMetrics(ctx, cfg, log)
	if err != nil {
		return err
	}
	if recorder != nil {
		defer recorder.Close()
	}

	deps := &application.Dependencies{
		Store:  store,
		Sender: provider,
	}
	if recorder != nil {
		deps.Recorder = recorder
	}
	svcs := application.NewServices(deps, cfg, log)

	var cache did.DocumentCache
	var redisHealth handlers.HealthChecker
	if redisClient != nil {
		cache = redis.NewDocumentCache(redisClient, cfg.DID.CacheDuration)
		redisHealth = redisClient
	}
	validator := did.NewValidator(did.NewHTTPResolver(cfg.DID.ServerURL, cfg.DID.Timeout), cache, log)

	router := apphttp.NewRouter(cfg, &apphttp.RouterDeps{
		Registry:      svcs.Registry,
		Relay:         svcs.Relay,
		Authorizer:    validator,
		StoreHealther: store,
		RedisHealther: redisHealth,
		Logger:        log,
	})
	defer router.Close()

	server := apphttp.NewServer(cfg, router)
	httpServer := &http.Server{
		Addr:         server.ListenAddr(),
		Handler:      server.Handler(),
		ReadTimeout:  server.ReadTimeout(),
		WriteTimeout: server.WriteTimeout(),
		IdleTimeout:  server.IdleTimeout(),
	}

	return startServer(httpServer, svcs, log)
}

func initStore(ctx context.Context, cfg *config.Config, log logger.Logger) (registry.Store, error) {
	store, err := persistence.NewStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	createCtx := ctx
	if cfg.Store.Timeout > 0 {
		var cancel context.CancelFunc
		createCtx, cancel = context.WithTimeout(ctx, cfg.Store.Timeout)
		defer cancel()
	}
	if err := store.Create(createCtx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create device store: %w", err)
	}
	return store, nil
}

// initRedis returns a nil client when the DID document cache is disabled.
func initRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Info("DID document cache disabled", logger.Component("infrastructure"))
		return nil, nil
	}

	client, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info("Connected to Redis",
		logger.Component("infrastructure"),
		logger.String("host", cfg.Redis.Host),
		logger.Int("port", cfg.Redis.Port),
	)
	return client, nil
}

// initMetrics returns a nil recorder when metrics are disabled.
func initMetrics(ctx context.Context, cfg *config.Config, log logger.Logger) (*influxdb.Recorder, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	recorder, err := influxdb.Connect(ctx, &cfg.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to InfluxDB: %w", err)
	}
	log.Info("Recording relay metrics",
		logger.Component("infrastructure"),
		logger.String("bucket", cfg.Metrics.Bucket),
	)
	return recorder, nil
}

func startServer(server *http.Server, svcs *application.Services, log logger.Logger) error {
	errChan := make(chan error, 1)
	go func() {
		log.Info("Server listening",
			logger.Component("server"),
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		log.Info("Shutting down server...",
			logger.Component("server"),
			logger.String("signal", sig.String()),
		)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Pings accepted before shutdown are still delivered.
	if err := svcs.Relay.Wait(shutdownCtx); err != nil {
		log.Warn("Abandoning in-flight pings", logger.Component("server"), logger.Error(err))
	}

	log.Info("Server exited", logger.Component("server"))
	return nil
}

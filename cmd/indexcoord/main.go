package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/helixsearch/indexcoord/internal/config"
	"github.com/helixsearch/indexcoord/internal/handler"
	"github.com/helixsearch/indexcoord/internal/health"
	"github.com/helixsearch/indexcoord/internal/metrics"
	"github.com/helixsearch/indexcoord/internal/registry"
	"github.com/helixsearch/indexcoord/internal/server"
	"github.com/helixsearch/indexcoord/internal/service"
	"github.com/helixsearch/indexcoord/internal/store"
	"github.com/helixsearch/indexcoord/internal/util/workerpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting tenant index coordinator",
		zap.String("log_level", cfg.Logging.Level),
		zap.String("log_format", cfg.Logging.Format))

	logger.Info("Configuration loaded",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_host", cfg.Database.Host),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("lock_queue_capacity", cfg.Locks.QueueCapacity),
		zap.Duration("sync_interval", cfg.Sync.Interval))

	m := metrics.New(prometheus.DefaultRegisterer)
	logger.Info("Metrics initialized")

	pgStore, err := store.NewPostgresMetadataStore(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Database,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize metadata store", zap.Error(err))
	}
	logger.Info("Metadata store initialized")

	partitionStore, err := store.NewRedisPartitionStore(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize partition store", zap.Error(err))
	}
	logger.Info("Partition store initialized")

	cache := store.NewInMemoryCache(cfg.Cache.MaxSize, logger)
	metadataStore := store.NewCachedMetadataStore(pgStore, cache, cfg.Cache.TenantConfigTTL, logger)
	logger.Info("Cache initialized",
		zap.Duration("tenant_config_ttl", cfg.Cache.TenantConfigTTL))

	logger.Info("Initializing services")

	lockRegistry := registry.New()
	versionTracker := service.NewVersionTracker(logger)
	lockManager := service.NewLockManager(
		lockRegistry,
		versionTracker,
		cfg.Locks.QueueCapacity,
		cfg.Locks.TickInterval,
		m,
		logger,
	)
	lockManager.Start()

	recreationService := service.NewRecreationService(
		partitionStore,
		metadataStore,
		lockManager,
		versionTracker,
		m,
		logger,
	)
	reconnectionService := service.NewReconnectionService(
		metadataStore,
		cache,
		lockManager,
		recreationService,
		cfg.Sync.SampleLimit,
		m,
		logger,
	)
	deletionService := service.NewDeletionService(
		partitionStore,
		metadataStore,
		cache,
		lockManager,
		versionTracker,
		m,
		logger,
	)

	syncPool := workerpool.New("sync", cfg.Sync.Workers, cfg.Sync.QueueSize, logger)
	syncService := service.NewSyncService(
		partitionStore,
		metadataStore,
		lockManager,
		versionTracker,
		syncPool,
		cfg.Sync.Interval,
		m,
		logger,
	)
	syncService.Start()

	logger.Info("All services initialized")

	handlers := handler.NewHandlers(
		lockManager,
		versionTracker,
		reconnectionService,
		deletionService,
		syncService,
		logger,
	)
	healthChecker := health.NewHealthChecker(metadataStore, partitionStore, logger)
	apiServer := server.New(cfg, handlers, healthChecker, logger)

	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, metricsMux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- apiServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Admin API shutdown error", zap.Error(err))
	}

	syncService.Stop()
	if err := syncPool.Stop(10 * time.Second); err != nil {
		logger.Warn("Sync pool stop error", zap.Error(err))
	}
	lockManager.Stop()
	cache.Stop()
	if err := partitionStore.Close(); err != nil {
		logger.Warn("Partition store close error", zap.Error(err))
	}
	metadataStore.Close()

	logger.Info("Shutdown complete")
}

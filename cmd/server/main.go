package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pawanM12/deCertify/internal/backend"
	"github.com/pawanM12/deCertify/internal/contentstore"
	"github.com/pawanM12/deCertify/internal/issuancelock"
	"github.com/pawanM12/deCertify/internal/metrics"
	"github.com/pawanM12/deCertify/internal/server"
	"github.com/pawanM12/deCertify/internal/service"
	"github.com/pawanM12/deCertify/pkg/config"
	"github.com/pawanM12/deCertify/pkg/logging"
)

var (
	configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Version: version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting deCertify server",
		zap.String("version", version),
		zap.String("build_time", buildTime),
	)

	// Initialize storage backend
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := backend.New(ctx, cfg)
	cancel()
	if err != nil {
		logger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	logger.Info("Storage backend initialized", zap.String("type", cfg.Storage.Type))

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	err = store.Ping(ctx)
	cancel()
	if err != nil {
		logger.Fatal("Failed to ping storage", zap.Error(err))
	}

	content, err := contentstore.New(&cfg.ContentStore, logger)
	if err != nil {
		logger.Fatal("Failed to initialize content store", zap.Error(err))
	}
	if cfg.ContentStore.Type == "memory" || cfg.ContentStore.Type == "" {
		logger.Warn("Using in-memory content store; uploaded certificates are lost on restart")
	}

	locker, err := issuancelock.New(&cfg.Issuance, logger)
	if err != nil {
		logger.Fatal("Failed to initialize issuance lock", zap.Error(err))
	}
	defer func() { _ = locker.Close() }()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	services, err := service.NewServices(store, cfg, service.Dependencies{
		Content: content,
		Locker:  locker,
		Metrics: m,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}

	mgr := server.NewManager(cfg, m, logger)
	mgr.AddProvider(server.NewCertificateProvider(cfg, services, store, logger))
	if err := mgr.Start(context.Background()); err != nil {
		logger.Fatal("Failed to start servers", zap.Error(err))
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mgr.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

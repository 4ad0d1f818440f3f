package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/api"
	"github.com/clinical-decision-support-server/internal/cache"
	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/compliance"
	"github.com/clinical-decision-support-server/internal/config"
	"github.com/clinical-decision-support-server/internal/database"
	"github.com/clinical-decision-support-server/internal/domain"
	"github.com/clinical-decision-support-server/internal/metering"
	"github.com/clinical-decision-support-server/internal/repository"
	"github.com/clinical-decision-support-server/internal/service"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.WithFields(logrus.Fields{
		"host":        cfg.Server.Host,
		"port":        cfg.Server.Port,
		"environment": cfg.Environment,
	}).Info("Starting clinical decision support server")

	if err := run(ctx, configManager, logger); err != nil {
		logger.WithError(err).Error("Server failed")
		os.Exit(1)
	}

	logger.Info("Server stopped")
}

func run(ctx context.Context, configManager *config.Manager, logger *logrus.Logger) error {
	cfg := configManager.GetConfig()

	cat, err := loadCatalog(cfg.CDS.CatalogFile)
	if err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(configManager, logger); err != nil {
		return err
	}

	sessions, err := cache.NewRedisSessionStore(cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer sessions.Close()

	store, err := compliance.Open(cfg.Compliance, configManager.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer store.Close()

	var usage domain.UsageSink = store
	if cfg.Metering.Endpoint != "" {
		forwarder, err := metering.NewForwarder(cfg.Metering, logger)
		if err != nil {
			return err
		}
		usage = metering.MultiSink{store, forwarder}
		logger.WithField("endpoint", cfg.Metering.Endpoint).Info("Forwarding usage records")
	}

	hub := api.NewAlertHub(cfg.Server.AllowedOrigins, logger)

	engine := service.NewEngine(logger, service.EngineConfig{
		EngineVersion:      cfg.CDS.EngineVersion,
		ModelVersion:       cfg.CDS.ModelVersion,
		AlertThreshold:     cfg.CDS.AlertThreshold,
		SessionTTL:         cfg.CDS.SessionTTL,
		MaxRecommendations: cfg.CDS.MaxRecommendations,
	}, cat, service.Collaborators{
		Sessions: sessions,
		Alerts:   repository.NewAlertRepository(db.Pool, logger),
		Audit:    store,
		Usage:    usage,
		Notifier: hub,
	})

	server, err := api.NewServer(cfg, engine, logger,
		api.WithAlertHub(hub),
		api.WithComplianceStore(store),
		api.WithHealthCheck("database", db.Health),
		api.WithHealthCheck("cache", sessions.Ping),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Start(ctx)
}

func migrate(configManager *config.Manager, logger *logrus.Logger) error {
	var (
		runner *database.MigrationRunner
		err    error
	)
	if path := configManager.GetDatabaseConfig().MigrationsPath; path != "" {
		runner, err = database.NewMigrationRunnerFromPath(path, configManager.GetDatabaseURL(), logger)
	} else {
		runner, err = database.NewMigrationRunner(configManager.GetDatabaseURL(), logger)
	}
	if err != nil {
		return err
	}
	defer runner.Close()

	return runner.Up()
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.Load(path)
}

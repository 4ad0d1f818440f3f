package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/cache"
	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/compliance"
	litecfg "github.com/clinical-decision-support-server/internal/config"
	"github.com/clinical-decision-support-server/internal/domain"
	"github.com/clinical-decision-support-server/internal/repository"
	"github.com/clinical-decision-support-server/internal/service"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// Sessions and alerts live in memory; audit and usage go to SQLite.
type LiteServer struct {
	config     *litecfg.LiteConfig
	server     *Server
	engine     *service.Engine
	compliance compliance.Store
	sessions   *cache.MemorySessionStore
	logger     *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithComplianceStore sets a custom audit and usage store.
func WithComplianceStore(store compliance.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.compliance = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{config: cfg}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.logger == nil {
		logger, err := litecfg.NewLogger(domain.LoggingConfig{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
			// stdout carries the protocol
			Output: "stderr",
		})
		if err != nil {
			return nil, err
		}
		server.logger = logger
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cat, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, err
	}

	if server.compliance == nil {
		store, err := compliance.NewSQLiteStore(cfg.ComplianceDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create compliance store: %w", err)
		}
		server.compliance = store
	}

	server.sessions = cache.NewMemorySessionStore(cfg.SessionCacheItems, cfg.SessionTTL)

	server.engine = service.NewEngine(server.logger, service.EngineConfig{
		EngineVersion:      cfg.EngineVersion,
		ModelVersion:       cfg.ModelVersion,
		AlertThreshold:     cfg.AlertThreshold,
		SessionTTL:         cfg.SessionTTL,
		MaxRecommendations: cfg.MaxRecommendations,
	}, cat, service.Collaborators{
		Sessions: server.sessions,
		Alerts:   repository.NewMemoryAlertRepository(),
		Audit:    server.compliance,
		Usage:    server.compliance,
	})

	server.server = NewServer(server.engine, server.logger, ServerInfo{
		Name:    "clinical-decision-support-lite",
		Version: cfg.EngineVersion,
	}, WithAuditExport(server.compliance, cfg.ExportDir()))

	server.logger.WithFields(logrus.Fields{
		"data_dir":        cfg.DataDir,
		"catalog_version": cat.Version,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over the configured transport.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.WithField("transport_type", s.config.Transport).Info("Starting clinical decision support MCP server (lite)")

	var transport mcp.Transport
	switch s.config.Transport {
	case "stdio", "":
		transport = &mcp.StdioTransport{}
	default:
		return fmt.Errorf("unsupported transport %q", s.config.Transport)
	}

	return s.server.Run(ctx, transport)
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.compliance != nil {
		if err := s.compliance.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close compliance store")
			return err
		}
	}
	return nil
}

// Server returns the underlying tool server.
func (s *LiteServer) Server() *Server {
	return s.server
}

// Engine returns the pipeline engine the tools call into.
func (s *LiteServer) Engine() *service.Engine {
	return s.engine
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default()
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog %s: %w", path, err)
	}
	return cat, nil
}

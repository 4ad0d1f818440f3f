// Package api exposes the clinical decision support engine over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/compliance"
	"github.com/clinical-decision-support-server/internal/domain"
	"github.com/clinical-decision-support-server/internal/middleware"
	"github.com/clinical-decision-support-server/internal/service"
)

// HealthCheck probes one dependency for the health endpoint
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP server
type Server struct {
	config     *domain.Config
	engine     *service.Engine
	hub        *AlertHub
	compliance compliance.Store
	checks     map[string]HealthCheck
	router     *gin.Engine
	server     *http.Server
	logger     *logrus.Logger
	version    string
}

// Option configures optional server collaborators
type Option func(*Server)

// WithAlertHub enables the websocket alert stream
func WithAlertHub(hub *AlertHub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithComplianceStore enables the audit and usage reporting endpoints
func WithComplianceStore(store compliance.Store) Option {
	return func(s *Server) { s.compliance = store }
}

// WithHealthCheck adds a named dependency probe to GET /health
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, engine *service.Engine, logger *logrus.Logger, opts ...Option) (*Server, error) {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.CorrelationID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.AuditLogger(logger))

	server := &Server{
		config:  cfg,
		engine:  engine,
		checks:  make(map[string]HealthCheck),
		router:  router,
		logger:  logger,
		version: cfg.CDS.EngineVersion,
	}
	for _, opt := range opts {
		opt(server)
	}

	if err := server.setupRoutes(); err != nil {
		return nil, err
	}
	return server, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithFields(logrus.Fields{
		"addr": addr,
		"tls":  cfg.TLSEnabled,
	}).Info("HTTP server listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.hub != nil {
		s.hub.Close()
	}
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() error {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	if s.config.RateLimit.Enabled {
		limiter, err := middleware.NewTenantRateLimiter(s.config.RateLimit)
		if err != nil {
			return err
		}
		v1.Use(limiter.Middleware())
	}

	cds := v1.Group("/cds")
	{
		cds.POST("/recommendations", middleware.RequestTimeout(s.config.Server.WriteTimeout), s.handleRecommendations)
		cds.POST("/interactions", s.handleInteractions)
		cds.GET("/sessions/:id", s.handleGetSession)
		cds.GET("/alerts", s.handleListAlerts)
		cds.POST("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)
		cds.GET("/catalog", s.handleCatalog)
		if s.hub != nil {
			cds.GET("/alerts/stream", s.hub.HandleStream)
		}
	}

	if s.compliance != nil {
		reports := v1.Group("/compliance")
		reports.GET("/audit", s.handleListAudit)
		reports.GET("/usage", s.handleUsageSummary)
	}
	return nil
}

// handleHealth reports overall status plus each registered dependency probe
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "healthy"
	}

	overall := "healthy"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{
		"status":          overall,
		"timestamp":       time.Now().UTC(),
		"version":         s.version,
		"catalog_version": s.engine.Catalog().Version,
		"components":      components,
	})
}

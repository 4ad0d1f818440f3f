// Package mcp exposes the clinical decision support engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/compliance"
	"github.com/clinical-decision-support-server/internal/service"
)

// Tool names
const (
	ToolGenerateRecommendations = "generate_clinical_recommendations"
	ToolCheckInteractions       = "check_drug_interactions"
	ToolGetSession              = "get_cds_session"
	ToolAcknowledgeAlert        = "acknowledge_clinical_alert"
	ToolExportAudit             = "export_audit_log"
)

// ServerInfo contains MCP server metadata
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server wires the engine's operations into an MCP server
type Server struct {
	engine     *service.Engine
	compliance compliance.Store
	exportDir  string
	mcpServer  *mcp.Server
	tools      []string
	logger     *logrus.Logger
}

// Option configures optional collaborators
type Option func(*Server)

// WithAuditExport registers the export_audit_log tool writing into dir
func WithAuditExport(store compliance.Store, dir string) Option {
	return func(s *Server) {
		s.compliance = store
		s.exportDir = dir
	}
}

// NewServer creates a new MCP server instance with every tool registered
func NewServer(engine *service.Engine, logger *logrus.Logger, info ServerInfo, opts ...Option) *Server {
	if info.Name == "" {
		info.Name = "clinical-decision-support"
	}

	server := &Server{
		engine: engine,
		logger: logger,
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    info.Name,
			Version: info.Version,
		}, nil),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.registerTools()
	return server
}

// registerTools registers the clinical tools with the SDK server
func (s *Server) registerTools() {
	s.addTool(ToolGenerateRecommendations,
		"Run the clinical decision support pipeline for a patient snapshot and return ranked recommendations, differential diagnoses, risk predictions, drug interactions and alerts",
		func(t *mcp.Tool) { mcp.AddTool(s.mcpServer, t, s.handleGenerateRecommendations) })

	s.addTool(ToolCheckInteractions,
		"Check a medication list, and optional pharmacogenomic annotations, for known drug interactions",
		func(t *mcp.Tool) { mcp.AddTool(s.mcpServer, t, s.handleCheckInteractions) })

	s.addTool(ToolGetSession,
		"Fetch a previous recommendation session by id while it is still cached",
		func(t *mcp.Tool) { mcp.AddTool(s.mcpServer, t, s.handleGetSession) })

	s.addTool(ToolAcknowledgeAlert,
		"Acknowledge a clinical alert. An alert can be acknowledged only once",
		func(t *mcp.Tool) { mcp.AddTool(s.mcpServer, t, s.handleAcknowledgeAlert) })

	if s.compliance != nil && s.exportDir != "" {
		s.addTool(ToolExportAudit,
			"Export a tenant's audit trail as a JSON file in the server's export directory",
			func(t *mcp.Tool) { mcp.AddTool(s.mcpServer, t, s.handleExportAudit) })
	}

	s.logger.WithField("tool_count", len(s.tools)).Info("Successfully registered all tools")
}

func (s *Server) addTool(name, description string, register func(*mcp.Tool)) {
	register(&mcp.Tool{Name: name, Description: description})
	s.tools = append(s.tools, name)
	s.logger.WithField("tool_name", name).Debug("Registered MCP tool")
}

// Tools returns the registered tool names in registration order
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

// Run serves MCP requests over the transport until ctx is cancelled or the peer disconnects
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

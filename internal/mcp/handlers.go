package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clinical-decision-support-server/internal/domain"
)

// GenerateRecommendationsParams defines parameters for generate_clinical_recommendations
type GenerateRecommendationsParams struct {
	TenantID string                  `json:"tenantId" jsonschema:"tenant the request is billed and audited against"`
	UserID   string                  `json:"userId,omitempty" jsonschema:"clinician issuing the request"`
	Context  *domain.ClinicalContext `json:"context" jsonschema:"patient snapshot to evaluate"`
	Options  *domain.CDSOptions      `json:"options,omitempty"`
}

// CheckInteractionsParams defines parameters for check_drug_interactions
type CheckInteractionsParams struct {
	Medications []domain.Medication `json:"medications"`
	Genomics    *domain.GenomicData `json:"genomics,omitempty"`
}

// CheckInteractionsResult is the check_drug_interactions payload
type CheckInteractionsResult struct {
	Interactions []domain.DrugInteraction `json:"interactions"`
}

// GetSessionParams defines parameters for get_cds_session
type GetSessionParams struct {
	SessionID string `json:"sessionId"`
	TenantID  string `json:"tenantId,omitempty" jsonschema:"when set, only a session owned by this tenant is returned"`
}

// AcknowledgeAlertParams defines parameters for acknowledge_clinical_alert
type AcknowledgeAlertParams struct {
	AlertID        string `json:"alertId"`
	AcknowledgedBy string `json:"acknowledgedBy"`
	TenantID       string `json:"tenantId,omitempty" jsonschema:"when set, only an alert owned by this tenant is acknowledged"`
}

// ExportAuditParams defines parameters for export_audit_log
type ExportAuditParams struct {
	TenantID string `json:"tenantId"`
}

// ExportAuditResult reports where the export was written
type ExportAuditResult struct {
	TenantID string `json:"tenantId"`
	Path     string `json:"path"`
}

func (s *Server) handleGenerateRecommendations(ctx context.Context, _ *mcp.CallToolRequest, params GenerateRecommendationsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolGenerateRecommendations).Info("Tool invoked")

	if strings.TrimSpace(params.TenantID) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("tenantId is required")), nil, nil
	}

	result, err := s.engine.GenerateRecommendations(ctx, params.TenantID, params.UserID, params.Context, params.Options)
	if err != nil {
		return s.toolError(err), nil, nil
	}

	summary := fmt.Sprintf("Session %s: %d recommendations, %d alerts, %d drug interactions",
		result.SessionID, len(result.Recommendations), len(result.Alerts), len(result.DrugInteractions))
	return s.jsonResult(summary, result), result, nil
}

func (s *Server) handleCheckInteractions(_ context.Context, _ *mcp.CallToolRequest, params CheckInteractionsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolCheckInteractions).Info("Tool invoked")

	interactions, err := s.engine.CheckInteractions(params.Medications, params.Genomics)
	if err != nil {
		return s.toolError(err), nil, nil
	}

	result := CheckInteractionsResult{Interactions: interactions}
	summary := fmt.Sprintf("Found %d drug interactions across %d medications", len(interactions), len(params.Medications))
	return s.jsonResult(summary, result), result, nil
}

func (s *Server) handleGetSession(ctx context.Context, _ *mcp.CallToolRequest, params GetSessionParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolGetSession).Info("Tool invoked")

	record, err := s.engine.GetSession(ctx, params.TenantID, params.SessionID)
	if err != nil {
		return s.toolError(err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("Session %s for tenant %s", record.SessionID, record.TenantID), record), record, nil
}

func (s *Server) handleAcknowledgeAlert(ctx context.Context, _ *mcp.CallToolRequest, params AcknowledgeAlertParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolAcknowledgeAlert).Info("Tool invoked")

	alert, err := s.engine.AcknowledgeAlert(ctx, params.TenantID, params.AlertID, params.AcknowledgedBy)
	if err != nil {
		return s.toolError(err), nil, nil
	}
	return s.jsonResult(fmt.Sprintf("Alert %s acknowledged by %s", alert.ID, params.AcknowledgedBy), alert), alert, nil
}

func (s *Server) handleExportAudit(ctx context.Context, _ *mcp.CallToolRequest, params ExportAuditParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", ToolExportAudit).Info("Tool invoked")

	if strings.TrimSpace(params.TenantID) == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("tenantId is required")), nil, nil
	}

	name := fmt.Sprintf("audit-%s-%s.json", sanitizeFileName(params.TenantID), time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.exportDir, name)

	file, err := os.Create(path)
	if err != nil {
		return s.createErrorResult("Failed to create export file", err), nil, nil
	}
	exportErr := s.compliance.ExportJSON(ctx, params.TenantID, file)
	closeErr := file.Close()
	if err := errors.Join(exportErr, closeErr); err != nil {
		_ = os.Remove(path)
		return s.createErrorResult("Audit export failed", err), nil, nil
	}

	result := ExportAuditResult{TenantID: params.TenantID, Path: path}
	return s.jsonResult(fmt.Sprintf("Audit trail exported to %s", path), result), result, nil
}

var toolErrorPrefix = map[string]string{
	domain.ErrValidation:     "Invalid input",
	domain.ErrNotFoundCode:   "Not found",
	domain.ErrConflict:       "Conflict",
	domain.ErrPipeline:       "Pipeline failure",
	domain.ErrInternalServer: "Internal error",
}

// toolError maps engine errors onto tool error results
func (s *Server) toolError(err error) *mcp.CallToolResult {
	code := domain.ErrorCode(err)
	if code == domain.ErrPipeline || code == domain.ErrInternalServer {
		s.logger.WithError(err).Error("Tool call failed")
	}
	return s.createErrorResult(toolErrorPrefix[code], err)
}

// jsonResult renders a one-line summary followed by the JSON payload
func (s *Server) jsonResult(summary string, payload any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return s.createErrorResult("Failed to encode result", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: summary},
			&mcp.TextContent{Text: string(data)},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}

func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

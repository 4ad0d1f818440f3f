package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clinical-decision-support-server/internal/compliance"
	"github.com/clinical-decision-support-server/internal/domain"
	"github.com/clinical-decision-support-server/internal/middleware"
)

// RecommendationsRequest is the body of POST /api/v1/cds/recommendations
type RecommendationsRequest struct {
	TenantID string                  `json:"tenantId"`
	UserID   string                  `json:"userId"`
	Context  *domain.ClinicalContext `json:"context" binding:"required"`
	Options  *domain.CDSOptions      `json:"options"`
}

// InteractionsRequest is the body of POST /api/v1/cds/interactions
type InteractionsRequest struct {
	Medications []domain.Medication `json:"medications"`
	Genomics    *domain.GenomicData `json:"genomics"`
}

// AcknowledgeRequest is the body of POST /api/v1/cds/alerts/:id/acknowledge
type AcknowledgeRequest struct {
	AcknowledgedBy string `json:"acknowledgedBy"`
}

func (s *Server) handleRecommendations(c *gin.Context) {
	var req RecommendationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = middleware.TenantID(c)
	}
	if strings.TrimSpace(tenantID) == "" {
		s.writeError(c, domain.NewValidationError("tenantId", "tenant id is required", nil))
		return
	}

	result, err := s.engine.GenerateRecommendations(c.Request.Context(), tenantID, req.UserID, req.Context, req.Options)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleInteractions(c *gin.Context) {
	var req InteractionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	interactions, err := s.engine.CheckInteractions(req.Medications, req.Genomics)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"interactions": interactions})
}

func (s *Server) handleGetSession(c *gin.Context) {
	record, err := s.engine.GetSession(c.Request.Context(), middleware.TenantID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	filter := domain.AlertFilter{
		TenantID:  middleware.TenantID(c),
		PatientID: c.Query("patientId"),
		SessionID: c.Query("sessionId"),
	}
	if v := c.Query("unacknowledged"); v != "" {
		unacked, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(c, domain.NewValidationError("unacknowledged", "must be a boolean", v))
			return
		}
		filter.Unacknowledged = unacked
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			s.writeError(c, domain.NewValidationError("limit", "must be a non-negative integer", v))
			return
		}
		filter.Limit = limit
	}

	alerts, err := s.engine.ListAlerts(c.Request.Context(), filter)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	var req AcknowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeBindError(c, err)
		return
	}

	alert, err := s.engine.AcknowledgeAlert(c.Request.Context(), middleware.TenantID(c), c.Param("id"), req.AcknowledgedBy)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Catalog().Summary())
}

func (s *Server) handleListAudit(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	if tenantID == "" {
		s.writeError(c, domain.NewValidationError("tenantId", "tenant id is required", nil))
		return
	}

	query := compliance.AuditQuery{
		TenantID: tenantID,
		UserID:   c.Query("userId"),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.writeError(c, domain.NewValidationError("limit", "must be a positive integer", v))
			return
		}
		query.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.writeError(c, domain.NewValidationError("offset", "must be a non-negative integer", v))
			return
		}
		query.Offset = offset
	}

	events, err := s.compliance.ListAuditEvents(c.Request.Context(), query)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (s *Server) handleUsageSummary(c *gin.Context) {
	tenantID := middleware.TenantID(c)
	if tenantID == "" {
		s.writeError(c, domain.NewValidationError("tenantId", "tenant id is required", nil))
		return
	}

	since := time.Now().UTC().Add(-30 * 24 * time.Hour)
	if v := c.Query("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(c, domain.NewValidationError("since", "must be an RFC 3339 timestamp", v))
			return
		}
		since = parsed
	}

	summary, err := s.compliance.SummarizeUsage(c.Request.Context(), tenantID, since)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

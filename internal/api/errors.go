package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinical-decision-support-server/internal/domain"
	"github.com/clinical-decision-support-server/internal/middleware"
)

var statusForCode = map[string]int{
	domain.ErrValidation:     http.StatusBadRequest,
	domain.ErrNotFoundCode:   http.StatusNotFound,
	domain.ErrConflict:       http.StatusConflict,
	domain.ErrPipeline:       http.StatusInternalServerError,
	domain.ErrInternalServer: http.StatusInternalServerError,
}

// writeError maps domain errors onto HTTP statuses and APIError bodies
func (s *Server) writeError(c *gin.Context, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)

	code := domain.ErrorCode(err)
	status := statusForCode[code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	var (
		body          *domain.APIError
		validationErr *domain.ValidationError
		pipelineErr   *domain.PipelineError
	)
	switch {
	case errors.As(err, &validationErr):
		body = domain.NewAPIError(code, validationErr.Message, validationErr.Field, requestID)
	case code == domain.ErrPipeline && errors.As(err, &pipelineErr):
		body = domain.NewAPIError(code, pipelineErr.Error(), "", requestID)
	case code == domain.ErrInternalServer:
		body = domain.NewAPIError(code, "internal server error", "", requestID)
	default:
		body = domain.NewAPIError(code, err.Error(), "", requestID)
	}

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("correlation_id", requestID).Error("Request failed")
	}
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) writeBindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
		domain.ErrInvalidInput, "malformed request body", err.Error(), c.GetString(middleware.CorrelationIDKey),
	))
}

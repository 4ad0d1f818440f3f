package domain

import (
	"errors"
	"fmt"
	"time"
)

// Error codes carried in APIError bodies
const (
	ErrInvalidInput   = "INVALID_INPUT"
	ErrValidation     = "VALIDATION_ERROR"
	ErrNotFoundCode   = "NOT_FOUND"
	ErrConflict       = "CONFLICT"
	ErrRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrPipeline       = "CDS_PIPELINE_ERROR"
	ErrInternalServer = "INTERNAL_SERVER_ERROR"
)

// APIError is the error body returned by the HTTP and MCP surfaces.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAPIError stamps the body with the current UTC time
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError rejects a request before any stage runs. Field uses the JSON path
// of the offending value, e.g. "medications[0].name".
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// PipelineError wraps any failure inside the pipeline stages. The pipeline returns no
// partial result when one of these is produced.
type PipelineError struct {
	Cause error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("clinical decision support failed: %v", e.Cause)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// ErrorCode classifies err into one of the APIError codes. Validation wins over
// everything else so a bad request is never reported as a pipeline failure.
func ErrorCode(err error) string {
	var (
		validationErr *ValidationError
		pipelineErr   *PipelineError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return ErrValidation
	case errors.Is(err, ErrNotFound):
		return ErrNotFoundCode
	case errors.Is(err, ErrAlreadyAcknowledged):
		return ErrConflict
	case errors.As(err, &pipelineErr):
		return ErrPipeline
	default:
		return ErrInternalServer
	}
}

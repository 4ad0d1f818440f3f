// Package compliance stores the audit trail and usage records produced by every
// recommendation request. SQLite backs the lite server; PostgreSQL backs deployments.
package compliance

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/clinical-decision-support-server/internal/domain"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
)

// Store is both the audit sink and the usage sink handed to the engine.
type Store interface {
	domain.AuditSink
	domain.UsageSink

	// ListAuditEvents returns events newest first.
	ListAuditEvents(ctx context.Context, query AuditQuery) ([]*domain.AuditEvent, error)

	// SummarizeUsage aggregates a tenant's usage records recorded at or after since.
	SummarizeUsage(ctx context.Context, tenantID string, since time.Time) (*UsageSummary, error)

	// ExportJSON writes the full audit trail for a tenant. An empty tenant exports everything.
	ExportJSON(ctx context.Context, tenantID string, writer io.Writer) error

	Close() error
}

// AuditQuery narrows ListAuditEvents. Empty fields match everything.
type AuditQuery struct {
	TenantID string
	UserID   string
	// Limit defaults to 100 when zero; a negative limit returns every matching event.
	Limit  int
	Offset int
}

// UsageSummary is the billing view of a tenant's usage.
type UsageSummary struct {
	TenantID          string  `json:"tenantId"`
	Requests          int64   `json:"requests"`
	ComputeUnits      float64 `json:"computeUnits"`
	DataProcessed     int64   `json:"dataProcessed"`
	AvgResponseTimeMs float64 `json:"avgResponseTimeMs"`
}

// AuditExport represents the JSON export format.
type AuditExport struct {
	Version    string               `json:"version"`
	ExportedAt time.Time            `json:"exported_at"`
	TenantID   string               `json:"tenant_id,omitempty"`
	Count      int                  `json:"count"`
	Events     []*domain.AuditEvent `json:"events"`
}

// Open picks a store by driver name.
func Open(cfg domain.ComplianceConfig, databaseURL string) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLiteStore(cfg.SQLitePath)
	case DriverPostgres:
		return NewPostgresStoreFromURL(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported compliance driver: %s", cfg.Driver)
	}
}

func validateAudit(event *domain.AuditEvent) error {
	if event == nil {
		return domain.NewValidationError("event", "audit event is required", nil)
	}
	if event.Type == "" {
		return domain.NewValidationError("type", "audit event type is required", nil)
	}
	if event.Action == "" {
		return domain.NewValidationError("action", "audit event action is required", nil)
	}
	return nil
}

func validateUsage(record *domain.UsageRecord) error {
	if record == nil {
		return domain.NewValidationError("record", "usage record is required", nil)
	}
	if record.TenantID == "" {
		return domain.NewValidationError("tenantId", "tenant id is required", nil)
	}
	if record.Endpoint == "" {
		return domain.NewValidationError("endpoint", "endpoint is required", nil)
	}
	return nil
}

// pageLimit maps a zero limit to the default page size. Negative limits mean no limit
// and are returned as-is.
func pageLimit(limit int) int {
	if limit == 0 {
		return defaultListLimit
	}
	return limit
}

package compliance

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/clinical-decision-support-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL compliance store.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL compliance store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// RecordAudit appends an audit event and sets its ID.
func (s *PostgresStore) RecordAudit(ctx context.Context, event *domain.AuditEvent) error {
	if err := validateAudit(event); err != nil {
		return err
	}
	metadata, err := encodeMetadata(event.Metadata)
	if err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			event_type, user_id, tenant_id, resource, action, metadata, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query,
		event.Type,
		event.UserID,
		event.TenantID,
		event.Resource,
		event.Action,
		metadata,
		event.OccurredAt,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// RecordUsage appends a usage record and sets its ID.
func (s *PostgresStore) RecordUsage(ctx context.Context, record *domain.UsageRecord) error {
	if err := validateUsage(record); err != nil {
		return err
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO usage_records (
			tenant_id, endpoint, method, recorded_at, response_time_ms,
			status_code, data_processed, ai_model_used, compute_units
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := s.db.QueryRowContext(ctx, query,
		record.TenantID,
		record.Endpoint,
		record.Method,
		record.Timestamp,
		record.ResponseTimeMs,
		record.StatusCode,
		record.DataProcessed,
		record.AIModelUsed,
		record.ComputeUnits,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// ListAuditEvents returns audit events newest first.
func (s *PostgresStore) ListAuditEvents(ctx context.Context, query AuditQuery) ([]*domain.AuditEvent, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if query.TenantID != "" {
		args = append(args, query.TenantID)
		conditions = append(conditions, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if query.UserID != "" {
		args = append(args, query.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}

	stmt := `SELECT id, event_type, user_id, tenant_id, resource, action, metadata, occurred_at
		FROM audit_events`
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}

	var limit interface{}
	if l := pageLimit(query.Limit); l > 0 {
		limit = l
	}
	args = append(args, limit, query.Offset)
	stmt += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.AuditEvent, 0)
	for rows.Next() {
		event := &domain.AuditEvent{}
		var metadata []byte
		if err := rows.Scan(
			&event.ID, &event.Type, &event.UserID, &event.TenantID,
			&event.Resource, &event.Action, &metadata, &event.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if err := decodeMetadata(metadata, event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SummarizeUsage aggregates usage for a tenant since the given time.
func (s *PostgresStore) SummarizeUsage(ctx context.Context, tenantID string, since time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(compute_units), 0), COALESCE(SUM(data_processed), 0),
			COALESCE(AVG(response_time_ms), 0)
		FROM usage_records
		WHERE tenant_id = $1 AND recorded_at >= $2
	`, tenantID, since).Scan(
		&summary.Requests, &summary.ComputeUnits, &summary.DataProcessed, &summary.AvgResponseTimeMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return summary, nil
}

// ExportJSON exports the audit trail to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, tenantID string, writer io.Writer) error {
	events, err := s.ListAuditEvents(ctx, AuditQuery{TenantID: tenantID, Limit: -1})
	if err != nil {
		return err
	}
	return writeExport(writer, tenantID, events)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

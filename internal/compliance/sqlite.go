package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clinical-decision-support-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite. Timestamps are stored as
// UTC unix nanoseconds so range filters compare numerically.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite compliance store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single writer keeps SQLite from returning SQLITE_BUSY under concurrent requests
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		tenant_id TEXT NOT NULL DEFAULT '',
		resource TEXT NOT NULL,
		action TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		occurred_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS usage_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id TEXT NOT NULL,
		endpoint TEXT NOT NULL,
		method TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER NOT NULL,
		data_processed INTEGER NOT NULL DEFAULT 0,
		ai_model_used TEXT NOT NULL DEFAULT '',
		compute_units REAL NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_audit_tenant_time ON audit_events(tenant_id, occurred_at);
	CREATE INDEX IF NOT EXISTS idx_usage_tenant_time ON usage_records(tenant_id, recorded_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteAudit(s scanner) (*domain.AuditEvent, error) {
	event := &domain.AuditEvent{}
	var (
		metadata   string
		occurredAt int64
	)
	err := s.Scan(
		&event.ID, &event.Type, &event.UserID, &event.TenantID,
		&event.Resource, &event.Action, &metadata, &occurredAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeMetadata([]byte(metadata), event); err != nil {
		return nil, err
	}
	event.OccurredAt = time.Unix(0, occurredAt).UTC()
	return event, nil
}

// RecordAudit appends an audit event and sets its ID.
func (s *SQLiteStore) RecordAudit(ctx context.Context, event *domain.AuditEvent) error {
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

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (
			event_type, user_id, tenant_id, resource, action, metadata, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.Type,
		event.UserID,
		event.TenantID,
		event.Resource,
		event.Action,
		string(metadata),
		event.OccurredAt.UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	event.ID = id
	return nil
}

// RecordUsage appends a usage record and sets its ID.
func (s *SQLiteStore) RecordUsage(ctx context.Context, record *domain.UsageRecord) error {
	if err := validateUsage(record); err != nil {
		return err
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_records (
			tenant_id, endpoint, method, recorded_at, response_time_ms,
			status_code, data_processed, ai_model_used, compute_units
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.TenantID,
		record.Endpoint,
		record.Method,
		record.Timestamp.UTC().UnixNano(),
		record.ResponseTimeMs,
		record.StatusCode,
		record.DataProcessed,
		record.AIModelUsed,
		record.ComputeUnits,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get insert ID: %w", err)
	}
	record.ID = id
	return nil
}

// ListAuditEvents returns audit events newest first.
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, query AuditQuery) ([]*domain.AuditEvent, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if query.TenantID != "" {
		conditions = append(conditions, "tenant_id = ?")
		args = append(args, query.TenantID)
	}
	if query.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, query.UserID)
	}

	stmt := `SELECT id, event_type, user_id, tenant_id, resource, action, metadata, occurred_at
		FROM audit_events`
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}
	stmt += " ORDER BY occurred_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, pageLimit(query.Limit), query.Offset)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*domain.AuditEvent, 0)
	for rows.Next() {
		event, err := scanSQLiteAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SummarizeUsage aggregates usage for a tenant since the given time.
func (s *SQLiteStore) SummarizeUsage(ctx context.Context, tenantID string, since time.Time) (*UsageSummary, error) {
	summary := &UsageSummary{TenantID: tenantID}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(compute_units), 0), COALESCE(SUM(data_processed), 0),
			COALESCE(AVG(response_time_ms), 0)
		FROM usage_records
		WHERE tenant_id = ? AND recorded_at >= ?
	`, tenantID, since.UTC().UnixNano()).Scan(
		&summary.Requests, &summary.ComputeUnits, &summary.DataProcessed, &summary.AvgResponseTimeMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return summary, nil
}

// ExportJSON exports the audit trail to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, tenantID string, writer io.Writer) error {
	events, err := s.ListAuditEvents(ctx, AuditQuery{TenantID: tenantID, Limit: -1})
	if err != nil {
		return err
	}
	return writeExport(writer, tenantID, events)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeMetadata(metadata map[string]any) ([]byte, error) {
	if len(metadata) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte, event *domain.AuditEvent) error {
	var metadata map[string]any
	if err := json.Unmarshal(data, &metadata); err != nil {
		return fmt.Errorf("failed to decode audit metadata: %w", err)
	}
	if len(metadata) > 0 {
		event.Metadata = metadata
	}
	return nil
}

func writeExport(writer io.Writer, tenantID string, events []*domain.AuditEvent) error {
	export := AuditExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		TenantID:   tenantID,
		Count:      len(events),
		Events:     events,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

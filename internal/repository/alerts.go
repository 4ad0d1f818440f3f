// Package repository persists clinical alerts so acknowledgment outlives the request that
// generated them.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

const alertColumns = `id, tenant_id, patient_id, session_id, alert_type, severity, message,
	action_required, generated_at, acknowledged_by, acknowledged_at`

// AlertRepository stores alerts in PostgreSQL
type AlertRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *pgxpool.Pool, logger *logrus.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: logger,
	}
}

// SaveAlerts inserts a batch of alerts. Alerts already stored under the same id are left
// untouched so a retried save cannot reset an acknowledgment.
func (r *AlertRepository) SaveAlerts(ctx context.Context, alerts []domain.ClinicalAlert) error {
	if len(alerts) == 0 {
		return nil
	}

	query := `
		INSERT INTO clinical_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for i := range alerts {
		a := &alerts[i]
		batch.Queue(query,
			a.ID, a.TenantID, a.PatientID, a.SessionID,
			string(a.Type), string(a.Severity), a.Message, a.ActionRequired,
			a.GeneratedAt, a.AcknowledgedBy, a.AcknowledgedAt,
		)
	}

	results := r.db.SendBatch(ctx, batch)
	for i := range alerts {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			r.log.WithFields(logrus.Fields{
				"alert_id":   alerts[i].ID,
				"session_id": alerts[i].SessionID,
				"error":      err,
			}).Error("Failed to save alert")
			return fmt.Errorf("saving alert %s: %w", alerts[i].ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing alert batch: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"count":      len(alerts),
		"session_id": alerts[0].SessionID,
	}).Debug("Alerts saved")
	return nil
}

// GetAlert retrieves an alert by id
func (r *AlertRepository) GetAlert(ctx context.Context, id string) (*domain.ClinicalAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM clinical_alerts WHERE id = $1`

	alert, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"alert_id": id,
			"error":    err,
		}).Error("Failed to get alert")
		return nil, fmt.Errorf("getting alert: %w", err)
	}
	return alert, nil
}

// ListAlerts returns alerts matching the filter, newest first
func (r *AlertRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.ClinicalAlert, error) {
	var (
		conditions []string
		args       []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(clause, len(args)))
	}

	if filter.TenantID != "" {
		add("tenant_id = $%d", filter.TenantID)
	}
	if filter.PatientID != "" {
		add("patient_id = $%d", filter.PatientID)
	}
	if filter.SessionID != "" {
		add("session_id = $%d", filter.SessionID)
	}
	if filter.Unacknowledged {
		conditions = append(conditions, "acknowledged_at IS NULL")
	}

	query := `SELECT ` + alertColumns + ` FROM clinical_alerts`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY generated_at DESC, id LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]domain.ClinicalAlert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating alerts: %w", err)
	}
	return alerts, nil
}

// Acknowledge marks an alert as seen. The update only applies to unacknowledged rows, so
// two concurrent acknowledgments cannot both succeed.
func (r *AlertRepository) Acknowledge(ctx context.Context, id, acknowledgedBy string, at time.Time) (*domain.ClinicalAlert, error) {
	query := `
		UPDATE clinical_alerts
		SET acknowledged_by = $2, acknowledged_at = $3
		WHERE id = $1 AND acknowledged_at IS NULL
		RETURNING ` + alertColumns

	alert, err := scanAlert(r.db.QueryRow(ctx, query, id, acknowledgedBy, at))
	if err == nil {
		r.log.WithFields(logrus.Fields{
			"alert_id":        id,
			"acknowledged_by": acknowledgedBy,
		}).Info("Alert acknowledged")
		return alert, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("acknowledging alert: %w", err)
	}

	if _, err := r.GetAlert(ctx, id); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("alert %s: %w", id, domain.ErrAlreadyAcknowledged)
}

func scanAlert(row pgx.Row) (*domain.ClinicalAlert, error) {
	var (
		alert          domain.ClinicalAlert
		alertType, sev string
	)
	err := row.Scan(
		&alert.ID,
		&alert.TenantID,
		&alert.PatientID,
		&alert.SessionID,
		&alertType,
		&sev,
		&alert.Message,
		&alert.ActionRequired,
		&alert.GeneratedAt,
		&alert.AcknowledgedBy,
		&alert.AcknowledgedAt,
	)
	if err != nil {
		return nil, err
	}
	alert.Type = domain.AlertType(alertType)
	alert.Severity = domain.AlertSeverity(sev)
	return &alert, nil
}

func listLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

package domain

import (
	"context"
	"time"
)

// SessionStore caches session records. Records are write-once and expire by TTL;
// there is no delete path.
type SessionStore interface {
	SaveSession(ctx context.Context, record *SessionRecord, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
}

// AlertRepository persists alerts so acknowledgment can outlive the request.
type AlertRepository interface {
	SaveAlerts(ctx context.Context, alerts []ClinicalAlert) error
	GetAlert(ctx context.Context, id string) (*ClinicalAlert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]ClinicalAlert, error)
	Acknowledge(ctx context.Context, id, acknowledgedBy string, at time.Time) (*ClinicalAlert, error)
}

// AlertFilter narrows ListAlerts. Empty fields match everything.
type AlertFilter struct {
	TenantID       string
	PatientID      string
	SessionID      string
	Unacknowledged bool
	Limit          int
}

// AuditSink is the compliance logger collaborator.
type AuditSink interface {
	RecordAudit(ctx context.Context, event *AuditEvent) error
}

// UsageSink is the usage-metering collaborator.
type UsageSink interface {
	RecordUsage(ctx context.Context, record *UsageRecord) error
}

// AlertNotifier pushes freshly generated alerts to live subscribers.
type AlertNotifier interface {
	Notify(alerts []ClinicalAlert)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetCDSConfig() *CDSConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}

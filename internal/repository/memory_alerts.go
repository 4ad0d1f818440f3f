package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clinical-decision-support-server/internal/domain"
)

// MemoryAlertRepository keeps alerts in process memory. It backs the lite server and tests
// and follows the same acknowledgment rules as AlertRepository.
type MemoryAlertRepository struct {
	mu     sync.RWMutex
	alerts map[string]domain.ClinicalAlert
}

// NewMemoryAlertRepository creates an empty repository
func NewMemoryAlertRepository() *MemoryAlertRepository {
	return &MemoryAlertRepository{alerts: make(map[string]domain.ClinicalAlert)}
}

// SaveAlerts stores copies of the alerts; existing ids are kept as they are
func (r *MemoryAlertRepository) SaveAlerts(_ context.Context, alerts []domain.ClinicalAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range alerts {
		if a.ID == "" {
			return domain.NewValidationError("id", "alert id is required", nil)
		}
		if _, exists := r.alerts[a.ID]; exists {
			continue
		}
		r.alerts[a.ID] = copyAlert(a)
	}
	return nil
}

// GetAlert returns a copy of the stored alert
func (r *MemoryAlertRepository) GetAlert(_ context.Context, id string) (*domain.ClinicalAlert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
	}
	out := copyAlert(a)
	return &out, nil
}

// ListAlerts returns matching alerts, newest first
func (r *MemoryAlertRepository) ListAlerts(_ context.Context, filter domain.AlertFilter) ([]domain.ClinicalAlert, error) {
	r.mu.RLock()
	out := make([]domain.ClinicalAlert, 0)
	for _, a := range r.alerts {
		if filter.TenantID != "" && a.TenantID != filter.TenantID {
			continue
		}
		if filter.PatientID != "" && a.PatientID != filter.PatientID {
			continue
		}
		if filter.SessionID != "" && a.SessionID != filter.SessionID {
			continue
		}
		if filter.Unacknowledged && a.Acknowledged() {
			continue
		}
		out = append(out, copyAlert(a))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].GeneratedAt.Equal(out[j].GeneratedAt) {
			return out[i].GeneratedAt.After(out[j].GeneratedAt)
		}
		return out[i].ID < out[j].ID
	})

	if limit := listLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Acknowledge marks the alert once; a second call returns domain.ErrAlreadyAcknowledged
func (r *MemoryAlertRepository) Acknowledge(_ context.Context, id, acknowledgedBy string, at time.Time) (*domain.ClinicalAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
	}
	if a.Acknowledged() {
		return nil, fmt.Errorf("alert %s: %w", id, domain.ErrAlreadyAcknowledged)
	}

	by := acknowledgedBy
	when := at
	a.AcknowledgedBy = &by
	a.AcknowledgedAt = &when
	r.alerts[id] = a

	out := copyAlert(a)
	return &out, nil
}

func copyAlert(a domain.ClinicalAlert) domain.ClinicalAlert {
	if a.AcknowledgedBy != nil {
		by := *a.AcknowledgedBy
		a.AcknowledgedBy = &by
	}
	if a.AcknowledgedAt != nil {
		at := *a.AcknowledgedAt
		a.AcknowledgedAt = &at
	}
	return a
}

package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// scenarioA is a 70-year-old with chest pain and an abnormal troponin.
func scenarioA() *domain.ClinicalContext {
	return &domain.ClinicalContext{
		PatientID:    "patient-a",
		Demographics: domain.Demographics{Age: 70, Sex: "male"},
		Symptoms:     []string{"chest pain"},
		LabResults: []domain.LabResult{
			{TestName: "Troponin I", Value: 0.5, Unit: "ng/mL", ReferenceRange: "<0.04", Abnormal: true},
		},
	}
}

// septicContext fires every sepsis rule.
func septicContext() *domain.ClinicalContext {
	return &domain.ClinicalContext{
		PatientID:    "patient-s",
		Demographics: domain.Demographics{Age: 45},
		Vitals: domain.Vitals{
			Temperature: floatPtr(39.2),
			HeartRate:   intPtr(118),
		},
		Symptoms: []string{"fever", "chills", "confusion", "rapid breathing"},
		LabResults: []domain.LabResult{
			{TestName: "WBC", Value: 18000, Unit: "cells/uL", Abnormal: true},
			{TestName: "Lactate", Value: 4.1, Unit: "mmol/L", Abnormal: true},
		},
	}
}

func defaultCatalog() *catalog.Catalog {
	return catalog.MustDefault()
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) SaveSession(ctx context.Context, record *domain.SessionRecord, ttl time.Duration) error {
	args := m.Called(ctx, record, ttl)
	return args.Error(0)
}

func (m *mockSessionStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	args := m.Called(ctx, sessionID)
	if rec, ok := args.Get(0).(*domain.SessionRecord); ok {
		return rec, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAlertRepository struct{ mock.Mock }

func (m *mockAlertRepository) SaveAlerts(ctx context.Context, alerts []domain.ClinicalAlert) error {
	args := m.Called(ctx, alerts)
	return args.Error(0)
}

func (m *mockAlertRepository) GetAlert(ctx context.Context, id string) (*domain.ClinicalAlert, error) {
	args := m.Called(ctx, id)
	if a, ok := args.Get(0).(*domain.ClinicalAlert); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAlertRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.ClinicalAlert, error) {
	args := m.Called(ctx, filter)
	if a, ok := args.Get(0).([]domain.ClinicalAlert); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAlertRepository) Acknowledge(ctx context.Context, id, acknowledgedBy string, at time.Time) (*domain.ClinicalAlert, error) {
	args := m.Called(ctx, id, acknowledgedBy, at)
	if a, ok := args.Get(0).(*domain.ClinicalAlert); ok {
		return a, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAuditSink struct{ mock.Mock }

func (m *mockAuditSink) RecordAudit(ctx context.Context, event *domain.AuditEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type mockUsageSink struct{ mock.Mock }

func (m *mockUsageSink) RecordUsage(ctx context.Context, record *domain.UsageRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Notify(alerts []domain.ClinicalAlert) {
	m.Called(alerts)
}

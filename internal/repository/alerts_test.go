package repository

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clinical-decision-support-server/internal/database"
	"github.com/clinical-decision-support-server/internal/domain"
)

func setupAlertRepository(t *testing.T) *AlertRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("cds_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	config := database.Config{
		Host:     host,
		Port:     port.Int(),
		Database: "cds_test",
		Username: "testuser",
		Password: "testpass",
		MaxConns: 5,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	runner, err := database.NewMigrationRunner(config.URL(), logger)
	require.NoError(t, err)
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())

	db, err := database.NewConnection(ctx, config, logger)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	return NewAlertRepository(db.Pool, logger)
}

func TestAlertRepository_Postgres(t *testing.T) {
	repo := setupAlertRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveAlerts(ctx, sampleAlerts()))
	require.NoError(t, repo.SaveAlerts(ctx, nil))

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetAlert(ctx, "a-1")
		require.NoError(t, err)
		assert.Equal(t, domain.AlertTypeSafety, got.Type)
		assert.Equal(t, "High risk of sepsis detected (82%)", got.Message)
		assert.True(t, got.GeneratedAt.Equal(baseTime))
		assert.Nil(t, got.AcknowledgedAt)

		_, err = repo.GetAlert(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		alerts, err := repo.ListAlerts(ctx, domain.AlertFilter{TenantID: "t-1", PatientID: "p-1"})
		require.NoError(t, err)
		require.Len(t, alerts, 2)
		assert.Equal(t, "a-2", alerts[0].ID)
		assert.Equal(t, "a-1", alerts[1].ID)
	})

	t.Run("acknowledge once", func(t *testing.T) {
		at := baseTime.Add(time.Hour)
		acked, err := repo.Acknowledge(ctx, "a-2", "dr.smith", at)
		require.NoError(t, err)
		require.NotNil(t, acked.AcknowledgedBy)
		assert.Equal(t, "dr.smith", *acked.AcknowledgedBy)
		assert.True(t, acked.AcknowledgedAt.Equal(at))

		_, err = repo.Acknowledge(ctx, "a-2", "nurse.jones", at)
		assert.ErrorIs(t, err, domain.ErrAlreadyAcknowledged)

		_, err = repo.Acknowledge(ctx, "missing", "dr.smith", at)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		pending, err := repo.ListAlerts(ctx, domain.AlertFilter{TenantID: "t-1", Unacknowledged: true})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "a-1", pending[0].ID)
	})

	t.Run("resave keeps acknowledgment", func(t *testing.T) {
		require.NoError(t, repo.SaveAlerts(ctx, sampleAlerts()))
		got, err := repo.GetAlert(ctx, "a-2")
		require.NoError(t, err)
		assert.True(t, got.Acknowledged())
	})
}

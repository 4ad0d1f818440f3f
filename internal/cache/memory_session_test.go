package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-decision-support-server/internal/domain"
)

func sampleRecord(id string) *domain.SessionRecord {
	return &domain.SessionRecord{
		SessionID: id,
		TenantID:  "tenant-1",
		Context: &domain.ClinicalContext{
			PatientID: "patient-1",
			Symptoms:  []string{"chest pain"},
		},
		Result: &domain.CDSResult{
			SessionID: id,
			RiskPredictions: []domain.RiskPrediction{
				{Condition: "myocardial infarction", RiskScore: 0.9, Timeframe: domain.Timeframe24Hours},
			},
		},
		ProcessingTimeMs: 12,
		CreatedAt:        time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemorySessionStore_SaveAndGet(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, sampleRecord("s-1"), time.Minute))

	got, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, "patient-1", got.Context.PatientID)
	require.Len(t, got.Result.RiskPredictions, 1)
	assert.Equal(t, 0.9, got.Result.RiskPredictions[0].RiskScore)
	assert.True(t, got.CreatedAt.Equal(sampleRecord("s-1").CreatedAt))
}

func TestMemorySessionStore_WriteOnce(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, sampleRecord("s-1"), time.Minute))

	second := sampleRecord("s-1")
	second.TenantID = "tenant-2"
	err := store.SaveSession(ctx, second, time.Minute)
	assert.ErrorIs(t, err, domain.ErrSessionExists)

	got, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", got.TenantID)
}

func TestMemorySessionStore_ReturnsCopies(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	ctx := context.Background()

	record := sampleRecord("s-1")
	require.NoError(t, store.SaveSession(ctx, record, time.Minute))
	record.TenantID = "mutated"

	got, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	got.Context.Symptoms[0] = "mutated"

	again, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", again.TenantID)
	assert.Equal(t, "chest pain", again.Context.Symptoms[0])
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	store := NewMemorySessionStore(10, time.Hour)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SaveSession(ctx, sampleRecord("s-1"), time.Minute))

	now = now.Add(59 * time.Second)
	_, err := store.GetSession(ctx, "s-1")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.GetSession(ctx, "s-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// an expired id may be written again
	assert.NoError(t, store.SaveSession(ctx, sampleRecord("s-1"), time.Minute))
}

func TestMemorySessionStore_EvictsLeastRecentlyUsed(t *testing.T) {
	store := NewMemorySessionStore(2, time.Hour)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, store.SaveSession(ctx, sampleRecord(fmt.Sprintf("s-%d", i)), time.Minute))
	}

	assert.Equal(t, 2, store.Len())
	_, err := store.GetSession(ctx, "s-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetSession(ctx, "s-3")
	assert.NoError(t, err)
}

func TestMemorySessionStore_Validation(t *testing.T) {
	store := NewMemorySessionStore(0, 0)

	err := store.SaveSession(context.Background(), &domain.SessionRecord{}, time.Minute)
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = store.GetSession(context.Background(), "unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

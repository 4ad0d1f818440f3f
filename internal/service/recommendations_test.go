package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-decision-support-server/internal/domain"
)

func diagnosis(condition string, p float64, urgency domain.Urgency, steps ...string) domain.DifferentialDiagnosis {
	return domain.DifferentialDiagnosis{Condition: condition, Probability: p, Urgency: urgency, NextSteps: steps}
}

func TestRecommendationGenerator_EscalatesOnHighRisk(t *testing.T) {
	gen := NewRecommendationGenerator(newTestLogger(), defaultCatalog(), 0.7)

	recs := gen.Generate(
		[]domain.DifferentialDiagnosis{
			diagnosis("myocardial infarction", 0.38, domain.UrgencyRoutine, "ECG", "Troponin", "Cardiology"),
			diagnosis("angina", 0.23, domain.UrgencyRoutine, "ECG"),
		},
		[]domain.RiskPrediction{{Condition: "myocardial infarction", RiskScore: 0.9}},
		0,
	)

	require.Len(t, recs, 1)
	r := recs[0]
	assert.Equal(t, "rec-1-myocardial-infarction", r.ID)
	assert.Equal(t, domain.RecommendationDiagnostic, r.Type)
	assert.Equal(t, domain.PriorityCritical, r.Priority)
	assert.Equal(t, "immediate", r.Timeframe)
	assert.Equal(t, 0.38, r.Confidence)
	assert.Equal(t, []string{"Troponin", "Cardiology"}, r.Alternatives)
	assert.Empty(t, r.Contraindications)

	assert.Equal(t, "B", r.Evidence.EvidenceLevel)
	assert.Equal(t, 0.38, r.Evidence.AIModelConfidence)
	assert.Equal(t, 38, r.Evidence.SimilarCases)
	assert.Empty(t, r.Evidence.PubMedIDs)
	assert.NotNil(t, r.Evidence.PubMedIDs)
	assert.False(t, r.Evidence.ExpertConsensus)
	require.Len(t, r.Evidence.Guidelines, 1)
	assert.Contains(t, r.Evidence.Guidelines[0], "Chest Pain")
}

func TestRecommendationGenerator_Priority(t *testing.T) {
	gen := NewRecommendationGenerator(newTestLogger(), defaultCatalog(), 0.7)

	tests := []struct {
		name  string
		dx    domain.DifferentialDiagnosis
		risks []domain.RiskPrediction
		want  domain.Priority
	}{
		{"emergent", diagnosis("sepsis", 0.8, domain.UrgencyEmergent), nil, domain.PriorityCritical},
		{"routine without risk", diagnosis("pneumonia", 0.5, domain.UrgencyRoutine), nil, domain.PriorityHigh},
		{"risk at threshold", diagnosis("sepsis", 0.45, domain.UrgencyRoutine),
			[]domain.RiskPrediction{{Condition: "sepsis", RiskScore: 0.7}}, domain.PriorityHigh},
		{"risk for another condition", diagnosis("pneumonia", 0.45, domain.UrgencyRoutine),
			[]domain.RiskPrediction{{Condition: "sepsis", RiskScore: 0.95}}, domain.PriorityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := gen.Generate([]domain.DifferentialDiagnosis{tt.dx}, tt.risks, 0)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].Priority)
		})
	}
}

func TestRecommendationGenerator_ProbabilityCutoff(t *testing.T) {
	gen := NewRecommendationGenerator(newTestLogger(), defaultCatalog(), 0.7)

	recs := gen.Generate([]domain.DifferentialDiagnosis{
		diagnosis("pneumonia", 0.3, domain.UrgencyRoutine),
		diagnosis("bronchitis", 0.2, domain.UrgencyRoutine),
	}, nil, 0)

	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestRecommendationGenerator_OnlyTopThree(t *testing.T) {
	gen := NewRecommendationGenerator(newTestLogger(), defaultCatalog(), 0.7)

	dx := []domain.DifferentialDiagnosis{
		diagnosis("sepsis", 0.9, domain.UrgencyEmergent),
		diagnosis("infection", 0.6, domain.UrgencyRoutine),
		diagnosis("pneumonia", 0.2, domain.UrgencyRoutine),
		diagnosis("appendicitis", 0.19, domain.UrgencyRoutine),
		diagnosis("cholecystitis", 0.18, domain.UrgencyRoutine),
	}
	recs := gen.Generate(dx, nil, 0)

	require.Len(t, recs, 2)
	assert.Equal(t, "rec-1-sepsis", recs[0].ID)
	assert.Equal(t, "rec-2-infection", recs[1].ID)

	dx[2].Probability, dx[3].Probability = 0.5, 0.5
	recs = gen.Generate(dx, nil, 0)
	assert.Len(t, recs, 3)
}

func TestRecommendationGenerator_Limit(t *testing.T) {
	gen := NewRecommendationGenerator(newTestLogger(), defaultCatalog(), 0.7)

	dx := []domain.DifferentialDiagnosis{
		diagnosis("sepsis", 0.9, domain.UrgencyEmergent),
		diagnosis("infection", 0.6, domain.UrgencyRoutine),
		diagnosis("pneumonia", 0.5, domain.UrgencyRoutine),
	}

	assert.Len(t, gen.Generate(dx, nil, 1), 1)
	assert.Len(t, gen.Generate(dx, nil, 2), 2)
	assert.Len(t, gen.Generate(dx, nil, 0), 3)
	assert.Len(t, gen.Generate(dx, nil, -4), 3)
}

func TestRecommendationGenerator_Deterministic(t *testing.T) {
	gen := NewRecommendationGenerator(newTestLogger(), defaultCatalog(), 0.7)
	dx := []domain.DifferentialDiagnosis{
		diagnosis("upper respiratory infection", 0.5, domain.UrgencyRoutine, "Symptomatic care"),
	}

	first := gen.Generate(dx, nil, 0)
	second := gen.Generate(dx, nil, 0)

	assert.Equal(t, first, second)
	assert.Equal(t, "rec-1-upper-respiratory-infection", first[0].ID)
	assert.Empty(t, first[0].Alternatives)
	assert.NotNil(t, first[0].Alternatives)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "myocardial-infarction", slug("Myocardial Infarction"))
	assert.Equal(t, "covid-19", slug("  COVID-19  "))
	assert.Equal(t, "a-b", slug("a / b!"))
	assert.Equal(t, "", slug("--"))
}

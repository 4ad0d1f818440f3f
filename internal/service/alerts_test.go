package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-decision-support-server/internal/domain"
)

func TestAlertGenerator_RiskAboveThreshold(t *testing.T) {
	gen := NewAlertGenerator(newTestLogger(), 0.7, fixedClock)

	alerts := gen.Generate([]domain.RiskPrediction{
		{Condition: "sepsis", RiskScore: 0.85},
		{Condition: "myocardial infarction", RiskScore: 0.7},
		{Condition: "falls", RiskScore: 0.3},
	}, nil)

	require.Len(t, alerts, 1)
	a := alerts[0]
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, domain.AlertTypeSafety, a.Type)
	assert.Equal(t, domain.AlertWarning, a.Severity)
	assert.Equal(t, "High risk of sepsis detected (85%)", a.Message)
	assert.True(t, a.ActionRequired)
	assert.Equal(t, fixedNow, a.GeneratedAt)
	assert.False(t, a.Acknowledged())
}

func TestAlertGenerator_Interactions(t *testing.T) {
	gen := NewAlertGenerator(newTestLogger(), 0.7, fixedClock)

	alerts := gen.Generate(nil, []domain.DrugInteraction{
		{Drug1: "codeine", Drug2: "CYP2D6", Severity: domain.SeverityContraindicated, ClinicalEffect: "Opioid toxicity"},
		{Drug1: "warfarin", Drug2: "aspirin", Severity: domain.SeverityMajor, ClinicalEffect: "Increased risk of major bleeding"},
		{Drug1: "a", Drug2: "b", Severity: domain.SeverityModerate},
		{Drug1: "c", Drug2: "d", Severity: domain.SeverityMinor},
	})

	require.Len(t, alerts, 2)
	assert.Equal(t, domain.AlertTypeDrugInteraction, alerts[0].Type)
	assert.Equal(t, domain.AlertCritical, alerts[0].Severity)
	assert.Equal(t, "Contraindicated interaction between codeine and CYP2D6: Opioid toxicity", alerts[0].Message)
	assert.Equal(t, domain.AlertWarning, alerts[1].Severity)
	assert.Equal(t, "Major interaction between warfarin and aspirin: Increased risk of major bleeding", alerts[1].Message)
	assert.NotEqual(t, alerts[0].ID, alerts[1].ID)
}

func TestAlertGenerator_Defaults(t *testing.T) {
	gen := NewAlertGenerator(newTestLogger(), 0, nil)

	assert.Equal(t, DefaultAlertThreshold, gen.threshold)
	assert.NotNil(t, gen.now)

	alerts := gen.Generate(nil, nil)
	assert.NotNil(t, alerts)
	assert.Empty(t, alerts)
}

func TestAlertGenerator_CustomThreshold(t *testing.T) {
	gen := NewAlertGenerator(newTestLogger(), 0.5, fixedClock)

	alerts := gen.Generate([]domain.RiskPrediction{{Condition: "sepsis", RiskScore: 0.6}}, nil)

	require.Len(t, alerts, 1)
	assert.Equal(t, "High risk of sepsis detected (60%)", alerts[0].Message)
}

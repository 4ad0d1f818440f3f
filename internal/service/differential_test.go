package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

func TestDifferentialGenerator_ChestPainWithTroponin(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	dx := gen.Generate(scenarioA())

	require.Len(t, dx, 3)
	assert.Equal(t, "myocardial infarction", dx[0].Condition)
	assert.InDelta(t, 0.38, dx[0].Probability, 1e-9)
	assert.Greater(t, dx[0].Probability, 0.3)
	assert.Equal(t, domain.UrgencyRoutine, dx[0].Urgency)
	assert.Contains(t, dx[0].SupportingEvidence, "chest pain reported")
	assert.Contains(t, dx[0].SupportingEvidence, "abnormal Troponin I")
	assert.Contains(t, dx[0].ContradictingEvidence, "diaphoresis not reported")
	assert.Equal(t, "Obtain 12-lead ECG within 10 minutes", dx[0].NextSteps[0])

	assert.Equal(t, "angina", dx[1].Condition)
	assert.InDelta(t, 0.1+0.4/3, dx[1].Probability, 1e-9)
	assert.Equal(t, "pulmonary embolism", dx[2].Condition)
	assert.InDelta(t, 0.18, dx[2].Probability, 1e-9)
}

func TestDifferentialGenerator_EmergentSepsis(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	dx := gen.Generate(septicContext())

	require.NotEmpty(t, dx)
	assert.Equal(t, "sepsis", dx[0].Condition)
	// 4 of 5 known symptoms plus one lab adjustment for WBC and lactate: 0.1 + 0.32 + 0.2
	assert.InDelta(t, 0.62, dx[0].Probability, 1e-9)
	assert.Equal(t, domain.UrgencyEmergent, dx[0].Urgency)
	assert.Contains(t, dx[0].SupportingEvidence, "abnormal WBC")
	assert.Contains(t, dx[0].SupportingEvidence, "abnormal Lactate")

	for _, d := range dx[1:] {
		assert.Equal(t, domain.UrgencyRoutine, d.Urgency, d.Condition)
	}
}

func TestDifferentialGenerator_LabSupportCountsOncePerCondition(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	dx := gen.Generate(&domain.ClinicalContext{
		Symptoms: []string{"chest pain", "shortness of breath", "diaphoresis", "nausea", "arm pain"},
		LabResults: []domain.LabResult{
			{TestName: "troponin I", Abnormal: true},
			{TestName: "troponin T", Abnormal: true},
			{TestName: "hs-troponin", Abnormal: true},
		},
	})

	require.NotEmpty(t, dx)
	assert.Equal(t, "myocardial infarction", dx[0].Condition)
	assert.InDelta(t, 0.7, dx[0].Probability, 1e-9)
	assert.Equal(t, domain.UrgencyEmergent, dx[0].Urgency)
	assert.Len(t, dx[0].SupportingEvidence, 8)
}

func TestDifferentialGenerator_RepeatedLabsCannotMakeConditionEmergent(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	dx := gen.Generate(&domain.ClinicalContext{
		Symptoms: []string{"fever"},
		LabResults: []domain.LabResult{
			{TestName: "WBC", Value: 19000, Abnormal: true},
			{TestName: "WBC repeat", Value: 21000, Abnormal: true},
		},
	})

	require.NotEmpty(t, dx)
	byName := make(map[string]domain.DifferentialDiagnosis, len(dx))
	for _, d := range dx {
		assert.Equal(t, domain.UrgencyRoutine, d.Urgency, d.Condition)
		byName[d.Condition] = d
	}
	// one of five known symptoms plus a single lab adjustment: 0.1 + 0.08 + 0.2
	require.Contains(t, byName, "sepsis")
	assert.InDelta(t, 0.38, byName["sepsis"].Probability, 1e-9)
}

func TestDifferentialGenerator_OnlyFirstThreeSymptomsSelectCandidates(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	dx := gen.Generate(&domain.ClinicalContext{
		Symptoms: []string{"itching", "dizziness", "back pain", "chest pain"},
	})

	assert.NotNil(t, dx)
	assert.Empty(t, dx)
}

func TestDifferentialGenerator_SymptomMatchingIsCaseInsensitive(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	dx := gen.Generate(&domain.ClinicalContext{Symptoms: []string{"  Chest Pain "}})

	require.NotEmpty(t, dx)
	assert.Equal(t, "angina", dx[0].Condition)
}

func TestDifferentialGenerator_TruncatesToTen(t *testing.T) {
	var b strings.Builder
	b.WriteString("version: test\nsymptom_conditions:\n  x: [")
	for i := 1; i <= 12; i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "c%02d", i)
	}
	b.WriteString("]\nconditions:\n")
	for i := 1; i <= 12; i++ {
		fmt.Fprintf(&b, "  - {name: c%02d, symptoms: [x], guideline: g, next_steps: [s]}\n", i)
	}
	cat, err := catalog.Parse([]byte(b.String()))
	require.NoError(t, err)

	gen := NewDifferentialGenerator(newTestLogger(), cat)
	dx := gen.Generate(&domain.ClinicalContext{Symptoms: []string{"x"}})

	require.Len(t, dx, 10)
	assert.Equal(t, "c01", dx[0].Condition)
	assert.Equal(t, "c10", dx[9].Condition)
}

func TestDifferentialGenerator_SkipsConditionsWithoutProfile(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
version: test
symptom_conditions:
  rash: [measles, unknown]
conditions:
  - {name: measles, symptoms: [rash, fever], guideline: g, next_steps: [serology]}
`))
	require.NoError(t, err)

	gen := NewDifferentialGenerator(newTestLogger(), cat)
	dx := gen.Generate(&domain.ClinicalContext{Symptoms: []string{"rash"}})

	require.Len(t, dx, 1)
	assert.Equal(t, "measles", dx[0].Condition)
	assert.InDelta(t, 0.3, dx[0].Probability, 1e-9)
}

func TestDifferentialGenerator_SortedAndInRange(t *testing.T) {
	gen := NewDifferentialGenerator(newTestLogger(), defaultCatalog())

	inputs := [][]string{
		{"fever", "cough", "shortness of breath"},
		{"headache", "abdominal pain"},
		{"cough"},
		{"fever", "fever", "fever"},
	}
	for _, symptoms := range inputs {
		dx := gen.Generate(&domain.ClinicalContext{Symptoms: symptoms})
		assert.LessOrEqual(t, len(dx), 10)
		for i, d := range dx {
			assert.GreaterOrEqual(t, d.Probability, 0.0)
			assert.LessOrEqual(t, d.Probability, 1.0)
			if i > 0 {
				assert.GreaterOrEqual(t, dx[i-1].Probability, d.Probability)
			}
		}
	}
}

package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestVitalsCount(t *testing.T) {
	assert.Equal(t, 0, Vitals{}.Count())

	v := Vitals{
		Temperature:      floatPtr(37.2),
		HeartRate:        intPtr(80),
		BloodPressure:    &BloodPressure{Systolic: 120, Diastolic: 80},
		RespiratoryRate:  intPtr(16),
		OxygenSaturation: floatPtr(98),
	}
	assert.Equal(t, 5, v.Count())
}

func TestClinicalContextValidate(t *testing.T) {
	tests := []struct {
		name      string
		ctx       *ClinicalContext
		wantField string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			wantField: "context",
		},
		{
			name: "empty context is valid",
			ctx:  &ClinicalContext{},
		},
		{
			name:      "negative age",
			ctx:       &ClinicalContext{Demographics: Demographics{Age: -3}},
			wantField: "demographics.age",
		},
		{
			name:      "negative heart rate",
			ctx:       &ClinicalContext{Vitals: Vitals{HeartRate: intPtr(-1)}},
			wantField: "vitals.heartRate",
		},
		{
			name:      "oxygen saturation above 100",
			ctx:       &ClinicalContext{Vitals: Vitals{OxygenSaturation: floatPtr(101)}},
			wantField: "vitals.oxygenSaturation",
		},
		{
			name:      "blank medication",
			ctx:       &ClinicalContext{Medications: []Medication{{Name: "warfarin"}, {Name: "  "}}},
			wantField: "medications[1].name",
		},
		{
			name:      "blank lab name",
			ctx:       &ClinicalContext{LabResults: []LabResult{{Value: 3}}},
			wantField: "labResults[0].testName",
		},
		{
			name: "unknown pharmacogenomic severity",
			ctx: &ClinicalContext{Genomics: &GenomicData{
				Pharmacogenomics: []PharmacogenomicAnnotation{{Gene: "CYP2C19", Drug: "clopidogrel", Severity: "bad"}},
			}},
			wantField: "genomics.pharmacogenomics[0].severity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ctx.Validate()
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.wantField, vErr.Field)
		})
	}
}

func TestAlertAcknowledged(t *testing.T) {
	alert := &ClinicalAlert{}
	assert.False(t, alert.Acknowledged())
}

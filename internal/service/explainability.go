package service

import (
	"strconv"
	"strings"

	"github.com/clinical-decision-support-server/internal/domain"
)

// Explainer assembles the audit trace of a pipeline run
type Explainer struct {
	versions domain.VersionInfo
}

// NewExplainer creates an explainer that stamps every report with the given versions
func NewExplainer(versions domain.VersionInfo) *Explainer {
	return &Explainer{versions: versions}
}

// Explain summarizes inputs and outputs. Overall confidence is the mean of recommendation
// confidences and diagnosis probabilities, or nil when there is nothing to average.
func (e *Explainer) Explain(
	clinical *domain.ClinicalContext,
	risks []domain.RiskPrediction,
	diagnoses []domain.DifferentialDiagnosis,
	recommendations []domain.ClinicalRecommendation,
) domain.ExplainabilityReport {
	primary := clinical.Symptoms
	if len(primary) > maxConsideredSymptoms {
		primary = primary[:maxConsideredSymptoms]
	}

	abnormal := make([]string, 0)
	for _, lab := range clinical.LabResults {
		if lab.Abnormal {
			abnormal = append(abnormal, labSummary(lab))
		}
	}

	riskFactors := make([]string, 0)
	for _, r := range risks {
		for _, f := range r.RiskFactors {
			riskFactors = append(riskFactors, f.Name)
		}
	}

	perRecommendation := make([]float64, 0, len(recommendations))
	sum := 0.0
	for _, rec := range recommendations {
		perRecommendation = append(perRecommendation, rec.Confidence)
		sum += rec.Confidence
	}
	for _, dx := range diagnoses {
		sum += dx.Probability
	}

	var overall *float64
	if n := len(recommendations) + len(diagnoses); n > 0 {
		avg := domain.ClampUnit(sum / float64(n))
		overall = &avg
	}

	return domain.ExplainabilityReport{
		InputFactors: domain.InputFactors{
			SymptomCount:    len(clinical.Symptoms),
			LabCount:        len(clinical.LabResults),
			MedicationCount: len(clinical.Medications),
			VitalsCount:     clinical.Vitals.Count(),
		},
		Reasoning: domain.ReasoningSummary{
			PrimarySymptoms: append([]string{}, primary...),
			AbnormalLabs:    abnormal,
			RiskFactors:     riskFactors,
		},
		Confidence: domain.ConfidenceReport{
			Overall:           overall,
			PerRecommendation: perRecommendation,
		},
		Versions: e.versions,
	}
}

// labSummary renders "troponin: 0.5 ng/mL (ref <0.04)".
func labSummary(lab domain.LabResult) string {
	var b strings.Builder
	b.WriteString(lab.TestName)
	b.WriteString(": ")
	b.WriteString(strconv.FormatFloat(lab.Value, 'f', -1, 64))
	if lab.Unit != "" {
		b.WriteString(" ")
		b.WriteString(lab.Unit)
	}
	if lab.ReferenceRange != "" {
		b.WriteString(" (ref ")
		b.WriteString(lab.ReferenceRange)
		b.WriteString(")")
	}
	return b.String()
}

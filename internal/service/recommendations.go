package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

// Recommendation template constants
const (
	topDiagnosesConsidered  = 3
	minRecommendProbability = 0.3
	evidenceLevel           = "B"
)

// RecommendationGenerator turns the leading differential diagnoses into diagnostic
// recommendations.
type RecommendationGenerator struct {
	logger         *logrus.Logger
	catalog        *catalog.Catalog
	alertThreshold float64
}

// NewRecommendationGenerator creates a new recommendation generator
func NewRecommendationGenerator(logger *logrus.Logger, cat *catalog.Catalog, alertThreshold float64) *RecommendationGenerator {
	if alertThreshold <= 0 {
		alertThreshold = DefaultAlertThreshold
	}
	return &RecommendationGenerator{
		logger:         logger,
		catalog:        cat,
		alertThreshold: alertThreshold,
	}
}

// Generate considers the top three diagnoses and recommends a workup for each one above
// 0.3 probability. Priority is critical when the diagnosis is emergent or the risk
// predictor scored the same condition above the alert threshold. limit <= 0 means the
// default cap.
func (g *RecommendationGenerator) Generate(diagnoses []domain.DifferentialDiagnosis, risks []domain.RiskPrediction, limit int) []domain.ClinicalRecommendation {
	if limit <= 0 {
		limit = domain.DefaultMaxRecommendations
	}

	riskByCondition := make(map[string]float64, len(risks))
	for _, r := range risks {
		riskByCondition[catalog.Normalize(r.Condition)] = r.RiskScore
	}

	top := diagnoses
	if len(top) > topDiagnosesConsidered {
		top = top[:topDiagnosesConsidered]
	}

	recommendations := make([]domain.ClinicalRecommendation, 0, len(top))
	for _, dx := range top {
		if dx.Probability <= minRecommendProbability {
			continue
		}

		priority := domain.PriorityHigh
		timeframe := "within 24 hours"
		if dx.Urgency == domain.UrgencyEmergent || riskByCondition[catalog.Normalize(dx.Condition)] > g.alertThreshold {
			priority = domain.PriorityCritical
			timeframe = "immediate"
		}

		var guidelines []string
		if profile, ok := g.catalog.Profile(dx.Condition); ok && profile.Guideline != "" {
			guidelines = []string{profile.Guideline}
		} else {
			guidelines = []string{}
		}

		alternatives := []string{}
		if len(dx.NextSteps) > 1 {
			alternatives = append(alternatives, dx.NextSteps[1:]...)
		}

		description := fmt.Sprintf("Differential diagnosis suggests %s (%d%% probability).", dx.Condition, percent(dx.Probability))
		if len(dx.NextSteps) > 0 {
			description += " Recommended first step: " + dx.NextSteps[0] + "."
		}

		confidence := domain.ClampUnit(dx.Probability)
		recommendations = append(recommendations, domain.ClinicalRecommendation{
			ID:          fmt.Sprintf("rec-%d-%s", len(recommendations)+1, slug(dx.Condition)),
			Type:        domain.RecommendationDiagnostic,
			Title:       fmt.Sprintf("Evaluate for %s", dx.Condition),
			Description: description,
			Priority:    priority,
			Confidence:  confidence,
			Evidence: domain.EvidenceBase{
				Guidelines:        guidelines,
				PubMedIDs:         []string{},
				EvidenceLevel:     evidenceLevel,
				AIModelConfidence: confidence,
				SimilarCases:      percent(confidence),
				ExpertConsensus:   false,
			},
			Contraindications: []string{},
			Alternatives:      alternatives,
			Timeframe:         timeframe,
		})
	}

	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}

	g.logger.WithField("recommendations", len(recommendations)).Debug("Recommendation generation completed")
	return recommendations
}

// slug turns a condition name into an id fragment: "myocardial infarction" -> "myocardial-infarction".
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

package service

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

// minReportedRisk is the score at or below which a condition is left out of the result.
const minReportedRisk = 0.1

// RiskPredictor scores the catalog's risk conditions against a clinical snapshot
type RiskPredictor struct {
	logger  *logrus.Logger
	catalog *catalog.Catalog
}

// NewRiskPredictor creates a new risk predictor
func NewRiskPredictor(logger *logrus.Logger, cat *catalog.Catalog) *RiskPredictor {
	return &RiskPredictor{
		logger:  logger,
		catalog: cat,
	}
}

// Predict evaluates every risk condition in catalog order. Rules are summed, clamped to
// 1.0, and conditions scoring at or below 0.1 are dropped. Output is sorted by score,
// highest first, with ties kept in catalog order.
func (p *RiskPredictor) Predict(clinical *domain.ClinicalContext) []domain.RiskPrediction {
	predictions := make([]domain.RiskPrediction, 0)

	for _, condition := range p.catalog.RiskConditions {
		score := 0.0
		factors := make([]domain.RiskFactor, 0, len(condition.Rules))

		for _, rule := range condition.Rules {
			if !ruleFires(rule, clinical) {
				continue
			}
			score += rule.Weight
			factors = append(factors, domain.RiskFactor{
				Name:       rule.Factor,
				Weight:     rule.Weight,
				Modifiable: rule.Modifiable,
			})
		}

		score = domain.ClampUnit(score)
		if score <= minReportedRisk {
			continue
		}

		predictions = append(predictions, domain.RiskPrediction{
			Condition:         condition.Name,
			RiskScore:         score,
			Timeframe:         condition.Timeframe,
			RiskFactors:       factors,
			PreventiveActions: append([]string(nil), condition.PreventiveActions...),
		})
	}

	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].RiskScore > predictions[j].RiskScore
	})

	p.logger.WithField("predictions", len(predictions)).Debug("Risk prediction completed")
	return predictions
}

// ruleFires evaluates one rule. An absent input never fires.
func ruleFires(rule catalog.RiskRule, clinical *domain.ClinicalContext) bool {
	switch rule.Source {
	case catalog.SourceAge:
		return compare(rule, float64(clinical.Demographics.Age))

	case catalog.SourceVital:
		value, ok := vitalValue(clinical.Vitals, rule.Field)
		return ok && compare(rule, value)

	case catalog.SourceLab:
		for _, lab := range clinical.LabResults {
			if !matchesAny(lab.TestName, rule.Keywords) {
				continue
			}
			if rule.Operator == catalog.OpAbnormal {
				if lab.Abnormal {
					return true
				}
				continue
			}
			if compare(rule, lab.Value) {
				return true
			}
		}
		return false

	case catalog.SourceSymptom:
		for _, symptom := range clinical.Symptoms {
			if matchesExactly(symptom, rule.Keywords) {
				return true
			}
		}
		return false
	}
	return false
}

// compare applies a numeric operator. All comparisons are strict.
func compare(rule catalog.RiskRule, value float64) bool {
	switch rule.Operator {
	case catalog.OpOutside:
		return value < rule.Min || value > rule.Max
	case catalog.OpGreater:
		return value > rule.Threshold
	case catalog.OpLess:
		return value < rule.Threshold
	default:
		return false
	}
}

func vitalValue(v domain.Vitals, field string) (float64, bool) {
	switch field {
	case catalog.VitalTemperature:
		if v.Temperature != nil {
			return *v.Temperature, true
		}
	case catalog.VitalHeartRate:
		if v.HeartRate != nil {
			return float64(*v.HeartRate), true
		}
	case catalog.VitalRespiratoryRate:
		if v.RespiratoryRate != nil {
			return float64(*v.RespiratoryRate), true
		}
	case catalog.VitalOxygenSaturation:
		if v.OxygenSaturation != nil {
			return *v.OxygenSaturation, true
		}
	case catalog.VitalSystolicBP:
		if v.BloodPressure != nil {
			return float64(v.BloodPressure.Systolic), true
		}
	case catalog.VitalDiastolicBP:
		if v.BloodPressure != nil {
			return float64(v.BloodPressure.Diastolic), true
		}
	}
	return 0, false
}

// matchesAny reports whether the normalized text contains any of the keywords.
func matchesAny(text string, keywords []string) bool {
	normalized := catalog.Normalize(text)
	if normalized == "" {
		return false
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// matchesExactly reports whether the normalized text equals one of the keywords. Symptoms
// are compared whole so negated entries like "denies chest pain" never fire.
func matchesExactly(text string, keywords []string) bool {
	normalized := catalog.Normalize(text)
	if normalized == "" {
		return false
	}
	for _, kw := range keywords {
		if normalized == kw {
			return true
		}
	}
	return false
}

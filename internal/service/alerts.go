package service

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/domain"
)

// DefaultAlertThreshold is the risk score above which a safety alert is raised.
const DefaultAlertThreshold = 0.7

// AlertGenerator derives clinical alerts from risk predictions and drug interactions
type AlertGenerator struct {
	logger    *logrus.Logger
	threshold float64
	now       func() time.Time
	newID     func() string
}

// NewAlertGenerator creates a new alert generator. A nil clock uses time.Now.
func NewAlertGenerator(logger *logrus.Logger, threshold float64, clock func() time.Time) *AlertGenerator {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}
	if clock == nil {
		clock = time.Now
	}
	return &AlertGenerator{
		logger:    logger,
		threshold: threshold,
		now:       clock,
		newID:     uuid.NewString,
	}
}

// Generate raises a safety warning for every risk above the threshold and an interaction
// alert for every major or contraindicated interaction.
func (g *AlertGenerator) Generate(risks []domain.RiskPrediction, interactions []domain.DrugInteraction) []domain.ClinicalAlert {
	alerts := make([]domain.ClinicalAlert, 0)
	generatedAt := g.now().UTC()

	for _, risk := range risks {
		if risk.RiskScore <= g.threshold {
			continue
		}
		alerts = append(alerts, domain.ClinicalAlert{
			ID:             g.newID(),
			Type:           domain.AlertTypeSafety,
			Severity:       domain.AlertWarning,
			Message:        fmt.Sprintf("High risk of %s detected (%d%%)", risk.Condition, percent(risk.RiskScore)),
			ActionRequired: true,
			GeneratedAt:    generatedAt,
		})
	}

	for _, in := range interactions {
		if in.Severity.Rank() < domain.SeverityMajor.Rank() {
			continue
		}
		severity := domain.AlertWarning
		if in.Severity == domain.SeverityContraindicated {
			severity = domain.AlertCritical
		}
		alerts = append(alerts, domain.ClinicalAlert{
			ID:             g.newID(),
			Type:           domain.AlertTypeDrugInteraction,
			Severity:       severity,
			Message:        fmt.Sprintf("%s interaction between %s and %s: %s", capitalize(string(in.Severity)), in.Drug1, in.Drug2, in.ClinicalEffect),
			ActionRequired: true,
			GeneratedAt:    generatedAt,
		})
	}

	g.logger.WithField("alerts", len(alerts)).Debug("Alert generation completed")
	return alerts
}

func percent(score float64) int {
	return int(math.Round(score * 100))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

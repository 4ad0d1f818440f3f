package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

// Differential scoring constants
const (
	maxConsideredSymptoms = 3
	maxDifferentials      = 10
	baseProbability       = 0.1
	symptomMatchWeight    = 0.4
	labSupportWeight      = 0.2
	maxProbability        = 0.95
	minProbability        = 0.1
	emergentProbability   = 0.5
)

// DifferentialGenerator maps presenting symptoms to ranked candidate conditions
type DifferentialGenerator struct {
	logger  *logrus.Logger
	catalog *catalog.Catalog
}

// NewDifferentialGenerator creates a new differential diagnosis generator
func NewDifferentialGenerator(logger *logrus.Logger, cat *catalog.Catalog) *DifferentialGenerator {
	return &DifferentialGenerator{
		logger:  logger,
		catalog: cat,
	}
}

// Generate builds the differential from the first three symptoms. Only that prefix selects
// candidates; the full symptom list is used when scoring each candidate.
func (g *DifferentialGenerator) Generate(clinical *domain.ClinicalContext) []domain.DifferentialDiagnosis {
	reported := make(map[string]bool, len(clinical.Symptoms))
	for _, s := range clinical.Symptoms {
		if n := catalog.Normalize(s); n != "" {
			reported[n] = true
		}
	}

	prefix := clinical.Symptoms
	if len(prefix) > maxConsideredSymptoms {
		prefix = prefix[:maxConsideredSymptoms]
	}

	var candidates []string
	seen := make(map[string]bool)
	for _, symptom := range prefix {
		for _, condition := range g.catalog.CandidatesFor(symptom) {
			if seen[condition] {
				continue
			}
			seen[condition] = true
			candidates = append(candidates, condition)
		}
	}

	diagnoses := make([]domain.DifferentialDiagnosis, 0, len(candidates))
	for _, condition := range candidates {
		profile, ok := g.catalog.Profile(condition)
		if !ok {
			continue
		}
		dx := g.score(profile, reported, clinical.LabResults)
		if dx.Probability > minProbability {
			diagnoses = append(diagnoses, dx)
		}
	}

	sort.SliceStable(diagnoses, func(i, j int) bool {
		return diagnoses[i].Probability > diagnoses[j].Probability
	})
	if len(diagnoses) > maxDifferentials {
		diagnoses = diagnoses[:maxDifferentials]
	}

	g.logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"diagnoses":  len(diagnoses),
	}).Debug("Differential diagnosis completed")

	return diagnoses
}

func (g *DifferentialGenerator) score(profile *catalog.ConditionProfile, reported map[string]bool, labs []domain.LabResult) domain.DifferentialDiagnosis {
	supporting := make([]string, 0)
	contradicting := make([]string, 0)

	matched := 0
	for _, s := range profile.Symptoms {
		if reported[s] {
			matched++
			supporting = append(supporting, fmt.Sprintf("%s reported", s))
		} else {
			contradicting = append(contradicting, fmt.Sprintf("%s not reported", s))
		}
	}

	probability := baseProbability
	if len(profile.Symptoms) > 0 {
		probability += symptomMatchWeight * float64(matched) / float64(len(profile.Symptoms))
	}

	// Supporting labs add one fixed adjustment per condition however many match. Without a
	// matched symptom the score tops out at base+adjustment, below the emergent cutoff.
	labSupported := false
	for _, lab := range labs {
		if lab.Abnormal && matchesAny(lab.TestName, profile.SupportingLabs) {
			labSupported = true
			supporting = append(supporting, fmt.Sprintf("abnormal %s", lab.TestName))
		}
	}
	if labSupported {
		probability += labSupportWeight
	}

	probability = domain.ClampUnit(math.Min(probability, maxProbability))

	urgency := domain.UrgencyRoutine
	if g.catalog.IsEmergent(profile.Name) && probability > emergentProbability {
		urgency = domain.UrgencyEmergent
	}

	return domain.DifferentialDiagnosis{
		Condition:             profile.Name,
		Probability:           probability,
		SupportingEvidence:    supporting,
		ContradictingEvidence: contradicting,
		NextSteps:             append([]string(nil), profile.NextSteps...),
		Urgency:               urgency,
	}
}

package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

const defaultPGxRecommendation = "Review drug selection and dosing against pharmacogenomic guidance"

// InteractionChecker checks medication pairs against the interaction table
type InteractionChecker struct {
	logger  *logrus.Logger
	catalog *catalog.Catalog
}

// NewInteractionChecker creates a new drug interaction checker
func NewInteractionChecker(logger *logrus.Logger, cat *catalog.Catalog) *InteractionChecker {
	return &InteractionChecker{
		logger:  logger,
		catalog: cat,
	}
}

// Check looks up every unordered medication pair. Lookup does not depend on list order,
// while Drug1 and Drug2 follow the order the medications were given in. Pharmacogenomic
// annotations that carry a severity and name an active medication are reported as well.
// The result is sorted by severity, most severe first.
func (c *InteractionChecker) Check(medications []domain.Medication, genomics *domain.GenomicData) []domain.DrugInteraction {
	interactions := make([]domain.DrugInteraction, 0)
	seen := make(map[string]bool)

	for i := 0; i < len(medications); i++ {
		for j := i + 1; j < len(medications); j++ {
			drug1 := strings.TrimSpace(medications[i].Name)
			drug2 := strings.TrimSpace(medications[j].Name)

			key := catalog.PairKey(drug1, drug2)
			if seen[key] {
				continue
			}
			entry, ok := c.catalog.LookupInteraction(drug1, drug2)
			if !ok {
				continue
			}
			seen[key] = true

			interactions = append(interactions, domain.DrugInteraction{
				Drug1:          drug1,
				Drug2:          drug2,
				Severity:       entry.Severity,
				Mechanism:      entry.Mechanism,
				ClinicalEffect: entry.ClinicalEffect,
				Recommendation: entry.Recommendation,
				Alternatives:   append([]string{}, entry.Alternatives...),
			})
		}
	}

	interactions = append(interactions, c.pharmacogenomic(medications, genomics)...)

	sort.SliceStable(interactions, func(i, j int) bool {
		return interactions[i].Severity.Rank() > interactions[j].Severity.Rank()
	})

	c.logger.WithFields(logrus.Fields{
		"medications":  len(medications),
		"interactions": len(interactions),
	}).Debug("Drug interaction check completed")

	return interactions
}

func (c *InteractionChecker) pharmacogenomic(medications []domain.Medication, genomics *domain.GenomicData) []domain.DrugInteraction {
	if genomics == nil {
		return nil
	}

	var out []domain.DrugInteraction
	seen := make(map[string]bool)
	for _, pgx := range genomics.Pharmacogenomics {
		if !pgx.Severity.IsValid() {
			continue
		}
		for _, med := range medications {
			name := strings.TrimSpace(med.Name)
			if catalog.Normalize(name) != catalog.Normalize(pgx.Drug) {
				continue
			}
			key := catalog.Normalize(name) + "|" + catalog.Normalize(pgx.Gene)
			if seen[key] {
				continue
			}
			seen[key] = true

			phenotype := pgx.Phenotype
			if phenotype == "" {
				phenotype = pgx.Gene + " variant"
			}
			recommendation := pgx.Recommendation
			if recommendation == "" {
				recommendation = defaultPGxRecommendation
			}

			out = append(out, domain.DrugInteraction{
				Drug1:          name,
				Drug2:          pgx.Gene,
				Severity:       pgx.Severity,
				Mechanism:      fmt.Sprintf("pharmacogenomic: %s", phenotype),
				ClinicalEffect: fmt.Sprintf("Altered response to %s in %s", name, phenotype),
				Recommendation: recommendation,
				Alternatives:   []string{},
			})
		}
	}
	return out
}

// Package catalog holds the declarative tables the pipeline scores against: risk rules,
// symptom to condition mappings, condition profiles and the drug interaction table.
// The default catalog is embedded; operators can load a replacement YAML file.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clinical-decision-support-server/internal/domain"
)

//go:embed default_catalog.yaml
var defaultCatalogYAML []byte

// Source names where a risk rule reads its value from.
type Source string

const (
	SourceVital   Source = "vital"
	SourceLab     Source = "lab"
	SourceAge     Source = "age"
	SourceSymptom Source = "symptom"
)

// Operator is the comparison a risk rule applies.
type Operator string

const (
	OpOutside  Operator = "outside"  // value < min || value > max
	OpGreater  Operator = "gt"       // value > threshold
	OpLess     Operator = "lt"       // value < threshold
	OpAbnormal Operator = "abnormal" // lab abnormal flag set
	OpContains Operator = "contains" // symptom list contains a keyword as a whole entry
)

// Vital field names accepted by vital rules.
const (
	VitalTemperature      = "temperature"
	VitalHeartRate        = "heart_rate"
	VitalRespiratoryRate  = "respiratory_rate"
	VitalOxygenSaturation = "oxygen_saturation"
	VitalSystolicBP       = "systolic_bp"
	VitalDiastolicBP      = "diastolic_bp"
)

// RiskRule adds Weight to a condition's score when it fires.
type RiskRule struct {
	Factor     string   `yaml:"factor" json:"factor"`
	Source     Source   `yaml:"source" json:"source"`
	Field      string   `yaml:"field,omitempty" json:"field,omitempty"`
	Keywords   []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Operator   Operator `yaml:"operator" json:"operator"`
	Min        float64  `yaml:"min,omitempty" json:"min,omitempty"`
	Max        float64  `yaml:"max,omitempty" json:"max,omitempty"`
	Threshold  float64  `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Weight     float64  `yaml:"weight" json:"weight"`
	Modifiable bool     `yaml:"modifiable,omitempty" json:"modifiable"`
}

// RiskCondition is one entry of the risk catalog. A condition without rules is kept
// and always scores zero.
type RiskCondition struct {
	Name              string           `yaml:"name" json:"name"`
	Timeframe         domain.Timeframe `yaml:"timeframe" json:"timeframe"`
	PreventiveActions []string         `yaml:"preventive_actions" json:"preventiveActions"`
	Rules             []RiskRule       `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// ConditionProfile describes what the differential generator knows about a condition.
type ConditionProfile struct {
	Name           string   `yaml:"name" json:"name"`
	Symptoms       []string `yaml:"symptoms" json:"symptoms"`
	SupportingLabs []string `yaml:"supporting_labs,omitempty" json:"supportingLabs,omitempty"`
	Guideline      string   `yaml:"guideline" json:"guideline"`
	NextSteps      []string `yaml:"next_steps" json:"nextSteps"`
}

// Interaction is one row of the drug interaction table.
type Interaction struct {
	Drugs          []string                   `yaml:"drugs" json:"drugs"`
	Severity       domain.InteractionSeverity `yaml:"severity" json:"severity"`
	Mechanism      string                     `yaml:"mechanism" json:"mechanism"`
	ClinicalEffect string                     `yaml:"clinical_effect" json:"clinicalEffect"`
	Recommendation string                     `yaml:"recommendation" json:"recommendation"`
	Alternatives   []string                   `yaml:"alternatives,omitempty" json:"alternatives,omitempty"`
}

// Catalog is the full set of tables. Build one with Default, Load or Parse; the lookup
// methods rely on indexes built there.
type Catalog struct {
	Version            string              `yaml:"version" json:"version"`
	RiskConditions     []RiskCondition     `yaml:"risk_conditions" json:"riskConditions"`
	SymptomConditions  map[string][]string `yaml:"symptom_conditions" json:"symptomConditions"`
	Conditions         []ConditionProfile  `yaml:"conditions" json:"conditions"`
	EmergentConditions []string            `yaml:"emergent_conditions" json:"emergentConditions"`
	Interactions       []Interaction       `yaml:"interactions" json:"interactions"`

	profiles     map[string]*ConditionProfile
	emergent     map[string]struct{}
	interactions map[string]*Interaction
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalogYAML)
}

// MustDefault is Default for callers that treat a broken embedded catalog as a bug.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes, validates and indexes a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.index()
	return &c, nil
}

// normalize lowercases every name the pipeline matches on.
func (c *Catalog) normalize() {
	symptoms := make(map[string][]string, len(c.SymptomConditions))
	for symptom, conditions := range c.SymptomConditions {
		symptoms[Normalize(symptom)] = lowerAll(conditions)
	}
	c.SymptomConditions = symptoms

	for i := range c.RiskConditions {
		c.RiskConditions[i].Name = Normalize(c.RiskConditions[i].Name)
		for j := range c.RiskConditions[i].Rules {
			c.RiskConditions[i].Rules[j].Keywords = lowerAll(c.RiskConditions[i].Rules[j].Keywords)
		}
	}
	for i := range c.Conditions {
		p := &c.Conditions[i]
		p.Name = Normalize(p.Name)
		p.Symptoms = lowerAll(p.Symptoms)
		p.SupportingLabs = lowerAll(p.SupportingLabs)
	}
	c.EmergentConditions = lowerAll(c.EmergentConditions)
	for i := range c.Interactions {
		c.Interactions[i].Drugs = lowerAll(c.Interactions[i].Drugs)
	}
}

func (c *Catalog) index() {
	c.profiles = make(map[string]*ConditionProfile, len(c.Conditions))
	for i := range c.Conditions {
		c.profiles[c.Conditions[i].Name] = &c.Conditions[i]
	}
	c.emergent = make(map[string]struct{}, len(c.EmergentConditions))
	for _, name := range c.EmergentConditions {
		c.emergent[name] = struct{}{}
	}
	c.interactions = make(map[string]*Interaction, len(c.Interactions))
	for i := range c.Interactions {
		in := &c.Interactions[i]
		c.interactions[PairKey(in.Drugs[0], in.Drugs[1])] = in
	}
}

// Validate rejects catalogs the scoring functions cannot evaluate.
func (c *Catalog) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("catalog version is required")
	}
	seen := make(map[string]bool, len(c.RiskConditions))
	for _, rc := range c.RiskConditions {
		if rc.Name == "" {
			return fmt.Errorf("risk condition name is required")
		}
		if seen[rc.Name] {
			return fmt.Errorf("duplicate risk condition %q", rc.Name)
		}
		seen[rc.Name] = true
		if !rc.Timeframe.IsValid() {
			return fmt.Errorf("risk condition %q: invalid timeframe %q", rc.Name, rc.Timeframe)
		}
		for _, rule := range rc.Rules {
			if err := rule.validate(); err != nil {
				return fmt.Errorf("risk condition %q: %w", rc.Name, err)
			}
		}
	}
	for symptom, conditions := range c.SymptomConditions {
		if symptom == "" || len(conditions) == 0 {
			return fmt.Errorf("symptom mapping %q must name at least one condition", symptom)
		}
	}
	for _, p := range c.Conditions {
		if p.Name == "" {
			return fmt.Errorf("condition profile name is required")
		}
		if len(p.Symptoms) == 0 {
			return fmt.Errorf("condition profile %q has no symptoms", p.Name)
		}
	}
	for i, in := range c.Interactions {
		if len(in.Drugs) != 2 || in.Drugs[0] == "" || in.Drugs[1] == "" {
			return fmt.Errorf("interaction %d must name exactly two drugs", i)
		}
		if in.Drugs[0] == in.Drugs[1] {
			return fmt.Errorf("interaction %d pairs %q with itself", i, in.Drugs[0])
		}
		if !in.Severity.IsValid() {
			return fmt.Errorf("interaction %s: %w %q", strings.Join(in.Drugs, "+"), domain.ErrInvalidSeverity, in.Severity)
		}
	}
	return nil
}

func (r RiskRule) validate() error {
	if r.Factor == "" {
		return fmt.Errorf("rule factor is required")
	}
	if r.Weight < 0 || r.Weight > 1 {
		return fmt.Errorf("rule %q: weight %.2f outside [0,1]", r.Factor, r.Weight)
	}
	switch r.Source {
	case SourceVital:
		switch r.Field {
		case VitalTemperature, VitalHeartRate, VitalRespiratoryRate, VitalOxygenSaturation, VitalSystolicBP, VitalDiastolicBP:
		default:
			return fmt.Errorf("rule %q: unknown vital field %q", r.Factor, r.Field)
		}
	case SourceLab, SourceSymptom:
		if len(r.Keywords) == 0 {
			return fmt.Errorf("rule %q: keywords are required for %s rules", r.Factor, r.Source)
		}
	case SourceAge:
	default:
		return fmt.Errorf("rule %q: unknown source %q", r.Factor, r.Source)
	}
	switch r.Operator {
	case OpOutside:
		if r.Min > r.Max {
			return fmt.Errorf("rule %q: min %.2f greater than max %.2f", r.Factor, r.Min, r.Max)
		}
	case OpGreater, OpLess:
	case OpAbnormal:
		if r.Source != SourceLab {
			return fmt.Errorf("rule %q: abnormal applies only to lab rules", r.Factor)
		}
	case OpContains:
		if r.Source != SourceSymptom {
			return fmt.Errorf("rule %q: contains applies only to symptom rules", r.Factor)
		}
	default:
		return fmt.Errorf("rule %q: unknown operator %q", r.Factor, r.Operator)
	}
	return nil
}

// Profile returns the differential profile for a condition.
func (c *Catalog) Profile(condition string) (*ConditionProfile, bool) {
	p, ok := c.profiles[Normalize(condition)]
	return p, ok
}

// CandidatesFor returns the conditions a symptom maps to, or nil.
func (c *Catalog) CandidatesFor(symptom string) []string {
	return c.SymptomConditions[Normalize(symptom)]
}

// IsEmergent reports whether the condition is on the emergent allowlist.
func (c *Catalog) IsEmergent(condition string) bool {
	_, ok := c.emergent[Normalize(condition)]
	return ok
}

// LookupInteraction finds the interaction between two drugs in either order.
func (c *Catalog) LookupInteraction(drugA, drugB string) (*Interaction, bool) {
	in, ok := c.interactions[PairKey(drugA, drugB)]
	return in, ok
}

// ConditionNames lists risk conditions in catalog order.
func (c *Catalog) ConditionNames() []string {
	names := make([]string, 0, len(c.RiskConditions))
	for _, rc := range c.RiskConditions {
		names = append(names, rc.Name)
	}
	return names
}

// Symptoms lists the mapped symptoms in sorted order.
func (c *Catalog) Symptoms() []string {
	out := make([]string, 0, len(c.SymptomConditions))
	for s := range c.SymptomConditions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// PairKey builds the order-independent lookup key for two drug names.
func PairKey(drugA, drugB string) string {
	a, b := Normalize(drugA), Normalize(drugB)
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Normalize lowercases and trims a name for table lookups.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lowerAll(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Normalize(s)
	}
	return out
}

// Summary is the public overview of a catalog.
type Summary struct {
	Version            string   `json:"version"`
	RiskConditions     []string `json:"riskConditions"`
	Symptoms           []string `json:"symptoms"`
	EmergentConditions []string `json:"emergentConditions"`
	ConditionProfiles  int      `json:"conditionProfiles"`
	Interactions       int      `json:"interactions"`
}

// Summary reports what the catalog covers without exposing rule weights.
func (c *Catalog) Summary() Summary {
	return Summary{
		Version:            c.Version,
		RiskConditions:     c.ConditionNames(),
		Symptoms:           c.Symptoms(),
		EmergentConditions: append([]string{}, c.EmergentConditions...),
		ConditionProfiles:  len(c.Conditions),
		Interactions:       len(c.Interactions),
	}
}

package domain

import (
	"time"
)

// RiskFactor is one rule that fired while scoring a condition.
type RiskFactor struct {
	Name       string  `json:"name"`
	Weight     float64 `json:"weight"`
	Modifiable bool    `json:"modifiable"`
}

// RiskPrediction is the score for one catalog condition.
type RiskPrediction struct {
	Condition         string       `json:"condition"`
	RiskScore         float64      `json:"riskScore"`
	Timeframe         Timeframe    `json:"timeframe"`
	RiskFactors       []RiskFactor `json:"riskFactors"`
	PreventiveActions []string     `json:"preventiveActions"`
}

// DifferentialDiagnosis is one candidate condition derived from symptoms.
type DifferentialDiagnosis struct {
	Condition             string   `json:"condition"`
	Probability           float64  `json:"probability"`
	SupportingEvidence    []string `json:"supportingEvidence"`
	ContradictingEvidence []string `json:"contradictingEvidence"`
	NextSteps             []string `json:"nextSteps"`
	Urgency               Urgency  `json:"urgency"`
}

// DrugInteraction is a match from the interaction table or a pharmacogenomic annotation.
type DrugInteraction struct {
	Drug1          string              `json:"drug1"`
	Drug2          string              `json:"drug2"`
	Severity       InteractionSeverity `json:"severity"`
	Mechanism      string              `json:"mechanism"`
	ClinicalEffect string              `json:"clinicalEffect"`
	Recommendation string              `json:"recommendation"`
	Alternatives   []string            `json:"alternatives"`
}

// ClinicalAlert is a derived signal. Acknowledgment is the only mutable part and it
// outlives the request that generated the alert.
type ClinicalAlert struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenantId,omitempty"`
	PatientID      string        `json:"patientId,omitempty"`
	SessionID      string        `json:"sessionId,omitempty"`
	Type           AlertType     `json:"type"`
	Severity       AlertSeverity `json:"severity"`
	Message        string        `json:"message"`
	ActionRequired bool          `json:"actionRequired"`
	GeneratedAt    time.Time     `json:"generatedAt"`
	AcknowledgedBy *string       `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledgedAt,omitempty"`
}

// Acknowledged reports whether someone has acknowledged the alert.
func (a *ClinicalAlert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}

// EvidenceBase is the structured justification attached to a recommendation.
type EvidenceBase struct {
	Guidelines        []string `json:"guidelines"`
	PubMedIDs         []string `json:"pubmedIds"`
	EvidenceLevel     string   `json:"evidenceLevel"`
	AIModelConfidence float64  `json:"aiModelConfidence"`
	SimilarCases      int      `json:"similarCases"`
	ExpertConsensus   bool     `json:"expertConsensus"`
}

// ClinicalRecommendation is an actionable suggestion for the clinician.
type ClinicalRecommendation struct {
	ID                string             `json:"id"`
	Type              RecommendationType `json:"type"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Priority          Priority           `json:"priority"`
	Confidence        float64            `json:"confidence"`
	Evidence          EvidenceBase       `json:"evidence"`
	Contraindications []string           `json:"contraindications"`
	Alternatives      []string           `json:"alternatives"`
	Timeframe         string             `json:"timeframe"`
}

// ExplainabilityReport is the audit trace of one pipeline run.
type ExplainabilityReport struct {
	InputFactors InputFactors     `json:"inputFactors"`
	Reasoning    ReasoningSummary `json:"reasoning"`
	Confidence   ConfidenceReport `json:"confidence"`
	Versions     VersionInfo      `json:"versions"`
}

// InputFactors counts what the pipeline was given.
type InputFactors struct {
	SymptomCount    int `json:"symptomCount"`
	LabCount        int `json:"labCount"`
	MedicationCount int `json:"medicationCount"`
	VitalsCount     int `json:"vitalsCount"`
}

// ReasoningSummary lists the inputs that drove the outputs.
type ReasoningSummary struct {
	PrimarySymptoms []string `json:"primarySymptoms"`
	AbnormalLabs    []string `json:"abnormalLabs"`
	RiskFactors     []string `json:"riskFactors"`
}

// ConfidenceReport aggregates confidence. Overall is nil when nothing was scored.
type ConfidenceReport struct {
	Overall           *float64  `json:"overall"`
	PerRecommendation []float64 `json:"perRecommendation"`
}

// VersionInfo pins what produced a report.
type VersionInfo struct {
	Engine  string `json:"engine"`
	Catalog string `json:"catalog"`
	Model   string `json:"model"`
}

// CDSOptions are caller-supplied knobs for one run.
type CDSOptions struct {
	IncludeExperimental bool      `json:"includeExperimental"`
	MaxRecommendations  int       `json:"maxRecommendations"`
	FocusArea           FocusArea `json:"focusArea,omitempty"`
}

// DefaultMaxRecommendations applies when the caller leaves MaxRecommendations unset.
const DefaultMaxRecommendations = 15

// Validate checks option values.
func (o *CDSOptions) Validate() error {
	if o == nil {
		return nil
	}
	if o.MaxRecommendations < 0 {
		return NewValidationError("options.maxRecommendations", ErrInvalidMaxRecommended.Error(), o.MaxRecommendations)
	}
	if !o.FocusArea.IsValid() {
		return NewValidationError("options.focusArea", ErrInvalidFocusArea.Error(), o.FocusArea)
	}
	return nil
}

// EffectiveMax returns the recommendation cap for the run.
func (o *CDSOptions) EffectiveMax() int {
	if o == nil || o.MaxRecommendations <= 0 {
		return DefaultMaxRecommendations
	}
	return o.MaxRecommendations
}

// CDSResult is what one pipeline invocation returns.
type CDSResult struct {
	SessionID             string                   `json:"sessionId"`
	Recommendations       []ClinicalRecommendation `json:"recommendations"`
	DifferentialDiagnoses []DifferentialDiagnosis  `json:"differentialDiagnoses"`
	RiskPredictions       []RiskPrediction         `json:"riskPredictions"`
	DrugInteractions      []DrugInteraction        `json:"drugInteractions"`
	Alerts                []ClinicalAlert          `json:"alerts"`
	Explainability        ExplainabilityReport     `json:"explainability"`
	ProcessingTime        time.Duration            `json:"processingTime"`
}

// SessionRecord bundles a run for later retrieval. Written once, expires by TTL.
type SessionRecord struct {
	SessionID        string           `json:"sessionId"`
	TenantID         string           `json:"tenantId"`
	Context          *ClinicalContext `json:"context"`
	Result           *CDSResult       `json:"result"`
	ProcessingTimeMs int64            `json:"processingTimeMs"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// AuditEvent is handed to the compliance logger before processing starts.
type AuditEvent struct {
	ID         int64          `json:"id,omitempty"`
	Type       string         `json:"type"`
	UserID     string         `json:"userId"`
	TenantID   string         `json:"tenantId"`
	Resource   string         `json:"resource"`
	Action     string         `json:"action"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// UsageRecord is handed to the metering sink after processing.
type UsageRecord struct {
	ID             int64     `json:"id,omitempty"`
	TenantID       string    `json:"tenantId"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"method"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs int64     `json:"responseTime"`
	StatusCode     int       `json:"statusCode"`
	DataProcessed  int64     `json:"dataProcessed"`
	AIModelUsed    string    `json:"aiModelUsed"`
	ComputeUnits   float64   `json:"computeUnits"`
}

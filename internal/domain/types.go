// Package domain contains the core entities of the clinical decision support pipeline:
// the clinical snapshot a request evaluates, the outputs of each pipeline stage, and the
// records exchanged with the audit, metering and session-cache collaborators.
package domain

import (
	"errors"
	"math"
)

// Timeframe is the horizon a risk prediction applies to.
type Timeframe string

const (
	Timeframe24Hours Timeframe = "24_hours"
	Timeframe7Days   Timeframe = "7_days"
	Timeframe30Days  Timeframe = "30_days"
	Timeframe1Year   Timeframe = "1_year"
)

// IsValid reports whether the timeframe is one of the fixed horizons.
func (t Timeframe) IsValid() bool {
	switch t {
	case Timeframe24Hours, Timeframe7Days, Timeframe30Days, Timeframe1Year:
		return true
	default:
		return false
	}
}

// Urgency is the triage level attached to a differential diagnosis.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

// IsValid reports whether the urgency is a known level.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergent:
		return true
	default:
		return false
	}
}

// InteractionSeverity grades a drug-drug or drug-gene interaction.
type InteractionSeverity string

const (
	SeverityMinor           InteractionSeverity = "minor"
	SeverityModerate        InteractionSeverity = "moderate"
	SeverityMajor           InteractionSeverity = "major"
	SeverityContraindicated InteractionSeverity = "contraindicated"
)

// Rank orders severities for sorting. Unknown severities rank 0.
func (s InteractionSeverity) Rank() int {
	switch s {
	case SeverityMinor:
		return 1
	case SeverityModerate:
		return 2
	case SeverityMajor:
		return 3
	case SeverityContraindicated:
		return 4
	default:
		return 0
	}
}

// IsValid reports whether the severity is a known grade.
func (s InteractionSeverity) IsValid() bool {
	return s.Rank() > 0
}

// AlertSeverity is the display severity of a clinical alert.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// AlertType classifies what produced an alert.
type AlertType string

const (
	AlertTypeSafety          AlertType = "safety"
	AlertTypeDrugInteraction AlertType = "drug_interaction"
)

// RecommendationType categorizes a clinical recommendation.
type RecommendationType string

const (
	RecommendationDiagnostic  RecommendationType = "diagnostic"
	RecommendationTherapeutic RecommendationType = "therapeutic"
	RecommendationMonitoring  RecommendationType = "monitoring"
	RecommendationReferral    RecommendationType = "referral"
	RecommendationAlert       RecommendationType = "alert"
)

// Priority ranks recommendations for the clinician.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// FocusArea narrows what the caller is interested in. It is accepted and validated
// but does not filter pipeline output.
type FocusArea string

const (
	FocusAny        FocusArea = ""
	FocusDiagnosis  FocusArea = "diagnosis"
	FocusTreatment  FocusArea = "treatment"
	FocusPrevention FocusArea = "prevention"
	FocusMonitoring FocusArea = "monitoring"
)

// IsValid reports whether the focus area is recognized.
func (f FocusArea) IsValid() bool {
	switch f {
	case FocusAny, FocusDiagnosis, FocusTreatment, FocusPrevention, FocusMonitoring:
		return true
	default:
		return false
	}
}

// Sentinel errors checked with errors.Is across packages.
var (
	ErrNotFound              = errors.New("not found")
	ErrAlreadyAcknowledged   = errors.New("alert already acknowledged")
	ErrSessionExists         = errors.New("session already exists")
	ErrInvalidSeverity       = errors.New("invalid interaction severity")
	ErrInvalidFocusArea      = errors.New("invalid focus area")
	ErrInvalidMaxRecommended = errors.New("max recommendations must not be negative")
)

// ClampUnit clamps a score into [0,1]. NaN becomes 0.
func ClampUnit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

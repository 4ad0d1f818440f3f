package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clinical-decision-support-server/internal/catalog"
	"github.com/clinical-decision-support-server/internal/domain"
)

// Audit and metering identifiers written for each run
const (
	AuditTypeCDSRequest       = "cds_request"
	AuditActionGenerate       = "generate_recommendations"
	RecommendationsEndpoint   = "/api/v1/cds/recommendations"
	DefaultSessionTTL         = time.Hour
	computeUnitsBase          = 1.0
	computeUnitsPerScoredItem = 0.1
)

// EngineConfig pins the engine's behavior. Nothing below this struct reads the environment.
type EngineConfig struct {
	EngineVersion  string
	ModelVersion   string
	AlertThreshold float64
	SessionTTL     time.Duration
	// MaxRecommendations caps runs whose options leave the cap unset.
	MaxRecommendations int
	// Clock stamps alerts and audit events; nil means time.Now.
	Clock func() time.Time
}

// Collaborators are the engine's side-effect sinks. Any of them may be nil, in which case
// that side effect is skipped.
type Collaborators struct {
	Sessions domain.SessionStore
	Alerts   domain.AlertRepository
	Audit    domain.AuditSink
	Usage    domain.UsageSink
	Notifier domain.AlertNotifier
}

// Engine runs the clinical decision support pipeline and owns its side effects
type Engine struct {
	logger  *logrus.Logger
	config  EngineConfig
	catalog *catalog.Catalog
	deps    Collaborators

	predictor       *RiskPredictor
	differential    *DifferentialGenerator
	interactions    *InteractionChecker
	alerts          *AlertGenerator
	recommendations *RecommendationGenerator
	explainer       *Explainer
}

// NewEngine wires the pipeline stages over a catalog
func NewEngine(logger *logrus.Logger, cfg EngineConfig, cat *catalog.Catalog, deps Collaborators) *Engine {
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = DefaultAlertThreshold
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxRecommendations <= 0 {
		cfg.MaxRecommendations = domain.DefaultMaxRecommendations
	}

	return &Engine{
		logger:          logger,
		config:          cfg,
		catalog:         cat,
		deps:            deps,
		predictor:       NewRiskPredictor(logger, cat),
		differential:    NewDifferentialGenerator(logger, cat),
		interactions:    NewInteractionChecker(logger, cat),
		alerts:          NewAlertGenerator(logger, cfg.AlertThreshold, cfg.Clock),
		recommendations: NewRecommendationGenerator(logger, cat, cfg.AlertThreshold),
		explainer: NewExplainer(domain.VersionInfo{
			Engine:  cfg.EngineVersion,
			Catalog: cat.Version,
			Model:   cfg.ModelVersion,
		}),
	}
}

// Catalog returns the catalog the engine scores against
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// GenerateRecommendations performs the complete pipeline workflow for one clinical snapshot
func (e *Engine) GenerateRecommendations(
	ctx context.Context,
	tenantID, userID string,
	clinical *domain.ClinicalContext,
	opts *domain.CDSOptions,
) (*domain.CDSResult, error) {
	startTime := time.Now()

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := clinical.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clinical context: %w", err)
	}

	logger := e.logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"patient_id": clinical.PatientID,
	})
	logger.Info("Starting clinical decision support")

	// Step 1: Audit before any processing
	e.recordAudit(ctx, logger, tenantID, userID, clinical)

	// Step 2: Run the pipeline stages
	result, err := e.runPipeline(ctx, clinical, opts)
	if err != nil {
		logger.WithError(err).Error("Clinical decision support failed")
		return nil, err
	}

	// Step 3: Stamp the session on everything the run produced
	result.SessionID = uuid.NewString()
	for i := range result.Alerts {
		result.Alerts[i].TenantID = tenantID
		result.Alerts[i].PatientID = clinical.PatientID
		result.Alerts[i].SessionID = result.SessionID
	}
	result.ProcessingTime = time.Since(startTime)

	// Step 4: Best-effort side effects
	e.saveSession(ctx, logger, tenantID, clinical, result)
	e.publishAlerts(ctx, logger, result.Alerts)
	e.recordUsage(ctx, logger, tenantID, clinical, result)

	logger.WithFields(logrus.Fields{
		"session_id":      result.SessionID,
		"risks":           len(result.RiskPredictions),
		"diagnoses":       len(result.DifferentialDiagnoses),
		"interactions":    len(result.DrugInteractions),
		"alerts":          len(result.Alerts),
		"recommendations": len(result.Recommendations),
		"processing_time": result.ProcessingTime,
	}).Info("Clinical decision support completed")

	return result, nil
}

// runPipeline executes the stages in dependency order. A panic or cancellation anywhere
// yields a PipelineError and no partial result.
func (e *Engine) runPipeline(ctx context.Context, clinical *domain.ClinicalContext, opts *domain.CDSOptions) (result *domain.CDSResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &domain.PipelineError{Cause: fmt.Errorf("%v", r)}
		}
	}()

	checkpoint := func(stage string) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &domain.PipelineError{Cause: fmt.Errorf("%s: %w", stage, ctxErr)}
		}
		return nil
	}

	if err := checkpoint("risk prediction"); err != nil {
		return nil, err
	}
	risks := e.predictor.Predict(clinical)

	if err := checkpoint("differential diagnosis"); err != nil {
		return nil, err
	}
	diagnoses := e.differential.Generate(clinical)

	if err := checkpoint("drug interactions"); err != nil {
		return nil, err
	}
	interactions := e.interactions.Check(clinical.Medications, clinical.Genomics)

	if err := checkpoint("alerts"); err != nil {
		return nil, err
	}
	alerts := e.alerts.Generate(risks, interactions)

	if err := checkpoint("recommendations"); err != nil {
		return nil, err
	}
	recommendations := e.recommendations.Generate(diagnoses, risks, e.recommendationLimit(opts))

	explainability := e.explainer.Explain(clinical, risks, diagnoses, recommendations)

	return &domain.CDSResult{
		Recommendations:       recommendations,
		DifferentialDiagnoses: diagnoses,
		RiskPredictions:       risks,
		DrugInteractions:      interactions,
		Alerts:                alerts,
		Explainability:        explainability,
	}, nil
}

func (e *Engine) recordAudit(ctx context.Context, logger *logrus.Entry, tenantID, userID string, clinical *domain.ClinicalContext) {
	if e.deps.Audit == nil {
		return
	}
	event := &domain.AuditEvent{
		Type:     AuditTypeCDSRequest,
		UserID:   userID,
		TenantID: tenantID,
		Resource: "patient/" + clinical.PatientID,
		Action:   AuditActionGenerate,
		Metadata: map[string]any{
			"symptomCount":    len(clinical.Symptoms),
			"medicationCount": len(clinical.Medications),
			"labCount":        len(clinical.LabResults),
		},
		OccurredAt: e.config.Clock().UTC(),
	}
	if err := e.deps.Audit.RecordAudit(ctx, event); err != nil {
		logger.WithError(err).Warn("Failed to record audit event, continuing")
	}
}

func (e *Engine) saveSession(ctx context.Context, logger *logrus.Entry, tenantID string, clinical *domain.ClinicalContext, result *domain.CDSResult) {
	if e.deps.Sessions == nil {
		return
	}
	record := &domain.SessionRecord{
		SessionID:        result.SessionID,
		TenantID:         tenantID,
		Context:          clinical,
		Result:           result,
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
		CreatedAt:        e.config.Clock().UTC(),
	}
	if err := e.deps.Sessions.SaveSession(ctx, record, e.config.SessionTTL); err != nil {
		logger.WithError(err).WithField("session_id", result.SessionID).Warn("Failed to cache session record")
	}
}

func (e *Engine) publishAlerts(ctx context.Context, logger *logrus.Entry, alerts []domain.ClinicalAlert) {
	if len(alerts) == 0 {
		return
	}
	if e.deps.Alerts != nil {
		if err := e.deps.Alerts.SaveAlerts(ctx, alerts); err != nil {
			logger.WithError(err).WithField("alerts", len(alerts)).Warn("Failed to persist alerts")
		}
	}
	if e.deps.Notifier != nil {
		e.deps.Notifier.Notify(alerts)
	}
}

func (e *Engine) recordUsage(ctx context.Context, logger *logrus.Entry, tenantID string, clinical *domain.ClinicalContext, result *domain.CDSResult) {
	if e.deps.Usage == nil {
		return
	}
	var dataProcessed int64
	if payload, err := json.Marshal(clinical); err == nil {
		dataProcessed = int64(len(payload))
	}
	scored := len(result.RiskPredictions) + len(result.DifferentialDiagnoses) +
		len(result.DrugInteractions) + len(result.Recommendations)

	record := &domain.UsageRecord{
		TenantID:       tenantID,
		Endpoint:       RecommendationsEndpoint,
		Method:         "POST",
		Timestamp:      e.config.Clock().UTC(),
		ResponseTimeMs: result.ProcessingTime.Milliseconds(),
		StatusCode:     200,
		DataProcessed:  dataProcessed,
		AIModelUsed:    e.config.ModelVersion,
		ComputeUnits:   computeUnitsBase + computeUnitsPerScoredItem*float64(scored),
	}
	if err := e.deps.Usage.RecordUsage(ctx, record); err != nil {
		logger.WithError(err).Warn("Failed to record usage, continuing")
	}
}

// GetSession returns a cached session record. A non-empty tenantID must own the session;
// a session of another tenant is reported as not found.
func (e *Engine) GetSession(ctx context.Context, tenantID, sessionID string) (*domain.SessionRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, domain.NewValidationError("sessionId", "session id is required", sessionID)
	}
	if e.deps.Sessions == nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	record, err := e.deps.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if tenantID != "" && record.TenantID != tenantID {
		return nil, fmt.Errorf("session %s: %w", sessionID, domain.ErrNotFound)
	}
	return record, nil
}

// AcknowledgeAlert records who acknowledged an alert. Acknowledging twice returns
// domain.ErrAlreadyAcknowledged. A non-empty tenantID must own the alert.
func (e *Engine) AcknowledgeAlert(ctx context.Context, tenantID, alertID, acknowledgedBy string) (*domain.ClinicalAlert, error) {
	if strings.TrimSpace(alertID) == "" {
		return nil, domain.NewValidationError("alertId", "alert id is required", alertID)
	}
	if strings.TrimSpace(acknowledgedBy) == "" {
		return nil, domain.NewValidationError("acknowledgedBy", "acknowledging user is required", acknowledgedBy)
	}
	if e.deps.Alerts == nil {
		return nil, fmt.Errorf("alert %s: %w", alertID, domain.ErrNotFound)
	}

	if tenantID != "" {
		existing, err := e.deps.Alerts.GetAlert(ctx, alertID)
		if err != nil {
			return nil, err
		}
		if existing.TenantID != tenantID {
			return nil, fmt.Errorf("alert %s: %w", alertID, domain.ErrNotFound)
		}
	}

	alert, err := e.deps.Alerts.Acknowledge(ctx, alertID, acknowledgedBy, e.config.Clock().UTC())
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrAlreadyAcknowledged) {
			e.logger.WithError(err).WithField("alert_id", alertID).Error("Failed to acknowledge alert")
		}
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"alert_id":        alertID,
		"acknowledged_by": acknowledgedBy,
	}).Info("Clinical alert acknowledged")
	return alert, nil
}

func (e *Engine) recommendationLimit(opts *domain.CDSOptions) int {
	if opts == nil || opts.MaxRecommendations <= 0 {
		return e.config.MaxRecommendations
	}
	return opts.EffectiveMax()
}

// ListAlerts returns stored alerts matching the filter
func (e *Engine) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]domain.ClinicalAlert, error) {
	if e.deps.Alerts == nil {
		return []domain.ClinicalAlert{}, nil
	}
	return e.deps.Alerts.ListAlerts(ctx, filter)
}

// CheckInteractions runs only the drug interaction stage
func (e *Engine) CheckInteractions(medications []domain.Medication, genomics *domain.GenomicData) ([]domain.DrugInteraction, error) {
	probe := &domain.ClinicalContext{Medications: medications, Genomics: genomics}
	if err := probe.Validate(); err != nil {
		return nil, fmt.Errorf("invalid medication list: %w", err)
	}
	return e.interactions.Check(medications, genomics), nil
}

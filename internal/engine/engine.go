// Package engine wires the graph, router, gateway, normalizer, validator,
// ensemble, scorer, hypothesis generator, alert engine, and audit trail
// into a single per-patient prediction pipeline.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/alerting"
	"github.com/psp-engine/psp/internal/audit"
	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/ensemble"
	"github.com/psp-engine/psp/internal/gateway"
	"github.com/psp-engine/psp/internal/graph"
	"github.com/psp-engine/psp/internal/graph/seed"
	"github.com/psp-engine/psp/internal/hypothesis"
	"github.com/psp-engine/psp/internal/normalizer"
	"github.com/psp-engine/psp/internal/platform/cache"
	"github.com/psp-engine/psp/internal/router"
	"github.com/psp-engine/psp/internal/safetyindex"
	"github.com/psp-engine/psp/internal/safetyindex/scorer"
	"github.com/psp-engine/psp/internal/validator"
)

// defaultAdverseEvents is the AE panel scored when a caller does not name
// one explicitly.
var defaultAdverseEvents = []string{"CRS", "ICANS", "HLH"}

// defaultRankCacheSize and defaultParseCacheSize bound the in-process LRUs
// New attaches to the router and normalizer.
const (
	defaultRankCacheSize  = 512
	defaultParseCacheSize = 2048
)

// ModelBackend is an alternative to the HTTP gateway for callers that want
// to supply their own model invocation (e.g. tests, local inference).
type ModelBackend interface {
	Predict(ctx context.Context, prompt, modelID string) (map[string]any, error)
}

// PredictionResult is the full output of one ProcessPatient call: every
// adverse event's safety index, ensemble prediction, individual model
// predictions, hypotheses, validation reports, and newly generated alerts.
type PredictionResult struct {
	PatientID             string                                        `json:"patient_id"`
	AdverseEvents         []string                                      `json:"adverse_events"`
	SafetyIndices         map[string]safetyindex.Index                  `json:"safety_indices"`
	EnsemblePredictions   map[string]ensemble.Result                    `json:"ensemble_predictions"`
	IndividualPredictions map[string][]normalizer.Prediction            `json:"individual_predictions"`
	Hypotheses            map[string][]hypothesis.MechanisticHypothesis `json:"hypotheses"`
	ValidationReports     map[string][]validator.Report                 `json:"validation_reports"`
	Alerts                []alerting.Alert                              `json:"alerts"`
	SessionID             string                                        `json:"session_id"`
	PipelineDurationMS    int64                                         `json:"pipeline_duration_ms"`
	Timestamp             time.Time                                     `json:"timestamp"`
	Metadata              map[string]any                                `json:"metadata"`
}

// Engine orchestrates one end-to-end patient risk assessment.
type Engine struct {
	mu sync.Mutex

	log *logrus.Logger

	kg      *graph.Graph
	gw      *gateway.Gateway
	backend ModelBackend

	router       *router.Router
	routerOpts   router.Options
	normalizer   *normalizer.Normalizer
	validatorV   *validator.Validator
	ensembleOpts ensemble.Options
	scorerV      *scorer.Scorer
	hypothesisG  *hypothesis.Generator
	alertEngine  *alerting.Engine
	auditTrail   *audit.Trail

	initialized bool
}

// Options configures the pieces of the pipeline that are not themselves
// supplied as pre-built collaborators.
type Options struct {
	RouterOptions    router.Options
	EnsembleOptions  ensemble.Options
	HypothesisOptions hypothesis.Options
	MaxAuditRecords  int
}

// New builds an Engine from its collaborators. gw and backend may both be
// nil, in which case every adverse event is scored from biomarkers alone.
func New(kg *graph.Graph, gw *gateway.Gateway, backend ModelBackend, log *logrus.Logger, opts Options) *Engine {
	if kg == nil {
		kg = graph.New()
	}
	if log == nil {
		log = logrus.New()
	}

	r := router.New(nil, opts.RouterOptions)
	n := normalizer.New(log)

	if rc, err := cache.NewRankCache(defaultRankCacheSize); err != nil {
		log.WithError(err).Warn("rank cache unavailable, router will rank uncached")
	} else {
		r.SetRankCache(rc)
	}
	if pc, err := cache.NewParseCache(defaultParseCacheSize); err != nil {
		log.WithError(err).Warn("parse cache unavailable, normalizer will parse uncached")
	} else {
		n.SetParseCache(pc)
	}

	return &Engine{
		log:          log,
		kg:           kg,
		gw:           gw,
		backend:      backend,
		router:       r,
		routerOpts:   opts.RouterOptions,
		normalizer:   n,
		validatorV:   validator.New(kg),
		ensembleOpts: opts.EnsembleOptions,
		scorerV:      scorer.New(kg, nil),
		hypothesisG:  hypothesis.New(kg, opts.HypothesisOptions),
		alertEngine:  alerting.New(log),
		auditTrail:   audit.New(log, opts.MaxAuditRecords),
	}
}

// RegisterModel adds a model capability to the routing pool.
func (e *Engine) RegisterModel(m router.ModelCapability) {
	e.router.RegisterModel(m)
}

// Initialize loads the default mechanistic pathways into the knowledge
// graph (unless loadDefaultPathways is false) and configures the
// adverse-event-specific alert thresholds. It must be called before
// ProcessPatient.
func (e *Engine) Initialize(loadDefaultPathways bool, alertConfigs []alerting.ThresholdConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if loadDefaultPathways {
		for _, p := range seed.All() {
			n := e.kg.LoadPathway(p)
			e.log.WithFields(logrus.Fields{"pathway": p.PathwayID, "edges_loaded": n}).Debug("loaded pathway")
		}
	}

	if len(alertConfigs) > 0 {
		for _, cfg := range alertConfigs {
			e.alertEngine.ConfigureThresholds(cfg)
		}
	} else {
		e.configureDefaultAlerts()
	}

	e.initialized = true
}

// configureDefaultAlerts registers the per-adverse-event threshold
// defaults: CRS is most permissive, HLH escalates earliest since it
// carries the highest mortality risk of the three.
func (e *Engine) configureDefaultAlerts() {
	e.alertEngine.ConfigureThresholds(alerting.ThresholdConfig{
		AdverseEvent: "CRS", WarningThreshold: 0.4, UrgentThreshold: 0.6,
		CriticalThreshold: 0.8, RateOfChangeThreshold: 0.05, CooldownSeconds: 1800,
	})
	e.alertEngine.ConfigureThresholds(alerting.ThresholdConfig{
		AdverseEvent: "ICANS", WarningThreshold: 0.35, UrgentThreshold: 0.55,
		CriticalThreshold: 0.75, RateOfChangeThreshold: 0.04, CooldownSeconds: 1800,
	})
	e.alertEngine.ConfigureThresholds(alerting.ThresholdConfig{
		AdverseEvent: "HLH", WarningThreshold: 0.3, UrgentThreshold: 0.5,
		CriticalThreshold: 0.7, RateOfChangeThreshold: 0.03, CooldownSeconds: 1800,
	})
}

// IsInitialized reports whether Initialize has been called.
func (e *Engine) IsInitialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// KnowledgeGraph returns the engine's backing graph.
func (e *Engine) KnowledgeGraph() *graph.Graph { return e.kg }

// AuditTrail returns the engine's audit trail.
func (e *Engine) AuditTrail() *audit.Trail { return e.auditTrail }

// AlertEngineHandle returns the engine's alert engine, e.g. to register
// handlers or query active alerts.
func (e *Engine) AlertEngineHandle() *alerting.Engine { return e.alertEngine }

// ProcessPatientOptions toggles optional pipeline stages.
type ProcessPatientOptions struct {
	AdverseEvents      []string
	GenerateHypotheses bool
	ValidatePredictions bool
}

// ProcessPatient runs the full per-adverse-event pipeline for one patient
// snapshot and returns a PredictionResult aggregating every stage's
// output. Errors in one adverse event's pipeline are caught and audited;
// remaining adverse events still run.
func (e *Engine) ProcessPatient(ctx context.Context, patient scorer.PatientData, opts ProcessPatientOptions) (PredictionResult, error) {
	if !e.IsInitialized() {
		return PredictionResult{}, domain.ErrEngineNotInitialized
	}

	adverseEvents := opts.AdverseEvents
	if len(adverseEvents) == 0 {
		adverseEvents = defaultAdverseEvents
	}

	sessionID := e.auditTrail.StartSession(patient.PatientID)

	aeValues := make([]string, len(adverseEvents))
	copy(aeValues, adverseEvents)
	e.auditTrail.Record(audit.Entry{
		EventType: audit.EventPredictionRequest,
		PatientID: patient.PatientID,
		SessionID: sessionID,
		Actor:     "engine",
		InputData: map[string]any{
			"biomarker_count":      len(patient.Biomarkers),
			"hours_since_infusion": patient.HoursSinceInfusion,
			"adverse_events":       aeValues,
		},
	})

	result := PredictionResult{
		PatientID:             patient.PatientID,
		AdverseEvents:         adverseEvents,
		SessionID:             sessionID,
		SafetyIndices:         map[string]safetyindex.Index{},
		EnsemblePredictions:   map[string]ensemble.Result{},
		IndividualPredictions: map[string][]normalizer.Prediction{},
		Hypotheses:            map[string][]hypothesis.MechanisticHypothesis{},
		ValidationReports:     map[string][]validator.Report{},
		Timestamp:             time.Now().UTC(),
		Metadata:              map[string]any{},
	}

	pipelineStart := time.Now()

	for _, ae := range adverseEvents {
		if err := e.runAdverseEventPipeline(ctx, patient, ae, &result, sessionID, opts); err != nil {
			e.log.WithError(err).WithField("adverse_event", ae).Warn("pipeline failure, continuing with remaining adverse events")
			e.auditTrail.Record(audit.Entry{
				EventType: audit.EventError,
				PatientID: patient.PatientID,
				SessionID: sessionID,
				Actor:     "engine",
				OutputData: map[string]any{
					"adverse_event": ae,
					"error":         "pipeline_failure",
					"detail":        err.Error(),
				},
			})
		}
	}

	result.PipelineDurationMS = time.Since(pipelineStart).Milliseconds()
	return result, nil
}

// runAdverseEventPipeline recovers from any panic in processAdverseEvent
// so that one adverse event's pipeline failure never prevents the others
// in the same ProcessPatient call from running.
func (e *Engine) runAdverseEventPipeline(ctx context.Context, patient scorer.PatientData, ae string, result *PredictionResult, sessionID string, opts ProcessPatientOptions) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in adverse event pipeline: %v", r)
		}
	}()
	return e.processAdverseEvent(ctx, patient, ae, result, sessionID, opts)
}

// processAdverseEvent runs route -> call models -> validate -> ensemble ->
// score -> hypothesize -> alert for a single adverse event, recording an
// audit entry at every stage.
func (e *Engine) processAdverseEvent(ctx context.Context, patient scorer.PatientData, ae string, result *PredictionResult, sessionID string, opts ProcessPatientOptions) error {
	aeStart := time.Now()

	query := router.Query{
		PatientID:                    patient.PatientID,
		QueryText:                    fmt.Sprintf("Predict %s risk", ae),
		BiomarkerCount:               len(patient.Biomarkers),
		HoursSinceInfusion:           patient.HoursSinceInfusion,
		RequiresMechanisticReasoning: opts.GenerateHypotheses,
		AdverseEvents:                []string{ae},
		Context: map[string]any{
			"biomarkers":      patient.Biomarkers,
			"disease_burden":  patient.DiseaseBurden,
			"prior_therapies": patient.PriorTherapies,
			"car_t_product":   patient.CarTProduct,
		},
	}

	decision, err := e.router.Route(query)
	routed := err == nil
	if !routed {
		e.log.WithField("adverse_event", ae).Warn("no models available for routing; using biomarker-only scoring")
	}

	var predictions []normalizer.Prediction
	if routed && (e.gw != nil || e.backend != nil) {
		predictions = e.callModels(ctx, query, decision, patient.PatientID, sessionID)
	}

	var reports []validator.Report
	if opts.ValidatePredictions && len(predictions) > 0 {
		for _, p := range predictions {
			report := e.validatorV.Validate(validator.Input{
				AdverseEvent:       ae,
				RiskScore:          p.RiskScore,
				HoursSinceInfusion: patient.HoursSinceInfusion,
			})
			reports = append(reports, report)
			e.auditTrail.Record(audit.Entry{
				EventType: audit.EventMechanisticValidation,
				PatientID: patient.PatientID,
				SessionID: sessionID,
				Actor:     "validator",
				InputData: map[string]any{
					"model_id":   p.ModelID,
					"risk_score": p.RiskScore,
				},
				OutputData: map[string]any{
					"result":     report.Overall,
					"confidence": report.Confidence,
				},
			})
		}
	}
	result.IndividualPredictions[ae] = predictions
	result.ValidationReports[ae] = reports

	var modelPreds []scorer.ModelPrediction
	if len(predictions) > 0 {
		ensembleResult, err := ensemble.Aggregate(predictions, e.ensembleOpts)
		if err == nil {
			result.EnsemblePredictions[ae] = ensembleResult
			e.auditTrail.Record(audit.Entry{
				EventType: audit.EventEnsembleAggregation,
				PatientID: patient.PatientID,
				SessionID: sessionID,
				Actor:     "ensemble",
				OutputData: map[string]any{
					"risk_score":      ensembleResult.Score,
					"confidence":      ensembleResult.Confidence,
					"method":          ensembleResult.MethodUsed,
					"model_agreement": 1.0 - ensembleResult.Disagreement.Score,
				},
			})
		}
		for _, p := range predictions {
			modelPreds = append(modelPreds, scorer.ModelPrediction{
				Score:      p.RiskScore,
				Confidence: p.Confidence,
				ModelName:  p.ModelID,
			})
		}
	}

	safetyIdx := e.scorerV.Compute(patient, ae, modelPreds)
	result.SafetyIndices[ae] = safetyIdx

	domainScores := map[string]float64{}
	for _, ds := range safetyIdx.DomainScores {
		domainScores[ds.Domain] = ds.Score
	}
	e.auditTrail.Record(audit.Entry{
		EventType: audit.EventSafetyIndexComputed,
		PatientID: patient.PatientID,
		SessionID: sessionID,
		Actor:     "scorer",
		OutputData: map[string]any{
			"composite_score": safetyIdx.CompositeScore,
			"risk_category":   safetyIdx.RiskCategory,
			"trend":           safetyIdx.Trend,
			"domain_scores":   domainScores,
		},
		DurationMS: time.Since(aeStart).Milliseconds(),
	})

	if opts.GenerateHypotheses {
		var signals []hypothesis.ModelSignal
		for _, mp := range modelPreds {
			signals = append(signals, hypothesis.ModelSignal{ModelID: mp.ModelName, RiskScore: mp.Score})
		}
		hyps := e.hypothesisG.Generate(patient.PatientID, ae, patient.Biomarkers, signals)
		result.Hypotheses[ae] = hyps

		titles := make([]string, len(hyps))
		for i, h := range hyps {
			titles[i] = h.Title
		}
		e.auditTrail.Record(audit.Entry{
			EventType: audit.EventHypothesisGeneration,
			PatientID: patient.PatientID,
			SessionID: sessionID,
			Actor:     "hypothesis_generator",
			OutputData: map[string]any{
				"count":  len(hyps),
				"titles": titles,
			},
		})
	}

	newAlerts := e.alertEngine.Evaluate(safetyIdx)
	result.Alerts = append(result.Alerts, newAlerts...)
	for _, a := range newAlerts {
		e.auditTrail.Record(audit.Entry{
			EventType: audit.EventAlertGenerated,
			PatientID: patient.PatientID,
			SessionID: sessionID,
			Actor:     "alert_engine",
			OutputData: map[string]any{
				"alert_id": a.AlertID,
				"severity": a.Severity.String(),
				"type":     a.Type,
				"title":    a.Title,
			},
		})
	}

	return nil
}

// callModels invokes every model in the routing decision (primary plus
// ensemble peers), normalizing each response. A failed call is audited
// and skipped; it never aborts the remaining models.
func (e *Engine) callModels(ctx context.Context, query router.Query, decision router.RoutingDecision, patientID, sessionID string) []normalizer.Prediction {
	models := decision.Ensemble
	if len(models) == 0 {
		models = []router.ModelCapability{decision.Primary}
	}

	adverseEvent := "UNKNOWN"
	if len(query.AdverseEvents) > 0 {
		adverseEvent = query.AdverseEvents[0]
	}

	var predictions []normalizer.Prediction
	for _, m := range models {
		prompt := e.formatPrompt(query, m)

		e.auditTrail.Record(audit.Entry{
			EventType: audit.EventModelCall,
			PatientID: patientID,
			SessionID: sessionID,
			Actor:     "gateway",
			InputData: map[string]any{"prompt_length": len(prompt)},
			Parameters: map[string]any{
				"model_id": m.Model,
				"provider": m.Provider,
			},
		})

		start := time.Now()
		body, err := e.invokeModel(ctx, prompt, m, patientID)
		latencyMS := int(time.Since(start).Milliseconds())
		if err != nil {
			e.log.WithError(err).WithField("model_id", m.Model).Error("model call failed")
			e.auditTrail.Record(audit.Entry{
				EventType: audit.EventError,
				PatientID: patientID,
				SessionID: sessionID,
				Actor:     "gateway",
				OutputData: map[string]any{"error": err.Error()},
			})
			continue
		}

		pred := e.normalizer.Normalize(body, m.Model, patientID, adverseEvent, latencyMS, 0)
		predictions = append(predictions, pred)

		e.auditTrail.Record(audit.Entry{
			EventType: audit.EventModelResponse,
			PatientID: patientID,
			SessionID: sessionID,
			Actor:     "normalizer",
			OutputData: map[string]any{
				"risk_score": pred.RiskScore,
				"confidence": pred.Confidence,
			},
			DurationMS: int64(latencyMS),
		})
	}
	return predictions
}

func (e *Engine) invokeModel(ctx context.Context, prompt string, m router.ModelCapability, patientID string) (map[string]any, error) {
	if e.gw != nil {
		resp, err := e.gw.CallModel(ctx, m.Model, prompt, patientID, 1024, 0.2, len(prompt)/4)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
	return e.backend.Predict(ctx, prompt, m.Model)
}

// formatPrompt builds the text sent to a model for one routed query.
func (e *Engine) formatPrompt(q router.Query, m router.ModelCapability) string {
	return fmt.Sprintf(
		"%s\nPatient biomarker count: %d\nHours since infusion: %.1f\nAdverse events of interest: %v\n",
		q.QueryText, q.BiomarkerCount, q.HoursSinceInfusion, q.AdverseEvents,
	)
}

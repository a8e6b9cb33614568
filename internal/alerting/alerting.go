// Package alerting generates, prioritizes, and manages clinical safety
// alerts from Safety Index evaluations: threshold breaches, rate-of-change
// spikes, model disagreement, and sustained worsening trends, with
// configurable escalation of unacknowledged alerts over time.
package alerting

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/safetyindex"
)

// Severity is an alert's clinical urgency, ordered low to high so
// comparisons (`severity >= threshold`) work directly.
type Severity int

const (
	Info Severity = iota
	Warning
	Urgent
	Critical
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Urgent:
		return "URGENT"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON renders Severity as its name rather than its ordinal, so
// the httpapi alert feed reads "WARNING" instead of "1".
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Type categorizes the condition that produced an alert.
type Type string

const (
	ThresholdBreach    Type = "threshold_breach"
	RateOfChange       Type = "rate_of_change"
	ModelDisagreement  Type = "model_disagreement"
	TrendWorsening     Type = "trend_worsening"
)

// Status is an alert's lifecycle state. Resolved is terminal.
type Status string

const (
	Active       Status = "active"
	Acknowledged Status = "acknowledged"
	Resolved     Status = "resolved"
)

// ThresholdConfig is the per-adverse-event alerting configuration.
type ThresholdConfig struct {
	AdverseEvent          string
	WarningThreshold      float64
	UrgentThreshold       float64
	CriticalThreshold     float64
	RateOfChangeThreshold float64
	CooldownSeconds       float64
}

func defaultThresholdConfig(ae string) ThresholdConfig {
	return ThresholdConfig{
		AdverseEvent:          ae,
		WarningThreshold:      0.4,
		UrgentThreshold:       0.6,
		CriticalThreshold:     0.8,
		RateOfChangeThreshold: 0.05,
		CooldownSeconds:       1800,
	}
}

// Alert is a single clinical safety alert.
type Alert struct {
	AlertID            string         `json:"alert_id"`
	PatientID          string         `json:"patient_id"`
	AdverseEvent       string         `json:"adverse_event"`
	Type               Type           `json:"type"`
	Severity           Severity       `json:"severity"`
	Status             Status         `json:"status"`
	Title              string         `json:"title"`
	Message            string         `json:"message"`
	SafetyIndexScore   float64        `json:"safety_index_score"`
	TriggerValue       float64        `json:"trigger_value"`
	ThresholdValue     float64        `json:"threshold_value"`
	RecommendedActions []string       `json:"recommended_actions"`
	CreatedAt          time.Time      `json:"created_at"`
	AcknowledgedAt     *time.Time     `json:"acknowledged_at,omitempty"`
	ResolvedAt         *time.Time     `json:"resolved_at,omitempty"`
	AcknowledgedBy     string         `json:"acknowledged_by,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// EscalationRule promotes an unacknowledged alert's severity after a
// fixed delay.
type EscalationRule struct {
	AfterMinutes        float64
	EscalateToSeverity  Severity
	NotifyRoles         []string
	MessageSuffix       string
}

func defaultEscalationRules() []EscalationRule {
	return []EscalationRule{
		{AfterMinutes: 15, EscalateToSeverity: Urgent, NotifyRoles: []string{"charge_nurse"}, MessageSuffix: "[ESCALATED: unacknowledged for 15 min]"},
		{AfterMinutes: 30, EscalateToSeverity: Critical, NotifyRoles: []string{"attending_physician", "charge_nurse"}, MessageSuffix: "[ESCALATED: unacknowledged for 30 min]"},
	}
}

// Handler is called synchronously for each newly created alert. Handler
// panics/errors are logged and swallowed; they never interrupt
// evaluation of other alerts.
type Handler func(Alert)

type scorePoint struct {
	score float64
	at    time.Time
}

type cooldownKey struct {
	patientID    string
	adverseEvent string
	alertType    Type
}

// Engine generates and manages clinical safety alerts from Safety Index
// evaluations.
type Engine struct {
	mu sync.Mutex

	log              *logrus.Logger
	thresholds       map[string]ThresholdConfig
	escalationRules  []EscalationRule
	activeAlerts     map[string]*Alert
	alertCounter     int
	handlers         []Handler
	cooldowns        map[cooldownKey]time.Time
	scoreHistory     map[cooldownKey][]scorePoint
}

// New creates an Engine with the default escalation rules and no
// per-AE threshold overrides.
func New(log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		log:             log,
		thresholds:      make(map[string]ThresholdConfig),
		escalationRules: defaultEscalationRules(),
		activeAlerts:    make(map[string]*Alert),
		cooldowns:       make(map[cooldownKey]time.Time),
		scoreHistory:    make(map[cooldownKey][]scorePoint),
	}
}

// ConfigureThresholds sets the threshold configuration for one adverse
// event, overriding the default.
func (e *Engine) ConfigureThresholds(cfg ThresholdConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.thresholds[cfg.AdverseEvent] = cfg
}

// SetEscalationRules overrides the default escalation rules.
func (e *Engine) SetEscalationRules(rules []EscalationRule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.escalationRules = rules
}

// RegisterHandler registers a handler invoked for every new alert.
func (e *Engine) RegisterHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// Evaluate runs all checks against a Safety Index, dispatches any new
// alerts to registered handlers, and processes escalation of existing
// active alerts. The score is recorded in history before the
// sustained-worsening check, so it counts as the latest of the three
// points that check compares. Returns the new alerts (may be empty).
func (e *Engine) Evaluate(si safetyindex.Index) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, ok := e.thresholds[si.AdverseEvent]
	if !ok {
		cfg = defaultThresholdConfig(si.AdverseEvent)
	}

	var newAlerts []Alert

	if a := e.checkThresholds(si, cfg); a != nil {
		newAlerts = append(newAlerts, *a)
	}
	if a := e.checkRateOfChange(si, cfg); a != nil {
		newAlerts = append(newAlerts, *a)
	}
	if si.ModelAgreement < 0.6 {
		if a := e.createDisagreementAlert(si); a != nil {
			newAlerts = append(newAlerts, *a)
		}
	}

	key := cooldownKey{patientID: si.PatientID, adverseEvent: si.AdverseEvent}
	e.scoreHistory[key] = append(e.scoreHistory[key], scorePoint{score: si.CompositeScore, at: time.Now()})

	if a := e.checkTrend(si); a != nil {
		newAlerts = append(newAlerts, *a)
	}

	for i := range newAlerts {
		stored := newAlerts[i]
		e.activeAlerts[stored.AlertID] = &stored
		e.dispatch(stored)
	}

	e.processEscalations()

	return newAlerts
}

func (e *Engine) dispatch(a Alert) {
	for _, h := range e.handlers {
		e.safeInvoke(h, a)
	}
}

func (e *Engine) safeInvoke(h Handler, a Alert) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithFields(logrus.Fields{"alert_id": a.AlertID, "panic": r}).Error("alert handler panicked")
		}
	}()
	h(a)
}

// AcknowledgeAlert marks an alert as acknowledged. Returns false if the
// alert is unknown or already resolved.
func (e *Engine) AcknowledgeAlert(alertID, acknowledgedBy string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.activeAlerts[alertID]
	if !ok || a.Status == Resolved {
		return false
	}
	now := time.Now()
	a.Status = Acknowledged
	a.AcknowledgedAt = &now
	a.AcknowledgedBy = acknowledgedBy
	return true
}

// ResolveAlert marks an alert resolved (terminal). Returns false if the
// alert is unknown.
func (e *Engine) ResolveAlert(alertID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.activeAlerts[alertID]
	if !ok {
		return false
	}
	now := time.Now()
	a.Status = Resolved
	a.ResolvedAt = &now
	return true
}

// GetActiveAlerts returns Active/Acknowledged alerts, optionally filtered
// by patient and minimum severity, sorted by severity descending.
func (e *Engine) GetActiveAlerts(patientID string, minSeverity Severity) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Alert
	for _, a := range e.activeAlerts {
		if a.Status != Active && a.Status != Acknowledged {
			continue
		}
		if a.Severity < minSeverity {
			continue
		}
		if patientID != "" && a.PatientID != patientID {
			continue
		}
		out = append(out, *a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Severity > out[j].Severity })
	return out
}

func (e *Engine) checkThresholds(si safetyindex.Index, cfg ThresholdConfig) *Alert {
	var severity Severity
	var threshold float64

	switch {
	case si.CompositeScore >= cfg.CriticalThreshold:
		severity, threshold = Critical, cfg.CriticalThreshold
	case si.CompositeScore >= cfg.UrgentThreshold:
		severity, threshold = Urgent, cfg.UrgentThreshold
	case si.CompositeScore >= cfg.WarningThreshold:
		severity, threshold = Warning, cfg.WarningThreshold
	default:
		return nil
	}

	if e.isOnCooldown(si.PatientID, si.AdverseEvent, ThresholdBreach, cfg.CooldownSeconds) {
		return nil
	}

	return e.newAlert(
		si.PatientID, si.AdverseEvent, ThresholdBreach, severity,
		fmt.Sprintf("%s - %s Safety Index at %.2f", severity, si.AdverseEvent, si.CompositeScore),
		fmt.Sprintf(
			"Patient %s: %s Safety Index (%.3f) has crossed the %s threshold (%.2f). Risk category: %s. Hours since infusion: %.1f.",
			si.PatientID, si.AdverseEvent, si.CompositeScore, severity, threshold, si.RiskCategory, si.HoursSinceInfusion,
		),
		si.CompositeScore, si.CompositeScore, threshold,
		recommendedActions(si.AdverseEvent, severity),
	)
}

func (e *Engine) checkRateOfChange(si safetyindex.Index, cfg ThresholdConfig) *Alert {
	if abs(si.Trend) < cfg.RateOfChangeThreshold || si.Trend <= 0 {
		return nil
	}
	if e.isOnCooldown(si.PatientID, si.AdverseEvent, RateOfChange, cfg.CooldownSeconds) {
		return nil
	}

	severity := Warning
	switch {
	case si.Trend > cfg.RateOfChangeThreshold*3:
		severity = Critical
	case si.Trend > cfg.RateOfChangeThreshold*2:
		severity = Urgent
	}

	return e.newAlert(
		si.PatientID, si.AdverseEvent, RateOfChange, severity,
		fmt.Sprintf("Rapid %s risk increase: +%.4f/hr", si.AdverseEvent, si.Trend),
		fmt.Sprintf(
			"Patient %s: %s Safety Index is increasing at %.4f/hr (threshold: %.4f/hr). Current score: %.3f.",
			si.PatientID, si.AdverseEvent, si.Trend, cfg.RateOfChangeThreshold, si.CompositeScore,
		),
		si.CompositeScore, si.Trend, cfg.RateOfChangeThreshold,
		[]string{
			"Increase biomarker monitoring frequency",
			"Review cytokine trajectory for accelerating pattern",
			"Prepare intervention protocol",
		},
	)
}

const oneHourCooldownSeconds = 3600

func (e *Engine) createDisagreementAlert(si safetyindex.Index) *Alert {
	if e.isOnCooldown(si.PatientID, si.AdverseEvent, ModelDisagreement, oneHourCooldownSeconds) {
		return nil
	}

	return e.newAlert(
		si.PatientID, si.AdverseEvent, ModelDisagreement, Warning,
		fmt.Sprintf("Model disagreement for %s (agreement: %.0f%%)", si.AdverseEvent, si.ModelAgreement*100),
		fmt.Sprintf(
			"Patient %s: Foundation models disagree on %s risk. Agreement: %.0f%%. Ensemble score: %.3f. Clinical judgment should guide decision-making.",
			si.PatientID, si.AdverseEvent, si.ModelAgreement*100, si.CompositeScore,
		),
		si.CompositeScore, si.ModelAgreement, 0.6,
		[]string{
			"Review individual model predictions",
			"Prioritize biomarker data over model predictions",
			"Consider requesting additional clinical data",
		},
	)
}

func (e *Engine) checkTrend(si safetyindex.Index) *Alert {
	key := cooldownKey{patientID: si.PatientID, adverseEvent: si.AdverseEvent}
	history := e.scoreHistory[key]
	if len(history) < 3 {
		return nil
	}

	recent := history[len(history)-3:]
	monotonic := true
	for i := 0; i < len(recent)-1; i++ {
		if !(recent[i].score < recent[i+1].score) {
			monotonic = false
			break
		}
	}
	if !monotonic {
		return nil
	}

	totalIncrease := recent[len(recent)-1].score - recent[0].score
	if totalIncrease <= 0.1 {
		return nil
	}
	if e.isOnCooldown(si.PatientID, si.AdverseEvent, TrendWorsening, oneHourCooldownSeconds) {
		return nil
	}

	trajectory := make([]string, 0, len(recent))
	for _, p := range recent {
		trajectory = append(trajectory, fmt.Sprintf("%.3f", p.score))
	}

	return e.newAlert(
		si.PatientID, si.AdverseEvent, TrendWorsening, Urgent,
		fmt.Sprintf("Sustained worsening: %s score increased %.3f over last 3 assessments", si.AdverseEvent, totalIncrease),
		fmt.Sprintf(
			"Patient %s: %s Safety Index has been consistently worsening. Score trajectory: %s. Total increase: %.3f.",
			si.PatientID, si.AdverseEvent, joinArrow(trajectory), totalIncrease,
		),
		si.CompositeScore, totalIncrease, 0.1,
		[]string{
			"Clinical team review of patient trajectory",
			"Consider preemptive intervention",
			"Increase monitoring frequency to q4h or more",
		},
	)
}

func joinArrow(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " -> "
		}
		out += p
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func (e *Engine) newAlert(patientID, ae string, t Type, severity Severity, title, message string, siScore, trigger, threshold float64, actions []string) *Alert {
	e.alertCounter++
	return &Alert{
		AlertID:            fmt.Sprintf("ALERT-%08d", e.alertCounter),
		PatientID:          patientID,
		AdverseEvent:       ae,
		Type:               t,
		Severity:           severity,
		Status:             Active,
		Title:              title,
		Message:            message,
		SafetyIndexScore:   siScore,
		TriggerValue:       trigger,
		ThresholdValue:     threshold,
		RecommendedActions: actions,
		CreatedAt:          time.Now(),
		Metadata:           map[string]any{},
	}
}

// isOnCooldown reports whether alertType is within its cooldown window
// for (patientID, ae). When it is not (first attempt, or the window has
// elapsed) the attempt time is recorded as the new window start; an
// attempt inside the window leaves the stored time unchanged.
func (e *Engine) isOnCooldown(patientID, ae string, t Type, cooldownSeconds float64) bool {
	key := cooldownKey{patientID: patientID, adverseEvent: ae, alertType: t}
	last, ok := e.cooldowns[key]
	now := time.Now()
	if !ok {
		e.cooldowns[key] = now
		return false
	}
	if now.Sub(last).Seconds() < cooldownSeconds {
		return true
	}
	e.cooldowns[key] = now
	return false
}

func (e *Engine) processEscalations() {
	now := time.Now()
	for _, a := range e.activeAlerts {
		if a.Status != Active {
			continue
		}
		for _, rule := range e.escalationRules {
			elapsedMinutes := now.Sub(a.CreatedAt).Minutes()
			if elapsedMinutes >= rule.AfterMinutes && a.Severity < rule.EscalateToSeverity {
				old := a.Severity
				a.Severity = rule.EscalateToSeverity
				if rule.MessageSuffix != "" {
					a.Message += " " + rule.MessageSuffix
				}
				e.log.WithFields(logrus.Fields{
					"alert_id": a.AlertID, "from": old.String(), "to": a.Severity.String(), "elapsed_minutes": elapsedMinutes,
				}).Warn("alert escalated")
			}
		}
	}
}

func recommendedActions(adverseEvent string, severity Severity) []string {
	var actions []string

	if severity >= Critical {
		actions = append(actions, "Immediate physician bedside evaluation")
	}

	switch adverseEvent {
	case "CRS":
		if severity >= Urgent {
			actions = append(actions, "Consider tocilizumab administration per protocol", "Monitor vitals q1h (BP, SpO2, temperature)")
		}
		if severity >= Critical {
			actions = append(actions, "Evaluate for vasopressor support", "Consider ICU transfer")
		}
		actions = append(actions, "Order stat IL-6, CRP, ferritin levels")
	case "ICANS":
		if severity >= Urgent {
			actions = append(actions, "Perform ICE assessment", "Consider dexamethasone per protocol")
		}
		if severity >= Critical {
			actions = append(actions, "Evaluate for seizure prophylaxis", "Consider brain imaging")
		}
		actions = append(actions, "Neurological checks q2h")
	case "HLH":
		if severity >= Urgent {
			actions = append(actions, "Stat ferritin, D-dimer, fibrinogen, LDH", "Consider anakinra per protocol")
		}
		if severity >= Critical {
			actions = append(actions, "Evaluate for ruxolitinib", "Consider ICU transfer for organ support")
		}
		actions = append(actions, "Monitor for coagulopathy (DIC screen)")
	}

	return actions
}

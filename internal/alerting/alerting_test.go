package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/safetyindex"
)

func baseIndex(score float64) safetyindex.Index {
	return safetyindex.Index{
		PatientID:          "PAT-1",
		AdverseEvent:       "CRS",
		CompositeScore:     score,
		RiskCategory:       safetyindex.Categorize(score),
		HoursSinceInfusion: 48,
		ModelAgreement:     1.0,
	}
}

func TestEvaluateThresholdBreachCritical(t *testing.T) {
	e := New(nil)
	alerts := e.Evaluate(baseIndex(0.85))

	require.Len(t, alerts, 1)
	assert.Equal(t, ThresholdBreach, alerts[0].Type)
	assert.Equal(t, Critical, alerts[0].Severity)
	assert.Contains(t, alerts[0].RecommendedActions, "Immediate physician bedside evaluation")
}

func TestEvaluateBelowWarningProducesNoThresholdAlert(t *testing.T) {
	e := New(nil)
	alerts := e.Evaluate(baseIndex(0.1))
	assert.Empty(t, alerts)
}

func TestEvaluateThresholdRespectsCooldown(t *testing.T) {
	e := New(nil)
	e.ConfigureThresholds(ThresholdConfig{AdverseEvent: "CRS", WarningThreshold: 0.4, UrgentThreshold: 0.6, CriticalThreshold: 0.8, CooldownSeconds: 1800})

	first := e.Evaluate(baseIndex(0.85))
	require.Len(t, first, 1)

	second := e.Evaluate(baseIndex(0.9))
	assert.Empty(t, second, "repeat breach within cooldown should not re-alert")
}

func TestEvaluateRateOfChangeSeverityScalesWithTrend(t *testing.T) {
	e := New(nil)
	idx := baseIndex(0.5)
	idx.Trend = 0.2 // > 3x default 0.05 threshold

	alerts := e.Evaluate(idx)
	var roc *Alert
	for i := range alerts {
		if alerts[i].Type == RateOfChange {
			roc = &alerts[i]
		}
	}
	require.NotNil(t, roc)
	assert.Equal(t, Critical, roc.Severity)
}

func TestEvaluateNegativeTrendProducesNoRateOfChangeAlert(t *testing.T) {
	e := New(nil)
	idx := baseIndex(0.5)
	idx.Trend = -0.2

	alerts := e.Evaluate(idx)
	for _, a := range alerts {
		assert.NotEqual(t, RateOfChange, a.Type)
	}
}

func TestEvaluateModelDisagreementBelowThreshold(t *testing.T) {
	e := New(nil)
	idx := baseIndex(0.1)
	idx.ModelAgreement = 0.3

	alerts := e.Evaluate(idx)
	found := false
	for _, a := range alerts {
		if a.Type == ModelDisagreement {
			found = true
			assert.Equal(t, Warning, a.Severity)
		}
	}
	assert.True(t, found)
}

func TestEvaluateSustainedWorseningAfterThreeRisingScores(t *testing.T) {
	e := New(nil)
	idx := baseIndex(0.05)
	idx.ModelAgreement = 1.0

	e.Evaluate(idx)
	idx.CompositeScore = 0.1
	e.Evaluate(idx)
	idx.CompositeScore = 0.2
	alerts := e.Evaluate(idx)

	found := false
	for _, a := range alerts {
		if a.Type == TrendWorsening {
			found = true
			assert.Equal(t, Urgent, a.Severity)
		}
	}
	assert.True(t, found, "expected a sustained worsening alert after 3 monotonically rising scores with >0.1 total rise")
}

func TestAcknowledgeAndResolveLifecycle(t *testing.T) {
	e := New(nil)
	alerts := e.Evaluate(baseIndex(0.85))
	require.Len(t, alerts, 1)
	id := alerts[0].AlertID

	assert.True(t, e.AcknowledgeAlert(id, "nurse-1"))
	active := e.GetActiveAlerts("", Info)
	require.Len(t, active, 1)
	assert.Equal(t, Acknowledged, active[0].Status)

	assert.True(t, e.ResolveAlert(id))
	assert.Empty(t, e.GetActiveAlerts("", Info))
}

func TestAcknowledgeUnknownAlertReturnsFalse(t *testing.T) {
	e := New(nil)
	assert.False(t, e.AcknowledgeAlert("ALERT-NOPE", "nurse-1"))
}

func TestGetActiveAlertsFiltersByPatientAndSeverity(t *testing.T) {
	e := New(nil)
	e.Evaluate(baseIndex(0.85)) // PAT-1, Critical

	other := baseIndex(0.5)
	other.PatientID = "PAT-2"
	e.Evaluate(other)

	onlyPat1 := e.GetActiveAlerts("PAT-1", Info)
	require.Len(t, onlyPat1, 1)
	assert.Equal(t, "PAT-1", onlyPat1[0].PatientID)

	onlyCritical := e.GetActiveAlerts("", Critical)
	for _, a := range onlyCritical {
		assert.GreaterOrEqual(t, a.Severity, Critical)
	}
}

func TestEscalationPromotesUnacknowledgedAlertAfterDelay(t *testing.T) {
	e := New(nil)
	e.SetEscalationRules([]EscalationRule{
		{AfterMinutes: 0, EscalateToSeverity: Critical, MessageSuffix: "[ESCALATED]"},
	})

	idx := baseIndex(0.5) // Warning-level breach
	alerts := e.Evaluate(idx)
	require.Len(t, alerts, 1)
	id := alerts[0].AlertID

	// processEscalations already ran once inside Evaluate with AfterMinutes: 0,
	// so the alert should already be promoted to Critical.
	active := e.GetActiveAlerts("", Info)
	require.Len(t, active, 1)
	assert.Equal(t, Critical, active[0].Severity)
	assert.Equal(t, id, active[0].AlertID)
}

func TestHandlerPanicIsSwallowed(t *testing.T) {
	e := New(nil)
	called := false
	e.RegisterHandler(func(a Alert) {
		called = true
		panic("handler exploded")
	})

	assert.NotPanics(t, func() {
		e.Evaluate(baseIndex(0.85))
	})
	assert.True(t, called)
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "WARNING", Warning.String())
	assert.Equal(t, "CRITICAL", Critical.String())
}

func TestAlertCreatedAtIsRecent(t *testing.T) {
	e := New(nil)
	alerts := e.Evaluate(baseIndex(0.85))
	require.Len(t, alerts, 1)
	assert.WithinDuration(t, time.Now(), alerts[0].CreatedAt, time.Second)
}

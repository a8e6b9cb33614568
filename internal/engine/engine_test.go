package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/graph"
	"github.com/psp-engine/psp/internal/router"
	"github.com/psp-engine/psp/internal/safetyindex"
	"github.com/psp-engine/psp/internal/safetyindex/scorer"
)

// stubBackend returns a fixed high-risk JSON prediction for every call.
type stubBackend struct {
	calls int
}

func (b *stubBackend) Predict(ctx context.Context, prompt, modelID string) (map[string]any, error) {
	b.calls++
	var body map[string]any
	raw := `{"risk_score": 0.82, "confidence": 0.9, "reasoning": "elevated IL-6 trajectory"}`
	_ = json.Unmarshal([]byte(raw), &body)
	return body, nil
}

func buildEngineGraph() *graph.Graph {
	g := graph.New()
	g.AddNode(graph.Node{ID: "AE:CRS", Type: graph.NodeAdverseEvent, Name: "CRS"})
	g.AddNode(graph.Node{
		ID: "CYTOKINE:IL6", Type: graph.NodeCytokine, Name: "IL-6",
		ReferenceRanges: map[string]graph.ReferenceRange{
			"pg_ml": {Low: 0, High: 7},
		},
	})
	_ = g.AddEdge(graph.Edge{Source: "CYTOKINE:IL6", Target: "AE:CRS", Type: graph.EdgeTriggers, Weight: 0.9})
	return g
}

func crsPatient() scorer.PatientData {
	return scorer.PatientData{
		PatientID:          "PAT-1",
		HoursSinceInfusion: 48,
		Biomarkers: map[string]float64{
			"CYTOKINE:IL6": 60,
		},
		CarTProduct: "tisagenlecleucel",
	}
}

func TestProcessPatientBeforeInitializeReturnsError(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	_, err := e.ProcessPatient(context.Background(), crsPatient(), ProcessPatientOptions{})
	assert.ErrorIs(t, err, domain.ErrEngineNotInitialized)
}

func TestProcessPatientBiomarkerOnlyScoringWithNoModels(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	e.Initialize(false, nil)

	result, err := e.ProcessPatient(context.Background(), crsPatient(), ProcessPatientOptions{
		AdverseEvents:      []string{"CRS"},
		GenerateHypotheses: true,
		ValidatePredictions: true,
	})
	require.NoError(t, err)

	idx, ok := result.SafetyIndices["CRS"]
	require.True(t, ok)
	assert.Greater(t, idx.CompositeScore, 0.0)
	assert.Empty(t, result.IndividualPredictions["CRS"], "no routed models means no individual predictions")
	assert.NotEmpty(t, result.Hypotheses["CRS"], "elevated IL-6 upstream of CRS should yield a pathway hypothesis")
	assert.NotEmpty(t, result.SessionID)
}

func TestProcessPatientDefaultsToThreeAdverseEvents(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	e.Initialize(false, nil)

	result, err := e.ProcessPatient(context.Background(), crsPatient(), ProcessPatientOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CRS", "ICANS", "HLH"}, result.AdverseEvents)
	assert.Len(t, result.SafetyIndices, 3)
}

func TestProcessPatientRoutesAndCallsRegisteredModel(t *testing.T) {
	backend := &stubBackend{}
	e := New(buildEngineGraph(), nil, backend, nil, Options{})
	e.Initialize(false, nil)
	e.RegisterModel(router.ModelCapability{
		Model:         "claude-safety-v1",
		Provider:      "anthropic",
		Healthy:       true,
		MaxComplexity: router.Expert,
		Domains:       map[router.ClinicalDomain]float64{router.DomainCRS: 0.9},
		Reliability:   0.95,
	})

	result, err := e.ProcessPatient(context.Background(), crsPatient(), ProcessPatientOptions{
		AdverseEvents: []string{"CRS"},
	})
	require.NoError(t, err)

	assert.Greater(t, backend.calls, 0)
	preds := result.IndividualPredictions["CRS"]
	require.Len(t, preds, 1)
	assert.Equal(t, "claude-safety-v1", preds[0].ModelID)
	assert.InDelta(t, 0.82, preds[0].RiskScore, 0.001)

	ensembleResult, ok := result.EnsemblePredictions["CRS"]
	require.True(t, ok)
	assert.InDelta(t, 0.82, ensembleResult.Score, 0.001)
}

func TestProcessPatientUnmodeledAdverseEventDoesNotAbortOthers(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	e.Initialize(false, nil)

	result, err := e.ProcessPatient(context.Background(), crsPatient(), ProcessPatientOptions{
		AdverseEvents: []string{"CRS", "UNKNOWN_AE", "ICANS"},
	})
	require.NoError(t, err)
	assert.Contains(t, result.SafetyIndices, "CRS")
	assert.Contains(t, result.SafetyIndices, "ICANS")
}

func TestInitializeConfiguresPerAdverseEventThresholds(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	e.Initialize(false, nil)

	// HLH's warning threshold (0.3) is lower than the CRS/generic default
	// (0.4); a composite score of 0.35 should breach HLH's threshold but
	// would not breach CRS's, proving the AE-specific config was wired.
	alerts := e.AlertEngineHandle().Evaluate(safetyindex.Index{
		PatientID: "PAT-1", AdverseEvent: "HLH", CompositeScore: 0.35,
		RiskCategory: safetyindex.Categorize(0.35), ModelAgreement: 1.0,
	})
	require.Len(t, alerts, 1)
	assert.Equal(t, "threshold_breach", string(alerts[0].Type))
}

func TestAlertsAreEvaluatedEveryCall(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	e.Initialize(false, nil)

	patient := crsPatient()
	patient.Biomarkers["CYTOKINE:IL6"] = 6000 // deep critical range

	result, err := e.ProcessPatient(context.Background(), patient, ProcessPatientOptions{
		AdverseEvents: []string{"CRS"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Alerts)
}

func TestAuditTrailRecordsPredictionRequest(t *testing.T) {
	e := New(buildEngineGraph(), nil, nil, nil, Options{})
	e.Initialize(false, nil)

	result, err := e.ProcessPatient(context.Background(), crsPatient(), ProcessPatientOptions{
		AdverseEvents: []string{"CRS"},
	})
	require.NoError(t, err)

	records := e.AuditTrail().GetSessionRecords(result.SessionID)
	require.NotEmpty(t, records)
	assert.Equal(t, "prediction_request", string(records[0].EventType))
}

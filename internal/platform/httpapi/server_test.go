package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/alerting"
	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/engine"
	"github.com/psp-engine/psp/internal/graph"
	"github.com/psp-engine/psp/internal/safetyindex"
	"github.com/psp-engine/psp/internal/safetyindex/scorer"
)

func sampleIndexTriggeringAlert() safetyindex.Index {
	return safetyindex.Index{
		PatientID:      "P-1",
		AdverseEvent:   "CRS",
		CompositeScore: 0.9,
		RiskCategory:   safetyindex.RiskCritical,
	}
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := testLogger()
	eng := engine.New(graph.New(), nil, nil, log, engine.Options{MaxAuditRecords: 100})
	eng.Initialize(false, nil)
	return NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, eng, nil, log)
}

func TestHandleHealthReportsInitializedStatus(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleAssessPatientRunsPipelineAndReturnsResult(t *testing.T) {
	s := newTestServer(t)

	payload := scorer.PatientData{
		HoursSinceInfusion: 48,
		Biomarkers:         map[string]float64{"IL6": 250},
		CarTProduct:        "axi-cel",
	}
	body, err := json.Marshal(struct {
		scorer.PatientData
		AdverseEvents []string `json:"adverse_events"`
	}{PatientData: payload, AdverseEvents: []string{"CRS"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/P-1/assess", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.PredictionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "P-1", result.PatientID)
	assert.Contains(t, result.AdverseEvents, "CRS")
	assert.Contains(t, result.SafetyIndices, "CRS")
}

func TestHandleAssessPatientRejectsMalformedBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/P-1/assess", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var mcpErr domain.MCPError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mcpErr))
	assert.Equal(t, domain.ErrCodeValidation, mcpErr.Code)
}

func TestHandleAssessPatientReturns503WhenNotInitialized(t *testing.T) {
	log := testLogger()
	eng := engine.New(graph.New(), nil, nil, log, engine.Options{})
	s := NewServer(domain.ServerConfig{}, eng, nil, log)

	body, err := json.Marshal(scorer.PatientData{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients/P-2/assess", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleListAlertsFiltersBySeverity(t *testing.T) {
	s := newTestServer(t)
	s.engine.AlertEngineHandle().Evaluate(sampleIndexTriggeringAlert())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?min_severity=0", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Alerts []alerting.Alert `json:"alerts"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Greater(t, body.Count, 0)
}

func TestHandleGetAuditSessionReturns404ForUnknownSession(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertHubBroadcastsToRegisteredClients(t *testing.T) {
	hub := newAlertHub(context.Background())
	go hub.run()
	defer hub.stop()

	client := &wsClient{hub: hub, send: make(chan []byte, 1), log: testLogger()}
	hub.register <- client

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, time.Second, time.Millisecond)

	hub.onAlert(alerting.Alert{AlertID: "A-1", PatientID: "P-1", Type: alerting.ThresholdBreach})

	select {
	case msg := <-client.send:
		assert.Contains(t, string(msg), "A-1")
	default:
		t.Fatal("expected broadcast message on client.send")
	}
}

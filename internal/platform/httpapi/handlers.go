package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/psp-engine/psp/internal/alerting"
	"github.com/psp-engine/psp/internal/domain"
	"github.com/psp-engine/psp/internal/engine"
	"github.com/psp-engine/psp/internal/platform/logging"
	"github.com/psp-engine/psp/internal/safetyindex/scorer"
)

// assessRequest is the request body for POST /patients/:id/assess. The
// path parameter is authoritative; a conflicting patient_id in the body is
// overwritten rather than rejected.
type assessRequest struct {
	scorer.PatientData
	AdverseEvents       []string `json:"adverse_events"`
	GenerateHypotheses  bool     `json:"generate_hypotheses"`
	ValidatePredictions bool     `json:"validate_predictions"`
}

func (s *Server) handleAssessPatient(c *gin.Context) {
	patientID := c.Param("id")

	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "malformed request body", err.Error())
		return
	}
	req.PatientData.PatientID = patientID

	ctx := logging.WithRequest(c.Request.Context(), logging.RequestFields{PatientID: patientID})

	result, err := s.engine.ProcessPatient(ctx, req.PatientData, engine.ProcessPatientOptions{
		AdverseEvents:       req.AdverseEvents,
		GenerateHypotheses:  req.GenerateHypotheses,
		ValidatePredictions: req.ValidatePredictions,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEngineNotInitialized) {
			s.respondError(c, http.StatusServiceUnavailable, domain.ErrCodeNotInitialized, "engine not initialized", "")
			return
		}
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternal, "assessment pipeline failed", err.Error())
		return
	}

	if s.cache != nil {
		if cerr := s.cache.Set(ctx, result.SessionID, result, 0); cerr != nil {
			logging.FromContext(ctx, s.log).WithError(cerr).Warn("failed to cache assessment result")
		}
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListAlerts(c *gin.Context) {
	patientID := c.Query("patient_id")
	minSeverity := alerting.Info
	if raw := c.Query("min_severity"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			minSeverity = alerting.Severity(n)
		}
	}

	alerts := s.engine.AlertEngineHandle().GetActiveAlerts(patientID, minSeverity)
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	alertID := c.Param("id")
	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	_ = c.ShouldBindJSON(&body)

	if !s.engine.AlertEngineHandle().AcknowledgeAlert(alertID, body.AcknowledgedBy) {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "alert not found or already resolved", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"acknowledged": true})
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	alertID := c.Param("id")
	if !s.engine.AlertEngineHandle().ResolveAlert(alertID) {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "alert not found", "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

func (s *Server) handleGetAuditSession(c *gin.Context) {
	sessionID := c.Param("session")
	records := s.engine.AuditTrail().GetSessionRecords(sessionID)
	if len(records) == 0 {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "no audit records for session", sessionID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "records": records})
}

func (s *Server) handleGetProvenance(c *gin.Context) {
	sessionID := c.Param("session")
	prov, ok := s.engine.AuditTrail().GetPredictionProvenance(sessionID)
	if !ok {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeNotFound, "no provenance for session", sessionID)
		return
	}
	c.JSON(http.StatusOK, prov)
}

func (s *Server) handleAlertStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("alert feed websocket upgrade failed")
		return
	}

	client := newWSClient(s.hub, conn, s.log)
	s.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (s *Server) respondError(c *gin.Context, status int, code, message, details string) {
	c.JSON(status, domain.NewMCPError(code, message, details, requestID(c)))
}

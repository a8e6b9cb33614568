// Package audit implements an append-only, hash-chained audit trail for
// full prediction reproducibility: every model call, validation,
// ensemble aggregation, hypothesis, and alert is recorded with enough
// provenance to reconstruct and verify the chain of operations that
// produced a prediction.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType categorizes what an audit record describes.
type EventType string

const (
	EventPredictionRequest     EventType = "prediction_request"
	EventModelCall             EventType = "model_call"
	EventModelResponse         EventType = "model_response"
	EventNormalization         EventType = "normalization"
	EventEnsembleAggregation   EventType = "ensemble_aggregation"
	EventHypothesisGeneration  EventType = "hypothesis_generation"
	EventMechanisticValidation EventType = "mechanistic_validation"
	EventSafetyIndexComputed   EventType = "safety_index_computation"
	EventAlertGenerated        EventType = "alert_generated"
	EventAlertAcknowledged     EventType = "alert_acknowledged"
	EventAlertResolved         EventType = "alert_resolved"
	EventConfigurationChange   EventType = "configuration_change"
	EventError                 EventType = "error"
)

// Record is an immutable audit entry. Once appended to the trail its
// field values never change.
type Record struct {
	RecordID       int            `json:"record_id"`
	EventType      EventType      `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`
	PatientID      string         `json:"patient_id"`
	SessionID      string         `json:"session_id"`
	Actor          string         `json:"actor"`
	InputData      map[string]any `json:"input_data,omitempty"`
	OutputData     map[string]any `json:"output_data,omitempty"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	DurationMS     int64          `json:"duration_ms"`
	ParentRecordID *int           `json:"parent_record_id,omitempty"`
	ContentHash    string         `json:"content_hash"`
	ChainHash      string         `json:"chain_hash"`
}

// Entry is the caller-supplied content for a new record; RecordID,
// Timestamp, ContentHash, and ChainHash are assigned by Record.
type Entry struct {
	EventType      EventType
	PatientID      string
	SessionID      string
	Actor          string
	InputData      map[string]any
	OutputData     map[string]any
	Parameters     map[string]any
	DurationMS     int64
	ParentRecordID *int
}

const genesisHash = "genesis"

// Trail is an append-only, hash-chained audit log.
//
// When the in-memory record count exceeds maxRecords, the oldest
// records are archived: logged at Info and dropped from memory. The
// hash chain restarts from the oldest retained record's own chain_hash,
// meaning VerifyChainIntegrity only verifies records still held in
// memory — not the full history since process start. Callers that need
// durable full-history verification must persist archived records
// before they are dropped.
type Trail struct {
	mu sync.Mutex

	log            *logrus.Logger
	maxRecords     int
	records        []Record
	recordCounter  int
	sessionCounter int
	lastChainHash  string
	archiver       func(Record)
}

// New creates a Trail retaining at most maxRecords in memory. maxRecords
// <= 0 means unbounded.
func New(log *logrus.Logger, maxRecords int) *Trail {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trail{
		log:           log,
		maxRecords:    maxRecords,
		lastChainHash: genesisHash,
	}
}

// SetArchiver registers a callback invoked, in record order, with every
// record dropped from memory once the trail exceeds maxRecords. A nil
// archiver (the default) means dropped records are gone for good except
// for the one Info log line archiveOldest already writes; callers that
// need durable full-history storage (internal/platform/persistence)
// should register one at startup.
func (t *Trail) SetArchiver(archiver func(Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.archiver = archiver
}

// StartSession allocates a new session ID and writes a session-start
// record, returning the session ID.
func (t *Trail) StartSession(patientID string) string {
	t.mu.Lock()
	t.sessionCounter++
	sessionID := fmt.Sprintf("SESSION-%08d", t.sessionCounter)
	t.mu.Unlock()

	t.Record(Entry{
		EventType: EventPredictionRequest,
		PatientID: patientID,
		SessionID: sessionID,
		Actor:     "system",
		InputData: map[string]any{"action": "session_start"},
	})

	return sessionID
}

// Record appends a new record to the trail and returns its record ID.
func (t *Trail) Record(e Entry) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.recordCounter++
	recordID := t.recordCounter

	input := nonNilMap(e.InputData)
	output := nonNilMap(e.OutputData)
	params := nonNilMap(e.Parameters)

	contentHash := contentHash(recordID, e.EventType, e.PatientID, e.SessionID, e.Actor, input, output, params, e.DurationMS, e.ParentRecordID)
	chainHash := chainHash(t.lastChainHash, contentHash)

	record := Record{
		RecordID:       recordID,
		EventType:      e.EventType,
		Timestamp:      time.Now().UTC(),
		PatientID:      e.PatientID,
		SessionID:      e.SessionID,
		Actor:          e.Actor,
		InputData:      input,
		OutputData:     output,
		Parameters:     params,
		DurationMS:     e.DurationMS,
		ParentRecordID: e.ParentRecordID,
		ContentHash:    contentHash,
		ChainHash:      chainHash,
	}

	t.records = append(t.records, record)
	t.lastChainHash = chainHash

	if t.maxRecords > 0 && len(t.records) > t.maxRecords {
		t.archiveOldest(len(t.records) - t.maxRecords)
	}

	return recordID
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func canonicalContent(recordID int, eventType EventType, patientID, sessionID, actor string, input, output, params map[string]any, durationMS int64, parent *int) map[string]any {
	return map[string]any{
		"record_id":        recordID,
		"event_type":       string(eventType),
		"patient_id":       patientID,
		"session_id":       sessionID,
		"actor":            actor,
		"input_data":       input,
		"output_data":      output,
		"parameters":       params,
		"duration_ms":      durationMS,
		"parent_record_id": parent,
	}
}

func contentHash(recordID int, eventType EventType, patientID, sessionID, actor string, input, output, params map[string]any, durationMS int64, parent *int) string {
	content := canonicalContent(recordID, eventType, patientID, sessionID, actor, input, output, params, durationMS, parent)
	return hashJSON(content)
}

// hashJSON hashes the canonical JSON encoding of v. encoding/json sorts
// map[string]any keys alphabetically, giving the stable, sorted-key
// serialization the hash chain depends on.
func hashJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only unsupported types (channels, funcs) reach here; none
		// appear in audit content.
		panic(fmt.Sprintf("audit: content not json-serializable: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// chainHash links a record to its predecessor: SHA256(prevChainHash +
// ":" + contentHash), prevChainHash starting as "genesis".
func chainHash(prevChainHash, contentHash string) string {
	sum := sha256.Sum256([]byte(prevChainHash + ":" + contentHash))
	return hex.EncodeToString(sum[:])
}

func (t *Trail) archiveOldest(count int) {
	archived := t.records[:count]
	t.records = t.records[count:]
	if len(archived) == 0 {
		return
	}
	t.log.WithFields(logrus.Fields{
		"count":    len(archived),
		"first_id": archived[0].RecordID,
		"last_id":  archived[len(archived)-1].RecordID,
	}).Info("archived audit records")

	if t.archiver != nil {
		for _, r := range archived {
			t.archiver(r)
		}
	}
}

// GetRecord looks up a single record by id.
func (t *Trail) GetRecord(recordID int) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.records {
		if r.RecordID == recordID {
			return r, true
		}
	}
	return Record{}, false
}

// GetSessionRecords returns all records for a session, in chronological
// (insertion) order.
func (t *Trail) GetSessionRecords(sessionID string) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Record
	for _, r := range t.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out
}

// PatientQuery narrows GetPatientRecords beyond the patient ID.
type PatientQuery struct {
	EventType *EventType
	Since     *time.Time
}

// GetPatientRecords returns all records for a patient, optionally
// restricted by event type and/or a since-timestamp.
func (t *Trail) GetPatientRecords(patientID string, q PatientQuery) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Record
	for _, r := range t.records {
		if r.PatientID != patientID {
			continue
		}
		if q.EventType != nil && r.EventType != *q.EventType {
			continue
		}
		if q.Since != nil && r.Timestamp.Before(*q.Since) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Provenance is the reconstructed operation trace for a prediction
// session.
type Provenance struct {
	SessionID       string             `json:"session_id"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
	TotalDurationMS int64              `json:"total_duration_ms"`
	RecordCount     int                `json:"record_count"`
	PatientID       string             `json:"patient_id"`
	Operations      []OperationSummary `json:"operations"`
}

// OperationSummary is one provenance entry within a session.
type OperationSummary struct {
	RecordID      int               `json:"record_id"`
	EventType     EventType         `json:"event_type"`
	Actor         string            `json:"actor"`
	DurationMS    int64             `json:"duration_ms"`
	InputSummary  map[string]string `json:"input_summary,omitempty"`
	OutputSummary map[string]string `json:"output_summary,omitempty"`
	Parameters    map[string]any    `json:"parameters,omitempty"`
}

// GetPredictionProvenance reconstructs the full chain of operations for
// a session. Returns ok=false if the session has no records.
func (t *Trail) GetPredictionProvenance(sessionID string) (Provenance, bool) {
	records := t.GetSessionRecords(sessionID)
	if len(records) == 0 {
		return Provenance{}, false
	}

	var totalDuration int64
	ops := make([]OperationSummary, 0, len(records))
	for _, r := range records {
		totalDuration += r.DurationMS
		ops = append(ops, OperationSummary{
			RecordID:      r.RecordID,
			EventType:     r.EventType,
			Actor:         r.Actor,
			DurationMS:    r.DurationMS,
			InputSummary:  summarizeData(r.InputData, 5),
			OutputSummary: summarizeData(r.OutputData, 5),
			Parameters:    r.Parameters,
		})
	}

	return Provenance{
		SessionID:       sessionID,
		StartTime:       records[0].Timestamp,
		EndTime:         records[len(records)-1].Timestamp,
		TotalDurationMS: totalDuration,
		RecordCount:     len(records),
		PatientID:       records[0].PatientID,
		Operations:      ops,
	}, true
}

func summarizeData(data map[string]any, maxKeys int) map[string]string {
	summary := make(map[string]string)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		if i >= maxKeys {
			summary["..."] = fmt.Sprintf("(%d more keys)", len(data)-maxKeys)
			break
		}
		summary[k] = summarizeValue(data[k])
	}
	return summary
}

func summarizeValue(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return fmt.Sprintf("dict(%d keys)", len(t))
	case []any:
		return fmt.Sprintf("list(%d items)", len(t))
	case string:
		if len(t) > 100 {
			return t[:100] + "..."
		}
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// VerifyChainIntegrity recomputes every in-memory record's content and
// chain hashes in order and reports whether the chain is intact. The oldest
// retained record's stored ChainHash is trusted as the baseline rather than
// recomputed from genesis, since archiveOldest may have already dropped the
// records it was originally chained from.
func (t *Trail) VerifyChainIntegrity() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.records) == 0 {
		return true, "audit trail is empty"
	}

	first := t.records[0]
	expectedFirstContentHash := contentHash(first.RecordID, first.EventType, first.PatientID, first.SessionID, first.Actor, first.InputData, first.OutputData, first.Parameters, first.DurationMS, first.ParentRecordID)
	if first.ContentHash != expectedFirstContentHash {
		return false, fmt.Sprintf("content hash mismatch at record %d", first.RecordID)
	}
	prevChainHash := first.ChainHash

	for _, r := range t.records[1:] {
		expectedContentHash := contentHash(r.RecordID, r.EventType, r.PatientID, r.SessionID, r.Actor, r.InputData, r.OutputData, r.Parameters, r.DurationMS, r.ParentRecordID)
		if r.ContentHash != expectedContentHash {
			return false, fmt.Sprintf("content hash mismatch at record %d", r.RecordID)
		}

		expectedChainHash := chainHash(prevChainHash, r.ContentHash)
		if r.ChainHash != expectedChainHash {
			return false, fmt.Sprintf("chain hash mismatch at record %d", r.RecordID)
		}
		prevChainHash = r.ChainHash
	}

	return true, fmt.Sprintf("audit trail integrity verified (%d records)", len(t.records))
}

// RecordCount returns the number of records currently held in memory.
func (t *Trail) RecordCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Summary is the aggregate audit trail snapshot returned by Summary().
type Summary struct {
	TotalRecords    int              `json:"total_records"`
	UniquePatients  int              `json:"unique_patients"`
	UniqueSessions  int              `json:"unique_sessions"`
	EventCounts     map[EventType]int `json:"event_counts"`
	OldestTimestamp *time.Time       `json:"oldest_timestamp,omitempty"`
	NewestTimestamp *time.Time       `json:"newest_timestamp,omitempty"`
}

// Summarize returns an aggregate summary of the in-memory trail.
func (t *Trail) Summarize() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	eventCounts := make(map[EventType]int)
	patients := make(map[string]bool)
	sessions := make(map[string]bool)

	for _, r := range t.records {
		eventCounts[r.EventType]++
		if r.PatientID != "" {
			patients[r.PatientID] = true
		}
		if r.SessionID != "" {
			sessions[r.SessionID] = true
		}
	}

	s := Summary{
		TotalRecords:   len(t.records),
		UniquePatients: len(patients),
		UniqueSessions: len(sessions),
		EventCounts:    eventCounts,
	}
	if len(t.records) > 0 {
		oldest := t.records[0].Timestamp
		newest := t.records[len(t.records)-1].Timestamp
		s.OldestTimestamp = &oldest
		s.NewestTimestamp = &newest
	}
	return s
}

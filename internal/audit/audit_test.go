package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSessionWritesSessionStartRecord(t *testing.T) {
	trail := New(nil, 0)
	sessionID := trail.StartSession("PAT-1")

	assert.Equal(t, "SESSION-00000001", sessionID)
	records := trail.GetSessionRecords(sessionID)
	require.Len(t, records, 1)
	assert.Equal(t, EventPredictionRequest, records[0].EventType)
	assert.Equal(t, "system", records[0].Actor)
	assert.Equal(t, "session_start", records[0].InputData["action"])
}

func TestRecordAssignsMonotonicSequentialIDs(t *testing.T) {
	trail := New(nil, 0)
	id1 := trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})
	id2 := trail.Record(Entry{EventType: EventModelResponse, PatientID: "PAT-1"})

	assert.Equal(t, id1+1, id2)
}

func TestRecordChainsHashesAcrossRecords(t *testing.T) {
	trail := New(nil, 0)
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})
	trail.Record(Entry{EventType: EventModelResponse, PatientID: "PAT-1"})

	r1, ok := trail.GetRecord(1)
	require.True(t, ok)
	r2, ok := trail.GetRecord(2)
	require.True(t, ok)

	expectedChain2 := chainHash(r1.ChainHash, r2.ContentHash)
	assert.Equal(t, expectedChain2, r2.ChainHash)
	assert.NotEqual(t, r1.ChainHash, r2.ChainHash)
}

func TestGetPatientRecordsFiltersByEventTypeAndSince(t *testing.T) {
	trail := New(nil, 0)
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})
	trail.Record(Entry{EventType: EventModelResponse, PatientID: "PAT-1"})
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-2"})

	et := EventModelCall
	records := trail.GetPatientRecords("PAT-1", PatientQuery{EventType: &et})
	require.Len(t, records, 1)
	assert.Equal(t, EventModelCall, records[0].EventType)
}

func TestVerifyChainIntegrityOnUntamperedTrail(t *testing.T) {
	trail := New(nil, 0)
	for i := 0; i < 5; i++ {
		trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1", InputData: map[string]any{"n": i}})
	}
	ok, msg := trail.VerifyChainIntegrity()
	assert.True(t, ok)
	assert.Contains(t, msg, "verified")
}

func TestVerifyChainIntegrityOnEmptyTrail(t *testing.T) {
	trail := New(nil, 0)
	ok, msg := trail.VerifyChainIntegrity()
	assert.True(t, ok)
	assert.Contains(t, msg, "empty")
}

func TestVerifyChainIntegrityDetectsTamperedContent(t *testing.T) {
	trail := New(nil, 0)
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})

	trail.mu.Lock()
	trail.records[0].PatientID = "PAT-TAMPERED"
	trail.mu.Unlock()

	ok, msg := trail.VerifyChainIntegrity()
	assert.False(t, ok)
	assert.Contains(t, msg, "content hash mismatch")
}

func TestArchiveOldestDropsRecordsPastCapacity(t *testing.T) {
	trail := New(nil, 3)
	for i := 0; i < 5; i++ {
		trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})
	}
	assert.Equal(t, 3, trail.RecordCount())

	_, found := trail.GetRecord(1)
	assert.False(t, found, "record 1 should have been archived out of memory")

	_, found = trail.GetRecord(5)
	assert.True(t, found)

	ok, msg := trail.VerifyChainIntegrity()
	assert.True(t, ok, msg)
	assert.Contains(t, msg, "verified")
}

func TestSetArchiverReceivesRecordsDroppedPastCapacity(t *testing.T) {
	trail := New(nil, 3)

	var archived []Record
	trail.SetArchiver(func(r Record) {
		archived = append(archived, r)
	})

	for i := 0; i < 5; i++ {
		trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})
	}

	require.Len(t, archived, 2)
	assert.Equal(t, 1, archived[0].RecordID)
	assert.Equal(t, 2, archived[1].RecordID)
}

func TestGetPredictionProvenanceSummarizesOperations(t *testing.T) {
	trail := New(nil, 0)
	sessionID := trail.StartSession("PAT-1")
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1", SessionID: sessionID, DurationMS: 120})
	trail.Record(Entry{EventType: EventModelResponse, PatientID: "PAT-1", SessionID: sessionID, DurationMS: 30})

	prov, ok := trail.GetPredictionProvenance(sessionID)
	require.True(t, ok)
	assert.Equal(t, "PAT-1", prov.PatientID)
	assert.Equal(t, 3, prov.RecordCount)
	assert.Equal(t, int64(150), prov.TotalDurationMS)
}

func TestGetPredictionProvenanceUnknownSession(t *testing.T) {
	trail := New(nil, 0)
	_, ok := trail.GetPredictionProvenance("SESSION-NOPE")
	assert.False(t, ok)
}

func TestSummarizeCountsEventsPatientsAndSessions(t *testing.T) {
	trail := New(nil, 0)
	trail.StartSession("PAT-1")
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-1"})
	trail.Record(Entry{EventType: EventModelCall, PatientID: "PAT-2"})

	summary := trail.Summarize()
	assert.Equal(t, 3, summary.TotalRecords)
	assert.Equal(t, 2, summary.UniquePatients)
	assert.Equal(t, 2, summary.EventCounts[EventModelCall])
	require.NotNil(t, summary.OldestTimestamp)
}

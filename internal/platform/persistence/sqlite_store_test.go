package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psp-engine/psp/internal/audit"
)

func TestLiteStoreArchiveInsertsRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := newLiteStoreFromDB(db, nil)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_records").
		WithArgs("model_call", sqlmock.AnyArg(), "PAT-1", "SESS-1", "gateway",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), int64(120), nil, "hash1", "chain1").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.Archive(context.Background(), audit.Record{
		EventType:   audit.EventModelCall,
		Timestamp:   time.Now().UTC(),
		PatientID:   "PAT-1",
		SessionID:   "SESS-1",
		Actor:       "gateway",
		DurationMS:  120,
		ContentHash: "hash1",
		ChainHash:   "chain1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLiteStoreGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := newLiteStoreFromDB(db, nil)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM audit_records WHERE record_id").
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(nil))

	_, err = store.GetByID(context.Background(), 99)
	require.Error(t, err)
}

func TestLiteStoreGetBySessionReturnsRowsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnResult(sqlmock.NewResult(0, 0))
	store, err := newLiteStoreFromDB(db, nil)
	require.NoError(t, err)

	cols := []string{"record_id", "event_type", "occurred_at", "patient_id", "session_id", "actor",
		"input_data", "output_data", "parameters", "duration_ms", "parent_record_id", "content_hash", "chain_hash"}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows := sqlmock.NewRows(cols).
		AddRow(1, "model_call", now, "PAT-1", "SESS-1", "gateway", "", "", "", 100, nil, "h1", "c1").
		AddRow(2, "normalization", now, "PAT-1", "SESS-1", "normalizer", "", "", "", 10, nil, "h2", "c2")

	mock.ExpectQuery("SELECT (.+) FROM audit_records WHERE session_id").
		WithArgs("SESS-1").
		WillReturnRows(rows)

	recs, err := store.GetBySession(context.Background(), "SESS-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, audit.EventModelCall, recs[0].EventType)
	assert.Equal(t, audit.EventNormalization, recs[1].EventType)
}

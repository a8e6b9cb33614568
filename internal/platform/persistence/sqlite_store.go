package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/psp-engine/psp/internal/audit"
	"github.com/psp-engine/psp/internal/domain"
)

func parseSQLiteTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// LiteStore is the standalone-mode substitute for AuditRepository: a
// single SQLite file backing the audit archive when no Postgres instance
// is configured (internal/config.LiteConfig). Schema mirrors the Postgres
// audit_records table minus JSONB, which SQLite stores as TEXT, and
// without the archived_at column.
type LiteStore struct {
	db  *sql.DB
	log *logrus.Logger
}

// OpenLiteStore opens (creating if absent) the SQLite file at path and
// ensures the audit_records table exists.
func OpenLiteStore(path string, log *logrus.Logger) (*LiteStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite audit store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite audit store: %w", err)
	}

	return newLiteStoreFromDB(db, log)
}

// newLiteStoreFromDB builds a LiteStore around an already-open database
// handle, letting tests substitute a sqlmock.Sqlmock-backed *sql.DB in
// place of a real SQLite file.
func newLiteStoreFromDB(db *sql.DB, log *logrus.Logger) (*LiteStore, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	schema := `
	CREATE TABLE IF NOT EXISTS audit_records (
		record_id        INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type       TEXT NOT NULL,
		occurred_at      TEXT NOT NULL,
		patient_id       TEXT NOT NULL,
		session_id       TEXT NOT NULL,
		actor            TEXT NOT NULL,
		input_data       TEXT,
		output_data      TEXT,
		parameters       TEXT,
		duration_ms      INTEGER NOT NULL DEFAULT 0,
		parent_record_id INTEGER,
		content_hash     TEXT NOT NULL,
		chain_hash       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lite_audit_session ON audit_records (session_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite audit schema: %w", err)
	}

	log.Info("opened standalone audit store")
	return &LiteStore{db: db, log: log}, nil
}

// Close closes the underlying SQLite handle.
func (s *LiteStore) Close() error {
	return s.db.Close()
}

// Archive persists one record to the local SQLite file.
func (s *LiteStore) Archive(ctx context.Context, rec audit.Record) error {
	inputJSON, err := json.Marshal(rec.InputData)
	if err != nil {
		return fmt.Errorf("marshaling input data: %w", err)
	}
	outputJSON, err := json.Marshal(rec.OutputData)
	if err != nil {
		return fmt.Errorf("marshaling output data: %w", err)
	}
	paramsJSON, err := json.Marshal(rec.Parameters)
	if err != nil {
		return fmt.Errorf("marshaling parameters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			event_type, occurred_at, patient_id, session_id, actor,
			input_data, output_data, parameters, duration_ms,
			parent_record_id, content_hash, chain_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.EventType), rec.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		rec.PatientID, rec.SessionID, rec.Actor,
		string(inputJSON), string(outputJSON), string(paramsJSON), rec.DurationMS,
		rec.ParentRecordID, rec.ContentHash, rec.ChainHash,
	)
	if err != nil {
		return fmt.Errorf("archiving audit record: %w", err)
	}
	return nil
}

// GetBySession returns every archived record for a session, oldest first.
func (s *LiteStore) GetBySession(ctx context.Context, sessionID string) ([]audit.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, event_type, occurred_at, patient_id, session_id, actor,
		       input_data, output_data, parameters, duration_ms, parent_record_id, content_hash, chain_hash
		FROM audit_records WHERE session_id = ? ORDER BY record_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying audit records by session: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		rec, err := scanLiteRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit record row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetByID retrieves one archived record by its local row id.
func (s *LiteStore) GetByID(ctx context.Context, recordID int64) (audit.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT record_id, event_type, occurred_at, patient_id, session_id, actor,
		       input_data, output_data, parameters, duration_ms, parent_record_id, content_hash, chain_hash
		FROM audit_records WHERE record_id = ?`, recordID)

	rec, err := scanLiteRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return audit.Record{}, fmt.Errorf("audit record %d: %w", recordID, domain.ErrRecordNotFound)
		}
		return audit.Record{}, fmt.Errorf("getting audit record: %w", err)
	}
	return rec, nil
}

func scanLiteRow(row rowScanner) (audit.Record, error) {
	var rec audit.Record
	var recordID int64
	var eventType, occurredAt string
	var inputJSON, outputJSON, paramsJSON sql.NullString
	var parentID sql.NullInt64

	err := row.Scan(
		&recordID, &eventType, &occurredAt, &rec.PatientID, &rec.SessionID, &rec.Actor,
		&inputJSON, &outputJSON, &paramsJSON, &rec.DurationMS, &parentID, &rec.ContentHash, &rec.ChainHash,
	)
	if err != nil {
		return audit.Record{}, err
	}

	rec.RecordID = int(recordID)
	rec.EventType = audit.EventType(eventType)
	if ts, err := parseSQLiteTimestamp(occurredAt); err == nil {
		rec.Timestamp = ts
	}
	if parentID.Valid {
		v := int(parentID.Int64)
		rec.ParentRecordID = &v
	}
	if inputJSON.Valid && inputJSON.String != "" {
		if err := json.Unmarshal([]byte(inputJSON.String), &rec.InputData); err != nil {
			return audit.Record{}, fmt.Errorf("unmarshaling input data: %w", err)
		}
	}
	if outputJSON.Valid && outputJSON.String != "" {
		if err := json.Unmarshal([]byte(outputJSON.String), &rec.OutputData); err != nil {
			return audit.Record{}, fmt.Errorf("unmarshaling output data: %w", err)
		}
	}
	if paramsJSON.Valid && paramsJSON.String != "" {
		if err := json.Unmarshal([]byte(paramsJSON.String), &rec.Parameters); err != nil {
			return audit.Record{}, fmt.Errorf("unmarshaling parameters: %w", err)
		}
	}
	return rec, nil
}

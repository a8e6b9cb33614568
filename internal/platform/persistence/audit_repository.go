package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/psp-engine/psp/internal/audit"
	"github.com/psp-engine/psp/internal/domain"
)

// AuditRepository archives audit.Record values once the in-memory Trail
// evicts them, and serves archive lookups by session, patient, or id.
// Every record an AuditRepository accepts is treated as immutable:
// Archive and ArchiveBatch never update a row, they only insert.
type AuditRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewAuditRepository wraps a connected pool. db.Pool is used directly so
// the repository shares the caller's connection limits and lifecycle.
func NewAuditRepository(db *DB, log *logrus.Logger) *AuditRepository {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuditRepository{db: db.Pool, log: log}
}

// Archive persists one record. The record_id primary key is assigned by
// Postgres (BIGSERIAL) and is not returned; audit.Record.RecordID reflects
// the Trail's own in-memory counter, not the archive's.
func (r *AuditRepository) Archive(ctx context.Context, rec audit.Record) error {
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

	query := `
		INSERT INTO audit_records (
			event_type, occurred_at, patient_id, session_id, actor,
			input_data, output_data, parameters, duration_ms,
			parent_record_id, content_hash, chain_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		rec.EventType, rec.Timestamp, rec.PatientID, rec.SessionID, rec.Actor,
		inputJSON, outputJSON, paramsJSON, rec.DurationMS,
		rec.ParentRecordID, rec.ContentHash, rec.ChainHash,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id": rec.SessionID,
			"event_type": rec.EventType,
			"error":      err,
		}).Error("failed to archive audit record")
		return fmt.Errorf("archiving audit record: %w", err)
	}
	return nil
}

// ArchiveBatch archives multiple records in one round trip, used when the
// Trail evicts a block of records at once rather than one at a time.
func (r *AuditRepository) ArchiveBatch(ctx context.Context, recs []audit.Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting archive transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
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
		_, err = tx.Exec(ctx, `
			INSERT INTO audit_records (
				event_type, occurred_at, patient_id, session_id, actor,
				input_data, output_data, parameters, duration_ms,
				parent_record_id, content_hash, chain_hash
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			rec.EventType, rec.Timestamp, rec.PatientID, rec.SessionID, rec.Actor,
			inputJSON, outputJSON, paramsJSON, rec.DurationMS,
			rec.ParentRecordID, rec.ContentHash, rec.ChainHash,
		)
		if err != nil {
			return fmt.Errorf("archiving batched audit record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing archive transaction: %w", err)
	}
	r.log.WithField("count", len(recs)).Info("archived audit record batch")
	return nil
}

// GetBySession returns every archived record for a session, oldest first,
// the same ordering the in-memory Trail keeps its records in.
func (r *AuditRepository) GetBySession(ctx context.Context, sessionID string) ([]audit.Record, error) {
	rows, err := r.db.Query(ctx, `
		SELECT record_id, event_type, occurred_at, patient_id, session_id, actor,
		       input_data, output_data, parameters, duration_ms,
		       parent_record_id, content_hash, chain_hash
		FROM audit_records
		WHERE session_id = $1
		ORDER BY record_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying audit records by session: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// PatientQuery bounds a patient-scoped archive lookup; Limit <= 0 means
// unbounded.
type PatientQuery struct {
	Limit  int
	Offset int
}

// GetByPatient returns archived records for a patient across sessions,
// newest first.
func (r *AuditRepository) GetByPatient(ctx context.Context, patientID string, q PatientQuery) ([]audit.Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT record_id, event_type, occurred_at, patient_id, session_id, actor,
		       input_data, output_data, parameters, duration_ms,
		       parent_record_id, content_hash, chain_hash
		FROM audit_records
		WHERE patient_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3`, patientID, limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying audit records by patient: %w", err)
	}
	defer rows.Close()

	return scanAuditRows(rows)
}

// GetByID retrieves a single archived record by its archive-assigned id.
func (r *AuditRepository) GetByID(ctx context.Context, recordID int64) (audit.Record, error) {
	row := r.db.QueryRow(ctx, `
		SELECT record_id, event_type, occurred_at, patient_id, session_id, actor,
		       input_data, output_data, parameters, duration_ms,
		       parent_record_id, content_hash, chain_hash
		FROM audit_records
		WHERE record_id = $1`, recordID)

	rec, err := scanAuditRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return audit.Record{}, fmt.Errorf("audit record %d: %w", recordID, domain.ErrRecordNotFound)
		}
		return audit.Record{}, fmt.Errorf("getting audit record: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditRow(row rowScanner) (audit.Record, error) {
	var rec audit.Record
	var inputJSON, outputJSON, paramsJSON []byte
	var recordID int64

	err := row.Scan(
		&recordID, &rec.EventType, &rec.Timestamp, &rec.PatientID, &rec.SessionID, &rec.Actor,
		&inputJSON, &outputJSON, &paramsJSON, &rec.DurationMS,
		&rec.ParentRecordID, &rec.ContentHash, &rec.ChainHash,
	)
	if err != nil {
		return audit.Record{}, err
	}
	rec.RecordID = int(recordID)

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &rec.InputData); err != nil {
			return audit.Record{}, fmt.Errorf("unmarshaling input data: %w", err)
		}
	}
	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &rec.OutputData); err != nil {
			return audit.Record{}, fmt.Errorf("unmarshaling output data: %w", err)
		}
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &rec.Parameters); err != nil {
			return audit.Record{}, fmt.Errorf("unmarshaling parameters: %w", err)
		}
	}
	return rec, nil
}

func scanAuditRows(rows pgx.Rows) ([]audit.Record, error) {
	var out []audit.Record
	for rows.Next() {
		rec, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit record rows: %w", err)
	}
	return out, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// ClaimRecordRepository stores the claim journal written by the worker.
type ClaimRecordRepository struct {
	db *sql.DB
}

func NewClaimRecordRepository(db *sql.DB) *ClaimRecordRepository {
	return &ClaimRecordRepository{db: db}
}

func (r *ClaimRecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS claim_records (
	claim_id TEXT PRIMARY KEY,
	filename TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	triage JSONB,
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claim_records_priority ON claim_records(priority);
CREATE INDEX IF NOT EXISTS idx_claim_records_updated_at ON claim_records(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// UpsertClaimRecord merges record into the stored row in one statement. Empty
// fields never overwrite stored ones and the status only moves forward, so
// described and triaged events racing on separate workers both survive.
func (r *ClaimRecordRepository) UpsertClaimRecord(ctx context.Context, record *domain.ClaimRecord) error {
	var triageJSON []byte
	if record.Triage != nil {
		raw, err := json.Marshal(record.Triage)
		if err != nil {
			return fmt.Errorf("marshal triage: %w", err)
		}
		triageJSON = raw
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO claim_records (
	claim_id, filename, description, priority, triage, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (claim_id) DO UPDATE SET
	filename = COALESCE(NULLIF(EXCLUDED.filename, ''), claim_records.filename),
	description = COALESCE(NULLIF(EXCLUDED.description, ''), claim_records.description),
	priority = COALESCE(NULLIF(EXCLUDED.priority, ''), claim_records.priority),
	triage = COALESCE(EXCLUDED.triage, claim_records.triage),
	status = CASE
		WHEN `+statusRankSQL("EXCLUDED.status")+` > `+statusRankSQL("claim_records.status")+`
		THEN EXCLUDED.status
		ELSE claim_records.status
	END,
	created_at = LEAST(claim_records.created_at, EXCLUDED.created_at),
	updated_at = GREATEST(claim_records.updated_at, EXCLUDED.updated_at)
`,
		record.ClaimID, record.Filename, record.Description, record.Priority, triageJSON,
		string(record.Status), record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert claim record: %w", err)
	}
	return nil
}

func (r *ClaimRecordRepository) GetClaimRecord(ctx context.Context, claimID string) (*domain.ClaimRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT claim_id, filename, description, priority, triage, status, created_at, updated_at
FROM claim_records
WHERE claim_id = $1
`, claimID)

	var record domain.ClaimRecord
	var triageRaw []byte
	var status string
	err := row.Scan(
		&record.ClaimID, &record.Filename, &record.Description, &record.Priority,
		&triageRaw, &status, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get claim record", fmt.Errorf("claim %s", claimID))
		}
		return nil, fmt.Errorf("scan claim record: %w", err)
	}

	if len(triageRaw) > 0 {
		var triage domain.TriageResult
		if err := json.Unmarshal(triageRaw, &triage); err != nil {
			return nil, fmt.Errorf("unmarshal triage: %w", err)
		}
		record.Triage = &triage
	}
	record.Status = domain.IntakeStatus(status)
	return &record, nil
}

func statusRankSQL(column string) string {
	return fmt.Sprintf(
		"(CASE %s WHEN '%s' THEN 1 WHEN '%s' THEN 2 WHEN '%s' THEN 3 ELSE 0 END)",
		column, domain.StatusSending, domain.StatusStreamingDone, domain.StatusTriaged,
	)
}

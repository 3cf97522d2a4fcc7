package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*ClaimRecordRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &ClaimRecordRepository{db: db}, mock, func() { _ = db.Close() }
}

func TestGetClaimRecordReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT claim_id, filename, description").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetClaimRecord(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetClaimRecordDecodesTriage(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"claim_id", "filename", "description", "priority", "triage", "status", "created_at", "updated_at"}).
		AddRow("claim-1", "bumper.jpg", "Front bumper damage.", "High",
			[]byte(`{"priority":"High","immediate_actions":["Inspect vehicle"],"short_term_actions":[],"approval_guidance":{},"reserve_recommendations":{},"approval_level":"Unknown","estimated_reserves":"TBD","timeline":"Standard processing","claim_handler":"Not assigned"}`),
			"triaged", now, now)
	mock.ExpectQuery("SELECT claim_id, filename, description").
		WithArgs("claim-1").
		WillReturnRows(rows)

	record, err := repo.GetClaimRecord(context.Background(), "claim-1")
	if err != nil {
		t.Fatalf("GetClaimRecord() error = %v", err)
	}
	if record.Status != domain.StatusTriaged || record.Triage == nil || record.Triage.ImmediateActions[0] != "Inspect vehicle" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetClaimRecordWithoutTriage(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"claim_id", "filename", "description", "priority", "triage", "status", "created_at", "updated_at"}).
		AddRow("claim-2", "roof.jpg", "Missing shingles.", "", nil, "streaming_done", now, now)
	mock.ExpectQuery("SELECT claim_id").WithArgs("claim-2").WillReturnRows(rows)

	record, err := repo.GetClaimRecord(context.Background(), "claim-2")
	if err != nil {
		t.Fatalf("GetClaimRecord() error = %v", err)
	}
	if record.Triage != nil || record.Status != domain.StatusStreamingDone {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestUpsertClaimRecord(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Now().UTC()
	record := &domain.ClaimRecord{
		ClaimID:     "claim-1",
		Filename:    "bumper.jpg",
		Description: "Front bumper damage.",
		Priority:    domain.PriorityHigh,
		Triage:      &domain.TriageResult{Priority: domain.PriorityHigh},
		Status:      domain.StatusTriaged,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	mock.ExpectExec("INSERT INTO claim_records").
		WithArgs("claim-1", "bumper.jpg", "Front bumper damage.", "High", sqlmock.AnyArg(), "triaged", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertClaimRecord(context.Background(), record); err != nil {
		t.Fatalf("UpsertClaimRecord() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertClaimRecordMergesInsteadOfOverwriting(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	// A triaged event folded from a stale read carries no description.
	now := time.Now().UTC()
	record := &domain.ClaimRecord{
		ClaimID:   "claim-2",
		Priority:  domain.PriorityLow,
		Triage:    &domain.TriageResult{Priority: domain.PriorityLow},
		Status:    domain.StatusTriaged,
		CreatedAt: now,
		UpdatedAt: now,
	}
	mock.ExpectExec(regexp.QuoteMeta("description = COALESCE(NULLIF(EXCLUDED.description, ''), claim_records.description)")).
		WithArgs("claim-2", "", "", "Low", sqlmock.AnyArg(), "triaged", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertClaimRecord(context.Background(), record); err != nil {
		t.Fatalf("UpsertClaimRecord() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestStatusRankSQLOrdersLifecycle(t *testing.T) {
	got := statusRankSQL("claim_records.status")
	want := "(CASE claim_records.status WHEN 'sending' THEN 1 WHEN 'streaming_done' THEN 2 WHEN 'triaged' THEN 3 ELSE 0 END)"
	if got != want {
		t.Fatalf("statusRankSQL() = %q, want %q", got, want)
	}
}

func TestUpsertClaimRecordWrapsDriverError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO claim_records").WillReturnError(errors.New("connection lost"))

	err := repo.UpsertClaimRecord(context.Background(), &domain.ClaimRecord{ClaimID: "claim-1", Status: domain.StatusIdle})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnsureSchema(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101801)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS claim_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

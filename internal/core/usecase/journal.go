package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/core/ports"
)

// ClaimJournalUseCase folds intake lifecycle events into persisted claim records.
type ClaimJournalUseCase struct {
	store ports.ClaimRecordStore
	now   func() time.Time
}

var _ ports.ClaimJournal = (*ClaimJournalUseCase)(nil)

func NewClaimJournalUseCase(store ports.ClaimRecordStore) *ClaimJournalUseCase {
	return &ClaimJournalUseCase{store: store, now: time.Now}
}

func (uc *ClaimJournalUseCase) Record(ctx context.Context, event domain.IntakeEvent) error {
	if strings.TrimSpace(event.ClaimID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "record intake event", errors.New("claim id is required"))
	}

	record, err := uc.store.GetClaimRecord(ctx, event.ClaimID)
	switch {
	case err == nil:
	case domain.IsKind(err, domain.ErrNotFound):
		record = &domain.ClaimRecord{
			ClaimID:   event.ClaimID,
			Status:    domain.StatusIdle,
			CreatedAt: uc.eventTime(event),
		}
	default:
		return fmt.Errorf("load claim record: %w", err)
	}

	if event.Filename != "" {
		record.Filename = event.Filename
	}
	switch event.Type {
	case domain.EventClaimDescribed:
		record.Description = event.Description
		record.Status = promoteStatus(record.Status, domain.StatusStreamingDone)
	case domain.EventClaimTriaged:
		if event.Triage == nil {
			return domain.WrapError(domain.ErrInvalidInput, "record intake event", errors.New("triaged event without result"))
		}
		triage := *event.Triage
		record.Triage = &triage
		record.Priority = triage.Priority
		record.Status = promoteStatus(record.Status, domain.StatusTriaged)
	default:
		return domain.WrapError(domain.ErrInvalidInput, "record intake event", fmt.Errorf("unknown event type %q", event.Type))
	}
	record.UpdatedAt = uc.eventTime(event)

	if err := uc.store.UpsertClaimRecord(ctx, record); err != nil {
		return fmt.Errorf("upsert claim record: %w", err)
	}
	return nil
}

func (uc *ClaimJournalUseCase) eventTime(event domain.IntakeEvent) time.Time {
	if event.OccurredAt.IsZero() {
		return uc.now().UTC()
	}
	return event.OccurredAt.UTC()
}

// promoteStatus never moves a journal record backwards.
func promoteStatus(current, next domain.IntakeStatus) domain.IntakeStatus {
	if statusRank(next) > statusRank(current) {
		return next
	}
	return current
}

func statusRank(status domain.IntakeStatus) int {
	switch status {
	case domain.StatusSending:
		return 1
	case domain.StatusStreamingDone:
		return 2
	case domain.StatusTriaged:
		return 3
	default:
		return 0
	}
}

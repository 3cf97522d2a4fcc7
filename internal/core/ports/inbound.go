package ports

import (
	"context"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// SubmissionHandle is the future returned for one asynchronous submission.
type SubmissionHandle interface {
	Generation() uint64
	// WaitDescription blocks until the description stream ended, failed or was superseded.
	WaitDescription(ctx context.Context) error
	// WaitTriage blocks until the triage call finished, or returns the description error.
	WaitTriage(ctx context.Context) error
}

// ClaimIntakeService is the inbound contract for the claim-intake state machine.
type ClaimIntakeService interface {
	SelectImage(img domain.SourceImage) (domain.ClaimView, error)
	Submit(ctx context.Context) (SubmissionHandle, error)
	View() domain.ClaimView
}

// ClaimJournal is the inbound contract of the journal worker.
type ClaimJournal interface {
	Record(ctx context.Context, event domain.IntakeEvent) error
}

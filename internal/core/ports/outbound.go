package ports

import (
	"context"
	"io"
	"iter"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// DescriptionStreamer uploads an image and returns the streamed description body.
type DescriptionStreamer interface {
	StreamDescription(ctx context.Context, img domain.SourceImage) (io.ReadCloser, error)
}

// FragmentDecoder turns a streamed body into incremental text fragments.
type FragmentDecoder interface {
	Fragments(body io.Reader) iter.Seq2[string, error]
}

// TriageService invokes the recommendation agent for a claim.
type TriageService interface {
	RunTriage(ctx context.Context, claimID string) (*domain.TriageResponse, error)
}

// SampleCatalog lists and fetches gallery images.
type SampleCatalog interface {
	ListSamples(ctx context.Context) ([]string, error)
	FetchSample(ctx context.Context, name string) (domain.SourceImage, error)
}

// EvidenceStore archives submitted images.
type EvidenceStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// IntakeEventPublisher publishes/consumes claim milestones.
type IntakeEventPublisher interface {
	PublishIntakeEvent(ctx context.Context, event domain.IntakeEvent) error
}

type IntakeEventSubscriber interface {
	SubscribeIntakeEvents(ctx context.Context, handler func(context.Context, domain.IntakeEvent) error) error
}

// ClaimRecordStore persists the claim journal.
type ClaimRecordStore interface {
	UpsertClaimRecord(ctx context.Context, record *domain.ClaimRecord) error
	GetClaimRecord(ctx context.Context, claimID string) (*domain.ClaimRecord, error)
}

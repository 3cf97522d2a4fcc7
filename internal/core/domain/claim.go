package domain

import (
	"strings"
	"time"
)

type IntakeStatus string

const (
	StatusIdle          IntakeStatus = "idle"
	StatusSending       IntakeStatus = "sending"
	StatusStreamingDone IntakeStatus = "streaming_done"
	StatusTriaged       IntakeStatus = "triaged"
)

type ImageOrigin string

const (
	OriginUpload ImageOrigin = "upload"
	OriginSample ImageOrigin = "sample"
)

// SourceImage is the single active image of a claim intake.
type SourceImage struct {
	Filename string      `json:"filename"`
	MimeType string      `json:"mime_type"`
	Origin   ImageOrigin `json:"origin"`
	Data     []byte      `json:"-"`

	Capture *CaptureMetadata `json:"capture,omitempty"`
}

func (s SourceImage) Empty() bool {
	return len(s.Data) == 0
}

func (s SourceImage) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s.MimeType)), "image/")
}

// CaptureMetadata is the EXIF subset kept for adjusters.
type CaptureMetadata struct {
	TakenAt     time.Time `json:"taken_at,omitempty"`
	Latitude    float64   `json:"latitude,omitempty"`
	Longitude   float64   `json:"longitude,omitempty"`
	HasGPS      bool      `json:"has_gps"`
	CameraMake  string    `json:"camera_make,omitempty"`
	CameraModel string    `json:"camera_model,omitempty"`
}

type NotificationID string

const (
	NotifyClaimUnderReview   NotificationID = "claim_under_review"
	NotifyAdjusterPanel      NotificationID = "adjuster_panel"
	NotifyUnderReviewDismiss NotificationID = "claim_under_review_dismissed"
)

// Notification is a delayed reveal event relative to the stream completion instant.
type Notification struct {
	ID       NotificationID `json:"id"`
	FireAt   time.Time      `json:"fire_at"`
	Revealed bool           `json:"revealed"`
}

// ClaimIntake is a point-in-time copy of the intake aggregate.
type ClaimIntake struct {
	ClaimID     string        `json:"claim_id"`
	Generation  uint64        `json:"generation"`
	Image       *SourceImage  `json:"image,omitempty"`
	Description string        `json:"description"`
	Status      IntakeStatus  `json:"status"`
	Triage      *TriageResult `json:"triage,omitempty"`

	CompletedAt time.Time `json:"completed_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	TriageError string    `json:"triage_error,omitempty"`
}

type IntakeEventType string

const (
	EventClaimDescribed IntakeEventType = "claim.described"
	EventClaimTriaged   IntakeEventType = "claim.triaged"
)

// IntakeEvent is published on the event bus when a claim reaches a milestone.
type IntakeEvent struct {
	Type        IntakeEventType `json:"type"`
	ClaimID     string          `json:"claim_id"`
	Filename    string          `json:"filename,omitempty"`
	Description string          `json:"description"`
	Triage      *TriageResult   `json:"triage,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// ClaimRecord is the journal row persisted for each triaged claim.
type ClaimRecord struct {
	ClaimID     string        `json:"claim_id"`
	Filename    string        `json:"filename"`
	Description string        `json:"description"`
	Priority    string        `json:"priority"`
	Triage      *TriageResult `json:"triage,omitempty"`
	Status      IntakeStatus  `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

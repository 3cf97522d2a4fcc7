package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/core/ports"
)

// IntakeRecorder receives intake lifecycle measurements.
type IntakeRecorder interface {
	ObserveSubmission(outcome string, duration time.Duration)
	ObserveFragment(bytes int)
	ObserveTriage(outcome string, duration time.Duration)
	ObserveNotification(id string)
	ObserveStaleDiscard(stage string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSubmission(string, time.Duration) {}
func (nopRecorder) ObserveFragment(int)                     {}
func (nopRecorder) ObserveTriage(string, time.Duration)     {}
func (nopRecorder) ObserveNotification(string)              {}
func (nopRecorder) ObserveStaleDiscard(string)              {}

const (
	OutcomeSuccess    = "success"
	OutcomeFailed     = "failed"
	OutcomeSuperseded = "superseded"
	OutcomeRejected   = "rejected"
)

type IntakeOption func(*IntakeUseCase)

func WithLogger(logger *slog.Logger) IntakeOption {
	return func(uc *IntakeUseCase) {
		if logger != nil {
			uc.logger = logger
		}
	}
}

func WithRecorder(recorder IntakeRecorder) IntakeOption {
	return func(uc *IntakeUseCase) {
		if recorder != nil {
			uc.recorder = recorder
		}
	}
}

func WithEvidenceStore(store ports.EvidenceStore) IntakeOption {
	return func(uc *IntakeUseCase) {
		uc.evidence = store
	}
}

func WithEventPublisher(publisher ports.IntakeEventPublisher) IntakeOption {
	return func(uc *IntakeUseCase) {
		uc.publisher = publisher
	}
}

// WithViewListener registers a callback invoked with a fresh view after every
// state change, including each appended fragment.
func WithViewListener(fn func(domain.ClaimView)) IntakeOption {
	return func(uc *IntakeUseCase) {
		uc.listener = fn
	}
}

func WithClock(now func() time.Time) IntakeOption {
	return func(uc *IntakeUseCase) {
		if now != nil {
			uc.now = now
		}
	}
}

// IntakeUseCase owns the single ClaimIntake aggregate. Every write coming from
// an asynchronous task is gated by the generation it was started with.
type IntakeUseCase struct {
	describer ports.DescriptionStreamer
	decoder   ports.FragmentDecoder
	triage    ports.TriageService
	scheduler *NotificationScheduler

	evidence  ports.EvidenceStore
	publisher ports.IntakeEventPublisher
	logger    *slog.Logger
	recorder  IntakeRecorder
	listener  func(domain.ClaimView)
	now       func() time.Time

	mu     sync.Mutex
	intake domain.ClaimIntake
	cancel context.CancelFunc
}

var _ ports.ClaimIntakeService = (*IntakeUseCase)(nil)

func NewIntakeUseCase(
	describer ports.DescriptionStreamer,
	decoder ports.FragmentDecoder,
	triage ports.TriageService,
	scheduler *NotificationScheduler,
	opts ...IntakeOption,
) *IntakeUseCase {
	uc := &IntakeUseCase{
		describer: describer,
		decoder:   decoder,
		triage:    triage,
		scheduler: scheduler,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
		now:       time.Now,
		intake:    domain.ClaimIntake{Status: domain.StatusIdle},
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.scheduler == nil {
		uc.scheduler = NewNotificationScheduler(DefaultNotificationSpecs())
	}
	uc.scheduler.chainRevealHook(uc.handleReveal)
	return uc
}

func (uc *IntakeUseCase) handleReveal(generation uint64, n domain.Notification) {
	uc.mu.Lock()
	current := uc.intake.Generation
	claimID := uc.intake.ClaimID
	uc.mu.Unlock()
	if generation != current {
		return
	}
	uc.recorder.ObserveNotification(string(n.ID))
	uc.logger.Info("notification_revealed",
		"claim_id", claimID,
		"generation", generation,
		"notification", n.ID,
	)
	uc.emit()
}

// SelectImage makes img the single active image and resets every derived
// field. In-flight work of the previous generation is superseded.
func (uc *IntakeUseCase) SelectImage(img domain.SourceImage) (domain.ClaimView, error) {
	if img.Empty() {
		return uc.View(), domain.WrapError(domain.ErrValidation, "select image", errors.New("image has no content"))
	}

	uc.mu.Lock()
	uc.supersedeLocked()
	selected := img
	uc.intake = domain.ClaimIntake{
		ClaimID:    uuid.NewString(),
		Generation: uc.intake.Generation + 1,
		Image:      &selected,
		Status:     domain.StatusIdle,
	}
	claimID := uc.intake.ClaimID
	uc.mu.Unlock()

	uc.logger.Info("image_selected",
		"claim_id", claimID,
		"filename", img.Filename,
		"mime_type", img.MimeType,
		"origin", img.Origin,
		"bytes", len(img.Data),
	)
	uc.emit()
	return uc.View(), nil
}

// Submit validates the active image and starts an asynchronous submission.
// It returns as soon as the intake is in SENDING.
func (uc *IntakeUseCase) Submit(ctx context.Context) (ports.SubmissionHandle, error) {
	uc.mu.Lock()
	if uc.intake.Image == nil || uc.intake.Image.Empty() {
		uc.mu.Unlock()
		uc.recorder.ObserveSubmission(OutcomeRejected, 0)
		return nil, domain.WrapError(domain.ErrValidation, "submit", errors.New("no image selected"))
	}
	if !uc.intake.Image.IsImage() {
		mimeType := uc.intake.Image.MimeType
		uc.mu.Unlock()
		uc.recorder.ObserveSubmission(OutcomeRejected, 0)
		return nil, domain.WrapError(domain.ErrValidation, "submit", fmt.Errorf("unsupported content type %q", mimeType))
	}

	uc.supersedeLocked()
	uc.intake.Generation++
	uc.intake.Status = domain.StatusSending
	uc.intake.Description = ""
	uc.intake.Triage = nil
	uc.intake.CompletedAt = time.Time{}
	uc.intake.LastError = ""
	uc.intake.TriageError = ""

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	uc.cancel = cancel
	sub := newSubmission(uc.intake.Generation)
	img := *uc.intake.Image
	claimID := uc.intake.ClaimID
	uc.mu.Unlock()

	uc.logger.Info("intake_submitted",
		"claim_id", claimID,
		"generation", sub.generation,
		"filename", img.Filename,
	)
	uc.emit()

	go uc.run(runCtx, cancel, sub, claimID, img)
	return sub, nil
}

// View projects the current aggregate and the notifications of its generation.
func (uc *IntakeUseCase) View() domain.ClaimView {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	snapshot := uc.intake
	generation, notifications := uc.scheduler.Snapshot()
	if generation != snapshot.Generation {
		notifications = nil
	}
	return domain.ProjectView(snapshot, notifications)
}

// Snapshot returns a copy of the aggregate.
func (uc *IntakeUseCase) Snapshot() domain.ClaimIntake {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.intake
}

func (uc *IntakeUseCase) supersedeLocked() {
	if uc.cancel != nil {
		uc.cancel()
		uc.cancel = nil
	}
	uc.scheduler.Cancel()
}

func (uc *IntakeUseCase) run(ctx context.Context, cancel context.CancelFunc, sub *submission, claimID string, img domain.SourceImage) {
	defer cancel()
	start := uc.now()
	events := uc.startPublisher(context.WithoutCancel(ctx))
	if events != nil {
		defer close(events)
	}

	uc.archive(ctx, claimID, img)

	description, err := uc.stream(ctx, sub.generation, img)
	if err != nil {
		if !uc.failSubmission(sub.generation, claimID, err) {
			uc.recorder.ObserveSubmission(OutcomeSuperseded, uc.now().Sub(start))
			sub.finish(domain.ErrSuperseded)
			return
		}
		uc.recorder.ObserveSubmission(OutcomeFailed, uc.now().Sub(start))
		sub.finish(err)
		return
	}

	if !uc.completeStream(sub.generation) {
		uc.recorder.ObserveStaleDiscard("completion")
		uc.recorder.ObserveSubmission(OutcomeSuperseded, uc.now().Sub(start))
		sub.finish(domain.ErrSuperseded)
		return
	}
	uc.recorder.ObserveSubmission(OutcomeSuccess, uc.now().Sub(start))
	uc.logger.Info("description_completed",
		"claim_id", claimID,
		"generation", sub.generation,
		"chars", len(description),
		"duration_ms", float64(uc.now().Sub(start).Microseconds())/1000.0,
	)
	sub.describe(nil)
	uc.emit()
	uc.enqueue(events, domain.IntakeEvent{
		Type:        domain.EventClaimDescribed,
		ClaimID:     claimID,
		Filename:    img.Filename,
		Description: description,
	})

	sub.triaged(uc.runTriage(ctx, events, sub.generation, claimID, img.Filename))
}

func (uc *IntakeUseCase) stream(ctx context.Context, generation uint64, img domain.SourceImage) (string, error) {
	body, err := uc.describer.StreamDescription(ctx, img)
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", domain.WrapError(domain.ErrStream, "stream description", errors.New("response has no readable body"))
	}
	defer body.Close()

	var description string
	for fragment, err := range uc.decoder.Fragments(body) {
		if err != nil {
			return description, err
		}
		if !uc.appendFragment(generation, fragment) {
			uc.recorder.ObserveStaleDiscard("fragment")
			return description, domain.ErrSuperseded
		}
		description += fragment
		uc.recorder.ObserveFragment(len(fragment))
		uc.emit()
	}
	return description, nil
}

func (uc *IntakeUseCase) appendFragment(generation uint64, fragment string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.intake.Generation != generation {
		return false
	}
	uc.intake.Description += fragment
	return true
}

// completeStream records t0 and arms the reveal chain under the same lock, so
// a concurrent re-submission cannot be followed by stale timers.
func (uc *IntakeUseCase) completeStream(generation uint64) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.intake.Generation != generation {
		return false
	}
	t0 := uc.now()
	uc.intake.Status = domain.StatusStreamingDone
	uc.intake.CompletedAt = t0
	uc.scheduler.Arm(generation, t0)
	return true
}

// failSubmission returns the intake to IDLE keeping the partial description.
// It reports false when the failure belongs to a superseded generation.
func (uc *IntakeUseCase) failSubmission(generation uint64, claimID string, err error) bool {
	uc.mu.Lock()
	if uc.intake.Generation != generation || errors.Is(err, domain.ErrSuperseded) {
		uc.mu.Unlock()
		uc.logger.Debug("stale_result_discarded", "claim_id", claimID, "generation", generation, "stage", "description")
		return false
	}
	uc.intake.Status = domain.StatusIdle
	uc.intake.LastError = err.Error()
	uc.mu.Unlock()

	uc.logger.Error("intake_submit_failed",
		"claim_id", claimID,
		"generation", generation,
		"stream_error", domain.IsKind(err, domain.ErrStream),
		"network_error", domain.IsKind(err, domain.ErrNetwork),
		"error", err,
	)
	uc.emit()
	return true
}

func (uc *IntakeUseCase) runTriage(ctx context.Context, events chan<- domain.IntakeEvent, generation uint64, claimID, filename string) error {
	start := uc.now()
	resp, err := uc.triage.RunTriage(ctx, claimID)
	if err == nil && resp == nil {
		err = errors.New("empty triage response")
	}
	if err != nil && !domain.IsKind(err, domain.ErrTriage) {
		err = domain.WrapError(domain.ErrTriage, "run triage", err)
	}

	uc.mu.Lock()
	if uc.intake.Generation != generation {
		uc.mu.Unlock()
		uc.recorder.ObserveStaleDiscard("triage")
		uc.logger.Debug("stale_result_discarded", "claim_id", claimID, "generation", generation, "stage", "triage")
		return domain.ErrSuperseded
	}
	if err != nil {
		uc.intake.TriageError = err.Error()
		uc.mu.Unlock()

		uc.recorder.ObserveTriage(OutcomeFailed, uc.now().Sub(start))
		uc.logger.Error("triage_failed",
			"claim_id", claimID,
			"generation", generation,
			"network_error", domain.IsKind(err, domain.ErrNetwork),
			"error", err,
		)
		uc.emit()
		return err
	}

	result := domain.NormalizeTriage(resp)
	uc.intake.Triage = &result
	uc.intake.Status = domain.StatusTriaged
	uc.mu.Unlock()

	uc.recorder.ObserveTriage(OutcomeSuccess, uc.now().Sub(start))
	uc.logger.Info("triage_completed",
		"claim_id", claimID,
		"generation", generation,
		"priority", result.Priority,
	)
	uc.emit()
	uc.enqueue(events, domain.IntakeEvent{
		Type:     domain.EventClaimTriaged,
		ClaimID:  claimID,
		Filename: filename,
		Triage:   &result,
	})
	return nil
}

func (uc *IntakeUseCase) archive(ctx context.Context, claimID string, img domain.SourceImage) {
	if uc.evidence == nil {
		return
	}
	name := filepath.Base(img.Filename)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "image"
	}
	key := path.Join(claimID, name)
	if err := uc.evidence.Save(ctx, key, bytes.NewReader(img.Data)); err != nil {
		uc.logger.Warn("evidence_archive_failed", "claim_id", claimID, "key", key, "error", err)
	}
}

// startPublisher drains the events of one submission in order on its own
// goroutine, so a slow bus never delays the triage call. The caller closes
// the returned channel; it is nil when no publisher is configured.
func (uc *IntakeUseCase) startPublisher(ctx context.Context) chan<- domain.IntakeEvent {
	if uc.publisher == nil {
		return nil
	}
	events := make(chan domain.IntakeEvent, 2)
	go func() {
		for event := range events {
			uc.publish(ctx, event)
		}
	}()
	return events
}

func (uc *IntakeUseCase) enqueue(events chan<- domain.IntakeEvent, event domain.IntakeEvent) {
	if events == nil {
		return
	}
	event.OccurredAt = uc.now().UTC()
	events <- event
}

func (uc *IntakeUseCase) publish(ctx context.Context, event domain.IntakeEvent) {
	if err := uc.publisher.PublishIntakeEvent(ctx, event); err != nil {
		uc.logger.Warn("intake_event_publish_failed",
			"claim_id", event.ClaimID,
			"event", event.Type,
			"error", err,
		)
	}
}

func (uc *IntakeUseCase) emit() {
	if uc.listener == nil {
		return
	}
	uc.listener(uc.View())
}

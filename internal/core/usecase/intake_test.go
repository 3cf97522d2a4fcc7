package usecase

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

type intakeHarness struct {
	uc        *IntakeUseCase
	describer *describerFake
	triage    *triageFake
	timers    *manualTimers
	evidence  *evidenceFake
	events    *publisherFake

	mu    sync.Mutex
	views []domain.ClaimView
}

func newIntakeHarness(describer *describerFake, triage *triageFake) *intakeHarness {
	h := &intakeHarness{
		describer: describer,
		triage:    triage,
		timers:    &manualTimers{},
		evidence:  &evidenceFake{},
		events:    &publisherFake{},
	}
	scheduler := NewNotificationScheduler(DefaultNotificationSpecs(), WithAfterFunc(h.timers.AfterFunc))
	h.uc = NewIntakeUseCase(describer, chunkDecoder{}, triage, scheduler,
		WithEvidenceStore(h.evidence),
		WithEventPublisher(h.events),
		WithViewListener(func(view domain.ClaimView) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.views = append(h.views, view)
		}),
	)
	return h
}

func (h *intakeHarness) descriptions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.views))
	for _, v := range h.views {
		out = append(out, v.Description)
	}
	return out
}

func triageResponse(priority, recommendation string) *domain.TriageResponse {
	return &domain.TriageResponse{
		Priority:       json.RawMessage(priority),
		Recommendation: json.RawMessage(recommendation),
	}
}

func TestIntakeEndToEnd(t *testing.T) {
	body := &chunkReader{chunks: []string{"Front ", "bumper ", "damage."}}
	h := newIntakeHarness(
		newDescriberFake(body),
		&triageFake{resp: triageResponse(`3`, `{"immediate_actions":["Inspect vehicle"]}`)},
	)
	ctx := testContext(t)

	if _, err := h.uc.SelectImage(claimPhoto("bumper.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := handle.WaitDescription(ctx); err != nil {
		t.Fatalf("WaitDescription() error = %v", err)
	}
	if err := handle.WaitTriage(ctx); err != nil {
		t.Fatalf("WaitTriage() error = %v", err)
	}

	view := h.uc.View()
	if view.Description != "Front bumper damage." {
		t.Fatalf("description = %q", view.Description)
	}
	if view.Status != domain.StatusTriaged {
		t.Fatalf("status = %s", view.Status)
	}
	if view.Adjuster == nil {
		t.Fatalf("expected adjuster panel")
	}
	if view.Adjuster.Priority != domain.PriorityHigh {
		t.Fatalf("priority = %q", view.Adjuster.Priority)
	}
	if len(view.Adjuster.ImmediateActions) != 1 || view.Adjuster.ImmediateActions[0] != "Inspect vehicle" {
		t.Fatalf("immediate actions = %v", view.Adjuster.ImmediateActions)
	}
	if view.Adjuster.ApprovalGuidance != nil || view.Adjuster.ReserveRecommendations != nil {
		t.Fatalf("expected approval/reserve sections omitted, got %+v", view.Adjuster)
	}
	if !body.closed.Load() {
		t.Fatalf("expected description body closed")
	}

	seen := strings.Join(h.descriptions(), "|")
	for _, partial := range []string{"Front ", "Front bumper ", "Front bumper damage."} {
		if !strings.Contains(seen, "|"+partial+"|") && !strings.HasSuffix(seen, "|"+partial) {
			t.Fatalf("expected incremental view %q in %q", partial, seen)
		}
	}

	if claimID, _ := h.triage.claimID.Load().(string); claimID != view.ClaimID || claimID == "" {
		t.Fatalf("triage claim id = %q, view claim id = %q", claimID, view.ClaimID)
	}
	waitFor(t, "both intake events", func() bool { return len(h.events.snapshot()) == 2 })
	events := h.events.snapshot()
	if len(events) != 2 || events[0].Type != domain.EventClaimDescribed || events[1].Type != domain.EventClaimTriaged {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Description != "Front bumper damage." || events[1].Triage.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected event payloads: %+v", events)
	}
	if len(h.evidence.keys) != 1 || h.evidence.keys[0] != view.ClaimID+"/bumper.jpg" {
		t.Fatalf("unexpected evidence keys: %v", h.evidence.keys)
	}
}

func TestSlowEventBusDoesNotDelayTriage(t *testing.T) {
	body := &chunkReader{chunks: []string{"Cracked windshield."}}
	h := newIntakeHarness(newDescriberFake(body), &triageFake{resp: triageResponse(`2`, `[]`)})
	h.events.holdDescribed = make(chan struct{})
	ctx := testContext(t)

	if _, err := h.uc.SelectImage(claimPhoto("windshield.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := handle.WaitTriage(ctx); err != nil {
		t.Fatalf("WaitTriage() error = %v", err)
	}
	if calls := h.triage.calls.Load(); calls != 1 {
		t.Fatalf("triage calls = %d while described event is pending", calls)
	}
	if got := len(h.events.snapshot()); got != 0 {
		t.Fatalf("expected no published events while the bus is blocked, got %d", got)
	}

	close(h.events.holdDescribed)
	waitFor(t, "events after the bus recovers", func() bool { return len(h.events.snapshot()) == 2 })
	events := h.events.snapshot()
	if events[0].Type != domain.EventClaimDescribed || events[1].Type != domain.EventClaimTriaged {
		t.Fatalf("events out of order: %+v", events)
	}
}

func TestSubmitWithoutImageIsValidationError(t *testing.T) {
	h := newIntakeHarness(newDescriberFake(), &triageFake{})

	_, err := h.uc.Submit(testContext(t))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.describer.calls.Load() != 0 {
		t.Fatalf("expected no network call")
	}
	if view := h.uc.View(); view.Status != domain.StatusIdle {
		t.Fatalf("status = %s", view.Status)
	}
}

func TestSubmitRejectsNonImageContent(t *testing.T) {
	h := newIntakeHarness(newDescriberFake(), &triageFake{})
	doc := claimPhoto("notes.txt")
	doc.MimeType = "text/plain"
	if _, err := h.uc.SelectImage(doc); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}

	_, err := h.uc.Submit(testContext(t))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.describer.calls.Load() != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestSelectImageRejectsEmptyImage(t *testing.T) {
	h := newIntakeHarness(newDescriberFake(), &triageFake{})
	if _, err := h.uc.SelectImage(domain.SourceImage{Filename: "empty.jpg"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSelectImageMidStreamDiscardsStaleChunks(t *testing.T) {
	reader, writer := io.Pipe()
	h := newIntakeHarness(newDescriberFake(reader), &triageFake{resp: triageResponse(`1`, `[]`)})
	ctx := testContext(t)

	if _, err := h.uc.SelectImage(claimPhoto("first.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	first, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := writer.Write([]byte("Old ")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	waitFor(t, "first fragment", func() bool { return h.uc.View().Description == "Old " })

	view, err := h.uc.SelectImage(claimPhoto("second.jpg"))
	if err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	if view.Description != "" || view.Status != domain.StatusIdle || view.Filename != "second.jpg" {
		t.Fatalf("expected reset view, got %+v", view)
	}

	// The superseded reader consumes this chunk and must drop it.
	if _, err := writer.Write([]byte("stale text")); err != nil {
		t.Fatalf("write stale chunk: %v", err)
	}
	_ = writer.Close()

	if err := first.WaitDescription(ctx); !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected superseded, got %v", err)
	}
	if err := first.WaitTriage(ctx); !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected superseded triage, got %v", err)
	}
	if got := h.uc.View().Description; got != "" {
		t.Fatalf("stale chunk leaked into new session: %q", got)
	}
	if h.triage.calls.Load() != 0 {
		t.Fatalf("superseded submission must not reach triage")
	}
}

func TestResubmitIgnoresStaleTriage(t *testing.T) {
	release := make(chan struct{})
	h := newIntakeHarness(
		newDescriberFake(&chunkReader{chunks: []string{"first"}}, &chunkReader{chunks: []string{"second"}}),
		&triageFake{resp: triageResponse(`4`, `{}`), release: release},
	)
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("hail.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}

	first, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := first.WaitDescription(ctx); err != nil {
		t.Fatalf("WaitDescription() error = %v", err)
	}

	second, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("re-Submit() error = %v", err)
	}
	if second.Generation() <= first.Generation() {
		t.Fatalf("generation did not advance: %d -> %d", first.Generation(), second.Generation())
	}
	if err := first.WaitTriage(ctx); !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected first triage superseded, got %v", err)
	}

	if err := second.WaitDescription(ctx); err != nil {
		t.Fatalf("second WaitDescription() error = %v", err)
	}
	close(release)
	if err := second.WaitTriage(ctx); err != nil {
		t.Fatalf("second WaitTriage() error = %v", err)
	}
	view := h.uc.View()
	if view.Description != "second" || view.Adjuster == nil || view.Adjuster.Priority != domain.PriorityCritical {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestNotificationTimingAfterStreamCompletion(t *testing.T) {
	h := newIntakeHarness(
		newDescriberFake(&chunkReader{chunks: []string{"Cracked windshield."}}),
		&triageFake{resp: triageResponse(`2`, `{}`)},
	)
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("glass.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := handle.WaitDescription(ctx); err != nil {
		t.Fatalf("WaitDescription() error = %v", err)
	}

	view := h.uc.View()
	if len(view.Notifications) != 3 {
		t.Fatalf("expected armed notifications, got %+v", view.Notifications)
	}
	t0 := h.uc.Snapshot().CompletedAt
	if got := view.Notifications[0].FireAt.Sub(t0); got != 4*time.Second {
		t.Fatalf("primary at t0+%s", got)
	}
	if got := view.Notifications[1].FireAt.Sub(t0); got != 7*time.Second {
		t.Fatalf("secondary at t0+%s", got)
	}
	if view.ToastVisible {
		t.Fatalf("toast visible before 4s")
	}

	h.timers.fire(0)
	if view := h.uc.View(); !view.ToastVisible || view.AdjusterPanelRevealed {
		t.Fatalf("after first reveal: %+v", view)
	}
	h.timers.fire(1)
	if view := h.uc.View(); !view.AdjusterPanelRevealed || !view.ToastVisible {
		t.Fatalf("after second reveal: %+v", view)
	}
	h.timers.fire(2)
	if view := h.uc.View(); view.ToastVisible {
		t.Fatalf("toast should be dismissed")
	}
}

func TestResubmitBeforeFirstRevealCancelsNotifications(t *testing.T) {
	reader, writer := io.Pipe()
	h := newIntakeHarness(
		newDescriberFake(&chunkReader{chunks: []string{"first"}}, reader),
		&triageFake{resp: triageResponse(`1`, `{}`)},
	)
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("roof.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	first, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := first.WaitDescription(ctx); err != nil {
		t.Fatalf("WaitDescription() error = %v", err)
	}
	if h.timers.count() != 1 {
		t.Fatalf("expected first reveal armed")
	}

	if _, err := h.uc.Submit(ctx); err != nil {
		t.Fatalf("re-Submit() error = %v", err)
	}
	if !h.timers.at(0).stopped.Load() {
		t.Fatalf("expected pending reveal stopped")
	}
	h.timers.fire(0)

	view := h.uc.View()
	if view.ToastVisible || view.AdjusterPanelRevealed || len(view.Notifications) != 0 {
		t.Fatalf("stale notification fired: %+v", view)
	}
	if h.timers.count() != 1 {
		t.Fatalf("stale reveal scheduled a follow-up")
	}
	_ = writer.Close()
}

func TestStreamFailureReturnsToIdleKeepingDescription(t *testing.T) {
	body := &chunkReader{chunks: []string{"Front "}, err: errors.New("connection reset")}
	h := newIntakeHarness(newDescriberFake(body), &triageFake{})
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("bumper.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	err = handle.WaitDescription(ctx)
	if !errors.Is(err, domain.ErrStream) {
		t.Fatalf("expected stream error, got %v", err)
	}
	view := h.uc.View()
	if view.Status != domain.StatusIdle || view.Description != "Front " || view.LastError == "" {
		t.Fatalf("unexpected view after failure: %+v", view)
	}
	if view.Generating {
		t.Fatalf("placeholder must not render after failure")
	}
	if h.triage.calls.Load() != 0 {
		t.Fatalf("triage must not run after a failed stream")
	}
	if h.timers.count() != 0 {
		t.Fatalf("notifications must not be armed after a failed stream")
	}
}

func TestDescriptionNetworkFailure(t *testing.T) {
	describer := newDescriberFake()
	describer.err = domain.WrapError(domain.ErrNetwork, "stream description", errors.New("dial tcp: refused"))
	h := newIntakeHarness(describer, &triageFake{})
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("flood.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := handle.WaitTriage(ctx); !errors.Is(err, domain.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	if view := h.uc.View(); view.Status != domain.StatusIdle {
		t.Fatalf("status = %s", view.Status)
	}

	// Retrying is an explicit re-submission.
	describer.err = nil
	describer.bodies <- &chunkReader{chunks: []string{"Water line at 40cm."}}
	retry, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("re-Submit() error = %v", err)
	}
	if err := retry.WaitDescription(ctx); err != nil {
		t.Fatalf("retry WaitDescription() error = %v", err)
	}
}

func TestTriageFailureKeepsDescription(t *testing.T) {
	h := newIntakeHarness(
		newDescriberFake(&chunkReader{chunks: []string{"Dented door."}}),
		&triageFake{err: errors.New("agent status: 500")},
	)
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("door.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := handle.WaitDescription(ctx); err != nil {
		t.Fatalf("WaitDescription() error = %v", err)
	}
	if err := handle.WaitTriage(ctx); !errors.Is(err, domain.ErrTriage) {
		t.Fatalf("expected triage error, got %v", err)
	}

	view := h.uc.View()
	if view.Status != domain.StatusStreamingDone {
		t.Fatalf("status = %s", view.Status)
	}
	if view.Description != "Dented door." || view.Adjuster != nil || view.TriageError == "" {
		t.Fatalf("unexpected view: %+v", view)
	}
	waitFor(t, "described event", func() bool { return len(h.events.snapshot()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if len(h.events.snapshot()) != 1 {
		t.Fatalf("expected only the described event")
	}
	if h.timers.count() != 1 {
		t.Fatalf("notifications must be armed independently of triage")
	}
}

func TestGeneratingPlaceholderWhileSending(t *testing.T) {
	reader, writer := io.Pipe()
	h := newIntakeHarness(newDescriberFake(reader), &triageFake{resp: triageResponse(`1`, `{}`)})
	ctx := testContext(t)
	if _, err := h.uc.SelectImage(claimPhoto("bumper.jpg")); err != nil {
		t.Fatalf("SelectImage() error = %v", err)
	}
	handle, err := h.uc.Submit(ctx)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	view := h.uc.View()
	if view.Status != domain.StatusSending || !view.Generating {
		t.Fatalf("expected generating placeholder, got %+v", view)
	}

	if _, err := writer.Write([]byte("Scratch")); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	waitFor(t, "first fragment", func() bool { return h.uc.View().Description == "Scratch" })
	if h.uc.View().Generating {
		t.Fatalf("placeholder must hide once text arrived")
	}
	_ = writer.Close()
	if err := handle.WaitTriage(ctx); err != nil {
		t.Fatalf("WaitTriage() error = %v", err)
	}
}

package usecase

import (
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

func TestSchedulerComposesDelaysFromPreviousReveal(t *testing.T) {
	timers := &manualTimers{}
	scheduler := NewNotificationScheduler(DefaultNotificationSpecs(), WithAfterFunc(timers.AfterFunc))
	t0 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	scheduler.Arm(1, t0)

	_, state := scheduler.Snapshot()
	want := []time.Duration{4 * time.Second, 7 * time.Second, 9 * time.Second}
	for i, n := range state {
		if got := n.FireAt.Sub(t0); got != want[i] {
			t.Fatalf("%s fires at t0+%s, want t0+%s", n.ID, got, want[i])
		}
		if n.Revealed {
			t.Fatalf("%s revealed before firing", n.ID)
		}
	}

	if timers.count() != 1 || timers.at(0).delay != 4*time.Second {
		t.Fatalf("expected only the first timer armed at 4s")
	}
	timers.fire(0)
	if timers.count() != 2 || timers.at(1).delay != 3*time.Second {
		t.Fatalf("expected second timer armed 3s after the first")
	}
	_, state = scheduler.Snapshot()
	if !state[0].Revealed || state[1].Revealed {
		t.Fatalf("unexpected reveal state: %+v", state)
	}

	timers.fire(1)
	timers.fire(2)
	_, state = scheduler.Snapshot()
	for _, n := range state {
		if !n.Revealed {
			t.Fatalf("%s not revealed", n.ID)
		}
	}
	if timers.count() != 3 {
		t.Fatalf("expected chain to stop after last spec, got %d timers", timers.count())
	}
}

func TestSchedulerCancelBeforeFirstRevealPreventsAll(t *testing.T) {
	timers := &manualTimers{}
	var mu sync.Mutex
	var revealed []domain.NotificationID
	scheduler := NewNotificationScheduler(
		DefaultNotificationSpecs(),
		WithAfterFunc(timers.AfterFunc),
		WithRevealHook(func(_ uint64, n domain.Notification) {
			mu.Lock()
			defer mu.Unlock()
			revealed = append(revealed, n.ID)
		}),
	)

	scheduler.Arm(1, time.Now())
	scheduler.Cancel()
	if !timers.at(0).stopped.Load() {
		t.Fatalf("expected pending timer to be stopped")
	}

	timers.fire(0)
	if timers.count() != 1 {
		t.Fatalf("stale callback must not schedule the next reveal")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(revealed) != 0 {
		t.Fatalf("expected no reveals, got %v", revealed)
	}
	if _, state := scheduler.Snapshot(); state != nil {
		t.Fatalf("expected no notifications after cancel, got %+v", state)
	}
}

func TestSchedulerRearmIgnoresPreviousGeneration(t *testing.T) {
	timers := &manualTimers{}
	scheduler := NewNotificationScheduler(DefaultNotificationSpecs(), WithAfterFunc(timers.AfterFunc))

	scheduler.Arm(1, time.Now())
	scheduler.Arm(2, time.Now())
	timers.fire(0)

	generation, state := scheduler.Snapshot()
	if generation != 2 {
		t.Fatalf("generation = %d", generation)
	}
	for _, n := range state {
		if n.Revealed {
			t.Fatalf("generation 1 timer revealed %s for generation 2", n.ID)
		}
	}

	timers.fire(1)
	_, state = scheduler.Snapshot()
	if !state[0].Revealed {
		t.Fatalf("expected generation 2 reveal")
	}
}

func TestSchedulerRevealIsOneWay(t *testing.T) {
	timers := &manualTimers{}
	calls := 0
	scheduler := NewNotificationScheduler(
		[]NotificationSpec{{ID: domain.NotifyClaimUnderReview, Delay: time.Second}},
		WithAfterFunc(timers.AfterFunc),
		WithRevealHook(func(uint64, domain.Notification) { calls++ }),
	)
	scheduler.Arm(7, time.Now())
	timers.fire(0)
	timers.fire(0)

	if calls != 1 {
		t.Fatalf("expected a single reveal, got %d", calls)
	}
}

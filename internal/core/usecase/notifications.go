package usecase

import (
	"sync"
	"time"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

// NotificationSpec schedules one reveal Delay after the previous reveal
// (the first one after the stream completion instant).
type NotificationSpec struct {
	ID    domain.NotificationID
	Delay time.Duration
}

func DefaultNotificationSpecs() []NotificationSpec {
	return []NotificationSpec{
		{ID: domain.NotifyClaimUnderReview, Delay: 4 * time.Second},
		{ID: domain.NotifyAdjusterPanel, Delay: 3 * time.Second},
		{ID: domain.NotifyUnderReviewDismiss, Delay: 2 * time.Second},
	}
}

type Timer interface {
	Stop() bool
}

// AfterFunc matches time.AfterFunc; tests inject a manual clock.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type SchedulerOption func(*NotificationScheduler)

func WithAfterFunc(fn AfterFunc) SchedulerOption {
	return func(s *NotificationScheduler) {
		if fn != nil {
			s.afterFunc = fn
		}
	}
}

// WithRevealHook is called outside the scheduler lock after each reveal.
func WithRevealHook(fn func(generation uint64, n domain.Notification)) SchedulerOption {
	return func(s *NotificationScheduler) {
		s.onReveal = fn
	}
}

// NotificationScheduler owns the delayed reveals of one submission. Arming
// again or cancelling drops every pending timer of the previous generation.
type NotificationScheduler struct {
	specs     []NotificationSpec
	afterFunc AfterFunc
	onReveal  func(uint64, domain.Notification)

	mu         sync.Mutex
	generation uint64
	state      []domain.Notification
	pending    Timer
}

func NewNotificationScheduler(specs []NotificationSpec, opts ...SchedulerOption) *NotificationScheduler {
	s := &NotificationScheduler{
		specs:     append([]NotificationSpec(nil), specs...),
		afterFunc: realAfterFunc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Arm starts the reveal chain for generation, anchored at t0.
func (s *NotificationScheduler) Arm(generation uint64, t0 time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.generation = generation
	s.state = make([]domain.Notification, len(s.specs))
	fireAt := t0
	for i, spec := range s.specs {
		fireAt = fireAt.Add(spec.Delay)
		s.state[i] = domain.Notification{ID: spec.ID, FireAt: fireAt}
	}
	s.scheduleLocked(generation, 0)
}

// Cancel stops pending timers and forgets the armed notifications.
func (s *NotificationScheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.generation = 0
	s.state = nil
}

// Snapshot returns the armed generation and a copy of its notifications.
func (s *NotificationScheduler) Snapshot() (uint64, []domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return s.generation, nil
	}
	return s.generation, append([]domain.Notification(nil), s.state...)
}

func (s *NotificationScheduler) chainRevealHook(fn func(uint64, domain.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.onReveal
	if prev == nil {
		s.onReveal = fn
		return
	}
	s.onReveal = func(generation uint64, n domain.Notification) {
		prev(generation, n)
		fn(generation, n)
	}
}

func (s *NotificationScheduler) stopLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *NotificationScheduler) scheduleLocked(generation uint64, index int) {
	if index >= len(s.specs) {
		s.pending = nil
		return
	}
	s.pending = s.afterFunc(s.specs[index].Delay, func() {
		s.fire(generation, index)
	})
}

func (s *NotificationScheduler) fire(generation uint64, index int) {
	s.mu.Lock()
	if s.generation != generation || index >= len(s.state) || s.state[index].Revealed {
		s.mu.Unlock()
		return
	}
	s.state[index].Revealed = true
	revealed := s.state[index]
	s.scheduleLocked(generation, index+1)
	hook := s.onReveal
	s.mu.Unlock()

	if hook != nil {
		hook(generation, revealed)
	}
}

package usecase

import (
	"context"
	"sync"
)

// submission is the future handed back by Submit.
type submission struct {
	generation uint64

	describedOnce sync.Once
	triagedOnce   sync.Once
	describedCh   chan struct{}
	triagedCh     chan struct{}
	describeErr   error
	triageErr     error
}

func newSubmission(generation uint64) *submission {
	return &submission{
		generation:  generation,
		describedCh: make(chan struct{}),
		triagedCh:   make(chan struct{}),
	}
}

func (s *submission) Generation() uint64 {
	return s.generation
}

func (s *submission) WaitDescription(ctx context.Context) error {
	select {
	case <-s.describedCh:
		return s.describeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *submission) WaitTriage(ctx context.Context) error {
	select {
	case <-s.triagedCh:
		return s.triageErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *submission) describe(err error) {
	s.describedOnce.Do(func() {
		s.describeErr = err
		close(s.describedCh)
	})
}

func (s *submission) triaged(err error) {
	s.triagedOnce.Do(func() {
		s.triageErr = err
		close(s.triagedCh)
	})
}

// finish resolves both stages with err; used when the description never completes.
func (s *submission) finish(err error) {
	s.describe(err)
	s.triaged(err)
}

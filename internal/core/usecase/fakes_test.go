package usecase

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/claim-intake/internal/core/domain"
)

type manualTimer struct {
	delay   time.Duration
	fn      func()
	stopped atomic.Bool
}

func (m *manualTimer) Stop() bool {
	return !m.stopped.Swap(true)
}

// manualTimers records AfterFunc calls; callbacks run only when fired.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualTimers) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &manualTimer{delay: d, fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *manualTimers) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

func (c *manualTimers) at(i int) *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[i]
}

// fire runs timer i even when stopped, emulating a callback already in flight.
func (c *manualTimers) fire(i int) {
	c.at(i).fn()
}

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
	err    error
	closed atomic.Bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkReader) Close() error {
	r.closed.Store(true)
	return nil
}

type describerFake struct {
	calls  atomic.Int32
	bodies chan io.ReadCloser
	err    error
}

func newDescriberFake(bodies ...io.ReadCloser) *describerFake {
	f := &describerFake{bodies: make(chan io.ReadCloser, len(bodies)+4)}
	for _, body := range bodies {
		f.bodies <- body
	}
	return f
}

func (f *describerFake) StreamDescription(ctx context.Context, _ domain.SourceImage) (io.ReadCloser, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	select {
	case body := <-f.bodies:
		return body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// chunkDecoder yields each Read result verbatim as one fragment.
type chunkDecoder struct{}

func (chunkDecoder) Fragments(body io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		buf := make([]byte, 64)
		for {
			n, err := body.Read(buf)
			if n > 0 && !yield(string(buf[:n]), nil) {
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", domain.WrapError(domain.ErrStream, "read", err))
				return
			}
		}
	}
}

type triageFake struct {
	calls   atomic.Int32
	claimID atomic.Value
	resp    *domain.TriageResponse
	err     error
	release chan struct{}
}

func (f *triageFake) RunTriage(ctx context.Context, claimID string) (*domain.TriageResponse, error) {
	f.calls.Add(1)
	f.claimID.Store(claimID)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type evidenceFake struct {
	mu   sync.Mutex
	keys []string
}

func (f *evidenceFake) Save(_ context.Context, key string, data io.Reader) error {
	_, _ = io.Copy(io.Discard, data)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func (f *evidenceFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, domain.ErrNotFound
}

type publisherFake struct {
	// holdDescribed, when set, blocks claim.described until closed.
	holdDescribed chan struct{}

	mu     sync.Mutex
	events []domain.IntakeEvent
}

func (f *publisherFake) PublishIntakeEvent(_ context.Context, event domain.IntakeEvent) error {
	if f.holdDescribed != nil && event.Type == domain.EventClaimDescribed {
		<-f.holdDescribed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *publisherFake) snapshot() []domain.IntakeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.IntakeEvent(nil), f.events...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func claimPhoto(name string) domain.SourceImage {
	return domain.SourceImage{
		Filename: name,
		MimeType: "image/jpeg",
		Origin:   domain.OriginUpload,
		Data:     []byte("jpeg:" + name),
	}
}

package studio_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"artstudio/internal/session"
	"artstudio/internal/testsupport"
)

type fakeGenerator struct {
	t       testing.TB
	mu      sync.Mutex
	calls   []int
	refines []string
	failAt  int
	failErr error
	block   chan struct{}
	started chan struct{}
	width   int
	height  int
}

func newFakeGenerator(t testing.TB) *fakeGenerator {
	return &fakeGenerator{t: t, failAt: -1, width: 32, height: 18}
}

func (g *fakeGenerator) ApplyStyle(ctx context.Context, frame session.Frame, style string) (session.Frame, error) {
	g.mu.Lock()
	call := len(g.calls)
	g.calls = append(g.calls, frame.Index)
	started, block := g.started, g.block
	g.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return session.Frame{}, ctx.Err()
		}
	}
	if call == g.failAt {
		return session.Frame{}, g.failErr
	}
	return session.Frame{Index: 99, MimeType: "image/png", Data: testsupport.PNG(g.t, g.width, g.height)}, nil
}

func (g *fakeGenerator) Refine(ctx context.Context, frame session.Frame, instructions string) (session.Frame, error) {
	g.mu.Lock()
	g.refines = append(g.refines, instructions)
	g.mu.Unlock()
	if g.failErr != nil && g.failAt == -2 {
		return session.Frame{}, g.failErr
	}
	return session.Frame{MimeType: "image/png", Data: testsupport.PNG(g.t, 20, 20)}, nil
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type fakeExtractor struct {
	requested int
	err       error
}

func (e *fakeExtractor) Extract(ctx context.Context, path string, n int, progress func(done, total int)) ([]session.Frame, error) {
	e.requested = n
	if e.err != nil {
		return nil, e.err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	frames := make([]session.Frame, n)
	for i := range frames {
		frames[i] = session.Frame{Index: i, MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, byte(i)}}
		if progress != nil {
			progress(i+1, n)
		}
	}
	return frames, nil
}

type fakeRenderer struct {
	mu      sync.Mutex
	renders int
	err     error
}

func (r *fakeRenderer) Render(ctx context.Context, frames []session.Frame, dest string) error {
	r.mu.Lock()
	r.renders++
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(dest, []byte("webm"), 0o644)
}

type notice struct {
	kind   string
	frames int
	reauth bool
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *fakeNotifier) NotifyGenerationCompleted(_ context.Context, _, _ string, frames int, _ time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "completed", frames: frames})
	return nil
}

func (n *fakeNotifier) NotifyGenerationFailed(_ context.Context, _ string, _ error, reauth bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{kind: "failed", reauth: reauth})
	return nil
}

func (n *fakeNotifier) NotifyError(context.Context, error, string) error { return nil }
func (n *fakeNotifier) TestNotification(context.Context) error           { return nil }

func (n *fakeNotifier) last() (notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.notices) == 0 {
		return notice{}, false
	}
	return n.notices[len(n.notices)-1], true
}

var errBoom = errors.New("model overloaded")

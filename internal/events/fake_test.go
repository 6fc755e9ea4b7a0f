package events

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	ctx    context.Context
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (s *fakeStream) Next() ([]byte, error) {
	select {
	case m, ok := <-s.msgs:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) send(msg string) { s.msgs <- []byte(msg) }

// drop ends the stream as if the server went away.
func (s *fakeStream) drop() { close(s.msgs) }

type fakeTransport struct {
	mu      sync.Mutex
	tokens  []string
	fails   int
	streams chan *fakeStream
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{streams: make(chan *fakeStream, 16)}
}

func (t *fakeTransport) Open(ctx context.Context, token string) (Stream, error) {
	t.mu.Lock()
	t.tokens = append(t.tokens, token)
	if t.fails > 0 {
		t.fails--
		t.mu.Unlock()
		return nil, io.ErrUnexpectedEOF
	}
	t.mu.Unlock()

	s := &fakeStream{ctx: ctx, msgs: make(chan []byte, 64), closed: make(chan struct{})}
	t.streams <- s
	return s, nil
}

func (t *fakeTransport) openTokens() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tokens...)
}

func (t *fakeTransport) next(tb testing.TB) *fakeStream {
	tb.Helper()
	select {
	case s := <-t.streams:
		return s
	case <-time.After(2 * time.Second):
		tb.Fatal("no stream opened")
		return nil
	}
}

func (t *fakeTransport) expectNoOpen(tb testing.TB) {
	tb.Helper()
	select {
	case <-t.streams:
		tb.Fatal("unexpected stream opened")
	case <-time.After(50 * time.Millisecond):
	}
}

type recorder struct {
	mu     sync.Mutex
	names  []string
	events []Event
}

func (r *recorder) handler(name string) Handler {
	return func(ev Event) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.names = append(r.names, name)
		r.events = append(r.events, ev)
		return nil
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func (r *recorder) waitFor(tb testing.TB, n int) []string {
	tb.Helper()
	require.Eventually(tb, func() bool { return len(r.got()) >= n }, 2*time.Second, 5*time.Millisecond)
	return r.got()
}

func fastBackoff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func newTestChannel(t *testing.T, tr Transport, opts ...Option) *Channel {
	t.Helper()
	opts = append([]Option{WithBackoff(fastBackoff)}, opts...)
	c := NewChannel(tr, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})
	return c
}

// logSink collects log output written from the channel goroutines.
type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *logSink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *logSink) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

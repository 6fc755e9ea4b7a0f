package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

func TestChannel_DeliversMatchingTypesInOrder(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}

	require.NoError(t, c.Subscribe("a", "states", rec.handler("a")))
	require.NoError(t, c.Subscribe("b", "views", rec.handler("b")))
	require.NoError(t, c.Subscribe("c", "states", rec.handler("c")))

	s := tr.next(t)
	s.send(`{"EventType":"states","value":1}`)

	assert.Equal(t, []string{"a", "c"}, rec.waitFor(t, 2))
	rec.mu.Lock()
	assert.Equal(t, map[string]any{"value": float64(1)}, rec.events[0].Payload)
	assert.Equal(t, "states", rec.events[0].Type)
	rec.mu.Unlock()
	assert.Equal(t, []string{"tok"}, tr.openTokens())
}

func TestChannel_ReplaceKeepsPosition(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}

	require.NoError(t, c.Subscribe("a", "x", rec.handler("a1")))
	require.NoError(t, c.Subscribe("b", "x", rec.handler("b")))
	require.NoError(t, c.Subscribe("c", "x", rec.handler("c")))
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a2")))

	assert.Equal(t, []string{"a", "b", "c"}, c.Subscriptions())

	tr.next(t).send(`{"EventType":"x"}`)
	assert.Equal(t, []string{"a2", "b", "c"}, rec.waitFor(t, 3))
}

func TestChannel_ReplaceDuringDispatchDeliversOnce(t *testing.T) {
	t.Parallel()

	t.Run("replacement ahead of the cursor", func(t *testing.T) {
		t.Parallel()

		tr := newFakeTransport()
		c := newTestChannel(t, tr, WithCredential("tok"))
		rec := &recorder{}

		var once sync.Once
		require.NoError(t, c.Subscribe("p", "x", func(ev Event) error {
			once.Do(func() {
				_ = c.Subscribe("target", "x", rec.handler("new"))
			})
			return rec.handler("p")(ev)
		}))
		require.NoError(t, c.Subscribe("target", "x", rec.handler("old")))

		s := tr.next(t)
		s.send(`{"EventType":"x","n":1}`)
		assert.Equal(t, []string{"p", "new"}, rec.waitFor(t, 2))

		s.send(`{"EventType":"x","n":2}`)
		assert.Equal(t, []string{"p", "new", "p", "new"}, rec.waitFor(t, 4))
	})

	t.Run("replacement behind the cursor", func(t *testing.T) {
		t.Parallel()

		tr := newFakeTransport()
		c := newTestChannel(t, tr, WithCredential("tok"))
		rec := &recorder{}

		require.NoError(t, c.Subscribe("target", "x", rec.handler("old")))
		var once sync.Once
		require.NoError(t, c.Subscribe("p", "x", func(ev Event) error {
			once.Do(func() {
				_ = c.Subscribe("target", "x", rec.handler("new"))
			})
			return rec.handler("p")(ev)
		}))

		s := tr.next(t)
		s.send(`{"EventType":"x","n":1}`)
		assert.Equal(t, []string{"old", "p"}, rec.waitFor(t, 2))

		s.send(`{"EventType":"x","n":2}`)
		assert.Equal(t, []string{"old", "p", "new", "p"}, rec.waitFor(t, 4))
	})
}

func TestChannel_UnsubscribeDuringDispatch(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}

	require.NoError(t, c.Subscribe("p", "x", func(ev Event) error {
		c.Unsubscribe("victim")
		return rec.handler("p")(ev)
	}))
	require.NoError(t, c.Subscribe("victim", "x", rec.handler("victim")))
	require.NoError(t, c.Subscribe("tail", "x", rec.handler("tail")))

	tr.next(t).send(`{"EventType":"x"}`)
	assert.Equal(t, []string{"p", "tail"}, rec.waitFor(t, 2))
	assert.Equal(t, []string{"p", "tail"}, c.Subscriptions())

	c.Unsubscribe("not-there")
}

func TestChannel_MalformedMessagesAreDropped(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))

	s := tr.next(t)
	s.send(`not json`)
	s.send(`[1,2]`)
	s.send(`{"EventType":5}`)
	s.send(`{"EventType":""}`)
	s.send(`{"event": null}`)
	s.send(`{"EventType":"x","ok":true}`)

	rec.waitFor(t, 1)
	require.Eventually(t, func() bool { return c.Stats().Received == 6 }, time.Second, 5*time.Millisecond)

	stats := c.Stats()
	assert.Equal(t, uint64(4), stats.Dropped)
	assert.Equal(t, uint64(1), stats.Ignored)
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, []string{"a"}, rec.got())
}

func TestChannel_UntypedMessagesAreLogged(t *testing.T) {
	t.Parallel()

	sink := &logSink{}
	logger := zerolog.New(sink).Level(zerolog.DebugLevel)
	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"), WithLogger(logger))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))

	s := tr.next(t)
	s.send(`{"kind":"x"}`)
	s.send(`{"EventType":null}`)
	require.Eventually(t, func() bool { return c.Stats().Ignored == 2 }, time.Second, 5*time.Millisecond)

	out := sink.String()
	assert.Equal(t, 2, strings.Count(out, `"message":"ignoring event without type"`))
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"key":"EventType"`)
	assert.Empty(t, rec.got())
}

func TestChannel_CustomDiscriminator(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"), WithDiscriminator("kind"))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))

	tr.next(t).send(`{"kind":"x","EventType":"y"}`)
	rec.waitFor(t, 1)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, map[string]any{"EventType": "y"}, rec.events[0].Payload)
}

func TestChannel_HandlerFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}

	require.NoError(t, c.Subscribe("panics", "x", func(Event) error { panic("boom") }))
	require.NoError(t, c.Subscribe("fails", "x", func(Event) error { return errors.New(errors.ErrorTypeInternal, "bad") }))
	require.NoError(t, c.Subscribe("ok", "x", rec.handler("ok")))

	tr.next(t).send(`{"EventType":"x"}`)
	rec.waitFor(t, 1)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.HandlerPanics)
	assert.Equal(t, uint64(1), stats.HandlerErrors)
}

func TestChannel_HandlersGetOwnPayload(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}

	require.NoError(t, c.Subscribe("mutator", "x", func(ev Event) error {
		ev.Payload["v"] = "changed"
		return nil
	}))
	require.NoError(t, c.Subscribe("reader", "x", rec.handler("reader")))

	tr.next(t).send(`{"EventType":"x","v":"orig"}`)
	rec.waitFor(t, 1)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, "orig", rec.events[0].Payload["v"])
}

func TestChannel_StartsLazily(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr)
	rec := &recorder{}

	c.SetCredential("tok")
	tr.expectNoOpen(t)
	assert.Equal(t, StateClosed, c.State())

	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))
	tr.next(t).send(`{"EventType":"x"}`)
	rec.waitFor(t, 1)
	assert.Equal(t, StateOpen, c.State())
}

func TestChannel_NoCredentialNoConnection(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr)

	require.NoError(t, c.Subscribe("a", "x", func(Event) error { return nil }))
	tr.expectNoOpen(t)
	assert.Equal(t, StateClosed, c.State())
	assert.Equal(t, []string{"a"}, c.Subscriptions())
}

func TestChannel_ReconnectKeepsSubscriptions(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))

	first := tr.next(t)
	first.send(`{"EventType":"x"}`)
	rec.waitFor(t, 1)
	first.drop()

	second := tr.next(t)
	second.send(`{"EventType":"x"}`)
	assert.Equal(t, []string{"a", "a"}, rec.waitFor(t, 2))

	stats := c.Stats()
	assert.Equal(t, uint64(2), stats.Connects)
	assert.Equal(t, uint64(1), stats.Reconnects)
}

func TestChannel_RetriesFailedOpen(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	tr.fails = 2
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))

	tr.next(t).send(`{"EventType":"x"}`)
	rec.waitFor(t, 1)
	assert.Len(t, tr.openTokens(), 3)
	assert.Equal(t, uint64(0), c.Stats().Reconnects)
}

func TestChannel_RevokeCredential(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))
	s := tr.next(t)

	c.SetCredential("")

	assert.Empty(t, c.Subscriptions())
	assert.Equal(t, StateClosed, c.State())
	require.Eventually(t, func() bool { return s.ctx.Err() != nil }, time.Second, 5*time.Millisecond)

	c.SetCredential("tok2")
	tr.expectNoOpen(t)
	require.NoError(t, c.Subscribe("b", "x", rec.handler("b")))
	tr.next(t).send(`{"EventType":"x"}`)
	assert.Equal(t, []string{"b"}, rec.waitFor(t, 1))
	assert.Equal(t, []string{"tok", "tok2"}, tr.openTokens())
}

func TestChannel_CredentialChangeRestarts(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("one"))
	rec := &recorder{}
	require.NoError(t, c.Subscribe("a", "x", rec.handler("a")))
	first := tr.next(t)

	c.SetCredential("one")
	tr.expectNoOpen(t)

	c.SetCredential("two")
	second := tr.next(t)
	require.Eventually(t, func() bool { return first.ctx.Err() != nil }, time.Second, 5*time.Millisecond)

	second.send(`{"EventType":"x"}`)
	rec.waitFor(t, 1)
	assert.Equal(t, []string{"a"}, c.Subscriptions())
	assert.Equal(t, []string{"one", "two"}, tr.openTokens())
}

func TestChannel_Close(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := NewChannel(tr, WithCredential("tok"), WithBackoff(fastBackoff))
	require.NoError(t, c.Subscribe("a", "x", func(Event) error { return nil }))
	s := tr.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	assert.Error(t, s.ctx.Err())
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, c.Subscriptions())

	err := c.Subscribe("b", "x", func(Event) error { return nil })
	require.Error(t, err)
	assert.Equal(t, errors.CodeChannelClosed, errors.GetCode(err))

	c.SetCredential("other")
	tr.expectNoOpen(t)
}

func TestChannel_NoDispatchAfterClose(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport()
	c := NewChannel(tr, WithCredential("tok"), WithBackoff(fastBackoff))
	var calls atomic.Int32
	require.NoError(t, c.Subscribe("a", "x", func(Event) error {
		calls.Add(1)
		return nil
	}))
	s := tr.next(t)

	require.NoError(t, c.Close(context.Background()))
	s.msgs <- []byte(`{"EventType":"x"}`)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestChannel_SubscribeValidation(t *testing.T) {
	t.Parallel()

	c := newTestChannel(t, newFakeTransport())
	noop := func(Event) error { return nil }

	tests := []struct {
		name      string
		id, event string
		handler   Handler
	}{
		{"empty id", "", "x", noop},
		{"empty event type", "a", "", noop},
		{"nil handler", "a", "x", nil},
	}
	for _, tt := range tests {
		err := c.Subscribe(tt.id, tt.event, tt.handler)
		require.Error(t, err, tt.name)
		assert.True(t, errors.IsValidation(err), tt.name)
		assert.Equal(t, errors.CodeInvalidSubscription, errors.GetCode(err), tt.name)
	}
}

func TestChannel_StateHook(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var states []State
	tr := newFakeTransport()
	c := newTestChannel(t, tr, WithCredential("tok"), WithStateHook(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	require.NoError(t, c.Subscribe("a", "x", func(Event) error { return nil }))
	tr.next(t)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 2
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []State{StateConnecting, StateOpen}, states)
	mu.Unlock()
}

func TestTyped(t *testing.T) {
	t.Parallel()

	type payload struct {
		Value int `json:"value"`
	}
	var got payload
	h := Typed(func(p payload) { got = p })

	require.NoError(t, h(Event{Type: "x", Payload: map[string]any{"value": float64(3)}}))
	assert.Equal(t, 3, got.Value)

	err := h(Event{Type: "x", Payload: map[string]any{"value": "three"}})
	require.Error(t, err)
	assert.Equal(t, errors.CodeMalformedEvent, errors.GetCode(err))
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}

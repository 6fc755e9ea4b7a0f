// Package events maintains the single server-push connection of a process
// and fans its messages out to a dynamic, ordered set of subscribers.
//
// Subscribers are keyed by id. Subscribing with an id that is already
// present replaces the earlier handler in place, so a consumer that
// re-registers on every change never has two live registrations and keeps
// its position in delivery order. Messages are delivered synchronously on
// the read goroutine, in arrival order, to every subscriber whose event
// type matches.
package events

import (
	"context"
	"encoding/json"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// DefaultDiscriminator is the message key naming the event type.
const DefaultDiscriminator = "EventType"

// Reconnect delays used when no backoff is configured.
const (
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

// State is the connection state of a Channel.
type State int

// Channel states.
const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

var stateNames = map[State]string{
	StateClosed:       "closed",
	StateConnecting:   "connecting",
	StateOpen:         "open",
	StateReconnecting: "reconnecting",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Event is one decoded message: its type and the remaining keys.
type Event struct {
	Type    string
	Payload map[string]any
}

// Decode converts the payload into v via JSON.
func (e Event) Decode(v any) error {
	b, err := json.Marshal(e.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Handler receives matching events. A returned error is logged.
type Handler func(Event) error

// Typed adapts fn to a Handler that decodes the payload into T first.
func Typed[T any](fn func(T)) Handler {
	return func(ev Event) error {
		var v T
		if err := ev.Decode(&v); err != nil {
			return errors.CreateWithCause(errors.CodeMalformedEvent, err).WithPath(ev.Type)
		}
		fn(v)
		return nil
	}
}

// Stats are cumulative counters of a Channel.
type Stats struct {
	Received      uint64 `json:"received"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
	Ignored       uint64 `json:"ignored"`
	Connects      uint64 `json:"connects"`
	Reconnects    uint64 `json:"reconnects"`
	HandlerErrors uint64 `json:"handler_errors"`
	HandlerPanics uint64 `json:"handler_panics"`
}

type counters struct {
	received   atomic.Uint64
	delivered  atomic.Uint64
	dropped    atomic.Uint64
	ignored    atomic.Uint64
	connects   atomic.Uint64
	reconnects atomic.Uint64
	errors     atomic.Uint64
	panics     atomic.Uint64
}

type subscription struct {
	id        string
	eventType string
	handler   Handler

	retired atomic.Bool
	next    atomic.Pointer[subscription]
}

// live follows replacements to the current registration of the same id.
// It returns nil when the id has been unsubscribed.
func (s *subscription) live() *subscription {
	cur := s
	for cur.retired.Load() {
		cur = cur.next.Load()
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Option configures a Channel.
type Option func(*Channel)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = logger
	}
}

// WithDiscriminator sets the message key holding the event type.
func WithDiscriminator(key string) Option {
	return func(c *Channel) {
		if key != "" {
			c.discriminator = key
		}
	}
}

// WithBackoff sets the factory of reconnect delay policies. A policy is
// created per connection loop and reset after every successful open.
func WithBackoff(factory func() backoff.BackOff) Option {
	return func(c *Channel) {
		if factory != nil {
			c.newBackoff = factory
		}
	}
}

// WithStateHook registers a callback invoked on every state change.
func WithStateHook(hook func(State)) Option {
	return func(c *Channel) {
		c.onState = hook
	}
}

// WithCredential sets the initial credential.
func WithCredential(token string) Option {
	return func(c *Channel) {
		c.token = token
	}
}

// ExponentialBackoff returns a backoff factory growing from initial to
// maxInterval that never gives up.
func ExponentialBackoff(initial, maxInterval time.Duration) func() backoff.BackOff {
	return func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = initial
		b.MaxInterval = maxInterval
		b.MaxElapsedTime = 0
		return b
	}
}

// Channel owns one push connection and its subscriptions.
type Channel struct {
	transport     Transport
	logger        zerolog.Logger
	discriminator string
	newBackoff    func() backoff.BackOff
	onState       func(State)

	mu     sync.Mutex
	subs   []*subscription // copy-on-write
	byID   map[string]*subscription
	token  string
	state  State
	closed bool
	loopID uint64
	cancel context.CancelFunc
	done   chan struct{}

	stats counters
}

// NewChannel creates a Channel reading from transport. No connection is
// made until there is both a credential and a subscription.
func NewChannel(transport Transport, opts ...Option) *Channel {
	c := &Channel{
		transport:     transport,
		logger:        zerolog.Nop(),
		discriminator: DefaultDiscriminator,
		newBackoff:    ExponentialBackoff(DefaultInitialBackoff, DefaultMaxBackoff),
		byID:          make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers handler for eventType under id. An existing
// registration with the same id is replaced in place. The connection is
// started if a credential is available.
func (c *Channel) Subscribe(id, eventType string, handler Handler) error {
	if id == "" || eventType == "" || handler == nil {
		return errors.CreateWithMessage(errors.CodeInvalidSubscription, "subscription needs an id, an event type and a handler").
			WithPath(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Create(errors.CodeChannelClosed).WithPath(id)
	}

	ns := &subscription{id: id, eventType: eventType, handler: handler}
	subs := make([]*subscription, len(c.subs), len(c.subs)+1)
	copy(subs, c.subs)

	if old, ok := c.byID[id]; ok {
		for i, s := range subs {
			if s == old {
				subs[i] = ns
				break
			}
		}
		old.next.Store(ns)
		old.retired.Store(true)
	} else {
		subs = append(subs, ns)
	}
	c.subs = subs
	c.byID[id] = ns

	c.startLocked()
	return nil
}

// Unsubscribe removes the registration with id. Unknown ids are ignored.
func (c *Channel) Unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	old, ok := c.byID[id]
	if !ok {
		return
	}
	delete(c.byID, id)
	subs := make([]*subscription, 0, len(c.subs))
	for _, s := range c.subs {
		if s != old {
			subs = append(subs, s)
		}
	}
	c.subs = subs
	old.retired.Store(true)
}

// Subscriptions returns the registered ids in delivery order.
func (c *Channel) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, len(c.subs))
	for i, s := range c.subs {
		ids[i] = s.id
	}
	return ids
}

// SetCredential stores the bearer credential. A different non-empty value
// restarts the connection with it; an empty value revokes: the connection
// is torn down and all subscriptions are dropped.
func (c *Channel) SetCredential(token string) {
	c.mu.Lock()
	if c.closed || token == c.token {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	c.token = token

	if token == "" {
		for _, s := range c.subs {
			s.retired.Store(true)
		}
		c.subs = nil
		c.byID = make(map[string]*subscription)
		c.mu.Unlock()
		c.logger.Info().Msg("credential revoked, event channel torn down")
		c.setState(0, StateClosed)
		return
	}
	c.startLocked()
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a snapshot of the counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Received:      c.stats.received.Load(),
		Delivered:     c.stats.delivered.Load(),
		Dropped:       c.stats.dropped.Load(),
		Ignored:       c.stats.ignored.Load(),
		Connects:      c.stats.connects.Load(),
		Reconnects:    c.stats.reconnects.Load(),
		HandlerErrors: c.stats.errors.Load(),
		HandlerPanics: c.stats.panics.Load(),
	}
}

// Close tears the channel down for good: the connection is aborted, the
// read loop is awaited and all subscriptions are dropped. It must not be
// called from a handler. Later Subscribe calls fail with channel_closed.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	done := c.stopLocked()
	for _, s := range c.subs {
		s.retired.Store(true)
	}
	c.subs = nil
	c.byID = make(map[string]*subscription)
	c.mu.Unlock()

	c.setState(0, StateClosed)
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(errors.ErrorTypeTimeout, ctx.Err(), "waiting for event loop to stop")
	}
}

// startLocked launches the read loop if it is not running and there is a
// credential and at least one subscription.
func (c *Channel) startLocked() {
	if c.closed || c.cancel != nil || c.token == "" || len(c.subs) == 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.loopID++
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, c.loopID, c.token, c.done)
}

// stopLocked cancels the running loop and returns its done channel.
func (c *Channel) stopLocked() chan struct{} {
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	done := c.done
	c.cancel = nil
	c.done = nil
	c.loopID++
	return done
}

// setState applies s if loop is still the current loop. Loop 0 is the
// channel itself and always applies.
func (c *Channel) setState(loop uint64, s State) {
	c.mu.Lock()
	if (loop != 0 && loop != c.loopID) || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	hook := c.onState
	c.mu.Unlock()

	c.logger.Debug().Str("state", s.String()).Msg("event channel state")
	if hook != nil {
		hook(s)
	}
}

func (c *Channel) run(ctx context.Context, loop uint64, token string, done chan struct{}) {
	defer close(done)
	log := c.logger.With().Uint64("loop", loop).Logger()

	bo := c.newBackoff()
	bo.Reset()
	connected := false

	for {
		if ctx.Err() != nil {
			return
		}
		if connected {
			c.setState(loop, StateReconnecting)
		} else {
			c.setState(loop, StateConnecting)
		}

		stream, err := c.transport.Open(ctx, token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			ev := log.Warn()
			if errors.IsAuth(err) {
				ev = log.Error()
			}
			ev.Err(err).Msg("event stream unavailable")
			if !c.wait(ctx, bo) {
				return
			}
			continue
		}

		c.stats.connects.Add(1)
		if connected {
			c.stats.reconnects.Add(1)
		}
		connected = true
		bo.Reset()
		c.setState(loop, StateOpen)
		log.Info().Msg("event stream open")

		err = c.consume(ctx, stream)
		_ = stream.Close()
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("event stream dropped")
		c.setState(loop, StateReconnecting)
		if !c.wait(ctx, bo) {
			return
		}
	}
}

func (c *Channel) wait(ctx context.Context, bo backoff.BackOff) bool {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		c.logger.Error().Msg("reconnect policy gave up")
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Channel) consume(ctx context.Context, stream Stream) error {
	for {
		data, err := stream.Next()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.handle(ctx, data)
	}
}

// handle decodes one message and dispatches it.
func (c *Channel) handle(ctx context.Context, data []byte) {
	c.stats.received.Add(1)

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil || msg == nil {
		c.stats.dropped.Add(1)
		c.logger.Warn().Err(err).Int("bytes", len(data)).Msg("dropping malformed event")
		return
	}

	raw, present := msg[c.discriminator]
	eventType, isString := raw.(string)
	switch {
	case !present || raw == nil:
		c.stats.ignored.Add(1)
		c.logger.Debug().Str("key", c.discriminator).Int("bytes", len(data)).Msg("ignoring event without type")
		return
	case !isString || eventType == "":
		c.stats.dropped.Add(1)
		c.logger.Warn().Str("key", c.discriminator).Interface("value", raw).Msg("dropping event with invalid type")
		return
	}
	delete(msg, c.discriminator)

	c.dispatch(ctx, Event{Type: eventType, Payload: msg})
}

// dispatch delivers ev to the snapshot of subscriptions taken on entry,
// resolving replacements made meanwhile.
func (c *Channel) dispatch(ctx context.Context, ev Event) {
	c.mu.Lock()
	snapshot := c.subs
	c.mu.Unlock()

	for _, s := range snapshot {
		if ctx.Err() != nil {
			return
		}
		cur := s.live()
		if cur == nil || cur.eventType != ev.Type {
			continue
		}
		c.invoke(cur, Event{Type: ev.Type, Payload: maps.Clone(ev.Payload)})
	}
}

func (c *Channel) invoke(s *subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.panics.Add(1)
			c.logger.Error().Str("subscription", s.id).Str("event", ev.Type).Interface("panic", r).Msg("event handler panicked")
		}
	}()

	err := s.handler(ev)
	c.stats.delivered.Add(1)
	if err != nil {
		c.stats.errors.Add(1)
		c.logger.Warn().Err(err).Str("subscription", s.id).Str("event", ev.Type).Msg("event handler failed")
	}
}

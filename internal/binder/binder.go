// Package binder ties event subscriptions to the lifetime of a consumer.
//
// A Binding is one logical subscriber with a stable id. Rebinding it (for
// example because its handler captured new state) goes through the
// channel's upsert, so the old and new registrations never coexist. A
// Scope owns bindings and watches and releases them all on Close.
package binder

import (
	"sync"

	"github.com/google/uuid"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/events"
)

// Subscriber is the part of events.Channel a Binding needs.
type Subscriber interface {
	Subscribe(id, eventType string, handler events.Handler) error
	Unsubscribe(id string)
}

// Binding is one logical subscriber.
type Binding struct {
	sub Subscriber
	id  string

	mu        sync.Mutex
	active    bool
	released  bool
	eventType string
}

// NewBinding creates an inactive binding whose id is key plus a random
// suffix, unique per consumer instance.
func NewBinding(sub Subscriber, key string) *Binding {
	return &Binding{sub: sub, id: key + "-" + uuid.NewString()}
}

// ID returns the subscription id.
func (b *Binding) ID() string { return b.id }

// Bind activates the binding or replaces its handler. A binding whose
// scope has closed cannot be bound again.
func (b *Binding) Bind(eventType string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return errors.CreateWithMessage(errors.CodeChannelClosed, "scope is closed").WithPath(b.id)
	}
	if err := b.sub.Subscribe(b.id, eventType, handler); err != nil {
		return err
	}
	b.active = true
	b.eventType = eventType
	return nil
}

// Unbind removes the registration. It is safe to call more than once.
func (b *Binding) Unbind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return
	}
	b.sub.Unsubscribe(b.id)
	b.active = false
}

// release unbinds and refuses any later Bind.
func (b *Binding) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	if b.active {
		b.sub.Unsubscribe(b.id)
		b.active = false
	}
}

// Active reports whether the binding is registered.
func (b *Binding) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// EventType returns the event type of the last successful Bind.
func (b *Binding) EventType() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eventType
}

// Scope owns the bindings of one consumer.
type Scope struct {
	sub Subscriber

	mu       sync.Mutex
	bindings []*Binding
	closers  []func()
	closed   bool
}

// NewScope creates an empty scope.
func NewScope(sub Subscriber) *Scope {
	return &Scope{sub: sub}
}

// Binding creates a binding released when the scope closes.
func (s *Scope) Binding(key string) (*Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.CreateWithMessage(errors.CodeChannelClosed, "scope is closed").WithPath(key)
	}
	b := NewBinding(s.sub, key)
	s.bindings = append(s.bindings, b)
	return b, nil
}

// onClose registers fn to run on Close. On a closed scope fn runs at once
// and onClose reports false.
func (s *Scope) onClose(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return false
	}
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
	return true
}

// Closed reports whether Close has been called.
func (s *Scope) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Len returns the number of active bindings.
func (s *Scope) Len() int {
	s.mu.Lock()
	bindings := append([]*Binding(nil), s.bindings...)
	s.mu.Unlock()

	n := 0
	for _, b := range bindings {
		if b.Active() {
			n++
		}
	}
	return n
}

// Close releases every binding and watch of the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	bindings, closers := s.bindings, s.closers
	s.bindings, s.closers = nil, nil
	s.mu.Unlock()

	for _, fn := range closers {
		fn()
	}
	for _, b := range bindings {
		b.release()
	}
}

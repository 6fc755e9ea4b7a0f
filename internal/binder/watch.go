package binder

import (
	"context"
	"sync"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/events"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// updateBuffer is how many unread updates a watch keeps; older ones are
// discarded first.
const updateBuffer = 16

// EntityLoader loads an entity baseline.
type EntityLoader interface {
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
}

// TrackedLoader loads a tracked entity baseline.
type TrackedLoader interface {
	GetTracked(ctx context.Context, haid string) (*types.TrackedEntity, error)
}

// Watch follows the live value of one object: a baseline loaded once plus
// every matching event after it.
type Watch[T any] struct {
	binding *Binding

	mu      sync.Mutex
	current T
	has     bool
	live    bool
	updates chan T
	closed  bool
}

// EntityWatch follows the state of one entity.
type EntityWatch = Watch[types.BasicState]

// TrackedWatch follows the configuration of one tracked entity.
type TrackedWatch = Watch[types.TrackedEntity]

func newWatch[T any](b *Binding) *Watch[T] {
	return &Watch[T]{binding: b, updates: make(chan T, updateBuffer)}
}

// Current returns the latest value, if any has been seen.
func (w *Watch[T]) Current() (T, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current, w.has
}

// Updates delivers every new value, including the baseline. The channel is
// closed by Close.
func (w *Watch[T]) Updates() <-chan T {
	return w.updates
}

// ID returns the subscription id of the watch.
func (w *Watch[T]) ID() string {
	return w.binding.ID()
}

// Close stops following and closes Updates.
func (w *Watch[T]) Close() {
	w.binding.Unbind()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.updates)
}

func (w *Watch[T]) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// set stores v and reports whether it was taken. A baseline never
// overwrites a live value.
func (w *Watch[T]) set(v T, live bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || (!live && w.live) {
		return false
	}
	w.current, w.has = v, true
	if live {
		w.live = true
	}
	for {
		select {
		case w.updates <- v:
			return true
		default:
		}
		select {
		case <-w.updates:
		default:
		}
	}
}

func errScopeClosed(b *Binding) error {
	return errors.CreateWithMessage(errors.CodeChannelClosed, "scope is closed").WithPath(b.ID())
}

// WatchEntity follows entityID. The "states" subscription is registered
// before the baseline is requested so no change between the two is lost;
// a change that arrives before the baseline replaces it.
func WatchEntity(ctx context.Context, scope *Scope, loader EntityLoader, entityID string) (*EntityWatch, error) {
	b, err := scope.Binding("watch-state-" + entityID)
	if err != nil {
		return nil, err
	}
	w := newWatch[types.BasicState](b)
	if !scope.onClose(w.Close) {
		return nil, errScopeClosed(b)
	}

	err = b.Bind(types.EventStates, events.Typed(func(ev types.StatesEvent) {
		if bs, ok := ev.NewBasicState(entityID); ok {
			w.set(bs, true)
		}
	}))
	if err != nil {
		w.Close()
		return nil, err
	}

	e, err := loader.GetEntity(ctx, entityID)
	if err != nil {
		w.Close()
		return nil, err
	}
	if !w.set(e.Basic(), false) && w.isClosed() {
		return nil, errScopeClosed(b)
	}
	return w, nil
}

// WatchTracked follows the tracked configuration of haid through its
// entity.tracked.<haid> events.
func WatchTracked(ctx context.Context, scope *Scope, loader TrackedLoader, haid string) (*TrackedWatch, error) {
	b, err := scope.Binding("watch-tracked-" + haid)
	if err != nil {
		return nil, err
	}
	w := newWatch[types.TrackedEntity](b)
	if !scope.onClose(w.Close) {
		return nil, errScopeClosed(b)
	}

	err = b.Bind(types.TrackedEventType(haid), events.Typed(func(te types.TrackedEntity) {
		w.set(te, true)
	}))
	if err != nil {
		w.Close()
		return nil, err
	}

	te, err := loader.GetTracked(ctx, haid)
	if err != nil {
		w.Close()
		return nil, err
	}
	if !w.set(*te, false) && w.isClosed() {
		return nil, errScopeClosed(b)
	}
	return w, nil
}

package shutdown

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

func TestCoordinator_Shutdown(t *testing.T) {
	t.Parallel()

	var reason string
	coord, ctx := New(context.Background(), WithOnShutdown(func(r string) { reason = r }))
	assert.False(t, coord.IsShuttingDown())
	assert.Empty(t, coord.ShutdownReason())

	require.NoError(t, coord.Shutdown("test reason"))
	assert.True(t, coord.IsShuttingDown())
	assert.Equal(t, "test reason", coord.ShutdownReason())
	assert.Equal(t, "test reason", reason)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.Equal(t, ctx, coord.Context())

	require.NoError(t, coord.Shutdown("again"))
	assert.Equal(t, "test reason", coord.ShutdownReason())

	select {
	case <-coord.Done():
	default:
		t.Fatal("done should be closed after Shutdown returns")
	}
}

func TestCoordinator_ParentCancel(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithCancel(context.Background())
	coord, ctx := New(parent)
	cancel()
	<-ctx.Done()
	assert.False(t, coord.IsShuttingDown())
}

func TestCoordinator_CleanupOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	coord, _ := New(context.Background())
	for _, name := range []string{"api", "channel", "watch"} {
		name := name
		coord.RegisterCleanup(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, coord.Shutdown("done"))
	assert.Equal(t, []string{"watch", "channel", "api"}, order)
}

func TestCoordinator_CleanupError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	coord, _ := New(context.Background(), WithLogger(zerolog.New(&buf)))
	ran := false
	coord.RegisterCleanup("first", func(context.Context) error { ran = true; return nil })
	coord.RegisterCleanup("broken", func(context.Context) error { return assert.AnError })

	err := coord.Shutdown("done")
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "broken")
	assert.True(t, ran, "later cleanups still run")
	assert.Contains(t, buf.String(), "cleanup failed")
}

func TestCoordinator_CleanupTimeout(t *testing.T) {
	t.Parallel()

	timedOut := make(chan struct{})
	coord, _ := New(context.Background(),
		WithGracePeriod(20*time.Millisecond),
		WithOnCleanupTimeout(func() { close(timedOut) }))
	coord.RegisterCleanup("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return ctx.Err()
	})

	err := coord.Shutdown("done")
	assert.True(t, errors.IsTimeout(err))
	<-timedOut
}

func TestCoordinator_ConcurrentShutdown(t *testing.T) {
	t.Parallel()

	calls := 0
	coord, _ := New(context.Background())
	coord.RegisterCleanup("once", func(context.Context) error { calls++; return nil })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = coord.Shutdown("concurrent")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestWrapContext(t *testing.T) {
	t.Parallel()

	coord, _ := New(context.Background())
	ctx, cancel := WrapContext(context.Background(), coord)
	defer cancel()

	go func() { _ = coord.Shutdown("stop") }()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("wrapped context not canceled on shutdown")
	}
}

func TestWrapContext_ParentCancel(t *testing.T) {
	t.Parallel()

	coord, _ := New(context.Background())
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WrapContext(parent, coord)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.False(t, coord.IsShuttingDown())
}

func TestHandleSignals_Stop(t *testing.T) {
	t.Parallel()

	coord, _ := New(context.Background())
	stop := coord.HandleSignals()
	stop()
	stop()
	assert.False(t, coord.IsShuttingDown())
}

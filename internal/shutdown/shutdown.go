// Package shutdown coordinates graceful shutdown of the CLI: it turns
// SIGINT/SIGTERM into context cancellation and runs registered cleanups
// (closing the event channel and the API client) within a grace period.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ham-dashboard/ham-client/internal/errors"
)

// DefaultGracePeriod is the default time allowed for cleanup operations.
const DefaultGracePeriod = 5 * time.Second

// Coordinator manages graceful shutdown for CLI applications.
type Coordinator struct {
	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	gracePeriod time.Duration
	logger      zerolog.Logger

	cleanupFuncs []CleanupFunc

	shutdownOnce   sync.Once
	shutdownChan   chan struct{}
	doneChan       chan struct{}
	shutdownReason string
	cleanupErr     error

	onShutdown       func(reason string)
	onCleanupTimeout func()
}

// CleanupFunc is a named cleanup step. Its context expires with the grace
// period.
type CleanupFunc struct {
	Name string
	Func func(ctx context.Context) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGracePeriod sets the time allowed for cleanup.
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		c.gracePeriod = d
	}
}

// WithLogger sets the logger for shutdown and cleanup failures.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithOnShutdown sets a callback for when shutdown is initiated.
func WithOnShutdown(fn func(reason string)) Option {
	return func(c *Coordinator) {
		c.onShutdown = fn
	}
}

// WithOnCleanupTimeout sets a callback for when cleanup times out.
func WithOnCleanupTimeout(fn func()) Option {
	return func(c *Coordinator) {
		c.onCleanupTimeout = fn
	}
}

// New creates a Coordinator whose context is derived from parent and
// canceled on shutdown.
func New(parent context.Context, opts ...Option) (*Coordinator, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	c := &Coordinator{
		ctx:          ctx,
		cancel:       cancel,
		gracePeriod:  DefaultGracePeriod,
		logger:       zerolog.Nop(),
		shutdownChan: make(chan struct{}),
		doneChan:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, ctx
}

// RegisterCleanup adds a cleanup step. Steps run in LIFO order.
func (c *Coordinator) RegisterCleanup(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, CleanupFunc{Name: name, Func: fn})
}

// HandleSignals triggers shutdown on SIGINT or SIGTERM. A second signal
// exits immediately. The returned function stops listening.
func (c *Coordinator) HandleSignals() (stop func()) {
	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			go c.Shutdown(fmt.Sprintf("received signal %v", sig))
		case <-quit:
			return
		}
		select {
		case <-sigChan:
			c.logger.Warn().Msg("second signal, exiting without cleanup")
			os.Exit(1)
		case <-quit:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(sigChan)
			close(quit)
		})
	}
}

// Shutdown cancels the context and runs the cleanups. Only the first call
// has effect; every call returns the joined cleanup errors once cleanup
// has finished.
func (c *Coordinator) Shutdown(reason string) error {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.shutdownReason = reason
		cleanups := make([]CleanupFunc, len(c.cleanupFuncs))
		copy(cleanups, c.cleanupFuncs)
		c.mu.Unlock()

		close(c.shutdownChan)
		c.logger.Debug().Str("reason", reason).Msg("shutting down")

		if c.onShutdown != nil {
			c.onShutdown(reason)
		}

		c.cancel()

		err := c.runCleanups(cleanups)
		c.mu.Lock()
		c.cleanupErr = err
		c.mu.Unlock()
		close(c.doneChan)
	})
	<-c.doneChan
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cleanupErr
}

func (c *Coordinator) runCleanups(cleanups []CleanupFunc) error {
	if len(cleanups) == 0 {
		return nil
	}

	cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), c.gracePeriod)
	defer cleanupCancel()

	done := make(chan error, 1)

	go func() {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanup := cleanups[i]
			if err := cleanup.Func(cleanupCtx); err != nil {
				c.logger.Error().Err(err).Str("cleanup", cleanup.Name).Msg("cleanup failed")
				errs = append(errs, fmt.Errorf("%s: %w", cleanup.Name, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-cleanupCtx.Done():
		c.logger.Warn().Dur("grace_period", c.gracePeriod).Msg("cleanup timed out")
		if c.onCleanupTimeout != nil {
			c.onCleanupTimeout()
		}
		return errors.Wrap(errors.ErrorTypeTimeout, cleanupCtx.Err(), "cleanup timed out")
	}
}

// ShutdownChan returns a channel that's closed when shutdown begins.
func (c *Coordinator) ShutdownChan() <-chan struct{} {
	return c.shutdownChan
}

// Done returns a channel that's closed when cleanup has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.doneChan
}

// IsShuttingDown returns true if shutdown has been initiated.
func (c *Coordinator) IsShuttingDown() bool {
	select {
	case <-c.shutdownChan:
		return true
	default:
		return false
	}
}

// Context returns the coordinator's context.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// ShutdownReason returns the reason for shutdown, or empty string if not shut down.
func (c *Coordinator) ShutdownReason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdownReason
}

// WrapContext creates a child context that is canceled when either
// the parent context or the coordinator's context is canceled.
func WrapContext(parent context.Context, coord *Coordinator) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		select {
		case <-coord.shutdownChan:
			cancel()
		case <-parent.Done():
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

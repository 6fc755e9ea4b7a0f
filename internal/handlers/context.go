// Package handlers provides command handlers for the CLI.
package handlers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ham-dashboard/ham-client/internal/binder"
	"github.com/ham-dashboard/ham-client/internal/dispatch"
	"github.com/ham-dashboard/ham-client/internal/output"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// API is the backend surface the commands use. *api.Client implements it.
type API interface {
	dispatch.TrackedStore
	ListEntities(ctx context.Context) ([]types.Entity, error)
	GetEntity(ctx context.Context, id string) (*types.Entity, error)
	ListTracked(ctx context.Context) ([]types.TrackedEntity, error)
	GetTracked(ctx context.Context, haid string) (*types.TrackedEntity, error)
}

// Context is everything a command handler needs.
type Context struct {
	Ctx    context.Context
	API    API
	Events binder.Subscriber
	Editor *dispatch.Editor
	Out    *output.Printer
	Logger zerolog.Logger

	// Args holds the command name followed by its positional arguments.
	Args []string
	// Duration bounds streaming commands; zero streams until canceled.
	Duration time.Duration
	// Now returns the current time; tests replace it.
	Now func() time.Time

	Config *HandlerConfig // Populated by middleware
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

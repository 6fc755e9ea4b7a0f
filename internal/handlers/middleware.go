package handlers

import (
	"regexp"
	"strconv"
	"time"

	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// Handler is the standard handler function signature.
type Handler func(ctx *Context) error

// Middleware is a function that wraps a handler.
type Middleware func(Handler) Handler

// HandlerConfig contains configuration extracted by middleware.
type HandlerConfig struct {
	// Required arguments extracted by RequireArgs
	Args []string

	// Pattern compiled by WithPattern; nil matches everything
	Pattern *regexp.Regexp

	// Entity loaded by WithEntity
	Entity *types.Entity

	// Tracked is the tracked view of Entity, nil when it is not tracked
	Tracked *types.TrackedEntity
}

// WithConfig adds a HandlerConfig to the context if not present.
func WithConfig(ctx *Context) *HandlerConfig {
	if ctx.Config == nil {
		ctx.Config = &HandlerConfig{}
	}
	return ctx.Config
}

func usageError(usage string) error {
	return errors.CreateWithMessage(errors.CodeMissingArgument, "usage: "+usage)
}

// RequireArgs creates middleware that validates required arguments.
// It extracts arguments at the specified indices into ctx.Config.Args.
func RequireArgs(usage string, indices ...int) Middleware {
	return func(next Handler) Handler {
		return func(ctx *Context) error {
			config := WithConfig(ctx)
			config.Args = make([]string, len(indices))

			for i, idx := range indices {
				if idx >= len(ctx.Args) || ctx.Args[idx] == "" {
					return usageError(usage)
				}
				config.Args[i] = ctx.Args[idx]
			}

			return next(ctx)
		}
	}
}

// RequireArg1 is a convenience wrapper for requiring a single argument at index 1.
func RequireArg1(usage string) Middleware {
	return RequireArgs(usage, 1)
}

// RequireArg2 is a convenience wrapper for requiring arguments at indices 1 and 2.
func RequireArg2(usage string) Middleware {
	return RequireArgs(usage, 1, 2)
}

// WithOptionalSeconds sets ctx.Duration from a seconds argument at argIndex
// unless a duration was already given by flag.
func WithOptionalSeconds(argIndex int) Middleware {
	return func(next Handler) Handler {
		return func(ctx *Context) error {
			if argIndex > 0 && argIndex < len(ctx.Args) {
				n, err := strconv.Atoi(ctx.Args[argIndex])
				if err != nil || n < 0 {
					return errors.CreateWithMessage(errors.CodeInvalidArgument, "seconds must be a non-negative integer").WithPath(ctx.Args[argIndex])
				}
				if ctx.Duration == 0 {
					ctx.Duration = time.Duration(n) * time.Second
				}
			}
			return next(ctx)
		}
	}
}

// WithPattern creates middleware that compiles a glob pattern to a
// case-insensitive regex. Without an argument the pattern is nil.
func WithPattern(argIndex int) Middleware {
	return func(next Handler) Handler {
		return func(ctx *Context) error {
			config := WithConfig(ctx)

			if argIndex > 0 && argIndex < len(ctx.Args) {
				re, err := compileGlob(ctx.Args[argIndex])
				if err != nil {
					return err
				}
				config.Pattern = re
			}

			return next(ctx)
		}
	}
}

var globStar = regexp.MustCompile(`\\\*`)

func compileGlob(pattern string) (*regexp.Regexp, error) {
	regexPattern := globStar.ReplaceAllString(regexp.QuoteMeta(pattern), ".*")
	re, err := regexp.Compile("(?i)" + regexPattern)
	if err != nil {
		return nil, errors.CreateWithCause(errors.CodeInvalidArgument, err).WithPath(pattern)
	}
	return re, nil
}

// WithEntity loads the entity named by the first required argument and,
// when it is tracked, its tracked view.
func WithEntity() Middleware {
	return func(next Handler) Handler {
		return func(ctx *Context) error {
			config := WithConfig(ctx)
			if len(config.Args) == 0 {
				return usageError(ctx.Args[0] + " <entity_id>")
			}
			id := config.Args[0]

			e, err := ctx.API.GetEntity(ctx.context(), id)
			if err != nil {
				return err
			}
			config.Entity = e

			if e.Tracked {
				te, err := ctx.API.GetTracked(ctx.context(), id)
				if err != nil && !errors.IsNotFound(err) {
					return err
				}
				config.Tracked = te
			}
			return next(ctx)
		}
	}
}

// WithTiming logs the command, its outcome and duration at debug level.
func WithTiming() Middleware {
	return func(next Handler) Handler {
		return func(ctx *Context) error {
			start := time.Now()
			err := next(ctx)
			ev := ctx.Logger.Debug()
			if err != nil {
				ev = ctx.Logger.Debug().Err(err)
			}
			ev.Strs("args", ctx.Args).Dur("elapsed", time.Since(start)).Msg("command finished")
			return err
		}
	}
}

// Chain combines multiple middleware into a single middleware.
// Middleware is applied in order (first middleware wraps the outermost layer).
func Chain(middlewares ...Middleware) Middleware {
	return func(handler Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			handler = middlewares[i](handler)
		}
		return handler
	}
}

// Apply applies middleware to a handler and returns the wrapped handler.
func Apply(m Middleware, h Handler) Handler {
	return m(h)
}

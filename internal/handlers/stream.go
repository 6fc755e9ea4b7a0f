package handlers

import (
	"context"

	"github.com/ham-dashboard/ham-client/internal/binder"
	"github.com/ham-dashboard/ham-client/internal/events"
	"github.com/ham-dashboard/ham-client/internal/fieldtype"
	"github.com/ham-dashboard/ham-client/internal/output"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// HandleWatch prints an entity's fields every time its state or its tracked
// configuration changes.
var HandleWatch = Apply(
	Chain(
		RequireArg1("watch <entity_id> [seconds]"),
		WithOptionalSeconds(2),
		WithEntity(),
	),
	handleWatch,
)

func handleWatch(ctx *Context) error {
	e := ctx.Config.Entity
	sctx, cancel := streamContext(ctx)
	defer cancel()

	scope := binder.NewScope(ctx.Events)
	defer scope.Close()

	states, err := binder.WatchEntity(sctx, scope, ctx.API, e.ID)
	if err != nil {
		return err
	}

	var tracked <-chan types.TrackedEntity
	if ctx.Config.Tracked != nil {
		tw, err := binder.WatchTracked(sctx, scope, ctx.API, e.ID)
		if err != nil {
			return err
		}
		tracked = tw.Updates()
	}

	bs := e.Basic()
	fields := fieldsOf(bs, ctx.Config.Tracked)
	show := func(summary string) {
		ctx.Out.Fields(bs.EntityID, Rows(bs, fields),
			output.WithCommand("watch"), output.WithSummary(summary+" "+output.FormatTime(ctx.now())))
	}

	ctx.Logger.Debug().Str("entity", e.ID).Bool("tracked", tracked != nil).Msg("watching")
	for {
		select {
		case <-sctx.Done():
			return nil
		case s, ok := <-states.Updates():
			if !ok {
				return nil
			}
			bs = s
			if ctx.Config.Tracked == nil {
				fields = fieldtype.ClassifyEntity(bs.State, bs.Attributes)
			}
			show("state")
		case te, ok := <-tracked:
			if !ok {
				tracked = nil
				continue
			}
			fields = te.TrackedValues
			show("tracking")
		}
	}
}

// HandleEvents prints every event of a type as it arrives.
var HandleEvents = Apply(
	Chain(
		RequireArg1("events <event_type> [seconds]"),
		WithOptionalSeconds(2),
	),
	handleEvents,
)

func handleEvents(ctx *Context) error {
	eventType := ctx.Config.Args[0]
	sctx, cancel := streamContext(ctx)
	defer cancel()

	b := binder.NewBinding(ctx.Events, "cli-events")
	defer b.Unbind()

	err := b.Bind(eventType, func(ev events.Event) error {
		ctx.Out.Event(ev, ctx.now())
		return nil
	})
	if err != nil {
		return err
	}

	ctx.Logger.Debug().Str("event_type", eventType).Dur("duration", ctx.Duration).Msg("listening")
	<-sctx.Done()
	return nil
}

// streamContext bounds a streaming command by ctx.Duration, if set.
func streamContext(ctx *Context) (context.Context, context.CancelFunc) {
	if ctx.Duration > 0 {
		return context.WithTimeout(ctx.context(), ctx.Duration)
	}
	return context.WithCancel(ctx.context())
}


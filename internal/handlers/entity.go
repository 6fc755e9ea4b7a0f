package handlers

import (
	"fmt"
	"strings"

	"github.com/ham-dashboard/ham-client/internal/dispatch"
	"github.com/ham-dashboard/ham-client/internal/errors"
	"github.com/ham-dashboard/ham-client/internal/fieldtype"
	"github.com/ham-dashboard/ham-client/internal/output"
	"github.com/ham-dashboard/ham-client/internal/types"
)

// HandleEntities lists entities whose id or name matches the optional glob.
var HandleEntities = Apply(WithPattern(1), handleEntities)

func handleEntities(ctx *Context) error {
	entities, err := ctx.API.ListEntities(ctx.context())
	if err != nil {
		return err
	}

	if re := ctx.Config.Pattern; re != nil {
		var filtered []types.Entity
		for _, e := range entities {
			if re.MatchString(e.ID) || re.MatchString(e.Name) {
				filtered = append(filtered, e)
			}
		}
		entities = filtered
	}

	compact := ctx.Out.Config().Format == output.FormatCompact
	output.List(ctx.Out, entities,
		output.ListTitle[types.Entity]("Entities"),
		output.ListCommand[types.Entity]("entities"),
		output.ListFormatter(func(e types.Entity, _ int) string {
			state, _ := fieldtype.Stringify(e.State)
			tracked := ""
			if e.Tracked {
				tracked = " [tracked]"
			}
			if compact {
				return fmt.Sprintf("%s=%s%s", e.ID, state, tracked)
			}
			return fmt.Sprintf("%s%s\n  State: %s\n  Attributes: %d", e.ID, tracked, state, len(e.Attributes))
		}),
	)
	return nil
}

// HandleTracked lists tracked entities with their field count.
func HandleTracked(ctx *Context) error {
	tracked, err := ctx.API.ListTracked(ctx.context())
	if err != nil {
		return err
	}

	output.List(ctx.Out, tracked,
		output.ListTitle[types.TrackedEntity]("Tracked entities"),
		output.ListCommand[types.TrackedEntity]("tracked"),
		output.ListFormatter(func(te types.TrackedEntity, _ int) string {
			var logged []string
			for _, tf := range te.TrackedValues {
				if tf.Logging {
					logged = append(logged, tf.Field)
				}
			}
			line := fmt.Sprintf("%s (%d fields)", te.HAID, len(te.TrackedValues))
			if len(logged) > 0 {
				line += " logging: " + strings.Join(logged, ", ")
			}
			return line
		}),
	)
	return nil
}

// HandleEntity shows an entity's fields. Tracked entities use their stored
// field types; others are classified from their current values.
var HandleEntity = Apply(
	Chain(
		RequireArg1("entity <entity_id>"),
		WithEntity(),
	),
	handleEntity,
)

func handleEntity(ctx *Context) error {
	e := ctx.Config.Entity
	summary := e.Type
	if ctx.Config.Tracked != nil {
		summary += ", tracked"
	}
	ctx.Out.Fields(e.ID, Rows(e.Basic(), fieldsOf(e.Basic(), ctx.Config.Tracked)),
		output.WithCommand("entity"), output.WithSummary(summary))
	return nil
}

func fieldsOf(bs types.BasicState, te *types.TrackedEntity) []fieldtype.TrackedField {
	if te != nil {
		return te.TrackedValues
	}
	return fieldtype.ClassifyEntity(bs.State, bs.Attributes)
}

// Rows renders fields against the entity's current values.
func Rows(bs types.BasicState, fields []fieldtype.TrackedField) []output.FieldRow {
	rows := make([]output.FieldRow, 0, len(fields))
	for _, tf := range fields {
		v, _ := bs.Value(tf.Field)
		ft := tf.Type
		if ft == nil {
			ft = fieldtype.Generic{}
		}
		rows = append(rows, output.FieldRow{
			Field:   tf.Field,
			Logging: tf.Logging,
			Display: dispatch.Render(v, ft, bs),
		})
	}
	return rows
}

// HandleFieldTypes lists the field type variants or describes one.
func HandleFieldTypes(ctx *Context) error {
	if len(ctx.Args) < 2 {
		schemas := fieldtype.Schemas()
		output.List(ctx.Out, schemas,
			output.ListTitle[fieldtype.Schema]("Field types"),
			output.ListCommand[fieldtype.Schema]("field-types"),
			output.ListFormatter(func(s fieldtype.Schema, _ int) string {
				return fmt.Sprintf("%-12s %s%s", s.Tag, s.Label, describeArgs(s.Args))
			}),
		)
		return nil
	}

	tag := fieldtype.Tag(ctx.Args[1])
	s, ok := fieldtype.Lookup(tag)
	if !ok {
		return errors.Create(errors.CodeUnknownFieldType).WithPath(ctx.Args[1])
	}
	js, _ := fieldtype.JSONSchema(tag)
	ctx.Out.Data(map[string]any{"schema": s, "json_schema": js},
		output.WithCommand("field-types"), output.WithSummary(s.Label))
	return nil
}

func describeArgs(args []fieldtype.Argument) string {
	if len(args) == 0 {
		return ""
	}
	parts := make([]string, 0, len(args))
	for _, a := range args {
		p := a.Name
		if a.Kind == fieldtype.ArgChoice {
			values := make([]string, 0, len(a.Options))
			for _, o := range a.Options {
				values = append(values, o.Value)
			}
			p += "=" + strings.Join(values, "|")
		}
		parts = append(parts, p)
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// HandleTrack starts tracking an entity with every field classified from
// its current values.
var HandleTrack = Apply(
	Chain(
		RequireArg1("track <entity_id>"),
		WithEntity(),
	),
	handleTrack,
)

func handleTrack(ctx *Context) error {
	e := ctx.Config.Entity
	if ctx.Config.Tracked != nil {
		return errors.New(errors.ErrorTypeValidation, "entity is already tracked").WithPath(e.ID)
	}
	te, err := ctx.Editor.Track(ctx.context(), e.ID, fieldtype.ClassifyEntity(e.State, e.Attributes))
	if err != nil {
		return err
	}
	ctx.Out.Fields(te.HAID, Rows(e.Basic(), te.TrackedValues),
		output.WithCommand("track"), output.WithSummary("now tracked"))
	return nil
}

// HandleUntrack stops tracking an entity.
var HandleUntrack = Apply(RequireArg1("untrack <entity_id>"), handleUntrack)

func handleUntrack(ctx *Context) error {
	id := ctx.Config.Args[0]
	if err := ctx.Editor.Untrack(ctx.context(), id); err != nil {
		return err
	}
	ctx.Out.Message(fmt.Sprintf("%s is no longer tracked", id))
	return nil
}

// HandleSetType changes the type of one tracked field. Arguments of the
// current type carry over to the new one when their names match; the rest
// are given as name=value pairs.
var HandleSetType = Apply(
	RequireArgs("set-type <entity_id> <field> <type> [arg=value...]", 1, 2, 3),
	handleSetType,
)

func handleSetType(ctx *Context) error {
	id, field, tag := ctx.Config.Args[0], ctx.Config.Args[1], fieldtype.Tag(ctx.Config.Args[2])

	te, err := ctx.API.GetTracked(ctx.context(), id)
	if err != nil {
		return err
	}
	current, ok := te.Field(field)
	if !ok {
		return errors.Create(errors.CodeFieldNotTracked).WithPath(id + "/" + field)
	}

	form := dispatch.NewForm(field, current.Type)
	if err := form.Select(tag); err != nil {
		return err
	}
	for _, kv := range ctx.Args[4:] {
		name, value, found := strings.Cut(kv, "=")
		if !found {
			return errors.CreateWithMessage(errors.CodeInvalidArgument, "expected arg=value").WithPath(kv)
		}
		if err := form.Set(name, value); err != nil {
			return err
		}
	}
	ft, err := form.Build()
	if err != nil {
		return err
	}

	tf, err := ctx.Editor.SubmitEdit(ctx.context(), id, field, ft)
	if err != nil {
		return err
	}

	var bs types.BasicState
	if e, err := ctx.API.GetEntity(ctx.context(), id); err == nil {
		bs = e.Basic()
	} else {
		ctx.Logger.Warn().Err(err).Str("entity", id).Msg("could not load current value")
		bs = types.BasicState{EntityID: id}
	}
	ctx.Out.Fields(id, Rows(bs, []fieldtype.TrackedField{*tf}),
		output.WithCommand("set-type"), output.WithSummary("type changed"))
	return nil
}

// HandleLogStart turns on logging for a tracked field.
var HandleLogStart = Apply(RequireArg2("log-start <entity_id> <field>"), func(ctx *Context) error {
	return setLogging(ctx, true)
})

// HandleLogStop turns off logging for a tracked field.
var HandleLogStop = Apply(RequireArg2("log-stop <entity_id> <field>"), func(ctx *Context) error {
	return setLogging(ctx, false)
})

func setLogging(ctx *Context, enabled bool) error {
	id, field := ctx.Config.Args[0], ctx.Config.Args[1]
	var err error
	if enabled {
		err = ctx.Editor.StartLogging(ctx.context(), id, field)
	} else {
		err = ctx.Editor.StopLogging(ctx.context(), id, field)
	}
	if err != nil {
		return err
	}
	state := "stopped"
	if enabled {
		state = "started"
	}
	ctx.Out.Message(fmt.Sprintf("logging %s for %s/%s", state, id, field))
	return nil
}
